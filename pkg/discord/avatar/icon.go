// Package avatar keeps the bot's avatar in sync with the configured icon
// file.
package avatar

import (
	"context"
	_ "embed"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/rolebuttons/pkg/botdata"
	"github.com/small-frappuccino/rolebuttons/pkg/log"
)

// CustomIconFile overrides the built-in icon when present in the data dir.
const CustomIconFile = "custom-bot-icon.png"

//go:embed assets/default-bot-icon.png
var defaultIcon []byte

// UserUpdater is the part of *discordgo.Session that edits the bot user.
type UserUpdater interface {
	UserUpdate(username, avatar, banner string, options ...discordgo.RequestOption) (*discordgo.User, error)
}

// HashStore remembers the hash of the last uploaded icon. *botdata.File
// satisfies it.
type HashStore interface {
	IconHash() string
	SetIconHash(h string) error
}

// LoadIcon returns the custom icon from dataDir, or the built-in one.
func LoadIcon(dataDir string) ([]byte, string, error) {
	path := filepath.Join(dataDir, CustomIconFile)
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		return b, path, nil
	case errors.Is(err, fs.ErrNotExist):
		return defaultIcon, "built-in", nil
	default:
		return nil, path, fmt.Errorf("read bot icon: %w", err)
	}
}

// Sync uploads the icon when its hash differs from the stored one. It
// reports whether an upload happened.
func Sync(ctx context.Context, api UserUpdater, hashes HashStore, dataDir string) (bool, error) {
	icon, source, err := LoadIcon(dataDir)
	if err != nil {
		return false, err
	}
	sum := botdata.HashBytes(icon)
	if sum == hashes.IconHash() {
		log.ApplicationLogger().Debug("Bot icon unchanged", "source", source)
		return false, nil
	}

	log.ApplicationLogger().Info("Bot icon has been modified, uploading new version", "source", source)
	if _, err := api.UserUpdate("", dataURI(icon), "", discordgo.WithContext(ctx)); err != nil {
		return false, fmt.Errorf("upload bot icon: %w", err)
	}
	if err := hashes.SetIconHash(sum); err != nil {
		return true, fmt.Errorf("store bot icon hash: %w", err)
	}
	log.ApplicationLogger().Info("Bot icon updated")
	return true, nil
}

// SyncSafely is Sync with failures logged instead of returned.
func SyncSafely(ctx context.Context, api UserUpdater, hashes HashStore, dataDir string) {
	if _, err := Sync(ctx, api, hashes, dataDir); err != nil {
		log.ErrorLoggerRaw().Error("Could not update the bot's icon", "err", err)
	}
}

func dataURI(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
