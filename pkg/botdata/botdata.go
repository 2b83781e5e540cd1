// Package botdata persists the small amount of state the bot keeps between
// restarts outside the database: hashes of the last uploaded command set
// and bot icon.
package botdata

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/OneOfOne/xxhash"

	"github.com/small-frappuccino/rolebuttons/pkg/log"
	"github.com/small-frappuccino/rolebuttons/pkg/util"
)

const (
	CurrentVersion = 2
	FileName       = "bot-data.json"
)

// Data is the on-disk document.
type Data struct {
	ConfigVersion              int    `json:"configVersion"`
	LastSuccessfulCommandsHash string `json:"lastSuccessfulCommandsHash"`
	LastKnownBotIconHash       string `json:"lastKnownBotIconHash"`
}

func defaults() Data {
	return Data{ConfigVersion: CurrentVersion}
}

// File guards a bot-data.json document.
type File struct {
	mu   sync.Mutex
	json *util.JSONManager
	data Data
}

// Open loads <dataDir>/bot-data.json, writing defaults when it is missing
// and upgrading documents older than CurrentVersion.
func Open(dataDir string) (*File, error) {
	f := &File{json: util.NewJSONManager(filepath.Join(dataDir, FileName))}

	// Keys missing from the file keep their default values.
	d := defaults()
	d.ConfigVersion = 0
	found, err := f.json.Load(&d)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", f.json.Path(), err)
	}
	if !found {
		log.ApplicationLogger().Warn("Bot data file not found; creating one. If this is not a first boot, make sure the data directory is retained.",
			"path", f.json.Path())
		f.data = defaults()
		if err := f.json.Save(f.data); err != nil {
			return nil, fmt.Errorf("write default bot data: %w", err)
		}
		return f, nil
	}

	if d.ConfigVersion < CurrentVersion {
		log.ApplicationLogger().Info("Bot data file version updated", "from", d.ConfigVersion, "to", CurrentVersion)
		d.ConfigVersion = CurrentVersion
		f.data = d
		if err := f.json.Save(f.data); err != nil {
			return nil, fmt.Errorf("write upgraded bot data: %w", err)
		}
		return f, nil
	}
	f.data = d
	return f, nil
}

// Snapshot returns a copy of the current document.
func (f *File) Snapshot() Data {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data
}

// CommandsHash implements the command manager's hash store.
func (f *File) CommandsHash() string {
	return f.Snapshot().LastSuccessfulCommandsHash
}

func (f *File) SetCommandsHash(h string) error {
	return f.update(func(d *Data) { d.LastSuccessfulCommandsHash = h })
}

func (f *File) IconHash() string {
	return f.Snapshot().LastKnownBotIconHash
}

func (f *File) SetIconHash(h string) error {
	return f.update(func(d *Data) { d.LastKnownBotIconHash = h })
}

func (f *File) update(fn func(*Data)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := f.data
	fn(&next)
	if err := f.json.Save(next); err != nil {
		return fmt.Errorf("save bot data: %w", err)
	}
	f.data = next
	log.ApplicationLogger().Debug("Bot data written", "path", f.json.Path())
	return nil
}

// HashBytes is the content hash used for icons.
func HashBytes(b []byte) string {
	return strconv.FormatUint(xxhash.Checksum64(b), 16)
}

// HashJSON hashes the JSON encoding of v; used for command sets.
func HashJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("hash json: %w", err)
	}
	return HashBytes(b), nil
}
