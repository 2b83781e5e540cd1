package avatar

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/small-frappuccino/rolebuttons/pkg/botdata"
)

type fakeUpdater struct {
	avatars []string
	err     error
}

func (f *fakeUpdater) UserUpdate(username, avatar, banner string, _ ...discordgo.RequestOption) (*discordgo.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.avatars = append(f.avatars, avatar)
	return &discordgo.User{ID: "bot"}, nil
}

func openBotData(t *testing.T, dir string) *botdata.File {
	t.Helper()
	f, err := botdata.Open(dir)
	require.NoError(t, err)
	return f
}

func TestDefaultIconIsPNG(t *testing.T) {
	require.NotEmpty(t, defaultIcon)
	assert.Equal(t, "\x89PNG", string(defaultIcon[:4]))
}

func TestSyncUploadsOnceUntilIconChanges(t *testing.T) {
	dir := t.TempDir()
	data := openBotData(t, dir)
	api := &fakeUpdater{}

	uploaded, err := Sync(context.Background(), api, data, dir)
	require.NoError(t, err)
	assert.True(t, uploaded)
	require.Len(t, api.avatars, 1)
	assert.True(t, strings.HasPrefix(api.avatars[0], "data:image/png;base64,"))
	assert.Equal(t, botdata.HashBytes(defaultIcon), data.IconHash())

	uploaded, err = Sync(context.Background(), api, data, dir)
	require.NoError(t, err)
	assert.False(t, uploaded)

	custom := append([]byte("\x89PNG"), []byte("custom")...)
	require.NoError(t, os.WriteFile(filepath.Join(dir, CustomIconFile), custom, 0o644))
	uploaded, err = Sync(context.Background(), api, data, dir)
	require.NoError(t, err)
	assert.True(t, uploaded)
	assert.Equal(t, botdata.HashBytes(custom), data.IconHash())
}

func TestSyncFailureKeepsHash(t *testing.T) {
	dir := t.TempDir()
	data := openBotData(t, dir)

	_, err := Sync(context.Background(), &fakeUpdater{err: errors.New("rate limited")}, data, dir)
	require.Error(t, err)
	assert.Empty(t, data.IconHash())

	SyncSafely(context.Background(), &fakeUpdater{err: errors.New("rate limited")}, data, dir)
	assert.Empty(t, data.IconHash())
}
