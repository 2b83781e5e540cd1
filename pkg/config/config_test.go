package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/small-frappuccino/rolebuttons/pkg/discord/maintenance"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, env := range legacyEnv {
		t.Setenv(env, "")
	}
}

func setValidEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_TOKEN", "  secret-token ")
	t.Setenv("APPLICATION_ID", "123456789012345678")
	t.Setenv("BOT_OWNER_IDS", "111, 222,")
}

func TestLoadFromLegacyEnv(t *testing.T) {
	isolateEnv(t)
	setValidEnv(t)
	t.Setenv("LOG_DEBUG", "true")
	t.Setenv("LOG_AUDIT", "false")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "secret-token", cfg.Token)
	assert.Equal(t, []string{"111", "222"}, cfg.OwnerIDs)
	assert.True(t, cfg.Log.Debug)
	assert.False(t, cfg.Log.Audit)
	assert.Equal(t, "encoded", cfg.Buttons.IDMode)
	assert.Equal(t, maintenance.DefaultPruneSchedule, cfg.Prune.Schedule)
	assert.Equal(t, filepath.Join(DefaultDataDir, "rolebuttons.sqlite"), cfg.Database)
	assert.Equal(t, 2*time.Minute, cfg.Cache.MemberTTL)
}

func TestPrefixedEnvOverridesFile(t *testing.T) {
	isolateEnv(t)
	setValidEnv(t)

	file := filepath.Join(t.TempDir(), "rolebuttons.yaml")
	require.NoError(t, os.WriteFile(file, []byte(strings.Join([]string{
		"data_dir: /srv/rolebuttons",
		"buttons:",
		"  id_mode: stored",
		"prune:",
		"  schedule: \"30 2 * * 1\"",
		"  purge_missing_guilds: true",
		"cache:",
		"  member_ttl: 90s",
		"control:",
		"  addr: 127.0.0.1:9464",
	}, "\n")), 0o600))
	t.Setenv("ROLEBUTTONS_CONTROL_ADDR", "0.0.0.0:9000")

	cfg, err := Load(file)
	require.NoError(t, err)

	assert.Equal(t, "stored", cfg.Buttons.IDMode)
	assert.Equal(t, "30 2 * * 1", cfg.Prune.Schedule)
	assert.True(t, cfg.Prune.PurgeMissingGuilds)
	assert.Equal(t, 90*time.Second, cfg.Cache.MemberTTL)
	assert.Equal(t, "0.0.0.0:9000", cfg.Control.Addr)
	assert.Equal(t, filepath.Join("/srv/rolebuttons", "rolebuttons.sqlite"), cfg.Database)
	assert.Equal(t, filepath.Join("/srv/rolebuttons", "logs"), cfg.LogDir())
	assert.Equal(t, 90*time.Second, cfg.CacheConfig().MemberTTL)
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := Default()
	cfg.ApplicationID = "not-a-number"
	cfg.OwnerIDs = []string{"abc"}
	cfg.Buttons.IDMode = "random"
	cfg.Prune.Schedule = "tomorrow"
	cfg.Discord.RateLimit = 0

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"token", "snowflake", "owner ids", "random", "cron", "rate limit"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestEmptyScheduleIsAllowed(t *testing.T) {
	cfg := Default()
	cfg.Token = "t"
	cfg.ApplicationID = "1"
	cfg.OwnerIDs = []string{"2"}
	cfg.Prune.Schedule = ""
	assert.NoError(t, cfg.Validate())
}

func TestMissingConfigFile(t *testing.T) {
	isolateEnv(t)
	setValidEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config read")
}

func TestWriteDefaultAndRedact(t *testing.T) {
	isolateEnv(t)
	setValidEnv(t)
	path := filepath.Join(t.TempDir(), "conf", "rolebuttons.yaml")

	require.NoError(t, WriteDefault(path, false))
	require.Error(t, WriteDefault(path, false), "existing file must not be replaced")
	require.NoError(t, WriteDefault(path, true))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "member_ttl: 2m0s")
	assert.Contains(t, string(raw), "id_mode: encoded")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.Cache.MemberTTL)

	out, err := cfg.Redacted().YAML()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "secret-token")
	assert.Contains(t, string(out), redacted)
	assert.Equal(t, "secret-token", cfg.Token, "Redacted must not modify the original")
}

func TestWriteDefaultOntoDirectory(t *testing.T) {
	dir := t.TempDir()
	err := WriteDefault(dir, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config write")
}
