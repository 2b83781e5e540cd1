// Package config loads the bot configuration from defaults, an optional
// YAML file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/small-frappuccino/rolebuttons/pkg/buttons"
	"github.com/small-frappuccino/rolebuttons/pkg/discord/cache"
	"github.com/small-frappuccino/rolebuttons/pkg/discord/maintenance"
	"github.com/small-frappuccino/rolebuttons/pkg/errutil"
	"github.com/small-frappuccino/rolebuttons/pkg/util"
)

const (
	EnvPrefix = "ROLEBUTTONS"

	DefaultDataDir   = "data"
	DefaultRateLimit = 10.0
	DefaultRateBurst = 5

	redacted = "REDACTED"
)

// Env names shared with existing deployments. Everything else is
// ROLEBUTTONS_<KEY> with dots replaced by underscores.
var legacyEnv = map[string]string{
	"token":          "APP_TOKEN",
	"application_id": "APPLICATION_ID",
	"owner_ids":      "BOT_OWNER_IDS",
	"log.debug":      "LOG_DEBUG",
	"log.audit":      "LOG_AUDIT",
}

type Config struct {
	Token         string   `mapstructure:"token" yaml:"token"`
	ApplicationID string   `mapstructure:"application_id" yaml:"application_id"`
	OwnerIDs      []string `mapstructure:"owner_ids" yaml:"owner_ids"`

	// DataDir holds bot-data.json, the database, logs and the custom icon.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
	// Database defaults to <data_dir>/rolebuttons.sqlite.
	Database string `mapstructure:"database" yaml:"database"`

	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Buttons ButtonsConfig `mapstructure:"buttons" yaml:"buttons"`
	Prune   PruneConfig   `mapstructure:"prune" yaml:"prune"`
	Discord DiscordConfig `mapstructure:"discord" yaml:"discord"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Control ControlConfig `mapstructure:"control" yaml:"control"`
}

type LogConfig struct {
	Debug      bool `mapstructure:"debug" yaml:"debug"`
	Audit      bool `mapstructure:"audit" yaml:"audit"`
	NoColor    bool `mapstructure:"no_color" yaml:"no_color"`
	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"`
}

type ButtonsConfig struct {
	// IDMode is "encoded" or "stored".
	IDMode string `mapstructure:"id_mode" yaml:"id_mode"`
}

type PruneConfig struct {
	// Schedule is a cron expression in UTC; empty disables scheduled prunes.
	Schedule           string `mapstructure:"schedule" yaml:"schedule"`
	PurgeMissingGuilds bool   `mapstructure:"purge_missing_guilds" yaml:"purge_missing_guilds"`
}

type DiscordConfig struct {
	// RateLimit caps lookup REST calls per second.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst" yaml:"rate_burst"`
	// SlowHandler logs presses slower than this; 0 disables.
	SlowHandler time.Duration `mapstructure:"slow_handler" yaml:"slow_handler"`
}

type CacheConfig struct {
	MaxEntries int           `mapstructure:"max_entries" yaml:"max_entries"`
	MemberTTL  time.Duration `mapstructure:"member_ttl" yaml:"member_ttl"`
	GuildTTL   time.Duration `mapstructure:"guild_ttl" yaml:"guild_ttl"`
	RolesTTL   time.Duration `mapstructure:"roles_ttl" yaml:"roles_ttl"`
	ChannelTTL time.Duration `mapstructure:"channel_ttl" yaml:"channel_ttl"`
	MessageTTL time.Duration `mapstructure:"message_ttl" yaml:"message_ttl"`
	EmojiTTL   time.Duration `mapstructure:"emoji_ttl" yaml:"emoji_ttl"`
}

type ControlConfig struct {
	// Addr enables the metrics/health server, e.g. "127.0.0.1:9464".
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	cc := cache.DefaultCacheConfig()
	return Config{
		OwnerIDs: []string{},
		DataDir:  DefaultDataDir,
		Log: LogConfig{
			Audit:      true,
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Buttons: ButtonsConfig{IDMode: buttons.IDModeEncoded},
		Prune:   PruneConfig{Schedule: maintenance.DefaultPruneSchedule},
		Discord: DiscordConfig{
			RateLimit:   DefaultRateLimit,
			RateBurst:   DefaultRateBurst,
			SlowHandler: 2 * time.Second,
		},
		Cache: CacheConfig{
			MaxEntries: cc.MaxEntries,
			MemberTTL:  cc.MemberTTL,
			GuildTTL:   cc.GuildTTL,
			RolesTTL:   cc.RolesTTL,
			ChannelTTL: cc.ChannelTTL,
			MessageTTL: cc.MessageTTL,
			EmojiTTL:   cc.EmojiTTL,
		},
	}
}

// NewViper returns a viper instance with every key defaulted and bound to
// its environment variable.
func NewViper() (*viper.Viper, error) {
	v := viper.New()

	var defaults map[string]any
	if err := mapstructure.Decode(Default(), &defaults); err != nil {
		return nil, fmt.Errorf("flatten defaults: %w", err)
	}
	setDefaults(v, "", defaults)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, env, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_"))); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}
	return v, nil
}

func setDefaults(v *viper.Viper, prefix string, m map[string]any) {
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			setDefaults(v, key, nested)
			continue
		}
		v.SetDefault(key, val)
	}
}

// Load reads .env files, the optional YAML file and the environment, then
// normalizes and validates the result.
func Load(file string) (*Config, error) {
	cfg, err := Read(file)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read is Load without validation.
func Read(file string) (*Config, error) {
	util.LoadDotEnv()

	v, err := NewViper()
	if err != nil {
		return nil, err
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := errutil.HandleConfigError("read", file, v.ReadInConfig); err != nil {
			return nil, err
		}
	}

	return Decode(v)
}

// Decode unmarshals v and normalizes the result without validating it.
func Decode(v *viper.Viper) (*Config, error) {
	cfg := Default()
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Token = strings.TrimSpace(c.Token)
	c.ApplicationID = strings.TrimSpace(c.ApplicationID)
	c.DataDir = strings.TrimSpace(c.DataDir)
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	c.Database = strings.TrimSpace(c.Database)
	if c.Database == "" {
		c.Database = filepath.Join(c.DataDir, "rolebuttons.sqlite")
	}
	c.Buttons.IDMode = strings.ToLower(strings.TrimSpace(c.Buttons.IDMode))
	c.Prune.Schedule = strings.TrimSpace(c.Prune.Schedule)
	c.Control.Addr = strings.TrimSpace(c.Control.Addr)

	ids := make([]string, 0, len(c.OwnerIDs))
	for _, id := range c.OwnerIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	c.OwnerIDs = ids
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Token == "" {
		errs = append(errs, fmt.Errorf("bot token is required (%s)", legacyEnv["token"]))
	}
	if c.ApplicationID == "" {
		errs = append(errs, fmt.Errorf("application id is required (%s)", legacyEnv["application_id"]))
	} else if _, err := strconv.ParseUint(c.ApplicationID, 10, 64); err != nil {
		errs = append(errs, fmt.Errorf("application id %q is not a snowflake", c.ApplicationID))
	}
	if len(c.OwnerIDs) == 0 {
		errs = append(errs, fmt.Errorf("at least one bot owner id is required (%s)", legacyEnv["owner_ids"]))
	} else if _, err := util.ParseIDList(strings.Join(c.OwnerIDs, ",")); err != nil {
		errs = append(errs, fmt.Errorf("owner ids: %w", err))
	}
	if _, err := buttons.StrategyForMode(c.Buttons.IDMode); err != nil {
		errs = append(errs, err)
	}
	if c.Prune.Schedule != "" && !gronx.IsValid(c.Prune.Schedule) {
		errs = append(errs, fmt.Errorf("prune schedule %q is not a valid cron expression", c.Prune.Schedule))
	}
	if c.Discord.RateLimit <= 0 || c.Discord.RateBurst <= 0 {
		errs = append(errs, errors.New("discord rate limit and burst must be positive"))
	}
	return errors.Join(errs...)
}

// LogDir is where the rotating log file lives.
func (c *Config) LogDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// CacheConfig converts the cache section for the lookup layer.
func (c *Config) CacheConfig() cache.CacheConfig {
	return cache.CacheConfig{
		MaxEntries: c.Cache.MaxEntries,
		MemberTTL:  c.Cache.MemberTTL,
		GuildTTL:   c.Cache.GuildTTL,
		RolesTTL:   c.Cache.RolesTTL,
		ChannelTTL: c.Cache.ChannelTTL,
		MessageTTL: c.Cache.MessageTTL,
		EmojiTTL:   c.Cache.EmojiTTL,
	}
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.Token != "" {
		c.Token = redacted
	}
	c.OwnerIDs = append([]string(nil), c.OwnerIDs...)
	return c
}

// YAML renders c as a config file.
func (c Config) YAML() ([]byte, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return b, nil
}

// WriteDefault writes the default configuration to path. An existing file
// is only replaced when force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}
	b, err := Default().YAML()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	return errutil.HandleConfigError("write", path, func() error {
		return os.WriteFile(path, b, 0o600)
	})
}
