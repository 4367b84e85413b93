// Package config builds a musicbox Session from the environment. A .env file
// in the working directory is loaded first when present.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdslog "log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/musicbox"
	"github.com/unkn0wn-root/musicbox/boxapi"
	c "github.com/unkn0wn-root/musicbox/codec"
	"github.com/unkn0wn-root/musicbox/genstore"
	"github.com/unkn0wn-root/musicbox/geo"
	asynchook "github.com/unkn0wn-root/musicbox/hooks/async"
	mblogrus "github.com/unkn0wn-root/musicbox/log/logrus"
	mbslog "github.com/unkn0wn-root/musicbox/log/slog"
	mbzap "github.com/unkn0wn-root/musicbox/log/zap"
	mbzerolog "github.com/unkn0wn-root/musicbox/log/zerolog"
	pr "github.com/unkn0wn-root/musicbox/provider"
	bcp "github.com/unkn0wn-root/musicbox/provider/bigcache"
	rdp "github.com/unkn0wn-root/musicbox/provider/redis"
	rtp "github.com/unkn0wn-root/musicbox/provider/ristretto"
	"github.com/unkn0wn-root/musicbox/sloghooks"
)

type Config struct {
	BaseURL   string        `env:"MUSICBOX_BASE_URL,required"`
	UserAgent string        `env:"MUSICBOX_USER_AGENT" envDefault:"musicbox-cli/1"`
	Timeout   time.Duration `env:"MUSICBOX_HTTP_TIMEOUT" envDefault:"0s"`
	Namespace string        `env:"MUSICBOX_NAMESPACE" envDefault:"musicbox"`

	// Store is one of ristretto, bigcache, redis.
	Store         string `env:"MUSICBOX_STORE" envDefault:"ristretto"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	// RedisPrefix scopes one device's keys, e.g. "device:3f2a".
	RedisPrefix string `env:"REDIS_PREFIX"`

	// Codec is one of json, msgpack, cbor.
	Codec         string `env:"MUSICBOX_CODEC" envDefault:"json"`
	CacheDisabled bool   `env:"MUSICBOX_CACHE_DISABLED"`
	// MaxSnapshotBytes refuses to decode larger snapshots; 0 = no limit.
	MaxSnapshotBytes int `env:"MUSICBOX_MAX_SNAPSHOT_BYTES" envDefault:"1048576"`

	SnapshotTTL     time.Duration `env:"MUSICBOX_SNAPSHOT_TTL" envDefault:"20m"`
	AnonymousTTL    time.Duration `env:"MUSICBOX_ANONYMOUS_TTL" envDefault:"720h"`
	RecheckInterval time.Duration `env:"MUSICBOX_RECHECK_INTERVAL" envDefault:"100s"`
	SearchDebounce  time.Duration `env:"MUSICBOX_SEARCH_DEBOUNCE" envDefault:"400ms"`

	// LogBackend is one of zap, logrus, slog, zerolog.
	LogBackend string `env:"MUSICBOX_LOG" envDefault:"zap"`
	LogLevel   string `env:"MUSICBOX_LOG_LEVEL" envDefault:"info"`
	// LogHooks reports hook events through slog on a background worker.
	LogHooks bool `env:"MUSICBOX_LOG_HOOKS"`
}

// Load reads files (default ".env") into the process environment, without
// overriding variables already set, then parses Config.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg Config) Validate() error {
	var errs []error
	if !oneOf(cfg.Store, "ristretto", "bigcache", "redis") {
		errs = append(errs, fmt.Errorf("config: unknown store %q", cfg.Store))
	}
	if !oneOf(cfg.Codec, "json", "msgpack", "cbor") {
		errs = append(errs, fmt.Errorf("config: unknown codec %q", cfg.Codec))
	}
	if !oneOf(cfg.LogBackend, "zap", "logrus", "slog", "zerolog") {
		errs = append(errs, fmt.Errorf("config: unknown log backend %q", cfg.LogBackend))
	}
	if !oneOf(strings.ToLower(cfg.LogLevel), "debug", "info", "warn", "error") {
		errs = append(errs, fmt.Errorf("config: unknown log level %q", cfg.LogLevel))
	}
	if cfg.SnapshotTTL < 0 || cfg.AnonymousTTL < 0 || cfg.RecheckInterval < 0 || cfg.SearchDebounce < 0 {
		errs = append(errs, errors.New("config: durations must not be negative"))
	}
	return errors.Join(errs...)
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// Client builds the box server client.
func (cfg Config) Client() (*boxapi.Client, error) {
	return boxapi.New(boxapi.Config{
		BaseURL:   cfg.BaseURL,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.Timeout,
	})
}

// SnapshotCodec returns the codec named by cfg.Codec, size-limited when
// MaxSnapshotBytes is set.
func (cfg Config) SnapshotCodec() (c.Codec[musicbox.BoxSnapshot], error) {
	var inner c.Codec[musicbox.BoxSnapshot]
	switch cfg.Codec {
	case "json":
		inner = c.JSON[musicbox.BoxSnapshot]{}
	case "msgpack":
		inner = c.Msgpack[musicbox.BoxSnapshot]{}
	case "cbor":
		cb, err := c.NewCBOR[musicbox.BoxSnapshot](true)
		if err != nil {
			return nil, err
		}
		inner = cb
	default:
		return nil, fmt.Errorf("config: unknown codec %q", cfg.Codec)
	}
	if cfg.MaxSnapshotBytes > 0 {
		return c.Limit[musicbox.BoxSnapshot]{Inner: inner, MaxDecode: cfg.MaxSnapshotBytes}, nil
	}
	return inner, nil
}

// Logger builds the configured adapter writing to w. sync flushes buffered
// output and is never nil.
func (cfg Config) Logger(w io.Writer) (musicbox.Logger, func(), error) {
	level := strings.ToLower(cfg.LogLevel)
	switch cfg.LogBackend {
	case "zap":
		zl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, nil, err
		}
		enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		z := zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), zl))
		return mbzap.New(z), func() { _ = z.Sync() }, nil
	case "logrus":
		lv, err := logrus.ParseLevel(level)
		if err != nil {
			return nil, nil, err
		}
		lr := logrus.New()
		lr.SetOutput(w)
		lr.SetLevel(lv)
		lr.SetFormatter(&logrus.JSONFormatter{})
		return mblogrus.New(lr), func() {}, nil
	case "slog":
		var lv stdslog.Level
		if err := lv.UnmarshalText([]byte(level)); err != nil {
			return nil, nil, err
		}
		return mbslog.New(stdslog.NewJSONHandler(w, &stdslog.HandlerOptions{Level: lv})), func() {}, nil
	case "zerolog":
		lv, err := zerolog.ParseLevel(level)
		if err != nil {
			return nil, nil, err
		}
		return mbzerolog.New(zerolog.New(w).Level(lv).With().Timestamp().Logger()), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("config: unknown log backend %q", cfg.LogBackend)
	}
}

// Stores opens the device store and, for redis, the generation store that
// shares its client. gens is nil for the in-memory stores.
func (cfg Config) Stores(ctx context.Context) (p pr.Provider, gens genstore.GenStore, err error) {
	switch cfg.Store {
	case "ristretto":
		p, err = rtp.New(rtp.DefaultConfig())
		return p, nil, err
	case "bigcache":
		life := max(cfg.SnapshotTTL, cfg.AnonymousTTL, musicbox.DefaultAnonymousTTL)
		p, err = bcp.New(ctx, bcp.Config{LifeWindow: life, HardMaxCacheSizeMB: 16})
		return p, nil, err
	case "redis":
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		p, err = rdp.New(rdp.Config{Client: rdb, Prefix: cfg.RedisPrefix, CloseClient: true})
		if err != nil {
			_ = rdb.Close()
			return nil, nil, err
		}
		return p, genstore.NewRedisGenStore(rdb, cfg.Namespace, cfg.SnapshotTTL), nil
	default:
		return nil, nil, fmt.Errorf("config: unknown store %q", cfg.Store)
	}
}

// Runtime is everything a binary needs for one session.
type Runtime struct {
	Client  *boxapi.Client
	Options musicbox.Options

	closers []func()
}

// Close flushes loggers and drains hook workers. Close the Session first.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

// Build wires the client, stores, codec, logger and hooks. The locator is
// left to the caller.
func (cfg Config) Build(ctx context.Context, logOut io.Writer, loc geo.Locator) (*Runtime, error) {
	client, err := cfg.Client()
	if err != nil {
		return nil, err
	}
	codec, err := cfg.SnapshotCodec()
	if err != nil {
		return nil, err
	}
	log, syncLog, err := cfg.Logger(logOut)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{Client: client, closers: []func(){syncLog}}

	p, gens, err := cfg.Stores(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}

	var hooks musicbox.Hooks = musicbox.NopHooks{}
	if cfg.LogHooks {
		h := stdslog.New(stdslog.NewTextHandler(logOut, &stdslog.HandlerOptions{Level: stdslog.LevelDebug}))
		ah := asynchook.New(sloghooks.New(h, sloghooks.Options{SelfHealEvery: 10, StaleSearchEvery: 5}), 1, 256)
		rt.closers = append(rt.closers, ah.Close)
		hooks = ah
	}

	rt.Options = musicbox.Options{
		Service:         client,
		Provider:        p,
		Namespace:       cfg.Namespace,
		SnapshotCodec:   codec,
		Locator:         loc,
		GenStore:        gens,
		CacheDisabled:   cfg.CacheDisabled,
		SnapshotTTL:     cfg.SnapshotTTL,
		AnonymousTTL:    cfg.AnonymousTTL,
		RecheckInterval: cfg.RecheckInterval,
		SearchDebounce:  cfg.SearchDebounce,
		Logger:          log,
		Hooks:           hooks,
	}
	return rt, nil
}
