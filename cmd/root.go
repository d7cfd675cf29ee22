package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/paneward/paneward/internal/config"
	"github.com/paneward/paneward/internal/events"
	"github.com/paneward/paneward/internal/mux"
	"github.com/paneward/paneward/internal/otel"
	"github.com/paneward/paneward/internal/store"
)

// Version is injected at build time via -ldflags.
var Version = "dev"

var (
	// Global flags.
	flagRedisURL  string
	flagNamespace string
	flagSession   string
	flagJSON      bool
	flagVerbose   bool
)

// errNotFound maps to exit code 2: the named pane or tab is not tracked.
var errNotFound = errors.New("not found")

var rootCmd = &cobra.Command{
	Use:   "paneward",
	Short: "Durable named panes and snapshots for zellij",
	Long: `paneward gives zellij panes durable, named identities backed by redis.

The store is the authority for workspace structure; the live session is a
render target that paneward drives back toward the stored intent. Panes are
opened by name from anywhere, sessions are snapshotted and restored, and
records of vanished panes are kept (marked stale) rather than deleted.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Exit codes: 0 success, 2 when a named
// record does not exist, 1 for everything else.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "paneward:", err)
		if errors.Is(err, errNotFound) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagRedisURL, "redis-url", "", "redis connection URL (default from config)")
	rootCmd.PersistentFlags().StringVar(&flagNamespace, "namespace", "", "key namespace in redis (default from config)")
	rootCmd.PersistentFlags().StringVar(&flagSession, "session", "", "zellij session name (default: the session this process runs in)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "emit machine-readable JSON on stdout")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging on stderr")
}

// app bundles the wired runtime every command needs.
type app struct {
	cfg       *config.Config
	log       *zap.Logger
	store     *store.Store
	mux       mux.Multiplexer
	events    *events.Publisher
	telemetry *otel.Telemetry
	session   string
}

// newApp loads config and connects the store. The multiplexer is always a
// zellij driver; the event publisher and telemetry are optional and degrade
// to no-ops.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flagRedisURL != "" {
		cfg.RedisURL = flagRedisURL
	}
	if flagNamespace != "" {
		cfg.Namespace = flagNamespace
	}

	log := newLogger()

	st, err := store.New(store.Options{
		URL:        cfg.RedisURL,
		Namespace:  cfg.Namespace,
		Timeout:    cfg.StoreTimeoutDuration,
		CompressAt: cfg.CompressAt,
		Retention:  cfg.SnapshotRetention,
	})
	if err != nil {
		return nil, err
	}
	if err := st.Ping(ctx); err != nil {
		st.Close()
		return nil, err
	}

	a := &app{
		cfg:   cfg,
		log:   log,
		store: st,
		mux:   mux.NewZellij(cfg.MuxTimeoutDuration),
	}

	a.session = flagSession
	if a.session == "" {
		if s, ok := a.mux.ActiveSession(); ok {
			a.session = s
		} else {
			a.close()
			return nil, errors.New("not inside a zellij session; pass --session")
		}
	}

	if cfg.AMQPURL != "" {
		pub, err := events.Connect(cfg.AMQPURL, cfg.AMQPExchange, "paneward", log)
		if err != nil {
			// Event delivery is best effort; a dead broker must not block
			// navigation.
			log.Warn("event broker unreachable, events disabled", zap.Error(err))
		} else {
			a.events = pub
		}
	}

	otel.Version = Version
	tel, err := otel.Init(ctx, otel.OTELConfig{
		Endpoint: cfg.OTELEndpoint,
		Headers:  cfg.OTELHeaders,
	})
	if err != nil {
		log.Warn("telemetry init failed", zap.Error(err))
	} else {
		a.telemetry = tel
	}
	return a, nil
}

func (a *app) close() {
	if a.telemetry != nil {
		a.telemetry.Shutdown(context.Background())
	}
	a.events.Close()
	if a.store != nil {
		a.store.Close()
	}
	_ = a.log.Sync()
}

func (a *app) metrics() *otel.Metrics {
	if a.telemetry == nil {
		return nil
	}
	return a.telemetry.Metrics
}

func newLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if !flagVerbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// emit prints v as JSON with --json, or via the human formatter otherwise.
func emit(v any, human func()) error {
	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	human()
	return nil
}
