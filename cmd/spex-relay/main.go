// Command spex-relay moves the contents of one Redis list into another
// through a spex Page or Sequence run.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/spex/pkg/logging"
	"github.com/Sternrassler/spex/pkg/metrics"
	"github.com/Sternrassler/spex/pkg/promise"
	"github.com/Sternrassler/spex/pkg/redisiter"
	"github.com/Sternrassler/spex/pkg/spex"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// flags holds command line overrides. Only flags that were set on the
// command line replace configuration values.
type flags struct {
	configPath  string
	redisAddr   string
	sourceKey   string
	destKey     string
	mode        string
	pageSize    int64
	limit       int
	metricsAddr string
	logLevel    string
	pretty      bool
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "spex-relay",
		Short: "Relay a Redis list into another one through a spex run",
		Long: `spex-relay reads a Redis list either in LRANGE windows (page mode) or by
popping one item at a time (sequence mode) and appends everything it reads to
a destination list. The run stops at the end of the source or after --limit
steps, and reports a structured error when a step fails.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, &f)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, cmd)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&f.configPath, "config", "c", "", "YAML configuration file")
	fs.StringVar(&f.redisAddr, "redis", "", "Redis address (default $REDIS_URL or localhost:6379)")
	fs.StringVar(&f.sourceKey, "source-key", "", "Redis list to read from")
	fs.StringVar(&f.destKey, "dest-key", "", "Redis list to append to")
	fs.StringVar(&f.mode, "mode", ModePage, "Relay mode: page or sequence")
	fs.Int64Var(&f.pageSize, "page-size", 100, "Items per page in page mode")
	fs.IntVar(&f.limit, "limit", 0, "Maximum number of steps, 0 for no limit")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve /metrics and /health on this address while relaying")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.BoolVar(&f.pretty, "pretty", false, "Human-readable console logs")

	return cmd
}

// resolveConfig loads the configuration file, if any, and applies the flags
// that were set explicitly.
func resolveConfig(cmd *cobra.Command, f *flags) (*Config, error) {
	cfg := DefaultConfig()
	if f.configPath != "" {
		loaded, err := LoadConfig(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	changed := cmd.Flags().Changed
	if changed("redis") {
		cfg.Redis.Addr = f.redisAddr
	}
	if changed("source-key") {
		cfg.Relay.SourceKey = f.sourceKey
	}
	if changed("dest-key") {
		cfg.Relay.DestKey = f.destKey
	}
	if changed("mode") {
		cfg.Relay.Mode = f.mode
	}
	if changed("page-size") {
		cfg.Relay.PageSize = f.pageSize
	}
	if changed("limit") {
		cfg.Relay.Limit = f.limit
	}
	if changed("metrics-addr") {
		cfg.Metrics.Addr = f.metricsAddr
	}
	if changed("log-level") {
		cfg.Log.Level = logging.LogLevel(f.logLevel)
	}
	if changed("pretty") {
		cfg.Log.Pretty = f.pretty
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *Config, cmd *cobra.Command) error {
	cfg.Log.Output = cmd.ErrOrStderr()
	logging.Setup(cfg.Log)
	logger := logging.NewLogger("spex-relay")

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to Redis")
		return fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           newMux(redisClient),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info().Str("addr", cfg.Metrics.Addr).Msg("Starting metrics server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	engine, err := spex.New(spex.Config{
		Adapter: promise.Native(),
		Logger:  logging.NewLogger("spex"),
	})
	if err != nil {
		return err
	}

	summary, err := relay(ctx, engine, redisClient, cfg.Relay, logger)
	if err != nil {
		var f spex.Failure
		if errors.As(err, &f) {
			fmt.Fprintln(cmd.ErrOrStderr(), f.Format(0))
		}
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "relayed %d items in %d steps (%s)\n", summary.Items, summary.Steps, summary.Duration)
	return nil
}

// relaySummary reports what one relay moved.
type relaySummary struct {
	Steps    int
	Items    int
	Duration time.Duration
}

// relay runs the configured engine from the source list into the
// destination list.
func relay(ctx context.Context, engine *spex.Engine, client redis.Cmdable, cfg RelayConfig, logger zerolog.Logger) (relaySummary, error) {
	logger.Info().
		Str("mode", cfg.Mode).
		Str("source_key", cfg.SourceKey).
		Str("dest_key", cfg.DestKey).
		Int("limit", cfg.Limit).
		Msg("Relay started")

	opts := []spex.Option{
		spex.WithDest(redisiter.ListSink(client, cfg.DestKey)),
		spex.WithLimit(cfg.Limit),
		spex.WithDestLabel("ListSink"),
	}

	var summary relaySummary
	switch cfg.Mode {
	case ModeSequence:
		opts = append(opts, spex.WithSourceLabel("PopItems"))
		v, err := promise.Await(ctx, engine.Sequence(ctx, redisiter.PopItems(client, cfg.SourceKey), opts...))
		if err != nil {
			return summary, err
		}
		res := v.(*spex.SequenceResult)
		summary = relaySummary{Steps: res.Total, Items: res.Total, Duration: res.Duration}
	default:
		opts = append(opts, spex.WithSourceLabel("ListPages"))
		v, err := promise.Await(ctx, engine.Page(ctx, redisiter.ListPages(client, cfg.SourceKey, cfg.PageSize), opts...))
		if err != nil {
			return summary, err
		}
		res := v.(*spex.PageResult)
		summary = relaySummary{Steps: res.Pages, Items: res.Total, Duration: res.Duration}
	}

	logger.Info().
		Int("steps", summary.Steps).
		Int("items", summary.Items).
		Dur("duration", summary.Duration).
		Msg("Relay complete")
	return summary, nil
}

func newMux(redisClient *redis.Client) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(redisClient))
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			http.Error(w, "Redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}
