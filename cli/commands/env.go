package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	cqrs "github.com/AshkanYarmoradi/go-cqrs"
	"github.com/AshkanYarmoradi/go-cqrs/adapters"
	"github.com/AshkanYarmoradi/go-cqrs/adapters/memory"
	"github.com/AshkanYarmoradi/go-cqrs/adapters/postgres"
	"github.com/AshkanYarmoradi/go-cqrs/cli/config"
	"github.com/AshkanYarmoradi/go-cqrs/cli/ui"
	"github.com/AshkanYarmoradi/go-cqrs/serializer/msgpack"
	"github.com/AshkanYarmoradi/go-cqrs/serializer/protobuf"
)

// connectTimeout bounds the initial database ping.
const connectTimeout = 5 * time.Second

// Adapter combines the adapter interfaces the CLI commands use.
type Adapter interface {
	adapters.EventStoreAdapter
	adapters.StreamQueryAdapter
	adapters.SchemaProvider
	adapters.HealthChecker
	adapters.ViewStore
}

var (
	_ Adapter = (*memory.MemoryAdapter)(nil)
	_ Adapter = (*postgres.PostgresAdapter)(nil)
)

// options are the persistent flags shared by all commands.
type options struct {
	configPath string
	noColor    bool
	verbose    bool

	open func(ctx context.Context, cfg *config.Config) (Adapter, error)
}

// loadConfig reads --config, or searches for cqrs.yaml from the working directory up.
func (o *options) loadConfig() (*config.Config, error) {
	if o.configPath != "" {
		return config.LoadFile(o.configPath)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	_, cfg, err := config.FindConfig(cwd)
	if errors.Is(err, config.ErrNotFound) {
		return nil, fmt.Errorf("no %s found, run 'cqrs init' first", config.ConfigFileName)
	}
	return cfg, err
}

// loadConfigOrDefault is like loadConfig but falls back to the defaults
// (with environment overrides) when no file exists.
func (o *options) loadConfigOrDefault() (*config.Config, error) {
	cfg, err := o.loadConfig()
	if err == nil {
		return cfg, nil
	}
	if o.configPath != "" {
		return nil, err
	}

	cfg = config.DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o *options) logger(cmd *cobra.Command) cqrs.Logger {
	if !o.verbose {
		return cqrs.NopLogger()
	}
	return cqrs.NewJSONLogger(cmd.ErrOrStderr(), zapcore.DebugLevel)
}

// env is an opened store and its configuration.
type env struct {
	cfg     *config.Config
	adapter Adapter
	store   *cqrs.EventStore
}

func (e *env) Close() {
	_ = e.store.Close()
}

// openEnv loads the configuration and connects to the configured store,
// animating a spinner when writing to a terminal.
func (o *options) openEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	serializer, err := newSerializer(cfg.Store.Serializer)
	if err != nil {
		return nil, err
	}

	var adapter Adapter
	err = ui.RunWithSpinner(cmd.Context(), cmd.OutOrStdout(), isTerminal(cmd.OutOrStdout()), "Connecting to "+cfg.Database.Driver,
		func(ctx context.Context) error {
			adapter, err = o.open(ctx, cfg)
			return err
		})
	if err != nil {
		return nil, err
	}

	return &env{
		cfg:     cfg,
		adapter: adapter,
		store:   cqrs.New(adapter, cqrs.WithSerializer(serializer), cqrs.WithLogger(o.logger(cmd))),
	}, nil
}

// openAdapter creates the adapter named by the configuration and checks the
// connection.
func openAdapter(ctx context.Context, cfg *config.Config) (Adapter, error) {
	switch cfg.Database.Driver {
	case config.DriverMemory:
		return memory.NewAdapter(), nil

	case config.DriverPostgres:
		url := cfg.ResolvedURL()
		if url == "" {
			return nil, errors.New("database.url is empty, set CQRS_DATABASE_URL or DATABASE_URL")
		}

		adapter, err := postgres.Open(cfg.Database.SQLDriver, url, postgres.WithSchema(cfg.Database.Schema))
		if err != nil {
			return nil, err
		}

		pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		if err := adapter.Ping(pingCtx); err != nil {
			_ = adapter.Close()
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return adapter, nil

	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Database.Driver)
	}
}

func newSerializer(name string) (cqrs.Serializer, error) {
	switch name {
	case "", config.SerializerJSON:
		return cqrs.NewJSONSerializer(), nil
	case config.SerializerMsgpack:
		return msgpack.NewSerializer(), nil
	case config.SerializerProtobuf:
		return protobuf.NewSerializer(), nil
	default:
		return nil, fmt.Errorf("unsupported serializer: %q", name)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}
