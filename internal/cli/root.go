// Package cli implements warehousectl, a command line client for message
// collections.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/unifiedui/message-warehouse/internal/config"
	"github.com/unifiedui/message-warehouse/internal/core/docdb"
	"github.com/unifiedui/message-warehouse/internal/core/notify"
	redisnotify "github.com/unifiedui/message-warehouse/internal/infrastructure/notify/redis"
	"github.com/unifiedui/message-warehouse/internal/pkg/logger"
	"github.com/unifiedui/message-warehouse/internal/services/collections"
	"github.com/unifiedui/message-warehouse/internal/warehouse"
)

// Options holds the global flags.
type Options struct {
	URI        string
	Host       string
	Port       int
	Database   string
	Collection string
	Timeout    time.Duration

	Notify        string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	LogLevel string
}

// Environment holds the streams and connectors commands run against.
type Environment struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer

	Connect      func(ctx context.Context, conn warehouse.ConnectionConfig) (docdb.Client, error)
	NewPublisher func(opts *Options) (notify.Publisher, error)
}

// DefaultEnvironment connects to MongoDB and Redis and uses the process streams.
func DefaultEnvironment() *Environment {
	return &Environment{
		In:           os.Stdin,
		Out:          os.Stdout,
		Err:          os.Stderr,
		Connect:      warehouse.Connect,
		NewPublisher: newPublisher,
	}
}

func newPublisher(opts *Options) (notify.Publisher, error) {
	switch notify.Type(opts.Notify) {
	case notify.TypeRedis:
		return redisnotify.NewPublisher(redisnotify.Config{
			Host:     opts.RedisHost,
			Port:     opts.RedisPort,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		})
	case notify.TypeNone:
		return notify.NewNoopPublisher(), nil
	default:
		return nil, fmt.Errorf("unsupported notify type: %s", opts.Notify)
	}
}

// defaultOptions seeds flag defaults from the environment and .env.
func defaultOptions() *Options {
	host, port := config.LookupWarehouseAddress()
	opts := &Options{
		Host:      host,
		Port:      port,
		Database:  "warehouse",
		Timeout:   30 * time.Second,
		Notify:    string(notify.TypeRedis),
		RedisHost: "localhost",
		RedisPort: "6379",
		LogLevel:  "warn",
	}

	cfg, err := config.Load()
	if err != nil {
		return opts
	}
	opts.URI = cfg.Warehouse.URI
	opts.Host = cfg.Warehouse.Host
	opts.Port = cfg.Warehouse.Port
	opts.Database = cfg.Warehouse.Database
	opts.Notify = cfg.Notify.Type
	opts.RedisHost = cfg.Notify.Host
	opts.RedisPort = cfg.Notify.Port
	opts.RedisPassword = cfg.Notify.Password
	opts.RedisDB = cfg.Notify.DB
	return opts
}

// NewRootCommand builds the warehousectl command tree.
func NewRootCommand(env *Environment) *cobra.Command {
	if env == nil {
		env = DefaultEnvironment()
	}
	opts := defaultOptions()

	cmd := &cobra.Command{
		Use:           "warehousectl",
		Short:         "Store and query messages in a message warehouse",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetIn(env.In)
	cmd.SetOut(env.Out)
	cmd.SetErr(env.Err)

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.URI, "uri", opts.URI, "MongoDB connection string, overrides --host and --port")
	flags.StringVar(&opts.Host, "host", opts.Host, "MongoDB host")
	flags.IntVar(&opts.Port, "port", opts.Port, "MongoDB port")
	flags.StringVarP(&opts.Database, "database", "d", opts.Database, "Database name")
	flags.StringVarP(&opts.Collection, "collection", "c", opts.Collection, "Collection name")
	flags.DurationVar(&opts.Timeout, "timeout", opts.Timeout, "How long to keep retrying the connection")
	flags.StringVar(&opts.Notify, "notify", opts.Notify, "Notification publisher: redis or none")
	flags.StringVar(&opts.RedisHost, "redis-host", opts.RedisHost, "Redis host")
	flags.StringVar(&opts.RedisPort, "redis-port", opts.RedisPort, "Redis port")
	flags.StringVar(&opts.RedisPassword, "redis-password", opts.RedisPassword, "Redis password")
	flags.IntVar(&opts.RedisDB, "redis-db", opts.RedisDB, "Redis database")
	flags.StringVar(&opts.LogLevel, "log-level", opts.LogLevel, "Log level: debug, info, warn or error")

	cmd.AddCommand(
		newInsertCommand(env, opts),
		newFindCommand(env, opts),
		newRemoveCommand(env, opts),
		newUpdateCommand(env, opts),
		newCountCommand(env, opts),
		newIndexCommand(env, opts),
		newSchemasCommand(env, opts),
		newWatchCommand(env, opts),
	)

	return cmd
}

// session is an open connection with its registry.
type session struct {
	client    docdb.Client
	publisher notify.Publisher
	registry  *collections.Registry
}

func openSession(ctx context.Context, env *Environment, opts *Options) (*session, error) {
	log := logger.New(logger.Config{
		Level:  opts.LogLevel,
		Format: "console",
		Output: env.Err,
	}, "warehousectl")

	client, err := env.Connect(ctx, warehouse.ConnectionConfig{
		URI:     opts.URI,
		Host:    opts.Host,
		Port:    opts.Port,
		Timeout: opts.Timeout,
	})
	if err != nil {
		return nil, err
	}

	// Inserts still succeed without a notification channel; watch opens
	// its own publisher and fails instead.
	publisher, err := env.NewPublisher(opts)
	if err != nil {
		log.Warn().Err(err).Str("notify", opts.Notify).Msg("notifications disabled")
		publisher = notify.NewNoopPublisher()
	}

	registry, err := collections.NewRegistry(&collections.Config{
		Client:    client,
		Publisher: publisher,
		Logger:    &log,
	})
	if err != nil {
		_ = publisher.Close()
		_ = client.Close(context.Background())
		return nil, err
	}

	return &session{client: client, publisher: publisher, registry: registry}, nil
}

// collection opens the collection named by --database and --collection.
func (s *session) collection(ctx context.Context, opts *Options) (*collections.StructCollection, error) {
	if opts.Collection == "" {
		return nil, fmt.Errorf("--collection is required")
	}
	return s.registry.Get(ctx, opts.Database, opts.Collection)
}

func (s *session) Close(ctx context.Context) {
	_ = s.registry.Close(ctx)
	_ = s.publisher.Close()
	_ = s.client.Close(ctx)
}

// withCollection runs fn against the selected collection.
func withCollection(cmd *cobra.Command, env *Environment, opts *Options, fn func(ctx context.Context, coll *collections.StructCollection) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := openSession(ctx, env, opts)
	if err != nil {
		return err
	}
	defer s.Close(context.Background())

	coll, err := s.collection(ctx, opts)
	if err != nil {
		return err
	}
	return fn(ctx, coll)
}
