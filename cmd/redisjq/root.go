package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/flaneurtv/redisjq"
	"github.com/flaneurtv/redisjq/audit"
	"github.com/flaneurtv/redisjq/engine"
	"github.com/flaneurtv/redisjq/store/redis"
)

// app holds what every subcommand shares. Flags are bound straight onto
// cfg after REDISJQ_* variables were applied, so flags win over env.
type app struct {
	cfg      redisjq.Config
	logLevel string
	audit    bool

	logger *slog.Logger
	client *goredis.Client
	eng    *engine.Engine
}

func newRootCmd() *cobra.Command {
	a := &app{cfg: redisjq.DefaultConfig()}
	redisjq.FromEnv(&a.cfg)

	root := &cobra.Command{
		Use:               "redisjq",
		Short:             "Redis-backed priority job queue",
		SilenceUsage:      true,
		PersistentPreRunE: a.open,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfg.RedisAddr, "redis", a.cfg.RedisAddr, "Redis address (env REDISJQ_REDIS_ADDR)")
	flags.StringVar(&a.cfg.KeyPrefix, "prefix", a.cfg.KeyPrefix, "key prefix (env REDISJQ_KEY_PREFIX)")
	flags.DurationVar(&a.cfg.DefaultLease, "default-lease", a.cfg.DefaultLease, "lease used when none is given")
	flags.IntVar(&a.cfg.MaxAttempts, "max-attempts", a.cfg.MaxAttempts, "default attempt budget, 0 for unlimited")
	flags.IntVar(&a.cfg.MaxPending, "max-pending", a.cfg.MaxPending, "pending jobs allowed per queue, 0 for unlimited")
	flags.BoolVar(&a.cfg.LazyReclaim, "lazy-reclaim", a.cfg.LazyReclaim, "reclaim expired leases on dispatch")
	flags.StringVar(&a.logLevel, "log-level", "warn", "debug, info, warn or error")
	flags.BoolVar(&a.audit, "audit", false, "write an audit record to stderr for every job lifecycle event")

	root.AddCommand(
		a.addCmd(),
		a.dispatchCmd(),
		a.ackCmd(),
		a.nackCmd(),
		a.extendCmd(),
		a.getCmd(),
		a.listCmd(),
		a.statsCmd(),
		a.sweepCmd(),
		a.workersCmd(),
		a.dlqCmd(),
		a.workCmd(),
	)
	return root
}

func (a *app) open(cmd *cobra.Command, _ []string) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(a.logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q", a.logLevel)
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	a.client = goredis.NewClient(&goredis.Options{
		Addr:                  a.cfg.RedisAddr,
		ContextTimeoutEnabled: true,
	})
	s := redis.New(a.client,
		redis.WithKeyPrefix(a.cfg.KeyPrefix),
		redis.WithLogger(a.logger),
	)

	opts := []engine.Option{
		engine.WithConfig(a.cfg),
		engine.WithLogger(a.logger),
	}
	if a.audit {
		trail := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), nil))
		opts = append(opts, engine.WithExtension(audit.New(audit.SlogRecorder(trail), audit.WithLogger(a.logger))))
	}
	eng, err := engine.New(s, opts...)
	if err != nil {
		return err
	}
	a.eng = eng
	return nil
}

func (a *app) close() error {
	if a.client == nil {
		return nil
	}
	return a.client.Close()
}

// printJSON writes v as one line of JSON.
func printJSON(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

// readPayload returns the single argument, or stdin when it is absent or "-".
func readPayload(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 1 && args[0] != "-" {
		return []byte(args[0]), nil
	}
	in := cmd.InOrStdin()
	if in == nil {
		in = os.Stdin
	}
	return io.ReadAll(in)
}
