// rafflectl inspects and repairs the raffle state from the command line:
// print the current state, list snapshots, restore one, undo and prune old
// snapshots. There is no redo: the redo slot lives only inside the server
// process, so use the redo action of the API instead. It talks to the storage
// directly, so run it against the same backend the server uses.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"pantry-raffle-backend/internal/common/config"
	apperrors "pantry-raffle-backend/internal/common/errors"
	"pantry-raffle-backend/internal/common/logger"
	"pantry-raffle-backend/internal/features/raffle/repository/factory"
	"pantry-raffle-backend/internal/features/raffle/service"
)

// usageError is reported with exit code 2.
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }
func (e *usageError) ExitCode() int { return 2 }

func usagef(format string, args ...interface{}) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var (
		backend string
		dataDir string
		dsn     string
		days    int
		verbose bool
	)

	flagSet := pflag.NewFlagSet("rafflectl", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&backend, "backend", "", "state backend: file or postgres (default: STATE_BACKEND)")
	flagSet.StringVar(&dataDir, "data-dir", "", "data directory for the file backend (default: DATA_DIR)")
	flagSet.StringVar(&dsn, "dsn", "", "postgres connection string (default: DATABASE_URL)")
	flagSet.IntVar(&days, "days", 0, "retention in days for cleanup")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log storage activity to stderr")
	flagSet.Usage = func() { printHelp(stderr, flagSet) }

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return usagef("%v", err)
	}

	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logger.Setup(stderr, "rafflectl", verbose)
	zerolog.SetGlobalLevel(level)

	rest := flagSet.Args()
	if len(rest) == 0 {
		printHelp(stderr, flagSet)
		return usagef("missing command")
	}
	command, rest := rest[0], rest[1:]

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if flagSet.Changed("backend") {
		cfg.Store.Backend = backend
	}
	if flagSet.Changed("data-dir") {
		cfg.Store.DataDir = dataDir
	}
	if flagSet.Changed("dsn") {
		cfg.Postgres.DSN = dsn
	}
	if err := cfg.Validate(); err != nil {
		return usagef("%v", err)
	}

	// проверяем аргументы до открытия хранилища
	switch command {
	case "show", "snapshots", "undo":
		if len(rest) != 0 {
			return usagef("%s takes no arguments", command)
		}
	case "restore":
		if len(rest) != 1 {
			return usagef("restore takes exactly one snapshot id")
		}
	case "cleanup":
		if len(rest) != 0 {
			return usagef("cleanup takes no arguments")
		}
		if !flagSet.Changed("days") {
			return usagef("cleanup requires --days")
		}
	default:
		return usagef("unknown command %q", command)
	}

	b, err := factory.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	store := service.NewStateStore(b.Repo)
	result, err := execute(ctx, store, command, rest, days)
	if err != nil {
		if appErr, ok := apperrors.AsAppError(err); ok && appErr.IsUserInput() {
			return fmt.Errorf("%s", appErr.Message)
		}
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func execute(ctx context.Context, store service.StateStore, command string, args []string, days int) (interface{}, error) {
	switch command {
	case "show":
		return store.LoadState(ctx)
	case "snapshots":
		return store.ListSnapshots(ctx)
	case "restore":
		return store.RestoreSnapshot(ctx, args[0])
	case "undo":
		return store.Undo(ctx)
	case "cleanup":
		deleted, err := store.CleanupOldSnapshots(ctx, days)
		if err != nil {
			return nil, err
		}
		return map[string]int{"deleted": deleted}, nil
	}
	return nil, usagef("unknown command %q", command)
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `rafflectl inspects and repairs the raffle state.

Usage:
  rafflectl [flags] show
  rafflectl [flags] snapshots
  rafflectl [flags] restore <snapshot-id>
  rafflectl [flags] undo
  rafflectl [flags] cleanup --days N

Flags:
%s`, flagSet.FlagUsages())
}
