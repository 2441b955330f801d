package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/bitask/bitask"

	"go.uber.org/zap"
)

// Exit codes the driver maps engine errors onto.
const (
	exitOK         = 0
	exitUsage      = 1
	exitNoRecord   = 2
	exitWriterLock = 3
	exitCorrupt    = 4
	exitIO         = 5
)

const usage = `bitask is a simple key-value store.

Usage:
  bitask [flags] put --key <key> --value <value>
  bitask [flags] ask --key <key>
  bitask [flags] remove --key <key>
  bitask [flags] compact

Flags:
  --path     database directory (default $BITASK_PATH or ./bitask-data)
  --config   yaml config file (default ./bitask.yaml)
  --verbose  debug logging
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := flag.NewFlagSet("bitask", flag.ContinueOnError)
	path := flags.String("path", "", "database directory")
	configPath := flags.String("config", "./bitask.yaml", "yaml config file")
	verbose := flags.Bool("verbose", false, "debug logging")
	flags.Usage = func() { fmt.Fprint(os.Stderr, usage) }

	if err := flags.Parse(args); err != nil {
		return exitUsage
	}
	if flags.NArg() < 1 {
		flags.Usage()
		return exitUsage
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	if *verbose {
		cfg.Verbose = true
	}
	if *path != "" {
		cfg.Path = *path
	} else if env := os.Getenv("BITASK_PATH"); env != "" {
		cfg.Path = env
	}
	if cfg.Path == "" {
		cfg.Path = "./bitask-data"
	}

	logger, err := initLogger(cfg.Verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return exitIO
	}
	defer logger.Sync()

	command := flags.Arg(0)
	commandArgs := flags.Args()[1:]

	opts := []bitask.Option{bitask.WithLogger(logger)}
	if cfg.DataFileSize > 0 {
		opts = append(opts, bitask.WithDataFileSize(cfg.DataFileSize))
	}
	if cfg.MmapReads {
		opts = append(opts, bitask.WithMmapReads())
	}

	db, err := bitask.Open(cfg.Path, opts...)
	if err != nil {
		logger.Error("failed to open database", zap.Error(err))
		return exitCode(err)
	}
	defer db.Close()

	if err = execute(db, command, commandArgs); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitUsage
		}
		logger.Error("command failed", zap.String("command", command), zap.Error(err))
		return exitCode(err)
	}
	return exitOK
}

func execute(db *bitask.DB, command string, args []string) error {
	switch command {
	case "put":
		flags := flag.NewFlagSet("put", flag.ContinueOnError)
		key := flags.String("key", "", "key to put")
		value := flags.String("value", "", "value to put")
		if err := flags.Parse(args); err != nil {
			return err
		}
		return db.Put([]byte(*key), []byte(*value))

	case "ask":
		flags := flag.NewFlagSet("ask", flag.ContinueOnError)
		key := flags.String("key", "", "key to ask for")
		if err := flags.Parse(args); err != nil {
			return err
		}
		value, err := db.Ask([]byte(*key))
		if err != nil {
			return err
		}
		fmt.Println(string(value))
		return nil

	case "remove":
		flags := flag.NewFlagSet("remove", flag.ContinueOnError)
		key := flags.String("key", "", "key to remove")
		if err := flags.Parse(args); err != nil {
			return err
		}
		return db.Remove([]byte(*key))

	case "compact":
		return db.Compact()

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func initLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	return cfg.Build()
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, bitask.ErrNoRecord):
		return exitNoRecord
	case errors.Is(err, bitask.ErrWriterLock):
		return exitWriterLock
	case errors.Is(err, bitask.ErrDataFileCorrupted):
		return exitCorrupt
	case errors.Is(err, bitask.ErrEmptyKey), errors.Is(err, bitask.ErrEmptyValue):
		return exitUsage
	default:
		return exitIO
	}
}
