package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/joho/godotenv"

	"github.com/KevoDB/tovs/pkg/common/log"
	"github.com/KevoDB/tovs/pkg/config"
	"github.com/KevoDB/tovs/pkg/telemetry"
)

// options holds the command line flags
type options struct {
	ConfigFile string
	BlockSize  int
	LogLevel   string
	Telemetry  bool
	StorePath  string
}

func main() {
	opts := parseFlags()

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %s\n", err)
		os.Exit(1)
	}

	logger := log.NewStandardLogger(log.WithLevel(cfg.Level()))
	log.SetDefaultLogger(logger)

	tel, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing telemetry: %s\n", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error shutting down telemetry: %s\n", err)
		}
	}()

	sh := newShell(cfg, logger, tel, os.Stdout)
	if cfg.Path != "" {
		if err := sh.open(cfg.Path); err != nil {
			fmt.Fprintf(os.Stderr, "Error opening store: %s\n", err)
			os.Exit(1)
		}
		fmt.Printf("Store opened at %s\n", cfg.Path)
	}

	runInteractive(sh)
}

// parseFlags parses command line flags and returns the options
func parseFlags() options {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "tovs - A block-structured single-file record store\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: tovs [options] [store_path]\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(flag.CommandLine.Output(), "\nFor the list of commands, start tovs and type .help\n")
	}

	configFile := flag.String("config", "", "Configuration file (YAML or JSON)")
	blockSize := flag.Int("block-size", 0, "Block payload capacity in bytes (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	enableTelemetry := flag.Bool("telemetry", false, "Export spans and metrics to stdout")

	flag.Parse()

	var storePath string
	if flag.NArg() > 0 {
		storePath = flag.Arg(0)
	}

	return options{
		ConfigFile: *configFile,
		BlockSize:  *blockSize,
		LogLevel:   *logLevel,
		Telemetry:  *enableTelemetry,
		StorePath:  storePath,
	}
}

// loadConfig layers defaults, the config file, .env and TOVS_* variables,
// then flags
func loadConfig(opts options) (*config.Config, error) {
	cfg := config.NewDefaultConfig("")
	if opts.ConfigFile != "" {
		loaded, err := config.LoadFile(opts.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}

	cfg.Update(func(c *config.Config) {
		if opts.StorePath != "" {
			c.Path = opts.StorePath
		}
		if opts.BlockSize > 0 {
			c.BlockSize = opts.BlockSize
		}
		if opts.LogLevel != "" {
			c.LogLevel = opts.LogLevel
		}
		if opts.Telemetry {
			c.Telemetry = telemetry.DefaultConfig()
			c.Telemetry.LoadFromEnv()
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runInteractive reads commands until .exit, EOF or a signal
func runInteractive(sh *shell) {
	fmt.Println("tovs record store")
	fmt.Println("Enter .help for usage hints.")

	historyFile := filepath.Join(os.TempDir(), ".tovs_history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          sh.prompt(),
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing readline: %s\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	for {
		rl.SetPrompt(sh.prompt())

		line, readErr := rl.Readline()
		if readErr != nil {
			if readErr == readline.ErrInterrupt {
				if len(line) == 0 {
					break
				}
				continue
			} else if readErr == io.EOF {
				fmt.Println("Goodbye!")
				break
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %s\n", readErr)
			continue
		}

		if sh.execute(ctx, line) {
			return
		}
		if ctx.Err() != nil {
			break
		}
	}

	if sh.st != nil {
		if err := sh.close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing store: %s\n", err)
		}
	}
}
