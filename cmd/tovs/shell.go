package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/KevoDB/tovs/pkg/backup"
	"github.com/KevoDB/tovs/pkg/common/log"
	"github.com/KevoDB/tovs/pkg/config"
	"github.com/KevoDB/tovs/pkg/record"
	"github.com/KevoDB/tovs/pkg/store"
	"github.com/KevoDB/tovs/pkg/telemetry"
)

// Command completer for readline
var completer = readline.NewPrefixCompleter(
	readline.PcItem(".help"),
	readline.PcItem(".open"),
	readline.PcItem(".close"),
	readline.PcItem(".exit"),
	readline.PcItem(".stats"),
	readline.PcItem(".header"),
	readline.PcItem(".verify"),
	readline.PcItem(".compact"),
	readline.PcItem(".dump"),
	readline.PcItem(".export"),
	readline.PcItem(".import"),
	readline.PcItem("INSERT"),
	readline.PcItem("GET"),
	readline.PcItem("DELETE"),
	readline.PcItem("PURGE"),
	readline.PcItem("SCAN"),
	readline.PcItem("LOAD"),
)

const helpText = `
tovs - A block-structured single-file record store.

Usage:
  tovs [options] [store_path]   - Start with an optional store path

Options:
  -config FILE            - Load configuration from a YAML or JSON file
  -block-size N           - Block payload capacity in bytes (default 256)
  -log-level LEVEL        - debug, info, warn or error
  -telemetry              - Export spans and metrics to stdout

Commands:
  .help                   - Show this help message
  .open PATH              - Open or create a store at PATH
  .close                  - Close the current store
  .exit                   - Exit the program
  .stats                  - Show operation statistics
  .header                 - Show the store header
  .verify                 - Check the store file for consistency
  .compact                - Physically remove all deleted records
  .dump N                 - Show the active records of block N
  .export FILE [CODEC]    - Export all records (zstd, snappy or none)
  .import FILE            - Import records from an export

  INSERT key first last [description...]
                          - Insert a record
  GET key                 - Find a record by key
  DELETE key              - Mark a record as deleted
  PURGE key               - Physically remove every record with key
  SCAN                    - List all active records
  LOAD n                  - Insert synthesized records 1..n
`

var errNoStore = errors.New("no store open")

// shell executes commands against at most one open store
type shell struct {
	cfg    *config.Config
	logger log.Logger
	tel    telemetry.Telemetry
	out    io.Writer

	st *store.Store
}

func newShell(cfg *config.Config, logger log.Logger, tel telemetry.Telemetry, out io.Writer) *shell {
	return &shell{cfg: cfg, logger: logger, tel: tel, out: out}
}

func (sh *shell) prompt() string {
	if sh.st != nil {
		return fmt.Sprintf("tovs:%s> ", sh.st.Path())
	}
	return "tovs> "
}

func (sh *shell) open(path string) error {
	if sh.st != nil {
		if err := sh.close(); err != nil {
			return err
		}
	}

	st, err := store.Open(path,
		store.WithConfig(sh.cfg),
		store.WithLogger(sh.logger),
		store.WithTelemetry(sh.tel),
	)
	if err != nil {
		return err
	}
	sh.st = st
	return nil
}

func (sh *shell) close() error {
	if sh.st == nil {
		return errNoStore
	}
	err := sh.st.Close()
	sh.st = nil
	return err
}

// execute runs one command line. It returns true when the shell should exit.
func (sh *shell) execute(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}

	cmd := strings.ToUpper(parts[0])
	if strings.HasPrefix(cmd, ".") {
		cmd = strings.ToLower(cmd)
	}

	if cmd == ".exit" {
		if sh.st != nil {
			sh.close()
		}
		fmt.Fprintln(sh.out, "Goodbye!")
		return true
	}

	if err := sh.dispatch(ctx, cmd, parts[1:]); err != nil {
		fmt.Fprintf(sh.out, "Error: %s\n", err)
	}
	return false
}

func (sh *shell) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case ".help":
		fmt.Fprint(sh.out, helpText)
		return nil
	case ".open":
		if len(args) < 1 {
			return errors.New("missing path argument")
		}
		if err := sh.open(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "Store opened at %s (%s)\n", args[0], sh.st.Header())
		return nil
	case ".close":
		path := ""
		if sh.st != nil {
			path = sh.st.Path()
		}
		if err := sh.close(); err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "Store %s closed\n", path)
		return nil
	}

	if sh.st == nil {
		return errNoStore
	}

	switch cmd {
	case ".stats":
		return sh.printStats()
	case ".header":
		fmt.Fprintln(sh.out, sh.st.Header())
		return nil
	case ".verify":
		report, err := sh.st.Verify(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(sh.out, report)
		if report.OK() {
			fmt.Fprintln(sh.out, "OK")
		}
		return nil
	case ".compact":
		removed, err := sh.st.Compact(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "%d deleted records removed\n", removed)
		return nil
	case ".dump":
		return sh.dump(ctx, args)
	case ".export":
		return sh.export(ctx, args)
	case ".import":
		return sh.importFile(ctx, args)
	case "INSERT":
		return sh.insert(ctx, args)
	case "GET":
		return sh.get(ctx, args)
	case "DELETE":
		key, err := parseKey(args)
		if err != nil {
			return err
		}
		if err := sh.st.LogicalDelete(ctx, key); err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "Record %d deleted\n", key)
		return nil
	case "PURGE":
		key, err := parseKey(args)
		if err != nil {
			return err
		}
		removed, err := sh.st.PhysicalDelete(ctx, key)
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "%d records with key %d removed\n", removed, key)
		return nil
	case "SCAN":
		count := 0
		err := sh.st.Scan(ctx, func(loc store.Location, r record.Record) bool {
			fmt.Fprintf(sh.out, "[%d:%d] %s\n", loc.Block, loc.Position, r)
			count++
			return true
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "%d records found\n", count)
		return nil
	case "LOAD":
		if len(args) < 1 {
			return errors.New("missing count argument")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid count %q", args[0])
		}
		inserted, err := sh.st.BulkLoad(ctx, n)
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "%d records loaded\n", inserted)
		return nil
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func parseKey(args []string) (int32, error) {
	if len(args) < 1 {
		return 0, errors.New("missing key argument")
	}
	key, err := strconv.ParseInt(args[0], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid key %q", args[0])
	}
	return int32(key), nil
}

func (sh *shell) insert(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return errors.New("usage: INSERT key first last [description...]")
	}
	key, err := parseKey(args)
	if err != nil {
		return err
	}

	rec := record.Record{
		Key:         key,
		FirstName:   args[1],
		LastName:    args[2],
		Description: strings.Join(args[3:], " "),
	}
	if err := sh.st.Insert(ctx, rec); err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "Record %d inserted\n", key)
	return nil
}

func (sh *shell) get(ctx context.Context, args []string) error {
	key, err := parseKey(args)
	if err != nil {
		return err
	}
	loc, r, err := sh.st.Search(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		fmt.Fprintf(sh.out, "Record %d not found\n", key)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "%s\nat %s\n", r, loc)
	return nil
}

func (sh *shell) dump(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("missing block argument")
	}
	index, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid block index %q", args[0])
	}
	records, err := sh.st.DumpBlock(ctx, uint32(index))
	if err != nil {
		return err
	}
	for _, r := range records {
		fmt.Fprintln(sh.out, r)
	}
	fmt.Fprintf(sh.out, "%d records in block %d\n", len(records), index)
	return nil
}

func (sh *shell) export(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("missing file argument")
	}
	codec := backup.CodecZstd
	if len(args) > 1 {
		c, err := backup.ParseCodec(args[1])
		if err != nil {
			return err
		}
		codec = c
	}

	f, err := os.Create(args[0])
	if err != nil {
		return err
	}
	frame, err := sh.st.ExportTo(ctx, f, codec)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "%d records exported to %s (%s)\n", frame.Count, args[0], frame.Codec)
	return nil
}

func (sh *shell) importFile(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("missing file argument")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	imported, skipped, err := sh.st.ImportFrom(ctx, f)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "%d records imported, %d duplicates skipped\n", imported, skipped)
	return nil
}

func (sh *shell) printStats() error {
	stats := sh.st.Stats()
	for _, key := range slices.Sorted(maps.Keys(stats)) {
		fmt.Fprintf(sh.out, "  %s: %v\n", key, stats[key])
	}
	return nil
}
