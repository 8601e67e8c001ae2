package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KevoDB/tovs/pkg/common/log"
	"github.com/KevoDB/tovs/pkg/config"
	"github.com/KevoDB/tovs/pkg/telemetry"
)

func newTestShell(t *testing.T) (*shell, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	cfg := config.NewDefaultConfig("")
	sh := newShell(cfg, log.NewNopLogger(), telemetry.NewNoop(), &out)
	t.Cleanup(func() {
		if sh.st != nil {
			sh.close()
		}
	})
	return sh, &out
}

func run(t *testing.T, sh *shell, out *bytes.Buffer, line string) string {
	t.Helper()
	out.Reset()
	assert.False(t, sh.execute(context.Background(), line))
	return out.String()
}

func TestShellSession(t *testing.T) {
	sh, out := newTestShell(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "people.db")

	assert.Contains(t, run(t, sh, out, "GET 1"), "no store open")
	assert.Contains(t, run(t, sh, out, ".open "+path), "Store opened")
	assert.Equal(t, "tovs:"+path+"> ", sh.prompt())

	assert.Contains(t, run(t, sh, out, "INSERT 5 Ada Lovelace first programmer"), "Record 5 inserted")
	assert.Contains(t, run(t, sh, out, "insert 1 Alan Turing"), "Record 1 inserted")
	assert.Contains(t, run(t, sh, out, "INSERT 5 Ada Lovelace"), "duplicate key")

	got := run(t, sh, out, "GET 5")
	assert.Contains(t, got, "first programmer")
	assert.Contains(t, got, "block 0, position 1")

	assert.Contains(t, run(t, sh, out, "LOAD 3"), "2 records loaded")
	assert.Contains(t, run(t, sh, out, "SCAN"), "4 records found")

	assert.Contains(t, run(t, sh, out, "DELETE 2"), "Record 2 deleted")
	assert.Contains(t, run(t, sh, out, "GET 2"), "Record 2 not found")
	assert.Contains(t, run(t, sh, out, ".compact"), "1 deleted records removed")
	assert.Contains(t, run(t, sh, out, "PURGE 3"), "1 records with key 3 removed")
	assert.Contains(t, run(t, sh, out, ".header"), "records=2")
	assert.Contains(t, run(t, sh, out, ".verify"), "OK")
	assert.Contains(t, run(t, sh, out, ".dump 0"), "records in block 0")
	assert.Contains(t, run(t, sh, out, ".dump 9"), "out of range")
	assert.Contains(t, run(t, sh, out, ".stats"), "insert_ops")

	exported := filepath.Join(dir, "people.tovs")
	assert.Contains(t, run(t, sh, out, ".export "+exported+" snappy"), "2 records exported")
	assert.Contains(t, run(t, sh, out, ".export "+exported+" lz4"), "unknown compression codec")

	other := filepath.Join(dir, "copy.db")
	assert.Contains(t, run(t, sh, out, ".open "+other), "Store opened")
	assert.Contains(t, run(t, sh, out, ".import "+exported), "2 records imported, 0 duplicates skipped")
	assert.Contains(t, run(t, sh, out, "SCAN"), "2 records found")

	assert.Contains(t, run(t, sh, out, ".close"), "closed")
	assert.Equal(t, "tovs> ", sh.prompt())
}

func TestShellArgumentErrors(t *testing.T) {
	sh, out := newTestShell(t)
	run(t, sh, out, ".open "+filepath.Join(t.TempDir(), "s.db"))

	testCases := []struct {
		line string
		want string
	}{
		{"GET", "missing key argument"},
		{"GET abc", "invalid key"},
		{"GET 99999999999", "invalid key"},
		{"INSERT 1 Ada", "usage: INSERT"},
		{"INSERT 1 Ada,B Lovelace", "reserved character"},
		{"LOAD x", "invalid count"},
		{".dump", "missing block argument"},
		{".import", "missing file argument"},
		{"FROB", "unknown command: FROB"},
	}

	for _, tc := range testCases {
		t.Run(tc.line, func(t *testing.T) {
			assert.Contains(t, run(t, sh, out, tc.line), tc.want)
		})
	}
}

func TestShellExit(t *testing.T) {
	sh, out := newTestShell(t)
	require.NoError(t, sh.open(filepath.Join(t.TempDir(), "s.db")))

	assert.True(t, sh.execute(context.Background(), ".EXIT"))
	assert.Nil(t, sh.st)
	assert.True(t, strings.HasSuffix(out.String(), "Goodbye!\n"))
}

func TestLoadConfigFlagsOverride(t *testing.T) {
	t.Setenv("TOVS_BLOCK_SIZE", "512")
	t.Setenv("TOVS_LOG_LEVEL", "debug")

	cfg, err := loadConfig(options{BlockSize: 128, StorePath: "data.db"})
	require.NoError(t, err)
	assert.Equal(t, 128, cfg.BlockSize)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "data.db", cfg.Path)

	_, err = loadConfig(options{BlockSize: 10})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
