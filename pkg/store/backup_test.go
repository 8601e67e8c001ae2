package store

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KevoDB/tovs/pkg/backup"
	"github.com/KevoDB/tovs/pkg/record"
)

func TestExportImport(t *testing.T) {
	ctx := context.Background()

	src := newTestStore(t)
	_, err := src.BulkLoad(ctx, 6)
	require.NoError(t, err)
	require.NoError(t, src.LogicalDelete(ctx, 4))

	var buf bytes.Buffer
	frame, err := src.ExportTo(ctx, &buf, backup.CodecZstd)
	require.NoError(t, err)
	assert.Equal(t, uint32(6), frame.Count)

	dst := newTestStore(t)
	require.NoError(t, dst.Insert(ctx, person(2)))
	require.NoError(t, dst.Insert(ctx, person(10)))

	imported, skipped, err := dst.ImportFrom(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 5, imported)
	assert.Equal(t, 1, skipped)

	records, err := dst.Enumerate(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 3, 5, 6, 10}, keysOf(records))

	// The existing record for key 2 wins over the imported one
	_, r, err := dst.Search(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Grace", r.FirstName)

	raw := rawRecords(t, dst)
	require.Len(t, raw, 7)
	assert.Equal(t, record.Record{Key: 4, FirstName: "first4", LastName: "last4",
		Description: "synthetic record number 4", Tombstone: true}, raw[3])

	report, err := dst.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK(), report.String())
}

func TestImportIntoEmptyStoreRoundTrips(t *testing.T) {
	ctx := context.Background()

	src := newTestStore(t)
	_, err := src.BulkLoad(ctx, 9)
	require.NoError(t, err)
	require.NoError(t, src.LogicalDelete(ctx, 3))

	var buf bytes.Buffer
	_, err = src.ExportTo(ctx, &buf, backup.CodecSnappy)
	require.NoError(t, err)

	dst := newTestStore(t)
	_, _, err = dst.ImportFrom(ctx, &buf)
	require.NoError(t, err)

	assert.Equal(t, src.Header(), dst.Header())
	assert.Equal(t, fileBytes(t, src), fileBytes(t, dst))
}

func TestImportRejectsDamagedExport(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Insert(ctx, person(1)))
	before := fileBytes(t, s)

	_, _, err := s.ImportFrom(ctx, bytes.NewReader([]byte("not an export at all, definitely")))
	assert.ErrorIs(t, err, backup.ErrInvalidMagic)
	assert.Equal(t, before, fileBytes(t, s))
}
