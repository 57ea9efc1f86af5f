package storage

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costrules/internal/errors"
)

func testDocument(cost, usage float64) *Document {
	return &Document{
		Start: jan2020,
		Size:  2,
		Cost: []ContextDoc{{Product: "AmazonS3", Entries: []Entry{
			{Hour: 0, Product: "AmazonS3", Value: Value(cost)},
		}}},
		Usage: []ContextDoc{{Product: "AmazonS3", Entries: []Entry{
			{Hour: 1, Product: "AmazonS3", Value: Value(usage)},
		}}},
	}
}

func stores(t *testing.T) map[string]Store {
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "datasets"))
	require.NoError(t, err)
	return map[string]Store{
		"file":   fs,
		"memory": NewMemoryStore(),
	}
}

func TestStoreSaveGetDelete(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			ds := &StoredDataset{Name: "jan", Document: testDocument(1, 2)}
			require.NoError(t, store.Save(ctx, ds))
			assert.NotEmpty(t, ds.ID)
			assert.False(t, ds.CreatedAt.IsZero())

			got, err := store.Get(ctx, ds.ID)
			require.NoError(t, err)
			assert.Equal(t, "jan", got.Name)
			assert.Equal(t, Value(1), got.Document.Cost[0].Entries[0].Value)

			require.NoError(t, store.Delete(ctx, ds.ID))
			_, err = store.Get(ctx, ds.ID)
			assert.True(t, errors.IsType(err, errors.TypeNotFound))
			assert.True(t, errors.IsType(store.Delete(ctx, ds.ID), errors.TypeNotFound))

			assert.Error(t, store.Save(ctx, &StoredDataset{Name: "empty"}))
		})
	}
}

func TestStoreListAndLatest(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC)
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for i, n := range []string{"jan", "jan", "feb"} {
				ds := &StoredDataset{
					ID:        n + "-" + string(rune('a'+i)),
					Name:      n,
					CreatedAt: base.Add(time.Duration(i) * time.Hour),
					Document:  testDocument(float64(i), 0),
				}
				require.NoError(t, store.Save(ctx, ds))
			}

			all, err := store.List(ctx, nil)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "feb-c", all[0].ID, "newest first")

			jan, err := store.List(ctx, &ListFilter{Name: "jan"})
			require.NoError(t, err)
			assert.Len(t, jan, 2)

			page, err := store.List(ctx, &ListFilter{Offset: 1, Limit: 1})
			require.NoError(t, err)
			require.Len(t, page, 1)
			assert.Equal(t, "jan-b", page[0].ID)

			since, err := store.List(ctx, &ListFilter{Since: base.Add(30 * time.Minute)})
			require.NoError(t, err)
			assert.Len(t, since, 2)

			latest, err := store.GetLatest(ctx, "jan")
			require.NoError(t, err)
			assert.Equal(t, "jan-b", latest.ID)

			_, err = store.GetLatest(ctx, "mar")
			assert.True(t, errors.IsType(err, errors.TypeNotFound))
		})
	}
}

func TestStoreCompare(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			oldDS := &StoredDataset{Name: "run", Document: testDocument(1.25, 10)}
			newDS := &StoredDataset{Name: "run", Document: testDocument(1.0, 12)}
			require.NoError(t, store.Save(ctx, oldDS))
			require.NoError(t, store.Save(ctx, newDS))

			result, err := store.Compare(ctx, oldDS.ID, newDS.ID)
			require.NoError(t, err)
			assert.True(t, result.CostDelta.Equal(decimal.RequireFromString("-0.25")), "got %s", result.CostDelta)
			assert.True(t, result.UsageDelta.Equal(decimal.NewFromInt(2)), "got %s", result.UsageDelta)

			_, err = store.Compare(ctx, oldDS.ID, "missing")
			assert.Error(t, err)
		})
	}
}

func TestDocumentTotalsSkipsNonFinite(t *testing.T) {
	doc := testDocument(3, 0)
	doc.Cost[0].Entries = append(doc.Cost[0].Entries, Entry{Hour: 1, Value: Value(math.NaN())})
	totals := DocumentTotals(doc)
	assert.True(t, totals.Cost.Equal(decimal.NewFromInt(3)))
	assert.True(t, DocumentTotals(nil).Cost.IsZero())
}

func TestFileStoreRejectsPathIDs(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = fs.Get(context.Background(), "../escape")
	assert.True(t, errors.IsType(err, errors.TypeConfig))
}

func TestFileStoreListSkipsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.json"), []byte("not json"), 0o644))
	require.NoError(t, fs.Save(context.Background(), &StoredDataset{Name: "x", Document: testDocument(1, 1)}))

	all, err := fs.List(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStoreFactory(t *testing.T) {
	s, err := StoreFactory(BackendFile, map[string]string{"path": t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = StoreFactory(BackendMemory, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = StoreFactory("s3", nil)
	assert.True(t, errors.IsType(err, errors.TypeConfig))
}
