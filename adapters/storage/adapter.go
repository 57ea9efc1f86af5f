// Package storage persists cost and usage datasets.
//
// Datasets are exchanged as JSON documents (see Document). A Store keeps
// named, timestamped documents so processed runs can be listed, reloaded and
// compared. Supported backends: file, memory.
package storage

import (
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"costrules/internal/errors"
)

// Backend is a storage backend type
type Backend string

const (
	BackendFile   Backend = "file"
	BackendMemory Backend = "memory"
)

// Store is the storage interface
type Store interface {
	// Save stores a dataset, assigning an ID and timestamp when missing
	Save(ctx context.Context, ds *StoredDataset) error

	// Get retrieves a dataset by ID
	Get(ctx context.Context, id string) (*StoredDataset, error)

	// List lists datasets, newest first
	List(ctx context.Context, filter *ListFilter) ([]*StoredDataset, error)

	// Delete removes a dataset
	Delete(ctx context.Context, id string) error

	// GetLatest gets the newest dataset saved under name
	GetLatest(ctx context.Context, name string) (*StoredDataset, error)

	// Compare compares the totals of two datasets
	Compare(ctx context.Context, oldID, newID string) (*CompareResult, error)

	// Close closes the store
	Close() error
}

// StoredDataset is a stored dataset document
type StoredDataset struct {
	// ID is unique identifier
	ID string `json:"id"`

	// Name groups datasets, e.g. "2020-01-processed"
	Name string `json:"name"`

	// RunID of the processing run that produced the dataset, if any
	RunID string `json:"run_id,omitempty"`

	// CreatedAt timestamp
	CreatedAt time.Time `json:"created_at"`

	// Metadata
	Metadata map[string]string `json:"metadata,omitempty"`

	Document *Document `json:"document"`
}

// ListFilter filters dataset listing
type ListFilter struct {
	Name   string
	Since  time.Time
	Until  time.Time
	Limit  int
	Offset int
}

func (f *ListFilter) matches(ds *StoredDataset) bool {
	if f == nil {
		return true
	}
	if f.Name != "" && ds.Name != f.Name {
		return false
	}
	if !f.Since.IsZero() && ds.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && ds.CreatedAt.After(f.Until) {
		return false
	}
	return true
}

func (f *ListFilter) page(results []*StoredDataset) []*StoredDataset {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	if f == nil {
		return results
	}
	if f.Offset > 0 {
		if f.Offset >= len(results) {
			return nil
		}
		results = results[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(results) {
		results = results[:f.Limit]
	}
	return results
}

// Totals sums a document's cost and usage values
type Totals struct {
	Cost  decimal.Decimal `json:"cost"`
	Usage decimal.Decimal `json:"usage"`
}

// DocumentTotals sums every finite value of doc
func DocumentTotals(doc *Document) Totals {
	sum := func(contexts []ContextDoc) decimal.Decimal {
		total := decimal.Zero
		for _, c := range contexts {
			for _, e := range c.Entries {
				if d, ok := toDecimal(float64(e.Value)); ok {
					total = total.Add(d)
				}
			}
		}
		return total
	}
	if doc == nil {
		return Totals{Cost: decimal.Zero, Usage: decimal.Zero}
	}
	return Totals{Cost: sum(doc.Cost), Usage: sum(doc.Usage)}
}

func toDecimal(f float64) (decimal.Decimal, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(f), true
}

// CompareResult is a comparison between two datasets
type CompareResult struct {
	OldID      string          `json:"old_id"`
	NewID      string          `json:"new_id"`
	Old        Totals          `json:"old"`
	New        Totals          `json:"new"`
	CostDelta  decimal.Decimal `json:"cost_delta"`
	UsageDelta decimal.Decimal `json:"usage_delta"`
	CreatedAt  time.Time       `json:"created_at"`
}

func compare(oldDS, newDS *StoredDataset) *CompareResult {
	oldTotals := DocumentTotals(oldDS.Document)
	newTotals := DocumentTotals(newDS.Document)
	return &CompareResult{
		OldID:      oldDS.ID,
		NewID:      newDS.ID,
		Old:        oldTotals,
		New:        newTotals,
		CostDelta:  newTotals.Cost.Sub(oldTotals.Cost),
		UsageDelta: newTotals.Usage.Sub(oldTotals.Usage),
		CreatedAt:  time.Now(),
	}
}

func prepare(ds *StoredDataset) error {
	if ds == nil || ds.Document == nil {
		return errors.New(errors.TypeConfig, "dataset has no document")
	}
	if ds.ID == "" {
		ds.ID = uuid.New().String()
	}
	if ds.CreatedAt.IsZero() {
		ds.CreatedAt = time.Now().UTC()
	}
	return nil
}

// FileStore is a file-based storage backend: one JSON file per dataset
type FileStore struct {
	basePath string
	mu       sync.RWMutex
}

// NewFileStore creates a file store
func NewFileStore(basePath string) (*FileStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, errors.Wrapf(errors.TypeInternal, err, "create storage directory %s", basePath)
	}
	return &FileStore{basePath: basePath}, nil
}

func (s *FileStore) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", errors.Newf(errors.TypeConfig, "invalid dataset id %q", id)
	}
	return filepath.Join(s.basePath, id+".json"), nil
}

func (s *FileStore) Save(ctx context.Context, ds *StoredDataset) error {
	if err := prepare(ds); err != nil {
		return err
	}
	path, err := s.path(ds.ID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(ds)
	if err != nil {
		return errors.Internal("encode dataset", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return errors.Wrapf(errors.TypeInternal, err, "write dataset %s", ds.ID)
	}
	return nil
}

func (s *FileStore) Get(ctx context.Context, id string) (*StoredDataset, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return readStored(path, id)
}

func readStored(path, id string) (*StoredDataset, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.NotFound("dataset", id)
	}
	if err != nil {
		return nil, errors.Wrapf(errors.TypeInternal, err, "read dataset %s", id)
	}
	var ds StoredDataset
	if err := json.Unmarshal(raw, &ds); err != nil {
		return nil, errors.Parsing("decode dataset "+id, err)
	}
	return &ds, nil
}

func (s *FileStore) List(ctx context.Context, filter *ListFilter) ([]*StoredDataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, errors.Wrapf(errors.TypeInternal, err, "read storage %s", s.basePath)
	}

	var results []*StoredDataset
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		ds, err := readStored(filepath.Join(s.basePath, entry.Name()), id)
		if err != nil {
			// Skip foreign or corrupt files
			continue
		}
		if filter.matches(ds) {
			results = append(results, ds)
		}
	}
	return filter.page(results), nil
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return errors.NotFound("dataset", id)
		}
		return errors.Wrapf(errors.TypeInternal, err, "delete dataset %s", id)
	}
	return nil
}

func (s *FileStore) GetLatest(ctx context.Context, name string) (*StoredDataset, error) {
	results, err := s.List(ctx, &ListFilter{Name: name, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, errors.NotFound("dataset named", name)
	}
	return results[0], nil
}

func (s *FileStore) Compare(ctx context.Context, oldID, newID string) (*CompareResult, error) {
	oldDS, err := s.Get(ctx, oldID)
	if err != nil {
		return nil, err
	}
	newDS, err := s.Get(ctx, newID)
	if err != nil {
		return nil, err
	}
	return compare(oldDS, newDS), nil
}

func (s *FileStore) Close() error {
	return nil
}

// MemoryStore is an in-memory storage backend (for testing)
type MemoryStore struct {
	datasets map[string]*StoredDataset
	mu       sync.RWMutex
}

// NewMemoryStore creates a memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		datasets: make(map[string]*StoredDataset),
	}
}

func (s *MemoryStore) Save(ctx context.Context, ds *StoredDataset) error {
	if err := prepare(ds); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.datasets[ds.ID] = ds
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*StoredDataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ds, ok := s.datasets[id]
	if !ok {
		return nil, errors.NotFound("dataset", id)
	}
	return ds, nil
}

func (s *MemoryStore) List(ctx context.Context, filter *ListFilter) ([]*StoredDataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*StoredDataset
	for _, ds := range s.datasets {
		if filter.matches(ds) {
			results = append(results, ds)
		}
	}
	return filter.page(results), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.datasets[id]; !ok {
		return errors.NotFound("dataset", id)
	}
	delete(s.datasets, id)
	return nil
}

func (s *MemoryStore) GetLatest(ctx context.Context, name string) (*StoredDataset, error) {
	results, err := s.List(ctx, &ListFilter{Name: name, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, errors.NotFound("dataset named", name)
	}
	return results[0], nil
}

func (s *MemoryStore) Compare(ctx context.Context, oldID, newID string) (*CompareResult, error) {
	oldDS, err := s.Get(ctx, oldID)
	if err != nil {
		return nil, err
	}
	newDS, err := s.Get(ctx, newID)
	if err != nil {
		return nil, err
	}
	return compare(oldDS, newDS), nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// StoreFactory creates stores by backend type
func StoreFactory(backend Backend, config map[string]string) (Store, error) {
	switch backend {
	case BackendFile:
		path := config["path"]
		if path == "" {
			path = ".costrules"
		}
		return NewFileStore(path)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, errors.Newf(errors.TypeConfig, "unsupported backend: %s", backend)
	}
}

// Ensure interfaces are implemented
var _ io.Closer = (*FileStore)(nil)
var _ io.Closer = (*MemoryStore)(nil)
