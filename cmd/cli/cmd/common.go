package cmd

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"costrules/adapters/rules"
	"costrules/adapters/storage"
	"costrules/core/catalog"
	"costrules/core/dataset"
	"costrules/core/postproc"
	"costrules/internal/config"
	"costrules/internal/logging"
)

// rule and dataset flags shared by run and explain
var (
	rulePaths   []string
	dataPath    string
	userTagKeys []string
	storePath   string
)

// loadRules reads the rule files named on the command line, falling back to
// the configured paths
func loadRules() ([]*postproc.RuleConfig, error) {
	paths := rulePaths
	if len(paths) == 0 {
		paths = config.Get().Rules.Paths
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no rule files: pass --rules or set rules.paths in the config")
	}
	return rules.LoadFiles(paths...)
}

// newCatalog builds the catalog a CLI run resolves tag values against
func newCatalog() *catalog.Catalog {
	return catalog.New(catalog.WithAutoCreate(), catalog.WithUserTagKeys(userTagKeys...))
}

func openStore() (storage.Store, error) {
	if storePath == "" {
		return nil, fmt.Errorf("--store is required")
	}
	return storage.StoreFactory(storage.BackendFile, map[string]string{"path": storePath})
}

// loadDataset reads --data, or the newest stored dataset called name when
// name is set
func loadDataset(ctx context.Context, cat *catalog.Catalog, name string) (*dataset.CostAndUsage, error) {
	if name == "" {
		if dataPath == "" {
			return nil, fmt.Errorf("--data is required")
		}
		return storage.ReadFile(dataPath, cat)
	}

	store, err := openStore()
	if err != nil {
		return nil, err
	}
	defer store.Close()

	stored, err := store.GetLatest(ctx, name)
	if err != nil {
		return nil, err
	}
	return storage.Decode(stored.Document, cat)
}

func newProcessor(configs []*postproc.RuleConfig, cat *catalog.Catalog) (*postproc.Processor, error) {
	cfg := config.Get()
	return postproc.NewProcessor(configs, cat.Services(),
		postproc.WithLogger(logging.Logger),
		postproc.WithWorkers(cfg.Engine.Workers),
		postproc.WithCacheSize(cfg.Engine.CacheMaxEntries),
	)
}

// formatNumber renders v exactly, without float noise
func formatNumber(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Sprint(v)
	}
	return decimal.NewFromFloat(v).String()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
