package postproc

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"costrules/core/dataset"
	"costrules/core/expression"
	"costrules/core/types"
	"costrules/internal/errors"
	"costrules/internal/logging"
)

// DefaultCacheSize bounds the derived tag group memo
const DefaultCacheSize int64 = 100_000

// Processor applies an ordered list of rules to a dataset. Rules run strictly
// in order, so a rule can read values an earlier rule wrote.
type Processor struct {
	configs  []*RuleConfig
	services types.Services
	logger   *zap.Logger

	workers int
	cache   *tagGroupCache
}

// Option configures a Processor
type Option func(*processorOptions)

type processorOptions struct {
	logger    *zap.Logger
	workers   int
	cacheSize int64
}

// WithLogger sets the logger. The global logger is used otherwise.
func WithLogger(logger *zap.Logger) Option {
	return func(o *processorOptions) {
		o.logger = logger
	}
}

// WithWorkers bounds how many hours of a pass are computed concurrently
func WithWorkers(n int) Option {
	return func(o *processorOptions) {
		o.workers = n
	}
}

// WithCacheSize bounds the derived tag group memo; 0 disables it
func WithCacheSize(n int64) Option {
	return func(o *processorOptions) {
		o.cacheSize = n
	}
}

// NewProcessor creates a processor for configs
func NewProcessor(configs []*RuleConfig, services types.Services, opts ...Option) (*Processor, error) {
	if err := services.Validate(); err != nil {
		return nil, errors.Wrap(errors.TypeConfig, "catalog services", err)
	}

	options := processorOptions{
		logger:    logging.Logger,
		workers:   runtime.GOMAXPROCS(0),
		cacheSize: DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = zap.NewNop()
	}
	if options.workers < 1 {
		options.workers = 1
	}

	cache, err := newTagGroupCache(options.cacheSize)
	if err != nil {
		return nil, errors.Wrap(errors.TypeInternal, "create tag group cache", err)
	}

	return &Processor{
		configs:  configs,
		services: services,
		logger:   options.logger,
		workers:  options.workers,
		cache:    cache,
	}, nil
}

// Close releases the memo
func (p *Processor) Close() {
	p.cache.close()
}

// Process applies every rule to data in configuration order. Rules that fail
// to compile or execute are logged and reported, and the run continues. The
// returned error is non-nil only when ctx ends the run early.
func (p *Processor) Process(ctx context.Context, data *dataset.CostAndUsage) (*Report, error) {
	started := time.Now()
	report := &Report{RunID: uuid.NewString()}
	log := p.logger.With(zap.String("run_id", report.RunID))

	p.cache.clear()

	for i, cfg := range p.configs {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(started)
			return report, err
		}

		ruleLog := log.With(logging.Rule(cfg.Name))

		rule, err := NewRule(cfg, p.services)
		if err != nil {
			ruleLog.Error("rule configuration rejected", zap.Error(err))
			report.fail(cfg.Name, err)
			continue
		}

		if !rule.IsActive(data.Start) {
			ruleLog.Info("rule not active for dataset period",
				zap.Time("dataset_start", data.Start),
				zap.Time("rule_start", rule.start),
				zap.Time("rule_end", rule.end))
			report.skip(rule.name, SkipInactive)
			continue
		}

		if !rule.in.HasProduct() {
			ruleLog.Error("rule input operand has no product")
			report.skip(rule.name, SkipNoProduct)
			continue
		}

		written, err := p.apply(ctx, strconv.Itoa(i), rule, data, ruleLog)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				report.Duration = time.Since(started)
				return report, ctxErr
			}
			ruleLog.Error("rule failed", zap.Error(err))
			report.fail(rule.name, err)
			continue
		}

		ruleLog.Debug("rule applied", zap.Int("values_written", written))
		report.applied(rule.name, written)
	}

	report.Duration = time.Since(started)
	log.Info("post-processing complete",
		zap.Int("applied", len(report.Applied)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("failed", len(report.Failed)),
		zap.Int("values_written", report.ValuesWritten),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// apply runs the non-resource pass and then one resource pass per product
// the input operand accepts.
func (p *Processor) apply(ctx context.Context, key string, rule *Rule, data *dataset.CostAndUsage, log *zap.Logger) (written int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Internal(fmt.Sprintf("rule %q panicked", rule.name), fmt.Errorf("%v", r))
		}
	}()

	var products []types.Product
	for _, product := range data.Products() {
		if rule.in.MatchesProduct(product) {
			products = append(products, product)
		}
	}

	passes := append([]types.Product{types.NonResource}, products...)
	for _, product := range passes {
		n, err := p.runPass(ctx, key+cacheKeySeparator+rule.name, rule, data, product)
		if err != nil {
			if product.IsNonResource() {
				return written, errors.Wrapf(errors.TypeInternal, err, "non-resource pass")
			}
			return written, errors.Wrapf(errors.TypeInternal, err, "resource pass for %s", product.ServiceCode)
		}
		log.Debug("pass complete", zap.String("product", product.ServiceCode), zap.Int("values_written", n))
		written += n
	}
	return written, nil
}

// recovering turns a panic in a worker into an error of the rule
func recovering(fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.Internal("worker panicked", fmt.Errorf("%v", r))
			}
		}()
		return fn()
	}
}

// update is one value a pass writes once every hour has been computed
type update struct {
	kind    dataset.Kind
	product types.Product
	tg      types.TagGroup
	value   float64
}

// pass holds the state of one rule over one dataset context
type pass struct {
	*Processor
	ruleKey string
	rule    *Rule
	data    *dataset.CostAndUsage
	scope   types.Product

	inValues  []map[AggregationTagGroup]float64
	inMonthly map[AggregationTagGroup]float64
	monthly   sync.Map
}

// runPass computes every hour of the pass concurrently and then applies the
// collected updates in hour order.
func (p *Processor) runPass(ctx context.Context, ruleKey string, rule *Rule, data *dataset.CostAndUsage, product types.Product) (int, error) {
	input := data.Get(rule.in.Kind(), product)
	if input == nil {
		return 0, nil
	}

	ps := &pass{
		Processor: p,
		ruleKey:   ruleKey,
		rule:      rule,
		data:      data,
		scope:     product,
		inValues:  make([]map[AggregationTagGroup]float64, input.Len()),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := 0; i < input.Len(); i++ {
		i := i
		g.Go(recovering(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ps.inValues[i] = ps.aggregate(input.Interval(i))
			return nil
		}))
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	if rule.in.Monthly() {
		ps.inMonthly = make(map[AggregationTagGroup]float64)
		for _, hour := range ps.inValues {
			for bucket, v := range hour {
				ps.inMonthly[bucket] += v
			}
		}
	}

	updates := make([][]update, len(ps.inValues))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := range ps.inValues {
		if len(ps.inValues[i]) == 0 {
			continue
		}
		i := i
		g.Go(recovering(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			hourUpdates, err := ps.evaluateHour(i)
			if err != nil {
				return errors.Wrapf(errors.TypeInternal, err, "hour %d", i).WithContext("hour", i)
			}
			updates[i] = hourUpdates
			return nil
		}))
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	written := 0
	for i, hourUpdates := range updates {
		for _, u := range hourUpdates {
			data.GetOrCreate(u.kind, u.product).Put(i, u.tg, u.value)
			written++
		}
	}
	return written, nil
}

// aggregate sums the values of one hour per input bucket
func (ps *pass) aggregate(hour map[types.TagGroup]float64) map[AggregationTagGroup]float64 {
	values := make(map[AggregationTagGroup]float64)
	for tg, v := range hour {
		if bucket, ok := ps.rule.in.AggregateTagGroup(tg); ok {
			values[bucket] += v
		}
	}
	return values
}

// evaluateHour derives the output values of every bucket of hour i
func (ps *pass) evaluateHour(i int) ([]update, error) {
	hour := ps.inValues[i]
	buckets := sortedBuckets(ps.rule.in, hour)

	var updates []update
	for _, b := range buckets {
		for _, res := range ps.rule.results {
			outTG, ok, err := ps.derive(res.id, res.out.Operand, b.bucket, b.key)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}

			values := make(map[string]float64, len(res.refs))
			for _, name := range res.refs {
				v, err := ps.resolve(name, i, b.bucket, b.key, hour[b.bucket])
				if err != nil {
					return nil, err
				}
				values[name] = v
			}

			for _, kind := range []dataset.Kind{dataset.Cost, dataset.Usage} {
				formula, ok := res.formulas[kind]
				if !ok {
					continue
				}
				v, err := expression.Evaluate(expression.Substitute(formula, values))
				if err != nil {
					return nil, err
				}
				updates = append(updates, update{
					kind:    kind,
					product: ps.targetContext(outTG),
					tg:      outTG,
					value:   v,
				})
			}
		}
	}
	return updates, nil
}

// resolve returns the value an operand contributes to a formula
func (ps *pass) resolve(name string, i int, bucket AggregationTagGroup, bucketKey string, inValue float64) (float64, error) {
	if name == InOperand {
		if ps.inMonthly != nil {
			return ps.inMonthly[bucket], nil
		}
		return inValue, nil
	}

	o := ps.rule.operands[name]
	tg, ok, err := ps.derive(name, o, bucket, bucketKey)
	if err != nil || !ok {
		return 0, err
	}

	data := ps.data.Get(o.Kind(), ps.targetContext(tg))
	if data == nil {
		return 0, nil
	}
	if !o.Monthly() {
		v, _ := data.Get(i, tg)
		return v, nil
	}

	key := monthlyKey{kind: o.Kind(), product: ps.targetContext(tg), tg: tg}
	if v, ok := ps.monthly.Load(key); ok {
		return v.(float64), nil
	}
	v, _ := ps.monthly.LoadOrStore(key, data.Sum(tg))
	return v.(float64), nil
}

type monthlyKey struct {
	kind    dataset.Kind
	product types.Product
	tg      types.TagGroup
}

// derive builds the tag group operand designates for bucket, through the memo
func (ps *pass) derive(operandKey string, o *Operand, bucket AggregationTagGroup, bucketKey string) (types.TagGroup, bool, error) {
	key := cacheKey(ps.ruleKey, operandKey, bucketKey)
	if d, ok := ps.cache.get(key); ok {
		return d.tg, d.ok, nil
	}

	tg, ok, err := o.TagGroup(bucket, ps.services)
	if err != nil {
		return types.TagGroup{}, false, err
	}
	ps.cache.set(key, derived{tg: tg, ok: ok})
	return tg, ok, nil
}

// targetContext returns the dataset context a tag group is read from or
// written to: its own product in resource passes, the non-resource context
// otherwise.
func (ps *pass) targetContext(tg types.TagGroup) types.Product {
	if ps.scope.IsNonResource() || tg.Product.IsNonResource() {
		return ps.scope
	}
	return tg.Product
}

type keyedBucket struct {
	bucket AggregationTagGroup
	key    string
}

// sortedBuckets orders the buckets of an hour by cache key so that updates,
// and therefore overwrites of a shared output, are deterministic.
func sortedBuckets(in *InputOperand, hour map[AggregationTagGroup]float64) []keyedBucket {
	buckets := make([]keyedBucket, 0, len(hour))
	for b := range hour {
		buckets = append(buckets, keyedBucket{bucket: b, key: in.CacheKey(b)})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].key < buckets[j].key
	})
	return buckets
}
