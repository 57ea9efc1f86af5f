package storage

import (
	"bytes"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"costrules/core/dataset"
	"costrules/core/types"
	"costrules/internal/errors"
)

// Document is the JSON form of a dataset.CostAndUsage
type Document struct {
	Start       time.Time        `json:"start"`
	Interval    dataset.Interval `json:"interval,omitempty"`
	Size        int              `json:"size,omitempty"`
	UserTagKeys []string         `json:"userTagKeys,omitempty"`
	Cost        []ContextDoc     `json:"cost,omitempty"`
	Usage       []ContextDoc     `json:"usage,omitempty"`
}

// ContextDoc holds the entries of one product context. An empty Product is
// the non-resource context.
type ContextDoc struct {
	Product string  `json:"product"`
	Entries []Entry `json:"entries"`
}

// Entry is one value of one tag group in one interval
type Entry struct {
	Hour      int               `json:"hour"`
	Account   string            `json:"account,omitempty"`
	Region    string            `json:"region,omitempty"`
	Zone      string            `json:"zone,omitempty"`
	Product   string            `json:"product,omitempty"`
	Operation string            `json:"operation,omitempty"`
	UsageType string            `json:"usageType,omitempty"`
	UserTags  map[string]string `json:"userTags,omitempty"`
	Value     Value             `json:"value"`
}

// Value is a float64 that round-trips NaN and the infinities as strings
type Value float64

// MarshalJSON implements json.Marshaler
func (v Value) MarshalJSON() ([]byte, error) {
	f := float64(v)
	switch {
	case math.IsNaN(f):
		return []byte(`"NaN"`), nil
	case math.IsInf(f, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(f, -1):
		return []byte(`"-Infinity"`), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (v *Value) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(b, `"`))
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return errors.Parsing("invalid value "+string(b), err)
	}
	*v = Value(f)
	return nil
}

// Catalog is what Decode needs to canonicalize entries
type Catalog interface {
	Services() types.Services
	AddUserTagKey(key string) int
}

// Encode converts data into a document. userTagKeys names the user tag slots
// in order. Contexts and entries are sorted so equal datasets encode equally.
func Encode(data *dataset.CostAndUsage, userTagKeys []string) *Document {
	doc := &Document{
		Start:       data.Start,
		Interval:    data.Interval,
		Size:        data.Size(),
		UserTagKeys: userTagKeys,
	}

	products := append([]types.Product{types.NonResource}, data.Products()...)
	doc.Cost = encodeSide(data, dataset.Cost, products, userTagKeys)
	doc.Usage = encodeSide(data, dataset.Usage, products, userTagKeys)
	return doc
}

func encodeSide(data *dataset.CostAndUsage, kind dataset.Kind, products []types.Product, userTagKeys []string) []ContextDoc {
	var contexts []ContextDoc
	for _, p := range products {
		rw := data.Get(kind, p)
		if rw == nil {
			continue
		}

		var entries []Entry
		for hour := 0; hour < rw.Len(); hour++ {
			m := rw.Interval(hour)
			tgs := make([]types.TagGroup, 0, len(m))
			for tg := range m {
				tgs = append(tgs, tg)
			}
			sort.Slice(tgs, func(i, j int) bool { return tgs[i].String() < tgs[j].String() })

			for _, tg := range tgs {
				entries = append(entries, encodeEntry(hour, tg, m[tg], userTagKeys))
			}
		}
		if len(entries) == 0 {
			continue
		}
		contexts = append(contexts, ContextDoc{Product: p.ServiceCode, Entries: entries})
	}
	return contexts
}

func encodeEntry(hour int, tg types.TagGroup, v float64, userTagKeys []string) Entry {
	e := Entry{
		Hour:      hour,
		Account:   tg.Identity(types.KeyAccount),
		Region:    tg.Identity(types.KeyRegion),
		Zone:      tg.Identity(types.KeyZone),
		Product:   tg.Identity(types.KeyProduct),
		Operation: tg.Identity(types.KeyOperation),
		UsageType: tg.Identity(types.KeyUsageType),
		Value:     Value(v),
	}
	for i, tag := range tg.UserTags() {
		if tag == "" || i >= len(userTagKeys) {
			continue
		}
		if e.UserTags == nil {
			e.UserTags = make(map[string]string)
		}
		e.UserTags[userTagKeys[i]] = tag
	}
	return e
}

// Decode builds a dataset from doc, resolving every tag value through cat.
// User tag keys of the document are registered with the catalog first.
// Entries repeating a tag group within an interval are summed.
func Decode(doc *Document, cat Catalog) (*dataset.CostAndUsage, error) {
	interval := doc.Interval
	if interval == "" {
		interval = dataset.Hourly
	}
	if interval != dataset.Hourly && interval != dataset.Monthly {
		return nil, errors.Newf(errors.TypeParsing, "unknown interval %q", interval)
	}

	size := doc.Size
	if size == 0 {
		size = 1
		if interval == dataset.Hourly {
			size = dataset.HoursInMonth(doc.Start)
		}
	}
	if size < 0 {
		return nil, errors.Newf(errors.TypeParsing, "negative dataset size %d", size)
	}

	for _, k := range doc.UserTagKeys {
		cat.AddUserTagKey(k)
	}
	svc := cat.Services()

	data := dataset.New(doc.Start, interval, size)
	sides := []struct {
		kind     dataset.Kind
		contexts []ContextDoc
	}{
		{dataset.Cost, doc.Cost},
		{dataset.Usage, doc.Usage},
	}
	for _, side := range sides {
		for _, c := range side.contexts {
			product := types.NonResource
			if c.Product != "" {
				p, ok := svc.Products.Product(c.Product)
				if !ok {
					return nil, errors.Newf(errors.TypeParsing, "%s context: unknown product %q", side.kind, c.Product)
				}
				product = p
			}

			rw := data.GetOrCreate(side.kind, product)
			for i, e := range c.Entries {
				if e.Hour < 0 || e.Hour >= size {
					return nil, errors.Newf(errors.TypeParsing, "%s context %q entry %d: hour %d out of range [0, %d)", side.kind, c.Product, i, e.Hour, size)
				}
				tg, err := decodeEntry(e, svc)
				if err != nil {
					return nil, errors.Wrapf(errors.TypeParsing, err, "%s context %q entry %d", side.kind, c.Product, i)
				}
				rw.Add(e.Hour, tg, float64(e.Value))
			}
		}
	}
	return data, nil
}

func decodeEntry(e Entry, svc types.Services) (types.TagGroup, error) {
	var tg types.TagGroup
	values := [types.NumKeys]string{e.Account, e.Region, e.Zone, e.Product, e.Operation, e.UsageType}
	for _, k := range types.Keys() {
		if !svc.Assign(&tg, k, values[k]) {
			return tg, errors.Newf(errors.TypeNotFound, "unknown %s %q", k, values[k])
		}
	}

	if len(e.UserTags) == 0 {
		return tg, nil
	}
	slots := make([]string, svc.NumUserTags())
	for key, v := range e.UserTags {
		i, ok := svc.UserTags.UserTagIndex(key)
		if !ok {
			return tg, errors.Newf(errors.TypeNotFound, "unknown user tag key %q", key)
		}
		slots[i] = v
	}
	return tg.WithUserTags(slots), nil
}

// ReadFile reads and decodes a dataset document
func ReadFile(path string, cat Catalog) (*dataset.CostAndUsage, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.TypeNotFound, err, "read dataset %s", path)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Parsing("decode dataset "+path, err)
	}
	data, err := Decode(&doc, cat)
	if err != nil {
		return nil, errors.Wrapf(errors.TypeParsing, err, "dataset %s", path)
	}
	return data, nil
}

// WriteFile encodes data and writes it to path
func WriteFile(path string, data *dataset.CostAndUsage, userTagKeys []string, indent bool) error {
	raw, err := marshal(Encode(data, userTagKeys), indent)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return errors.Wrapf(errors.TypeInternal, err, "write dataset %s", path)
	}
	return nil
}

func marshal(v any, indent bool) ([]byte, error) {
	var (
		raw []byte
		err error
	)
	if indent {
		raw, err = json.MarshalIndent(v, "", "  ")
	} else {
		raw, err = json.Marshal(v)
	}
	if err != nil {
		return nil, errors.Internal("encode json", err)
	}
	return raw, nil
}
