// Package catalog provides an in-memory implementation of the account,
// region, zone, product, operation, usage type and user tag services.
package catalog

import (
	"sort"
	"strings"
	"sync"

	"costrules/core/types"
)

// Catalog is the in-memory tag value catalog. It is safe for concurrent use.
type Catalog struct {
	mu         sync.RWMutex
	autoCreate bool

	accounts   map[string]types.Account // keyed by ID and by name
	regions    map[string]types.Region
	zones      map[string]types.Zone
	products   map[string]types.Product // keyed by service code and by name
	operations map[string]types.Operation
	usageTypes map[string]types.UsageType

	userTagKeys  []string
	userTagIndex map[string]int
}

// Option configures a Catalog
type Option func(*Catalog)

// WithAutoCreate makes lookups of unknown accounts, regions, zones and
// products mint a new entry instead of failing.
func WithAutoCreate() Option {
	return func(c *Catalog) {
		c.autoCreate = true
	}
}

// WithUserTagKeys registers the recognized user tag keys in slot order
func WithUserTagKeys(keys ...string) Option {
	return func(c *Catalog) {
		for _, k := range keys {
			c.addUserTagKey(k)
		}
	}
}

// New creates a new catalog
func New(opts ...Option) *Catalog {
	c := &Catalog{
		accounts:     make(map[string]types.Account),
		regions:      make(map[string]types.Region),
		zones:        make(map[string]types.Zone),
		products:     make(map[string]types.Product),
		operations:   make(map[string]types.Operation),
		usageTypes:   make(map[string]types.UsageType),
		userTagIndex: make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Services returns the catalog as the service bundle consumed by the rule engine
func (c *Catalog) Services() types.Services {
	return types.Services{
		Accounts:   c,
		Regions:    c,
		Products:   c,
		Operations: c,
		UsageTypes: c,
		UserTags:   c,
	}
}

// AddAccount registers an account
func (c *Catalog) AddAccount(id, name string) types.Account {
	c.mu.Lock()
	defer c.mu.Unlock()

	a := types.Account{ID: id, Name: name}
	c.accounts[id] = a
	if name != "" {
		c.accounts[name] = a
	}
	return a
}

// AddRegion registers a region
func (c *Catalog) AddRegion(name string) types.Region {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := types.Region{Name: name}
	c.regions[name] = r
	return r
}

// AddZone registers a zone and its region
func (c *Catalog) AddZone(name, region string) types.Zone {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.regions[region]; !ok {
		c.regions[region] = types.Region{Name: region}
	}
	z := types.Zone{Name: name, Region: region}
	c.zones[name] = z
	return z
}

// AddProduct registers a product
func (c *Catalog) AddProduct(serviceCode, name string) types.Product {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := types.Product{ServiceCode: serviceCode, Name: name}
	c.products[serviceCode] = p
	if name != "" {
		c.products[name] = p
	}
	return p
}

// AddUsageType registers a usage type with its unit
func (c *Catalog) AddUsageType(name, unit string) types.UsageType {
	c.mu.Lock()
	defer c.mu.Unlock()

	u := types.UsageType{Name: name, Unit: unit}
	c.usageTypes[name] = u
	return u
}

// AddUserTagKey registers a user tag key and returns its slot
func (c *Catalog) AddUserTagKey(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addUserTagKey(key)
}

func (c *Catalog) addUserTagKey(key string) int {
	if i, ok := c.userTagIndex[key]; ok {
		return i
	}
	c.userTagKeys = append(c.userTagKeys, key)
	c.userTagIndex[key] = len(c.userTagKeys) - 1
	return len(c.userTagKeys) - 1
}

// Account implements types.AccountService
func (c *Catalog) Account(idOrName string) (types.Account, bool) {
	if a, ok := lookup(c, c.accounts, idOrName); ok {
		return a, true
	}
	if !c.mintable(idOrName) {
		return types.Account{}, false
	}
	return c.AddAccount(idOrName, ""), true
}

// Region implements types.RegionService
func (c *Catalog) Region(name string) (types.Region, bool) {
	if r, ok := lookup(c, c.regions, name); ok {
		return r, true
	}
	if !c.mintable(name) {
		return types.Region{}, false
	}
	return c.AddRegion(name), true
}

// Zone implements types.RegionService
func (c *Catalog) Zone(name string) (types.Zone, bool) {
	if z, ok := lookup(c, c.zones, name); ok {
		return z, true
	}
	if !c.mintable(name) {
		return types.Zone{}, false
	}
	return c.AddZone(name, regionOfZone(name)), true
}

// Product implements types.ProductService
func (c *Catalog) Product(codeOrName string) (types.Product, bool) {
	if p, ok := lookup(c, c.products, codeOrName); ok {
		return p, true
	}
	if !c.mintable(codeOrName) {
		return types.Product{}, false
	}
	return c.AddProduct(codeOrName, ""), true
}

// Operation implements types.OperationService
func (c *Catalog) Operation(name string) types.Operation {
	if o, ok := lookup(c, c.operations, name); ok {
		return o
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	o := types.Operation{Name: name}
	c.operations[name] = o
	return o
}

// UsageType implements types.UsageTypeService
func (c *Catalog) UsageType(name string) types.UsageType {
	if u, ok := lookup(c, c.usageTypes, name); ok {
		return u
	}
	return c.AddUsageType(name, "")
}

// UserTagIndex implements types.UserTagService
func (c *Catalog) UserTagIndex(key string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.userTagIndex[key]
	return i, ok
}

// UserTagKeys implements types.UserTagService
func (c *Catalog) UserTagKeys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, len(c.userTagKeys))
	copy(keys, c.userTagKeys)
	return keys
}

func lookup[V any](c *Catalog, m map[string]V, key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := m[key]
	return v, ok
}

func (c *Catalog) mintable(value string) bool {
	return c.autoCreate && value != "" && !strings.ContainsRune(value, '\x1f')
}

// regionOfZone derives "us-east-1" from "us-east-1a"
func regionOfZone(zone string) string {
	n := len(zone)
	if n < 2 {
		return zone
	}
	last, prev := zone[n-1], zone[n-2]
	if last >= 'a' && last <= 'z' && prev >= '0' && prev <= '9' {
		return zone[:n-1]
	}
	return zone
}

// Stats returns catalog statistics
func (c *Catalog) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Stats{
		Accounts:   countDistinct(c.accounts),
		Regions:    len(c.regions),
		Zones:      len(c.zones),
		Products:   countDistinct(c.products),
		Operations: len(c.operations),
		UsageTypes: len(c.usageTypes),
		UserTags:   len(c.userTagKeys),
	}
}

// Stats holds catalog statistics
type Stats struct {
	Accounts   int
	Regions    int
	Zones      int
	Products   int
	Operations int
	UsageTypes int
	UserTags   int
}

func countDistinct[V comparable](m map[string]V) int {
	seen := make(map[V]struct{}, len(m))
	for _, v := range m {
		seen[v] = struct{}{}
	}
	return len(seen)
}

// Products lists registered products sorted by service code
func (c *Catalog) Products() []types.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[types.Product]struct{})
	var result []types.Product
	for _, p := range c.products {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ServiceCode < result[j].ServiceCode
	})
	return result
}
