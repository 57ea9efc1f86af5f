// Package types defines the tag model shared by the catalog, the datasets and
// the post-processing rule engine.
package types

import (
	"fmt"
	"strings"
)

// Key identifies one of the fixed tag dimensions
type Key int

// Fixed dimensions, in the order every matcher visits them
const (
	KeyAccount Key = iota
	KeyRegion
	KeyZone
	KeyProduct
	KeyOperation
	KeyUsageType
)

// NumKeys is the number of fixed dimensions
const NumKeys = 6

var keyNames = [NumKeys]string{"Account", "Region", "Zone", "Product", "Operation", "UsageType"}

// String returns the dimension name as used in rule configuration
func (k Key) String() string {
	if k < 0 || int(k) >= NumKeys {
		return fmt.Sprintf("Key(%d)", int(k))
	}
	return keyNames[k]
}

// Keys returns every fixed dimension in matching order
func Keys() []Key {
	return []Key{KeyAccount, KeyRegion, KeyZone, KeyProduct, KeyOperation, KeyUsageType}
}

// ParseKey resolves a dimension name, ignoring case
func ParseKey(name string) (Key, error) {
	for i, n := range keyNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return Key(i), nil
		}
	}
	return 0, fmt.Errorf("unknown tag dimension %q", name)
}

// Account is a billing account
type Account struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Region is a cloud region
type Region struct {
	Name string `json:"name"`
}

// Zone is an availability zone within a region
type Zone struct {
	Name   string `json:"name"`
	Region string `json:"region,omitempty"`
}

// Product is a billed service. The zero Product marks the non-resource
// dataset context.
type Product struct {
	ServiceCode string `json:"serviceCode"`
	Name        string `json:"name,omitempty"`
}

// NonResource is the context key of the product-agnostic dataset
var NonResource = Product{}

// IsNonResource reports whether p is the non-resource context key
func (p Product) IsNonResource() bool {
	return p == NonResource
}

// Operation is a billing line item operation
type Operation struct {
	Name string `json:"name"`
}

// UsageType is a billing line item usage type
type UsageType struct {
	Name string `json:"name"`
	Unit string `json:"unit,omitempty"`
}
