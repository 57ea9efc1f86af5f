package types

import "fmt"

// AccountService resolves account IDs or names to canonical accounts
type AccountService interface {
	Account(idOrName string) (Account, bool)
}

// RegionService resolves region and zone names
type RegionService interface {
	Region(name string) (Region, bool)
	Zone(name string) (Zone, bool)
}

// ProductService resolves service codes or product names
type ProductService interface {
	Product(codeOrName string) (Product, bool)
}

// OperationService returns the canonical operation for a name, minting it if needed
type OperationService interface {
	Operation(name string) Operation
}

// UsageTypeService returns the canonical usage type for a name, minting it if needed
type UsageTypeService interface {
	UsageType(name string) UsageType
}

// UserTagService maps user tag keys to slot indexes
type UserTagService interface {
	// UserTagIndex returns the slot of key
	UserTagIndex(key string) (int, bool)

	// UserTagKeys returns every recognized key in slot order
	UserTagKeys() []string
}

// Services bundles the catalog lookups the rule engine consumes. The handles
// are read-only for the duration of a processing run.
type Services struct {
	Accounts   AccountService
	Regions    RegionService
	Products   ProductService
	Operations OperationService
	UsageTypes UsageTypeService
	UserTags   UserTagService
}

// Validate reports a missing service handle
func (s Services) Validate() error {
	switch {
	case s.Accounts == nil:
		return fmt.Errorf("account service is required")
	case s.Regions == nil:
		return fmt.Errorf("region service is required")
	case s.Products == nil:
		return fmt.Errorf("product service is required")
	case s.Operations == nil:
		return fmt.Errorf("operation service is required")
	case s.UsageTypes == nil:
		return fmt.Errorf("usage type service is required")
	case s.UserTags == nil:
		return fmt.Errorf("user tag service is required")
	}
	return nil
}

// NumUserTags returns the number of user tag slots
func (s Services) NumUserTags() int {
	return len(s.UserTags.UserTagKeys())
}

// Assign resolves identity for dimension k and stores it in tg. An empty
// identity clears the dimension. It returns false when the catalog cannot
// resolve the identity.
func (s Services) Assign(tg *TagGroup, k Key, identity string) bool {
	if identity == "" {
		switch k {
		case KeyAccount:
			tg.Account = Account{}
		case KeyRegion:
			tg.Region = Region{}
		case KeyZone:
			tg.Zone = Zone{}
		case KeyProduct:
			tg.Product = Product{}
		case KeyOperation:
			tg.Operation = Operation{}
		case KeyUsageType:
			tg.UsageType = UsageType{}
		}
		return true
	}

	switch k {
	case KeyAccount:
		a, ok := s.Accounts.Account(identity)
		if !ok {
			return false
		}
		tg.Account = a
	case KeyRegion:
		r, ok := s.Regions.Region(identity)
		if !ok {
			return false
		}
		tg.Region = r
	case KeyZone:
		z, ok := s.Regions.Zone(identity)
		if !ok {
			return false
		}
		tg.Zone = z
	case KeyProduct:
		p, ok := s.Products.Product(identity)
		if !ok {
			return false
		}
		tg.Product = p
	case KeyOperation:
		tg.Operation = s.Operations.Operation(identity)
	case KeyUsageType:
		tg.UsageType = s.UsageTypes.UsageType(identity)
	default:
		return false
	}
	return true
}

// Canonical returns the catalog identity of value for dimension k, falling
// back to value itself when the catalog does not know it.
func (s Services) Canonical(k Key, value string) (string, bool) {
	var tg TagGroup
	if !s.Assign(&tg, k, value) {
		return value, false
	}
	return tg.Identity(k), true
}
