package types

import "strings"

// userTagSeparator never appears in tag values accepted by the catalog
const userTagSeparator = "\x1f"

// TagGroup is the concrete key of one cost or usage data point.
//
// TagGroup is a comparable value and is used directly as a map key. User tag
// slots are stored encoded; trailing empty slots are dropped so that two
// groups differing only in the number of empty slots compare equal.
type TagGroup struct {
	Account   Account
	Region    Region
	Zone      Zone
	Product   Product
	Operation Operation
	UsageType UsageType

	userTags string
}

// WithUserTags returns a copy of tg carrying the given user tag slots.
func (tg TagGroup) WithUserTags(slots []string) TagGroup {
	end := len(slots)
	for end > 0 && slots[end-1] == "" {
		end--
	}
	tg.userTags = strings.Join(slots[:end], userTagSeparator)
	return tg
}

// UserTags returns the user tag slots up to the last non-empty one.
func (tg TagGroup) UserTags() []string {
	if tg.userTags == "" {
		return nil
	}
	return strings.Split(tg.userTags, userTagSeparator)
}

// UserTag returns slot i, or "" when the slot is empty or out of range.
func (tg TagGroup) UserTag(i int) string {
	slots := tg.UserTags()
	if i < 0 || i >= len(slots) {
		return ""
	}
	return slots[i]
}

// Identity returns the identifying string of dimension k, the value rule
// patterns are matched against.
func (tg TagGroup) Identity(k Key) string {
	switch k {
	case KeyAccount:
		return tg.Account.ID
	case KeyRegion:
		return tg.Region.Name
	case KeyZone:
		return tg.Zone.Name
	case KeyProduct:
		return tg.Product.ServiceCode
	case KeyOperation:
		return tg.Operation.Name
	case KeyUsageType:
		return tg.UsageType.Name
	}
	return ""
}

// String renders the group for logs
func (tg TagGroup) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, k := range Keys() {
		if i > 0 {
			b.WriteString(", ")
		}
		v := tg.Identity(k)
		if v == "" {
			v = "-"
		}
		b.WriteString(v)
	}
	for _, t := range tg.UserTags() {
		b.WriteString(", ")
		if t == "" {
			t = "-"
		}
		b.WriteString(t)
	}
	b.WriteByte(')')
	return b.String()
}
