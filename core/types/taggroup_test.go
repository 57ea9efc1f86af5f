package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKey(t *testing.T) {
	for _, k := range Keys() {
		got, err := ParseKey(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	got, err := ParseKey(" usagetype ")
	require.NoError(t, err)
	assert.Equal(t, KeyUsageType, got)

	_, err = ParseKey("Team")
	assert.Error(t, err)
}

func TestTagGroupIsComparableMapKey(t *testing.T) {
	a := TagGroup{
		Account:   Account{ID: "123456789012", Name: "prod"},
		Region:    Region{Name: "us-east-1"},
		Product:   Product{ServiceCode: "AmazonS3"},
		UsageType: UsageType{Name: "Requests-Tier1"},
	}.WithUserTags([]string{"web", ""})
	b := a.WithUserTags([]string{"web"})

	data := map[TagGroup]float64{a: 1}
	data[b] += 2

	require.Len(t, data, 1)
	assert.Equal(t, 3.0, data[a])
}

func TestUserTags(t *testing.T) {
	tg := TagGroup{}.WithUserTags([]string{"", "platform", "", ""})

	assert.Equal(t, []string{"", "platform"}, tg.UserTags())
	assert.Equal(t, "", tg.UserTag(0))
	assert.Equal(t, "platform", tg.UserTag(1))
	assert.Equal(t, "", tg.UserTag(3))
	assert.Nil(t, TagGroup{}.UserTags())
}

func TestIdentityAndString(t *testing.T) {
	tg := TagGroup{
		Account:   Account{ID: "111", Name: "dev"},
		Region:    Region{Name: "eu-west-1"},
		Zone:      Zone{Name: "eu-west-1a", Region: "eu-west-1"},
		Product:   Product{ServiceCode: "AmazonEC2", Name: "Elastic Compute Cloud"},
		Operation: Operation{Name: "RunInstances"},
		UsageType: UsageType{Name: "BoxUsage:t3.micro", Unit: "Hrs"},
	}.WithUserTags([]string{"", "api"})

	assert.Equal(t, "111", tg.Identity(KeyAccount))
	assert.Equal(t, "eu-west-1a", tg.Identity(KeyZone))
	assert.Equal(t, "AmazonEC2", tg.Identity(KeyProduct))
	assert.Equal(t, "BoxUsage:t3.micro", tg.Identity(KeyUsageType))
	assert.Equal(t, "(111, eu-west-1, eu-west-1a, AmazonEC2, RunInstances, BoxUsage:t3.micro, -, api)", tg.String())
}

func TestNonResource(t *testing.T) {
	assert.True(t, NonResource.IsNonResource())
	assert.False(t, Product{ServiceCode: "AmazonS3"}.IsNonResource())
}
