package postproc

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costrules/core/types"
)

func partitionFixture(t *testing.T) (types.Services, map[types.TagGroup]float64) {
	svc := newTestServices("Environment")
	rows := []struct {
		values [types.NumKeys]string
		env    string
		value  float64
	}{
		{[types.NumKeys]string{"Account1", "us-east-1", "us-east-1a", "AmazonEC2", "RunInstances", "BoxUsage"}, "prod", 1},
		{[types.NumKeys]string{"Account1", "us-east-1", "us-east-1b", "AmazonEC2", "RunInstances", "BoxUsage"}, "prod", 2},
		{[types.NumKeys]string{"Account1", "us-west-2", "us-west-2a", "AmazonEC2", "RunInstances", "BoxUsage"}, "dev", 4},
		{[types.NumKeys]string{"Account2", "us-east-1", "us-east-1a", "AmazonEC2", "RunInstances", "BoxUsage"}, "prod", 8},
		{[types.NumKeys]string{"Account2", "us-east-1", "", "AmazonS3", "GetObject", "Requests-Tier1"}, "", 16},
		{[types.NumKeys]string{"Account3", "eu-west-1", "", "AmazonS3", "PutObject", "Requests-Tier2"}, "dev", 32},
	}

	data := make(map[types.TagGroup]float64)
	for _, r := range rows {
		data[tagGroup(t, svc, r.values, r.env)] = r.value
	}
	return svc, data
}

func TestAggregationPartition(t *testing.T) {
	_, data := partitionFixture(t)

	groupings := []Aggregation{
		NewAggregation(nil, nil),
		NewAggregation([]types.Key{types.KeyAccount}, nil),
		NewAggregation([]types.Key{types.KeyRegion, types.KeyProduct}, nil),
		NewAggregation(nil, []bool{true}),
		NewAggregation(types.Keys(), []bool{true}),
	}

	for _, g := range groupings {
		sums := make(map[AggregationTagGroup]float64)
		var total float64
		for tg, v := range data {
			bucket := g.ReduceTagGroup(tg)
			assert.True(t, g.Compatible(bucket, identities(tg), tg.UserTags()))

			// exactly one bucket of the grouping is compatible with tg
			for other := range sums {
				if other != bucket {
					assert.False(t, g.Compatible(other, identities(tg), tg.UserTags()))
				}
			}
			sums[bucket] += v
			total += v
		}

		var bucketTotal float64
		for _, v := range sums {
			bucketTotal += v
		}
		assert.Equal(t, total, bucketTotal)
		assert.Equal(t, 63.0, total)
	}

	assert.True(t, NewAggregation(nil, nil).IsGlobal())
	assert.False(t, NewAggregation(nil, []bool{true}).IsGlobal())
}

func TestAggregationOrderIndependent(t *testing.T) {
	_, data := partitionFixture(t)
	g := NewAggregation([]types.Key{types.KeyAccount, types.KeyProduct}, nil)

	tgs := make([]types.TagGroup, 0, len(data))
	for tg := range data {
		tgs = append(tgs, tg)
	}

	sum := func(order []types.TagGroup) map[AggregationTagGroup]float64 {
		sums := make(map[AggregationTagGroup]float64)
		for _, tg := range order {
			sums[g.ReduceTagGroup(tg)] += data[tg]
		}
		return sums
	}

	want := sum(tgs)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		rng.Shuffle(len(tgs), func(a, b int) { tgs[a], tgs[b] = tgs[b], tgs[a] })
		assert.Equal(t, want, sum(tgs))
	}
	assert.Len(t, want, 4)
}

func TestAggregationTagGroupValues(t *testing.T) {
	spec := NewAggregation([]types.Key{types.KeyRegion}, []bool{false, true})
	b := spec.Reduce([types.NumKeys]string{"111", "us-east-1", "us-east-1a", "P", "O", "U"}, []string{"prod", "web"})

	v, ok := b.Value(types.KeyRegion)
	require.True(t, ok)
	assert.Equal(t, "us-east-1", v)

	_, ok = b.Value(types.KeyAccount)
	assert.False(t, ok)
	assert.True(t, spec.GroupByUserTag(1))
	assert.False(t, spec.GroupByUserTag(0))
	assert.False(t, spec.GroupByUserTag(9))
	assert.Equal(t, "", b.UserTag(0))
	assert.Equal(t, "web", b.UserTag(1))
	assert.Equal(t, "[*, us-east-1, *, *, *, *, -, web]", b.String())

	same := spec.Reduce([types.NumKeys]string{"222", "us-east-1", "", "Q", "", ""}, []string{"dev", "web"})
	assert.Equal(t, b, same, "collapsed dimensions do not affect equality")

	withFallback := b.withFallback(types.KeyProduct, "P")
	v, ok = withFallback.Value(types.KeyProduct)
	assert.True(t, ok)
	assert.Equal(t, "P", v)
	assert.False(t, withFallback.Grouped(types.KeyProduct))
}

func TestAggregationCompatibleWithCapturedValues(t *testing.T) {
	g := NewAggregation([]types.Key{types.KeyAccount, types.KeyUsageType}, nil)
	captured := [types.NumKeys]string{"111", "us-east-1", "", "P", "O", "AB"}
	bucket := g.Reduce(captured, nil)

	raw := captured
	raw[types.KeyUsageType] = "AB-Requests-1"
	assert.True(t, g.Compatible(bucket, captured, nil))
	assert.False(t, g.Compatible(bucket, raw, nil), "raw identities are not reduced values")

	other := captured
	other[types.KeyRegion] = "eu-west-1"
	assert.True(t, g.Compatible(bucket, other, nil), "collapsed dimensions are ignored")
	other[types.KeyUsageType] = "CD"
	assert.False(t, g.Compatible(bucket, other, nil))
}
