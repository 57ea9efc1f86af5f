package storage

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costrules/core/catalog"
	"costrules/core/dataset"
	"costrules/core/types"
	"costrules/internal/errors"
)

var jan2020 = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

const sampleDocument = `{
  "start": "2020-01-01T00:00:00Z",
  "userTagKeys": ["Team"],
  "cost": [
    {"product": "AmazonS3", "entries": [
      {"hour": 0, "account": "111111111111", "region": "us-east-1", "product": "AmazonS3", "usageType": "Requests", "value": 1.5},
      {"hour": 0, "account": "111111111111", "region": "us-east-1", "product": "AmazonS3", "usageType": "Requests", "value": 0.5},
      {"hour": 3, "account": "111111111111", "product": "AmazonS3", "userTags": {"Team": "web"}, "value": "NaN"}
    ]}
  ],
  "usage": [
    {"product": "", "entries": [
      {"hour": 743, "region": "us-west-2", "usageType": "Bytes", "value": "-Infinity"}
    ]}
  ]
}`

func decodeSample(t *testing.T, cat *catalog.Catalog) *dataset.CostAndUsage {
	t.Helper()
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(sampleDocument), &doc))
	data, err := Decode(&doc, cat)
	require.NoError(t, err)
	return data
}

func TestDecode(t *testing.T) {
	cat := catalog.New(catalog.WithAutoCreate())
	data := decodeSample(t, cat)

	assert.Equal(t, dataset.Hourly, data.Interval)
	assert.Equal(t, 744, data.Size(), "January has 744 hours")
	assert.Equal(t, []string{"Team"}, cat.UserTagKeys())

	s3, ok := cat.Product("AmazonS3")
	require.True(t, ok)
	cost := data.Get(dataset.Cost, s3)
	require.NotNil(t, cost)

	svc := cat.Services()
	var tg types.TagGroup
	require.True(t, svc.Assign(&tg, types.KeyAccount, "111111111111"))
	require.True(t, svc.Assign(&tg, types.KeyRegion, "us-east-1"))
	require.True(t, svc.Assign(&tg, types.KeyProduct, "AmazonS3"))
	require.True(t, svc.Assign(&tg, types.KeyUsageType, "Requests"))

	v, ok := cost.Get(0, tg)
	require.True(t, ok)
	assert.Equal(t, 2.0, v, "repeated tag groups are summed")

	var tagged types.TagGroup
	require.True(t, svc.Assign(&tagged, types.KeyAccount, "111111111111"))
	require.True(t, svc.Assign(&tagged, types.KeyProduct, "AmazonS3"))
	tagged = tagged.WithUserTags([]string{"web"})
	v, ok = cost.Get(3, tagged)
	require.True(t, ok)
	assert.True(t, math.IsNaN(v))

	usage := data.Get(dataset.Usage, types.NonResource)
	require.NotNil(t, usage)
	assert.Len(t, usage.Interval(743), 1)
	for _, v := range usage.Interval(743) {
		assert.True(t, math.IsInf(v, -1))
	}
}

func TestEncodeIsStable(t *testing.T) {
	cat := catalog.New(catalog.WithAutoCreate())
	data := decodeSample(t, cat)

	first, err := json.Marshal(Encode(data, cat.UserTagKeys()))
	require.NoError(t, err)

	again := decodeSample(t, catalog.New(catalog.WithAutoCreate()))
	second, err := json.Marshal(Encode(again, cat.UserTagKeys()))
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(second))

	doc := Encode(data, cat.UserTagKeys())
	require.Len(t, doc.Cost, 1)
	assert.Equal(t, "AmazonS3", doc.Cost[0].Product)
	require.Len(t, doc.Cost[0].Entries, 2)
	assert.Equal(t, 0, doc.Cost[0].Entries[0].Hour)
	assert.Equal(t, Value(2), doc.Cost[0].Entries[0].Value)
	assert.Equal(t, map[string]string{"Team": "web"}, doc.Cost[0].Entries[1].UserTags)

	require.Len(t, doc.Usage, 1)
	assert.Equal(t, "", doc.Usage[0].Product, "non-resource context")
}

func TestValueJSON(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{1.5, `1.5`},
		{-0.00156, `-0.00156`},
		{Value(math.NaN()), `"NaN"`},
		{Value(math.Inf(1)), `"Infinity"`},
		{Value(math.Inf(-1)), `"-Infinity"`},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			raw, err := json.Marshal(tt.v)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(raw))
		})
	}

	var v Value
	assert.Error(t, json.Unmarshal([]byte(`"lots"`), &v))
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
	}{
		{"hour out of range", Document{Start: jan2020, Size: 2, Cost: []ContextDoc{{Entries: []Entry{{Hour: 2, Value: 1}}}}}},
		{"unknown interval", Document{Start: jan2020, Interval: "weekly"}},
		{"unknown product context", Document{Start: jan2020, Cost: []ContextDoc{{Product: "Nope"}}}},
		{"unknown account", Document{Start: jan2020, Cost: []ContextDoc{{Entries: []Entry{{Account: "999", Value: 1}}}}}},
		{"unknown user tag key", Document{Start: jan2020, Cost: []ContextDoc{{Entries: []Entry{{UserTags: map[string]string{"Env": "prod"}}}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(&tt.doc, catalog.New())
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.TypeParsing), "got %v", err)
		})
	}
}

func TestMonthlyDocumentSize(t *testing.T) {
	data, err := Decode(&Document{Start: jan2020, Interval: dataset.Monthly}, catalog.New())
	require.NoError(t, err)
	assert.Equal(t, 1, data.Size())
}

func TestReadWriteFile(t *testing.T) {
	cat := catalog.New(catalog.WithAutoCreate())
	data := decodeSample(t, cat)

	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, WriteFile(path, data, cat.UserTagKeys(), true))

	back, err := ReadFile(path, cat)
	require.NoError(t, err)
	assert.Equal(t, data.Size(), back.Size())
	assert.Equal(t, data.Products(), back.Products())

	s3, _ := cat.Product("AmazonS3")
	assert.Equal(t, data.Get(dataset.Cost, s3).Interval(0), back.Get(dataset.Cost, s3).Interval(0))

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.json"), cat)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypeNotFound))
}
