package domain

import (
	"math"
	"testing"

	"github.com/DRSN-tech/search-assistant/pkg/e"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVector_Validate(t *testing.T) {
	tests := []struct {
		name    string
		v       Vector
		dim     int
		wantErr error
	}{
		{name: "ok", v: Vector{0.1, 0.2, 0.3}, dim: 3},
		{name: "empty", v: nil, dim: 3, wantErr: e.ErrEmptyVectors},
		{name: "wrong dimension", v: Vector{1, 2}, dim: 3, wantErr: e.ErrVectorDimension},
		{name: "nan", v: Vector{1, float32(math.NaN()), 3}, dim: 3, wantErr: e.ErrVectorNotFinite},
		{name: "inf", v: Vector{float32(math.Inf(-1)), 2, 3}, dim: 3, wantErr: e.ErrVectorNotFinite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.v.Validate(tt.dim)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestVectorFromFloat64(t *testing.T) {
	v, err := VectorFromFloat64([]float64{0.5, -1, 2})
	require.NoError(t, err)
	assert.Equal(t, Vector{0.5, -1, 2}, v)

	_, err = VectorFromFloat64([]float64{1, math.MaxFloat64})
	assert.ErrorIs(t, err, e.ErrVectorNotFinite)

	_, err = VectorFromFloat64([]float64{math.NaN()})
	assert.ErrorIs(t, err, e.ErrVectorNotFinite)
}

func TestSchemaSnapshot_String(t *testing.T) {
	s := SchemaSnapshot{
		{Table: "products", Column: "id", DataType: "integer"},
		{Table: "products", Column: "text_embedding", DataType: "vector"},
	}

	assert.Equal(t, "products - id: integer\nproducts - text_embedding: vector", s.String())
	assert.Empty(t, SchemaSnapshot{}.String())
}

func TestParseMetric(t *testing.T) {
	for in, want := range map[string]Metric{
		"cosine":        MetricCosine,
		"l2":            MetricL2,
		"euclid":        MetricL2,
		"inner_product": MetricInnerProduct,
		"ip":            MetricInnerProduct,
	} {
		got, err := ParseMetric(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseMetric("manhattan")
	assert.Error(t, err)
}

func TestPriceRange_IsEmpty(t *testing.T) {
	var nilRange *PriceRange
	max := decimal.RequireFromString("100")

	assert.True(t, nilRange.IsEmpty())
	assert.True(t, (&PriceRange{}).IsEmpty())
	assert.False(t, (&PriceRange{Max: &max}).IsEmpty())
}

func TestProduct_EmbeddingText(t *testing.T) {
	p := NewProduct("Red Umbrella", "folding, windproof", decimal.RequireFromString("19.9"))
	assert.Equal(t, "Red Umbrella folding, windproof 19.90", p.EmbeddingText())
	assert.Equal(t, "19.90", p.Metadata["price"])

	bare := &Product{Title: "Hat"}
	assert.Equal(t, "Hat", bare.EmbeddingText())
}
