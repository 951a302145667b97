package convert

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePrice(t *testing.T) {
	assert.Equal(t, 0.00000001, ParsePrice("0.00000001"))
	assert.Equal(t, 65000.5, ParsePrice(" 65000.50 "))
	assert.Equal(t, float64(0), ParsePrice("not-a-number"))
	assert.Equal(t, float64(0), ParsePrice(""))
}

func TestToFloat64(t *testing.T) {
	assert.Equal(t, 1.5, ToFloat64(1.5))
	assert.Equal(t, float64(3), ToFloat64(3))
	assert.Equal(t, float64(7), ToFloat64(int64(7)))
	assert.Equal(t, 2.5, ToFloat64(json.Number("2.5")))
	assert.Equal(t, 0.1, ToFloat64("0.1"))
	assert.Equal(t, float64(0), ToFloat64(nil))
	assert.Equal(t, float64(0), ToFloat64(struct{}{}))
}

func TestToInt64(t *testing.T) {
	assert.Equal(t, int64(42), ToInt64(int64(42)))
	assert.Equal(t, int64(42), ToInt64(42))
	assert.Equal(t, int64(42), ToInt64(42.9))
	assert.Equal(t, int64(42), ToInt64(" 42 "))
	assert.Equal(t, int64(42), ToInt64(json.Number("42")))
	assert.Equal(t, int64(0), ToInt64("abc"))
	assert.Equal(t, int64(0), ToInt64(nil))
}
