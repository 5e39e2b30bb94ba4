package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashDimensions_KeyOrderInvariant(t *testing.T) {
	a := HashDimensions(map[string]any{"plan": "pro", "region": "eu", "seats": 5})
	b := HashDimensions(map[string]any{"seats": 5, "region": "eu", "plan": "pro"})
	assert.Equal(t, a, b)
}

func TestHashDimensions_NilEqualsEmpty(t *testing.T) {
	assert.Equal(t, HashDimensions(nil), HashDimensions(map[string]any{}))
}

func TestHashDimensions_NonEmptyDiffersFromEmpty(t *testing.T) {
	empty := HashDimensions(nil)
	assert.NotEqual(t, empty, HashDimensions(map[string]any{"plan": "pro"}))
}

func TestHashDimensions_ValueSensitive(t *testing.T) {
	a := HashDimensions(map[string]any{"plan": "pro"})
	b := HashDimensions(map[string]any{"plan": "free"})
	assert.NotEqual(t, a, b)
}

func TestHashDimensions_TypeSensitive(t *testing.T) {
	asString := HashDimensions(map[string]any{"seats": "5"})
	asNumber := HashDimensions(map[string]any{"seats": 5})
	assert.NotEqual(t, asString, asNumber)
}
