package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterValidate(t *testing.T) {
	assert.NoError(t, (&Filter{Limit: 50, Offset: 0}).Validate())
	assert.NoError(t, (&Filter{}).Validate())

	assert.Error(t, (&Filter{Limit: MaxLimit + 1}).Validate())
	assert.Error(t, (&Filter{Offset: -1}).Validate())
}

func TestFilterNormalize(t *testing.T) {
	t.Run("zero limit gets the default", func(t *testing.T) {
		f := &Filter{}
		f.Normalize()
		assert.Equal(t, DefaultLimit, f.Limit)
	})

	t.Run("excessive limit is capped", func(t *testing.T) {
		f := &Filter{Limit: 10000}
		f.Normalize()
		assert.Equal(t, MaxLimit, f.Limit)
	})

	t.Run("negative offset is cleared", func(t *testing.T) {
		f := &Filter{Offset: -5}
		f.Normalize()
		assert.Equal(t, 0, f.Offset)
	})

	t.Run("valid values untouched", func(t *testing.T) {
		f := &Filter{Limit: 25, Offset: 50}
		f.Normalize()
		assert.Equal(t, 25, f.Limit)
		assert.Equal(t, 50, f.Offset)
	})
}
