package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		meta Metadata
	}{
		{
			name: "rate limit",
			meta: RateLimitMeta{Category: "auth", Limit: 10, Remaining: 0, Reset: "2025-06-01T12:00:00Z"},
		},
		{
			name: "security violation",
			meta: SecurityViolationMeta{Check: "csrf", Origin: "https://evil.example"},
		},
		{
			name: "request",
			meta: RequestMeta{Method: "POST", Path: "/bookings", Status: 201, DurationMS: 42},
		},
		{
			name: "generic",
			meta: GenericMeta{"target": "booking-7", "attempts": float64(3)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := MarshalMetadata(tt.meta)
			require.NoError(t, err)

			decoded, err := UnmarshalMetadata(data)
			require.NoError(t, err)

			assert.Equal(t, tt.meta, decoded)
			assert.Equal(t, tt.meta.Kind(), decoded.Kind())
		})
	}
}

func TestMarshalMetadataNil(t *testing.T) {
	data, err := MarshalMetadata(nil)
	require.NoError(t, err)
	assert.Nil(t, data)

	decoded, err := UnmarshalMetadata(nil)
	require.NoError(t, err)
	assert.Nil(t, decoded)
}

func TestUnmarshalMetadataUnknownKind(t *testing.T) {
	decoded, err := UnmarshalMetadata([]byte(`{"kind":"legacy","payload":{"note":"old row"}}`))
	require.NoError(t, err)

	generic, ok := decoded.(GenericMeta)
	require.True(t, ok)
	assert.Equal(t, "old row", generic["note"])
}
