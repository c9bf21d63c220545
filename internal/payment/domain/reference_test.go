package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReferenceIsUniqueAndOrdered(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	seen := make(map[string]struct{}, 1000)
	prev := ""
	for i := 0; i < 1000; i++ {
		ref := NewReference(now)
		require.True(t, strings.HasPrefix(ref, ReferencePrefix))
		_, dup := seen[ref]
		require.False(t, dup, "duplicate reference %s", ref)
		seen[ref] = struct{}{}
		assert.Greater(t, ref, prev)
		prev = ref
	}

	id, err := ulid.Parse(strings.TrimPrefix(prev, ReferencePrefix))
	require.NoError(t, err)
	assert.Equal(t, ulid.Timestamp(now), id.Time())
}
