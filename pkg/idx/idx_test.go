package idx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("generates valid ULIDs", func(t *testing.T) {
		id := New()
		_, err := Parse(id.String())
		require.NoError(t, err)
	})

	t.Run("monotonic within same instant", func(t *testing.T) {
		at := time.Now().UTC()
		a := NewAt(at)
		b := NewAt(at)
		require.Less(t, a.String(), b.String())
	})
}

func TestParse(t *testing.T) {
	t.Parallel()

	t.Run("rejects empty and malformed", func(t *testing.T) {
		_, err := Parse("")
		require.ErrorIs(t, err, ErrInvalid)
		_, err = Parse("not-a-ulid")
		require.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("round-trips generated ids", func(t *testing.T) {
		id := New()
		parsed, err := Parse(id.String())
		require.NoError(t, err)
		require.Equal(t, id, parsed)
	})
}

func TestTime(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	id := NewAt(at)
	require.WithinDuration(t, at, id.Time(), time.Millisecond)

	require.True(t, Zero.Time().IsZero())
}
