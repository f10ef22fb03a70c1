package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextSequence(t *testing.T) {
	require.Equal(t, 1, NextSequence(nil))
	require.Equal(t, 2, NextSequence([]string{"V/2025NOV05/1"}))
	require.Equal(t, 4, NextSequence([]string{"V/2025NOV05/1", "V/2025NOV05/3"}))
	// Gaps are not backfilled.
	require.Equal(t, 6, NextSequence([]string{"V/2025NOV05/5"}))
	// Unparseable trailing parts fall back to counting.
	require.Equal(t, 3, NextSequence([]string{"V/2025NOV05/x", "V/2025NOV05/y"}))
}
