package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPaginate(t *testing.T) {
	pg := Paginate(0, 0, 120)
	require.Equal(t, 1, pg.Page)
	require.Equal(t, DefaultPerPage, pg.PerPage)
	require.Equal(t, 3, pg.TotalPages)

	pg = Paginate(2, 25, 51)
	require.Equal(t, 3, pg.TotalPages)

	pg = Paginate(1, 10, 0)
	require.Equal(t, 0, pg.TotalPages)
}

func TestPageSlice(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	require.Equal(t, []int{3, 4}, PageSlice(items, Paginate(2, 2, len(items))))
	require.Equal(t, []int{5}, PageSlice(items, Paginate(3, 2, len(items))))

	// Past the end: empty but non-nil.
	out := PageSlice(items, Paginate(4, 2, len(items)))
	require.NotNil(t, out)
	require.Empty(t, out)
}
