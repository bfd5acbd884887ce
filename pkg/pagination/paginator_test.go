package pagination

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPaginatorWindows(t *testing.T) {
	p, err := New(50)
	require.NoError(t, err)

	offset, limit := p.NextPageRequest()
	require.Equal(t, 0, offset)
	require.Equal(t, 50, limit)

	require.True(t, p.Begin())
	require.Equal(t, Loading, p.State())
	require.False(t, p.Begin(), "a second load must not start while one is in progress")

	p.Observe(50)
	p.Advance()
	p.End()
	require.Equal(t, Idle, p.State())
	require.Equal(t, PageState{PageIndex: 1, PageSize: 50, HasMore: true}, p.Snapshot())

	offset, limit = p.NextPageRequest()
	require.Equal(t, 50, offset)
	require.Equal(t, 50, limit)

	require.True(t, p.Begin())
	p.Observe(30)
	p.Advance()
	p.End()
	require.Equal(t, Exhausted, p.State())
	require.False(t, p.HasMore())
	require.False(t, p.Begin(), "exhausted paginator must not start a load")
}

func TestPaginatorFailedLoadKeepsWindow(t *testing.T) {
	p, err := New(10)
	require.NoError(t, err)

	require.True(t, p.Begin())
	p.End()

	offset, _ := p.NextPageRequest()
	require.Equal(t, 0, offset)
	require.True(t, p.HasMore())
	require.True(t, p.Begin())
}

func TestPaginatorReset(t *testing.T) {
	p, err := New(10)
	require.NoError(t, err)

	require.True(t, p.Begin())
	p.Observe(3)
	p.Advance()
	p.Reset()

	require.Equal(t, PageState{PageIndex: 0, PageSize: 10, HasMore: true}, p.Snapshot())
	require.Equal(t, Idle, p.State())
}

func TestPaginatorHasMoreTracksLastPage(t *testing.T) {
	p, err := New(5)
	require.NoError(t, err)

	for _, tc := range []struct {
		count   int
		hasMore bool
	}{
		{5, true},
		{2, false},
		{5, true},
		{0, false},
	} {
		p.Observe(tc.count)
		require.Equal(t, tc.hasMore, p.HasMore(), "after a page of %d", tc.count)
	}
}

func TestNewRejectsBadPageSize(t *testing.T) {
	_, err := New(0)
	require.Error(t, err)
}
