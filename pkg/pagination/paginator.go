// Package pagination tracks offset/limit paging over a list endpoint.
package pagination

import "fmt"

type State int

const (
	Idle State = iota
	Loading
	Exhausted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// PageState is a snapshot of a Paginator.
type PageState struct {
	PageIndex int
	PageSize  int
	HasMore   bool
}

// Paginator is a pure state machine with no locking; its owner serializes
// access.
type Paginator struct {
	pageIndex int
	pageSize  int
	hasMore   bool
	loading   bool
}

func New(pageSize int) (*Paginator, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("pagination: page size must be positive, got %d", pageSize)
	}
	return &Paginator{pageSize: pageSize, hasMore: true}, nil
}

// NextPageRequest returns the window of the next page to fetch.
func (p *Paginator) NextPageRequest() (offset int, limit int) {
	return p.pageIndex * p.pageSize, p.pageSize
}

// Begin enters Loading. It returns false when a load is already running or
// there are no more pages, in which case the caller must not fetch.
func (p *Paginator) Begin() bool {
	if p.loading || !p.hasMore {
		return false
	}
	p.loading = true
	return true
}

// End leaves Loading without changing the page window, e.g. after a failed
// fetch so the same page can be retried.
func (p *Paginator) End() {
	p.loading = false
}

// Observe records how many rows the last fetched page returned.
func (p *Paginator) Observe(resultCount int) {
	p.hasMore = resultCount == p.pageSize
}

// Advance moves to the following page. Call it only after a successful fetch.
func (p *Paginator) Advance() {
	p.pageIndex++
}

func (p *Paginator) Reset() {
	p.pageIndex = 0
	p.hasMore = true
	p.loading = false
}

func (p *Paginator) HasMore() bool {
	return p.hasMore
}

func (p *Paginator) Loading() bool {
	return p.loading
}

func (p *Paginator) State() State {
	switch {
	case p.loading:
		return Loading
	case !p.hasMore:
		return Exhausted
	default:
		return Idle
	}
}

func (p *Paginator) Snapshot() PageState {
	return PageState{PageIndex: p.pageIndex, PageSize: p.pageSize, HasMore: p.hasMore}
}
