// Package pagination slices ordered collections into fixed-size pages.
package pagination

import "sync"

// DefaultPageSize is used when no positive page size is given.
const DefaultPageSize = 10

// Page is one window of a collection.
type Page[T any] struct {
	Rows        []T
	PageIndex   int
	PageCount   int
	CanPrevious bool
	CanNext     bool
}

// PageCount returns max(1, ceil(total/pageSize)).
func PageCount(total, pageSize int) int {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if total <= 0 {
		return 1
	}
	return (total + pageSize - 1) / pageSize
}

// Clamp bounds index to [0, pageCount-1].
func Clamp(index, pageCount int) int {
	if index >= pageCount {
		index = pageCount - 1
	}
	if index < 0 {
		index = 0
	}
	return index
}

// Paginate returns the rows of page pageIndex. An index outside the page
// range yields no rows.
func Paginate[T any](items []T, pageSize, pageIndex int) Page[T] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	count := PageCount(len(items), pageSize)
	page := Page[T]{
		PageIndex:   pageIndex,
		PageCount:   count,
		CanPrevious: pageIndex > 0,
		CanNext:     pageIndex < count-1,
	}
	start := pageIndex * pageSize
	if pageIndex < 0 || start >= len(items) {
		page.Rows = []T{}
		return page
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	page.Rows = append([]T(nil), items[start:end]...)
	return page
}

// View is the paging surface shared by Pager and the table controller.
type View interface {
	PageIndex() int
	PageSize() int
	PageCount() int
	CanPrevious() bool
	CanNext() bool
	SetPageIndex(index int)
	SetPageSize(size int)
	NextPage()
	PreviousPage()
}

// Pager pages over a plain slice.
type Pager[T any] struct {
	mu        sync.RWMutex
	items     []T
	pageSize  int
	pageIndex int
}

// NewPager builds a Pager starting on page 0.
func NewPager[T any](items []T, pageSize int) *Pager[T] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Pager[T]{items: append([]T(nil), items...), pageSize: pageSize}
}

// Current returns the page at the current index.
func (p *Pager[T]) Current() Page[T] {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Paginate(p.items, p.pageSize, p.pageIndex)
}

// TotalItems returns the number of items being paged.
func (p *Pager[T]) TotalItems() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.items)
}

// SetItems swaps the collection. The index is kept even when it now points
// past the last page.
func (p *Pager[T]) SetItems(items []T) {
	p.mu.Lock()
	p.items = append([]T(nil), items...)
	p.mu.Unlock()
}

// PageIndex returns the zero-based current page.
func (p *Pager[T]) PageIndex() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pageIndex
}

// PageSize returns the number of rows per page.
func (p *Pager[T]) PageSize() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pageSize
}

// PageCount returns the number of pages, at least 1.
func (p *Pager[T]) PageCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return PageCount(len(p.items), p.pageSize)
}

// CanPrevious reports whether a page precedes the current one.
func (p *Pager[T]) CanPrevious() bool {
	return p.PageIndex() > 0
}

// CanNext reports whether a page follows the current one.
func (p *Pager[T]) CanNext() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pageIndex < PageCount(len(p.items), p.pageSize)-1
}

// SetPageIndex moves to index, clamped into range.
func (p *Pager[T]) SetPageIndex(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pageIndex = Clamp(index, PageCount(len(p.items), p.pageSize))
}

// GoToPage is SetPageIndex.
func (p *Pager[T]) GoToPage(index int) {
	p.SetPageIndex(index)
}

// SetPageSize changes the page size and returns to page 0. Sizes <= 0 are ignored.
func (p *Pager[T]) SetPageSize(size int) {
	if size <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pageSize = size
	p.pageIndex = 0
}

// NextPage advances one page; it is a no-op on the last page.
func (p *Pager[T]) NextPage() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pageIndex < PageCount(len(p.items), p.pageSize)-1 {
		p.pageIndex++
	}
}

// PreviousPage goes back one page; it is a no-op on the first page.
func (p *Pager[T]) PreviousPage() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pageIndex > 0 {
		p.pageIndex--
	}
}

// Window returns up to span page indexes centred on the view's current page.
func Window(view View, span int) []int {
	count := view.PageCount()
	if span <= 0 || span > count {
		span = count
	}
	start := view.PageIndex() - span/2
	if start > count-span {
		start = count - span
	}
	if start < 0 {
		start = 0
	}
	pages := make([]int, span)
	for offset := range pages {
		pages[offset] = start + offset
	}
	return pages
}
