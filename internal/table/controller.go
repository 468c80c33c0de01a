// Package table derives the sorted, filtered and paged view of a collection
// and owns the state that drives it.
package table

import (
	"sort"
	"strings"
	"sync"

	"github.com/MarcoPoloResearchLab/roster/internal/pagination"
	"github.com/MarcoPoloResearchLab/roster/internal/records"
)

// Direction is a sort direction. None removes the column from the sort.
type Direction int

const (
	None Direction = iota
	Asc
	Desc
)

func (d Direction) String() string {
	switch d {
	case Asc:
		return "asc"
	case Desc:
		return "desc"
	default:
		return "none"
	}
}

// SortKey is one entry of a multi-column sort.
type SortKey struct {
	ColumnID  string
	Direction Direction
}

// State is a copy of the controller's table state.
type State struct {
	Sorting          []SortKey
	ColumnFilters    map[string]string
	ColumnVisibility map[string]bool
	PageIndex        int
	PageSize         int
}

// Option configures a Controller.
type Option func(*settings)

type settings struct {
	customization Customization
	pageSize      int
}

// WithCustomization applies hidden columns, ordering, widths and headers.
func WithCustomization(c Customization) Option {
	return func(s *settings) {
		s.customization = c
	}
}

// WithPageSize overrides the default page size of 10.
func WithPageSize(size int) Option {
	return func(s *settings) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

// Controller holds rows, columns and table state, and keeps the derived
// view current after every mutation.
type Controller[T any] struct {
	mu       sync.RWMutex
	rows     []T
	columns  []Column[T]
	byID     map[string]Column[T]
	state    State
	filtered []T
}

var _ pagination.View = (*Controller[records.Record])(nil)

// New builds a controller over rows.
func New[T any](rows []T, columns []Column[T], opts ...Option) *Controller[T] {
	cfg := settings{pageSize: pagination.DefaultPageSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	customized := customize(columns, cfg.customization)
	byID := make(map[string]Column[T], len(customized))
	for _, column := range customized {
		byID[column.ID] = column
	}
	c := &Controller[T]{
		rows:    append([]T(nil), rows...),
		columns: customized,
		byID:    byID,
		state: State{
			ColumnFilters:    map[string]string{},
			ColumnVisibility: map[string]bool{},
			PageSize:         cfg.pageSize,
		},
	}
	c.recompute()
	return c
}

// Rows returns the current page of the filtered, sorted rows.
func (c *Controller[T]) Rows() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return pagination.Paginate(c.filtered, c.state.PageSize, c.state.PageIndex).Rows
}

// FilteredRows returns every row that passes the filters, sorted.
func (c *Controller[T]) FilteredRows() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]T(nil), c.filtered...)
}

// RowCount is the number of filtered rows.
func (c *Controller[T]) RowCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.filtered)
}

// State returns a copy of the table state.
func (c *Controller[T]) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	state := c.state
	state.Sorting = append([]SortKey(nil), c.state.Sorting...)
	state.ColumnFilters = make(map[string]string, len(c.state.ColumnFilters))
	for id, value := range c.state.ColumnFilters {
		state.ColumnFilters[id] = value
	}
	state.ColumnVisibility = make(map[string]bool, len(c.state.ColumnVisibility))
	for id, visible := range c.state.ColumnVisibility {
		state.ColumnVisibility[id] = visible
	}
	return state
}

// Columns returns every column after customization, visible or not.
func (c *Controller[T]) Columns() []Column[T] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Column[T](nil), c.columns...)
}

// VisibleColumns returns the customized columns minus those toggled off.
func (c *Controller[T]) VisibleColumns() []Column[T] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	visible := make([]Column[T], 0, len(c.columns))
	for _, column := range c.columns {
		if shown, ok := c.state.ColumnVisibility[column.ID]; ok && !shown {
			continue
		}
		visible = append(visible, column)
	}
	return visible
}

// SetRows replaces the collection, typically with a fresh merge.
func (c *Controller[T]) SetRows(rows []T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = append([]T(nil), rows...)
	c.recompute()
}

// SetColumnFilter sets a case-insensitive substring filter. An empty value
// removes it. A changed filter returns to the first page.
func (c *Controller[T]) SetColumnFilter(columnID, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byID[columnID]; !ok {
		return
	}
	current, exists := c.state.ColumnFilters[columnID]
	if value == "" {
		if !exists {
			return
		}
		delete(c.state.ColumnFilters, columnID)
	} else {
		if exists && current == value {
			return
		}
		c.state.ColumnFilters[columnID] = value
	}
	c.state.PageIndex = 0
	c.recompute()
}

// SetSort sets the direction for a column. Without additive the column
// becomes the only sort key; with it the key is added, changed or removed
// in place.
func (c *Controller[T]) SetSort(columnID string, direction Direction, additive bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byID[columnID]; !ok {
		return
	}
	next := make([]SortKey, 0, len(c.state.Sorting)+1)
	if additive {
		replaced := false
		for _, key := range c.state.Sorting {
			if key.ColumnID != columnID {
				next = append(next, key)
				continue
			}
			replaced = true
			if direction != None {
				next = append(next, SortKey{ColumnID: columnID, Direction: direction})
			}
		}
		if !replaced && direction != None {
			next = append(next, SortKey{ColumnID: columnID, Direction: direction})
		}
	} else if direction != None {
		next = append(next, SortKey{ColumnID: columnID, Direction: direction})
	}
	if sortingEqual(next, c.state.Sorting) {
		return
	}
	c.state.Sorting = next
	c.recompute()
}

// SortDirection reports the direction currently applied to a column.
func (c *Controller[T]) SortDirection(columnID string) Direction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, key := range c.state.Sorting {
		if key.ColumnID == columnID {
			return key.Direction
		}
	}
	return None
}

// SetColumnVisible shows or hides a column.
func (c *Controller[T]) SetColumnVisible(columnID string, visible bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byID[columnID]; !ok {
		return
	}
	c.state.ColumnVisibility[columnID] = visible
}

// PageIndex returns the zero-based current page.
func (c *Controller[T]) PageIndex() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.PageIndex
}

// PageSize returns the number of rows per page.
func (c *Controller[T]) PageSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.PageSize
}

// PageCount returns the number of pages, at least 1.
func (c *Controller[T]) PageCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return pagination.PageCount(len(c.filtered), c.state.PageSize)
}

// CanPrevious reports whether a page precedes the current one.
func (c *Controller[T]) CanPrevious() bool {
	return c.PageIndex() > 0
}

// CanNext reports whether a page follows the current one.
func (c *Controller[T]) CanNext() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.PageIndex < pagination.PageCount(len(c.filtered), c.state.PageSize)-1
}

// SetPageIndex moves to index, clamped into range.
func (c *Controller[T]) SetPageIndex(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.PageIndex = pagination.Clamp(index, pagination.PageCount(len(c.filtered), c.state.PageSize))
}

// SetPageSize changes the page size and returns to the first page. Sizes <= 0 are ignored.
func (c *Controller[T]) SetPageSize(size int) {
	if size <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if size == c.state.PageSize {
		return
	}
	c.state.PageSize = size
	c.state.PageIndex = 0
}

// NextPage advances one page; it is a no-op on the last page.
func (c *Controller[T]) NextPage() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.PageIndex < pagination.PageCount(len(c.filtered), c.state.PageSize)-1 {
		c.state.PageIndex++
	}
}

// PreviousPage goes back one page; it is a no-op on the first page.
func (c *Controller[T]) PreviousPage() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.PageIndex > 0 {
		c.state.PageIndex--
	}
}

// CellText renders the value of a row in a column.
func (c *Controller[T]) CellText(row T, columnID string) string {
	c.mu.RLock()
	column, ok := c.byID[columnID]
	c.mu.RUnlock()
	if !ok || column.Value == nil {
		return ""
	}
	return cellText(column.Value(row))
}

// recompute rebuilds the filtered view and clamps the page. Callers hold c.mu.
func (c *Controller[T]) recompute() {
	filtered := make([]T, 0, len(c.rows))
	for _, row := range c.rows {
		if c.matches(row) {
			filtered = append(filtered, row)
		}
	}
	if len(c.state.Sorting) > 0 {
		sort.SliceStable(filtered, func(i, j int) bool {
			return c.less(filtered[i], filtered[j])
		})
	}
	c.filtered = filtered
	c.state.PageIndex = pagination.Clamp(c.state.PageIndex, pagination.PageCount(len(filtered), c.state.PageSize))
}

func (c *Controller[T]) matches(row T) bool {
	for columnID, needle := range c.state.ColumnFilters {
		column := c.byID[columnID]
		if column.Value == nil {
			continue
		}
		haystack := strings.ToLower(cellText(column.Value(row)))
		if !strings.Contains(haystack, strings.ToLower(needle)) {
			return false
		}
	}
	return true
}

func (c *Controller[T]) less(a, b T) bool {
	for _, key := range c.state.Sorting {
		column := c.byID[key.ColumnID]
		if column.Value == nil {
			continue
		}
		order := compare(column, column.Value(a), column.Value(b))
		if order == 0 {
			continue
		}
		if key.Direction == Desc {
			return order > 0
		}
		return order < 0
	}
	return false
}

func compare[T any](column Column[T], a, b any) int {
	if column.Kind == Numeric {
		left, leftOK := cellNumber(a)
		right, rightOK := cellNumber(b)
		if leftOK && rightOK {
			switch {
			case left < right:
				return -1
			case left > right:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(strings.ToLower(cellText(a)), strings.ToLower(cellText(b)))
}

func sortingEqual(a, b []SortKey) bool {
	if len(a) != len(b) {
		return false
	}
	for index := range a {
		if a[index] != b[index] {
			return false
		}
	}
	return true
}
