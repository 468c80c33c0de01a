package table

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/MarcoPoloResearchLab/roster/internal/records"
)

func person(id int, first string, age int) records.Record {
	return records.Record{ID: id, FirstName: first, LastName: "Test", Age: age}
}

func idsOf(rows []records.Record) []int {
	out := make([]int, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ID)
	}
	return out
}

func headersOf(columns []Column[records.Record]) []string {
	out := make([]string, 0, len(columns))
	for _, column := range columns {
		out = append(out, column.Header)
	}
	return out
}

func TestMergeRemoteWins(t *testing.T) {
	remote := []records.Record{person(1, "A", 20), person(2, "B", 30)}
	local := []records.Record{person(2, "B-draft", 31), person(3, "C", 40)}

	merged := Merge(remote, local)
	if diff := cmp.Diff([]int{1, 2, 3}, idsOf(merged)); diff != "" {
		t.Fatalf("unexpected merge order (-want +got):\n%s", diff)
	}
	if merged[1].FirstName != "B" {
		t.Fatalf("expected remote row to win, got %q", merged[1].FirstName)
	}
	if got := Merge[records.Record](nil, nil); len(got) != 0 {
		t.Fatalf("expected empty merge, got %v", got)
	}
}

func TestFilterIsCaseInsensitiveSubstring(t *testing.T) {
	controller := New([]records.Record{person(1, "Anna", 30), person(2, "Bob", 25), person(3, "Cody", 40)}, UserColumns())
	controller.SetColumnFilter("firstName", "AN")
	if diff := cmp.Diff([]int{1}, idsOf(controller.Rows())); diff != "" {
		t.Fatalf("unexpected filtered rows (-want +got):\n%s", diff)
	}
	controller.SetColumnFilter("firstName", "")
	if controller.RowCount() != 3 {
		t.Fatalf("expected cleared filter to restore rows, got %d", controller.RowCount())
	}
}

func TestFiltersAreANDed(t *testing.T) {
	rows := []records.Record{person(1, "Anna", 30), person(2, "Hannah", 30), person(3, "Ann", 41)}
	controller := New(rows, UserColumns())
	controller.SetColumnFilter("firstName", "ann")
	controller.SetColumnFilter("age", "30")
	if diff := cmp.Diff([]int{1, 2}, idsOf(controller.Rows())); diff != "" {
		t.Fatalf("unexpected rows (-want +got):\n%s", diff)
	}
}

func TestNumericSortIsStable(t *testing.T) {
	rows := []records.Record{person(1, "a", 30), person(2, "b", 9), person(3, "c", 30), person(4, "d", 100)}
	controller := New(rows, UserColumns())

	controller.SetSort("age", Asc, false)
	if diff := cmp.Diff([]int{2, 1, 3, 4}, idsOf(controller.Rows())); diff != "" {
		t.Fatalf("unexpected ascending order (-want +got):\n%s", diff)
	}
	controller.SetSort("age", Desc, false)
	if diff := cmp.Diff([]int{4, 1, 3, 2}, idsOf(controller.Rows())); diff != "" {
		t.Fatalf("unexpected descending order (-want +got):\n%s", diff)
	}
	controller.SetSort("age", None, false)
	if diff := cmp.Diff([]int{1, 2, 3, 4}, idsOf(controller.Rows())); diff != "" {
		t.Fatalf("expected original order without sort (-want +got):\n%s", diff)
	}
}

func TestAdditiveSortUsesSecondaryKey(t *testing.T) {
	rows := []records.Record{person(1, "Zed", 30), person(2, "Amy", 30), person(3, "Bo", 20)}
	controller := New(rows, UserColumns())
	controller.SetSort("age", Asc, false)
	controller.SetSort("firstName", Asc, true)

	if diff := cmp.Diff([]int{3, 2, 1}, idsOf(controller.Rows())); diff != "" {
		t.Fatalf("unexpected multi-key order (-want +got):\n%s", diff)
	}
	if got := len(controller.State().Sorting); got != 2 {
		t.Fatalf("expected two sort keys, got %d", got)
	}
	controller.SetSort("age", None, true)
	if diff := cmp.Diff([]SortKey{{ColumnID: "firstName", Direction: Asc}}, controller.State().Sorting); diff != "" {
		t.Fatalf("unexpected sort keys (-want +got):\n%s", diff)
	}
}

func TestPagingClampsAndFilterResetsPage(t *testing.T) {
	rows := make([]records.Record, 0, 25)
	for id := 1; id <= 25; id++ {
		rows = append(rows, person(id, "row", id))
	}
	controller := New(rows, UserColumns())

	controller.SetPageIndex(2)
	if diff := cmp.Diff([]int{21, 22, 23, 24, 25}, idsOf(controller.Rows())); diff != "" {
		t.Fatalf("unexpected last page (-want +got):\n%s", diff)
	}
	if controller.CanNext() || !controller.CanPrevious() {
		t.Fatalf("unexpected navigation flags on last page")
	}
	controller.SetPageIndex(10)
	if controller.PageIndex() != 2 {
		t.Fatalf("expected clamp to last page, got %d", controller.PageIndex())
	}

	controller.SetRows(rows[:5])
	if controller.PageIndex() != 0 {
		t.Fatalf("expected shrink to clamp page, got %d", controller.PageIndex())
	}

	controller.SetRows(rows)
	controller.SetPageIndex(1)
	controller.SetColumnFilter("firstName", "row")
	if controller.PageIndex() != 0 {
		t.Fatalf("expected filter change to reset page, got %d", controller.PageIndex())
	}

	controller.SetPageIndex(1)
	controller.SetPageSize(-3)
	if controller.PageSize() != 10 || controller.PageIndex() != 1 {
		t.Fatalf("non-positive page size must be ignored")
	}
	controller.SetPageSize(5)
	if controller.PageIndex() != 0 || controller.PageCount() != 5 {
		t.Fatalf("expected page size change to reset to first of 5 pages")
	}
}

func TestEmptyCollectionHasOnePage(t *testing.T) {
	controller := New[records.Record](nil, UserColumns())
	if controller.PageCount() != 1 || controller.PageIndex() != 0 || len(controller.Rows()) != 0 {
		t.Fatalf("unexpected empty state %+v", controller.State())
	}
	controller.NextPage()
	if controller.PageIndex() != 0 {
		t.Fatalf("next must not move on a single page")
	}
}

func TestVisibleColumnsHonourCustomization(t *testing.T) {
	customization := Customization{
		Hidden:  []string{"phone"},
		Order:   []string{"email", "id"},
		Widths:  map[string]int{"email": 40},
		Headers: map[string]string{"id": "#"},
	}
	controller := New[records.Record](nil, UserColumns(), WithCustomization(customization))
	controller.SetColumnVisible("birthDate", false)
	controller.SetColumnVisible("phone", true)

	columns := controller.VisibleColumns()
	want := []string{"Email", "#", "First Name", "Last Name", "Age"}
	if diff := cmp.Diff(want, headersOf(columns)); diff != "" {
		t.Fatalf("unexpected visible columns (-want +got):\n%s", diff)
	}
	if columns[0].Width != 40 {
		t.Fatalf("expected width override, got %d", columns[0].Width)
	}
}

func TestLoadPreset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	document := "hidden: [phone]\norder: [lastName, firstName]\nheaders:\n  age: Years\nwidths:\n  lastName: 20\n"
	if err := os.WriteFile(path, []byte(document), 0o600); err != nil {
		t.Fatalf("failed to write preset: %v", err)
	}
	preset, err := LoadPreset(path)
	if err != nil {
		t.Fatalf("failed to load preset: %v", err)
	}
	want := Customization{
		Hidden:  []string{"phone"},
		Order:   []string{"lastName", "firstName"},
		Widths:  map[string]int{"lastName": 20},
		Headers: map[string]string{"age": "Years"},
	}
	if diff := cmp.Diff(want, preset); diff != "" {
		t.Fatalf("unexpected preset (-want +got):\n%s", diff)
	}

	if _, err := ParsePreset([]byte("hidden: {")); err == nil {
		t.Fatalf("expected malformed preset to fail")
	}
}
