package ranking

import (
	"slices"
	"testing"

	"github.com/HatiCode/mastercurve/pkg/wlf"
)

func makeCandidates() []wlf.Candidate {
	// Already ranked by SSE, as GridSearch returns them.
	return []wlf.Candidate{
		{ID: 7, C1: 10, C2: 35, SSE: 0.01},
		{ID: 3, C1: 5, C2: 15, SSE: 0.2},
		{ID: 12, C1: 15, C2: 10, SSE: 0.2},
		{ID: 1, C1: 0, C2: 5, SSE: 3.5},
		{ID: 40, C1: 20, C2: 0, SSE: 12},
	}
}

func ids(rows []Row) []int {
	out := make([]int, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func TestNew_InitialViewIsRankOrder(t *testing.T) {
	s := New(makeCandidates())

	if got, want := ids(s.Rows()), []int{7, 3, 12, 1, 40}; !slices.Equal(got, want) {
		t.Errorf("initial view = %v, want %v", got, want)
	}
	best, ok := s.Best()
	if !ok || best.ID != 7 {
		t.Errorf("Best() = %+v, %v; want id 7", best, ok)
	}
	if !s.Rows()[0].Recommended || s.Rows()[1].Recommended {
		t.Error("only the rank-0 row should be recommended")
	}
	if len(s.Selected()) != 0 {
		t.Errorf("Selected() = %v, want empty", s.Selected())
	}
}

func TestStore_EmptyBest(t *testing.T) {
	if _, ok := New(nil).Best(); ok {
		t.Error("Best() on empty store should report ok = false")
	}
}

func TestSort_Columns(t *testing.T) {
	tests := []struct {
		name string
		col  Column
		dir  Direction
		want []int
	}{
		{"C1 ascending", ColumnC1, Ascending, []int{1, 3, 7, 12, 40}},
		{"C1 descending", ColumnC1, Descending, []int{40, 12, 7, 3, 1}},
		{"C2 ascending", ColumnC2, Ascending, []int{40, 1, 12, 3, 7}},
		{"SSE descending keeps tie order", ColumnSSE, Descending, []int{40, 1, 3, 12, 7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(makeCandidates())
			rows, err := s.Sort(tt.col, tt.dir)
			if err != nil {
				t.Fatalf("Sort() error = %v", err)
			}
			if got := ids(rows); !slices.Equal(got, tt.want) {
				t.Errorf("Sort() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSort_Idempotent(t *testing.T) {
	s := New(makeCandidates())
	first, _ := s.Sort(ColumnSSE, Descending)
	second, _ := s.Sort(ColumnSSE, Descending)
	if !slices.Equal(ids(first), ids(second)) {
		t.Errorf("repeated sort changed order: %v then %v", ids(first), ids(second))
	}
}

func TestSort_ReverseIsExactReverseWithoutTies(t *testing.T) {
	cands := []wlf.Candidate{
		{ID: 0, C1: 0, C2: 5, SSE: 4},
		{ID: 1, C1: 0, C2: 10, SSE: 1},
		{ID: 2, C1: 5, C2: 5, SSE: 9},
		{ID: 3, C1: 5, C2: 10, SSE: 2.5},
	}
	s := New(cands)

	asc, _ := s.Sort(ColumnSSE, Ascending)
	desc, _ := s.Sort(ColumnSSE, Descending)

	reversed := ids(asc)
	slices.Reverse(reversed)
	if !slices.Equal(ids(desc), reversed) {
		t.Errorf("descending = %v, want reverse of ascending %v", ids(desc), reversed)
	}
}

func TestSort_DoesNotMutateCandidates(t *testing.T) {
	cands := makeCandidates()
	s := New(cands)
	if _, err := s.Sort(ColumnC1, Descending); err != nil {
		t.Fatal(err)
	}
	if cands[0].ID != 7 {
		t.Error("Sort mutated the input slice")
	}
	if best, _ := s.Best(); best.ID != 7 {
		t.Errorf("Best() after sort = %d, want 7", best.ID)
	}
}

func TestSort_UnknownColumn(t *testing.T) {
	if _, err := New(makeCandidates()).Sort(Column("Select"), Ascending); err == nil {
		t.Error("expected error for unknown column")
	}
}

func TestNextDirection_Alternates(t *testing.T) {
	s := New(makeCandidates())
	if d := s.NextDirection(ColumnC1); d != Ascending {
		t.Errorf("first NextDirection = %v, want Ascending", d)
	}
	s.Sort(ColumnC1, s.NextDirection(ColumnC1))
	if d := s.NextDirection(ColumnC1); d != Descending {
		t.Errorf("second NextDirection = %v, want Descending", d)
	}
	if d := s.NextDirection(ColumnC2); d != Ascending {
		t.Errorf("untouched column NextDirection = %v, want Ascending", d)
	}
}

func TestToggleAndSelected(t *testing.T) {
	s := New(makeCandidates())

	for _, id := range []int{12, 1, 7} {
		on, err := s.Toggle(id)
		if err != nil || !on {
			t.Fatalf("Toggle(%d) = %v, %v", id, on, err)
		}
	}
	if off, _ := s.Toggle(1); off {
		t.Error("second Toggle(1) should deselect")
	}

	got := s.Selected()
	if len(got) != 2 || got[0].ID != 7 || got[1].ID != 12 {
		t.Errorf("Selected() = %+v, want ids [7 12] in view order", got)
	}

	s.Sort(ColumnC1, Descending)
	got = s.Selected()
	if got[0].ID != 12 || got[1].ID != 7 {
		t.Errorf("Selected() after sort = %+v, want ids [12 7]", got)
	}

	if _, err := s.Toggle(999); err == nil {
		t.Error("Toggle(unknown) should fail")
	}

	s.ClearSelection()
	if len(s.Selected()) != 0 {
		t.Error("ClearSelection() left selections")
	}
}

func TestParseColumn(t *testing.T) {
	for _, in := range []string{"c1", "C2", " sse "} {
		if _, err := ParseColumn(in); err != nil {
			t.Errorf("ParseColumn(%q) error = %v", in, err)
		}
	}
	if _, err := ParseColumn("C3"); err == nil {
		t.Error("ParseColumn(C3) should fail")
	}
}
