// Package ranking holds the candidate table produced by a grid search and the
// user's view of it: the current sort order and which rows are ticked for
// overlay comparison.
//
// A Store never mutates the candidates it was built from. Sorting reorders a
// view; toggling flips a per-candidate flag. A new fit replaces the Store.
package ranking

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/HatiCode/mastercurve/pkg/wlf"
)

// Column names a sortable candidate attribute.
type Column string

const (
	ColumnC1  Column = "C1"
	ColumnC2  Column = "C2"
	ColumnSSE Column = "SSE"
)

// ParseColumn accepts a column name case-insensitively.
func ParseColumn(s string) (Column, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "C1":
		return ColumnC1, nil
	case "C2":
		return ColumnC2, nil
	case "SSE":
		return ColumnSSE, nil
	default:
		return "", fmt.Errorf("unknown column %q (must be C1, C2, or SSE)", s)
	}
}

// Direction is a sort direction.
type Direction bool

const (
	Ascending  Direction = false
	Descending Direction = true
)

// Row is one candidate as seen through the store.
type Row struct {
	wlf.Candidate
	Selected bool `json:"selected"`
	// Recommended marks the rank-0 candidate of the search.
	Recommended bool `json:"recommended"`
}

// Store is the selection/ranking table for one fit.
type Store struct {
	candidates []wlf.Candidate
	index      map[int]int // candidate ID -> position in candidates
	selected   map[int]bool
	view       []int // positions into candidates, in display order
	lastSort   map[Column]Direction
}

// New builds a store from a ranked candidate list. The first candidate is the
// recommended one. The initial view is rank order with nothing selected.
func New(ranked []wlf.Candidate) *Store {
	s := &Store{
		candidates: slices.Clone(ranked),
		index:      make(map[int]int, len(ranked)),
		selected:   make(map[int]bool),
		view:       make([]int, len(ranked)),
		lastSort:   make(map[Column]Direction),
	}
	for i, c := range s.candidates {
		s.index[c.ID] = i
		s.view[i] = i
	}
	return s
}

// Len returns the number of candidates.
func (s *Store) Len() int {
	return len(s.candidates)
}

// Best returns the rank-0 candidate regardless of view order or selection.
func (s *Store) Best() (wlf.Candidate, bool) {
	if len(s.candidates) == 0 {
		return wlf.Candidate{}, false
	}
	return s.candidates[0], true
}

// Rows returns the candidates in current view order.
func (s *Store) Rows() []Row {
	rows := make([]Row, len(s.view))
	for i, pos := range s.view {
		c := s.candidates[pos]
		rows[i] = Row{
			Candidate:   c,
			Selected:    s.selected[c.ID],
			Recommended: pos == 0,
		}
	}
	return rows
}

// Sort reorders the view by col in direction dir and returns the new view.
// The sort is stable with respect to the current view, so repeating the same
// call is a no-op and reversing the direction reverses untied rows.
//
// Cells are compared numerically; if any cell of the column fails to parse as
// a number the whole column is compared as text.
func (s *Store) Sort(col Column, dir Direction) ([]Row, error) {
	if _, err := ParseColumn(string(col)); err != nil {
		return nil, err
	}

	cells := make([]string, len(s.candidates))
	for i, c := range s.candidates {
		cells[i] = Cell(c, col)
	}

	nums := make([]float64, len(cells))
	numeric := true
	for i, cell := range cells {
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			numeric = false
			break
		}
		nums[i] = v
	}

	cmp := func(a, b int) int {
		if numeric {
			switch {
			case nums[a] < nums[b]:
				return -1
			case nums[a] > nums[b]:
				return 1
			}
			return 0
		}
		return strings.Compare(cells[a], cells[b])
	}

	slices.SortStableFunc(s.view, func(a, b int) int {
		if dir == Descending {
			return cmp(b, a)
		}
		return cmp(a, b)
	})
	s.lastSort[col] = dir

	return s.Rows(), nil
}

// NextDirection returns the direction a header click on col should use: the
// opposite of the last sort on that column, ascending the first time.
func (s *Store) NextDirection(col Column) Direction {
	last, ok := s.lastSort[col]
	if !ok {
		return Ascending
	}
	return !last
}

// Toggle flips the selection flag of the candidate with the given ID and
// returns the new state.
func (s *Store) Toggle(id int) (bool, error) {
	if _, ok := s.index[id]; !ok {
		return false, fmt.Errorf("unknown candidate id %d", id)
	}
	s.selected[id] = !s.selected[id]
	if !s.selected[id] {
		delete(s.selected, id)
	}
	return s.selected[id], nil
}

// Selected returns the ticked candidates in current view order. The result
// may be empty.
func (s *Store) Selected() []wlf.Candidate {
	var out []wlf.Candidate
	for _, pos := range s.view {
		c := s.candidates[pos]
		if s.selected[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

// ClearSelection unticks every candidate.
func (s *Store) ClearSelection() {
	clear(s.selected)
}

// Cell renders a candidate attribute the way the table shows it.
func Cell(c wlf.Candidate, col Column) string {
	switch col {
	case ColumnC1:
		return strconv.Itoa(c.C1)
	case ColumnC2:
		return strconv.Itoa(c.C2)
	case ColumnSSE:
		return strconv.FormatFloat(c.SSE, 'g', -1, 64)
	default:
		return ""
	}
}
