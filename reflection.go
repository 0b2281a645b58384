package refine

import (
	"fmt"
	"slices"
	"sort"

	"github.com/golang/geo/r3"
)

// Column names checked by ReflectionTable.Validate.
const (
	ColumnID          = "id"
	ColumnMillerIndex = "miller_index"
	ColumnXYZObs      = "xyzobs.px.value"
	ColumnXYZCal      = "xyzcal.mm"
	ColumnS1          = "s1"
	ColumnPanel       = "panel"
	ColumnUMatrix     = "u_matrix"
	ColumnBMatrix     = "b_matrix"
	ColumnUBMatrix    = "ub_matrix"
)

// Miller is a Miller index (h, k, l).
type Miller [3]int

// Vec returns the index as a real vector.
func (h Miller) Vec() r3.Vector {
	return r3.Vector{X: float64(h[0]), Y: float64(h[1]), Z: float64(h[2])}
}

// String returns "(h, k, l)".
func (h Miller) String() string {
	return fmt.Sprintf("(%d, %d, %d)", h[0], h[1], h[2])
}

// Reflection is one row of a ReflectionTable.
type Reflection struct {
	ExperimentID int       `json:"id"`
	MillerIndex  Miller    `json:"miller_index"`
	XYZObs       r3.Vector `json:"xyzobs"` // Z is the observed image number
	XYZCal       r3.Vector `json:"xyzcal"` // X, Y in mm; Z is phi in radians
	S1           r3.Vector `json:"s1"`
	Panel        int       `json:"panel"`
	U            Mat3      `json:"u_matrix"`
	B            Mat3      `json:"b_matrix"`
	UB           Mat3      `json:"ub_matrix"`
}

// ReflectionTable is a column-oriented set of reflections. Every column
// holds one entry per row; the U, B and UB columns are written by Compose
// and may be nil before it.
type ReflectionTable struct {
	ExperimentID []int
	MillerIndex  []Miller
	XYZObs       []r3.Vector
	XYZCal       []r3.Vector
	S1           []r3.Vector
	Panel        []int

	U  []Mat3
	B  []Mat3
	UB []Mat3
}

// NewReflectionTable builds a table from rows.
func NewReflectionTable(rows []Reflection) *ReflectionTable {
	t := &ReflectionTable{}
	for _, r := range rows {
		t.Append(r)
	}
	return t
}

// Len returns the number of rows, the length of the id column.
func (t *ReflectionTable) Len() int {
	return len(t.ExperimentID)
}

// Validate checks that every required column is present with one entry per row.
// Writable columns are checked only when present.
func (t *ReflectionTable) Validate() error {
	n := t.Len()
	if n == 0 && len(t.MillerIndex) > 0 {
		return fmt.Errorf("%w: %s is empty but %s has %d rows",
			ErrInvalidColumn, ColumnID, ColumnMillerIndex, len(t.MillerIndex))
	}
	required := []struct {
		name string
		len  int
	}{
		{ColumnMillerIndex, len(t.MillerIndex)},
		{ColumnXYZObs, len(t.XYZObs)},
		{ColumnXYZCal, len(t.XYZCal)},
		{ColumnS1, len(t.S1)},
		{ColumnPanel, len(t.Panel)},
	}
	for _, c := range required {
		if c.len != n {
			return fmt.Errorf("%w: %s has %d rows, want %d", ErrInvalidColumn, c.name, c.len, n)
		}
	}
	writable := []struct {
		name string
		len  int
	}{
		{ColumnUMatrix, len(t.U)},
		{ColumnBMatrix, len(t.B)},
		{ColumnUBMatrix, len(t.UB)},
	}
	for _, c := range writable {
		if c.len != 0 && c.len != n {
			return fmt.Errorf("%w: %s has %d rows, want %d", ErrInvalidColumn, c.name, c.len, n)
		}
	}
	return nil
}

// Append adds one row. Writable columns grow only if already present or if
// the table is empty.
func (t *ReflectionTable) Append(r Reflection) {
	withCrystal := t.Len() == 0 || t.U != nil
	t.ExperimentID = append(t.ExperimentID, r.ExperimentID)
	t.MillerIndex = append(t.MillerIndex, r.MillerIndex)
	t.XYZObs = append(t.XYZObs, r.XYZObs)
	t.XYZCal = append(t.XYZCal, r.XYZCal)
	t.S1 = append(t.S1, r.S1)
	t.Panel = append(t.Panel, r.Panel)
	if withCrystal {
		t.U = append(t.U, r.U)
		t.B = append(t.B, r.B)
		t.UB = append(t.UB, r.UB)
	}
}

// Row returns row i. Missing writable columns read as zero matrices.
func (t *ReflectionTable) Row(i int) Reflection {
	r := Reflection{
		ExperimentID: t.ExperimentID[i],
		MillerIndex:  t.MillerIndex[i],
		XYZObs:       t.XYZObs[i],
		XYZCal:       t.XYZCal[i],
		S1:           t.S1[i],
		Panel:        t.Panel[i],
	}
	if i < len(t.U) {
		r.U = t.U[i]
	}
	if i < len(t.B) {
		r.B = t.B[i]
	}
	if i < len(t.UB) {
		r.UB = t.UB[i]
	}
	return r
}

// Clone returns a deep copy of the table.
func (t *ReflectionTable) Clone() *ReflectionTable {
	return &ReflectionTable{
		ExperimentID: slices.Clone(t.ExperimentID),
		MillerIndex:  slices.Clone(t.MillerIndex),
		XYZObs:       slices.Clone(t.XYZObs),
		XYZCal:       slices.Clone(t.XYZCal),
		S1:           slices.Clone(t.S1),
		Panel:        slices.Clone(t.Panel),
		U:            slices.Clone(t.U),
		B:            slices.Clone(t.B),
		UB:           slices.Clone(t.UB),
	}
}

// Select returns the ascending row indices belonging to experiment expID.
func (t *ReflectionTable) Select(expID int) []int {
	var sel []int
	for i, id := range t.ExperimentID {
		if id == expID {
			sel = append(sel, i)
		}
	}
	return sel
}

// ExperimentIDs returns the sorted distinct experiment ids in the table.
func (t *ReflectionTable) ExperimentIDs() []int {
	seen := make(map[int]struct{})
	for _, id := range t.ExperimentID {
		seen[id] = struct{}{}
	}
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// ensureCrystalColumns allocates the U, B and UB columns if absent.
func (t *ReflectionTable) ensureCrystalColumns() {
	n := t.Len()
	if len(t.U) != n {
		t.U = make([]Mat3, n)
	}
	if len(t.B) != n {
		t.B = make([]Mat3, n)
	}
	if len(t.UB) != n {
		t.UB = make([]Mat3, n)
	}
}
