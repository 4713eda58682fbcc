package datatree

import (
	"errors"
	"slices"
	"testing"

	"github.com/kbukum/meshflow/contract"
)

func segment(lo, hi float64) *Mesh {
	return &Mesh{
		Dimension: 1,
		Points:    [][]float64{{lo}, {hi}},
		NumCells:  1,
		Cells:     [][]int{{0, 1}},
		Fields: map[string]Field{
			"temperature": {Centering: contract.CenteringNodal, Values: []float64{lo, hi}},
		},
	}
}

func threeDomains() *Tree {
	return FromFragments(
		Fragment{Domain: 0, Label: "A", Mesh: segment(0, 1)},
		Fragment{Domain: 1, Label: "B", Mesh: segment(1, 2)},
		Fragment{Domain: 2, Label: "C", Mesh: segment(2, 3)},
	)
}

func TestTree_Empty(t *testing.T) {
	var nilTree *Tree
	if !nilTree.IsEmpty() || nilTree.NumLeaves() != 0 {
		t.Error("nil tree should be empty")
	}
	if !Node("x", nil, Node("y")).IsEmpty() {
		t.Error("node without leaves should be empty")
	}
}

func TestTree_LeavesInOrder(t *testing.T) {
	tree := Node("root", threeDomains(), Leaf(Fragment{Domain: 7, Mesh: segment(5, 6)}))
	var labels []int
	for _, f := range tree.Leaves() {
		labels = append(labels, f.Domain)
	}
	if !slices.Equal(labels, []int{0, 1, 2, 7}) {
		t.Errorf("unexpected order %v", labels)
	}
	if !slices.Equal(tree.Domains(), []int{0, 1, 2, 7}) {
		t.Errorf("unexpected domains %v", tree.Domains())
	}
}

func TestTree_MapIdentitySharesTree(t *testing.T) {
	tree := threeDomains()
	out, err := tree.Map(func(f Fragment) ([]Fragment, error) { return []Fragment{f}, nil })
	if err != nil {
		t.Fatal(err)
	}
	if out != tree {
		t.Error("identity map should return the same tree")
	}
}

func TestTree_MapSharesUntouchedSubtrees(t *testing.T) {
	left := threeDomains()
	right := FromFragments(Fragment{Domain: 9, Mesh: segment(0, 1)})
	tree := Node("", left, right)

	out, err := tree.Map(func(f Fragment) ([]Fragment, error) {
		if f.Domain == 9 {
			f.Label = "changed"
		}
		return []Fragment{f}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if out == tree {
		t.Fatal("changed tree must be a new tree")
	}
	if out.Children()[0] != left {
		t.Error("unchanged subtree should be shared")
	}
	if got := tree.Leaves()[3].Label; got != "" {
		t.Errorf("original tree mutated: label %q", got)
	}
}

func TestTree_MapOneToMany(t *testing.T) {
	out, err := threeDomains().Map(func(f Fragment) ([]Fragment, error) {
		return []Fragment{f, f}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.NumLeaves() != 6 {
		t.Errorf("expected 6 leaves, got %d", out.NumLeaves())
	}
	if out.Children()[1].Label() != "B" {
		t.Errorf("split leaf should keep its label, got %q", out.Children()[1].Label())
	}
}

func TestTree_MapStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	_, err := threeDomains().Map(func(f Fragment) ([]Fragment, error) {
		calls++
		if f.Domain == 1 {
			return nil, boom
		}
		return []Fragment{f}, nil
	})
	if !errors.Is(err, boom) || calls != 2 {
		t.Errorf("expected stop after domain 1, err=%v calls=%d", err, calls)
	}
}

func TestTree_Prune(t *testing.T) {
	tree := threeDomains()
	out := tree.Prune(func(f Fragment) bool { return f.Domain != 1 })
	if !slices.Equal(out.Domains(), []int{0, 2}) {
		t.Errorf("unexpected domains %v", out.Domains())
	}
	if tree.NumLeaves() != 3 {
		t.Error("prune must not change the original")
	}
}

func TestTree_SizeBytes(t *testing.T) {
	// 2 points * 1 dim + 2 connectivity + 2 values, 8 bytes each
	if got := threeDomains().SizeBytes(); got != 3*6*8 {
		t.Errorf("unexpected size %d", got)
	}
}

func TestMesh_Check(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Mesh)
		ok     bool
	}{
		{"valid", func(*Mesh) {}, true},
		{"negative cells", func(m *Mesh) { m.NumCells = -1 }, false},
		{"count mismatch", func(m *Mesh) { m.NumCells = 2 }, false},
		{"bad connectivity", func(m *Mesh) { m.Cells = [][]int{{0, 5}} }, false},
		{"short point", func(m *Mesh) { m.Points[1] = nil }, false},
		{"bad dimension", func(m *Mesh) { m.Dimension = 4 }, false},
		{"field length", func(m *Mesh) {
			m.Fields["p"] = Field{Centering: contract.CenteringZonal, Values: []float64{1, 2}}
		}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := segment(0, 1)
			tc.mutate(m)
			if err := m.Check(); (err == nil) != tc.ok {
				t.Errorf("Check() = %v, want ok=%v", err, tc.ok)
			}
		})
	}
}

func TestMesh_WithFieldCopyOnWrite(t *testing.T) {
	m := segment(0, 1)
	out := m.WithField("p", Field{Centering: contract.CenteringZonal, Values: []float64{4}})
	if _, ok := m.Field("p"); ok {
		t.Error("original mesh gained a field")
	}
	if _, ok := out.Field("p"); !ok {
		t.Error("new mesh missing field")
	}
}

func TestMesh_Extents(t *testing.T) {
	m := segment(1, 2)
	e, err := m.SpatialExtents()
	if err != nil {
		t.Fatal(err)
	}
	if lo, hi := e.Range(0); lo != 1 || hi != 2 {
		t.Errorf("got %g..%g", lo, hi)
	}
	if m.DataExtents("missing").HasExtents() {
		t.Error("missing field should have no extents")
	}
}
