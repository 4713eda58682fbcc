package contract

import (
	"slices"
	"testing"
)

func TestNew_Defaults(t *testing.T) {
	c := New(Variable{Name: "temperature", Centering: CenteringNodal})
	if !c.AllDomains() || c.Domains() != nil {
		t.Error("new contract should request all domains")
	}
	if !c.CanStream() || !c.UseLoadBalancing() {
		t.Error("streaming and load balancing should default on")
	}
	if c.Representation() != RepresentationMesh {
		t.Errorf("expected mesh, got %s", c.Representation())
	}
}

func TestModifiers_DoNotMutateReceiver(t *testing.T) {
	base := New(Variable{Name: "temperature"})
	_ = base.WithVariable("pressure", CenteringZonal)
	_ = base.WithGhostWidth(2)
	_ = base.RestrictTo([]int{1})
	_ = base.WithPipelineIndex(4)

	if base.HasVariable("pressure") || base.GhostWidth() != 0 || !base.AllDomains() || base.PipelineIndex() != 0 {
		t.Errorf("receiver changed: %s", base)
	}
}

func TestWithVariable_FillsUnknownCentering(t *testing.T) {
	c := New(Variable{Name: "t"}).WithVariable("t", CenteringZonal)
	v, _ := c.Variable("t")
	if v.Centering != CenteringZonal {
		t.Errorf("expected zonal, got %s", v.Centering)
	}
	if n := len(c.Variables()); n != 1 {
		t.Errorf("expected one variable, got %d", n)
	}
}

func TestWithDerivedVariable_StaysRequested(t *testing.T) {
	c := New(Variable{Name: "temperature_scaled"}).
		WithVariable("temperature", CenteringNodal).
		WithDerivedVariable("temperature_scaled", "scale")

	if !c.HasVariable("temperature_scaled") {
		t.Fatal("derived variable must stay in the contract")
	}
	var read []string
	for _, v := range c.ReadVariables() {
		read = append(read, v.Name)
	}
	if !slices.Equal(read, []string{"temperature"}) {
		t.Errorf("sources should only read temperature, got %v", read)
	}
}

func TestGhostWidth_OnlyGrows(t *testing.T) {
	c := New().WithGhostWidth(2).WithGhostWidth(1)
	if c.GhostWidth() != 2 {
		t.Errorf("expected 2, got %d", c.GhostWidth())
	}
}

func TestRestrictTo(t *testing.T) {
	tests := []struct {
		name string
		base *Contract
		ids  []int
		want []int
	}{
		{"from all", New(), []int{3, 1, 1}, []int{1, 3}},
		{"intersects", New().RestrictTo([]int{1, 2}), []int{2, 3}, []int{2}},
		{"empty", New(), nil, []int{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.base.RestrictTo(tc.ids)
			if got.AllDomains() {
				t.Fatal("restricted contract must not request all domains")
			}
			if !slices.Equal(got.Domains(), tc.want) && !(len(got.Domains()) == 0 && len(tc.want) == 0) {
				t.Errorf("expected %v, got %v", tc.want, got.Domains())
			}
		})
	}
}

func TestNeedsDomain(t *testing.T) {
	c := New().RestrictTo([]int{0, 2})
	if !c.NeedsDomain(2) || c.NeedsDomain(1) {
		t.Errorf("unexpected domain membership for %v", c.Domains())
	}
	if !New().NeedsDomain(99) {
		t.Error("unrestricted contract needs every domain")
	}
}

func TestCovers(t *testing.T) {
	down := New(Variable{Name: "t"}, Variable{Name: "v", Centering: CenteringNodal}).WithGhostWidth(1).RestrictTo([]int{1, 2})

	tests := []struct {
		name string
		up   *Contract
		want bool
	}{
		{"identity", down, true},
		{"adds variable", down.WithVariable("p", CenteringZonal), true},
		{"widens ghosts", down.WithGhostWidth(3), true},
		{"adds domains", down.WithDomains(5), true},
		{"all domains", down.WithAllDomains(), true},
		{"drops variable", New().WithGhostWidth(1).RestrictTo([]int{1, 2}), false},
		{"drops domain", down.RestrictTo([]int{1}), false},
		{"changes timestep", down.WithTimestep(3), false},
		{"restricts materials", down.RestrictMaterials("steel"), false},
		{"changes representation", down.WithRepresentation(RepresentationImage), false},
		{"changes centering", New(Variable{Name: "t"}, Variable{Name: "v", Centering: CenteringZonal}).WithGhostWidth(1).RestrictTo([]int{1, 2}), false},
		{"unknown centering", New(Variable{Name: "t"}, Variable{Name: "v"}).WithGhostWidth(1).RestrictTo([]int{1, 2}), true},
		{"names centering", New(Variable{Name: "t", Centering: CenteringZonal}, Variable{Name: "v", Centering: CenteringNodal}).WithGhostWidth(1).RestrictTo([]int{1, 2}), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.up.Covers(down); got != tc.want {
				t.Errorf("Covers = %v, want %v (missing %v)", got, tc.want, tc.up.Missing(down))
			}
		})
	}
}

func TestMaterials(t *testing.T) {
	c := New()
	if c.WithMaterials("steel").Materials() != nil {
		t.Error("unrestricted materials should stay unrestricted")
	}
	r := c.RestrictMaterials("steel").WithMaterials("air", "steel")
	if !slices.Equal(r.Materials(), []string{"air", "steel"}) {
		t.Errorf("got %v", r.Materials())
	}
	if !r.Covers(c.RestrictMaterials("air")) {
		t.Error("superset of materials should cover subset")
	}
}

func TestCountFilter(t *testing.T) {
	c := New().CountFilter().CountFilter()
	if c.FilterCount() != 2 {
		t.Errorf("expected 2, got %d", c.FilterCount())
	}
}

func TestSpec_RoundTrip(t *testing.T) {
	c := New(Variable{Name: "temperature", Centering: CenteringNodal}).
		WithDerivedVariable("scaled", "scale").
		RestrictTo([]int{0, 2}).
		WithGhostWidth(1).
		WithTimestep(3).
		WithRepresentation(RepresentationImage).
		WithPipelineIndex(7)

	back, err := FromSpec(c.Spec())
	if err != nil {
		t.Fatal(err)
	}
	if !back.Covers(c) || !c.Covers(back) {
		t.Errorf("round trip changed contract: %s vs %s", c, back)
	}
	if back.Representation() != RepresentationImage || back.PipelineIndex() != 7 {
		t.Errorf("lost fields: %s", back)
	}
	v, _ := back.Variable("scaled")
	if v.ProducedBy != "scale" {
		t.Errorf("lost producer: %+v", v)
	}
}

func TestSpec_EmptyRestrictionSurvives(t *testing.T) {
	c := New().RestrictTo(nil)
	back, err := FromSpec(c.Spec())
	if err != nil {
		t.Fatal(err)
	}
	if back.AllDomains() || len(back.Domains()) != 0 {
		t.Errorf("empty restriction became %s", back)
	}
}

func TestFromSpec_Invalid(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
	}{
		{"negative ghost", Spec{GhostWidth: -1}},
		{"bad representation", Spec{Representation: "hologram"}},
		{"unnamed variable", Spec{Variables: []VariableSpec{{Centering: "nodal"}}}},
		{"duplicate domains", Spec{Domains: []int{1, 1}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := FromSpec(tc.spec); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
