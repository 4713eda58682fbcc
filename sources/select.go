package sources

import (
	"slices"

	"github.com/kbukum/meshflow/contract"
	"github.com/kbukum/meshflow/datatree"
)

// selectFragment applies c's domain, material and variable restrictions to
// f. It reports false when f is not requested at all.
func selectFragment(c *contract.Contract, f datatree.Fragment) (datatree.Fragment, bool) {
	if !c.NeedsDomain(f.Domain) {
		return f, false
	}
	if f.Mesh == nil {
		return f, true
	}
	if mats := c.Materials(); mats != nil && len(f.Mesh.Materials) > 0 {
		if !slices.ContainsFunc(f.Mesh.Materials, func(m string) bool { return slices.Contains(mats, m) }) {
			return f, false
		}
	}
	f.Mesh = f.Mesh.WithoutFields(c.HasVariable)
	return f, true
}

// variablesOf lists the fields carried by meshes, in first-seen order.
func variablesOf(frags []datatree.Fragment) []contract.Variable {
	var vars []contract.Variable
	seen := make(map[string]bool)
	for _, f := range frags {
		if f.Mesh == nil {
			continue
		}
		names := make([]string, 0, len(f.Mesh.Fields))
		for name := range f.Mesh.Fields {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			if seen[name] {
				continue
			}
			seen[name] = true
			vars = append(vars, contract.Variable{Name: name, Centering: f.Mesh.Fields[name].Centering})
		}
	}
	return vars
}
