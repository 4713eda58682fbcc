package sources

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/kbukum/meshflow/contract"
	"github.com/kbukum/meshflow/datatree"
	"github.com/kbukum/meshflow/errors"
	"github.com/kbukum/meshflow/extents"
	"github.com/kbukum/meshflow/flow"
	"github.com/kbukum/meshflow/resource"
	"github.com/kbukum/meshflow/validation"
)

// Manifest describes a dataset stored as one YAML mesh file per domain.
//
//	name: blast
//	topological_dimension: 3
//	variables:
//	  - {name: pressure, centering: zonal}
//	timesteps:
//	  - timestep: 0
//	    domains:
//	      - {domain: 0, file: t0/d0.yaml, extents: [0, 1, 0, 1, 0, 1]}
type Manifest struct {
	Name                 string                  `yaml:"name" validate:"required"`
	TopologicalDimension int                     `yaml:"topological_dimension" validate:"gte=0,lte=3"`
	Variables            []contract.VariableSpec `yaml:"variables" validate:"dive"`
	Timesteps            []TimestepEntry         `yaml:"timesteps" validate:"required,dive"`
}

// TimestepEntry lists the domain files of one timestep.
type TimestepEntry struct {
	Timestep int           `yaml:"timestep" validate:"gte=0"`
	Domains  []DomainEntry `yaml:"domains" validate:"dive"`
}

// DomainEntry locates one domain. Extents, when present, are reported before
// the file is read.
type DomainEntry struct {
	Domain  int       `yaml:"domain" validate:"gte=0"`
	File    string    `yaml:"file" validate:"required"`
	Label   string    `yaml:"label"`
	Extents []float64 `yaml:"extents"`
}

// File reads a manifest-described dataset from disk.
type File struct {
	dir      string
	manifest Manifest
	vars     []contract.Variable
	handles  *resource.Manager
}

// NewFile loads the manifest at path. Domain files are opened through
// handles, or the default manager when handles is nil.
func NewFile(path string, handles *resource.Manager) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound("manifest", path).WithCause(err)
		}
		return nil, errors.Internal(err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.InvalidInput(path, fmt.Sprintf("parsing manifest: %v", err))
	}
	if err := validation.Validate(&m); err != nil {
		return nil, err
	}
	vars := make([]contract.Variable, 0, len(m.Variables))
	for _, vs := range m.Variables {
		centering, err := contract.ParseCentering(vs.Centering)
		if err != nil {
			return nil, errors.InvalidInput(path, err.Error())
		}
		vars = append(vars, contract.Variable{Name: vs.Name, Centering: centering})
	}
	if handles == nil {
		handles = resource.Default()
	}
	return &File{dir: filepath.Dir(path), manifest: m, vars: vars, handles: handles}, nil
}

// Name returns the dataset name.
func (f *File) Name() string { return f.manifest.Name }

// Variables lists the variables declared by the manifest.
func (f *File) Variables() []contract.Variable { return f.vars }

// TopologicalDimension returns the declared topological dimension.
func (f *File) TopologicalDimension() int { return f.manifest.TopologicalDimension }

// Domains returns the domain ids of timestep t.
func (f *File) Domains(t int) []int {
	step, ok := f.timestep(t)
	if !ok {
		return nil
	}
	ids := make([]int, len(step.Domains))
	for i, d := range step.Domains {
		ids[i] = d.Domain
	}
	return ids
}

func (f *File) timestep(t int) (TimestepEntry, bool) {
	for _, step := range f.manifest.Timesteps {
		if step.Timestep == t {
			return step, true
		}
	}
	return TimestepEntry{}, false
}

// FetchDataset reads the requested domain files of the requested timestep.
func (f *File) FetchDataset(ctx context.Context, c *contract.Contract, rec flow.ExtentsRecorder) (*datatree.Tree, error) {
	step, ok := f.timestep(c.Timestep())
	if !ok {
		return nil, errors.InvalidInput("timestep", fmt.Sprintf("%s has no timestep %d", f.manifest.Name, c.Timestep()))
	}
	var frags []datatree.Fragment
	for _, d := range step.Domains {
		if !c.NeedsDomain(d.Domain) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(d.Extents) > 0 {
			spatial, err := extents.FromBounds(d.Extents...)
			if err != nil {
				return nil, errors.DataIntegrity(d.Domain, err.Error())
			}
			if err := rec.MergeExtents(d.Domain, spatial, nil); err != nil {
				return nil, err
			}
		}
		mesh, err := f.read(d)
		if err != nil {
			return nil, err
		}
		if sel, ok := selectFragment(c, datatree.Fragment{Domain: d.Domain, Label: d.Label, Mesh: mesh}); ok {
			frags = append(frags, sel)
		}
	}
	return datatree.FromFragments(frags...), nil
}

func (f *File) read(d DomainEntry) (*datatree.Mesh, error) {
	path := d.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(f.dir, path)
	}
	lease, err := f.handles.Acquire(path, openMeshFile)
	if err != nil {
		return nil, err
	}
	defer lease.Release()
	return lease.Handle().(*meshFile).mesh, nil
}

// meshFile is an opened domain file. A file that does not parse is cached
// with a nil mesh, which the source reports as a malformed fragment.
type meshFile struct {
	mesh *datatree.Mesh
}

func (*meshFile) Close() error { return nil }

func openMeshFile(path string) (resource.Handle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var mesh datatree.Mesh
	if err := yaml.Unmarshal(data, &mesh); err != nil {
		return &meshFile{}, nil
	}
	return &meshFile{mesh: &mesh}, nil
}

// WriteMesh stores mesh as a YAML domain file.
func WriteMesh(path string, mesh *datatree.Mesh) error {
	data, err := yaml.Marshal(mesh)
	if err != nil {
		return errors.Internal(err)
	}
	return os.WriteFile(path, data, 0o644)
}
