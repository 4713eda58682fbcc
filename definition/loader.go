package definition

import (
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/kbukum/meshflow/contract"
	"github.com/kbukum/meshflow/errors"
)

// Loader loads pipeline definitions by name.
type Loader interface {
	Load(name string) (*Pipeline, error)
}

// FileLoader loads pipelines from YAML files on disk.
type FileLoader struct {
	dirs []string
}

// NewFileLoader creates a loader that searches the given directories for
// {name}.yaml and {name}.yml, also one directory level down.
func NewFileLoader(dirs ...string) *FileLoader {
	return &FileLoader{dirs: dirs}
}

// Load finds and parses the named pipeline.
func (l *FileLoader) Load(name string) (*Pipeline, error) {
	for _, dir := range l.dirs {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, name+ext)
			if p, err := LoadFile(path); err == nil {
				return p, nil
			} else if !os.IsNotExist(err) {
				return nil, err
			}

			matches, _ := filepath.Glob(filepath.Join(dir, "*", name+ext))
			for _, match := range matches {
				if p, err := LoadFile(match); err == nil {
					return p, nil
				}
			}
		}
	}
	return nil, errors.NotFound("pipeline", name).WithDetail("dirs", l.dirs)
}

// LoadFile parses and validates one pipeline file. Contract fields left out
// of the file keep the defaults of contract.DefaultSpec.
func LoadFile(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, path)
}

// Parse parses and validates a pipeline definition; origin names it in errors.
func Parse(data []byte, origin string) (*Pipeline, error) {
	p := Pipeline{Contract: contract.DefaultSpec()}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, errors.InvalidInput(origin, fmt.Sprintf("parsing: %v", err))
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// MapLoader serves definitions from memory.
type MapLoader map[string]*Pipeline

// Load returns the named definition.
func (m MapLoader) Load(name string) (*Pipeline, error) {
	if p, ok := m[name]; ok {
		return p, nil
	}
	return nil, errors.NotFound("pipeline", name)
}
