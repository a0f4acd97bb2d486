package definition

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/dorcha-inc/hops/internal/core"
	"github.com/dorcha-inc/hops/internal/param"
	"github.com/dorcha-inc/hops/internal/remote"
)

// Definition is a validated local definition
type Definition struct {
	Manifest *Manifest
	Dir      string

	inputs  []param.Declaration
	outputs []param.Declaration
	icon    string
}

// Load reads and validates the definition in dir. dir may also be the
// path of the manifest itself.
func Load(dir string) (*Definition, error) {
	if filepath.Base(dir) == ManifestFileName {
		dir = filepath.Dir(dir)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, NewInvalidManifestError(dir, err)
	}

	manifest, err := LoadManifest(abs)
	if err != nil {
		return nil, NewInvalidManifestError(abs, err)
	}

	inputs, outputs, err := ValidateManifest(manifest, abs)
	if err != nil {
		return nil, NewInvalidManifestError(abs, err)
	}

	icon, err := readIcon(manifest, abs)
	if err != nil {
		return nil, NewInvalidManifestError(abs, err)
	}

	return &Definition{
		Manifest: manifest,
		Dir:      abs,
		inputs:   inputs,
		outputs:  outputs,
		icon:     icon,
	}, nil
}

// IsDefinitionDir reports whether dir holds a manifest
func IsDefinitionDir(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ManifestFileName))
	return err == nil && !info.IsDir()
}

func (d *Definition) Name() string {
	return d.Manifest.Name
}

// Inputs returns the input declarations in manifest order
func (d *Definition) Inputs() []param.Declaration {
	return slices.Clone(d.inputs)
}

// Outputs returns the output declarations in manifest order
func (d *Definition) Outputs() []param.Declaration {
	return slices.Clone(d.outputs)
}

// Input returns the named input declaration
func (d *Definition) Input(name string) (param.Declaration, bool) {
	for _, decl := range d.inputs {
		if decl.Name == name {
			return decl, true
		}
	}
	return param.Declaration{}, false
}

// Describe returns the interface reported to clients
func (d *Definition) Describe() *remote.IOResponse {
	return &remote.IOResponse{
		Description: d.Manifest.Description,
		Icon:        d.icon,
		Inputs:      d.Inputs(),
		Outputs:     d.Outputs(),
	}
}

// Entrypoint returns the program to execute, with an absolute path
func (d *Definition) Entrypoint() *core.Entrypoint {
	return &core.Entrypoint{
		Name:            d.Manifest.Name,
		Path:            filepath.Join(d.Dir, d.Manifest.Entrypoint),
		Interpreter:     d.Manifest.Interpreter,
		InterpreterArgs: slices.Clone(d.Manifest.InterpreterArgs),
		Args:            slices.Clone(d.Manifest.Args),
		Env:             d.Manifest.Env,
	}
}

func (d *Definition) String() string {
	return fmt.Sprintf("%s (%s)", d.Manifest.Name, d.Dir)
}
