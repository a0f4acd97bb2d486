// Package definition loads the local definitions served by `hops serve`.
// A definition is a directory holding a definition.yaml manifest and the
// program it runs. The program reads one JSON object of inputs on stdin and
// writes one JSON object of outputs on stdout.
package definition

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/dorcha-inc/hops/internal/core"
	"github.com/dorcha-inc/hops/internal/param"
)

// ManifestFileName is the name of the manifest inside a definition directory
const ManifestFileName = "definition.yaml"

// Manifest is a parsed definition.yaml
type Manifest struct {
	Name        string `yaml:"name" validate:"required"`
	Description string `yaml:"description,omitempty"`
	Icon        string `yaml:"icon,omitempty"` // image file inside the definition directory
	Entrypoint  string `yaml:"entrypoint" validate:"required"`
	Interpreter string `yaml:"interpreter,omitempty"`
	// InterpreterArgs come from the entrypoint's shebang line
	InterpreterArgs []string          `yaml:"-"`
	Args            []string          `yaml:"args,omitempty"`
	Env             map[string]string `yaml:"env,omitempty"`
	Inputs          []Parameter       `yaml:"inputs,omitempty" validate:"dive"`
	Outputs         []Parameter       `yaml:"outputs,omitempty" validate:"dive"`
}

// Parameter declares one input or output. Cardinality defaults to exactly
// one value.
type Parameter struct {
	Name        string `yaml:"name" validate:"required"`
	Nickname    string `yaml:"nickname,omitempty"`
	Description string `yaml:"description,omitempty"`
	Kind        string `yaml:"kind" validate:"required"`
	AtLeast     *int   `yaml:"at_least,omitempty" validate:"omitempty,gte=0"`
	AtMost      *int   `yaml:"at_most,omitempty" validate:"omitempty,gte=0"`
	Default     any    `yaml:"default,omitempty"`
}

// Declaration converts the parameter into the declaration a solver reports
func (p Parameter) Declaration() (param.Declaration, error) {
	kind, err := param.ParseKind(p.Kind)
	if err != nil {
		return param.Declaration{}, fmt.Errorf("parameter %q: %w", p.Name, err)
	}

	decl := param.Declaration{
		Name:        p.Name,
		Nickname:    p.Nickname,
		Description: p.Description,
		Kind:        kind,
		ResultType:  param.ResultType(kind),
		AtLeast:     1,
		AtMost:      1,
		Default:     p.Default,
	}
	if p.AtLeast != nil {
		decl.AtLeast = *p.AtLeast
	}
	if p.AtMost != nil {
		decl.AtMost = *p.AtMost
	}
	return decl, nil
}

// LoadManifest loads and parses the definition.yaml in dir
func LoadManifest(dir string) (*Manifest, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open definition directory: %w", err)
	}
	defer core.LogDeferredError(root.Close)

	data, err := root.ReadFile(ManifestFileName)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ManifestFileName, err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ManifestFileName, err)
	}

	return &manifest, nil
}

var validate = validator.New()

// ValidateManifest checks the manifest against the files in dir and returns
// its declarations. Every parameter has to classify the way a component
// would classify it, so unsupported kinds and malformed defaults are caught
// here rather than on the first solve.
func ValidateManifest(manifest *Manifest, dir string) (inputs, outputs []param.Declaration, err error) {
	if err := validate.Struct(manifest); err != nil {
		return nil, nil, fmt.Errorf("manifest validation failed: %w", err)
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open definition directory: %w", err)
	}
	defer core.LogDeferredError(root.Close)

	// os.Root keeps the entrypoint inside the definition directory
	info, err := root.Stat(manifest.Entrypoint)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to validate entrypoint: %w", err)
	}
	if !core.IsExecutable(info) && manifest.Interpreter == "" {
		if err := useShebang(manifest, root); err != nil {
			return nil, nil, err
		}
		zap.L().Debug("Entrypoint is not executable, running it with its shebang interpreter",
			zap.String("path", filepath.Join(dir, manifest.Entrypoint)),
			zap.String("interpreter", manifest.Interpreter))
	}

	if manifest.Icon != "" {
		if _, err := root.Stat(manifest.Icon); err != nil {
			return nil, nil, fmt.Errorf("failed to validate icon: %w", err)
		}
	}

	if inputs, err = declarations(manifest.Inputs, param.DirectionInput); err != nil {
		return nil, nil, err
	}
	if outputs, err = declarations(manifest.Outputs, param.DirectionOutput); err != nil {
		return nil, nil, err
	}
	return inputs, outputs, nil
}

func useShebang(manifest *Manifest, root *os.Root) error {
	file, err := root.Open(manifest.Entrypoint)
	if err != nil {
		return fmt.Errorf("failed to open entrypoint: %w", err)
	}
	defer core.LogDeferredError(file.Close)

	interpreter, args, err := parseShebang(manifest.Entrypoint, file)
	if err != nil {
		return err
	}
	manifest.Interpreter = interpreter
	manifest.InterpreterArgs = args
	return nil
}

func declarations(parameters []Parameter, direction param.Direction) ([]param.Declaration, error) {
	seen := mapset.NewThreadUnsafeSet[string]()
	decls := make([]param.Declaration, 0, len(parameters))

	for _, p := range parameters {
		if !seen.Add(p.Name) {
			return nil, fmt.Errorf("duplicate %s parameter %q", direction, p.Name)
		}

		decl, err := p.Declaration()
		if err != nil {
			return nil, fmt.Errorf("%s %w", direction, err)
		}
		if _, err := param.Classify(decl, direction); err != nil {
			return nil, err
		}
		decls = append(decls, decl)
	}
	return decls, nil
}

// readIcon returns the icon file base64 encoded, or "" when there is none
func readIcon(manifest *Manifest, dir string) (string, error) {
	if manifest.Icon == "" {
		return "", nil
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return "", fmt.Errorf("failed to open definition directory: %w", err)
	}
	defer core.LogDeferredError(root.Close)

	data, err := root.ReadFile(manifest.Icon)
	if err != nil {
		return "", fmt.Errorf("failed to read icon: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
