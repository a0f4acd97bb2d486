package definition

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/agnivade/levenshtein"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

// maxSuggestionDistance bounds how far a misspelt name may be from a suggestion
const maxSuggestionDistance = 3

// Registry holds definitions by case-insensitive name. It is safe for
// concurrent use.
type Registry struct {
	definitions *xsync.MapOf[string, *Definition]
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{definitions: xsync.NewMapOf[string, *Definition]()}
}

func registryKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Add registers a definition
func (r *Registry) Add(def *Definition) error {
	if _, loaded := r.definitions.LoadOrStore(registryKey(def.Name()), def); loaded {
		return NewDuplicateDefinitionError(def.Name())
	}
	return nil
}

// Scan registers every definition directory directly under dir and returns
// how many were added. Invalid definitions are logged and skipped; a
// missing dir registers nothing.
func (r *Registry) Scan(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			zap.L().Warn("Definitions directory does not exist", zap.String("directory", dir))
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read definitions directory: %w", err)
	}

	added := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if !IsDefinitionDir(path) {
			continue
		}

		def, err := Load(path)
		if err != nil {
			zap.L().Warn("Skipping invalid definition", zap.String("path", path), zap.Error(err))
			continue
		}

		if err := r.Add(def); err != nil {
			zap.L().Warn("Skipping definition", zap.String("path", path), zap.Error(err))
			continue
		}

		zap.L().Debug("Registered definition",
			zap.String("name", def.Name()),
			zap.String("path", path),
			zap.Int("inputs", len(def.inputs)),
			zap.Int("outputs", len(def.outputs)))
		added++
	}

	return added, nil
}

// Get returns the definition registered under name
func (r *Registry) Get(name string) (*Definition, error) {
	if def, ok := r.definitions.Load(registryKey(name)); ok {
		return def, nil
	}
	return nil, NewNotFoundError(name, r.suggest(name))
}

// Resolve finds the definition a pointer refers to: a registered name, or
// the path of a definition directory or manifest
func (r *Registry) Resolve(pointer string) (*Definition, error) {
	if def, ok := r.definitions.Load(registryKey(pointer)); ok {
		return def, nil
	}

	path := strings.TrimSpace(pointer)
	if filepath.Base(path) == ManifestFileName || IsDefinitionDir(path) {
		return Load(path)
	}

	return nil, NewNotFoundError(pointer, r.suggest(pointer))
}

// Names returns the registered names as declared
func (r *Registry) Names() mapset.Set[string] {
	names := mapset.NewSet[string]()
	r.definitions.Range(func(_ string, def *Definition) bool {
		names.Add(def.Name())
		return true
	})
	return names
}

// List returns the definitions sorted by name
func (r *Registry) List() []*Definition {
	defs := make([]*Definition, 0, r.definitions.Size())
	r.definitions.Range(func(_ string, def *Definition) bool {
		defs = append(defs, def)
		return true
	})
	slices.SortFunc(defs, func(a, b *Definition) int {
		return strings.Compare(registryKey(a.Name()), registryKey(b.Name()))
	})
	return defs
}

func (r *Registry) Len() int {
	return r.definitions.Size()
}

func (r *Registry) suggest(name string) string {
	key := registryKey(name)
	best := ""
	bestDistance := maxSuggestionDistance + 1

	for _, candidate := range r.Names().ToSlice() {
		distance := levenshtein.ComputeDistance(key, registryKey(candidate))
		if distance < bestDistance || (distance == bestDistance && candidate < best) {
			best = candidate
			bestDistance = distance
		}
	}
	return best
}
