// Package persist saves and restores a component's settings as tagged values.
package persist

import (
	"errors"

	"go.uber.org/zap"
)

const (
	TagVersion       = "RemoteSolveVersion"
	TagPath          = "RemoteDefinitionLocation"
	TagCacheOnServer = "CacheSolveResults"
	TagCacheInMemory = "CacheResultsInMemory"
	TagIsDefined     = "IsDefined"
)

// State is everything a component persists
type State struct {
	Version       Version
	Path          string
	CacheOnServer bool
	CacheInMemory bool
	// Immutable components also persist IsDefined
	Immutable bool
	IsDefined bool
}

// DefaultState is what a freshly created component holds
func DefaultState() State {
	return State{
		Version:       CurrentVersion,
		CacheOnServer: true,
		CacheInMemory: true,
	}
}

// Write stores state under the persisted tags
func Write(w Writer, state State) {
	w.SetVersion(TagVersion, state.Version.Major, state.Version.Minor, state.Version.Revision)
	w.SetString(TagPath, state.Path)
	w.SetBoolean(TagCacheOnServer, state.CacheOnServer)
	w.SetBoolean(TagCacheInMemory, state.CacheInMemory)
	if state.Immutable {
		w.SetBoolean(TagIsDefined, state.IsDefined)
	}
}

// Read restores state on top of defaults. Missing booleans keep the value
// held by defaults; a missing path leaves the component without an identity.
func Read(r Reader, defaults State) (State, error) {
	state := defaults

	version, err := r.GetVersion(TagVersion)
	switch {
	case err == nil:
		state.Version = version
		CheckCompatible(version, CurrentVersion)
	case errors.Is(err, ErrTagNotFound):
		zap.L().Debug("Record has no version tag")
	default:
		return State{}, err
	}

	path, err := r.GetString(TagPath)
	switch {
	case err == nil:
		state.Path = path
	case !errors.Is(err, ErrTagNotFound):
		return State{}, err
	}

	if value, ok := r.TryGetBoolean(TagCacheOnServer); ok {
		state.CacheOnServer = value
	}
	if value, ok := r.TryGetBoolean(TagCacheInMemory); ok {
		state.CacheInMemory = value
	}
	if value, ok := r.TryGetBoolean(TagIsDefined); ok {
		state.IsDefined = value
	}

	return state, nil
}
