// Package core implements the functionality for hops that is shared across all components.
package core

// Entrypoint describes a local program that can be executed on behalf of a definition
type Entrypoint struct {
	Name            string            `yaml:"name"`                       // the name the program is known by
	Path            string            `yaml:"path"`                       // absolute path to the program or script
	Interpreter     string            `yaml:"interpreter,omitempty"`      // optional interpreter used to run Path
	InterpreterArgs []string          `yaml:"interpreter_args,omitempty"` // arguments passed to Interpreter before Path
	Args            []string          `yaml:"args,omitempty"`             // extra arguments passed after Path
	Env             map[string]string `yaml:"env,omitempty"`              // extra environment variables
}
