package definition

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ShebangError is returned when a non-executable entrypoint has no usable
// interpreter line
type ShebangError struct {
	Path string
	Line string
}

func NewShebangError(path, line string) *ShebangError {
	return &ShebangError{Path: path, Line: line}
}

func (e *ShebangError) Error() string {
	if e.Line == "" {
		return fmt.Sprintf("entrypoint %s is not executable and has no interpreter", e.Path)
	}
	return fmt.Sprintf("entrypoint %s is not executable and its first line is not a valid shebang: %q", e.Path, e.Line)
}

var _ error = &ShebangError{}

// parseShebang reads the interpreter and its arguments from the first line
// of a script. For "#!/usr/bin/env python3 -u" it returns "/usr/bin/env"
// and ["python3", "-u"].
func parseShebang(path string, r io.Reader) (string, []string, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", nil, fmt.Errorf("failed to read entrypoint %s: %w", path, err)
		}
		return "", nil, NewShebangError(path, "")
	}

	line := strings.TrimSpace(scanner.Text())
	rest, ok := strings.CutPrefix(line, "#!")
	if !ok {
		return "", nil, NewShebangError(path, line)
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", nil, NewShebangError(path, line)
	}
	return fields[0], fields[1:], nil
}
