package tui

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/dorcha-inc/hops/internal/param"
	"github.com/dorcha-inc/hops/internal/remote"
)

// DescribeMarkdown renders a definition's interface as markdown tables
func DescribeMarkdown(name string, io *remote.IOResponse) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", name)
	if io.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", io.Description)
	}

	writeDeclarations(&b, "Inputs", io.Inputs, true)
	writeDeclarations(&b, "Outputs", io.Outputs, false)

	return b.String()
}

func writeDeclarations(b *strings.Builder, title string, decls []param.Declaration, inputs bool) {
	fmt.Fprintf(b, "## %s\n\n", title)
	if len(decls) == 0 {
		b.WriteString("_none_\n\n")
		return
	}

	if inputs {
		b.WriteString("| Name | Kind | Count | Default | Description |\n")
		b.WriteString("| --- | --- | --- | --- | --- |\n")
	} else {
		b.WriteString("| Name | Kind | Description |\n")
		b.WriteString("| --- | --- | --- |\n")
	}

	for _, decl := range decls {
		name := escapeCell(decl.Name)
		if decl.Nickname != "" && decl.Nickname != decl.Name {
			name = fmt.Sprintf("%s (%s)", name, escapeCell(decl.Nickname))
		}

		if !inputs {
			fmt.Fprintf(b, "| %s | %s | %s |\n", name, decl.Kind, escapeCell(decl.Description))
			continue
		}

		defaultValue := ""
		if decl.HasDefault() {
			defaultValue = escapeCell(FormatValue(decl.Default))
		}
		fmt.Fprintf(b, "| %s | %s | %s | %s | %s |\n",
			name, decl.Kind, Cardinality(decl.AtLeast, decl.AtMost), defaultValue, escapeCell(decl.Description))
	}
	b.WriteString("\n")
}

func escapeCell(text string) string {
	return strings.ReplaceAll(strings.ReplaceAll(text, "|", `\|`), "\n", " ")
}

// Cardinality formats a declaration's value count, e.g. "1", "0..1" or "1..*"
func Cardinality(atLeast, atMost int) string {
	if atLeast == atMost {
		return fmt.Sprintf("%d", atLeast)
	}
	if atMost == param.Unbounded {
		return fmt.Sprintf("%d..*", atLeast)
	}
	return fmt.Sprintf("%d..%d", atLeast, atMost)
}

// FormatValue renders a native value on one line. Structured values are
// shown as JSON.
func FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "<nil>"
	case string:
		return v
	case json.RawMessage:
		return string(v)
	case fmt.Stringer:
		return v.String()
	case bool, int, int32, int64, float32, float64:
		return fmt.Sprint(v)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(data)
}

// FormatTree renders the values of one output, one line per path, each
// truncated to width display cells.
func FormatTree(name string, tree map[string][]any, width int) []string {
	paths := make([]string, 0, len(tree))
	for path := range tree {
		paths = append(paths, path)
	}
	slices.Sort(paths)

	lines := make([]string, 0, len(paths))
	for _, path := range paths {
		values := make([]string, 0, len(tree[path]))
		for _, value := range tree[path] {
			values = append(values, FormatValue(value))
		}

		line := fmt.Sprintf("%s {%s}: %s", name, path, strings.Join(values, ", "))
		if width > 0 {
			line = ansi.Truncate(line, width, "…")
		}
		lines = append(lines, line)
	}
	return lines
}
