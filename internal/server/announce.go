package server

import (
	"fmt"
	"io"
	"strings"
)

// helloPrefix starts the line a server started with --announce prints once
// it is listening. The rest of the line is the server's base URL.
const helloPrefix = "hops.hello "

// WriteHello writes the hello line for baseURL
func WriteHello(w io.Writer, baseURL string) error {
	_, err := fmt.Fprintf(w, "%s%s\n", helloPrefix, baseURL)
	return err
}

// ParseHello returns the base URL carried by a hello line
func ParseHello(line string) (string, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(line), helloPrefix)
	if !ok {
		return "", false
	}
	rest = strings.TrimSpace(rest)
	if !strings.HasPrefix(rest, "http://") && !strings.HasPrefix(rest, "https://") {
		return "", false
	}
	return rest, true
}
