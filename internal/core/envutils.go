package core

import "os"

// GetEnv retrieves an environment variable, checking both the standard name
// and a HOPS-prefixed version. Returns the first non-empty value found.
func GetEnv(key string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return os.Getenv("HOPS_" + key)
}
