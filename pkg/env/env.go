package env

import (
	"os"
	"strings"
)

// Prefix namespaces every variable the services read.
const Prefix = "SHOPCORE_"

// Get returns SHOPCORE_<key>, then the bare key, then fallback. Blank values
// count as unset.
func Get(key, fallback string) string {
	for _, name := range []string{Prefix + key, key} {
		if val := strings.TrimSpace(os.Getenv(name)); val != "" {
			return val
		}
	}
	return fallback
}
