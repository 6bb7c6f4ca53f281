package instance

import (
	"os"

	"github.com/angelmondragon/shopcore-backend/pkg/env"
)

// GetID identifies this process in logs and lock ownership. It prefers
// SHOPCORE_INSTANCE_ID, then the host name.
func GetID() string {
	if id := env.Get("INSTANCE_ID", ""); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
