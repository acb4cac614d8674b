package instance

import (
	"os"
	"strings"
)

const EnvInstanceID = "FARMGATE_INSTANCE_ID"

// GetID identifies this process in published events. Falls back to the hostname.
func GetID() string {
	if id := strings.TrimSpace(os.Getenv(EnvInstanceID)); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "api-0"
}
