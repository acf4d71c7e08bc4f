package instance

import (
	"os"

	"github.com/angelmondragon/dashbite-backend/pkg/env"
)

// GetID returns the process instance identifier: DASHBITE_INSTANCE_ID, then
// the platform dyno name, then the hostname.
func GetID() string {
	if id := env.Get("DASHBITE_INSTANCE_ID", os.Getenv("DYNO")); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
