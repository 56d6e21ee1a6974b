package instance

import "os"

// EnvInstanceID overrides the instance identifier attached to startup logs.
const EnvInstanceID = "STOREFRONT_INSTANCE_ID"

// GetID returns the configured instance identifier, falling back to the
// hostname and then to "storefront-0".
func GetID() string {
	if id := os.Getenv(EnvInstanceID); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "storefront-0"
}
