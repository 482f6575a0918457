package config

import (
	"fmt"
	"os"
	"os/user"
)

// applyFallbacks applies environment variable and host-derived fallbacks
// after viper unmarshaling.
func (c *Config) applyFallbacks() {
	c.applyAPIKeyFallback()
	c.applyUsernameFallback()
	c.applyObservabilityDefaults()
}

// applyAPIKeyFallback resolves the AI API key from the environment when the
// config file did not provide one. Vault, when enabled, overwrites this later.
func (c *Config) applyAPIKeyFallback() {
	if c.AI.APIKey != "" {
		return
	}
	if key := os.Getenv("RESUMIND_AI_APIKEY"); key != "" {
		c.AI.APIKey = key
		return
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.AI.APIKey = key
	}
}

// applyUsernameFallback picks the OS user when no username was configured.
// The auth capability reports this identity after signIn.
func (c *Config) applyUsernameFallback() {
	if c.App.Username != "" {
		return
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		c.App.Username = u.Username
		return
	}
	c.App.Username = "resumind"
}

// applyObservabilityDefaults fills derived observability values
func (c *Config) applyObservabilityDefaults() {
	if c.Observability.ServiceInstance == "" {
		c.Observability.ServiceInstance = generateServiceInstanceID(c.Observability.ServiceName)
	}
}

// generateServiceInstanceID generates a unique service instance ID
func generateServiceInstanceID(serviceName string) string {
	if hostname, err := os.Hostname(); err == nil {
		return fmt.Sprintf("%s-%s", serviceName, hostname)
	}
	return fmt.Sprintf("%s-1", serviceName)
}
