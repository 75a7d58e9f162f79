package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeStateConsumer consumes branch events and publishes completion.
	ServiceModeStateConsumer ServiceMode = "state-consumer"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeStateConsumer}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeStateConsumer:
			services[mode] = true
		default:
			return nil, fmt.Errorf("invalid service name: %q (valid options: state-consumer)", serviceName)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// StateConfig contains State consumer configuration.
type StateConfig struct {
	// Concurrency is the number of deliveries processed in parallel.
	Concurrency int `env:"CONCURRENCY" envDefault:"4"`

	// ProcessTimeout bounds handling of one delivery.
	ProcessTimeout time.Duration `env:"PROCESS_TIMEOUT" envDefault:"30s"`

	// NotifyClaimLease is how long a notification claim blocks other handlers before it can be taken over.
	NotifyClaimLease time.Duration `env:"NOTIFY_CLAIM_LEASE" envDefault:"30s"`

	// StatusTTL is how long the Redis status mirror keeps a job's last status.
	StatusTTL time.Duration `env:"STATUS_TTL" envDefault:"168h"`
}

// Sanitize applies guardrails to State consumer configuration values.
func (c *StateConfig) Sanitize() {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.ProcessTimeout <= 0 {
		c.ProcessTimeout = 30 * time.Second
	}
	if c.NotifyClaimLease < time.Second {
		c.NotifyClaimLease = time.Second
	}
	// The lease must outlive a whole delivery or a slow handler could lose its claim mid-publish.
	if c.NotifyClaimLease < c.ProcessTimeout {
		c.NotifyClaimLease = c.ProcessTimeout
	}
	if c.StatusTTL < 0 {
		c.StatusTTL = 0
	}
}
