package capability

import (
	"context"
	"errors"
	"sync"
	"time"

	apperrors "resumind/internal/errors"
)

// ErrUnavailable is returned by operations invoked while no provider client
// is registered. The message is part of the contract consumers match on.
var ErrUnavailable = errors.New("capability not available")

// DefaultInitTimeout bounds how long WaitReady polls for a provider before
// giving up.
const DefaultInitTimeout = 10 * time.Second

// DefaultPollInterval is the delay between readiness probes in WaitReady.
const DefaultPollInterval = 100 * time.Millisecond

// Gateway holds the process-wide provider client. A nil client means the
// capability layer is unavailable; operations must check Get before
// delegating.
type Gateway struct {
	mu     sync.RWMutex
	client Client

	initTimeout  time.Duration
	pollInterval time.Duration
	logger       *apperrors.Logger
}

// NewGateway creates a gateway with no registered client.
func NewGateway(initTimeout, pollInterval time.Duration, logger *apperrors.Logger) *Gateway {
	if initTimeout <= 0 {
		initTimeout = DefaultInitTimeout
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Gateway{
		initTimeout:  initTimeout,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Register installs the provider client, replacing any previous one.
func (g *Gateway) Register(c Client) {
	g.mu.Lock()
	g.client = c
	g.mu.Unlock()
	if g.logger != nil {
		g.logger.Debug("Capability client registered")
	}
}

// Clear removes the registered client, making the gateway unavailable.
func (g *Gateway) Clear() {
	g.mu.Lock()
	g.client = nil
	g.mu.Unlock()
}

// Get returns the registered client, or nil when none is registered.
// Callers must treat nil as "capability not available".
func (g *Gateway) Get() Client {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.client
}

// Available reports whether a client is registered.
func (g *Gateway) Available() bool {
	return g.Get() != nil
}

// WaitReady blocks until a client is registered, polling at the configured
// interval. It fails with a capability init timeout error when the deadline
// passes first, which is distinct from the unavailable sentinel so callers
// can tell "never came up" from "not up yet".
func (g *Gateway) WaitReady(ctx context.Context) error {
	if g.Available() {
		return nil
	}

	deadline := time.NewTimer(g.initTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(g.pollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return apperrors.NewCapabilityError(
				apperrors.ErrCodeCapabilityInitTimeout,
				"Capability layer did not initialize in time", nil).
				WithContext("timeout", g.initTimeout.String())
		case <-tick.C:
			if g.Available() {
				return nil
			}
		}
	}
}
