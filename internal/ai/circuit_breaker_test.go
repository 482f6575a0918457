package ai

import (
	"errors"
	"testing"
	"time"

	"google.golang.org/genai"

	"resumind/internal/config"
)

func enabledBreakerConfig() config.CircuitBreakerConfig {
	return config.CircuitBreakerConfig{
		Enabled:          true,
		MaxRequests:      3,
		Interval:         60 * time.Second,
		Timeout:          60 * time.Second,
		MinRequests:      3,
		FailureThreshold: 0.6,
	}
}

func TestDisabledCircuitBreakerIsNil(t *testing.T) {
	cb := NewAICircuitBreaker(config.CircuitBreakerConfig{Enabled: false}, nil)
	if cb != nil {
		t.Fatal("expected a disabled breaker to be nil")
	}

	// Nil receivers pass calls straight through.
	called := false
	_, err := cb.Execute(func() (*genai.GenerateContentResponse, error) {
		called = true
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected the call to pass through a disabled breaker")
	}
	if !cb.IsHealthy() {
		t.Error("a disabled breaker is always healthy")
	}
	stats := cb.GetStats()
	if enabled, ok := stats["enabled"].(bool); !ok || enabled {
		t.Errorf("expected enabled=false in stats, got %v", stats)
	}
}

func TestEnabledCircuitBreakerStats(t *testing.T) {
	cb := NewAICircuitBreaker(enabledBreakerConfig(), nil)
	if cb == nil {
		t.Fatal("expected an enabled breaker")
	}

	stats := cb.GetStats()
	if name, ok := stats["name"].(string); !ok || name != "AI-gemini" {
		t.Errorf("unexpected breaker name: %v", stats["name"])
	}
	if state, ok := stats["state"].(string); !ok || state != "closed" {
		t.Errorf("expected initial closed state, got %v", stats["state"])
	}
	if !cb.IsHealthy() {
		t.Error("expected a fresh breaker to be healthy")
	}
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	cb := NewAICircuitBreaker(enabledBreakerConfig(), nil)

	failure := errors.New("upstream failure")
	for i := 0; i < 5; i++ {
		_, _ = cb.Execute(func() (*genai.GenerateContentResponse, error) {
			return nil, failure
		})
	}

	if cb.IsHealthy() {
		t.Error("expected the breaker to open after consecutive failures")
	}

	// An open breaker rejects calls without running them.
	called := false
	_, err := cb.Execute(func() (*genai.GenerateContentResponse, error) {
		called = true
		return nil, nil
	})
	if err == nil {
		t.Error("expected an open breaker to reject the call")
	}
	if called {
		t.Error("an open breaker must not invoke the wrapped call")
	}
}

func TestCircuitBreakerStaysClosedUnderMinRequests(t *testing.T) {
	cfg := enabledBreakerConfig()
	cfg.MinRequests = 10
	cb := NewAICircuitBreaker(cfg, nil)

	failure := errors.New("upstream failure")
	for i := 0; i < 5; i++ {
		_, _ = cb.Execute(func() (*genai.GenerateContentResponse, error) {
			return nil, failure
		})
	}

	if !cb.IsHealthy() {
		t.Error("expected the breaker to stay closed below the minimum request count")
	}
}
