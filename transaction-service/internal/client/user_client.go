// Package client talks to the user service to validate transfer parties.
// Every call runs through a circuit breaker and a bounded retry loop so a
// struggling user service degrades this service instead of overloading both.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/danfigueroa/loomi-sub000/shared/apperrors"
	"github.com/danfigueroa/loomi-sub000/shared/backoff"
	"github.com/danfigueroa/loomi-sub000/shared/correlation"
	"github.com/danfigueroa/loomi-sub000/shared/models"
)

// Config tunes the breaker and retry behaviour.
type Config struct {
	BaseURL          string
	AttemptTimeout   time.Duration
	MaxRetries       int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	JitterSpread     time.Duration
	FailureThreshold uint32
	RecoveryTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 5 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 2 * time.Second
	}
	if c.JitterSpread <= 0 {
		c.JitterSpread = 50 * time.Millisecond
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 30 * time.Second
	}
	return c
}

// UserClient validates users against the user service. The breaker state is
// shared by all concurrent callers of the same instance.
type UserClient struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.SugaredLogger
}

func NewUserClient(cfg Config, logger *zap.SugaredLogger) *UserClient {
	cfg = cfg.withDefaults()

	settings := gobreaker.Settings{
		Name:        "user-service",
		MaxRequests: 1, // single half-open trial
		Timeout:     cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// A 404 or an inactive user is a definitive business answer, not a
		// sign the dependency is unhealthy. Only timeouts, 5xx and transport
		// failures count toward tripping the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, apperrors.ErrNotFound) ||
				errors.Is(err, apperrors.ErrUserInactive)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnw("circuit breaker state change",
				"dependency", name, "from", from.String(), "to", to.String())
		},
	}

	return &UserClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.AttemptTimeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

// ValidateUser confirms the user exists and is active. While the breaker is
// open it fails immediately with ErrServiceUnavailable, without a network call.
func (c *UserClient) ValidateUser(ctx context.Context, userID string) (*models.CustomerInfo, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.fetchWithRetry(ctx, userID)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("validate user %s: circuit open: %w", userID, apperrors.ErrServiceUnavailable)
		}
		return nil, err
	}
	return result.(*models.CustomerInfo), nil
}

// State exposes the breaker state for health reporting.
func (c *UserClient) State() gobreaker.State {
	return c.breaker.State()
}

// fetchWithRetry is one logical validation: up to MaxRetries attempts with
// capped exponential backoff plus jitter between them. Definitive answers
// (404, inactive) are never retried.
func (c *UserClient) fetchWithRetry(ctx context.Context, userID string) (*models.CustomerInfo, error) {
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		info, err := c.fetch(ctx, userID)
		if err == nil {
			return info, nil
		}
		if errors.Is(err, apperrors.ErrNotFound) || errors.Is(err, apperrors.ErrUserInactive) {
			return nil, err
		}

		lastErr = err
		if attempt == c.cfg.MaxRetries {
			break
		}

		delay := backoff.Exponential(c.cfg.BaseDelay, c.cfg.MaxDelay, attempt) + backoff.Jitter(c.cfg.JitterSpread)
		c.logger.Debugw("validation attempt failed, retrying",
			"userId", userID, "attempt", attempt, "delay", delay, "error", err)

		if err := backoff.Sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("validate user %s: %w", userID, err)
		}
	}

	return nil, lastErr
}

func (c *UserClient) fetch(ctx context.Context, userID string) (*models.CustomerInfo, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, c.cfg.BaseURL+"/users/"+userID, nil)
	if err != nil {
		return nil, fmt.Errorf("validate user %s: %w", userID, err)
	}
	if cid := correlation.From(ctx); cid != "" {
		req.Header.Set(correlation.Header, cid)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("validate user %s: timeout: %w", userID, apperrors.ErrServiceUnavailable)
		}
		return nil, fmt.Errorf("validate user %s: %w: %v", userID, apperrors.ErrUpstream, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var info models.CustomerInfo
		if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
			return nil, fmt.Errorf("validate user %s: decode response: %w", userID, apperrors.ErrUpstream)
		}
		if !info.IsActive {
			return nil, fmt.Errorf("user %s: %w", userID, apperrors.ErrUserInactive)
		}
		return &info, nil

	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("user %s: %w", userID, apperrors.ErrNotFound)

	default:
		return nil, fmt.Errorf("validate user %s: status %d: %w", userID, resp.StatusCode, apperrors.ErrUpstream)
	}
}
