// Package job holds policies governing the notification claim on a job aggregate.
package job

import (
	"errors"
	"time"
)

// ErrInvalidClaimLease indicates the configured claim lease is not positive.
var ErrInvalidClaimLease = errors.New("notification claim lease must be positive")

// MinClaimLease is the shortest lease the policy hands out.
const MinClaimLease = time.Second

// ClaimPolicy sizes the lease taken when a handler claims the right to publish a job's completion.
// A claim that is neither confirmed nor released before the lease expires can be taken over.
type ClaimPolicy struct {
	lease time.Duration
}

// NewClaimPolicy constructs a ClaimPolicy with the provided lease.
func NewClaimPolicy(lease time.Duration) (*ClaimPolicy, error) {
	if lease <= 0 {
		return nil, ErrInvalidClaimLease
	}
	if lease < MinClaimLease {
		lease = MinClaimLease
	}
	return &ClaimPolicy{lease: lease}, nil
}

// Lease returns the configured lease.
func (p *ClaimPolicy) Lease() time.Duration {
	if p == nil {
		return MinClaimLease
	}
	return p.lease
}

// PublishBudget is how long a claim holder may spend publishing. It is half the lease so a slow
// publish gives up well before another handler can take the claim over.
func (p *ClaimPolicy) PublishBudget() time.Duration {
	return p.Lease() / 2
}

// ClaimWindow describes one claim attempt.
type ClaimWindow struct {
	Token     string
	ClaimedAt time.Time
	ExpiresAt time.Time
}

// Window returns the claim window for an attempt starting at now.
func (p *ClaimPolicy) Window(token string, now time.Time) ClaimWindow {
	now = now.UTC()
	return ClaimWindow{
		Token:     token,
		ClaimedAt: now,
		ExpiresAt: now.Add(p.Lease()),
	}
}

// Expired reports whether the window no longer protects the claim at t.
func (w ClaimWindow) Expired(t time.Time) bool {
	return !t.Before(w.ExpiresAt)
}
