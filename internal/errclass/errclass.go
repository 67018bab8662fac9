// Package errclass maps provider failures to a small taxonomy that drives
// retry, failover and run-halting decisions.
package errclass

import (
	"fmt"
)

// Category is the kind of failure a provider call produced.
type Category string

const (
	CategoryBillingQuota   Category = "billing_quota"
	CategoryAuthentication Category = "authentication"
	CategoryRateLimit      Category = "rate_limit"
	CategoryNetwork        Category = "network_error"
	CategoryServer         Category = "server_error"
	CategoryInvalidRequest Category = "invalid_request"
	CategoryUnknown        Category = "unknown"
)

// Severity ranks how much damage a failure does to the run.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// policy is the fixed handling attached to a category.
type policy struct {
	severity  Severity
	retryable bool
	action    string
}

var policies = map[Category]policy{
	CategoryBillingQuota: {
		severity: SeverityCritical,
		action:   "add credits or raise the provider spending limit",
	},
	CategoryAuthentication: {
		severity: SeverityCritical,
		action:   "check the provider API key and account permissions",
	},
	CategoryRateLimit: {
		severity:  SeverityLow,
		retryable: true,
		action:    "back off and retry; other providers keep serving",
	},
	CategoryNetwork: {
		severity:  SeverityMedium,
		retryable: true,
		action:    "retry with backoff",
	},
	CategoryServer: {
		severity:  SeverityMedium,
		retryable: true,
		action:    "retry with backoff; the circuit breaker isolates the provider",
	},
	CategoryInvalidRequest: {
		severity: SeverityHigh,
		action:   "fix the prompt or response schema",
	},
	CategoryUnknown: {
		severity: SeverityMedium,
		action:   "inspect the underlying error",
	},
}

// ClassifiedError is a provider failure annotated with its category and the
// handling policy for that category.
type ClassifiedError struct {
	Category          Category
	Severity          Severity
	Provider          string
	Retryable         bool
	RecommendedAction string
	Err               error
}

func (e *ClassifiedError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("%s: %v", e.Category, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Category, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Critical reports whether the failure should halt new work for the run.
func (e *ClassifiedError) Critical() bool {
	return e != nil && e.Severity == SeverityCritical
}

// New builds a ClassifiedError for category with the category's policy.
func New(provider string, category Category, err error) *ClassifiedError {
	p, ok := policies[category]
	if !ok {
		category = CategoryUnknown
		p = policies[CategoryUnknown]
	}
	return &ClassifiedError{
		Category:          category,
		Severity:          p.severity,
		Provider:          provider,
		Retryable:         p.retryable,
		RecommendedAction: p.action,
		Err:               err,
	}
}
