package errclass

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/gioe/aiq/internal/llm"
)

// Matcher inspects an error and reports a category when it recognizes it.
type Matcher func(err error) (Category, bool)

// Classifier runs an ordered chain of matchers. The first match wins; an
// error no matcher recognizes is CategoryUnknown.
type Classifier struct {
	matchers []Matcher
}

// NewClassifier returns a classifier using matchers in order. With no
// matchers it uses DefaultMatchers.
func NewClassifier(matchers ...Matcher) *Classifier {
	if len(matchers) == 0 {
		matchers = DefaultMatchers()
	}
	return &Classifier{matchers: matchers}
}

// DefaultMatchers returns the three tiers: error types, HTTP status codes,
// then message patterns.
func DefaultMatchers() []Matcher {
	return []Matcher{MatchType, MatchStatus, MatchMessage}
}

// Classify annotates err with its category. It returns nil for a nil error
// and passes an already classified error through unchanged.
func (c *Classifier) Classify(provider string, err error) *ClassifiedError {
	if err == nil {
		return nil
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}
	if provider == "" {
		var pe *llm.ProviderError
		if errors.As(err, &pe) {
			provider = pe.Provider
		}
	}
	for _, m := range c.matchers {
		if cat, ok := m(err); ok {
			return New(provider, cat, err)
		}
	}
	return New(provider, CategoryUnknown, err)
}

// MatchType recognizes errors by type or sentinel.
func MatchType(err error) (Category, bool) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CategoryNetwork, true
	case errors.Is(err, llm.ErrInvalidResponse):
		return CategoryServer, true
	case errors.Is(err, llm.ErrMaxTokensExceeded), errors.Is(err, llm.ErrEmbeddingsUnsupported):
		return CategoryInvalidRequest, true
	case errors.Is(err, io.ErrUnexpectedEOF):
		return CategoryNetwork, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return CategoryNetwork, true
	}
	return "", false
}

// MatchStatus recognizes a *llm.ProviderError by its HTTP status, using the
// response body to separate billing failures from plain auth or rate limits.
func MatchStatus(err error) (Category, bool) {
	var pe *llm.ProviderError
	if !errors.As(err, &pe) || pe.StatusCode == 0 {
		return "", false
	}

	body := strings.ToLower(pe.Message)
	switch code := pe.StatusCode; {
	case code == http.StatusUnauthorized:
		return CategoryAuthentication, true
	case code == http.StatusPaymentRequired:
		return CategoryBillingQuota, true
	case code == http.StatusForbidden:
		if mentionsBilling(body) {
			return CategoryBillingQuota, true
		}
		return CategoryAuthentication, true
	case code == http.StatusTooManyRequests:
		// Per-minute quota messages ("exceeded your current quota",
		// RESOURCE_EXHAUSTED) are rate limits; only an explicit billing code is not.
		if mentionsBillingCode(body) {
			return CategoryBillingQuota, true
		}
		return CategoryRateLimit, true
	case code == http.StatusRequestTimeout:
		return CategoryNetwork, true
	case code >= 500:
		return CategoryServer, true
	case code >= 400:
		// Some vendors report an exhausted balance as a 400.
		if mentionsBilling(body) {
			return CategoryBillingQuota, true
		}
		return CategoryInvalidRequest, true
	}
	return "", false
}

// MatchMessage is the fallback for untyped errors, matching on the message.
func MatchMessage(err error) (Category, bool) {
	msg := strings.ToLower(err.Error())
	switch {
	case mentionsBillingCode(msg):
		return CategoryBillingQuota, true
	case mentionsQuota(msg):
		return CategoryRateLimit, true
	case mentionsBilling(msg):
		return CategoryBillingQuota, true
	case containsAny(msg, "unauthorized", "authentication", "invalid api key", "invalid x-api-key", "permission denied", "forbidden"):
		return CategoryAuthentication, true
	case containsAny(msg, "rate limit", "rate_limit", "too many requests"):
		return CategoryRateLimit, true
	case containsAny(msg, "timeout", "timed out", "deadline exceeded", "connection refused",
		"connection reset", "no such host", "broken pipe", "eof"):
		return CategoryNetwork, true
	case containsAny(msg, "overloaded", "internal server error", "bad gateway", "service unavailable"):
		return CategoryServer, true
	case containsAny(msg, "invalid request", "invalid_request", "bad request"):
		return CategoryInvalidRequest, true
	}
	return "", false
}

// mentionsBillingCode matches vendor error codes that mean the account has
// no balance left, as opposed to a temporary quota window.
func mentionsBillingCode(s string) bool {
	return containsAny(s, "insufficient_quota", "billing_hard_limit_reached")
}

func mentionsQuota(s string) bool {
	return containsAny(s, "exceeded your current quota", "quota exceeded", "resource_exhausted")
}

func mentionsBilling(s string) bool {
	return containsAny(s, "billing", "credit balance", "credits", "payment required")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
