package errclass

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gioe/aiq/internal/llm"
)

func statusErr(code int, msg string) error {
	return &llm.ProviderError{Provider: "openai", StatusCode: code, Message: msg}
}

func TestClassify_StatusCodes(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category Category
	}{
		{"401", statusErr(401, "invalid api key"), CategoryAuthentication},
		{"403 plain", statusErr(403, "not allowed for this project"), CategoryAuthentication},
		{"403 billing", statusErr(403, "billing account disabled"), CategoryBillingQuota},
		{"402", statusErr(402, "payment required"), CategoryBillingQuota},
		{"429 rate", statusErr(429, "rate limit reached for requests"), CategoryRateLimit},
		{"429 insufficient_quota", statusErr(429, "insufficient_quota: You exceeded your current quota, please check your plan and billing details."), CategoryBillingQuota},
		{"429 gemini resource exhausted", statusErr(429, "RESOURCE_EXHAUSTED: You exceeded your current quota, please check your plan and billing details. Quota exceeded for metric: generate_content_free_tier_requests, limit: 15. Please retry in 20s."), CategoryRateLimit},
		{"429 quota window", statusErr(429, "Quota exceeded for quota metric 'Requests per minute'"), CategoryRateLimit},
		{"408", statusErr(408, "request timeout"), CategoryNetwork},
		{"500", statusErr(500, "internal error"), CategoryServer},
		{"529", statusErr(529, "overloaded_error"), CategoryServer},
		{"400", statusErr(400, "messages: field required"), CategoryInvalidRequest},
		{"400 credit", statusErr(400, "Your credit balance is too low"), CategoryBillingQuota},
		{"404", statusErr(404, "model not found"), CategoryInvalidRequest},
	}

	c := NewClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce := c.Classify("openai", tt.err)
			require.NotNil(t, ce)
			assert.Equal(t, tt.category, ce.Category)
			assert.Equal(t, "openai", ce.Provider)
			assert.ErrorIs(t, ce, tt.err)
		})
	}
}

func TestClassify_Policy(t *testing.T) {
	c := NewClassifier()

	auth := c.Classify("anthropic", statusErr(401, "invalid x-api-key"))
	assert.Equal(t, SeverityCritical, auth.Severity)
	assert.False(t, auth.Retryable)
	assert.True(t, auth.Critical())
	assert.NotEmpty(t, auth.RecommendedAction)

	billing := c.Classify("anthropic", statusErr(402, ""))
	assert.True(t, billing.Critical())
	assert.False(t, billing.Retryable)

	rate := c.Classify("anthropic", statusErr(429, "slow down"))
	assert.True(t, rate.Retryable)
	assert.False(t, rate.Critical())

	window := c.Classify("gemini", statusErr(429, "RESOURCE_EXHAUSTED: You exceeded your current quota. Please retry in 20s."))
	assert.Equal(t, CategoryRateLimit, window.Category)
	assert.True(t, window.Retryable)
	assert.False(t, window.Critical(), "a quota window must not halt the run")

	server := c.Classify("anthropic", statusErr(503, ""))
	assert.True(t, server.Retryable)

	invalid := c.Classify("anthropic", statusErr(422, "bad schema"))
	assert.False(t, invalid.Retryable)
	assert.Equal(t, SeverityHigh, invalid.Severity)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassify_Types(t *testing.T) {
	c := NewClassifier()

	deadline := fmt.Errorf("calling provider: %w", context.DeadlineExceeded)
	assert.Equal(t, CategoryNetwork, c.Classify("gemini", deadline).Category)
	assert.True(t, c.Classify("gemini", deadline).Retryable)

	wrapped := &llm.ProviderError{Provider: "gemini", Err: timeoutErr{}}
	assert.Equal(t, CategoryNetwork, c.Classify("", wrapped).Category)
	assert.Equal(t, "gemini", c.Classify("", wrapped).Provider)

	invalid := &llm.ProviderError{
		Provider: "gemini",
		Err:      fmt.Errorf("%w: unexpected end of JSON input", llm.ErrInvalidResponse),
	}
	ce := c.Classify("gemini", invalid)
	assert.Equal(t, CategoryServer, ce.Category)
	assert.True(t, ce.Retryable)

	truncated := &llm.ProviderError{Provider: "gemini", Err: llm.ErrMaxTokensExceeded}
	assert.Equal(t, CategoryInvalidRequest, c.Classify("gemini", truncated).Category)

	noEmbed := &llm.ProviderError{Provider: "anthropic", Err: llm.ErrEmbeddingsUnsupported}
	assert.Equal(t, CategoryInvalidRequest, c.Classify("anthropic", noEmbed).Category)
}

func TestClassify_Messages(t *testing.T) {
	tests := []struct {
		msg      string
		category Category
	}{
		{"insufficient_quota", CategoryBillingQuota},
		{"RESOURCE_EXHAUSTED: You exceeded your current quota, check billing details", CategoryRateLimit},
		{"request failed: Unauthorized", CategoryAuthentication},
		{"Rate limit exceeded", CategoryRateLimit},
		{"dial tcp: connection refused", CategoryNetwork},
		{"upstream overloaded", CategoryServer},
		{"Bad Request: missing field", CategoryInvalidRequest},
		{"something odd happened", CategoryUnknown},
	}

	c := NewClassifier()
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.category, c.Classify("p", errors.New(tt.msg)).Category)
		})
	}
}

func TestClassify_UnknownPolicy(t *testing.T) {
	ce := NewClassifier().Classify("p", errors.New("something odd happened"))
	assert.Equal(t, SeverityMedium, ce.Severity)
	assert.False(t, ce.Retryable)
}

func TestClassify_NilAndPassThrough(t *testing.T) {
	c := NewClassifier()
	assert.Nil(t, c.Classify("p", nil))

	first := c.Classify("p", statusErr(401, "no"))
	again := c.Classify("q", fmt.Errorf("retry: %w", first))
	assert.Same(t, first, again)
}

func TestClassify_MatcherOrder(t *testing.T) {
	always := func(error) (Category, bool) { return CategoryRateLimit, true }
	c := NewClassifier(always, MatchStatus)
	assert.Equal(t, CategoryRateLimit, c.Classify("p", statusErr(401, "")).Category)
}
