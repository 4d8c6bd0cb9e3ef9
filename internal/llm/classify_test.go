package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := map[string]struct {
		err  error
		want Outcome
	}{
		"structured 429": {
			err:  &ProviderError{Provider: "openai", Status: 429, Message: "slow down"},
			want: OutcomeRateLimited,
		},
		"structured resource exhausted": {
			err:  &ProviderError{Provider: "openai", Code: "resource_exhausted", Message: "busy"},
			want: OutcomeRateLimited,
		},
		"structured insufficient quota": {
			err:  &ProviderError{Provider: "openai", Status: 403, Code: "insufficient_quota", Message: "billing"},
			want: OutcomeRateLimited,
		},
		"structured model not found": {
			err:  &ProviderError{Provider: "openai", Status: 404, Message: "no such model"},
			want: OutcomeFatal,
		},
		"structured model_not_found code": {
			err:  &ProviderError{Provider: "openai", Status: 400, Code: "model_not_found", Message: "unknown model"},
			want: OutcomeFatal,
		},
		"textual rate limit": {
			err:  errors.New("Rate Limit reached for requests"),
			want: OutcomeRateLimited,
		},
		"textual quota": {
			err:  errors.New("you exceeded your current quota, please check your plan"),
			want: OutcomeRateLimited,
		},
		"textual too many requests": {
			err:  errors.New("HTTP 429 Too Many Requests"),
			want: OutcomeRateLimited,
		},
		"textual requests per": {
			err:  errors.New("limited to 15 requests per minute"),
			want: OutcomeRateLimited,
		},
		"wrapped rate limit": {
			err:  fmt.Errorf("llm: retrieve context: %w", errors.New("quota exhausted")),
			want: OutcomeRateLimited,
		},
		"timeout is transient": {
			err:  context.DeadlineExceeded,
			want: OutcomeTransient,
		},
		"generic provider error": {
			err:  &ProviderError{Provider: "openai", Status: 500, Message: "upstream exploded"},
			want: OutcomeTransient,
		},
		"plain error": {
			err:  errors.New("connection refused"),
			want: OutcomeTransient,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Fatalf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
			}
		})
	}
}
