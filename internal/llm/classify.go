package llm

import (
	"errors"
	"net/http"
	"strings"
)

// Outcome tags a failed model attempt so the orchestrator can decide between
// retrying, advancing to the next model, or logging at error level.
type Outcome int

const (
	// OutcomeRateLimited means the provider rejected the request for volume
	// reasons; retrying the same model after its configured delay may succeed.
	OutcomeRateLimited Outcome = iota
	// OutcomeTransient covers provider-specific failures not worth retrying on
	// the same model.
	OutcomeTransient
	// OutcomeFatal marks configuration or identity problems, such as an
	// unknown model name.
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeFatal:
		return "fatal"
	default:
		return "transient"
	}
}

// rateLimitMarkers are matched case-insensitively against error text because
// providers surface quota exhaustion in wildly different shapes.
var rateLimitMarkers = []string{
	"rate limit",
	"quota",
	"too many requests",
	"429",
	"exceeded your current quota",
	"requests per",
}

// Classify maps a provider failure onto an Outcome. Structured signals take
// precedence; anything else falls back to the textual heuristics.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeTransient
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		switch {
		case pe.Status == http.StatusTooManyRequests,
			pe.Code == "resource_exhausted",
			pe.Code == "insufficient_quota":
			return OutcomeRateLimited
		case pe.Status == http.StatusNotFound, pe.Code == "model_not_found":
			return OutcomeFatal
		}
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return OutcomeRateLimited
		}
	}
	return OutcomeTransient
}
