package relay

import (
	"slices"

	"github.com/zitadel/oidc/v3/pkg/oidc"
)

// Outcome describes what the provider callback appears to carry. It is used
// for logging only and never changes the response.
type Outcome string

// Callback outcomes.
const (
	OutcomeAuthorized    Outcome = "authorized"
	OutcomeCancelled     Outcome = "cancelled"
	OutcomeProviderError Outcome = "provider_error"
	OutcomeIncomplete    Outcome = "incomplete"
)

var cancelledErrors = []string{
	string(oidc.AccessDenied),
	string(oidc.LoginRequired),
	string(oidc.InteractionRequired),
}

// Classify inspects a forwarded payload. An empty payload is a cancelled flow.
func Classify(payload *Params) Outcome {
	if payload.Len() == 0 {
		return OutcomeCancelled
	}
	if e, ok := payload.Get("error"); ok {
		if slices.Contains(cancelledErrors, e) {
			return OutcomeCancelled
		}
		return OutcomeProviderError
	}
	for _, k := range SensitiveParams {
		if _, ok := payload.Get(k); ok {
			return OutcomeAuthorized
		}
	}
	return OutcomeIncomplete
}

// Healthy reports whether the outcome is worth only an info-level log
func (o Outcome) Healthy() bool {
	return o == OutcomeAuthorized
}
