package fallback

import (
	"context"
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/rotisserie/eris"
)

// Failure modes are distinguished so callers can message users
// differently; they are never collapsed into one generic parse error.
var (
	ErrTimeout        = errors.New("fallback extraction timed out")
	ErrRateLimited    = errors.New("fallback extraction rate limited")
	ErrQuotaExhausted = errors.New("fallback extraction quota exhausted")
)

// classify maps transport errors onto the typed failure modes, keeping
// the provider's own message in the chain.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return eris.Wrap(ErrTimeout, err.Error())
	}

	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429:
			return eris.Wrap(ErrRateLimited, apiErr.Error())
		case 402:
			return eris.Wrap(ErrQuotaExhausted, apiErr.Error())
		}
	}
	return eris.Wrap(err, "fallback: extraction request failed")
}
