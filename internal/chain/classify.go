package chain

import (
	"fmt"
	"strings"

	"github.com/carmarket/carmarket/internal/domain"
)

// classifySubmission maps a raw submission failure to the error taxonomy.
// Node and signer error shapes are not fully structured, so this is
// best-effort substring matching; anything unrecognized becomes
// ErrUnknownSubmission with the original message preserved.
func classifySubmission(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())

	switch {
	case containsAny(msg, "user denied", "user rejected", "request rejected", "declined"):
		return fmt.Errorf("%w: %v", domain.ErrSubmissionRejected, err)
	case containsAny(msg, "insufficient funds", "insufficient balance"):
		return fmt.Errorf("%w: %v", domain.ErrInsufficientFunds, err)
	case containsAny(msg, "out of gas", "gas required exceeds", "intrinsic gas", "gas limit", "fee cap", "max fee per gas"):
		return fmt.Errorf("%w: %v", domain.ErrGas, err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrUnknownSubmission, err)
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
