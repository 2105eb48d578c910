package chain

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/carmarket/carmarket/internal/domain"
)

const minListingYear = 1900

// validateListing checks the local constraints on a listing request.
// Failures here are never submitted to the contract.
func validateListing(make_, model string, year uint16, priceWei *big.Int) error {
	if strings.TrimSpace(make_) == "" {
		return &domain.ValidationError{Field: "make", Reason: "must not be empty"}
	}
	if strings.TrimSpace(model) == "" {
		return &domain.ValidationError{Field: "model", Reason: "must not be empty"}
	}
	maxYear := time.Now().Year() + 1
	if int(year) < minListingYear || int(year) > maxYear {
		return &domain.ValidationError{
			Field:  "year",
			Reason: fmt.Sprintf("must be between %d and %d", minListingYear, maxYear),
		}
	}
	if priceWei == nil || priceWei.Sign() <= 0 {
		return &domain.ValidationError{Field: "price", Reason: "must be greater than zero"}
	}
	return nil
}
