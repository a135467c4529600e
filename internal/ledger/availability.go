package ledger

import (
	"context"
	"fmt"

	"github.com/gudang-erp/gudang-erp/internal/shared"
)

// CheckAvailability compares each requested quantity against the current
// derived stock and reports every shortage at once, not just the first.
// Batch reporting lets the admin UI show the whole problem in one round
// trip instead of forcing repeated submissions.
func CheckAvailability(ctx context.Context, reader QuantityReader, requests []AvailabilityRequest) (AvailabilityResult, error) {
	if len(requests) == 0 {
		return AvailabilityResult{}, fmt.Errorf("%w: at least one item required", shared.ErrValidation)
	}
	result := AvailabilityResult{OK: true, Shortages: []Shortage{}}
	for _, req := range requests {
		if req.ProductID <= 0 || req.RequestedQty <= 0 {
			return AvailabilityResult{}, fmt.Errorf("%w: product id and positive quantity required", shared.ErrValidation)
		}
		available, err := reader.SumQuantity(ctx, req.ProductID, req.VariantID)
		if err != nil {
			return AvailabilityResult{}, err
		}
		if available < req.RequestedQty {
			result.OK = false
			result.Shortages = append(result.Shortages, Shortage{
				ProductID: req.ProductID,
				VariantID: req.VariantID,
				Required:  req.RequestedQty,
				Available: available,
			})
		}
	}
	return result, nil
}
