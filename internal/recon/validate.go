package recon

import (
	"fmt"

	"github.com/forkline/reconciliation/internal/domain/entity"
)

// validateOrder rejects malformed order data before any matching happens.
func validateOrder(order *entity.Order) error {
	if len(order.Items) == 0 {
		return &ValidationError{OrderID: order.ID, Reason: "order has no line items"}
	}
	for i, li := range order.Items {
		if li.ProductCode == "" {
			return &ValidationError{OrderID: order.ID, Reason: fmt.Sprintf("line %d has an empty product code", i)}
		}
		if li.Quantity.Sign() <= 0 {
			return &ValidationError{OrderID: order.ID, Reason: fmt.Sprintf("line %d (%s) has non-positive quantity %s", i, li.ProductCode, li.Quantity)}
		}
		if li.UnitPrice.Sign() < 0 {
			return &ValidationError{OrderID: order.ID, Reason: fmt.Sprintf("line %d (%s) has negative unit price %s", i, li.ProductCode, li.UnitPrice)}
		}
	}
	return nil
}

// validateReceipt rejects malformed delivery data for the matched receipt.
func validateReceipt(orderID string, receipt *entity.DeliveryReceipt) error {
	for i, li := range receipt.Items {
		if li.ProductCode == "" {
			return &ValidationError{OrderID: orderID, Reason: fmt.Sprintf("delivery %s line %d has an empty product code", receipt.ID, i)}
		}
		if li.Quantity.Sign() < 0 {
			return &ValidationError{OrderID: orderID, Reason: fmt.Sprintf("delivery %s line %d (%s) has negative quantity %s", receipt.ID, i, li.ProductCode, li.Quantity)}
		}
		if li.UnitPrice.Sign() < 0 {
			return &ValidationError{OrderID: orderID, Reason: fmt.Sprintf("delivery %s line %d (%s) has negative unit price %s", receipt.ID, i, li.ProductCode, li.UnitPrice)}
		}
	}
	return nil
}
