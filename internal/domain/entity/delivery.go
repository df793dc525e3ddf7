package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// DeliveryReceipt is a supplier delivery record as reported at the dock.
// OrderRef may be empty when the supplier did not carry the order reference through.
type DeliveryReceipt struct {
	ID           string             `json:"id"`
	OrderRef     string             `json:"order_ref,omitempty"`
	SupplierID   string             `json:"supplier_id"`
	RestaurantID string             `json:"restaurant_id"`
	Items        []DeliveryLineItem `json:"items"`
	DeliveredAt  time.Time          `json:"delivered_at"`
}

// DeliveryLineItem is a single product line on a delivery receipt.
type DeliveryLineItem struct {
	ProductCode string          `json:"product_code"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	QualityFlag *QualityFlag    `json:"quality_flag,omitempty"`
}

// QualityFlag is set by the external inspection process on a delivered line.
// Its severity is passed through to the resulting discrepancy unchanged.
type QualityFlag struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Note     string   `json:"note,omitempty"`
}

// LineTotal returns quantity x unit price for the line.
func (li DeliveryLineItem) LineTotal() decimal.Decimal {
	return li.Quantity.Mul(li.UnitPrice)
}

// TotalValue returns the computed receipt total (sum of line totals).
func (d *DeliveryReceipt) TotalValue() decimal.Decimal {
	total := decimal.Zero
	for _, li := range d.Items {
		total = total.Add(li.LineTotal())
	}
	return total
}

// Line returns the delivered line with the given product code, if present.
func (d *DeliveryReceipt) Line(productCode string) (DeliveryLineItem, bool) {
	for _, li := range d.Items {
		if li.ProductCode == productCode {
			return li, true
		}
	}
	return DeliveryLineItem{}, false
}
