package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is a restaurant purchase order as issued to a supplier.
// Immutable once issued except through administrative correction upstream.
type Order struct {
	ID           string          `json:"id"`
	SupplierID   string          `json:"supplier_id"`
	RestaurantID string          `json:"restaurant_id"`
	OrderNumber  string          `json:"order_number"`
	Items        []OrderLineItem `json:"items"`
	OrderedAt    time.Time       `json:"ordered_at"`
}

// OrderLineItem is a single product line on an order.
type OrderLineItem struct {
	ProductCode string          `json:"product_code"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// LineTotal returns quantity x unit price for the line.
func (li OrderLineItem) LineTotal() decimal.Decimal {
	return li.Quantity.Mul(li.UnitPrice)
}

// TotalValue returns the computed order total (sum of line totals).
func (o *Order) TotalValue() decimal.Decimal {
	total := decimal.Zero
	for _, li := range o.Items {
		total = total.Add(li.LineTotal())
	}
	return total
}

// Line returns the line item with the given product code, if present.
func (o *Order) Line(productCode string) (OrderLineItem, bool) {
	for _, li := range o.Items {
		if li.ProductCode == productCode {
			return li, true
		}
	}
	return OrderLineItem{}, false
}
