package domain

import "github.com/shopspring/decimal"

// CartLine is one cart entry. Lines are identified by (ProductID, Size).
type CartLine struct {
	ProductID int64           `json:"id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"price"`
	Size      string          `json:"size"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image"`
	Color     string          `json:"color,omitempty"`
}

func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func (l CartLine) SameItem(productID int64, size string) bool {
	return l.ProductID == productID && l.Size == size
}
