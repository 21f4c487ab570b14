package api

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func sampleRequest() CreateOrderRequest {
	return CreateOrderRequest{
		IdempotencyKey: "key-1",
		Customer:       CustomerFields{FirstName: "Amira", LastName: "Ben Salah", Email: "amira@example.tn"},
		DeliveryDate:   "2026-03-20",
		Items: []LineItem{
			{ProductID: 7, Name: "Robe lin", UnitPrice: decimal.RequireFromString("65.00"), Size: "M", Quantity: 2},
		},
		Subtotal: decimal.RequireFromString("130"),
		Total:    decimal.RequireFromString("130"),
	}
}

func TestFingerprint_IgnoresIdempotencyKey(t *testing.T) {
	a := sampleRequest()
	b := sampleRequest()
	b.IdempotencyKey = "key-2"

	assert.Len(t, Fingerprint(a), 64)
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.Equal(t, "key-1", a.IdempotencyKey)
}

func TestFingerprint_ChangesWithContent(t *testing.T) {
	base := Fingerprint(sampleRequest())

	moreItems := sampleRequest()
	moreItems.Items = append(moreItems.Items, LineItem{ProductID: 9, Name: "Foulard", UnitPrice: decimal.NewFromInt(20), Size: "U", Quantity: 1})
	assert.NotEqual(t, base, Fingerprint(moreItems))

	otherEmail := sampleRequest()
	otherEmail.Customer.Email = "autre@example.tn"
	assert.NotEqual(t, base, Fingerprint(otherEmail))

	otherDate := sampleRequest()
	otherDate.DeliveryDate = "2026-03-21"
	assert.NotEqual(t, base, Fingerprint(otherDate))
}
