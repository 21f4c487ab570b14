// Package api holds the JSON contract between the storefront and orders-service.
package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DateLayout        = "2006-01-02"
	IdempotencyHeader = "Idempotency-Key"
)

type CustomerFields struct {
	FirstName  string `json:"first_name" validate:"required,min=2"`
	LastName   string `json:"last_name" validate:"required,min=2"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone" validate:"required,min=8"`
	Address    string `json:"address" validate:"required,min=5"`
	City       string `json:"city" validate:"required,min=2"`
	PostalCode string `json:"postal_code" validate:"required,min=4"`
	Country    string `json:"country" validate:"required,min=2"`
}

type RecipientFields struct {
	FirstName    string `json:"first_name" validate:"required,min=2"`
	LastName     string `json:"last_name" validate:"required,min=2"`
	Phone        string `json:"phone" validate:"required,min=8"`
	Address      string `json:"address" validate:"required,min=5"`
	City         string `json:"city" validate:"required,min=2"`
	PostalCode   string `json:"postal_code" validate:"required,min=4"`
	Country      string `json:"country" validate:"required,min=2"`
	Instructions string `json:"instructions,omitempty"`
}

type LineItem struct {
	ProductID int64           `json:"product_id" validate:"gt=0"`
	Name      string          `json:"name" validate:"required"`
	Reference string          `json:"reference,omitempty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Size      string          `json:"size" validate:"required"`
	Color     string          `json:"color,omitempty"`
	Quantity  int             `json:"quantity" validate:"gte=1"`
}

// CreateOrderRequest is the payload captured by the checkout at confirmation time.
type CreateOrderRequest struct {
	IdempotencyKey  string           `json:"idempotency_key,omitempty"`
	Customer        CustomerFields   `json:"customer"`
	DeliveryDate    string           `json:"delivery_date" validate:"required,datetime=2006-01-02"`
	Notes           string           `json:"notes,omitempty"`
	PaymentMethod   string           `json:"payment_method,omitempty"`
	Items           []LineItem       `json:"items" validate:"required,min=1,dive"`
	Subtotal        decimal.Decimal  `json:"subtotal"`
	Total           decimal.Decimal  `json:"total"`
	DeliveryAddress *RecipientFields `json:"delivery_address,omitempty"`
}

// Fingerprint hashes the order content of req. The idempotency key is not part
// of it, so two submissions under one key can be compared.
func Fingerprint(req CreateOrderRequest) string {
	req.IdempotencyKey = ""
	b, err := json.Marshal(req)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

type OrderAck struct {
	ID          int64           `json:"id_order"`
	OrderNumber string          `json:"numero_commande"`
	Total       decimal.Decimal `json:"total_order"`
	Status      string          `json:"status_order"`
}

type OrderHeader struct {
	ID                 int64           `json:"id_order"`
	OrderNumber        string          `json:"numero_commande"`
	Subtotal           decimal.Decimal `json:"sous_total_order"`
	DiscountAmount     decimal.Decimal `json:"discount_amount_order"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage_order"`
	DeliveryCost       decimal.Decimal `json:"delivery_cost_order"`
	Total              decimal.Decimal `json:"total_order"`
	Status             string          `json:"status_order"`
	DesiredDelivery    *string         `json:"date_livraison_souhaitee"`
	PaymentStatus      string          `json:"payment_status"`
	PaymentMethod      string          `json:"payment_method"`
	Notes              *string         `json:"notes_order"`
	SeenByAdmin        bool            `json:"vue_par_admin"`
	SeenAt             *time.Time      `json:"date_vue_admin"`
	CreatedAt          time.Time       `json:"date_creation_order"`
	ConfirmedAt        *time.Time      `json:"date_confirmation_order"`
	DeliveredAt        *time.Time      `json:"date_livraison_order"`
	Customer           Customer        `json:"customer"`
}

type Customer struct {
	LastName  string `json:"nom"`
	FirstName string `json:"prenom"`
	Email     string `json:"email"`
	Phone     string `json:"telephone"`
	Address   string `json:"adresse"`
}

type OrderItem struct {
	ID        int64           `json:"id_order_item"`
	ProductID *int64          `json:"id_product"`
	Name      string          `json:"nom_product_snapshot"`
	Reference *string         `json:"reference_product_snapshot"`
	UnitPrice decimal.Decimal `json:"price_product_snapshot"`
	Size      *string         `json:"size_selected"`
	Color     *string         `json:"color_selected"`
	Quantity  int             `json:"quantity_ordered"`
	Subtotal  decimal.Decimal `json:"subtotal_item"`
	Discount  decimal.Decimal `json:"discount_item"`
	Total     decimal.Decimal `json:"total_item"`
	Image     *string         `json:"img_product"`
}

type DeliveryAddress struct {
	LastName     string  `json:"nom_destinataire"`
	FirstName    string  `json:"prenom_destinataire"`
	Phone        *string `json:"telephone_destinataire"`
	Address      string  `json:"adresse_livraison"`
	City         string  `json:"ville_livraison"`
	PostalCode   string  `json:"code_postal_livraison"`
	Country      string  `json:"pays_livraison"`
	Instructions *string `json:"instructions_livraison"`
}

// OrderDetail keeps DeliveryAddress without omitempty: an absent address is an explicit null.
type OrderDetail struct {
	Order           OrderHeader      `json:"order"`
	Items           []OrderItem      `json:"items"`
	DeliveryAddress *DeliveryAddress `json:"delivery_address"`
}

type OrderSummary struct {
	ID            int64           `json:"id_order"`
	OrderNumber   string          `json:"numero_commande"`
	Total         decimal.Decimal `json:"total_order"`
	Status        string          `json:"status_order"`
	PaymentStatus string          `json:"payment_status"`
	SeenByAdmin   bool            `json:"vue_par_admin"`
	CreatedAt     time.Time       `json:"date_creation_order"`
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email"`
}

type StatusUpdateRequest struct {
	Status string `json:"status"`
}

type PaymentUpdateRequest struct {
	PaymentStatus string `json:"payment_status"`
}

// Envelope is the uniform response body: data on success, message on failure.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Data    *T     `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// OrderPlacedEvent is the payload published on the orders.placed topic.
type OrderPlacedEvent struct {
	OrderNumber     string          `json:"numero_commande"`
	Email           string          `json:"email"`
	FirstName       string          `json:"prenom"`
	LastName        string          `json:"nom"`
	Total           decimal.Decimal `json:"total_order"`
	Items           int             `json:"items"`
	PaymentMethod   string          `json:"payment_method"`
	DesiredDelivery string          `json:"date_livraison_souhaitee"`
	CreatedAt       time.Time       `json:"date_creation_order"`
}
