package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Customer struct {
	ID         int64  `db:"id_customer"`
	LastName   string `db:"nom_customer"`
	FirstName  string `db:"prenom_customer"`
	Email      string `db:"email_customer"`
	Phone      string `db:"telephone_customer"`
	Address    string `db:"adresse_customer"`
	City       string `db:"ville_customer"`
	PostalCode string `db:"code_postal_customer"`
	Country    string `db:"pays_customer"`
}

// FormattedAddress renders the single-line address shown with an order: "address, city postal".
func (c Customer) FormattedAddress() string {
	return fmt.Sprintf("%s, %s %s", c.Address, c.City, c.PostalCode)
}

type Order struct {
	ID                 int64           `db:"id_order"`
	OrderNumber        string          `db:"numero_commande"`
	CustomerID         int64           `db:"id_customer"`
	Subtotal           decimal.Decimal `db:"sous_total_order"`
	DiscountAmount     decimal.Decimal `db:"discount_amount_order"`
	DiscountPercentage decimal.Decimal `db:"discount_percentage_order"`
	DeliveryCost       decimal.Decimal `db:"delivery_cost_order"`
	Total              decimal.Decimal `db:"total_order"`
	Status             OrderStatus     `db:"status_order"`
	DesiredDelivery    *time.Time      `db:"date_livraison_souhaitee"`
	PaymentStatus      PaymentStatus   `db:"payment_status"`
	PaymentMethod      string          `db:"payment_method"`
	Notes              *string         `db:"notes_order"`
	SeenByAdmin        bool            `db:"vue_par_admin"`
	SeenAt             *time.Time      `db:"date_vue_admin"`
	IdempotencyKey     *string         `db:"idempotency_key"`
	RequestFingerprint *string         `db:"request_fingerprint"`
	CreatedAt          time.Time       `db:"date_creation_order"`
	ConfirmedAt        *time.Time      `db:"date_confirmation_order"`
	DeliveredAt        *time.Time      `db:"date_livraison_order"`
}

// OrderItem is the product snapshot taken at submission. It is never updated afterwards.
type OrderItem struct {
	ID        int64           `db:"id_order_item"`
	OrderID   int64           `db:"id_order"`
	ProductID *int64          `db:"id_product"`
	Name      string          `db:"nom_product_snapshot"`
	Reference *string         `db:"reference_product_snapshot"`
	UnitPrice decimal.Decimal `db:"price_product_snapshot"`
	Size      *string         `db:"size_selected"`
	Color     *string         `db:"color_selected"`
	Quantity  int             `db:"quantity_ordered"`
	Subtotal  decimal.Decimal `db:"subtotal_item"`
	Discount  decimal.Decimal `db:"discount_item"`
	Total     decimal.Decimal `db:"total_item"`
	// Image comes from the live catalog and is nil once the product is gone.
	Image *string `db:"img_product"`
}

type DeliveryAddress struct {
	ID           int64   `db:"id_delivery_address"`
	OrderID      int64   `db:"id_order"`
	LastName     string  `db:"nom_destinataire"`
	FirstName    string  `db:"prenom_destinataire"`
	Phone        *string `db:"telephone_destinataire"`
	Address      string  `db:"adresse_livraison"`
	City         string  `db:"ville_livraison"`
	PostalCode   string  `db:"code_postal_livraison"`
	Country      string  `db:"pays_livraison"`
	Instructions *string `db:"instructions_livraison"`
}

type OrderDetail struct {
	Order           Order
	Customer        Customer
	Items           []OrderItem
	DeliveryAddress *DeliveryAddress
}

// NewOrder is everything the repository needs to persist a placed order in one transaction.
type NewOrder struct {
	Order           Order
	Customer        Customer
	Items           []OrderItem
	DeliveryAddress *DeliveryAddress
}

type OrderFilter struct {
	Status     OrderStatus
	UnseenOnly bool
	Limit      int
	Offset     int
}

type OrderSummary struct {
	ID            int64           `db:"id_order"`
	OrderNumber   string          `db:"numero_commande"`
	Total         decimal.Decimal `db:"total_order"`
	Status        OrderStatus     `db:"status_order"`
	PaymentStatus PaymentStatus   `db:"payment_status"`
	SeenByAdmin   bool            `db:"vue_par_admin"`
	CreatedAt     time.Time       `db:"date_creation_order"`
	LastName      string          `db:"nom_customer"`
	FirstName     string          `db:"prenom_customer"`
	Email         string          `db:"email_customer"`
}

type OutboxEvent struct {
	ID          int64     `db:"id"`
	AggregateID string    `db:"aggregate_id"`
	EventType   string    `db:"event_type"`
	Payload     []byte    `db:"payload"`
	CreatedAt   time.Time `db:"created_at"`
}

const EventOrderPlaced = "order.placed"
