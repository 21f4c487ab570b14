package http

import (
	"github.com/fjod/boutique/orders-service/internal/domain"
	"github.com/fjod/boutique/orders-service/pkg/api"
)

func convertOrderDetail(d *domain.OrderDetail) api.OrderDetail {
	o := d.Order
	header := api.OrderHeader{
		ID:                 o.ID,
		OrderNumber:        o.OrderNumber,
		Subtotal:           o.Subtotal,
		DiscountAmount:     o.DiscountAmount,
		DiscountPercentage: o.DiscountPercentage,
		DeliveryCost:       o.DeliveryCost,
		Total:              o.Total,
		Status:             o.Status.String(),
		PaymentStatus:      o.PaymentStatus.String(),
		PaymentMethod:      o.PaymentMethod,
		Notes:              o.Notes,
		SeenByAdmin:        o.SeenByAdmin,
		SeenAt:             o.SeenAt,
		CreatedAt:          o.CreatedAt,
		ConfirmedAt:        o.ConfirmedAt,
		DeliveredAt:        o.DeliveredAt,
		Customer: api.Customer{
			LastName:  d.Customer.LastName,
			FirstName: d.Customer.FirstName,
			Email:     d.Customer.Email,
			Phone:     d.Customer.Phone,
			Address:   d.Customer.FormattedAddress(),
		},
	}
	if o.DesiredDelivery != nil {
		date := o.DesiredDelivery.Format(api.DateLayout)
		header.DesiredDelivery = &date
	}

	items := make([]api.OrderItem, 0, len(d.Items))
	for _, it := range d.Items {
		items = append(items, api.OrderItem{
			ID:        it.ID,
			ProductID: it.ProductID,
			Name:      it.Name,
			Reference: it.Reference,
			UnitPrice: it.UnitPrice,
			Size:      it.Size,
			Color:     it.Color,
			Quantity:  it.Quantity,
			Subtotal:  it.Subtotal,
			Discount:  it.Discount,
			Total:     it.Total,
			Image:     it.Image,
		})
	}

	var addr *api.DeliveryAddress
	if a := d.DeliveryAddress; a != nil {
		addr = &api.DeliveryAddress{
			LastName:     a.LastName,
			FirstName:    a.FirstName,
			Phone:        a.Phone,
			Address:      a.Address,
			City:         a.City,
			PostalCode:   a.PostalCode,
			Country:      a.Country,
			Instructions: a.Instructions,
		}
	}

	return api.OrderDetail{Order: header, Items: items, DeliveryAddress: addr}
}

func convertSummaries(in []domain.OrderSummary) []api.OrderSummary {
	out := make([]api.OrderSummary, 0, len(in))
	for _, s := range in {
		out = append(out, api.OrderSummary{
			ID:            s.ID,
			OrderNumber:   s.OrderNumber,
			Total:         s.Total,
			Status:        s.Status.String(),
			PaymentStatus: s.PaymentStatus.String(),
			SeenByAdmin:   s.SeenByAdmin,
			CreatedAt:     s.CreatedAt,
			CustomerName:  s.FirstName + " " + s.LastName,
			CustomerEmail: s.Email,
		})
	}
	return out
}

func convertAck(o *domain.Order) api.OrderAck {
	return api.OrderAck{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		Total:       o.Total,
		Status:      o.Status.String(),
	}
}
