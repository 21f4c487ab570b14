package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/fjod/boutique/orders-service/pkg/api"
	"github.com/fjod/boutique/storefront/internal/cart"
)

func formatTND(d decimal.Decimal) string {
	return d.StringFixed(2) + " TND"
}

func printCart(out io.Writer, c *cart.Store) error {
	lines := c.Lines()
	if len(lines) == 0 {
		_, err := fmt.Fprintln(out, "Cart is empty.")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPRODUCT\tSIZE\tCOLOR\tQTY\tUNIT\tSUBTOTAL")
	for _, l := range lines {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
			l.ProductID, l.Name, l.Size, orDash(l.Color), l.Quantity, formatTND(l.UnitPrice), formatTND(l.Subtotal()))
	}
	fmt.Fprintf(tw, "\t\t\t\t%d\t\t%s\n", c.TotalItemCount(), formatTND(c.TotalPrice()))
	return tw.Flush()
}

func printOrder(out io.Writer, d *api.OrderDetail) {
	o := d.Order
	fmt.Fprintf(out, "Order %s (id %d)\n", o.OrderNumber, o.ID)
	fmt.Fprintf(out, "Status: %s, payment %s (%s)\n", o.Status, o.PaymentStatus, o.PaymentMethod)
	fmt.Fprintf(out, "Customer: %s %s <%s> %s\n", o.Customer.FirstName, o.Customer.LastName, o.Customer.Email, o.Customer.Phone)
	fmt.Fprintf(out, "Address: %s\n", o.Customer.Address)
	if o.DesiredDelivery != nil {
		fmt.Fprintf(out, "Delivery date: %s\n", *o.DesiredDelivery)
	}
	if a := d.DeliveryAddress; a != nil {
		fmt.Fprintf(out, "Ship to: %s %s, %s, %s %s, %s\n", a.FirstName, a.LastName, a.Address, a.City, a.PostalCode, a.Country)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PRODUCT\tSIZE\tCOLOR\tQTY\tUNIT\tTOTAL")
	for _, it := range d.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			it.Name, deref(it.Size), deref(it.Color), it.Quantity, formatTND(it.UnitPrice), formatTND(it.Total))
	}
	tw.Flush()

	fmt.Fprintf(out, "Subtotal: %s\n", formatTND(o.Subtotal))
	fmt.Fprintf(out, "Delivery: %s\n", formatTND(o.DeliveryCost))
	fmt.Fprintf(out, "Total: %s\n", formatTND(o.Total))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return orDash(*s)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// flagName maps a form field to the checkout flag that sets it.
func flagName(field string) string {
	if field == "delivery_date" {
		return "date"
	}
	return strings.ReplaceAll(field, "_", "-")
}
