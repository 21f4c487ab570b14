package checkout

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fjod/boutique/orders-service/pkg/api"
)

const DefaultCountry = "Tunisie"

type ContactInfo struct {
	FirstName string `json:"first_name" validate:"required,min=2"`
	LastName  string `json:"last_name" validate:"required,min=2"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"required,min=8"`
}

type DeliveryInfo struct {
	Address    string `json:"address" validate:"required,min=5"`
	City       string `json:"city" validate:"required,min=2"`
	PostalCode string `json:"postal_code" validate:"required,min=4"`
	Country    string `json:"country" validate:"required,min=2"`
	// Date is YYYY-MM-DD.
	Date  string `json:"delivery_date" validate:"required"`
	Notes string `json:"notes"`
}

// ValidationError maps field names to messages. The step does not advance.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "invalid checkout fields: " + strings.Join(parts, "; ")
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validateFields(v *validator.Validate, s interface{}) *ValidationError {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return &ValidationError{Fields: map[string]string{"form": err.Error()}}
	}

	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		out.Fields[fe.Field()] = message(fe)
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "email":
		return "must be a valid email address"
	}
	return "is invalid"
}

// parseDeliveryDate returns an error message when raw is not a date from today on.
func parseDeliveryDate(raw string, now time.Time) (time.Time, string) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, "is required"
	}
	d, err := time.ParseInLocation(api.DateLayout, raw, now.Location())
	if err != nil {
		return time.Time{}, "must be a date formatted YYYY-MM-DD"
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if d.Before(today) {
		return time.Time{}, "must not be in the past"
	}
	return d, ""
}
