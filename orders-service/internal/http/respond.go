package http

import (
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/fjod/boutique/orders-service/pkg/api"
)

const (
	msgMissingOrderID = "Order ID is required"
	msgOrderNotFound  = "Order not found"
	msgFetchFailed    = "Error fetching order details"
	msgCreateFailed   = "Error creating order"
	msgUpdateFailed   = "Error updating order"
	msgInvalidBody    = "Invalid JSON body"
	msgKeyReused      = "Idempotency key already used for a different order"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Error("failed to encode response")
	}
}

func respondData[T any](w http.ResponseWriter, status int, data T) {
	respondJSON(w, status, api.Envelope[T]{Success: true, Data: &data})
}

// respondFailure writes the uniform {success:false, message} body.
func respondFailure(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, api.Envelope[struct{}]{Success: false, Message: message})
}
