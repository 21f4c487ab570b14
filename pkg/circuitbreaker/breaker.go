package circuitbreaker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
)

// State tracks breaker state (0=closed, 1=open, 2=half-open)
var State = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	},
	[]string{"circuit_name"},
)

type Settings struct {
	Name        string
	MaxRequests uint32        // allowed through in half-open state
	Interval    time.Duration // window for counting failures while closed
	Timeout     time.Duration // time spent open before going half-open
	MinRequests uint32
	FailRatio   float64
}

func DefaultSettings(name string) Settings {
	return Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    15 * time.Second,
		Timeout:     30 * time.Second,
		MinRequests: 3,
		FailRatio:   0.6,
	}
}

// New builds a breaker that logs and exports its state transitions.
func New[T any](s Settings) *gobreaker.CircuitBreaker[T] {
	State.WithLabelValues(s.Name).Set(0)

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= s.FailRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			State.WithLabelValues(name).Set(stateValue(to))
			log.WithFields(log.Fields{
				"circuit": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	})
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
