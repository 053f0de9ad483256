package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "railauth_client_requests_total",
			Help: "Total API calls made through the authenticated client, by outcome",
		},
		[]string{"method", "outcome"},
	)

	tokenRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "railauth_client_token_refresh_total",
			Help: "Total access token refreshes triggered by a 401, by result",
		},
		[]string{"result"},
	)

	circuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "railauth_client_circuit_breaker_state",
			Help: "Current state of the API circuit breaker (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal)
	prometheus.MustRegister(tokenRefreshTotal)
	prometheus.MustRegister(circuitBreakerState)
}

func observeOutcome(method, outcome string) {
	requestsTotal.WithLabelValues(method, outcome).Inc()
}

// stateToFloat maps gobreaker states to prometheus gauge values.
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
