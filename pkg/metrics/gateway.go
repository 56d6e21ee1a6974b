package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics counts calls made to the remote storefront API.
type GatewayMetrics struct {
	requests *prometheus.CounterVec
}

// NewGatewayMetrics registers the gateway request counter on the provided registerer.
func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	if reg == nil {
		return &GatewayMetrics{}
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_requests_total",
		Help: "Requests issued to the storefront API by endpoint and status class.",
	}, []string{"endpoint", "status_class"})
	reg.MustRegister(requests)
	return &GatewayMetrics{requests: requests}
}

// ObserveRequest records one round trip. A zero status means the request never got a response.
func (g *GatewayMetrics) ObserveRequest(endpoint string, status int) {
	if g == nil || g.requests == nil {
		return
	}
	g.requests.WithLabelValues(normalizeLabel(endpoint), statusClass(status)).Inc()
}

func statusClass(status int) string {
	if status <= 0 {
		return "transport_error"
	}
	return strconv.Itoa(status/100) + "xx"
}
