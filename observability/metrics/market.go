package metrics

import (
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"nftmarket/native/market"
)

// MarketMetrics records order book activity. It implements market.Metrics.
type MarketMetrics struct {
	operations  *prometheus.CounterVec
	items       *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	settlements *prometheus.CounterVec
	volume      *prometheus.CounterVec
	feesPaid    prometheus.Counter
}

var (
	marketOnce     sync.Once
	marketRegistry *MarketMetrics
)

// Market returns the process-wide marketplace metrics registry.
func Market() *MarketMetrics {
	marketOnce.Do(func() {
		marketRegistry = newMarketMetrics()
		prometheus.MustRegister(marketRegistry.collectors()...)
	})
	return marketRegistry
}

func newMarketMetrics() *MarketMetrics {
	return &MarketMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nftmarket",
			Subsystem: "orderbook",
			Name:      "operations_total",
			Help:      "Order book calls segmented by operation and outcome kind.",
		}, []string{"op", "outcome"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nftmarket",
			Subsystem: "orderbook",
			Name:      "items_total",
			Help:      "Items processed by successful order book calls, batch items included.",
		}, []string{"op"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nftmarket",
			Subsystem: "orderbook",
			Name:      "operation_duration_seconds",
			Help:      "Latency of order book calls including the state commit.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nftmarket",
			Subsystem: "orderbook",
			Name:      "settlements_total",
			Help:      "Closed orders segmented by terminal status.",
		}, []string{"status"}),
		volume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nftmarket",
			Subsystem: "orderbook",
			Name:      "volume_total",
			Help:      "Settled sale volume in base units.",
		}, []string{"status"}),
		feesPaid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nftmarket",
			Subsystem: "orderbook",
			Name:      "fees_total",
			Help:      "Platform fees paid to the collector in base units.",
		}),
	}
}

func (m *MarketMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.operations, m.items, m.latency, m.settlements, m.volume, m.feesPaid}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	switch market.KindOf(err) {
	case market.ErrAuthorization:
		return "authorization"
	case market.ErrState:
		return "state"
	case market.ErrValidation:
		return "validation"
	case market.ErrPayment:
		return "payment"
	case market.ErrRegistry:
		return "registry"
	default:
		return "internal"
	}
}

// ObserveOperation implements market.Metrics.
func (m *MarketMetrics) ObserveOperation(op string, items int, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome(err)).Inc()
	m.latency.WithLabelValues(op).Observe(elapsed.Seconds())
	if err == nil && items > 0 {
		m.items.WithLabelValues(op).Add(float64(items))
	}
}

// ObserveSettlement implements market.Metrics. Amounts are converted to
// float64 and may lose precision for very large values.
func (m *MarketMetrics) ObserveSettlement(status market.Status, price, fee *big.Int) {
	if m == nil {
		return
	}
	label := status.String()
	m.settlements.WithLabelValues(label).Inc()
	if price != nil && price.Sign() > 0 {
		v, _ := new(big.Float).SetInt(price).Float64()
		m.volume.WithLabelValues(label).Add(v)
	}
	if fee != nil && fee.Sign() > 0 {
		v, _ := new(big.Float).SetInt(fee).Float64()
		m.feesPaid.Add(v)
	}
}
