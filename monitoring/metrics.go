package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	occupiedSeats = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "seats_occupied_total",
			Help: "Current number of booked seats",
		},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_sessions_total",
			Help: "Current number of live session records",
		},
	)

	bookingOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_operations_total",
			Help: "Total seat ledger operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	paymentVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_verifications_total",
			Help: "Total payment verification attempts by outcome",
		},
		[]string{"outcome"},
	)

	gatewayDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Duration of payment gateway round trips",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"call"},
	)
)

// SeatCounter reports the number of currently booked seats.
type SeatCounter interface {
	BookedSeatCount(ctx context.Context) (int, error)
}

type Monitor struct {
	redis *redis.Client
	seats SeatCounter
}

func NewMonitor(redisClient *redis.Client, seats SeatCounter) *Monitor {
	monitor := &Monitor{redis: redisClient, seats: seats}

	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		ctx := context.Background()

		m.collectSessionMetrics(ctx)
		m.collectSeatMetrics(ctx)
	}
}

func (m *Monitor) collectSessionMetrics(ctx context.Context) {
	keys, err := m.redis.Keys(ctx, "session:*").Result()
	if err != nil {
		return
	}
	activeSessions.Set(float64(len(keys)))
}

func (m *Monitor) collectSeatMetrics(ctx context.Context) {
	if m.seats == nil {
		return
	}
	count, err := m.seats.BookedSeatCount(ctx)
	if err != nil {
		return
	}
	occupiedSeats.Set(float64(count))
}

// TrackBookingOperation counts a ledger operation outcome.
func TrackBookingOperation(operation, outcome string) {
	bookingOperations.WithLabelValues(operation, outcome).Inc()
}

// TrackPaymentVerification counts a verification attempt outcome.
func TrackPaymentVerification(outcome string) {
	paymentVerifications.WithLabelValues(outcome).Inc()
}

// TrackGatewayCall observes one gateway round trip.
func TrackGatewayCall(call string, duration time.Duration) {
	gatewayDuration.WithLabelValues(call).Observe(duration.Seconds())
}
