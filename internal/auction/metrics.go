package auction

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type metrics struct {
	bids     metric.Int64Counter
	sales    metric.Int64Counter
	batches  metric.Int64Counter
	rooms    metric.Int64UpDownCounter
	price    metric.Int64Histogram
	duration metric.Float64Histogram
}

// newMetrics registers the manager's instruments. An instrument that fails
// to register is replaced by a no-op one.
func newMetrics(meter metric.Meter, logger *slog.Logger) *metrics {
	nop := noop.Meter{}
	warn := func(name string, err error) {
		logger.Warn("failed to register metric", slog.String("name", name), slog.Any("error", err))
	}
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			warn(name, err)
			c, _ = nop.Int64Counter(name)
		}
		return c
	}

	rooms, err := meter.Int64UpDownCounter("auction.rooms", metric.WithDescription("Live auction rooms"))
	if err != nil {
		warn("auction.rooms", err)
		rooms, _ = nop.Int64UpDownCounter("auction.rooms")
	}
	price, err := meter.Int64Histogram("auction.sale.price",
		metric.WithDescription("Price paid per player sold"),
		metric.WithUnit("{currency}"),
	)
	if err != nil {
		warn("auction.sale.price", err)
		price, _ = nop.Int64Histogram("auction.sale.price")
	}
	duration, err := meter.Float64Histogram("auction.session.duration",
		metric.WithDescription("Time from session start to resolution"),
		metric.WithUnit("s"),
	)
	if err != nil {
		warn("auction.session.duration", err)
		duration, _ = nop.Float64Histogram("auction.session.duration")
	}

	return &metrics{
		bids:     counter("auction.bids", "Accepted bids"),
		sales:    counter("auction.sales", "Players sold"),
		batches:  counter("auction.batches", "Batches dispatched"),
		rooms:    rooms,
		price:    price,
		duration: duration,
	}
}

func (m *metrics) sold(ctx context.Context, mode Mode, price int64) {
	attrs := metric.WithAttributes(attribute.String("mode", string(mode)))
	m.sales.Add(ctx, 1, attrs)
	m.price.Record(ctx, price, attrs)
}

// finished records a session that just left the active state.
func (m *metrics) finished(ctx context.Context, s *session) {
	m.duration.Record(ctx, s.closedAt.Sub(s.startedAt).Seconds(), metric.WithAttributes(
		attribute.String("mode", string(s.mode)),
		attribute.String("state", string(s.state)),
	))
}
