package auction_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jensholdgaard/player-auction/internal/auction"
	"github.com/jensholdgaard/player-auction/internal/clock"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestManager_Metrics(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(ctx) })

	clk := clock.NewMock(epoch)
	mgr := auction.NewManager(testCatalog(t), testRules(), time.Hour,
		newMockSnapshotRepo(), &mockEventStore{}, nil,
		slog.Default(), noop.NewTracerProvider(), mp, clk,
	)
	if _, err := mgr.CreateRoom(ctx, "room", []string{"A", "B"}); err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}
	if _, err := mgr.StartRegular(ctx, "room", "Virat"); err != nil {
		t.Fatalf("StartRegular() error = %v", err)
	}
	for _, bid := range []struct {
		team   string
		amount int64
	}{{"A", 200_000}, {"B", 210_000}} {
		if _, err := mgr.PlaceRegularBid(ctx, "room", "Virat", bid.team, bid.amount); err != nil {
			t.Fatalf("PlaceRegularBid(%s) error = %v", bid.team, err)
		}
	}
	clk.Advance(30 * time.Second)

	got := collect(t, reader)

	bids, ok := got["auction.bids"].Data.(metricdata.Sum[int64])
	if !ok || len(bids.DataPoints) != 1 || bids.DataPoints[0].Value != 2 {
		t.Errorf("auction.bids = %+v, want 2", got["auction.bids"].Data)
	}
	rooms, ok := got["auction.rooms"].Data.(metricdata.Sum[int64])
	if !ok || len(rooms.DataPoints) != 1 || rooms.DataPoints[0].Value != 1 {
		t.Errorf("auction.rooms = %+v, want 1", got["auction.rooms"].Data)
	}
	price, ok := got["auction.sale.price"].Data.(metricdata.Histogram[int64])
	if !ok || len(price.DataPoints) != 1 || price.DataPoints[0].Sum != 210_000 {
		t.Errorf("auction.sale.price = %+v, want one sale at 210000", got["auction.sale.price"].Data)
	}
	duration, ok := got["auction.session.duration"].Data.(metricdata.Histogram[float64])
	if !ok || len(duration.DataPoints) != 1 || duration.DataPoints[0].Sum != 30 {
		t.Errorf("auction.session.duration = %+v, want one 30s session", got["auction.session.duration"].Data)
	}
}
