package websocket

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// hubMetrics records hub activity. A nil *hubMetrics records nothing.
type hubMetrics struct {
	clients  metric.Int64UpDownCounter
	sent     metric.Int64Counter
	dropped  metric.Int64Counter
	received metric.Int64Counter
}

func newHubMetrics(meter metric.Meter) (*hubMetrics, error) {
	if meter == nil {
		return nil, nil
	}
	clients, err := meter.Int64UpDownCounter("asyncops_websocket_clients",
		metric.WithDescription("Connected WebSocket clients"))
	if err != nil {
		return nil, err
	}
	sent, err := meter.Int64Counter("asyncops_websocket_messages_sent_total",
		metric.WithDescription("Messages queued to WebSocket clients"))
	if err != nil {
		return nil, err
	}
	dropped, err := meter.Int64Counter("asyncops_websocket_messages_dropped_total",
		metric.WithDescription("Messages dropped because a client was too slow"))
	if err != nil {
		return nil, err
	}
	received, err := meter.Int64Counter("asyncops_websocket_messages_received_total",
		metric.WithDescription("Messages received from WebSocket clients"))
	if err != nil {
		return nil, err
	}
	return &hubMetrics{clients: clients, sent: sent, dropped: dropped, received: received}, nil
}

func (m *hubMetrics) clientDelta(ctx context.Context, n int64) {
	if m == nil {
		return
	}
	m.clients.Add(ctx, n)
}

func (m *hubMetrics) recordBroadcast(ctx context.Context, msgType string, sent, dropped int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("type", msgType))
	m.sent.Add(ctx, int64(sent), attrs)
	if dropped > 0 {
		m.dropped.Add(ctx, int64(dropped), attrs)
	}
}

func (m *hubMetrics) recordReceived(ctx context.Context) {
	if m == nil {
		return
	}
	m.received.Add(ctx, 1)
}
