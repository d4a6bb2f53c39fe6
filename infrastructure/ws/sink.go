package ws

import (
	"fmt"
	"log/slog"
	"sync"

	"courier/domain/event"
	"courier/observability"
)

// connSink bridges the event-processing path and one connection's write
// pump. Push never blocks: the buffer absorbs bursts and overflow drops the
// event rather than stalling routing for every other connection.
type connSink struct {
	log     *slog.Logger
	metrics *observability.Metrics

	mu     sync.Mutex
	out    chan []byte
	closed bool
}

func newConnSink(log *slog.Logger, metrics *observability.Metrics, buffer int) *connSink {
	return &connSink{
		log:     log,
		metrics: metrics,
		out:     make(chan []byte, buffer),
	}
}

func (c *connSink) Push(e event.Outbound) error {
	data, err := Encode(e)
	if err != nil {
		return fmt.Errorf("encode %s: %w", e.EventType(), err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("push %s: connection closed", e.EventType())
	}
	select {
	case c.out <- data:
		return nil
	default:
		if c.metrics != nil {
			c.metrics.DroppedPushes.Inc()
		}
		c.log.Warn("connection buffer full, dropping event", "event", e.EventType())
		return nil
	}
}

// Out feeds the write pump. The channel closes when the sink closes.
func (c *connSink) Out() <-chan []byte {
	return c.out
}

func (c *connSink) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.out)
}
