package workers

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"courier/domain"
	"courier/observability"
)

type fixedPresence struct {
	online []domain.UserID
}

func (f *fixedPresence) OnlineIdentities() []domain.UserID {
	return f.online
}

func TestTelemetryWorker_SamplesOnlineGauge(t *testing.T) {
	req := require.New(t)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	presence := &fixedPresence{online: []domain.UserID{"u1", "u2", "u3"}}
	worker := NewTelemetryWorker(slog.New(slog.DiscardHandler), 10*time.Millisecond, presence, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	req.Eventually(func() bool {
		return testutil.ToFloat64(metrics.OnlineUsers) == 3
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop on cancellation")
	}
}
