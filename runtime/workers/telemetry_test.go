package workers

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/shirou/gopsutil/process"
	"github.com/stretchr/testify/require"
)

func TestTelemetryWorker_Sample(t *testing.T) {
	req := require.New(t)
	w := NewTelemetryWorker(logs.GetLoggerFromLevel(slog.LevelDebug), time.Second, map[string]StatsProvider{
		"feed": func() map[string]any { return map[string]any{"streams": 3} },
	})
	p, err := process.NewProcess(int32(os.Getpid()))
	req.NoError(err)

	attrs := w.Sample(p)

	req.Contains(attrs, "rss_bytes")
	group, ok := attrs[len(attrs)-1].(slog.Attr)
	req.True(ok)
	req.Equal("feed", group.Key)
	req.Equal(int64(3), group.Value.Group()[0].Value.Int64())
}

func TestTelemetryWorker_Stops_With_Context(t *testing.T) {
	req := require.New(t)
	w := NewTelemetryWorker(logs.GetLoggerFromLevel(slog.LevelDebug), 5*time.Millisecond, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	req.NoError(w.Run(ctx))
	req.Equal("telemetry", string(w.GetName()))
}
