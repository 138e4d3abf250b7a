package observability

import (
	"context"
	"time"
)

// TrackUptime updates SystemUptimeSeconds on a ticker until ctx is
// canceled, matching the teacher's one-goroutine-per-background-concern
// idiom (cmd/agentflow/middleware.go's visitor-eviction loop).
func TrackUptime(ctx context.Context, m *Metrics, interval time.Duration) {
	start := time.Now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.SystemUptimeSeconds.Set(now.Sub(start).Seconds())
		}
	}
}
