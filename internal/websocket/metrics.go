package websocket

import (
	"log/slog"
	"sync"
	"time"
)

const defaultSlowBroadcast = 500 * time.Millisecond

// BroadcastMetrics aggregates local fan-out outcomes.
type BroadcastMetrics struct {
	mu sync.RWMutex

	totalBroadcasts    int
	totalDelivered     int
	totalFailed        int
	totalBroadcastTime time.Duration
	peakBroadcastTime  time.Duration
	peakMessageSize    int
	peakRecipients     int

	slowThreshold time.Duration
	logger        *slog.Logger
}

// MetricsSnapshot is the JSON view of BroadcastMetrics.
type MetricsSnapshot struct {
	TotalBroadcasts      int     `json:"totalBroadcasts"`
	TotalDelivered       int     `json:"totalDelivered"`
	TotalFailed          int     `json:"totalFailed"`
	AvgBroadcastMillis   float64 `json:"avgBroadcastMillis"`
	PeakBroadcastMillis  float64 `json:"peakBroadcastMillis"`
	PeakMessageSizeBytes int     `json:"peakMessageSizeBytes"`
	PeakRecipients       int     `json:"peakRecipients"`
	ErrorRatePercent     float64 `json:"errorRatePercent"`
}

func NewBroadcastMetrics(logger *slog.Logger) *BroadcastMetrics {
	return &BroadcastMetrics{
		slowThreshold: defaultSlowBroadcast,
		logger:        logger,
	}
}

// Record adds one local delivery pass over topic.
func (m *BroadcastMetrics) Record(topic string, duration time.Duration, result PublishResult, size int) {
	recipients := result.Delivered + result.Failed

	m.mu.Lock()
	m.totalBroadcasts++
	m.totalDelivered += result.Delivered
	m.totalFailed += result.Failed
	m.totalBroadcastTime += duration
	m.peakBroadcastTime = max(m.peakBroadcastTime, duration)
	m.peakMessageSize = max(m.peakMessageSize, size)
	m.peakRecipients = max(m.peakRecipients, recipients)
	threshold := m.slowThreshold
	m.mu.Unlock()

	if duration > threshold {
		m.logger.Warn("Slow broadcast", "topic", topic, "duration", duration, "recipients", recipients)
	}
}

func (m *BroadcastMetrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := MetricsSnapshot{
		TotalBroadcasts:      m.totalBroadcasts,
		TotalDelivered:       m.totalDelivered,
		TotalFailed:          m.totalFailed,
		PeakBroadcastMillis:  millis(m.peakBroadcastTime),
		PeakMessageSizeBytes: m.peakMessageSize,
		PeakRecipients:       m.peakRecipients,
	}
	if m.totalBroadcasts > 0 {
		snap.AvgBroadcastMillis = millis(m.totalBroadcastTime) / float64(m.totalBroadcasts)
	}
	if sent := m.totalDelivered + m.totalFailed; sent > 0 {
		snap.ErrorRatePercent = float64(m.totalFailed) / float64(sent) * 100
	}
	return snap
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
