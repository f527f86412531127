package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	digests []LogDigest
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.digests = append(p.digests, payload.(LogDigest))
	return nil
}

func TestLoggerWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "debug").Component("trainer")

	l.Info("job finished",
		String("key", "MGC_long"),
		Int("samples", 120),
		Float64("pnl_std", 12.5),
		Duration("took_ms", 1500*time.Millisecond),
		Error(errors.New("boom")),
	)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "job finished", entry["message"])
	assert.Equal(t, "trainer", entry["component"])
	assert.Equal(t, "MGC_long", entry["key"])
	assert.EqualValues(t, 120, entry["samples"])
	assert.EqualValues(t, 12.5, entry["pnl_std"])
	assert.EqualValues(t, 1500, entry["took_ms"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "warn")

	l.Info("hidden")
	l.Debug("hidden")
	assert.Zero(t, buf.Len())

	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestCollectorAggregatesRepeatedErrors(t *testing.T) {
	pub := &capturePublisher{}
	l := NewWithWriter(&bytes.Buffer{}, "info")
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Topic: "gp.logs", Publisher: pub})

	for i := 0; i < 3; i++ {
		l.Error("persist failed", String("key", "MGC_long"))
	}
	l.Error("persist failed", String("key", "ES_short"))
	assert.Equal(t, 2, l.collector.Pending())

	l.RemoveCollector()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.digests, 1)
	assert.Equal(t, "gp.logs", pub.topic)

	counts := map[string]int{}
	for _, e := range pub.digests[0].Entries {
		counts[e.Fields["key"].(string)] = e.Count
	}
	assert.Equal(t, map[string]int{"MGC_long": 3, "ES_short": 1}, counts)
}

func TestCollectorFlushesAtThreshold(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Publisher: pub})
	defer c.Close()

	c.AddLog("error", "a", nil, "x.go:1")
	c.AddLog("error", "b", nil, "x.go:2")

	assert.Eventually(t, func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		return len(pub.digests) == 1 && len(pub.digests[0].Entries) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, c.Pending())
}
