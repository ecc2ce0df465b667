package events

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tankwanghow/pou-con-sub002/internal/domain"
)

func sampleEvent(newFault domain.Fault) domain.FaultEvent {
	return domain.FaultEvent{
		ID:        "ev-1",
		Equipment: "pump-1",
		Old:       domain.FaultNone,
		New:       newFault,
		Timestamp: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestLogSink_LevelsByDirection(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(zerolog.New(&buf))

	sink.FaultTransition(sampleEvent(domain.FaultTripped))
	sink.FaultTransition(domain.FaultEvent{
		ID: "ev-2", Equipment: "pump-1",
		Old: domain.FaultTripped, New: domain.FaultNone,
		Timestamp: time.Now(),
	})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var first, second map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &first))
	require.NoError(t, json.Unmarshal(lines[1], &second))

	assert.Equal(t, "warn", first["level"], "raising a fault logs at warn")
	assert.Equal(t, "tripped", first["new"])
	assert.Equal(t, "info", second["level"], "clearing a fault logs at info")
}

type countSink struct{ n int }

func (c *countSink) FaultTransition(domain.FaultEvent) { c.n++ }

func TestMulti_FansOut(t *testing.T) {
	a, b := &countSink{}, &countSink{}
	m := Multi{a, b}

	m.FaultTransition(sampleEvent(domain.FaultTimeout))
	m.FaultTransition(sampleEvent(domain.FaultNone))

	assert.Equal(t, 2, a.n)
	assert.Equal(t, 2, b.n)
}

func TestPublisher_DropsWhenBufferFull(t *testing.T) {
	p := NewPublisher(PublisherConfig{BufferSize: 2}, zerolog.Nop())

	// Not connected: the publish loop is not running, so the buffer fills.
	p.FaultTransition(sampleEvent(domain.FaultTimeout))
	p.FaultTransition(sampleEvent(domain.FaultTimeout))
	p.FaultTransition(sampleEvent(domain.FaultTimeout))

	assert.Equal(t, uint64(1), p.dropped.Load())
	assert.Len(t, p.buffer, 2)
}
