package memory_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majordomo-home/majordomo/internal/memory"
)

func record(module, eventType, response string, age time.Duration) *memory.Record {
	return &memory.Record{
		Timestamp:       time.Now().Add(-age),
		Module:          module,
		EventType:       eventType,
		Priority:        "normal",
		Data:            map[string]any{"n": 1},
		HandlerResponse: response,
	}
}

func TestStore_StampsMissingTimestamp(t *testing.T) {
	m := memory.New(10, time.Hour)
	m.Store(&memory.Record{Module: "iot", EventType: "x"})

	recs := m.QueryRecent(time.Minute, "", "")
	require.Len(t, recs, 1)
	assert.False(t, recs[0].Timestamp.IsZero())
}

func TestStore_CapacityBound(t *testing.T) {
	m := memory.New(3, time.Hour)
	for i := 0; i < 5; i++ {
		m.Store(record("iot", "temperature_alert", fmt.Sprintf("r%d", i), time.Duration(5-i)*time.Minute))
	}

	stats := m.Stats()
	assert.Equal(t, 3, stats.TotalEvents)

	// The survivors are the newest three.
	recs := m.QueryRecent(time.Hour, "", "")
	require.Len(t, recs, 3)
	assert.Equal(t, "r4", recs[0].HandlerResponse)
	assert.Equal(t, "r2", recs[2].HandlerResponse)
}

func TestStore_RetentionEvictsOldRecords(t *testing.T) {
	m := memory.New(10, time.Hour)
	m.Store(record("iot", "old", "ancient", 2*time.Hour))
	m.Store(record("iot", "new", "fresh", 0))

	// Storing the fresh record ran cleanup: the stale one must be gone
	// from the buffer and both indexes.
	recs := m.QueryRecent(24*time.Hour, "", "")
	require.Len(t, recs, 1)
	assert.Equal(t, "fresh", recs[0].HandlerResponse)

	stats := m.Stats()
	assert.Equal(t, []string{"new"}, stats.EventTypes)
}

func TestCleanup_Idempotent(t *testing.T) {
	m := memory.New(10, time.Hour)
	m.Store(record("iot", "a", "x", 30*time.Minute))
	m.Store(record("rpa", "b", "y", 10*time.Minute))

	m.Cleanup()
	first := m.Stats()
	m.Cleanup()
	second := m.Stats()

	assert.Equal(t, first, second)
	assert.Equal(t, 2, second.TotalEvents)
}

func TestQueryRecent_FiltersAndOrder(t *testing.T) {
	m := memory.New(50, 24*time.Hour)
	m.Store(record("messaging", "message_received", "oldest", 40*time.Minute))
	m.Store(record("iot", "temperature_alert", "mid", 20*time.Minute))
	m.Store(record("messaging", "message_received", "newest", time.Minute))

	// Window filter
	recs := m.QueryRecent(30*time.Minute, "", "")
	require.Len(t, recs, 2)
	assert.Equal(t, "newest", recs[0].HandlerResponse, "most recent first")
	assert.Equal(t, "mid", recs[1].HandlerResponse)

	// Module filter
	recs = m.QueryRecent(time.Hour, "messaging", "")
	require.Len(t, recs, 2)

	// Event type filter
	recs = m.QueryRecent(time.Hour, "", "temperature_alert")
	require.Len(t, recs, 1)
	assert.Equal(t, "mid", recs[0].HandlerResponse)
}

func TestQueryByKeyword(t *testing.T) {
	m := memory.New(50, 24*time.Hour)
	m.Store(&memory.Record{
		Timestamp: time.Now().Add(-time.Minute),
		Module:    "messaging", EventType: "message_received",
		Data:            map[string]any{"sender": "João Silva", "preview": "Confirma reunião amanhã?"},
		HandlerResponse: "Noted message from João Silva via whatsapp",
	})
	m.Store(record("iot", "temperature_alert", "Adjusted air conditioning to 24°C", 0))

	recs := m.QueryByKeyword("JOÃO", 10)
	require.Len(t, recs, 1)
	assert.Equal(t, "message_received", recs[0].EventType)

	assert.Empty(t, m.QueryByKeyword("nonexistent", 10))
}

func TestQueryByKeyword_MaxResultsNewestFirst(t *testing.T) {
	m := memory.New(50, 24*time.Hour)
	for i := 0; i < 5; i++ {
		m.Store(record("rpa", "rpa_task_completed", fmt.Sprintf("task %d", i), time.Duration(5-i)*time.Minute))
	}

	recs := m.QueryByKeyword("task", 2)
	require.Len(t, recs, 2)
	assert.Equal(t, "task 4", recs[0].HandlerResponse)
	assert.Equal(t, "task 3", recs[1].HandlerResponse)
}

func TestLastByModule(t *testing.T) {
	m := memory.New(50, 24*time.Hour)
	assert.Nil(t, m.LastByModule("messaging"))

	m.Store(record("messaging", "message_received", "first", 10*time.Minute))
	m.Store(record("messaging", "message_received", "second", 0))

	last := m.LastByModule("messaging")
	require.NotNil(t, last)
	assert.Equal(t, "second", last.HandlerResponse)
}

func TestContextForQuery_WindowPhrases(t *testing.T) {
	m := memory.New(50, 24*time.Hour)
	m.Store(record("iot", "temperature_alert", "x", 7*time.Minute))

	// "just now" → 5 minute window, the 7-minute-old record is out.
	out := m.ContextForQuery("what happened just now?", 5)
	assert.Contains(t, out, "No recent events found in the last 5 minutes")

	// "10 minutes" → it is in.
	out = m.ContextForQuery("what happened in the last 10 minutes?", 5)
	assert.Contains(t, out, "Recent events (last 10 minutes)")
	assert.Contains(t, out, "iot.temperature_alert")

	// No phrase → one hour default.
	out = m.ContextForQuery("anything new?", 5)
	assert.Contains(t, out, "Recent events (last 60 minutes)")
}

func TestContextForQuery_RendersPerType(t *testing.T) {
	m := memory.New(50, 24*time.Hour)
	m.Store(&memory.Record{
		Timestamp: time.Now(),
		Module:    "messaging", EventType: "message_received",
		Data: map[string]any{"sender": "Ana", "platform": "whatsapp", "preview": "oi"},
	})
	m.Store(&memory.Record{
		Timestamp: time.Now(),
		Module:    "security", EventType: "intrusion_detected",
		Data: map[string]any{"camera_id": "cam1"},
	})

	out := m.ContextForQuery("today", 5)
	assert.Contains(t, out, "From: Ana (whatsapp)")
	assert.Contains(t, out, "Message: oi")
	assert.Contains(t, out, "Camera: cam1")
}

func TestContextForQuery_TruncatesToMaxEvents(t *testing.T) {
	m := memory.New(50, 24*time.Hour)
	for i := 0; i < 8; i++ {
		m.Store(record("rpa", "rpa_task_completed", "r", time.Duration(i)*time.Minute))
	}

	out := m.ContextForQuery("today", 3)
	assert.Equal(t, 3, strings.Count(out, "rpa.rpa_task_completed"))
}

func TestClearAndStats(t *testing.T) {
	m := memory.New(50, 24*time.Hour)
	m.Store(record("iot", "a", "x", 0))
	m.Store(record("rpa", "b", "y", 0))

	stats := m.Stats()
	assert.Equal(t, 2, stats.TotalEvents)
	assert.Equal(t, []string{"iot", "rpa"}, stats.Modules)
	assert.NotEmpty(t, stats.OldestEvent)

	m.Clear()
	stats = m.Stats()
	assert.Zero(t, stats.TotalEvents)
	assert.Empty(t, stats.Modules)
}
