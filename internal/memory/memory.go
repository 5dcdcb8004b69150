// Package memory is a bounded, time-windowed log of handled events,
// queryable by recency and keyword, feeding the question-answering context
// builder. It is in-process and non-durable by design.
package memory

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/majordomo-home/majordomo/internal/metrics"
)

const (
	DefaultMaxEvents = 500
	DefaultRetention = 24 * time.Hour
)

// Record is one stored reaction outcome. Records are treated as immutable
// once stored.
type Record struct {
	Timestamp       time.Time      `json:"timestamp"`
	Module          string         `json:"module"`
	EventType       string         `json:"event_type"`
	Priority        string         `json:"priority"`
	Data            map[string]any `json:"data"`
	HandlerResponse string         `json:"handler_response"`
}

// Stats summarizes memory contents.
type Stats struct {
	TotalEvents int      `json:"total_events"`
	Modules     []string `json:"modules"`
	EventTypes  []string `json:"event_types"`
	OldestEvent string   `json:"oldest_event,omitempty"`
	NewestEvent string   `json:"newest_event,omitempty"`
}

// Memory holds at most maxEvents records within the retention window, plus
// two secondary indexes (by module, by event type) that are rebuilt in full
// on every cleanup pass. Bounded n keeps the O(n) rebuild cheap.
type Memory struct {
	mu        sync.Mutex
	maxEvents int
	retention time.Duration
	events    []*Record
	byModule  map[string][]*Record
	byType    map[string][]*Record
	now       func() time.Time
}

// New creates a Memory. maxEvents <= 0 and retention <= 0 take the defaults.
func New(maxEvents int, retention time.Duration) *Memory {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Memory{
		maxEvents: maxEvents,
		retention: retention,
		byModule:  make(map[string][]*Record),
		byType:    make(map[string][]*Record),
		now:       time.Now,
	}
}

// Store appends a record (stamping it if needed), updates both indexes and
// runs retention cleanup. After Store returns, no stale record is observable.
func (m *Memory) Store(rec *Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.Timestamp.IsZero() {
		rec.Timestamp = m.now()
	}
	m.events = append(m.events, rec)
	if len(m.events) > m.maxEvents {
		m.events = m.events[len(m.events)-m.maxEvents:]
	}
	if rec.Module != "" {
		m.byModule[rec.Module] = append(m.byModule[rec.Module], rec)
	}
	if rec.EventType != "" {
		m.byType[rec.EventType] = append(m.byType[rec.EventType], rec)
	}
	m.cleanupLocked()
}

// Cleanup enforces the retention window: every record older than
// now − retention is removed, and both indexes are rebuilt from the
// survivors. Idempotent.
func (m *Memory) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupLocked()
}

func (m *Memory) cleanupLocked() {
	cutoff := m.now().Add(-m.retention)

	surviving := make([]*Record, 0, len(m.events))
	for _, rec := range m.events {
		if !rec.Timestamp.Before(cutoff) {
			surviving = append(surviving, rec)
		}
	}
	m.events = surviving

	// Full rebuild keeps the indexes exactly consistent with the buffer.
	m.byModule = make(map[string][]*Record)
	m.byType = make(map[string][]*Record)
	for _, rec := range m.events {
		if rec.Module != "" {
			m.byModule[rec.Module] = append(m.byModule[rec.Module], rec)
		}
		if rec.EventType != "" {
			m.byType[rec.EventType] = append(m.byType[rec.EventType], rec)
		}
	}
	metrics.MemoryEvents.Set(float64(len(m.events)))
}

// QueryRecent returns records newer than now − window, optionally filtered by
// module and event type, newest first.
func (m *Memory) QueryRecent(window time.Duration, module, eventType string) []*Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-window)
	var results []*Record
	for _, rec := range m.events {
		if rec.Timestamp.Before(cutoff) {
			continue
		}
		if module != "" && rec.Module != module {
			continue
		}
		if eventType != "" && rec.EventType != eventType {
			continue
		}
		results = append(results, rec)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Timestamp.After(results[j].Timestamp)
	})
	return results
}

// QueryByKeyword returns up to max records whose serialized form contains
// keyword (case-insensitive), scanning newest to oldest. The early stop
// trades completeness for recency bias and bounded cost.
func (m *Memory) QueryByKeyword(keyword string, max int) []*Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	needle := strings.ToLower(keyword)
	var results []*Record
	for i := len(m.events) - 1; i >= 0 && len(results) < max; i-- {
		rec := m.events[i]
		blob, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(string(blob)), needle) {
			results = append(results, rec)
		}
	}
	return results
}

// LastByModule returns the most recent record for a module, or nil.
func (m *Memory) LastByModule(module string) *Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.byModule[module]
	if len(recs) == 0 {
		return nil
	}
	return recs[len(recs)-1]
}

// Stats returns a summary of memory contents.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{TotalEvents: len(m.events)}
	for mod := range m.byModule {
		s.Modules = append(s.Modules, mod)
	}
	for t := range m.byType {
		s.EventTypes = append(s.EventTypes, t)
	}
	sort.Strings(s.Modules)
	sort.Strings(s.EventTypes)
	if len(m.events) > 0 {
		s.OldestEvent = m.events[0].Timestamp.Format(time.RFC3339)
		s.NewestEvent = m.events[len(m.events)-1].Timestamp.Format(time.RFC3339)
	}
	return s
}

// Clear drops everything. Meant for tests.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
	m.byModule = make(map[string][]*Record)
	m.byType = make(map[string][]*Record)
	metrics.MemoryEvents.Set(0)
}

// ContextForQuery renders recent events as a multi-line summary for prompt
// injection. The time window comes from a literal phrase table over the
// query text; nothing matching defaults to the last hour.
func (m *Memory) ContextForQuery(query string, maxEvents int) string {
	window := windowForQuery(query)
	events := m.QueryRecent(window, "", "")
	if len(events) > maxEvents {
		events = events[:maxEvents]
	}
	minutes := int(window.Minutes())
	if len(events) == 0 {
		return fmt.Sprintf("No recent events found in the last %d minutes.", minutes)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Recent events (last %d minutes):\n\n", minutes)
	for i, rec := range events {
		fmt.Fprintf(&b, "%d. [%s] %s.%s\n", i+1, rec.Timestamp.Format(time.RFC3339), rec.Module, rec.EventType)
		renderDetails(&b, rec)
		if len(rec.Data) > 0 {
			blob, err := json.Marshal(rec.Data)
			if err == nil {
				fmt.Fprintf(&b, "   Data: %s\n", blob)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderDetails(b *strings.Builder, rec *Record) {
	str := func(key string) string {
		v, _ := rec.Data[key].(string)
		return v
	}
	switch rec.EventType {
	case "message_received":
		fmt.Fprintf(b, "   From: %s (%s)\n", orUnknown(str("sender")), str("platform"))
		fmt.Fprintf(b, "   Message: %s\n", str("preview"))
	case "package_delivered":
		fmt.Fprintf(b, "   Tracking: %s\n", orUnknown(str("tracking_code")))
	case "intrusion_detected":
		fmt.Fprintf(b, "   Camera: %s\n", str("camera_id"))
	case "rpa_task_completed":
		fmt.Fprintf(b, "   Task: %s (%s)\n", str("task_name"), str("status"))
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// timeWindows is the exact literal phrase set the context builder
// understands; there is no general NLP here.
var timeWindows = []struct {
	phrase string
	window time.Duration
}{
	{"just now", 5 * time.Minute},
	{"right now", 5 * time.Minute},
	{"10 minutes", 10 * time.Minute},
	{"half an hour", 30 * time.Minute},
	{"30 minutes", 30 * time.Minute},
	{"an hour", time.Hour},
	{"1 hour", time.Hour},
	{"today", 24 * time.Hour},
	{"last hours", 24 * time.Hour},
}

func windowForQuery(query string) time.Duration {
	q := strings.ToLower(query)
	for _, tw := range timeWindows {
		if strings.Contains(q, tw.phrase) {
			return tw.window
		}
	}
	return time.Hour
}
