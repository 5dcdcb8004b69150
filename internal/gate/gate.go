// Package gate decouples diarization-result production from downstream
// publication until speaker verification confirms legitimacy. The gate fails
// closed: results from a never-verified conversation are never disclosed.
package gate

import (
	"log/slog"
	"sync"

	"github.com/majordomo-home/majordomo/internal/metrics"
)

// State is the gate's position.
type State int

const (
	// StateIdle: no pending conversation.
	StateIdle State = iota
	// StateBuffering: results accumulating, gate closed.
	StateBuffering
	// StateAnalyzing: gate open, results pass through immediately.
	StateAnalyzing
)

func (s State) String() string {
	switch s {
	case StateBuffering:
		return "buffering"
	case StateAnalyzing:
		return "analyzing"
	default:
		return "idle"
	}
}

// Result is one diarization segment awaiting publication.
type Result struct {
	ConversationID string  `json:"conversation_id"`
	SpeakerID      string  `json:"speaker_id"`
	Recognized     bool    `json:"recognized"`
	Confidence     float64 `json:"confidence"`
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
	Text           string  `json:"text,omitempty"`
}

// Publisher delivers a result downstream. It must not call back into the
// Gate: publication happens while the gate lock is held so buffered results
// flush atomically and in order.
type Publisher func(res Result) error

// Gate buffers diarization results until an external verification signal
// arrives, then flushes or discards them.
type Gate struct {
	mu             sync.Mutex
	state          State
	buffer         []Result
	conversationID string
	publish        Publisher
	log            *slog.Logger
}

// New creates a Gate in IDLE.
func New(publish Publisher, log *slog.Logger) *Gate {
	return &Gate{publish: publish, log: log}
}

// Offer hands the gate a freshly produced result. The first result while
// IDLE flips the gate to BUFFERING and starts tracking that conversation;
// while BUFFERING results accumulate; while ANALYZING they publish
// immediately.
func (g *Gate) Offer(res Result) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case StateIdle:
		g.state = StateBuffering
		g.conversationID = res.ConversationID
		g.buffer = append(g.buffer, res)
		metrics.GateBufferSize.Set(float64(len(g.buffer)))
		g.log.Info("gate buffering started", "conversation_id", res.ConversationID)
	case StateBuffering:
		g.buffer = append(g.buffer, res)
		metrics.GateBufferSize.Set(float64(len(g.buffer)))
		g.log.Debug("result buffered", "speaker_id", res.SpeakerID, "buffer_size", len(g.buffer))
	case StateAnalyzing:
		g.publishLocked(res)
	}
}

// Verified opens the gate for the tracked conversation: every buffered
// result is published in original order exactly once, then cleared. All
// future results publish immediately until reset.
func (g *Gate) Verified(conversationID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.matchesLocked(conversationID, "speaker.verified") {
		return
	}
	g.log.Info("gate opened", "conversation_id", conversationID, "buffered_items", len(g.buffer))
	g.state = StateAnalyzing
	if g.conversationID == "" {
		g.conversationID = conversationID
	}
	for _, res := range g.buffer {
		g.publishLocked(res)
	}
	g.buffer = nil
	metrics.GateBufferSize.Set(0)
}

// Rejected discards the buffer unconditionally and resets to IDLE. No
// partial publication: an unverified conversation's speech stays private.
func (g *Gate) Rejected(conversationID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.matchesLocked(conversationID, "speaker.rejected") {
		return
	}
	g.log.Warn("gate rejected", "conversation_id", conversationID, "discarded_items", len(g.buffer))
	metrics.GateResultsDiscarded.Add(float64(len(g.buffer)))
	g.resetLocked()
}

// ConversationEnded is the universal reset: residual buffer and correlation
// state are cleared regardless of the current state.
func (g *Gate) ConversationEnded(conversationID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == StateIdle {
		return
	}
	if !g.matchesLocked(conversationID, "conversation.ended") {
		return
	}
	g.log.Info("conversation ended", "conversation_id", conversationID)
	metrics.GateResultsDiscarded.Add(float64(len(g.buffer)))
	g.resetLocked()
}

// State returns the current gate state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// BufferLen returns how many results are currently buffered.
func (g *Gate) BufferLen() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.buffer)
}

// matchesLocked guards against late or foreign control signals: an event for
// a conversation the gate is not tracking is logged and ignored.
func (g *Gate) matchesLocked(conversationID, signal string) bool {
	if g.conversationID == "" || g.conversationID == conversationID {
		return true
	}
	g.log.Warn("control signal for foreign conversation ignored",
		"signal", signal,
		"conversation_id", conversationID,
		"tracking", g.conversationID)
	return false
}

func (g *Gate) publishLocked(res Result) {
	if err := g.publish(res); err != nil {
		g.log.Error("result publish failed", "speaker_id", res.SpeakerID, "err", err)
		return
	}
	metrics.GateResultsPublished.Inc()
}

func (g *Gate) resetLocked() {
	g.buffer = nil
	g.state = StateIdle
	g.conversationID = ""
	metrics.GateBufferSize.Set(0)
}
