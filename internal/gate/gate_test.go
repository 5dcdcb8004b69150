package gate_test

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majordomo-home/majordomo/internal/bus"
	"github.com/majordomo-home/majordomo/internal/gate"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// capture is a Publisher that records everything it is handed.
type capture struct {
	mu        sync.Mutex
	published []gate.Result
	fail      bool
}

func (c *capture) publish(res gate.Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("downstream unavailable")
	}
	c.published = append(c.published, res)
	return nil
}

func (c *capture) results() []gate.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]gate.Result(nil), c.published...)
}

func result(conv, speaker, text string) gate.Result {
	return gate.Result{
		ConversationID: conv,
		SpeakerID:      speaker,
		Recognized:     true,
		Confidence:     0.9,
		Text:           text,
	}
}

func TestOffer_BuffersUntilVerified(t *testing.T) {
	var c capture
	g := gate.New(c.publish, discardLogger())

	require.Equal(t, gate.StateIdle, g.State())

	g.Offer(result("conv-1", "alice", "first"))
	assert.Equal(t, gate.StateBuffering, g.State())
	g.Offer(result("conv-1", "alice", "second"))
	assert.Equal(t, 2, g.BufferLen())
	assert.Empty(t, c.results(), "nothing leaves a closed gate")

	g.Verified("conv-1")

	assert.Equal(t, gate.StateAnalyzing, g.State())
	assert.Zero(t, g.BufferLen())
	got := c.results()
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Text, "flush preserves arrival order")
	assert.Equal(t, "second", got[1].Text)

	// A second verification signal must not replay anything.
	g.Verified("conv-1")
	assert.Len(t, c.results(), 2)
}

func TestOffer_PassThroughWhileAnalyzing(t *testing.T) {
	var c capture
	g := gate.New(c.publish, discardLogger())

	g.Verified("conv-1")
	require.Equal(t, gate.StateAnalyzing, g.State())

	g.Offer(result("conv-1", "alice", "direct"))

	assert.Zero(t, g.BufferLen())
	got := c.results()
	require.Len(t, got, 1)
	assert.Equal(t, "direct", got[0].Text)
}

func TestRejected_DiscardsWithoutPublishing(t *testing.T) {
	var c capture
	g := gate.New(c.publish, discardLogger())

	g.Offer(result("conv-1", "mallory", "secret a"))
	g.Offer(result("conv-1", "mallory", "secret b"))
	g.Rejected("conv-1")

	assert.Equal(t, gate.StateIdle, g.State())
	assert.Zero(t, g.BufferLen())
	assert.Empty(t, c.results(), "rejected speech must never be disclosed")

	// The gate is fully reset: a new conversation starts cleanly.
	g.Offer(result("conv-2", "alice", "hello"))
	g.Verified("conv-2")
	got := c.results()
	require.Len(t, got, 1)
	assert.Equal(t, "hello", got[0].Text)
}

func TestConversationEnded_ResetsFromAnyState(t *testing.T) {
	var c capture
	g := gate.New(c.publish, discardLogger())

	// IDLE: no-op.
	g.ConversationEnded("conv-0")
	assert.Equal(t, gate.StateIdle, g.State())

	// BUFFERING: residue dropped.
	g.Offer(result("conv-1", "alice", "x"))
	g.ConversationEnded("conv-1")
	assert.Equal(t, gate.StateIdle, g.State())
	assert.Zero(t, g.BufferLen())
	assert.Empty(t, c.results())

	// ANALYZING: back to idle, next conversation buffers again.
	g.Offer(result("conv-2", "alice", "y"))
	g.Verified("conv-2")
	g.ConversationEnded("conv-2")
	assert.Equal(t, gate.StateIdle, g.State())

	g.Offer(result("conv-3", "bob", "z"))
	assert.Equal(t, gate.StateBuffering, g.State())
}

func TestForeignConversationSignalsIgnored(t *testing.T) {
	var c capture
	g := gate.New(c.publish, discardLogger())

	g.Offer(result("conv-1", "alice", "a"))

	g.Verified("conv-other")
	assert.Equal(t, gate.StateBuffering, g.State(), "foreign verified must not open the gate")

	g.Rejected("conv-other")
	assert.Equal(t, 1, g.BufferLen(), "foreign rejection must not discard")

	g.ConversationEnded("conv-other")
	assert.Equal(t, gate.StateBuffering, g.State())

	g.Verified("conv-1")
	require.Len(t, c.results(), 1)
}

func TestPublishFailure_DoesNotStallFlush(t *testing.T) {
	var c capture
	c.fail = true
	g := gate.New(c.publish, discardLogger())

	g.Offer(result("conv-1", "alice", "a"))
	g.Verified("conv-1")

	// Failure is logged and dropped; the gate still opened and cleared.
	assert.Equal(t, gate.StateAnalyzing, g.State())
	assert.Zero(t, g.BufferLen())
	assert.Empty(t, c.results())
}

func TestBusPublisher_SubjectSelection(t *testing.T) {
	conn := bus.NewMemConn()
	defer conn.Close()

	var mu sync.Mutex
	subjects := make(map[string]int)
	_, err := conn.Subscribe("speech.diarized.>", func(msg bus.Msg) {
		mu.Lock()
		subjects[msg.Subject]++
		mu.Unlock()
	})
	require.NoError(t, err)

	pub := gate.BusPublisher(conn, gate.DefaultSubjects())

	require.NoError(t, pub(gate.Result{SpeakerID: "alice", Recognized: true}))
	require.NoError(t, pub(gate.Result{SpeakerID: "spk_7", Recognized: false}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, subjects["speech.diarized.alice"])
	assert.Equal(t, 1, subjects["speech.diarized.unknown"])
}

func TestAttachBus_EndToEnd(t *testing.T) {
	conn := bus.NewMemConn()
	defer conn.Close()

	var c capture
	g := gate.New(c.publish, discardLogger())
	subjects := gate.DefaultSubjects()

	stop, err := gate.AttachBus(conn, g, subjects, discardLogger())
	require.NoError(t, err)
	defer stop()

	publishJSON := func(subject string, v any) {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		require.NoError(t, conn.Publish(subject, data))
	}

	publishJSON(subjects.Results, result("conv-1", "alice", "hello"))
	publishJSON(subjects.Results, result("conv-1", "alice", "world"))
	assert.Equal(t, 2, g.BufferLen())

	publishJSON(subjects.Verified, map[string]string{"conversation_id": "conv-1"})
	got := c.results()
	require.Len(t, got, 2)
	assert.Equal(t, "hello", got[0].Text)

	publishJSON(subjects.ConversationEnded, map[string]string{"conversation_id": "conv-1"})
	assert.Equal(t, gate.StateIdle, g.State())

	// Malformed payloads are dropped without disturbing state.
	require.NoError(t, conn.Publish(subjects.Results, []byte("{not json")))
	assert.Equal(t, gate.StateIdle, g.State())

	stop()
	publishJSON(subjects.Results, result("conv-2", "bob", "after stop"))
	assert.Equal(t, gate.StateIdle, g.State(), "unsubscribed gate hears nothing")
}
