// Package ingest adapts inbound module events on the bus into typed,
// prioritized queue entries.
package ingest

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/majordomo-home/majordomo/internal/bus"
	"github.com/majordomo-home/majordomo/internal/event"
	"github.com/majordomo-home/majordomo/internal/queue"
)

// Subject is the wildcard every module event arrives on:
// <module>.event.<topic>.
const Subject = "*.event.>"

type envelope struct {
	EventType string `json:"event_type"`
	Priority  string `json:"priority"`
}

// Attach subscribes the queue to module events. The module name comes from
// the first subject token; event_type defaults to the last subject token;
// priority defaults to normal. Push blocks when the queue is full, which is
// the pipeline's backpressure point.
func Attach(conn bus.Conn, q *queue.Queue, log *slog.Logger) (bus.Subscription, error) {
	return conn.Subscribe(Subject, func(msg bus.Msg) {
		tokens := strings.Split(msg.Subject, ".")
		module := tokens[0]

		var env envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			log.Warn("malformed module event dropped", "subject", msg.Subject, "err", err)
			return
		}
		eventType := env.EventType
		if eventType == "" {
			eventType = tokens[len(tokens)-1]
		}

		data, err := event.DecodePayload(eventType, msg.Data)
		if err != nil {
			log.Warn("undecodable event payload dropped", "subject", msg.Subject, "err", err)
			return
		}

		ev := event.New(module, eventType, data, event.ParsePriority(env.Priority))
		if err := q.Push(ev); err != nil {
			log.Warn("event rejected", "event", ev.String(), "err", err)
		}
	})
}
