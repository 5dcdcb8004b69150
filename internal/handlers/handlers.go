// Package handlers maps event types to reaction policies: dispatch calls
// plus a durable memory record. A handler never lets a failure escape to the
// queue loop, and it always stores a record so the reaction stays queryable,
// even when every dispatch attempt failed.
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/majordomo-home/majordomo/internal/dispatch"
	"github.com/majordomo-home/majordomo/internal/event"
	"github.com/majordomo-home/majordomo/internal/memory"
	"github.com/majordomo-home/majordomo/internal/queue"
)

// acThresholdC is the temperature above which the AC is adjusted.
const acThresholdC = 28.0

// acTargetC is the temperature the AC is set to.
const acTargetC = 24

// Outcome records one attempted sub-action of a handler.
type Outcome struct {
	Action string
	Err    error
}

// Reactor holds the reaction policies' shared dependencies.
type Reactor struct {
	dispatcher *dispatch.Dispatcher
	memory     *memory.Memory
	log        *slog.Logger
}

func New(d *dispatch.Dispatcher, m *memory.Memory, log *slog.Logger) *Reactor {
	return &Reactor{dispatcher: d, memory: m, log: log}
}

// Register wires all reaction policies onto the queue.
func (r *Reactor) Register(q *queue.Queue) {
	q.RegisterHandler("intrusion_detected", r.HandleIntrusion)
	q.RegisterHandler("message_received", r.HandleMessage)
	q.RegisterHandler("temperature_alert", r.HandleTemperature)
	q.RegisterHandler("package_delivered", r.HandlePackage)
}

// HandleIntrusion reacts to a CRITICAL security event: lights on, siren,
// push notification. Each sub-action is attempted independently; a failure
// in one never prevents the others.
func (r *Reactor) HandleIntrusion(ctx context.Context, ev *event.Event) error {
	fields := ev.Data.Fields()
	cameraID, _ := fields["camera_id"].(string)
	r.log.Warn("intrusion detected", "camera_id", cameraID)

	outcomes := []Outcome{
		r.attempt(ctx, "turn_on_all_lights", "iot", "turn_on_all_lights",
			map[string]any{}, 3*time.Second),
		r.attempt(ctx, "activate_siren", "iot", "activate_siren",
			map[string]any{"duration": 30}, 2*time.Second),
		r.attempt(ctx, "send_push", "messaging", "send_push",
			map[string]any{
				"title":    "Intruder detected",
				"body":     fmt.Sprintf("Camera: %s", cameraID),
				"priority": "high",
			}, 5*time.Second),
	}

	r.store(ev, summarizeIntrusion(outcomes))
	return nil
}

// HandleMessage reacts to a HIGH-priority inbound message. Beyond the memory
// record this is deliberately a no-op: no presence check, no voice
// announcement.
func (r *Reactor) HandleMessage(ctx context.Context, ev *event.Event) error {
	fields := ev.Data.Fields()
	sender, _ := fields["sender"].(string)
	platform, _ := fields["platform"].(string)
	preview, _ := fields["preview"].(string)
	if sender == "" {
		sender = "unknown"
	}
	r.log.Info("message received", "sender", sender, "platform", platform, "preview", truncate(preview, 50))

	r.store(ev, fmt.Sprintf("Noted message from %s via %s", sender, platform))
	return nil
}

// HandleTemperature reacts to a NORMAL temperature alert: above the
// threshold it asks the AC to cool down, otherwise it only records that
// nothing was done.
func (r *Reactor) HandleTemperature(ctx context.Context, ev *event.Event) error {
	fields := ev.Data.Fields()
	temp := floatField(fields, "temperature")
	location, _ := fields["location"].(string)
	r.log.Info("temperature alert", "temperature", temp, "location", location)

	response := "No action taken"
	if temp > acThresholdC {
		out := r.attempt(ctx, "set_ac_temperature", "iot", "set_ac_temperature",
			map[string]any{"location": location, "target_temp": acTargetC}, 5*time.Second)
		if out.Err != nil {
			response = "Tried to adjust air conditioning but the call failed"
		} else {
			response = fmt.Sprintf("Adjusted air conditioning to %d°C", acTargetC)
		}
	}

	r.store(ev, response)
	return nil
}

// HandlePackage reacts to a LOW-priority delivery: pure logging, no dispatch.
func (r *Reactor) HandlePackage(ctx context.Context, ev *event.Event) error {
	r.log.Info("package delivered", "data", ev.Data.Fields())
	r.store(ev, "Package logged, no immediate action")
	return nil
}

// attempt runs one dispatch and contains its failure as an Outcome.
func (r *Reactor) attempt(ctx context.Context, name, module, action string, params map[string]any, timeout time.Duration) Outcome {
	_, err := r.dispatcher.Dispatch(ctx, module, action, params, timeout)
	if err != nil {
		r.log.Error("sub-action failed", "action", name, "module", module, "err", err)
	}
	return Outcome{Action: name, Err: err}
}

func (r *Reactor) store(ev *event.Event, response string) {
	r.memory.Store(&memory.Record{
		Timestamp:       time.Now().UTC(),
		Module:          ev.Module,
		EventType:       ev.Type,
		Priority:        ev.Priority.String(),
		Data:            ev.Data.Fields(),
		HandlerResponse: response,
	})
}

func summarizeIntrusion(outcomes []Outcome) string {
	var failed []string
	for _, out := range outcomes {
		if out.Err != nil {
			failed = append(failed, out.Action)
		}
	}
	if len(failed) == 0 {
		return "Activated lights, siren and emergency notifications"
	}
	return "Attempted emergency response; failed: " + strings.Join(failed, ", ")
}

func floatField(fields map[string]any, key string) float64 {
	switch v := fields[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
