// Package dispatch turns logical (module, action, params) calls into
// correlated request/reply round-trips over the bus.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/majordomo-home/majordomo/internal/bus"
	"github.com/majordomo-home/majordomo/internal/metrics"
	"github.com/majordomo-home/majordomo/internal/registry"
)

var (
	// ErrUnknownModule means the target module is not in the action catalog.
	ErrUnknownModule = errors.New("unknown module")
	// ErrUnknownAction means the module does not declare the requested action.
	ErrUnknownAction = errors.New("unknown action")
	// ErrTimeout means no response arrived within the deadline.
	ErrTimeout = errors.New("dispatch timeout")
	// ErrClosed means the dispatcher was shut down while waiting.
	ErrClosed = errors.New("dispatcher closed")
)

// DefaultTimeout is the per-call response deadline when the caller passes
// timeout <= 0.
const DefaultTimeout = 10 * time.Second

// Response is a module's reply to a dispatched command. Status semantics are
// owned by the responding module and are not validated here.
type Response struct {
	RequestID string         `json:"request_id"`
	Status    string         `json:"status"`
	Data      map[string]any `json:"data"`
}

type command struct {
	RequestID string         `json:"request_id"`
	Action    string         `json:"action"`
	Params    map[string]any `json:"params"`
}

// Dispatcher publishes commands to <module>.command and correlates replies
// arriving on *.response by request id.
type Dispatcher struct {
	conn           bus.Conn
	log            *slog.Logger
	defaultTimeout time.Duration

	// catalog is a snapshot taken at construction. Later registry reloads do
	// not reach the hot path.
	catalog map[string]map[string]struct{}

	mu      sync.Mutex
	pending map[string]chan *Response
	closed  bool
	sub     bus.Subscription
}

// New snapshots the registry's catalog and subscribes to module responses.
// A defaultTimeout <= 0 falls back to DefaultTimeout.
func New(conn bus.Conn, reg *registry.Registry, defaultTimeout time.Duration, log *slog.Logger) (*Dispatcher, error) {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultTimeout
	}
	catalog := make(map[string]map[string]struct{})
	for module, actions := range reg.Catalog() {
		set := make(map[string]struct{}, len(actions))
		for _, a := range actions {
			set[a] = struct{}{}
		}
		catalog[module] = set
	}

	d := &Dispatcher{
		conn:           conn,
		log:            log,
		defaultTimeout: defaultTimeout,
		catalog:        catalog,
		pending:        make(map[string]chan *Response),
	}
	sub, err := conn.Subscribe("*.response", d.handleResponse)
	if err != nil {
		return nil, fmt.Errorf("dispatch: subscribe responses: %w", err)
	}
	d.sub = sub
	log.Info("dispatcher ready", "modules", len(catalog))
	return d, nil
}

// Dispatch publishes {request_id, action, params} to <module>.command and
// waits for the correlated response. The catalog checks run before anything
// touches the bus. No retry is attempted on timeout; that is the caller's call.
func (d *Dispatcher) Dispatch(ctx context.Context, module, action string, params map[string]any, timeout time.Duration) (*Response, error) {
	actions, ok := d.catalog[module]
	if !ok {
		return nil, fmt.Errorf("dispatch: module %q is not registered: %w", module, ErrUnknownModule)
	}
	if _, ok := actions[action]; !ok {
		return nil, fmt.Errorf("dispatch: module %q has no action %q: %w", module, action, ErrUnknownAction)
	}
	if timeout <= 0 {
		timeout = d.defaultTimeout
	}

	requestID := uuid.New().String()
	slot := make(chan *Response, 1)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrClosed
	}
	d.pending[requestID] = slot
	d.mu.Unlock()
	metrics.PendingRequests.Inc()

	payload, err := json.Marshal(command{RequestID: requestID, Action: action, Params: params})
	if err != nil {
		d.remove(requestID)
		return nil, fmt.Errorf("dispatch: encode command: %w", err)
	}

	start := time.Now()
	if err := d.conn.Publish(module+".command", payload); err != nil {
		d.remove(requestID)
		metrics.DispatchesSent.WithLabelValues(module, "publish_error").Inc()
		return nil, fmt.Errorf("dispatch: publish %s.command: %w", module, err)
	}
	d.log.Debug("command dispatched", "module", module, "action", action, "request_id", requestID)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-slot:
		if resp == nil {
			return nil, ErrClosed
		}
		metrics.DispatchesSent.WithLabelValues(module, "ok").Inc()
		metrics.DispatchDuration.Observe(float64(time.Since(start).Milliseconds()))
		return resp, nil
	case <-timer.C:
		// Remove our own entry so a late response cannot resolve a slot no
		// one awaits.
		d.remove(requestID)
		metrics.DispatchesSent.WithLabelValues(module, "timeout").Inc()
		return nil, fmt.Errorf("dispatch: module %q did not respond within %s: %w", module, timeout, ErrTimeout)
	case <-ctx.Done():
		d.remove(requestID)
		metrics.DispatchesSent.WithLabelValues(module, "canceled").Inc()
		return nil, ctx.Err()
	}
}

// AvailableActions returns the catalog view for one module, or the whole
// catalog when module is empty. Module lists are sorted.
func (d *Dispatcher) AvailableActions(module string) map[string][]string {
	out := make(map[string][]string)
	for name, set := range d.catalog {
		if module != "" && name != module {
			continue
		}
		actions := make([]string, 0, len(set))
		for a := range set {
			actions = append(actions, a)
		}
		sort.Strings(actions)
		out[name] = actions
	}
	return out
}

// Close unsubscribes from responses and fails every in-flight waiter with
// ErrClosed.
func (d *Dispatcher) Close() error {
	if d.sub != nil {
		_ = d.sub.Unsubscribe()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	for id, slot := range d.pending {
		delete(d.pending, id)
		metrics.PendingRequests.Dec()
		slot <- nil
	}
	return nil
}

// handleResponse resolves the pending slot for a correlated reply. Responses
// with no pending entry (late after timeout, or foreign) are dropped silently;
// malformed payloads are logged and dropped, never surfaced to a waiter.
func (d *Dispatcher) handleResponse(msg bus.Msg) {
	var resp Response
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		d.log.Warn("malformed response dropped", "subject", msg.Subject, "err", err)
		return
	}
	if resp.RequestID == "" {
		d.log.Warn("response without request_id dropped", "subject", msg.Subject)
		return
	}

	d.mu.Lock()
	slot, ok := d.pending[resp.RequestID]
	if ok {
		delete(d.pending, resp.RequestID)
	}
	d.mu.Unlock()
	if !ok {
		return
	}
	metrics.PendingRequests.Dec()
	slot <- &resp
	d.log.Debug("response resolved", "request_id", resp.RequestID, "status", resp.Status)
}

func (d *Dispatcher) remove(requestID string) {
	d.mu.Lock()
	_, ok := d.pending[requestID]
	if ok {
		delete(d.pending, requestID)
	}
	d.mu.Unlock()
	if ok {
		metrics.PendingRequests.Dec()
	}
}
