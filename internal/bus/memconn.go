package bus

import (
	"strings"
	"sync"
)

// MemConn is an in-process Conn with NATS-style subject matching.
// Delivery is synchronous: Publish invokes matching handlers in the caller's
// goroutine before returning. Callers must not publish while holding locks a
// subscriber could need.
type MemConn struct {
	mu     sync.RWMutex
	subs   map[int]*memSub
	nextID int
	closed bool
}

type memSub struct {
	conn    *MemConn
	id      int
	pattern string
	handler Handler
}

// NewMemConn creates an empty in-memory bus connection.
func NewMemConn() *MemConn {
	return &MemConn{subs: make(map[int]*memSub)}
}

func (c *MemConn) Publish(subject string, data []byte) error {
	c.mu.RLock()
	var targets []Handler
	for _, s := range c.subs {
		if MatchSubject(s.pattern, subject) {
			targets = append(targets, s.handler)
		}
	}
	c.mu.RUnlock()

	for _, h := range targets {
		h(Msg{Subject: subject, Data: data})
	}
	return nil
}

func (c *MemConn) Subscribe(subject string, h Handler) (Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	s := &memSub{conn: c, id: c.nextID, pattern: subject, handler: h}
	c.subs[s.id] = s
	return s, nil
}

func (c *MemConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = make(map[int]*memSub)
	c.closed = true
	return nil
}

func (s *memSub) Unsubscribe() error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	delete(s.conn.subs, s.id)
	return nil
}

// MatchSubject reports whether a dot-separated subject matches a pattern
// using NATS wildcard rules: "*" matches exactly one token, ">" matches one
// or more trailing tokens.
func MatchSubject(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")

	for i, p := range pt {
		if p == ">" {
			return i < len(st)
		}
		if i >= len(st) {
			return false
		}
		if p != "*" && p != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}
