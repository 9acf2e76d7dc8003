package transport

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrClosed is returned to any outstanding Send callback when the
// channel is closed before a response arrives.
var ErrClosed = errors.New("transport: channel closed")

// Fake is an in-memory Channel, used by the dialect tests: it records
// every command sent and lets the test script a canned response or
// inject unsolicited lines.
type Fake struct {
	mu       sync.Mutex
	handlers map[string][]EventHandler
	Sent     []string
	next     map[string]Response // keyed by exact command
	closed   bool
}

// NewFake returns a ready-to-use Fake transport.
func NewFake() *Fake {
	return &Fake{
		handlers: make(map[string][]EventHandler),
		next:     make(map[string]Response),
	}
}

// Expect arranges for the given command to receive resp the next time
// it is sent.
func (f *Fake) Expect(cmd string, resp Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next[cmd] = resp
}

func (f *Fake) Send(_ context.Context, cmd string, _ string, fn ResponseFunc) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		fn(Response{Err: ErrClosed})
		return
	}
	f.Sent = append(f.Sent, cmd)
	resp, ok := f.next[cmd]
	delete(f.next, cmd)
	f.mu.Unlock()
	if !ok {
		resp = Response{OK: true}
	}
	fn(resp)
}

func (f *Fake) Register(prefix string, handler EventHandler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[prefix] = append(f.handlers[prefix], handler)
	slot := len(f.handlers[prefix]) - 1
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		hs := f.handlers[prefix]
		if slot < len(hs) {
			hs[slot] = func(string) {} // leave a no-op to keep other slots' indices stable
		}
	}
}

// Emit delivers an unsolicited line to every handler whose registered
// prefix matches.
func (f *Fake) Emit(line string) {
	f.mu.Lock()
	var fire []EventHandler
	for prefix, hs := range f.handlers {
		if strings.HasPrefix(line, prefix) {
			fire = append(fire, hs...)
		}
	}
	f.mu.Unlock()
	for _, h := range fire {
		h(line)
	}
}

func (f *Fake) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}
