// fake_ingest.go - Scriptable ingestion client for testing
package testutil

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/netysoft/Rag-ChatbotIA/internal/ingest"
)

// IngestCall records one Upload invocation.
type IngestCall struct {
	Name     string
	Body     []byte
	CallerID string
	At       time.Time
}

// FakeIngest implements ingest.Client. Respond decides the outcome of each
// call; a nil Respond makes every upload succeed.
type FakeIngest struct {
	Respond func(call IngestCall) error

	mu    sync.Mutex
	calls []IngestCall
	gates map[string]chan struct{}
}

// NewFakeIngest creates a FakeIngest with the given responder.
func NewFakeIngest(respond func(call IngestCall) error) *FakeIngest {
	return &FakeIngest{Respond: respond, gates: make(map[string]chan struct{})}
}

// Hold makes uploads of name block until Release(name) is called.
func (f *FakeIngest) Hold(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gates == nil {
		f.gates = make(map[string]chan struct{})
	}
	if _, ok := f.gates[name]; !ok {
		f.gates[name] = make(chan struct{})
	}
}

// Release unblocks uploads of name held by Hold.
func (f *FakeIngest) Release(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.gates[name]; ok {
		close(ch)
		delete(f.gates, name)
	}
}

// Upload records the call, waits on any gate for the document name, then
// returns Respond's verdict.
func (f *FakeIngest) Upload(ctx context.Context, p ingest.Payload, callerID string) error {
	var body []byte
	if p.Content != nil {
		b, err := io.ReadAll(p.Content)
		if err != nil {
			return err
		}
		body = b
	}
	call := IngestCall{Name: p.Name, Body: body, CallerID: callerID, At: time.Now()}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	gate := f.gates[p.Name]
	respond := f.Respond
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if respond == nil {
		return nil
	}
	return respond(call)
}

// Calls returns a copy of the recorded calls in arrival order.
func (f *FakeIngest) Calls() []IngestCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]IngestCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns the number of recorded calls.
func (f *FakeIngest) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

var _ ingest.Client = (*FakeIngest)(nil)
