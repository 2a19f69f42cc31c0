// Package testfixtures provides deterministic collaborators for tests: a
// scripted transport that answers from canned payloads and counts calls, and
// builders for realistic source records.
package testfixtures

import (
	"context"
	"net/url"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/example/calendar-aggregator/internal/transport"
)

// ScriptedTransport implements transport.Client from canned responses keyed
// by path prefix. It records every call so tests can assert exactly how many
// upstream requests a scenario produced.
type ScriptedTransport struct {
	mu        sync.Mutex
	responses map[string]scriptedResponse
	calls     map[string]int
}

type scriptedResponse struct {
	data json.RawMessage
	err  error
}

// NewScriptedTransport returns an empty scripted transport; unscripted paths
// answer with an empty successful envelope.
func NewScriptedTransport() *ScriptedTransport {
	return &ScriptedTransport{
		responses: make(map[string]scriptedResponse),
		calls:     make(map[string]int),
	}
}

// Respond scripts a successful envelope whose data is the JSON encoding of payload.
func (t *ScriptedTransport) Respond(pathPrefix string, payload any) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		panic("testfixtures: unmarshalable payload: " + err.Error())
	}
	t.mu.Lock()
	t.responses[pathPrefix] = scriptedResponse{data: encoded}
	t.mu.Unlock()
}

// Fail scripts a failure for every call matching pathPrefix.
func (t *ScriptedTransport) Fail(pathPrefix string, err error) {
	t.mu.Lock()
	t.responses[pathPrefix] = scriptedResponse{err: err}
	t.mu.Unlock()
}

// Calls reports how many requests matched pathPrefix.
func (t *ScriptedTransport) Calls(pathPrefix string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := 0
	for path, count := range t.calls {
		if strings.HasPrefix(path, pathPrefix) {
			total += count
		}
	}
	return total
}

// Get implements transport.Client.
func (t *ScriptedTransport) Get(_ context.Context, path string, _ url.Values) (*transport.Envelope, error) {
	return t.answer(path)
}

// Post implements transport.Client.
func (t *ScriptedTransport) Post(_ context.Context, path string, _ any) (*transport.Envelope, error) {
	return t.answer(path)
}

// Put implements transport.Client.
func (t *ScriptedTransport) Put(_ context.Context, path string, _ any) (*transport.Envelope, error) {
	return t.answer(path)
}

// Delete implements transport.Client.
func (t *ScriptedTransport) Delete(_ context.Context, path string, _ url.Values) (*transport.Envelope, error) {
	return t.answer(path)
}

func (t *ScriptedTransport) answer(path string) (*transport.Envelope, error) {
	t.mu.Lock()
	t.calls[path]++
	var matched *scriptedResponse
	for prefix, response := range t.responses {
		if strings.HasPrefix(path, prefix) {
			r := response
			matched = &r
			break
		}
	}
	t.mu.Unlock()

	if matched == nil {
		return &transport.Envelope{Success: true}, nil
	}
	if matched.err != nil {
		return nil, matched.err
	}
	return &transport.Envelope{Success: true, Data: matched.data}, nil
}
