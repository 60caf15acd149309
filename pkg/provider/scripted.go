package provider

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Scripted is an in-memory Provider for tests and local runs. Responses are
// keyed by prompt; unmatched prompts get a default response. Failures can be
// injected per prompt.
type Scripted struct {
	mu        sync.Mutex
	responses map[string]*Response
	failures  map[string]error
	delay     time.Duration
	calls     []Request
}

// NewScripted creates an empty scripted provider
func NewScripted() *Scripted {
	return &Scripted{
		responses: make(map[string]*Response),
		failures:  make(map[string]error),
	}
}

// Respond registers a canned response for a prompt
func (s *Scripted) Respond(prompt string, resp *Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[prompt] = resp
}

// Fail registers a failure for a prompt
func (s *Scripted) Fail(prompt string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[prompt] = err
}

// SetDelay makes every call block for d, simulating provider latency
func (s *Scripted) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Complete implements Provider
func (s *Scripted) Complete(ctx context.Context, req Request) (*Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	delay := s.delay
	err, failed := s.failures[req.Prompt]
	resp, scripted := s.responses[req.Prompt]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if failed {
		return nil, err
	}
	if scripted {
		return resp, nil
	}
	return &Response{
		Content:      fmt.Sprintf("scripted response for %q", req.Prompt),
		Model:        req.Model,
		InputTokens:  len(req.Prompt),
		OutputTokens: 64,
	}, nil
}

// Calls returns a copy of all requests seen so far
func (s *Scripted) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	calls := make([]Request, len(s.calls))
	copy(calls, s.calls)
	return calls
}
