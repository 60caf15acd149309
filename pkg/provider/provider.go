// Package provider defines the contract with the external inference service.
// The governor treats the provider as a black box: an asynchronous call that
// either returns content plus token usage or fails.
package provider

import "context"

// Request is one inference call
type Request struct {
	UserID    string
	Model     string
	Operation string
	Prompt    string
}

// Response carries the provider's output and the token usage needed for
// cost attribution
type Response struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Provider executes inference requests
type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Func adapts a plain function to the Provider interface
type Func func(ctx context.Context, req Request) (*Response, error)

// Complete implements Provider
func (f Func) Complete(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}
