// Package llm defines the streaming transport the dispatch core calls into.
// The core only sees the Client interface; the shipped implementation rides
// Google's genai SDK.
package llm

import "context"

// Request is one model call. When Stream is set, OnDelta receives text
// fragments as they arrive and Response.Text carries the accumulated total.
type Request struct {
	Model           string
	System          string
	Input           string
	MaxOutputTokens int
	Temperature     float64
	Stream          bool
	OnDelta         func(delta string)
}

// Response is the final outcome of one model call.
type Response struct {
	Text  string
	Model string
}

// Client is the model transport. Cancellation flows through ctx; an
// aborted streaming call returns ctx.Err() after the last delivered delta.
type Client interface {
	Run(ctx context.Context, req Request) (*Response, error)
}
