package nl2sql

import (
	"context"
	"errors"
)

var (
	// ErrTimeout is returned when the model does not answer within the
	// configured generation budget.
	ErrTimeout = errors.New("nl2sql: generation timed out")

	// ErrUpstream is returned on any other model-side failure.
	ErrUpstream = errors.New("nl2sql: generation failed")
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the composed generation input. It is transient and never
// persisted.
type Request struct {
	System   string
	Messages []Message
}

// Reply carries the extracted candidate SQL (empty when the model answered
// conversationally, which is a normal outcome) and the natural-language
// explanation.
type Reply struct {
	SQL         string
	Explanation string
	Model       string
}

type Generator interface {
	Generate(ctx context.Context, req Request) (Reply, error)
	Ping(ctx context.Context) error
}
