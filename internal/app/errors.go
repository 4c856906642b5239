package app

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrExtraction = errors.New("extraction failed")
	ErrEmbedding  = errors.New("embedding failed")
	ErrGeneration = errors.New("generation failed")
	ErrNotFound   = errors.New("not found")
)

// AskState is a step of answering one question.
type AskState string

const (
	StateReceived  AskState = "received"
	StateEmbedded  AskState = "embedded"
	StateRetrieved AskState = "retrieved"
)

// AskError is a terminal failure of one question. State is the last state
// reached before the failure.
type AskError struct {
	State AskState
	Err   error
}

func (e *AskError) Error() string {
	return fmt.Sprintf("ask failed after %s: %v", e.State, e.Err)
}

func (e *AskError) Unwrap() error { return e.Err }
