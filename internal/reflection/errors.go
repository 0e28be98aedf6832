package reflection

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is returned when the prompt is blank. No collaborator is
// called in that case.
var ErrEmptyInput = errors.New("prompt is empty")

var errEmptyOutput = errors.New("empty output")

// GenerationError reports a failed Generate step. Tool failures surface here
// wrapped in a ToolError.
type GenerationError struct {
	Round int
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed (round %d): %v", e.Round, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// CritiqueError reports a failed Reflect step.
type CritiqueError struct {
	Round int
	Err   error
}

func (e *CritiqueError) Error() string {
	return fmt.Sprintf("critique failed (round %d): %v", e.Round, e.Err)
}

func (e *CritiqueError) Unwrap() error { return e.Err }

// ToolError reports a failure of a tool invoked by a Generator.
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }
