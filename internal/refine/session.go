package refine

import (
	"time"

	"moveforge/internal/classify"
)

// Status is the terminal (or in-flight) state of a refinement session.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusSucceeded  Status = "SUCCEEDED"
	StatusExhausted  Status = "EXHAUSTED"
	StatusFailed     Status = "FAILED"
)

// Iteration is one pass of the generate/compile/classify loop. Immutable
// after creation and owned exclusively by its session.
type Iteration struct {
	Index          int                   `json:"index"`
	SourceCode     string                `json:"source_code"`
	RawDiagnostics string                `json:"raw_diagnostics"`
	Errors         []classify.Diagnostic `json:"errors"`
	ErrorCount     int                   `json:"error_count"`
	Success        bool                  `json:"success"`
	CreatedAt      time.Time             `json:"created_at"`
}

// CategoryCounts tallies the iteration's errors by category.
func (it Iteration) CategoryCounts() map[classify.Category]int {
	counts := make(map[classify.Category]int)
	for _, e := range it.Errors {
		counts[e.Category]++
	}
	return counts
}

// Session is one end-to-end refinement run for a prompt.
//
// Invariants: len(Iterations) <= MaxIterations; iteration indices are
// contiguous from 0; Status is StatusSucceeded iff the last iteration has
// ErrorCount == 0; StatusExhausted iff the budget is spent with no success;
// StatusFailed only on infrastructure failure, never on compile errors.
type Session struct {
	ID            string      `json:"id"`
	PromptID      string      `json:"prompt_id"`
	MaxIterations int         `json:"max_iterations"`
	Iterations    []Iteration `json:"iterations"`
	Status        Status      `json:"status"`
	GeneratedTest string      `json:"generated_test,omitempty"`
	StartedAt     time.Time   `json:"started_at"`
	CompletedAt   time.Time   `json:"completed_at,omitempty"`
}

// FinalSource returns the most recent generated source, or "" before the
// first iteration lands.
func (s *Session) FinalSource() string {
	if len(s.Iterations) == 0 {
		return ""
	}
	return s.Iterations[len(s.Iterations)-1].SourceCode
}

// LastIteration returns the most recent iteration, or nil.
func (s *Session) LastIteration() *Iteration {
	if len(s.Iterations) == 0 {
		return nil
	}
	return &s.Iterations[len(s.Iterations)-1]
}

// Succeeded reports whether the session ended with a clean compile.
func (s *Session) Succeeded() bool {
	return s.Status == StatusSucceeded
}
