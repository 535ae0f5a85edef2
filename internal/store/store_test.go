package store

import (
	"path/filepath"
	"testing"
	"time"

	"moveforge/internal/classify"
	"moveforge/internal/refine"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleSession(id string) *refine.Session {
	return &refine.Session{
		ID:            id,
		PromptID:      "sui_move.base_contract",
		MaxIterations: 5,
		Status:        refine.StatusInProgress,
		StartedAt:     time.Now().UTC().Truncate(time.Second),
	}
}

func sampleIteration(index, errorCount int) refine.Iteration {
	var errs []classify.Diagnostic
	for i := 0; i < errorCount; i++ {
		errs = append(errs, classify.Diagnostic{
			Category: classify.AbilityConstraint,
			Code:     "E05001",
			Message:  "ability constraint not satisfied",
			RawLine:  "error[E05001]: ability constraint not satisfied",
		})
	}
	return refine.Iteration{
		Index:          index,
		SourceCode:     "module demo::registry {}",
		RawDiagnostics: "error[E05001]: ability constraint not satisfied",
		Errors:         errs,
		ErrorCount:     errorCount,
		Success:        errorCount == 0,
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
	}
}

func TestSessionRoundTrip(t *testing.T) {
	s := openTestStore(t)

	session := sampleSession("sess-1")
	if err := s.CreateSession(session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	first := sampleIteration(0, 2)
	second := sampleIteration(1, 0)
	second.SourceCode = "module demo::registry { public fun noop() {} }"
	second.RawDiagnostics = "Compilation Successful"
	for _, iter := range []refine.Iteration{first, second} {
		if err := s.AppendIteration(session.ID, iter); err != nil {
			t.Fatalf("AppendIteration %d failed: %v", iter.Index, err)
		}
	}
	if err := s.Finalize(session.ID, refine.StatusSucceeded); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	loaded, err := s.Load(session.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Status != refine.StatusSucceeded {
		t.Errorf("Expected SUCCEEDED, got %s", loaded.Status)
	}
	if loaded.PromptID != session.PromptID || loaded.MaxIterations != 5 {
		t.Errorf("Session metadata mismatch: %+v", loaded)
	}
	if len(loaded.Iterations) != 2 {
		t.Fatalf("Expected 2 iterations, got %d", len(loaded.Iterations))
	}

	got := loaded.Iterations[0]
	if got.Index != 0 || got.ErrorCount != 2 || got.Success {
		t.Errorf("Iteration 0 mismatch: %+v", got)
	}
	if len(got.Errors) != 2 || got.Errors[0].Category != classify.AbilityConstraint {
		t.Errorf("Iteration 0 errors mismatch: %+v", got.Errors)
	}
	if got.SourceCode != "module demo::registry {}" {
		t.Errorf("Iteration 0 source mismatch: %q", got.SourceCode)
	}

	got = loaded.Iterations[1]
	if got.Index != 1 || got.ErrorCount != 0 || !got.Success {
		t.Errorf("Iteration 1 mismatch: %+v", got)
	}
}

func TestAppendRejectsDuplicateIndex(t *testing.T) {
	s := openTestStore(t)

	session := sampleSession("sess-dup")
	if err := s.CreateSession(session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := s.AppendIteration(session.ID, sampleIteration(0, 1)); err != nil {
		t.Fatalf("First append failed: %v", err)
	}
	if err := s.AppendIteration(session.ID, sampleIteration(0, 1)); err == nil {
		t.Error("Expected duplicate index to be rejected")
	}
}

func TestFinalizeLeavesIterationsUntouched(t *testing.T) {
	s := openTestStore(t)

	session := sampleSession("sess-fin")
	if err := s.CreateSession(session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := s.AppendIteration(session.ID, sampleIteration(0, 3)); err != nil {
		t.Fatalf("AppendIteration failed: %v", err)
	}
	if err := s.Finalize(session.ID, refine.StatusFailed); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	loaded, err := s.Load(session.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Status != refine.StatusFailed {
		t.Errorf("Expected FAILED, got %s", loaded.Status)
	}
	if len(loaded.Iterations) != 1 || loaded.Iterations[0].ErrorCount != 3 {
		t.Errorf("Committed iteration was altered: %+v", loaded.Iterations)
	}
	if loaded.CompletedAt.IsZero() {
		t.Error("Expected completed_at to be stamped")
	}
}

func TestSaveGeneratedTest(t *testing.T) {
	s := openTestStore(t)

	session := sampleSession("sess-test")
	if err := s.CreateSession(session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := s.SaveGeneratedTest(session.ID, "#[test_only]\nmodule demo::t {}"); err != nil {
		t.Fatalf("SaveGeneratedTest failed: %v", err)
	}

	loaded, err := s.Load(session.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.GeneratedTest == "" {
		t.Error("Expected generated test to round-trip")
	}
}

func TestListSessions(t *testing.T) {
	s := openTestStore(t)

	older := sampleSession("sess-old")
	older.StartedAt = time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	newer := sampleSession("sess-new")
	for _, sess := range []*refine.Session{older, newer} {
		if err := s.CreateSession(sess); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
	}
	if err := s.AppendIteration(newer.ID, sampleIteration(0, 4)); err != nil {
		t.Fatalf("AppendIteration failed: %v", err)
	}
	if err := s.AppendIteration(newer.ID, sampleIteration(1, 1)); err != nil {
		t.Fatalf("AppendIteration failed: %v", err)
	}

	summaries, err := s.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("Expected 2 summaries, got %d", len(summaries))
	}
	if summaries[0].ID != "sess-new" {
		t.Errorf("Expected newest first, got %s", summaries[0].ID)
	}
	if summaries[0].Iterations != 2 {
		t.Errorf("Expected 2 iterations, got %d", summaries[0].Iterations)
	}
	if summaries[0].FinalErrors != 1 {
		t.Errorf("Expected final_errors from last iteration, got %d", summaries[0].FinalErrors)
	}
	if summaries[1].Iterations != 0 || summaries[1].FinalErrors != 0 {
		t.Errorf("Empty session summary mismatch: %+v", summaries[1])
	}
}

func TestRecordUsageAndCategoryTotals(t *testing.T) {
	s := openTestStore(t)

	session := sampleSession("sess-usage")
	if err := s.CreateSession(session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := s.RecordUsage("u-1", session.ID, "generate", "gpt-4", 100, 200, 1500); err != nil {
		t.Fatalf("RecordUsage failed: %v", err)
	}
	if err := s.RecordUsage("u-2", session.ID, "generate", "gpt-4", 50, 75, 900); err != nil {
		t.Fatalf("RecordUsage failed: %v", err)
	}

	// Rows must be keyed by the session that was running, not a zero value.
	usage, err := s.SessionUsage(session.ID)
	if err != nil {
		t.Fatalf("SessionUsage failed: %v", err)
	}
	if usage.Calls != 2 || usage.PromptTokens != 150 || usage.CompletionTokens != 275 {
		t.Errorf("Unexpected usage summary: %+v", usage)
	}
	if usage.TotalLatencyMs != 2400 {
		t.Errorf("Unexpected latency sum: %d", usage.TotalLatencyMs)
	}

	orphaned, err := s.SessionUsage("")
	if err != nil {
		t.Fatalf("SessionUsage failed: %v", err)
	}
	if orphaned.Calls != 0 {
		t.Errorf("No usage may land under an empty session id, got %d rows", orphaned.Calls)
	}

	iter := sampleIteration(0, 2)
	iter.Errors = append(iter.Errors, classify.Diagnostic{Category: classify.TypeMismatch, Message: "type mismatch"})
	iter.ErrorCount = len(iter.Errors)
	if err := s.AppendIteration(session.ID, iter); err != nil {
		t.Fatalf("AppendIteration failed: %v", err)
	}

	totals, err := s.CategoryTotals(session.ID)
	if err != nil {
		t.Fatalf("CategoryTotals failed: %v", err)
	}
	if totals[classify.AbilityConstraint] != 2 || totals[classify.TypeMismatch] != 1 {
		t.Errorf("Unexpected totals: %v", totals)
	}
}

func TestLoadMissingSession(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Load("nope"); err == nil {
		t.Error("Expected error for unknown session")
	}
}
