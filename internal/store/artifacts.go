package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"moveforge/internal/classify"
	"moveforge/internal/metrics"
	"moveforge/internal/refine"
)

// ledgerRecord is one line of iterations.jsonl. It carries both the compact
// dashboard fields and the full source/diagnostics needed for replay and for
// building supervised fine-tuning pairs.
type ledgerRecord struct {
	Index          int                       `json:"index"`
	ErrorCount     int                       `json:"error_count"`
	Success        bool                      `json:"success"`
	Categories     map[classify.Category]int `json:"categories"`
	Timestamp      time.Time                 `json:"timestamp"`
	SourceCode     string                    `json:"source_code"`
	RawDiagnostics string                    `json:"raw_diagnostics"`
	Errors         []classify.Diagnostic     `json:"errors"`
}

// ExportArtifacts writes the per-session directory consumed by the external
// dashboard: final contract source, optional generated test, the JSONL
// iteration ledger, and precomputed chart exports in both theme variants.
// Returns the created directory path.
func ExportArtifacts(session *refine.Session, outputDir string) (string, error) {
	dirName := fmt.Sprintf("%s_%s", sanitizePromptName(session.PromptID), session.StartedAt.Format("20060102_150405"))
	dir := filepath.Join(outputDir, dirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create artifact dir: %w", err)
	}

	if src := session.FinalSource(); src != "" {
		if err := os.WriteFile(filepath.Join(dir, "contract.move"), []byte(src), 0644); err != nil {
			return "", fmt.Errorf("failed to write contract: %w", err)
		}
	}
	if session.GeneratedTest != "" {
		if err := os.WriteFile(filepath.Join(dir, "contract_tests.move"), []byte(session.GeneratedTest), 0644); err != nil {
			return "", fmt.Errorf("failed to write tests: %w", err)
		}
	}

	if err := writeIterationLedger(filepath.Join(dir, "iterations.jsonl"), session); err != nil {
		return "", err
	}

	snapshots := metrics.Summarize(session)
	for _, theme := range []metrics.Theme{metrics.ThemeLight, metrics.ThemeDark} {
		chart := metrics.BuildChart(snapshots, theme)
		data, err := json.MarshalIndent(chart, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal %s chart: %w", theme, err)
		}
		name := fmt.Sprintf("metrics_%s.json", theme)
		if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	if err := writeSessionSummary(filepath.Join(dir, "session.json"), session, snapshots); err != nil {
		return "", err
	}

	return dir, nil
}

// writeIterationLedger appends one JSON record per iteration. Each line is
// written whole, so a truncated export never yields a half-parsable record.
func writeIterationLedger(path string, session *refine.Session) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to open ledger file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, iter := range session.Iterations {
		rec := ledgerRecord{
			Index:          iter.Index,
			ErrorCount:     iter.ErrorCount,
			Success:        iter.Success,
			Categories:     iter.CategoryCounts(),
			Timestamp:      iter.CreatedAt,
			SourceCode:     iter.SourceCode,
			RawDiagnostics: iter.RawDiagnostics,
			Errors:         iter.Errors,
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode iteration %d: %w", iter.Index, err)
		}
	}
	return nil
}

type sessionSummary struct {
	ID               string    `json:"id"`
	PromptID         string    `json:"prompt_id"`
	Status           string    `json:"status"`
	Iterations       int       `json:"iterations"`
	MaxIterations    int       `json:"max_iterations"`
	FinalErrorCount  int       `json:"final_error_count"`
	TotalImprovement *float64  `json:"total_improvement_percent,omitempty"`
	StartedAt        time.Time `json:"started_at"`
	CompletedAt      time.Time `json:"completed_at,omitempty"`
}

func writeSessionSummary(path string, session *refine.Session, snapshots []metrics.Snapshot) error {
	summary := sessionSummary{
		ID:               session.ID,
		PromptID:         session.PromptID,
		Status:           string(session.Status),
		Iterations:       len(session.Iterations),
		MaxIterations:    session.MaxIterations,
		TotalImprovement: metrics.TotalImprovement(snapshots),
		StartedAt:        session.StartedAt,
		CompletedAt:      session.CompletedAt,
	}
	if last := session.LastIteration(); last != nil {
		summary.FinalErrorCount = last.ErrorCount
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write session summary: %w", err)
	}
	return nil
}

// sanitizePromptName turns "sui_move.base_contract" into a filesystem-safe
// directory prefix.
func sanitizePromptName(id string) string {
	replacer := strings.NewReplacer(".", "_", "/", "_", " ", "_", ":", "_")
	return replacer.Replace(id)
}
