// Package refine drives the generate -> compile -> classify -> decide loop
// that turns a prompt spec into a compiling contract, or exhausts its budget
// trying.
package refine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"moveforge/internal/classify"
	"moveforge/internal/compiler"
	"moveforge/internal/llm"
)

// Ledger is the append-only persistence surface the engine writes through.
// A nil Ledger disables persistence. Write failures abort the session but
// never rewrite committed iterations.
type Ledger interface {
	CreateSession(session *Session) error
	AppendIteration(sessionID string, iter Iteration) error
	Finalize(sessionID string, status Status) error
}

// Logger is the subset of the logging package the engine needs.
type Logger interface {
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// RetryPolicy governs recoverable generation/compile failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy retries three times with a doubling delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second}
}

// Config is the per-run input to the engine. The two timeouts are
// independent: a slow model must not shrink the compile budget. Zero means
// no per-call deadline beyond the session context.
//
// SessionID, when set, names the session up front so callers can correlate
// side channels (usage accounting, logging) with the run while it is still
// in flight. Empty means the engine mints one.
type Config struct {
	SessionID       string
	MaxIterations   int
	GenerateTests   bool
	Retry           RetryPolicy
	GenerateTimeout time.Duration
	CompileTimeout  time.Duration
}

// Engine orchestrates one session at a time. Instances are safe to share
// across concurrent sessions: all mutable state lives in the Session.
type Engine struct {
	generator  llm.Generator
	adapter    compiler.Adapter
	classifier *classify.Classifier
	ledger     Ledger
	log        Logger

	// sleep is swapped out in tests to avoid real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an engine. ledger and log may be nil.
func New(generator llm.Generator, adapter compiler.Adapter, classifier *classify.Classifier, ledger Ledger, log Logger) *Engine {
	return &Engine{
		generator:  generator,
		adapter:    adapter,
		classifier: classifier,
		ledger:     ledger,
		log:        log,
		sleep:      sleepCtx,
	}
}

// PromptInput is the engine's view of a loaded prompt spec.
type PromptInput struct {
	ID                string
	SystemInstruction string
	ContentTemplate   string
}

// Run executes the refinement loop until the contract compiles, the
// iteration budget is exhausted, or infrastructure fails. The returned
// session always carries a terminal status; the error is non-nil only for
// FAILED sessions and invalid input.
func (e *Engine) Run(ctx context.Context, spec PromptInput, cfg Config) (*Session, error) {
	if cfg.MaxIterations <= 0 {
		return nil, fmt.Errorf("max iterations must be positive, got %d", cfg.MaxIterations)
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}

	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	session := &Session{
		ID:            sessionID,
		PromptID:      spec.ID,
		MaxIterations: cfg.MaxIterations,
		Status:        StatusInProgress,
		StartedAt:     time.Now().UTC(),
	}

	if e.ledger != nil {
		if err := e.ledger.CreateSession(session); err != nil {
			return nil, fmt.Errorf("create session ledger: %w", err)
		}
	}

	for len(session.Iterations) < cfg.MaxIterations {
		index := len(session.Iterations)
		e.infof("session %s iteration %d/%d", session.ID, index, cfg.MaxIterations)

		userPrompt := buildPrompt(spec.ContentTemplate, session.LastIteration())

		source, err := e.generate(ctx, spec.SystemInstruction, userPrompt, cfg)
		if err != nil {
			return e.fail(session, fmt.Errorf("generation: %w", err))
		}

		result, err := e.compile(ctx, source, cfg)
		if err != nil {
			return e.fail(session, fmt.Errorf("compile: %w", err))
		}

		iter := e.classifyResult(index, source, result)
		session.Iterations = append(session.Iterations, iter)

		if e.ledger != nil {
			if err := e.ledger.AppendIteration(session.ID, iter); err != nil {
				return e.fail(session, fmt.Errorf("ledger append: %w", err))
			}
		}

		if iter.Success {
			session.Status = StatusSucceeded
			break
		}
	}

	if session.Status != StatusSucceeded {
		session.Status = StatusExhausted
	}
	session.CompletedAt = time.Now().UTC()

	if session.Status == StatusSucceeded && cfg.GenerateTests {
		e.generateTest(ctx, session, cfg)
	}

	if e.ledger != nil {
		if err := e.ledger.Finalize(session.ID, session.Status); err != nil {
			e.errorf("session %s: finalize: %v", session.ID, err)
		}
	}

	e.infof("session %s finished: %s after %d iteration(s)", session.ID, session.Status, len(session.Iterations))
	return session, nil
}

// classifyResult builds the iteration record for one pass. A failed compile
// that produced no parsable diagnostics still yields exactly one OTHER error,
// so ErrorCount is zero only when compilation truly succeeded.
func (e *Engine) classifyResult(index int, source string, result compiler.Result) Iteration {
	var errs []classify.Diagnostic
	if !result.Success {
		errs = e.classifier.Classify(result.RawDiagnostics)
		if len(errs) == 0 {
			errs = []classify.Diagnostic{{
				Category: classify.Other,
				Message:  "compilation failed without parsable diagnostics",
				RawLine:  result.RawDiagnostics,
			}}
		}
	}

	return Iteration{
		Index:          index,
		SourceCode:     source,
		RawDiagnostics: result.RawDiagnostics,
		Errors:         errs,
		ErrorCount:     len(errs),
		Success:        result.Success,
		CreatedAt:      time.Now().UTC(),
	}
}

// generate calls the generation backend under the retry policy and strips
// markdown fences from the winning response.
func (e *Engine) generate(ctx context.Context, systemPrompt, userPrompt string, cfg Config) (string, error) {
	raw, err := e.generateRaw(ctx, systemPrompt, userPrompt, cfg)
	if err != nil {
		return "", err
	}
	return llm.CleanSource(raw), nil
}

// generateRaw is generate without the fence stripping, for callers that need
// the response's block structure intact.
func (e *Engine) generateRaw(ctx context.Context, systemPrompt, userPrompt string, cfg Config) (string, error) {
	var result *llm.Result
	err := e.withRetry(ctx, cfg.Retry, cfg.GenerateTimeout, "generate", func(callCtx context.Context) error {
		var callErr error
		result, callErr = e.generator.Generate(callCtx, systemPrompt, userPrompt)
		return callErr
	})
	if err != nil {
		return "", err
	}
	return result.Content, nil
}

// compile calls the compiler adapter under the retry policy. Diagnostics are
// data, not errors; only ErrUnavailable reaches the retry loop.
func (e *Engine) compile(ctx context.Context, source string, cfg Config) (compiler.Result, error) {
	var result compiler.Result
	err := e.withRetry(ctx, cfg.Retry, cfg.CompileTimeout, "compile", func(callCtx context.Context) error {
		var callErr error
		result, callErr = e.adapter.Compile(callCtx, source)
		return callErr
	})
	if err != nil {
		return compiler.Result{}, err
	}
	return result, nil
}

// withRetry runs fn up to retry.MaxAttempts times with exponential backoff,
// doubling the delay after each recoverable failure. Cancellation is checked
// before every attempt so an aborted session never issues another call.
func (e *Engine) withRetry(ctx context.Context, retry RetryPolicy, timeout time.Duration, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	delay := retry.BaseDelay

	for attempt := 1; attempt <= retry.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = e.callOnce(ctx, timeout, fn)
		if lastErr == nil {
			return nil
		}
		if !recoverable(lastErr) {
			return lastErr
		}

		e.warnf("%s attempt %d/%d failed: %v", op, attempt, retry.MaxAttempts, lastErr)

		if attempt == retry.MaxAttempts {
			break
		}
		if err := e.sleep(ctx, delay); err != nil {
			return err
		}
		delay *= 2
	}

	return fmt.Errorf("%s failed after %d attempts: %w", op, retry.MaxAttempts, lastErr)
}

func (e *Engine) callOnce(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(callCtx)
}

const testSystemInstruction = "You are an expert in Sui Move smart contract testing."

// generateTest asks for a companion test module once the contract compiles.
// Failure here degrades to a warning; it never changes the session outcome.
// Models sometimes echo the contract back alongside the tests; when the
// response carries multiple fenced blocks, only the test module is kept.
func (e *Engine) generateTest(ctx context.Context, session *Session, cfg Config) {
	raw, err := e.generateRaw(ctx, testSystemInstruction, testPrompt(session.FinalSource()), cfg)
	if err != nil {
		e.warnf("session %s: test generation skipped: %v", session.ID, err)
		return
	}
	session.GeneratedTest = pickTestModule(raw)
}

// pickTestModule selects the test-module block from a generation response.
// Falls back to the whole cleaned response when there is no block to prefer.
func pickTestModule(raw string) string {
	blocks := llm.ExtractCodeBlocks(raw)
	if len(blocks) > 1 {
		for _, b := range blocks {
			if strings.Contains(b.Content, "#[test") || strings.Contains(b.Content, "test_scenario") {
				return strings.TrimSpace(b.Content)
			}
		}
	}
	return llm.CleanSource(raw)
}

// fail finalizes a session on unrecoverable infrastructure failure. The
// failed attempt appends no iteration; committed iterations stay untouched.
func (e *Engine) fail(session *Session, cause error) (*Session, error) {
	session.Status = StatusFailed
	session.CompletedAt = time.Now().UTC()

	if e.ledger != nil {
		if err := e.ledger.Finalize(session.ID, StatusFailed); err != nil {
			e.errorf("session %s: finalize after failure: %v", session.ID, err)
		}
	}

	e.errorf("session %s failed: %v", session.ID, cause)
	return session, cause
}

// recoverable reports whether an error should feed the retry loop.
func recoverable(err error) bool {
	return llm.Recoverable(err) ||
		errors.Is(err, compiler.ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) infof(format string, args ...interface{}) {
	if e.log != nil {
		e.log.Info(format, args...)
	}
}

func (e *Engine) warnf(format string, args ...interface{}) {
	if e.log != nil {
		e.log.Warn(format, args...)
	}
}

func (e *Engine) errorf(format string, args ...interface{}) {
	if e.log != nil {
		e.log.Error(format, args...)
	}
}
