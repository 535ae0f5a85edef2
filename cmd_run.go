package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"moveforge/internal/classify"
	"moveforge/internal/compiler"
	"moveforge/internal/config"
	"moveforge/internal/llm"
	"moveforge/internal/logging"
	"moveforge/internal/prompt"
	"moveforge/internal/refine"
	"moveforge/internal/store"
)

var runFlags struct {
	promptID      string
	maxIterations int
	generateTests bool
	noSave        bool
	outputDir     string
	adapter       string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one refinement session for a prompt",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRunConfig(cmd)
		if err != nil {
			return err
		}
		return runSession(cfg)
	},
}

func init() {
	runCmd.Flags().StringVar(&runFlags.promptID, "prompt", "", "prompt id (namespace.name)")
	runCmd.Flags().IntVar(&runFlags.maxIterations, "max-iterations", 0, "iteration budget for the session")
	runCmd.Flags().BoolVar(&runFlags.generateTests, "generate-tests", false, "generate a Move test module after a successful compile")
	runCmd.Flags().BoolVar(&runFlags.noSave, "no-save", false, "skip ledger persistence and artifact export")
	runCmd.Flags().StringVar(&runFlags.outputDir, "output-dir", "", "artifact output directory")
	runCmd.Flags().StringVar(&runFlags.adapter, "compiler", "", "compiler adapter: simulator or toolchain")
}

// loadRunConfig merges the YAML config under explicit flag overrides.
func loadRunConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}

	if cmd.Flags().Changed("prompt") {
		cfg.PromptID = runFlags.promptID
	}
	if cmd.Flags().Changed("max-iterations") {
		cfg.MaxIterations = runFlags.maxIterations
	}
	if cmd.Flags().Changed("generate-tests") {
		cfg.GenerateTests = runFlags.generateTests
	}
	if runFlags.noSave {
		cfg.SaveIterations = false
	}
	if cmd.Flags().Changed("output-dir") {
		cfg.OutputDir = runFlags.outputDir
	}
	if cmd.Flags().Changed("compiler") {
		cfg.CompilerAdapter = runFlags.adapter
	}

	return cfg, cfg.Validate()
}

func runSession(cfg config.Config) error {
	log := logging.New(cfg.LogFile, true, cfg.Debug)
	defer log.Close()

	prompts, err := prompt.LoadDir(cfg.PromptsDir)
	if err != nil {
		return err
	}
	spec, err := prompts.Get(cfg.PromptID)
	if err != nil {
		return err
	}

	classifier, err := buildClassifier(cfg)
	if err != nil {
		return err
	}

	adapter, err := compiler.Select(cfg.CompilerAdapter, cfg.ToolchainBin, "")
	if err != nil {
		return err
	}

	var ledger *store.Store
	if cfg.SaveIterations {
		ledger, err = store.Open(cfg.LedgerPath)
		if err != nil {
			return err
		}
		defer ledger.Close()
	}

	limiter := llm.NewRateLimiter(cfg.RequestsPerMinute)
	defer limiter.Close()

	// The id is minted before the run so the usage hook, which fires on
	// every generation call inside engine.Run, records a populated id.
	sessionID := uuid.New().String()
	clientOpts := []llm.Option{
		llm.WithModel(cfg.Model),
		llm.WithBaseURL(cfg.BaseURL),
		llm.WithTimeout(cfg.GenerateTimeout()),
		llm.WithRateLimiter(limiter),
	}
	if ledger != nil {
		clientOpts = append(clientOpts, llm.WithUsageHook(func(r *llm.Result) {
			if err := ledger.RecordUsage(uuid.New().String(), sessionID, "generate",
				r.Model, r.PromptTokens, r.CompletionTokens, r.LatencyMs); err != nil {
				log.Warn("failed to record usage: %v", err)
			}
		}))
	}
	client := llm.NewClient(cfg.APIKey(), clientOpts...)

	var engineLedger refine.Ledger
	if ledger != nil {
		engineLedger = ledger
	}
	engine := refine.New(client, adapter, classifier, engineLedger, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Using prompt: %s\n", spec.ID)
	if desc := prompts.Describe(spec.ID); desc != "" {
		fmt.Printf("Description: %s\n", desc)
	}

	session, runErr := engine.Run(ctx, refine.PromptInput{
		ID:                spec.ID,
		SystemInstruction: spec.SystemInstruction,
		ContentTemplate:   spec.ContentTemplate,
	}, refine.Config{
		SessionID:       sessionID,
		MaxIterations:   cfg.MaxIterations,
		GenerateTests:   cfg.GenerateTests,
		Retry:           refine.DefaultRetryPolicy(),
		GenerateTimeout: cfg.GenerateTimeout(),
		CompileTimeout:  cfg.CompileTimeout(),
	})

	if session != nil && ledger != nil && session.GeneratedTest != "" {
		if err := ledger.SaveGeneratedTest(session.ID, session.GeneratedTest); err != nil {
			log.Warn("failed to save generated test: %v", err)
		}
	}

	if session != nil {
		printOutcome(session)
		if cfg.SaveIterations {
			dir, exportErr := store.ExportArtifacts(session, cfg.OutputDir)
			if exportErr != nil {
				log.Error("artifact export failed: %v", exportErr)
			} else {
				fmt.Printf("Artifacts written to %s\n", dir)
			}
		}
	}

	return runErr
}

func buildClassifier(cfg config.Config) (*classify.Classifier, error) {
	rules := classify.DefaultRules()
	if cfg.RuleTable != "" {
		loaded, err := classify.LoadRules(cfg.RuleTable)
		if err != nil {
			return nil, err
		}
		rules = loaded
	}
	return classify.New(rules)
}

// printOutcome reports the terminal status, iteration count, and the last
// diagnostic set, whatever the terminal state was.
func printOutcome(session *refine.Session) {
	fmt.Printf("\nSession %s: %s after %d iteration(s)\n", session.ID, session.Status, len(session.Iterations))

	last := session.LastIteration()
	if last == nil {
		return
	}
	if last.Success {
		fmt.Println("Final compile: clean")
		return
	}
	fmt.Printf("Final compile: %d error(s)\n", last.ErrorCount)
	for _, e := range last.Errors {
		fmt.Fprintf(os.Stdout, "  [%s] %s\n", e.Category, e.Message)
	}
}
