package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"moveforge/internal/config"
	"moveforge/internal/metrics"
	"moveforge/internal/store"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect persisted refinement sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sessions in the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		ledger, err := openLedger()
		if err != nil {
			return err
		}
		defer ledger.Close()

		sessions, err := ledger.ListSessions()
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("No sessions recorded.")
			return nil
		}

		for _, s := range sessions {
			fmt.Printf("%s  %-10s  %-28s  iterations=%d  final_errors=%d  %s\n",
				s.ID, s.Status, s.PromptID, s.Iterations, s.FinalErrors,
				s.StartedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print one session's metrics series as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ledger, err := openLedger()
		if err != nil {
			return err
		}
		defer ledger.Close()

		session, err := ledger.Load(args[0])
		if err != nil {
			return err
		}

		usage, err := ledger.SessionUsage(session.ID)
		if err != nil {
			return err
		}

		snapshots := metrics.Summarize(session)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			ID        string             `json:"id"`
			PromptID  string             `json:"prompt_id"`
			Status    string             `json:"status"`
			Usage     store.UsageSummary `json:"usage"`
			Snapshots []metrics.Snapshot `json:"snapshots"`
		}{session.ID, session.PromptID, string(session.Status), usage, snapshots})
	},
}

var sessionsExportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Re-export a session's dashboard artifacts from the ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		ledger, err := store.Open(cfg.LedgerPath)
		if err != nil {
			return err
		}
		defer ledger.Close()

		session, err := ledger.Load(args[0])
		if err != nil {
			return err
		}

		dir, err := store.ExportArtifacts(session, cfg.OutputDir)
		if err != nil {
			return err
		}
		fmt.Printf("Artifacts written to %s\n", dir)
		return nil
	},
}

func openLedger() (*store.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return store.Open(cfg.LedgerPath)
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsExportCmd)
}
