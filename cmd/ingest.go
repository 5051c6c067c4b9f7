package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Runs one ingestion cycle over all registered sources",
		Long: `Reads the staged raw documents for every registered source, extracts
postings with the per-site parsers, and merges new posts and locations
into the canonical store. Per-source failures are reported without
aborting the remaining sources.`,
		RunE: runIngestCommand,
	}
}

func runIngestCommand(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := a.Logger()

	report, runErr := a.Engine().Run(cmd.Context())
	total := report.Totals()
	logger.Info("ingestion cycle finished",
		zap.Int("sources", len(report.Sources)),
		zap.Int("documents", total.Documents),
		zap.Int("candidates", total.Candidates),
		zap.Int("skipped", total.Skipped),
		zap.Int("new_posts", total.NewPosts),
		zap.Int("new_locations", total.NewLocations),
		zap.Duration("elapsed", report.Finished.Sub(report.Started)),
	)
	for _, s := range report.Sources {
		if s.ErrorText != "" {
			logger.Warn("source finished with errors",
				zap.String("source", s.Source),
				zap.String("status", string(s.Status)),
				zap.String("error", s.ErrorText),
			)
		}
	}
	if runErr != nil {
		return fmt.Errorf("ingestion cycle: %w", runErr)
	}
	return nil
}
