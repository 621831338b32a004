package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xhad/tutor/pkg/config"
	"github.com/xhad/tutor/pkg/pipeline"
)

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Load, chunk and embed the documents folder",
		Long: `Build the retrieval index from the documents folder and any configured seed URLs.
With the pgvector backend the index is written to PostgreSQL.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if !cfg.HasCredential() {
				return fmt.Errorf("no credential for provider %s: set the API key to build embeddings", cfg.LLM.Provider)
			}

			progress, finish := embedProgress(" Embedding chunks")
			p, err := newPipeline(cmd.Context(), cfg, progress)
			if err != nil {
				return err
			}
			defer p.Close()

			err = initialize(cmd.Context(), p)
			finish()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch p.State() {
			case pipeline.StateReadyWithDocs:
				backend := cfg.Index.Backend
				if backend == config.BackendPgvector {
					backend = fmt.Sprintf("%s (table %s)", backend, cfg.Index.TableName)
				}
				fmt.Fprintln(out, color.GreenString("✓ Indexed documents from %s into %s", cfg.Documents.Path, backend))
			default:
				fmt.Fprintln(out, color.YellowString("No documents indexed from %s; the tutor will answer from general knowledge", cfg.Documents.Path))
			}
			return nil
		},
	}
}
