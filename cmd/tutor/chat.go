package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xhad/tutor/pkg/llm"
	"github.com/xhad/tutor/pkg/pipeline"
)

const cliSession = "cli"

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the tutor in the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
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
			if !p.Ready() {
				return fmt.Errorf("tutor not ready: set the API key for provider %s", cfg.LLM.Provider)
			}

			stream, _ := cmd.Flags().GetBool("stream")
			return chatLoop(cmd.Context(), p, cmd.InOrStdin(), cmd.OutOrStdout(), stream)
		},
	}

	cmd.Flags().Bool("stream", true, "Stream answers as they are generated")
	return cmd
}

func chatLoop(ctx context.Context, p *pipeline.Pipeline, in io.Reader, out io.Writer, stream bool) error {
	fmt.Fprintln(out, color.CyanString("\nChat with your tutor (type 'exit' to quit, 'reset' to start over)"))

	scanner := bufio.NewScanner(in)
	userPrompt := color.New(color.FgGreen)
	assistantPrompt := color.New(color.FgCyan)

	for {
		userPrompt.Fprint(out, "\nYou: ")
		if !scanner.Scan() {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(query) {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "reset":
			if err := p.Reset(cliSession); err != nil {
				fmt.Fprintln(out, color.RedString("Error: %v", err))
				continue
			}
			fmt.Fprintln(out, color.GreenString("✓ Conversation reset"))
			continue
		}

		var opts []llm.ComposeOption
		if stream {
			first := true
			opts = append(opts, llm.WithStreamHandler(func(ctx context.Context, chunk []byte) error {
				if first {
					assistantPrompt.Fprint(out, "\nTutor: ")
					first = false
				}
				fmt.Fprint(out, string(chunk))
				return nil
			}))

			answer, err := p.Chat(ctx, query, cliSession, opts...)
			if err != nil {
				fmt.Fprintln(out, color.RedString("\nError: %v", err))
				continue
			}
			if first {
				// Nothing was streamed, as with a provider error.
				assistantPrompt.Fprintf(out, "\nTutor: ")
				fmt.Fprint(out, answer.Text)
			}
			fmt.Fprintln(out, color.MagentaString("\n[%s · %d sources]", answer.Emotion, answer.Sources))
			continue
		}

		spinner := getSpinner(" Thinking...")
		answer, err := p.Chat(ctx, query, cliSession)
		spinner.Finish()
		if err != nil {
			fmt.Fprintln(out, color.RedString("\nError: %v", err))
			continue
		}
		assistantPrompt.Fprintf(out, "\nTutor: %s\n", answer.Text)
		fmt.Fprintln(out, color.MagentaString("[%s · %d sources]", answer.Emotion, answer.Sources))
	}

	return scanner.Err()
}
