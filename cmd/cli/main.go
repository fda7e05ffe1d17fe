package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"hypoforge/app"
	"hypoforge/domain/hypothesis"
	"hypoforge/internal"
	"hypoforge/internal/config"
	"hypoforge/internal/container"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "hypoforge-cli",
		Short:         "Generate and test hypotheses about the demo datasets from a terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newDemosCmd(),
		newHypothesesCmd(),
		newTestCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openContainer loads configuration and wires the same components as the server
func openContainer(ctx context.Context) (*container.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	internal.DefaultLogger.SetLevel(internal.ParseLevel(cfg.LogLevel))
	return container.New(ctx, cfg)
}

func newDemosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demos",
		Short: "List the demo datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openContainer(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Shutdown(context.Background())

			title := color.New(color.Bold)
			for i, demo := range c.Catalog.Demos {
				fmt.Fprintf(cmd.OutOrStdout(), "%2d  %s\n", i, title.Sprint(demo.Title))
				fmt.Fprintf(cmd.OutOrStdout(), "    %s\n", demo.Body)
			}
			return nil
		},
	}
}

func newHypothesesCmd() *cobra.Command {
	var audience string

	cmd := &cobra.Command{
		Use:   "hypotheses <demo>",
		Short: "Stream hypotheses about a demo dataset",
		Long: `Stream hypotheses about a demo dataset. <demo> is an index from
"hypoforge-cli demos" or a demo title.

Example: hypoforge-cli hypotheses 0 --audience "You are a retail analyst."`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openContainer(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Shutdown(context.Background())

			_, err = generate(cmd, c, args[0], audience)
			return err
		},
	}

	cmd.Flags().StringVar(&audience, "audience", "", "Hypothesis instructions (default: the demo's own)")
	return cmd
}

func newTestCmd() *cobra.Command {
	var analysisPrompt string
	var benefit string

	cmd := &cobra.Command{
		Use:   "test <demo> <hypothesis>",
		Short: "Test one hypothesis against a demo dataset",
		Long: `Ask the model for a statistical test of <hypothesis>, run it in the
python sandbox and stream the interpretation.

Example: hypoforge-cli test 0 "Weekend sales exceed weekday sales"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := openContainer(ctx)
			if err != nil {
				return err
			}
			defer c.Shutdown(context.Background())

			demo, _, err := c.Catalog.Find(args[0])
			if err != nil {
				return err
			}
			credential, err := c.Tokens.Token(ctx, nil)
			if err != nil {
				return err
			}
			ds, err := c.Loader.Load(ctx, demo.Href)
			if err != nil {
				return err
			}

			run, err := c.Coordinator.Run(ctx, app.TestInput{
				SessionID:      uuid.New(),
				Demo:           demo.Title,
				Hypothesis:     hypothesis.Hypothesis{Hypothesis: args[1], Benefit: benefit},
				Dataset:        ds,
				Summary:        c.Pipeline.Summarize(ds),
				AnalysisPrompt: analysisPrompt,
				Credential:     credential,
			}, newTerminalSink(cmd.OutOrStdout()))
			if err != nil {
				return err
			}
			color.New(color.Faint).Fprintf(cmd.OutOrStdout(), "\nrun %s finished in %.1fs\n", run.ID, run.Duration().Seconds())
			return nil
		},
	}

	cmd.Flags().StringVar(&analysisPrompt, "analysis-prompt", "", "Analysis instructions (default: prompts/analysis.txt or built-in)")
	cmd.Flags().StringVar(&benefit, "benefit", "", "Why the hypothesis matters, passed along for context")
	return cmd
}

// generate streams hypotheses for demoRef, printing each one once it closes
func generate(cmd *cobra.Command, c *container.Container, demoRef, audience string) (hypothesis.Set, error) {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	demo, _, err := c.Catalog.Find(demoRef)
	if err != nil {
		return nil, err
	}
	if audience == "" {
		audience = demo.Audience
	}
	credential, err := c.Tokens.Token(ctx, nil)
	if err != nil {
		return nil, err
	}
	ds, err := c.Loader.Load(ctx, demo.Href)
	if err != nil {
		return nil, err
	}
	summary := c.Pipeline.Summarize(ds)
	color.New(color.Faint).Fprintln(out, summary)

	var last hypothesis.Set
	heading := color.New(color.Bold, color.FgCyan)
	for set, err := range c.Pipeline.Generate(ctx, app.GenerateRequest{
		SessionID:      uuid.New(),
		Summary:        summary,
		AudiencePrompt: audience,
		Credential:     credential,
	}) {
		if err != nil {
			return last, err
		}
		for i := len(last); i < len(set); i++ {
			heading.Fprintf(out, "\n%d. %s\n", i+1, set[i].Hypothesis)
			fmt.Fprintf(out, "   %s\n", set[i].Benefit)
		}
		last = set
	}
	return last, nil
}
