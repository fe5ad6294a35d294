package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/datalens/internal/domain"
	"github.com/cloo-solutions/datalens/internal/service"
)

// AskCmd returns the ask command
func AskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question against tenant data",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}

	cmd.Flags().String("tenant", "", "Tenant ID (required)")
	cmd.Flags().String("connection", "", "Connection ID for SQL retrieval")
	cmd.Flags().String("mode", "auto", "Routing mode: auto, sql, or vector")
	cmd.Flags().Bool("trace", false, "Print the routing trace")
	cmd.MarkFlagRequired("tenant")

	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	modeFlag, _ := cmd.Flags().GetString("mode")
	mode, err := domain.ParseQueryMode(modeFlag)
	if err != nil {
		return err
	}

	app, err := NewApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	tenant, _ := cmd.Flags().GetString("tenant")
	connection, _ := cmd.Flags().GetString("connection")

	answer, err := app.Orchestrator.Ask(ctx, service.AskRequest{
		TenantID:     tenant,
		ConnectionID: connection,
		Question:     strings.Join(args, " "),
		Mode:         mode,
	})
	if err != nil {
		return err
	}

	fmt.Println(answer.Text)

	if trace, _ := cmd.Flags().GetBool("trace"); trace {
		fmt.Printf("\nintent: %s, elapsed: %s\n", answer.Intent, answer.Elapsed.Round(time.Millisecond))
		for _, step := range answer.Routing {
			line := fmt.Sprintf("  %-16s %-8s %5dms", step.Agent, step.Status, step.Duration)
			if step.Evidence != "" {
				line += "  " + step.Evidence
			}
			if step.Error != "" {
				line += "  " + step.Error
			}
			fmt.Println(line)
		}
		if answer.SQLResult != nil {
			fmt.Printf("\nsql: %s\n", answer.SQLResult.SQL)
		}
	}
	return nil
}
