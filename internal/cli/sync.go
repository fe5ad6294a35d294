package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// SyncCmd returns the sync command
func SyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync the metadata catalog for a connection",
		RunE:  runSync,
	}

	cmd.Flags().String("tenant", "", "Tenant ID (required)")
	cmd.Flags().String("connection", "", "Connection ID (required)")
	cmd.Flags().StringSlice("tables", nil, "Tables to sync (default: all)")
	cmd.Flags().Bool("force", false, "Re-sync tables even when fresh")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("connection")

	return cmd
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	app, err := NewApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	tenant, _ := cmd.Flags().GetString("tenant")
	connection, _ := cmd.Flags().GetString("connection")
	tables, _ := cmd.Flags().GetStringSlice("tables")
	force, _ := cmd.Flags().GetBool("force")

	report, err := app.Catalog.Sync(ctx, tenant, connection, tables, force)
	if err != nil {
		return err
	}

	fmt.Printf("synced %d tables\n", len(report.Synced))
	for _, t := range report.Synced {
		fmt.Printf("  %s\n", t)
	}
	if len(report.Failed) > 0 {
		fmt.Printf("failed %d tables\n", len(report.Failed))
		for _, f := range report.Failed {
			fmt.Printf("  %s: %s\n", f.TableName, f.Reason)
		}
	}
	return nil
}
