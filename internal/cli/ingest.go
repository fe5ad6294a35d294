package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// IngestCmd returns the ingest command
func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Ingest a document into the vector store",
		Long:  "Ingest a document from a file, or from stdin when no file is given",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runIngest,
	}

	cmd.Flags().String("tenant", "", "Tenant ID (required)")
	cmd.Flags().StringToString("metadata", nil, "Metadata key=value pairs attached to every chunk")
	cmd.MarkFlagRequired("tenant")

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	var content []byte
	var err error
	source := "stdin"
	if len(args) == 1 {
		content, err = os.ReadFile(args[0])
		source = args[0]
	} else {
		content, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", source, err)
	}

	app, err := NewApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	tenant, _ := cmd.Flags().GetString("tenant")
	metadata, _ := cmd.Flags().GetStringToString("metadata")
	if metadata == nil {
		metadata = map[string]string{}
	}
	if source != "stdin" {
		metadata["source"] = source
	}

	result, err := app.Ingest.Ingest(ctx, tenant, string(content), metadata)
	if err != nil {
		return err
	}

	fmt.Printf("document %s: %d chunks stored\n", result.DocumentID, len(result.ChunkIDs))
	if len(result.FailedChunks) > 0 {
		fmt.Printf("warning: %d chunks failed: %v\n", len(result.FailedChunks), result.FailedChunks)
	}
	return nil
}
