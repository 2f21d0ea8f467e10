package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/cloo-solutions/kbindex/internal/domain"
	"github.com/spf13/cobra"
)

func IndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index an entity's text",
		Long:  "Replace the entity's namespace with chunks derived from the given text. Reads stdin when --file is - or omitted.",
		RunE:  runIndex,
	}

	cmd.Flags().StringP("entity", "e", "", "Entity id (namespace)")
	cmd.Flags().StringP("file", "f", "-", "File to read the text from, - for stdin")
	cmd.Flags().Bool("async", false, "Queue an index job instead of running the pipeline now")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	_ = cmd.MarkFlagRequired("entity")

	return cmd
}

func DeleteIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete-index",
		Short: "Delete an entity's namespace",
		Long:  "Delete every record stored for the entity. A missing namespace counts as deleted.",
		RunE:  runDeleteIndex,
	}

	cmd.Flags().StringP("entity", "e", "", "Entity id (namespace)")
	cmd.Flags().Bool("async", false, "Queue a delete job instead of deleting now")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	_ = cmd.MarkFlagRequired("entity")

	return cmd
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	entityID, _ := cmd.Flags().GetString("entity")
	file, _ := cmd.Flags().GetString("file")
	async, _ := cmd.Flags().GetBool("async")
	outputFormat, _ := cmd.Flags().GetString("output")

	text, err := readText(cmd.InOrStdin(), file)
	if err != nil {
		return err
	}

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if async {
		job, err := a.jobs.EnqueueIndex(ctx, entityID, text)
		if err != nil {
			return fmt.Errorf("failed to enqueue index job: %w", err)
		}
		return writeJob(cmd.OutOrStdout(), job, outputFormat)
	}

	result, runErr := a.indexing.Index(ctx, entityID, text)
	if err := writeResult(cmd.OutOrStdout(), result, outputFormat); err != nil {
		return err
	}
	return runErr
}

func runDeleteIndex(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	entityID, _ := cmd.Flags().GetString("entity")
	async, _ := cmd.Flags().GetBool("async")
	outputFormat, _ := cmd.Flags().GetString("output")

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if async {
		job, err := a.jobs.EnqueueDelete(ctx, entityID)
		if err != nil {
			return fmt.Errorf("failed to enqueue delete job: %w", err)
		}
		return writeJob(cmd.OutOrStdout(), job, outputFormat)
	}

	result, runErr := a.indexing.DeleteIndex(ctx, entityID)
	if err := writeResult(cmd.OutOrStdout(), result, outputFormat); err != nil {
		return err
	}
	return runErr
}

func readText(stdin io.Reader, file string) (string, error) {
	var r io.Reader = stdin
	if file != "" && file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return "", fmt.Errorf("failed to open %s: %w", file, err)
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read text: %w", err)
	}
	return string(data), nil
}

func writeResult(w io.Writer, result *domain.IndexResult, outputFormat string) error {
	if result == nil {
		return nil
	}

	if outputFormat == "json" {
		return writeJSON(w, result)
	}

	if result.Success {
		fmt.Fprintf(w, "%s %s: %s in %s (sentences: %d, clusters: %d, chunks: %d)\n",
			result.Operation, result.EntityID, result.Outcome, result.Duration(),
			result.SentenceCount, result.ClusterCount, result.ChunkCount)
		return nil
	}

	fmt.Fprintf(w, "%s %s: %s in %s [%s] %s\n",
		result.Operation, result.EntityID, result.Outcome, result.FailedIn, result.ErrorCode, result.Error)
	if result.Outcome == domain.RunOutcomeFailedAfterDelete {
		fmt.Fprintf(w, "warning: namespace %s was cleared and holds no records until the next successful run\n", result.EntityID)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(jsonBytes))
	return err
}
