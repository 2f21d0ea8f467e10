package admin

import (
	"context"
	"fmt"
	"io"

	"github.com/cloo-solutions/kbindex/internal/domain"
	"github.com/cloo-solutions/kbindex/internal/pagination"
	"github.com/cloo-solutions/kbindex/internal/service"
	"github.com/spf13/cobra"
)

func JobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect queued index jobs",
		Long:  "List and show index jobs",
	}

	cmd.AddCommand(JobsListCmd())
	cmd.AddCommand(JobsGetCmd())

	return cmd
}

func JobsListCmd() *cobra.Command {
	var (
		entityID string
		limit    int
		cursor   string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List an entity's index jobs",
		Long:  "List an entity's index jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			ctx := context.Background()

			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			page, err := a.jobs.ListJobs(ctx, service.ListJobsInput{EntityID: entityID, Cursor: cursor, Limit: limit})
			if err != nil {
				return fmt.Errorf("failed to list jobs: %w", err)
			}
			return writeJobPage(cmd.OutOrStdout(), page, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&entityID, "entity", "e", "", "Entity id")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")
	_ = cmd.MarkFlagRequired("entity")

	return cmd
}

func JobsGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one index job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			ctx := context.Background()

			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			job, err := a.jobs.GetJob(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to get job: %w", err)
			}
			return writeJob(cmd.OutOrStdout(), job, outputFormat)
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func RunsCmd() *cobra.Command {
	var (
		entityID string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show the run log of an entity",
		Long:  "Show the most recent index and delete runs of an entity, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			ctx := context.Background()

			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			runs, err := a.runRepo.ListByEntity(ctx, entityID, limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			return writeRuns(cmd.OutOrStdout(), runs, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&entityID, "entity", "e", "", "Entity id")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs")
	_ = cmd.MarkFlagRequired("entity")

	return cmd
}

func jobToMap(job *domain.IndexJob) map[string]interface{} {
	data := map[string]interface{}{
		"id":         job.ID,
		"entity_id":  job.EntityID,
		"action":     job.Action,
		"status":     job.Status,
		"retries":    job.Retries,
		"created_at": job.CreatedAt,
	}
	if job.Error != "" {
		data["error"] = job.Error
	}
	if job.ProcessedAt != nil {
		data["processed_at"] = *job.ProcessedAt
	}
	return data
}

func writeJob(w io.Writer, job *domain.IndexJob, outputFormat string) error {
	if outputFormat == "json" {
		return writeJSON(w, jobToMap(job))
	}
	fmt.Fprintf(w, "Job %s: %s %s (%s, retries: %d)\n", job.ID, job.Action, job.EntityID, job.Status, job.Retries)
	if job.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", job.Error)
	}
	return nil
}

func writeJobPage(w io.Writer, page *pagination.PageResult[*domain.IndexJob], outputFormat string) error {
	if outputFormat == "json" {
		items := make([]map[string]interface{}, len(page.Items))
		for i, job := range page.Items {
			items[i] = jobToMap(job)
		}
		return writeJSON(w, map[string]interface{}{
			"items":    items,
			"cursor":   page.Cursor,
			"has_more": page.HasMore,
		})
	}

	if len(page.Items) == 0 {
		fmt.Fprintln(w, "No jobs found")
		return nil
	}
	fmt.Fprintln(w, "Jobs:")
	for _, job := range page.Items {
		fmt.Fprintf(w, "  %s: %s %s (created: %s)\n", job.ID, job.Action, job.Status, job.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	if page.HasMore && page.Cursor != "" {
		fmt.Fprintf(w, "\nMore results available. Use --cursor %s\n", page.Cursor)
	}
	return nil
}

func writeRuns(w io.Writer, runs []*domain.IndexResult, outputFormat string) error {
	if outputFormat == "json" {
		return writeJSON(w, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found")
		return nil
	}
	for _, run := range runs {
		if err := writeResult(w, run, outputFormat); err != nil {
			return err
		}
	}
	return nil
}
