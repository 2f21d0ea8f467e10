package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/kbindex/internal/cli"
	"github.com/cloo-solutions/kbindex/internal/cli/admin"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "kbindexd",
		Short:        "Semantic indexing daemon and CLI",
		Long:         "kbindexd chunks entity text by meaning, embeds the chunks and keeps one vector namespace per entity",
		SilenceUsage: true,
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.MigrateCmd())
	rootCmd.AddCommand(admin.IndexCmd())
	rootCmd.AddCommand(admin.DeleteIndexCmd())
	rootCmd.AddCommand(admin.JobsCmd())
	rootCmd.AddCommand(admin.RunsCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if target := cli.HelpJSONTarget(rootCmd, os.Args[1:]); target != nil {
		if err := cli.WriteSchema(os.Stdout, target); err != nil {
			fmt.Fprintf(os.Stderr, "Error generating schema: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
