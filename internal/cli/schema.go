// Package cli renders the kbindexd command tree as JSON for --help-json,
// so scripts driving the daemon can discover commands and required flags.
package cli

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// HelpJSONFlag is the persistent flag that asks for the schema.
const HelpJSONFlag = "help-json"

// FlagSchema describes one local flag of a command.
type FlagSchema struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Type      string `json:"type"`
	Default   string `json:"default,omitempty"`
	Usage     string `json:"usage,omitempty"`
	Required  bool   `json:"required"`
}

// CommandSchema describes a command and its visible subcommands.
type CommandSchema struct {
	Name        string          `json:"name"`
	Path        string          `json:"path"`
	Use         string          `json:"use,omitempty"`
	Short       string          `json:"short,omitempty"`
	Long        string          `json:"long,omitempty"`
	Runnable    bool            `json:"runnable"`
	Flags       []FlagSchema    `json:"flags,omitempty"`
	Subcommands []CommandSchema `json:"subcommands,omitempty"`
}

// Describe builds the schema of cmd and everything below it. Hidden
// commands and cobra's help and completion commands are left out.
func Describe(cmd *cobra.Command) CommandSchema {
	schema := CommandSchema{
		Name:     cmd.Name(),
		Path:     cmd.CommandPath(),
		Use:      cmd.Use,
		Short:    cmd.Short,
		Long:     cmd.Long,
		Runnable: cmd.Runnable(),
	}

	cmd.LocalFlags().VisitAll(func(f *pflag.Flag) {
		if f.Hidden || f.Name == HelpJSONFlag || f.Name == "help" {
			return
		}
		schema.Flags = append(schema.Flags, describeFlag(f))
	})

	for _, sub := range cmd.Commands() {
		if sub.Hidden || sub.Name() == "help" || sub.Name() == "completion" {
			continue
		}
		schema.Subcommands = append(schema.Subcommands, Describe(sub))
	}
	return schema
}

// describeFlag reads Required from the flag annotation set by MarkFlagRequired.
func describeFlag(f *pflag.Flag) FlagSchema {
	fs := FlagSchema{
		Name:      f.Name,
		Shorthand: f.Shorthand,
		Type:      f.Value.Type(),
		Default:   f.DefValue,
		Usage:     f.Usage,
	}
	if vals, ok := f.Annotations[cobra.BashCompOneRequiredFlag]; ok && len(vals) > 0 && vals[0] == "true" {
		fs.Required = true
	}
	return fs
}

// WriteSchema writes the indented schema of cmd to w.
func WriteSchema(w io.Writer, cmd *cobra.Command) error {
	out, err := json.MarshalIndent(Describe(cmd), "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(out, '\n'))
	return err
}

// AddHelpJSONFlag registers --help-json on the root so every command accepts it.
func AddHelpJSONFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool(HelpJSONFlag, false, "Output command schema as JSON")
}

// HelpJSONTarget returns the command that --help-json refers to in args
// (os.Args without the program name), or nil when the flag is absent.
// It runs before cobra parses anything, so required flags and argument
// checks cannot reject the request.
func HelpJSONTarget(root *cobra.Command, args []string) *cobra.Command {
	for i, arg := range args {
		if arg == "--"+HelpJSONFlag {
			return findCommand(root, args[:i])
		}
	}
	return nil
}

// findCommand follows leading command names and stops at the first word
// that is neither a flag nor a subcommand.
func findCommand(cmd *cobra.Command, args []string) *cobra.Command {
	for _, arg := range args {
		if strings.HasPrefix(arg, "-") {
			continue
		}
		next := subcommand(cmd, arg)
		if next == nil {
			return cmd
		}
		cmd = next
	}
	return cmd
}

func subcommand(cmd *cobra.Command, name string) *cobra.Command {
	for _, sub := range cmd.Commands() {
		if sub.Name() == name || sub.HasAlias(name) {
			return sub
		}
	}
	return nil
}
