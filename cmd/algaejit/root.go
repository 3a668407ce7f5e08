package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
}

var validFormats = []string{"text", "json"}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "algaejit",
		Short: "Inspect SPIR-V modules prepared for algae injection",
		Long: `algaejit inspects SPIR-V modules whose functions take runtime parameters
as {hash, value} composites: it disassembles modules, lists the runtime
parameters of a function and prints the hashes of parameter names.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			return nil
		},
	}
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log debug output to stderr")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newDisCommand(opts))
	cmd.AddCommand(newReflectCommand(opts))
	cmd.AddCommand(newHashCommand(opts))
	return cmd
}

// logger returns the logger commands report through, writing to the
// command's error output.
func (opts *rootOptions) logger(cmd *cobra.Command) *slog.Logger {
	lvl := slog.LevelWarn
	if opts.Verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: lvl}))
}

// response is the JSON output of all commands.
type response struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
}

// output writes data as JSON when requested, otherwise calls text.
func (opts *rootOptions) output(w io.Writer, data any, text func(w io.Writer) error) error {
	if opts.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response{Status: "ok", Data: data})
	}
	return text(w)
}
