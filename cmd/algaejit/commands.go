package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/soypat/algae/jit"
	"github.com/soypat/algae/spirv"
	"github.com/soypat/algae/spvfi"
	"github.com/spf13/cobra"
)

func loadModule(path string) (*spirv.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read module: %w", err)
	}
	m, err := spirv.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func newDisCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dis <module.spv>",
		Short: "Disassemble a SPIR-V module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadModule(args[0])
			if err != nil {
				return err
			}
			opts.logger(cmd).Debug("module loaded", "path", args[0], "bound", m.Header.Bound)
			return spirv.Disassemble(cmd.OutOrStdout(), m)
		},
	}
}

type parameterInfo struct {
	Index       int    `json:"index"`
	Hash        uint32 `json:"hash"`
	Type        string `json:"type"`
	CompositeID uint32 `json:"composite_id"`
	TypeID      uint32 `json:"type_id"`
}

type reflectResult struct {
	Function   string          `json:"function"`
	Index      int             `json:"index"`
	Parameters []parameterInfo `json:"parameters"`
}

func newReflectCommand(opts *rootOptions) *cobra.Command {
	var function, config string
	cmd := &cobra.Command{
		Use:   "reflect <module.spv>",
		Short: "List the runtime parameters of a function",
		Long: `List the runtime parameters of a function: the name hash and type of
each {hash, value} composite passed to it. The function is selected by its
debug name, given by --function or the function field of --config.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			if config != "" {
				cfg, err := jit.LoadConfig(config)
				if err != nil {
					return err
				}
				if path == "" {
					path = cfg.Module
				}
				if cfg.Function != "" && !cmd.Flags().Changed("function") {
					function = cfg.Function
				}
			}
			if path == "" {
				return fmt.Errorf("no module given")
			}
			m, err := loadModule(path)
			if err != nil {
				return err
			}
			fi, err := spvfi.Reflect(m, function, spvfi.WithLogger(opts.logger(cmd)))
			if err != nil {
				return err
			}
			res := reflectResult{Function: function, Index: fi.Function, Parameters: []parameterInfo{}}
			for i, p := range fi.Parameters {
				res.Parameters = append(res.Parameters, parameterInfo{
					Index:       i,
					Hash:        p.NameHash,
					Type:        p.Type.String(),
					CompositeID: p.CompositeID,
					TypeID:      p.SpirvTypeID,
				})
			}
			return opts.output(cmd.OutOrStdout(), res, func(w io.Writer) error {
				fmt.Fprintf(w, "function %q (index %d), %d runtime parameters\n", res.Function, res.Index, len(res.Parameters))
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "INDEX\tHASH\tTYPE\tCOMPOSITE\tTYPE ID")
				for _, p := range res.Parameters {
					fmt.Fprintf(tw, "%d\t%#08x\t%s\t%%%d\t%%%d\n", p.Index, p.Hash, p.Type, p.CompositeID, p.TypeID)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&function, "function", jit.DefaultFunction, "debug name of the function")
	cmd.Flags().StringVar(&config, "config", "", "YAML configuration file")
	return cmd
}

type hashEntry struct {
	Name string `json:"name"`
	Hash uint32 `json:"hash"`
}

func newHashCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "hash <name>...",
		Short: "Print the hashes runtime parameter names are matched by",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries := make([]hashEntry, len(args))
			seen := make(map[uint32]string, len(args))
			log := opts.logger(cmd)
			for i, name := range args {
				h := spvfi.SimpleHash(name)
				if other, ok := seen[h]; ok && other != name {
					log.Warn("hash collision", "hash", h, "names", []string{other, name})
				}
				seen[h] = name
				entries[i] = hashEntry{Name: name, Hash: h}
			}
			return opts.output(cmd.OutOrStdout(), entries, func(w io.Writer) error {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				for _, e := range entries {
					fmt.Fprintf(tw, "%s\t%#08x\n", e.Name, e.Hash)
				}
				return tw.Flush()
			})
		},
	}
}
