package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/born-ml/n2s/internal/backend/cpu"
	"github.com/born-ml/n2s/internal/backend/webgpu"
	"github.com/born-ml/n2s/internal/m1"
	"github.com/born-ml/n2s/internal/schema"
	"github.com/born-ml/n2s/internal/tensor"
)

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Load the model and print parameter counts per component",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			return onDevice(a.cfg.Device,
				func(b *cpu.CPUBackend) error { return inspect(cmd, a, b, w) },
				func(b *webgpu.Backend) error { return inspect(cmd, a, b, w) },
			)
		},
	}
}

func inspect[B tensor.Backend](cmd *cobra.Command, a *app, backend B, w io.Writer) error {
	resolver, err := a.resolver()
	if err != nil {
		return err
	}
	model, err := loadModel(cmd.Context(), a, resolver, backend)
	if err != nil {
		return err
	}
	return writeParameterCounts(w, model)
}

func writeParameterCounts[B tensor.Backend](w io.Writer, model *m1.Model[B]) error {
	counts := model.ParameterCounts()
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	cfg := model.Encoder.Config()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "encoder\t%s (hidden %d, layers %d, heads %d)\n",
		cfg.ModelType, cfg.HiddenSize, cfg.NumHiddenLayers, cfg.NumAttentionHeads)
	total := 0
	for _, name := range names {
		fmt.Fprintf(tw, "%s\t%d\n", name, counts[name])
		total += counts[name]
	}
	fmt.Fprintf(tw, "total\t%d\n", total)
	return tw.Flush()
}

func newTablesCmd(a *app) *cobra.Command {
	var schemaName string
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List database tables and their headers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, err := schema.Open(ctx, a.cfg.Database)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			repo := schema.NewRepository(db)
			tables, err := repo.Tables(ctx, schemaName)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, table := range tables {
				if schemaName != "" {
					table = schemaName + "." + table
				}
				headers, err := repo.Headers(ctx, table)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%v\n", table, headers)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&schemaName, "schema", "", "database schema (default public)")
	return cmd
}
