package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docetl-project/docetl/internal/exporters"
	"github.com/docetl-project/docetl/internal/store"
)

func exportCmd() *cobra.Command {
	var format string
	var gzipOut bool

	cmd := &cobra.Command{
		Use:   "export <document-id> <output-dir>",
		Short: "Export a document's stored chunks to a JSON, CSV, or TXT file.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfigAndLogger(cmd)
			if err != nil {
				return err
			}

			st, err := store.Open(cfg.DBPath, cfg.MasterKey)
			if err != nil {
				return fmt.Errorf("opening metadata store: %w", err)
			}
			defer st.Close()

			ctx := context.Background()
			chunks, err := st.ChunksForDocument(ctx, args[0])
			if err != nil {
				return fmt.Errorf("loading chunks for document %s: %w", args[0], err)
			}
			if len(chunks) == 0 {
				return fmt.Errorf("no stored chunks found for document %s", args[0])
			}

			exp := &exporters.FileExporter{}
			if err := exp.Connect(ctx, map[string]any{"output_path": args[1], "format": format, "gzip": gzipOut}); err != nil {
				return err
			}
			defer exp.Close(ctx)

			if err := exp.BatchInsert(ctx, chunks); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "exported %d chunks to %s\n", len(chunks), args[1])
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "export file format: json, csv, txt")
	cmd.Flags().BoolVar(&gzipOut, "gzip", false, "gzip-compress the exported file")
	return cmd
}
