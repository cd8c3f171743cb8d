// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func ingestCmd(flags *globalFlags) *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Add documents to a relay's knowledge store",
		Long: "Send text documents to the backend's /ingest endpoint. Each file\n" +
			"becomes one document. Use --text to send a literal string.",
		Example: "  stockchat ingest notes/earnings.md\n" +
			"  stockchat ingest --text \"NVIDIA reported record data center revenue.\"",
		RunE: func(cmd *cobra.Command, args []string) error {
			if text == "" && len(args) == 0 {
				return errors.New("nothing to ingest: pass files or --text")
			}
			e, err := flags.load(false)
			if err != nil {
				return err
			}
			defer e.log.Sync()

			docs := make([]document, 0, len(args)+1)
			if text != "" {
				docs = append(docs, document{name: "--text", text: text})
			}
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				docs = append(docs, document{name: path, text: string(data)})
			}
			return runIngest(cmd.Context(), e, docs, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&text, "text", "t", "", "document text")
	return cmd
}

type document struct {
	name string
	text string
}

// runIngest posts each document in order and stops at the first failure.
func runIngest(ctx context.Context, e *env, docs []document, out io.Writer) error {
	client := e.client()
	for _, doc := range docs {
		msg, err := client.Ingest(ctx, e.cfg.APIKey, doc.text)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", doc.name, err)
		}
		fmt.Fprintf(out, "%s: %s\n", doc.name, msg)
	}
	return nil
}
