package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/taskchain/internal/design"
	"github.com/rendis/taskchain/internal/diagram"
	"github.com/rendis/taskchain/pkg/schema"
)

var graphCmd = &cobra.Command{
	Use:   "graph <file>",
	Short: "Export the action graph of a program",
	Long:  `Compiles the document and prints its action tree as a Mermaid flowchart (graph TD) or a text tree.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		doc, err := design.Load(args[0])
		if err != nil {
			return err
		}
		out, err := renderDocument(doc, format)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringP("format", "f", "mermaid", "output format: mermaid or ascii")
}

func readDocument(path string) (*schema.ProgramDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return design.Parse(data)
}

// renderDocument compiles doc for inspection and renders it.
func renderDocument(doc *schema.ProgramDocument, format string) (string, error) {
	p, err := design.Inspect(doc, app.logger)
	if err != nil {
		return "", err
	}

	model, err := diagram.Build(p, false)
	if err != nil {
		return "", err
	}
	switch format {
	case "mermaid":
		return diagram.RenderMermaid(model), nil
	case "ascii":
		return diagram.RenderASCII(model), nil
	}
	return "", schema.NewErrorf(schema.ErrCodeValidation, "unknown format %q", format)
}
