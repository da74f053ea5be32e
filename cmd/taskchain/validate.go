package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rendis/taskchain/internal/design"
	"github.com/rendis/taskchain/pkg/schema"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Check program documents",
	Long:  `Parses each document and reports schema and structural problems without running anything.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		invalid := 0
		for _, path := range args {
			doc, err := readDocument(path)
			if err != nil {
				invalid++
				fmt.Fprintf(out, "%s: %v\n", path, err)
				continue
			}
			res := design.Validate(doc)
			if res.Valid() {
				fmt.Fprintf(out, "%s: ok\n", path)
				continue
			}
			invalid++
			for _, issue := range res.Issues {
				fmt.Fprintf(out, "%s: %s [%s]\n", path, issue, issue.Code)
			}
		}
		if invalid > 0 {
			return schema.NewErrorf(schema.ErrCodeValidation, "%d of %d documents are invalid", invalid, len(args))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
