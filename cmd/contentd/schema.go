package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/contentd/contentd/internal/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect content type schemas",
}

var schemaCheckCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Validate a content type file and list its types",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := schema.Load(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, slug := range reg.Slugs() {
			ct, _ := reg.Get(slug)
			fmt.Fprintf(out, "%s (%s): %d field(s), status %s\n", ct.Slug, ct.SingularSlug, ct.Fields.Len(), ct.DefaultStatus)
		}
		if sc := reg.Scoping; sc.RestrictedScope != "" {
			fmt.Fprintf(out, "scoping: %s restricted, %s overrides, %d rule(s)\n", sc.RestrictedScope, sc.OverrideScope, len(sc.Rules))
		}
		return nil
	},
}

func init() {
	schemaCmd.AddCommand(schemaCheckCmd)
}
