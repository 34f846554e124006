package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/albertocavalcante/go-pyresolve/requirement"
)

func newWhyCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "why PACKAGE REQUIREMENT...",
		Short: "Explain why a package is part of the plan",
		Long: `why resolves the given requirements and explains how PACKAGE was selected:
the accumulated specifier, the chosen artifact, every requirement that asked
for it and the dependency chains leading to it from the top level.`,
		Example: `  pyresolve why idna requests
  pyresolve why pysocks "requests[socks]"`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := resolve(cmd.Context(), v, args[1:])
			if plan == nil {
				return err
			}
			g := plan.Graph()
			if g == nil {
				return fmt.Errorf("plan has no dependency graph")
			}
			text, xerr := g.ToExplainText(requirement.Normalize(args[0]))
			if xerr != nil {
				return xerr
			}
			fmt.Fprint(cmd.OutOrStdout(), text)
			return err
		},
	}
}
