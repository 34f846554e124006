package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	pyresolve "github.com/albertocavalcante/go-pyresolve"
	"github.com/albertocavalcante/go-pyresolve/index"
)

const flagStats = "stats"

func newResolveCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve REQUIREMENT...",
		Short: "Resolve requirements and print the installation plan",
		Example: `  pyresolve resolve "requests[socks]>=2.31" rich
  pyresolve resolve --index https://pypi.org/simple -c "urllib3<2" requests -o yaml
  pyresolve resolve --collect-all -o dot numpy pandas | dot -Tsvg > plan.svg`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var extra []pyresolve.Option
			reg := prometheus.NewRegistry()
			if v.GetBool(flagStats) {
				m, err := index.NewMetrics(reg)
				if err != nil {
					return err
				}
				extra = append(extra, pyresolve.WithMetrics(m))
			}

			plan, err := resolve(cmd.Context(), v, args, extra...)
			if v.GetBool(flagStats) {
				if serr := renderStats(cmd.ErrOrStderr(), reg); serr != nil {
					return serr
				}
			}
			if plan == nil {
				return err
			}
			// In collect-all mode a partial plan comes with the failures.
			if rerr := renderPlan(cmd.OutOrStdout(), outputFormat(v.GetString(flagOutput)), plan); rerr != nil {
				return rerr
			}
			return err
		},
	}
	cmd.Flags().StringP(flagOutput, "o", string(outputTable), "output format: "+outputNames())
	cmd.Flags().Bool(flagStats, false, "print index request statistics to stderr")
	return cmd
}
