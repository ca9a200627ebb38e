package main

import (
	"iriclient/internal/health"

	"github.com/spf13/cobra"
)

func (a *app) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the API is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.newDispatcher(cmd.Context(), nil)
			if err != nil {
				return err
			}
			checker := health.NewChecker(d, d.BaseURL())
			checker.SetTimeout(a.clientConfig().Timeout)

			resp := checker.Readiness(cmd.Context())
			if err := writeJSON(a.stdout, resp, a.v.GetBool("compact")); err != nil {
				return err
			}
			if !resp.IsHealthy() {
				return &exitError{code: ExitCodeError}
			}
			return nil
		},
	}
}
