package main

import (
	"iriclient/internal/dispatcher"

	"github.com/spf13/cobra"
)

func (a *app) callCmd() *cobra.Command {
	var (
		pathArgs  []string
		queryArgs []string
		body      bodyFlags
	)
	cmd := &cobra.Command{
		Use:   "call <operationId>",
		Short: "Invoke a catalog operation",
		Example: `  iri-cli call getFacility
  iri-cli call getSite --path-param site_id=perlmutter
  iri-cli call launchJob --path-param resource_id=RID --body-file job.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := pathParams(pathArgs)
			if err != nil {
				return err
			}
			query, err := queryParams(queryArgs)
			if err != nil {
				return err
			}
			payload, err := body.load(cmd.InOrStdin())
			if err != nil {
				return err
			}

			d, err := a.newDispatcher(cmd.Context(), nil)
			if err != nil {
				return err
			}
			result, err := d.CallOperation(cmd.Context(), dispatcher.CallRequest{
				OperationID: args[0],
				PathParams:  path,
				Query:       query,
				Body:        payload,
			})
			if err != nil {
				return err
			}
			return writeJSON(a.stdout, result, a.v.GetBool("compact"))
		},
	}
	cmd.Flags().StringArrayVar(&pathArgs, "path-param", nil, "path parameter key=value (repeatable)")
	cmd.Flags().StringArrayVar(&queryArgs, "query", nil, "query parameter key=value (repeatable)")
	addBodyFlags(cmd, &body)
	return cmd
}

func (a *app) requestCmd() *cobra.Command {
	var (
		queryArgs []string
		body      bodyFlags
	)
	cmd := &cobra.Command{
		Use:   "request <METHOD> <path>",
		Short: "Send a raw request relative to the base URL",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := queryParams(queryArgs)
			if err != nil {
				return err
			}
			payload, err := body.load(cmd.InOrStdin())
			if err != nil {
				return err
			}

			d, err := a.newDispatcher(cmd.Context(), nil)
			if err != nil {
				return err
			}
			result, err := d.Request(cmd.Context(), args[0], args[1], query, payload)
			if err != nil {
				return err
			}
			return writeJSON(a.stdout, result, a.v.GetBool("compact"))
		},
	}
	cmd.Flags().StringArrayVar(&queryArgs, "query", nil, "query parameter key=value (repeatable)")
	addBodyFlags(cmd, &body)
	return cmd
}

func addBodyFlags(cmd *cobra.Command, body *bodyFlags) {
	cmd.Flags().StringVar(&body.json, "body-json", "", "request body as inline JSON")
	cmd.Flags().StringVar(&body.file, "body-file", "", "request body JSON file, - for stdin")
	cmd.MarkFlagsMutuallyExclusive("body-json", "body-file")
}
