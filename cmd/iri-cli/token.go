package main

import (
	"fmt"

	"iriclient/internal/auth"

	"github.com/spf13/cobra"
)

func (a *app) tokenCmd() *cobra.Command {
	var showResponse bool
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Obtain an access token with private_key_jwt client credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := auth.LoadPrivateKeyJWT(a.authFiles(a.clientConfig()))
			if err != nil {
				return err
			}
			tok, err := src.Exchange(cmd.Context())
			if err != nil {
				return err
			}
			if showResponse {
				return writeJSON(a.stdout, auth.Describe(tok), a.v.GetBool("compact"))
			}
			_, err = fmt.Fprintln(a.stdout, tok.AccessToken)
			return err
		},
	}
	cmd.Flags().BoolVar(&showResponse, "show-response", false, "print the token response instead of the bare token")
	return cmd
}
