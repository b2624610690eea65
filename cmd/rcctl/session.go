package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	rocketchat "github.com/NeboLoop/rocketchat-go-sdk"
)

func newLoginCmd() *cobra.Command {
	var accessToken, idToken string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange identity provider tokens for a Rocket.Chat session",
		Long: "login exchanges an access token and id token obtained from the identity provider " +
			"for a Rocket.Chat session and stores it in the session file. Tokens may also be passed " +
			"in $RCCTL_ACCESS_TOKEN and $RCCTL_ID_TOKEN.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens := rocketchat.IdentityTokens{
				AccessToken: envOr(accessToken, "RCCTL_ACCESS_TOKEN"),
				IDToken:     envOr(idToken, "RCCTL_ID_TOKEN"),
			}
			if tokens.AccessToken == "" {
				return fmt.Errorf("an access token is required (--access-token or $RCCTL_ACCESS_TOKEN)")
			}

			client, err := newClient(nil)
			if err != nil {
				return err
			}
			res, err := client.LoginWithIdentityProvider(cmd.Context(), func(context.Context) (rocketchat.IdentityTokens, error) {
				return tokens, nil
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&accessToken, "access-token", "", "identity provider access token")
	cmd.Flags().StringVar(&idToken, "id-token", "", "identity provider id token")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(nil)
			if err != nil {
				return err
			}
			env, err := client.Logout(cmd.Context())
			return printEnvelope(cmd, env, err)
		},
	}
}

func newMeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(nil)
			if err != nil {
				return err
			}
			env, err := client.Me(cmd.Context())
			return printEnvelope(cmd, env, err)
		},
	}
}
