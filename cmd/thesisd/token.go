package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/thesisdesk/thesisdesk/api"
)

func newTokenCommand(ctx *commandContext) *cobra.Command {
	var (
		user string
		role string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with the configured secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := ctx.config.Auth.JWTSecret
			if secret == "" {
				return errors.New("auth.jwt_secret is not set")
			}
			r := api.Role(role)
			switch r {
			case api.RoleStudent, api.RoleWriter, api.RoleAdmin:
			default:
				return fmt.Errorf("unknown role %q", role)
			}

			tok, err := api.NewJWTIdentity([]byte(secret), ctx.config.Auth.Issuer).Issue(user, r, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "User ID (token subject)")
	cmd.Flags().StringVar(&role, "role", string(api.RoleStudent), "Role (student, writer, admin)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
