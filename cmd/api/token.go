package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/webforge/backend/internal/identity"
)

// tokenCmd issues bearer tokens for operators and scripts.
func tokenCmd() *cobra.Command {
	var (
		subject string
		role    string
		team    string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			provider, err := identity.NewJWTProvider(cfg.JWTSecret, cfg.TokenTTL)
			if err != nil {
				return err
			}
			actor := identity.Actor{Role: role}
			if subject == "" {
				actor.ID = uuid.New()
			} else if actor.ID, err = uuid.Parse(subject); err != nil {
				return fmt.Errorf("subject: %w", err)
			}
			if team != "" {
				id, err := uuid.Parse(team)
				if err != nil {
					return fmt.Errorf("team: %w", err)
				}
				actor.TeamID = &id
			}
			tok, err := provider.Issue(actor)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "actor id (random when empty)")
	cmd.Flags().StringVar(&role, "role", identity.RoleMember, "admin or member")
	cmd.Flags().StringVar(&team, "team", "", "team id for members")
	return cmd
}
