package main

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
)

func newAdminCmd(d deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage administrators",
		RunE:  requireSubcommand,
	}

	var email, name string
	bootstrap := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the first super administrator",
		Long: `Create the first super administrator.

The account is created with a temporary password that must be changed at
first sign-in. The password is printed once and never stored in clear.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(email) == "" || strings.TrimSpace(name) == "" {
				return errors.New("--email and --name are required")
			}
			cfg, err := d.loadConfig()
			if err != nil {
				return err
			}
			svc, closeFn, err := d.bootstrapper(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if closeFn != nil {
				defer closeFn()
			}
			p, credential, err := svc.BootstrapSuper(cmd.Context(), email, name)
			if err != nil {
				return err
			}
			cmd.Printf("Super administrator %s created (id %s)\n", p.Email, p.ID)
			cmd.Printf("Temporary password: %s\n", credential)
			cmd.Println("The password must be changed at first sign-in.")
			return nil
		},
	}
	bootstrap.Flags().StringVar(&email, "email", "", "email address of the administrator")
	bootstrap.Flags().StringVar(&name, "name", "", "full name of the administrator")
	cmd.AddCommand(bootstrap)
	return cmd
}
