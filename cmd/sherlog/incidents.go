package main

import (
	"github.com/spf13/cobra"

	"github.com/codeready-toolchain/sherlog/pkg/shell"
)

func newIncidentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "incidents",
		Aliases: []string{"incident", "inc"},
		Short:   "Browse recorded incidents",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List incidents by id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			digests, err := a.incidents.ListIncidents(cmd.Context())
			if err != nil {
				return err
			}
			return shell.RenderIncidentList(cmd.OutOrStdout(), digests)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <incident-id>",
		Short: "Print one incident record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			inc, err := a.incidents.GetIncident(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return shell.RenderIncident(cmd.OutOrStdout(), inc)
		},
	})

	return cmd
}
