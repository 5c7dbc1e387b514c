package main

import (
	"github.com/spf13/cobra"
)

func refreshCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Fetch the feed once and overwrite the local snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.sched.RunOnce(cmd.Context())
		},
	}
}
