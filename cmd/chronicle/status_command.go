package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Chronicle Daemon", colorize) {
				fmt.Fprintln(out, line)
			}
			running := "stopped"
			if status.Running {
				running = "running"
			}
			fmt.Fprintf(out, "  State:             %s\n", running)
			fmt.Fprintf(out, "  Active recordings: %d\n", status.ActiveRecordings)
			fmt.Fprintf(out, "  Database:          %s\n", status.DatabasePath)
			fmt.Fprintf(out, "  Lock file:         %s\n", status.LockFilePath)

			if len(status.SessionCounts) > 0 {
				fmt.Fprintln(out)
				statuses := make([]string, 0, len(status.SessionCounts))
				for name := range status.SessionCounts {
					statuses = append(statuses, name)
				}
				sort.Strings(statuses)
				for _, name := range statuses {
					fmt.Fprintf(out, "  %-13s %d\n", name+":", status.SessionCounts[name])
				}
			}

			if len(status.Dependencies) > 0 {
				fmt.Fprintln(out)
				for _, line := range renderSectionHeader("Dependencies", colorize) {
					fmt.Fprintln(out, line)
				}
				for _, dep := range status.Dependencies {
					state := "ok"
					if !dep.Available {
						state = "missing"
						if dep.Detail != "" {
							state = dep.Detail
						}
					}
					if colorize {
						color := ansiGreen
						if !dep.Available {
							color = ansiRed
						}
						state = color + state + ansiReset
					}
					fmt.Fprintf(out, "  %-18s %s\n", dep.Name+":", state)
				}
			}
			return nil
		},
	}
}
