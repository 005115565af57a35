package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect recorded sessions",
	}
	sessionsCmd.AddCommand(newSessionsListCommand(ctx))
	sessionsCmd.AddCommand(newSessionsShowCommand(ctx))
	return sessionsCmd
}

func newSessionsListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			sessions, err := client.listSessions(cmd.Context(), strings.TrimSpace(statusFilter))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No sessions found")
				return nil
			}

			colorize := shouldColorize(out)
			rows := make([][]string, 0, len(sessions))
			for _, sess := range sessions {
				rows = append(rows, []string{
					shortID(sess.ID),
					sess.Name,
					colorizeStatus(sess.Status, colorize),
					formatSeconds(sess.DurationSeconds),
					formatCents(sess.TranscriptionCostCents + sess.LLMCostCents),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Name", "Status", "Duration", "Cost"},
				rows,
				3, 4,
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&statusFilter, "status", "", "Filter by session status")
	return cmd
}

func newSessionsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show one session in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			sess, err := client.getSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader(sess.Name, colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintf(out, "  ID:            %s\n", sess.ID)
			fmt.Fprintf(out, "  Guild:         %d\n", sess.GuildID)
			fmt.Fprintf(out, "  Status:        %s\n", colorizeStatus(sess.Status, colorize))
			fmt.Fprintf(out, "  Started:       %s\n", sess.StartedAt)
			if sess.EndedAt != "" {
				fmt.Fprintf(out, "  Ended:         %s\n", sess.EndedAt)
			}
			fmt.Fprintf(out, "  Duration:      %s\n", formatSeconds(sess.DurationSeconds))
			if sess.MergedAudioPath != "" {
				fmt.Fprintf(out, "  Merged audio:  %s\n", sess.MergedAudioPath)
			}
			fmt.Fprintf(out, "  Transcription: %s\n", formatCents(sess.TranscriptionCostCents))
			fmt.Fprintf(out, "  Analysis:      %s\n", formatCents(sess.LLMCostCents))
			if sess.ErrorMessage != "" {
				fmt.Fprintf(out, "  Error:         %s\n", sess.ErrorMessage)
			}
			return nil
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
