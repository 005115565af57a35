package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRecordCommand(ctx *commandContext) *cobra.Command {
	recordCmd := &cobra.Command{
		Use:   "record",
		Short: "Control live recordings",
	}

	var guildID int64
	var channelID int64
	var notifyChannelID int64
	var name string

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start recording a voice channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			body := map[string]any{
				"guild_id":                guildID,
				"channel_id":              channelID,
				"notification_channel_id": notifyChannelID,
				"name":                    name,
			}
			var sess sessionView
			if err := client.recordingAction(cmd.Context(), "start", body, &sess); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recording started: %s (%s)\n", sess.Name, sess.ID)
			return nil
		},
	}
	startCmd.Flags().Int64Var(&guildID, "guild", 0, "Guild ID")
	startCmd.Flags().Int64Var(&channelID, "channel", 0, "Voice channel ID")
	startCmd.Flags().Int64Var(&notifyChannelID, "notify-channel", 0, "Channel for the finished report")
	startCmd.Flags().StringVar(&name, "name", "", "Session name")
	_ = startCmd.MarkFlagRequired("guild")
	_ = startCmd.MarkFlagRequired("channel")

	recordCmd.AddCommand(startCmd)
	recordCmd.AddCommand(newRecordActionCommand(ctx, "stop", "Stop recording and queue processing"))
	recordCmd.AddCommand(newRecordActionCommand(ctx, "pause", "Pause the live recording"))
	recordCmd.AddCommand(newRecordActionCommand(ctx, "resume", "Resume a paused recording"))
	return recordCmd
}

func newRecordActionCommand(ctx *commandContext, action, short string) *cobra.Command {
	var guildID int64
	cmd := &cobra.Command{
		Use:   action,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if action == "stop" {
				var sess sessionView
				if err := client.recordingAction(cmd.Context(), action, map[string]any{"guild_id": guildID}, &sess); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recording stopped: %s (%s queued)\n", sess.Name, sess.ID)
				return nil
			}
			if err := client.recordingAction(cmd.Context(), action, map[string]any{"guild_id": guildID}, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recording %sd\n", action)
			return nil
		},
	}
	cmd.Flags().Int64Var(&guildID, "guild", 0, "Guild ID")
	_ = cmd.MarkFlagRequired("guild")
	return cmd
}
