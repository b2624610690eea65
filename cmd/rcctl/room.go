package main

import (
	"context"

	"github.com/spf13/cobra"

	rocketchat "github.com/NeboLoop/rocketchat-go-sdk"
)

// roomQuery adapts a read-only room call into a command.
func roomQuery(use, short string, call func(*rocketchat.Client, context.Context) (*rocketchat.Envelope, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(nil)
			if err != nil {
				return err
			}
			env, err := call(client, cmd.Context())
			return printEnvelope(cmd, env, err)
		},
	}
}

func roomCommands() []*cobra.Command {
	return []*cobra.Command{
		roomQuery("info", "Show the room", (*rocketchat.Client).ChannelInfo),
		roomQuery("members", "List the room's members", (*rocketchat.Client).ChannelMembers),
		roomQuery("starred", "List messages you starred in the room", (*rocketchat.Client).StarredMessages),
		roomQuery("pinned", "List the room's pinned messages", (*rocketchat.Client).PinnedMessages),
		newHistoryCmd(),
	}
}

func newHistoryCmd() *cobra.Command {
	var anonymous bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the room's messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(nil)
			if err != nil {
				return err
			}
			env, err := client.Messages(cmd.Context(), anonymous)
			return printEnvelope(cmd, env, err)
		},
	}
	cmd.Flags().BoolVar(&anonymous, "anonymous", false, "use the anonymous read endpoint")
	return cmd
}
