package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	rocketchat "github.com/NeboLoop/rocketchat-go-sdk"
)

// messageAction adapts a call taking one message id into a command.
func messageAction(use, short string, call func(*rocketchat.Client, context.Context, string) (*rocketchat.Envelope, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <message-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(nil)
			if err != nil {
				return err
			}
			env, err := call(client, cmd.Context(), args[0])
			return printEnvelope(cmd, env, err)
		},
	}
}

func messageCommands() []*cobra.Command {
	return []*cobra.Command{
		newSendCmd(),
		newEditCmd(),
		messageAction("delete", "Delete a message", (*rocketchat.Client).DeleteMessage),
		messageAction("star", "Star a message", (*rocketchat.Client).StarMessage),
		messageAction("unstar", "Remove your star from a message", (*rocketchat.Client).UnstarMessage),
		messageAction("pin", "Pin a message", (*rocketchat.Client).PinMessage),
		messageAction("unpin", "Unpin a message", (*rocketchat.Client).UnpinMessage),
		newReactCmd(),
	}
}

func newSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <text>...",
		Short: "Post a message to the room",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(nil)
			if err != nil {
				return err
			}
			env, err := client.SendMessage(cmd.Context(), strings.Join(args, " "))
			return printEnvelope(cmd, env, err)
		},
	}
}

func newEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <message-id> <text>...",
		Short: "Replace a message's text",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(nil)
			if err != nil {
				return err
			}
			env, err := client.UpdateMessage(cmd.Context(), args[0], strings.Join(args[1:], " "))
			return printEnvelope(cmd, env, err)
		},
	}
}

func newReactCmd() *cobra.Command {
	var off bool
	cmd := &cobra.Command{
		Use:   "react <message-id> <emoji>",
		Short: "Add or remove an emoji reaction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(nil)
			if err != nil {
				return err
			}
			env, err := client.ReactToMessage(cmd.Context(), args[1], args[0], !off)
			return printEnvelope(cmd, env, err)
		},
	}
	cmd.Flags().BoolVar(&off, "off", false, "remove the reaction instead of adding it")
	return cmd
}

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file to the room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(nil)
			if err != nil {
				return err
			}
			env, err := client.UploadFile(cmd.Context(), args[0])
			return printEnvelope(cmd, env, err)
		},
	}
}
