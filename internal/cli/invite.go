package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcoot/chessrelay/internal/api/request"
	"github.com/mcoot/chessrelay/internal/api/response"
	"github.com/mcoot/chessrelay/internal/model"
)

func newInviteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invite",
		Short: "Invitation commands",
	}

	cmd.AddCommand(newInviteSendCmd())
	cmd.AddCommand(newInviteRespondCmd("accept", true))
	cmd.AddCommand(newInviteRespondCmd("refuse", false))

	return cmd
}

func newInviteSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <username>",
		Short: "Invite an online player to a game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result model.InvitationView

			req := request.SendInvitationRequest{ReceiverUsername: args[0]}
			if err := client.Post(cmd.Context(), "/api/v1/invitations", req, &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}
}

func newInviteRespondCmd(use string, accepted bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <invitation-id>",
		Short: fmt.Sprintf("%s a pending invitation", strings.ToUpper(use[:1])+use[1:]),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := model.ParseInvitationID(args[0])
			if err != nil {
				return err
			}

			var result response.Invitation
			req := request.RespondInvitationRequest{Accepted: accepted}
			if err := client.Post(cmd.Context(), fmt.Sprintf("/api/v1/invitations/%s/respond", id), req, &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}
}
