package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/teknolabs/vocameet-server/internal/auth"
	"github.com/teknolabs/vocameet-server/internal/config"
	"github.com/teknolabs/vocameet-server/internal/model"
	"github.com/teknolabs/vocameet-server/internal/room"
	"github.com/teknolabs/vocameet-server/internal/sessionid"
	"github.com/teknolabs/vocameet-server/internal/util"
)

type signingLoader func() (*config.Signing, error)

func newRootCmd(load signingLoader) *cobra.Command {
	root := &cobra.Command{
		Use:   "tokenctl",
		Short: "Mint and inspect vocameet session tokens and room grants",
		Long: `tokenctl signs and verifies the tokens the server hands to browsers.

Settings come from the same environment variables as the server:
SESSION_SIGNING_SECRET (or NEXTAUTH_SECRET), LIVEKIT_URL, LIVEKIT_API_KEY,
LIVEKIT_API_SECRET and PARTICIPANT_POLICY.`,
		SilenceUsage: true,
	}

	root.AddCommand(newSessionIDCmd())
	root.AddCommand(newGenKeyCmd())
	root.AddCommand(newIssueSessionCmd(load))
	root.AddCommand(newVerifySessionCmd(load))
	root.AddCommand(newIssueGrantCmd(load))
	root.AddCommand(newVerifyGrantCmd(load))
	return root
}

func newSessionIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessionid",
		Short: "Print a fresh session identifier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), sessionid.NewStore(nil).GetOrCreate(cmd.Context()))
			return err
		},
	}
}

func newGenKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gen-key",
		Short: "Print 32 random bytes as hex, usable as ENCRYPTION_KEY or a signing secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := util.GenerateToken()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), key)
			return err
		},
	}
}

type callerFlags struct {
	email       string
	name        string
	picture     string
	sessionGUID string
}

func (f *callerFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.email, "email", "", "caller email (required)")
	cmd.Flags().StringVar(&f.name, "name", "", "caller display name")
	cmd.Flags().StringVar(&f.picture, "picture", "", "caller avatar URL")
	cmd.Flags().StringVar(&f.sessionGUID, "session", "", "session identifier (default: a fresh one)")
	_ = cmd.MarkFlagRequired("email")
}

func (f *callerFlags) session(cmd *cobra.Command) string {
	if f.sessionGUID != "" {
		return f.sessionGUID
	}
	return sessionid.NewStore(nil).GetOrCreate(cmd.Context())
}

func newSigner(load signingLoader) (*auth.Signer, error) {
	sig, err := load()
	if err != nil {
		return nil, err
	}
	return auth.NewSigner(sig.SessionSigningSecret)
}

func newLocalIssuer(load signingLoader) (*room.LocalIssuer, error) {
	sig, err := load()
	if err != nil {
		return nil, err
	}
	return room.NewLocalIssuer(sig.LiveKitURL, sig.LiveKitAPIKey, sig.LiveKitAPISecret, model.ParticipantPolicy(sig.ParticipantPolicy)), nil
}

func newIssueSessionCmd(load signingLoader) *cobra.Command {
	var caller callerFlags

	cmd := &cobra.Command{
		Use:   "issue-session",
		Short: "Sign a one hour session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := newSigner(load)
			if err != nil {
				return err
			}
			guid := caller.session(cmd)
			issued, err := signer.Issue(&model.Identity{Name: caller.name, Email: caller.email, Picture: caller.picture}, guid)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"token":       issued.Token,
				"expiresAt":   issued.ExpiresAt,
				"sessionGuid": guid,
			})
		},
	}
	caller.register(cmd)
	return cmd
}

func newVerifySessionCmd(load signingLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "verify-session TOKEN",
		Short: "Verify a session token and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := newSigner(load)
			if err != nil {
				return err
			}
			claims, err := signer.Verify(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), claims)
		},
	}
}

func newIssueGrantCmd(load signingLoader) *cobra.Command {
	var (
		caller callerFlags
		req    room.GrantRequest
		agent  string
	)

	cmd := &cobra.Command{
		Use:   "issue-grant",
		Short: "Sign a fifteen minute room grant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			issuer, err := newLocalIssuer(load)
			if err != nil {
				return err
			}
			if agent != "" {
				req.RoomConfig = &room.RoomConfig{Agents: []room.AgentDispatch{{AgentName: agent}}}
			}
			details, err := issuer.IssueRoomGrant(cmd.Context(), &auth.Claims{
				Email:       caller.email,
				Name:        caller.name,
				Picture:     caller.picture,
				SessionGUID: caller.session(cmd),
			}, req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), details)
		},
	}
	caller.register(cmd)
	cmd.Flags().StringVar(&req.RoomName, "room", "", "room name (default: generated)")
	cmd.Flags().StringVar(&req.ParticipantIdentity, "identity", "", "participant identity (default: from policy)")
	cmd.Flags().StringVar(&req.ParticipantName, "participant-name", "", "participant display name (default: from policy)")
	cmd.Flags().StringVar(&req.Voice, "voice", "", "voice preset passed to the agent")
	cmd.Flags().StringVar(&agent, "agent", "", "agent to dispatch into the room")
	return cmd
}

func newVerifyGrantCmd(load signingLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "verify-grant TOKEN",
		Short: "Verify a room grant and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			issuer, err := newLocalIssuer(load)
			if err != nil {
				return err
			}
			claims, err := issuer.Verify(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), claims)
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
