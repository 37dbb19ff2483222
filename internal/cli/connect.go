package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/spf13/cobra"

	"github.com/groupflight/flightgroup/internal/model"
	"github.com/groupflight/flightgroup/internal/protocol"
)

type connectOptions struct {
	name     string
	group    string
	pilotID  string
	secret   string
	avatar   string
	tierHash string
	count    int
	chat     bool
}

func newConnectCmd() *cobra.Command {
	var opts connectOptions

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Join a group over the websocket and print its traffic",
		Long: `Open a websocket connection, authenticate as a pilot and print every frame
the server sends.

Without --pilot-id a new pilot is registered; the auth response carries the
pilot id and secret to reuse on later runs. With --chat each line read from
stdin is sent to the group as a chat message.

Press Ctrl+C to disconnect.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.name == "" {
				return errors.New("--name is required")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runConnect(ctx, opts, NewOutput(cfg.Output, cmd.OutOrStdout()), cmd.InOrStdin())
		},
	}

	cmd.Flags().StringVar(&opts.name, "name", "", "Pilot name")
	cmd.Flags().StringVar(&opts.group, "group", "", "Group to join (empty for a new group)")
	cmd.Flags().StringVar(&opts.pilotID, "pilot-id", "", "Existing pilot id to reauthenticate")
	cmd.Flags().StringVar(&opts.secret, "secret", "", "Secret of the existing pilot")
	cmd.Flags().StringVar(&opts.avatar, "avatar", "", "Avatar hash")
	cmd.Flags().StringVar(&opts.tierHash, "tier-hash", "", "Tier table key (see 'tier hash')")
	cmd.Flags().IntVar(&opts.count, "count", 0, "Exit after this many frames (0 runs until interrupted)")
	cmd.Flags().BoolVar(&opts.chat, "chat", false, "Send stdin lines as chat messages")

	return cmd
}

func runConnect(ctx context.Context, opts connectOptions, out *Output, in io.Reader) error {
	wsURL, err := client.WebsocketURL()
	if err != nil {
		return err
	}

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer conn.CloseNow()

	auth := protocol.AuthRequest{
		Secret: opts.secret,
		Pilot: protocol.PilotMeta{
			ID:         model.PilotID(opts.pilotID),
			Name:       opts.name,
			AvatarHash: opts.avatar,
			TierHash:   opts.tierHash,
		},
		Group:      model.GroupID(opts.group),
		APIVersion: protocol.APIVersion,
	}
	if err := send(ctx, conn, protocol.ActionAuthRequest, auth); err != nil {
		return err
	}

	if opts.chat {
		go sendChat(ctx, conn, in)
	}

	for received := 0; opts.count == 0 || received < opts.count; received++ {
		var env protocol.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) != -1 {
				out.PrintMessage("Disconnected")
				return nil
			}
			return fmt.Errorf("read failed: %w", err)
		}
		out.Print(Frame{Time: time.Now(), Action: env.Action, Body: env.Body})
	}

	return conn.Close(websocket.StatusNormalClosure, "")
}

func send(ctx context.Context, conn *websocket.Conn, action string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", action, err)
	}
	if err := wsjson.Write(ctx, conn, protocol.Envelope{Action: action, Body: raw}); err != nil {
		return fmt.Errorf("failed to send %s: %w", action, err)
	}
	return nil
}

// sendChat relays stdin lines until input ends or the connection fails
func sendChat(ctx context.Context, conn *websocket.Conn, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		msg := protocol.ChatMessage{
			Timestamp: protocol.Timestamp(time.Now().UnixMilli()),
			Text:      text,
		}
		if err := send(ctx, conn, protocol.ActionChatMessage, msg); err != nil {
			return
		}
	}
}
