package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/mcoot/chessrelay/internal/api/ws"
	"github.com/mcoot/chessrelay/internal/gateway"
	"github.com/mcoot/chessrelay/internal/model"
)

func newWatchCmd() *cobra.Command {
	var (
		topics  topicFlags
		connect bool
		count   int
	)

	cmd := &cobra.Command{
		Use:   "watch [topic...]",
		Short: "Watch topics over WebSocket",
		Long: `Open a WebSocket to the server, subscribe to topics and print
every frame received until interrupted.

With --connect the connection also registers you as online, so other
players can invite you while it stays open.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			subs, err := topics.resolve(args)
			if err != nil && !(connect && errors.Is(err, errNoTopics)) {
				return err
			}
			return watch(cmd.Context(), output(cmd), subs, connect, count)
		},
	}

	topics.register(cmd)
	cmd.Flags().BoolVar(&connect, "connect", false, "Announce presence on this connection")
	cmd.Flags().IntVarP(&count, "count", "n", 0, "Exit after this many messages (0 = no limit)")

	return cmd
}

func watch(ctx context.Context, out *Output, topics []string, connect bool, count int) error {
	header := http.Header{}
	client.Identify(header)

	conn, _, err := websocket.Dial(ctx, client.WebSocketURL("/api/v1/ws"), &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() { _ = conn.CloseNow() }()

	for _, topic := range topics {
		if err := wsjson.Write(ctx, conn, gateway.Envelope{Type: ws.TypeSubscribe, Topic: topic}); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
	}

	if connect {
		payload, err := json.Marshal(model.PresenceConnect{Username: cfg.Username})
		if err != nil {
			return err
		}
		if err := wsjson.Write(ctx, conn, gateway.Envelope{Type: gateway.TypePresenceConnect, Payload: payload}); err != nil {
			return fmt.Errorf("failed to announce presence: %w", err)
		}
	}

	received := 0
	for {
		var frame ws.ServerFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)
		}

		out.PrintFrame(frame)

		if frame.Type == ws.FrameMessage {
			received++
			if count > 0 && received >= count {
				return conn.Close(websocket.StatusNormalClosure, "")
			}
		}
	}
}
