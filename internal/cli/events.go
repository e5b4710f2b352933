package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcoot/chessrelay/internal/api/ws"
)

const maxEventSize = 1 << 20

func newEventsCmd() *cobra.Command {
	var (
		topics topicFlags
		count  int
	)

	cmd := &cobra.Command{
		Use:   "events [topic...]",
		Short: "Stream topics over Server-Sent Events",
		RunE: func(cmd *cobra.Command, args []string) error {
			subs, err := topics.resolve(args)
			if err != nil {
				return err
			}
			return streamEvents(cmd.Context(), output(cmd), cmd.ErrOrStderr(), subs, count)
		},
	}

	topics.register(cmd)
	cmd.Flags().IntVarP(&count, "count", "n", 0, "Exit after this many messages (0 = no limit)")

	return cmd
}

// streamEvents prints frames from the event stream. With --verbose the
// stream's connected event is reported on diag.
func streamEvents(ctx context.Context, out *Output, diag io.Writer, topics []string, count int) error {
	query := url.Values{}
	for _, topic := range topics {
		query.Add("topic", topic)
	}

	resp, err := client.Stream(ctx, "/api/v1/events?"+query.Encode())
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	var (
		event    string
		data     []string
		received int
	)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "" && event == "connected":
			if cfg.Verbose {
				fmt.Fprintln(diag, "stream connected")
			}
			event, data = "", nil
		case line == "":
			if event != "" && len(data) > 0 {
				var frame ws.ServerFrame
				if err := json.Unmarshal([]byte(strings.Join(data, "\n")), &frame); err != nil {
					return fmt.Errorf("malformed event %q: %w", event, err)
				}
				out.PrintFrame(frame)

				received++
				if count > 0 && received >= count {
					return nil
				}
			}
			event, data = "", nil
		case strings.HasPrefix(line, ":"):
			// keepalive
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("stream failed: %w", err)
	}
	return nil
}
