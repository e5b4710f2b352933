package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mcoot/chessrelay/internal/api/response"
	"github.com/mcoot/chessrelay/internal/api/ws"
	"github.com/mcoot/chessrelay/internal/model"
)

// Output formats
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter writing to stdout
func NewOutput(format string) *Output {
	return NewOutputTo(format, os.Stdout)
}

// NewOutputTo creates a new Output formatter writing to w
func NewOutputTo(format string, w io.Writer) *Output {
	return &Output{format: format, w: w}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	switch o.format {
	case FormatJSON:
		o.printJSON(data)
	case FormatYAML:
		o.printYAML(data)
	default:
		o.printText(data)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	switch o.format {
	case FormatJSON:
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Fprintln(o.w, string(data))
	case FormatYAML:
		o.printYAML(map[string]string{"message": msg})
	default:
		fmt.Fprintln(o.w, msg)
	}
}

// PrintFrame outputs one streamed frame. JSON output is one object per line.
func (o *Output) PrintFrame(frame ws.ServerFrame) {
	switch o.format {
	case FormatJSON:
		data, _ := json.Marshal(frame)
		fmt.Fprintln(o.w, string(data))
	case FormatYAML:
		fmt.Fprintln(o.w, "---")
		o.printYAML(frame)
	default:
		switch frame.Type {
		case ws.FrameMessage:
			fmt.Fprintf(o.w, "[%s] %s %s\n", frame.Topic, frame.Kind, string(frame.Payload))
		case ws.FrameError:
			if frame.Error != nil {
				fmt.Fprintf(o.w, "error: %s (%s) %s\n", frame.Error.Message, frame.Error.Code, frame.Topic)
			}
		default:
			fmt.Fprintf(o.w, "%s %s\n", frame.Type, frame.Topic)
		}
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

// printYAML goes through JSON first so keys keep their API names
func (o *Output) printYAML(data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		fmt.Fprintf(o.w, "error: %s\n", err)
		return
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		fmt.Fprintf(o.w, "error: %s\n", err)
		return
	}
	enc := yaml.NewEncoder(o.w)
	enc.SetIndent(2)
	_ = enc.Encode(generic)
	_ = enc.Close()
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case *model.Player:
		o.printPlayer(*v)
	case model.InvitationView:
		o.printInvitation(v)
	case *model.InvitationView:
		o.printInvitation(*v)
	case response.Invitation:
		o.printInvitation(v.Invitation)
		if v.Game != nil {
			fmt.Fprintln(o.w)
			o.printGame(v.Game)
		}
	case *model.GameSession:
		o.printGame(v)
	case *model.MoveEvent:
		o.printMove(*v)
	case response.Health:
		fmt.Fprintf(o.w, "Status: %s\n", v.Status)
	case response.Accepted:
		fmt.Fprintf(o.w, "Accepted, result will be delivered on %s\n", v.Topic)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

func (o *Output) printPlayer(p model.Player) {
	fmt.Fprintf(o.w, "Player: %s (%s)\n", p.Username, p.ID)
}

func (o *Output) printInvitation(inv model.InvitationView) {
	fmt.Fprintf(o.w, "Invitation: %s\n", inv.ID)
	fmt.Fprintf(o.w, "From: %s\n", inv.Sender.Username)
	fmt.Fprintf(o.w, "To: %s\n", inv.Receiver.Username)
	fmt.Fprintf(o.w, "Status: %s\n", inv.Status)
}

func (o *Output) printGame(g *model.GameSession) {
	fmt.Fprintf(o.w, "Game: %s\n", g.ID)
	fmt.Fprintf(o.w, "White: %s\n", g.White.Username)
	fmt.Fprintf(o.w, "Black: %s\n", g.Black.Username)
	fmt.Fprintf(o.w, "Status: %s\n", g.Status)
	if g.Status == model.GameInProgress {
		fmt.Fprintf(o.w, "To move: %s\n", g.CurrentTurn)
	}
	fmt.Fprintf(o.w, "Position: %s\n", g.CurrentFEN)

	if len(g.Moves) > 0 {
		sans := make([]string, 0, len(g.Moves))
		for _, m := range g.Moves {
			sans = append(sans, moveText(m))
		}
		fmt.Fprintf(o.w, "Moves: %s\n", strings.Join(sans, " "))
	}
}

func (o *Output) printMove(m model.MoveEvent) {
	fmt.Fprintf(o.w, "Move %d (%s): %s\n", m.MoveNumber, m.PlayerColor, moveText(m))
	fmt.Fprintf(o.w, "Position: %s\n", m.FENAfter)
}

func moveText(m model.MoveEvent) string {
	if m.SAN != "" {
		return m.SAN
	}
	text := m.From + "-" + m.To
	if m.Promotion != "" {
		text += "=" + m.Promotion
	}
	return text
}
