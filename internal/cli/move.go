package cli

import (
	"fmt"
	"strings"

	"github.com/corentings/chess/v2"

	"github.com/mcoot/chessrelay/internal/api/request"
	"github.com/mcoot/chessrelay/internal/model"
)

// planMove turns a UCI move played from fen into a submission. The server
// relays positions as given, so the client works out the resulting
// position and notation itself.
func planMove(fen, uci string) (request.SubmitMoveRequest, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return request.SubmitMoveRequest{}, fmt.Errorf("invalid position %q: %w", fen, err)
	}
	game := chess.NewGame(opt)
	pos := game.Position()

	uci = strings.ToLower(strings.TrimSpace(uci))
	mv, err := chess.UCINotation{}.Decode(pos, uci)
	if err != nil {
		return request.SubmitMoveRequest{}, fmt.Errorf("invalid move %q: %w", uci, err)
	}

	piece := pos.Board().Piece(mv.S1())
	if piece == chess.NoPiece {
		return request.SubmitMoveRequest{}, fmt.Errorf("no piece on %s", mv.S1())
	}

	color := model.White
	if pos.Turn() == chess.Black {
		color = model.Black
	}

	san := chess.AlgebraicNotation{}.Encode(pos, mv)
	if err := game.PushNotationMove(uci, chess.UCINotation{}, nil); err != nil {
		return request.SubmitMoveRequest{}, fmt.Errorf("illegal move %q: %w", uci, err)
	}

	return request.SubmitMoveRequest{
		From:        mv.S1().String(),
		To:          mv.S2().String(),
		Piece:       strings.ToUpper(piece.Type().String()),
		Promotion:   strings.ToUpper(mv.Promo().String()),
		FENAfter:    game.FEN(),
		SAN:         san,
		PlayerColor: color,
	}, nil
}
