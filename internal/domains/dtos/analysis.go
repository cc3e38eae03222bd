package dtos

import (
	"github.com/chess-vn/slbaduk/internal/domains/entities"
	"github.com/chess-vn/slbaduk/pkg/sgf"
)

const ScoreKeyBlackLead = "black_lead"

// AnalyseRequest asks the board-analysis service to score a finished
// position. Stones are given as [colour, coordinate] pairs.
type AnalyseRequest struct {
	GameId        string      `json:"game_id"`
	Rules         string      `json:"rules"`
	Komi          float64     `json:"komi"`
	BoardXSize    int         `json:"board_X_size"`
	BoardYSize    int         `json:"board_Y_size"`
	InitialStones [][2]string `json:"initial_stones"`
	Sgf           string      `json:"sgf"`
}

type AnalyseResponse struct {
	GameId string             `json:"game_id"`
	Scores map[string]float64 `json:"scores"`
}

func AnalyseRequestFromEntity(s *entities.MatchSession, rules string, komi float64) AnalyseRequest {
	stones := [][2]string{}
	for y := 0; y < s.Board.Size; y++ {
		for x := 0; x < s.Board.Size; x++ {
			p := entities.Point{X: x, Y: y}
			switch s.Board.At(p) {
			case entities.Black:
				stones = append(stones, [2]string{"B", sgf.Coord(p)})
			case entities.White:
				stones = append(stones, [2]string{"W", sgf.Coord(p)})
			}
		}
	}
	return AnalyseRequest{
		GameId:        s.Id,
		Rules:         rules,
		Komi:          komi,
		BoardXSize:    s.Board.Size,
		BoardYSize:    s.Board.Size,
		InitialStones: stones,
		Sgf:           sgf.Encode(s),
	}
}
