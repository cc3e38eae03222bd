// Package sgf renders match histories in Smart Game Format (FF[4]).
package sgf

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chess-vn/slbaduk/internal/domains/entities"
)

// Coord renders p as two lowercase letters, column first.
func Coord(p entities.Point) string {
	return string([]byte{byte('a' + p.X), byte('a' + p.Y)})
}

// ParseCoord is the inverse of Coord.
func ParseCoord(s string) (entities.Point, error) {
	if len(s) != 2 || s[0] < 'a' || s[0] > 'z' || s[1] < 'a' || s[1] > 'z' {
		return entities.Point{}, fmt.Errorf("invalid sgf coordinate %q", s)
	}
	return entities.Point{X: int(s[0] - 'a'), Y: int(s[1] - 'a')}, nil
}

func escape(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, "]", `\]`)
}

// Result renders a match result as an RE property value.
func Result(status entities.MatchStatus, r *entities.MatchResult) string {
	if status == entities.StatusNoContest {
		return "Void"
	}
	if r == nil {
		return "?"
	}
	if r.Winner == entities.Empty {
		return "0"
	}
	side := "B"
	if r.Winner == entities.White {
		side = "W"
	}
	switch r.Method {
	case "resignation":
		return side + "+R"
	case "timeout":
		return side + "+T"
	case "score":
		lead := r.Score
		if lead < 0 {
			lead = -lead
		}
		return side + "+" + strconv.FormatFloat(lead, 'f', -1, 64)
	default:
		return side + "+"
	}
}

// Encode renders the full move history of s. Item moves become setup nodes
// that clear the source and every removed stone and add the stone at its
// destination, so any SGF viewer replays them.
func Encode(s *entities.MatchSession) string {
	var b strings.Builder
	b.WriteString("(;GM[1]FF[4]CA[UTF-8]AP[slbaduk]")
	fmt.Fprintf(&b, "SZ[%d]", s.Board.Size)
	if black := s.Player(entities.Black); black != nil {
		fmt.Fprintf(&b, "PB[%s]", escape(black.Id))
	}
	if white := s.Player(entities.White); white != nil {
		fmt.Fprintf(&b, "PW[%s]", escape(white.Id))
	}
	if !s.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "DT[%s]", s.CreatedAt.Format("2006-01-02"))
	}
	if s.Status.Terminal() {
		fmt.Fprintf(&b, "RE[%s]", escape(Result(s.Status, s.Result)))
	}

	for _, mv := range s.Moves {
		player, ok := s.PlayerWithId(mv.PlayerId)
		if !ok {
			continue
		}
		color := "B"
		if player.Stone == entities.White {
			color = "W"
		}
		b.WriteString(";")
		switch mv.Kind {
		case entities.MovePlace:
			if mv.Point != nil {
				fmt.Fprintf(&b, "%s[%s]", color, Coord(*mv.Point))
			}
		case entities.MovePass:
			fmt.Fprintf(&b, "%s[]", color)
		case entities.MoveItem:
			if mv.Point == nil || mv.To == nil {
				continue
			}
			b.WriteString("AE[" + Coord(*mv.Point) + "]")
			for _, p := range mv.Removed {
				b.WriteString("[" + Coord(p) + "]")
			}
			fmt.Fprintf(&b, "A%s[%s]", color, Coord(*mv.To))
			fmt.Fprintf(&b, "C[%s slides %s to %s]", color, Coord(*mv.Point), Coord(*mv.To))
		}
	}
	b.WriteString(")")
	return b.String()
}
