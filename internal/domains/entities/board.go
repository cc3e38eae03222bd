package entities

type Stone int

const (
	Empty Stone = iota
	Black
	White
)

func (s Stone) Opponent() Stone {
	switch s {
	case Black:
		return White
	case White:
		return Black
	default:
		return Empty
	}
}

func (s Stone) String() string {
	switch s {
	case Black:
		return "black"
	case White:
		return "white"
	default:
		return "empty"
	}
}

type Point struct {
	X int `dynamodbav:"X" json:"x"`
	Y int `dynamodbav:"Y" json:"y"`
}

// Board is a square grid stored row-major.
type Board struct {
	Size  int     `dynamodbav:"Size" json:"size"`
	Cells []Stone `dynamodbav:"Cells" json:"cells"`
}

func NewBoard(size int) Board {
	return Board{
		Size:  size,
		Cells: make([]Stone, size*size),
	}
}

func (b Board) InBounds(p Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < b.Size && p.Y < b.Size
}

// At returns Empty for points off the board.
func (b Board) At(p Point) Stone {
	if !b.InBounds(p) {
		return Empty
	}
	return b.Cells[p.Y*b.Size+p.X]
}

func (b Board) Set(p Point, s Stone) {
	if !b.InBounds(p) {
		return
	}
	b.Cells[p.Y*b.Size+p.X] = s
}

// Neighbors returns the on-board 4-neighbours of p.
func (b Board) Neighbors(p Point) []Point {
	candidates := [4]Point{
		{X: p.X, Y: p.Y - 1},
		{X: p.X + 1, Y: p.Y},
		{X: p.X, Y: p.Y + 1},
		{X: p.X - 1, Y: p.Y},
	}
	out := make([]Point, 0, 4)
	for _, c := range candidates {
		if b.InBounds(c) {
			out = append(out, c)
		}
	}
	return out
}

func (b Board) Clone() Board {
	return Board{
		Size:  b.Size,
		Cells: append([]Stone(nil), b.Cells...),
	}
}

func (b Board) Count(s Stone) int {
	n := 0
	for _, c := range b.Cells {
		if c == s {
			n++
		}
	}
	return n
}
