package game

import "github.com/chess-vn/slbaduk/internal/domains/entities"

type Direction string

const (
	Up    Direction = "up"
	Down  Direction = "down"
	Left  Direction = "left"
	Right Direction = "right"
)

func (d Direction) delta() (int, int, bool) {
	switch d {
	case Up:
		return 0, -1, true
	case Down:
		return 0, 1, true
	case Left:
		return -1, 0, true
	case Right:
		return 1, 0, true
	default:
		return 0, 0, false
	}
}

func (d Direction) Valid() bool {
	_, _, ok := d.delta()
	return ok
}

// Group returns the maximal 4-connected group of stones sharing the colour of
// seed, together with the number of distinct empty points adjacent to it.
// An empty or off-board seed yields no group.
func Group(b entities.Board, seed entities.Point) ([]entities.Point, int) {
	color := b.At(seed)
	if color == entities.Empty {
		return nil, 0
	}
	visited := map[entities.Point]bool{seed: true}
	liberties := map[entities.Point]bool{}
	stack := []entities.Point{seed}
	var stones []entities.Point
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		stones = append(stones, p)
		for _, n := range b.Neighbors(p) {
			switch b.At(n) {
			case entities.Empty:
				liberties[n] = true
			case color:
				if !visited[n] {
					visited[n] = true
					stack = append(stack, n)
				}
			}
		}
	}
	return stones, len(liberties)
}

// ResolveCaptures removes every opposing group adjacent to placed that has no
// liberties left and returns the removed points. Each adjacent group is
// examined once. The caller credits the capturer with one capture per point.
func ResolveCaptures(b entities.Board, placed entities.Point, player entities.Stone) []entities.Point {
	opponent := player.Opponent()
	seen := map[entities.Point]bool{}
	var removed []entities.Point
	for _, n := range b.Neighbors(placed) {
		if b.At(n) != opponent || seen[n] {
			continue
		}
		stones, liberties := Group(b, n)
		for _, s := range stones {
			seen[s] = true
		}
		if liberties > 0 {
			continue
		}
		for _, s := range stones {
			b.Set(s, entities.Empty)
		}
		removed = append(removed, stones...)
	}
	return removed
}

// Slide moves from `from` in direction d until the next point is occupied or
// off the board, and returns the last empty point reached. It returns from
// when the first step is already blocked.
func Slide(b entities.Board, from entities.Point, d Direction) entities.Point {
	dx, dy, ok := d.delta()
	if !ok {
		return from
	}
	cur := from
	for {
		next := entities.Point{X: cur.X + dx, Y: cur.Y + dy}
		if !b.InBounds(next) || b.At(next) != entities.Empty {
			return cur
		}
		cur = next
	}
}
