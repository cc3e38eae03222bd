package client

import (
	"maps"
	"slices"
	"strings"

	"github.com/chess-vn/slbaduk/internal/domains/dtos"
)

// transfer buffers the chunks of one snapshot until the chunk flagged as last
// and every chunk before it have arrived.
type transfer struct {
	id        string
	total     int
	chunks    map[int]string
	lastIndex int
	lastSeen  bool
}

func newTransfer(start dtos.Push) *transfer {
	return &transfer{
		id:     start.TransferId,
		total:  start.TotalChunks,
		chunks: make(map[int]string, start.TotalChunks),
	}
}

func (t *transfer) add(chunk dtos.Push) {
	if chunk.Index < 0 {
		return
	}
	t.chunks[chunk.Index] = chunk.Content
	if chunk.IsLast {
		t.lastSeen = true
		t.lastIndex = chunk.Index
	}
}

func (t *transfer) ready() bool {
	if !t.lastSeen {
		return false
	}
	for i := 0; i <= t.lastIndex; i++ {
		if _, ok := t.chunks[i]; !ok {
			return false
		}
	}
	return true
}

// assemble joins whatever has arrived in index order.
func (t *transfer) assemble() string {
	var sb strings.Builder
	for _, i := range slices.Sorted(maps.Keys(t.chunks)) {
		sb.WriteString(t.chunks[i])
	}
	return sb.String()
}
