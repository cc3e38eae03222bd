package dtos

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

type PushType string

const (
	PushConnectionEstablished PushType = "connection-established"
	PushSnapshotStart         PushType = "snapshot-start"
	PushSnapshotChunk         PushType = "snapshot-chunk"
	PushEntityUpdated         PushType = "entity-updated"
	PushEntityDeleted         PushType = "entity-deleted"
	PushError                 PushType = "error"
)

// Push is the envelope for every message sent on the push channel. Only the
// fields relevant to Type are set.
type Push struct {
	Type         PushType        `json:"type"`
	ConnectionId string          `json:"connectionId,omitempty"`
	TransferId   string          `json:"transferId,omitempty"`
	TotalChunks  int             `json:"totalChunks,omitempty"`
	Index        int             `json:"index,omitempty"`
	Content      string          `json:"content,omitempty"`
	IsLast       bool            `json:"isLast,omitempty"`
	EntityId     string          `json:"entityId,omitempty"`
	Fragment     json.RawMessage `json:"fragment,omitempty"`
	Message      string          `json:"message,omitempty"`
}

const (
	EntityAccount = "account"
	EntityMatch   = "match"
)

func AccountEntityId(userId string) string {
	return EntityAccount + "/" + userId
}

func MatchEntityId(matchId string) string {
	return EntityMatch + "/" + matchId
}

// ParseEntityId splits "kind/id".
func ParseEntityId(entityId string) (string, string, bool) {
	kind, id, ok := strings.Cut(entityId, "/")
	if !ok || kind == "" || id == "" {
		return "", "", false
	}
	return kind, id, true
}

func NewEntityUpdated(entityId string, fragment any) (Push, error) {
	data, err := json.Marshal(fragment)
	if err != nil {
		return Push{}, err
	}
	return Push{
		Type:     PushEntityUpdated,
		EntityId: entityId,
		Fragment: data,
	}, nil
}

// SplitChunks cuts content into pieces of at most size bytes without
// splitting a UTF-8 sequence. Empty content yields a single empty chunk.
func SplitChunks(content string, size int) []string {
	if size <= 0 || len(content) <= size {
		return []string{content}
	}
	var chunks []string
	for len(content) > size {
		cut := size
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		if cut == 0 {
			cut = size
		}
		chunks = append(chunks, content[:cut])
		content = content[cut:]
	}
	if content != "" {
		chunks = append(chunks, content)
	}
	return chunks
}

// NewSnapshotTransfer encodes snapshot and frames it as a start envelope
// followed by its chunks.
func NewSnapshotTransfer(transferId string, snapshot Snapshot, chunkSize int) ([]Push, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, err
	}
	chunks := SplitChunks(string(data), chunkSize)
	pushes := make([]Push, 0, len(chunks)+1)
	pushes = append(pushes, Push{
		Type:        PushSnapshotStart,
		TransferId:  transferId,
		TotalChunks: len(chunks),
	})
	for i, c := range chunks {
		pushes = append(pushes, Push{
			Type:       PushSnapshotChunk,
			TransferId: transferId,
			Index:      i,
			Content:    c,
			IsLast:     i == len(chunks)-1,
		})
	}
	return pushes, nil
}
