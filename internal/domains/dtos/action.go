package dtos

import (
	"encoding/json"

	"github.com/chess-vn/slbaduk/internal/domains/entities"
)

type ActionRequest struct {
	RequestId  string          `json:"requestId"`
	ActionType string          `json:"actionType"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// EntityFragment is a partial or full state of one entity, keyed the same
// way as push envelopes.
type EntityFragment struct {
	EntityId string          `json:"entityId"`
	Fragment json.RawMessage `json:"fragment"`
}

type SideEffects struct {
	Captured  []entities.Point              `json:"captured,omitempty"`
	Animation *entities.AnimationDescriptor `json:"animation,omitempty"`
}

type ActionResponse struct {
	RequestId          string          `json:"requestId"`
	Accepted           bool            `json:"accepted"`
	RejectionReason    string          `json:"rejectionReason,omitempty"`
	Detail             string          `json:"detail,omitempty"`
	StateFragment      *EntityFragment `json:"stateFragment,omitempty"`
	SideEffectPayloads *SideEffects    `json:"sideEffectPayloads,omitempty"`
}

type MatchCreateRequest struct {
	BlackId string `json:"blackId"`
	WhiteId string `json:"whiteId"`
}

func NewMatchFragment(session *entities.MatchSession) (*EntityFragment, error) {
	data, err := json.Marshal(session)
	if err != nil {
		return nil, err
	}
	return &EntityFragment{
		EntityId: MatchEntityId(session.Id),
		Fragment: data,
	}, nil
}
