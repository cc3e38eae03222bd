package game

import (
	"errors"
	"fmt"
)

// Reason is the wire status code sent back when an action is rejected.
type Reason string

const (
	ReasonWrongTurn           Reason = "WRONG_TURN"
	ReasonWrongStatus         Reason = "WRONG_STATUS"
	ReasonItemAlreadyUsed     Reason = "ITEM_ALREADY_USED"
	ReasonNoItemUses          Reason = "NO_ITEM_USES"
	ReasonInvalidTarget       Reason = "INVALID_TARGET"
	ReasonAnimationInProgress Reason = "ANIMATION_IN_PROGRESS"
	ReasonNoOpMove            Reason = "NO_OP_MOVE"
	ReasonMalformedPayload    Reason = "MALFORMED_PAYLOAD"
	ReasonUnknownAction       Reason = "UNKNOWN_ACTION"
	ReasonInvalidPlayerId     Reason = "INVALID_PLAYER_ID"
)

type RejectionError struct {
	Reason Reason
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func reject(reason Reason, format string, args ...any) error {
	return &RejectionError{
		Reason: reason,
		Detail: fmt.Sprintf(format, args...),
	}
}

// ReasonOf extracts the rejection reason from err, if it is a rejection.
func ReasonOf(err error) (Reason, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return "", false
}

var ErrUnknownItem = errors.New("unknown item")
