package event

import (
	"errors"
	"strings"
)

// Action identifies what an interactive control does.
type Action string

const (
	ActionClaim             Action = "claim"
	ActionClaimSubmit       Action = "claim_submit"
	ActionStartVerification Action = "verify"
	ActionConfirmIdentity   Action = "confirm_identity"
	ActionRejectIdentity    Action = "reject_identity"
	ActionApprove           Action = "approve"
	ActionCancel            Action = "cancel"
	ActionRequestProof      Action = "request_proof"
	ActionRequestLabel      Action = "request_label"
	ActionTrackingSubmit    Action = "tracking_submit"
	ActionWithdraw          Action = "withdraw"
)

var actions = map[Action]bool{
	ActionClaim:             true,
	ActionClaimSubmit:       true,
	ActionStartVerification: true,
	ActionConfirmIdentity:   true,
	ActionRejectIdentity:    true,
	ActionApprove:           true,
	ActionCancel:            true,
	ActionRequestProof:      true,
	ActionRequestLabel:      true,
	ActionTrackingSubmit:    true,
	ActionWithdraw:          true,
}

func (a Action) Valid() bool {
	return actions[a]
}

// OpensForm reports whether the action is answered with a form rather than a message.
func (a Action) OpensForm() bool {
	return a == ActionClaim || a == ActionRequestLabel
}

const (
	tokenPrefix = "df1"
	tokenSep    = ":"
	maxTokenLen = 100
)

var ErrInvalidToken = errors.New("invalid routing token")

// Token is the routing state carried by a button or form custom id.
type Token struct {
	Action Action
	DealID string
}

func NewToken(action Action, dealID string) Token {
	return Token{Action: action, DealID: dealID}
}

func (t Token) String() string {
	return tokenPrefix + tokenSep + string(t.Action) + tokenSep + t.DealID
}

// ParseToken validates a custom id at the boundary before dispatch.
func ParseToken(raw string) (Token, error) {
	if raw == "" || len(raw) > maxTokenLen {
		return Token{}, ErrInvalidToken
	}
	parts := strings.Split(raw, tokenSep)
	if len(parts) != 3 || parts[0] != tokenPrefix {
		return Token{}, ErrInvalidToken
	}
	t := Token{Action: Action(parts[1]), DealID: parts[2]}
	if !t.Action.Valid() || t.DealID == "" || strings.ContainsAny(t.DealID, " \t\n") {
		return Token{}, ErrInvalidToken
	}
	return t, nil
}
