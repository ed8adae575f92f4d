package models

import "time"

// NegotiationState is the lifecycle of a trade conversation.
type NegotiationState string

const (
	NegotiationPending   NegotiationState = "pending"
	NegotiationCountered NegotiationState = "countered"
	NegotiationAccepted  NegotiationState = "accepted"
	NegotiationDeclined  NegotiationState = "declined"
	NegotiationCompleted NegotiationState = "completed"
)

func (s NegotiationState) Valid() bool {
	switch s {
	case NegotiationPending, NegotiationCountered, NegotiationAccepted,
		NegotiationDeclined, NegotiationCompleted:
		return true
	}
	return false
}

// open reports whether a proposal is on the table.
func (s NegotiationState) open() bool {
	return s == NegotiationPending || s == NegotiationCountered
}

// NegotiationStatus is the server-authoritative state of a conversation's
// negotiation. LastActorID is the participant behind the latest proposal
// or transition.
type NegotiationStatus struct {
	ConversationID string           `json:"conversation_id"`
	Status         NegotiationState `json:"status"`
	LastActorID    string           `json:"last_actor_id"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// UpdateNegotiationRequest asks for an explicit transition.
type UpdateNegotiationRequest struct {
	Status NegotiationState `json:"status"`
}

// OfferTransition returns the status after actorID sends a card offer.
// cur is nil when the conversation has no negotiation yet.
//
//	none               -> pending
//	pending/countered  -> same status when actor is the last actor
//	pending/countered  -> countered otherwise
//	declined           -> pending
func OfferTransition(cur *NegotiationStatus, actorID string) (NegotiationState, bool) {
	if cur == nil {
		return NegotiationPending, true
	}
	switch {
	case cur.Status.open() && cur.LastActorID == actorID:
		return cur.Status, true
	case cur.Status.open():
		return NegotiationCountered, true
	case cur.Status == NegotiationDeclined:
		return NegotiationPending, true
	}
	return "", false
}

// CanUpdate reports whether actorID may move cur to the given status
// through an explicit update.
//
// Answers to an open proposal (counter, accept, decline) belong to the
// participant who did not make it. An accepted trade may be completed by
// either side. Completed is terminal.
func CanUpdate(cur *NegotiationStatus, actorID string, to NegotiationState) bool {
	if cur == nil || !to.Valid() {
		return false
	}
	switch {
	case cur.Status.open():
		if cur.LastActorID == actorID {
			return false
		}
		return to == NegotiationCountered || to == NegotiationAccepted || to == NegotiationDeclined
	case cur.Status == NegotiationAccepted:
		return to == NegotiationCompleted
	}
	return false
}
