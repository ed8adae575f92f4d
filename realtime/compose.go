package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/akinalp/tradechat/models"
	"github.com/akinalp/tradechat/pkg"
	"github.com/akinalp/tradechat/pkg/offer"
)

// ErrNoConversation is returned by writes made while no conversation is
// mounted.
var ErrNoConversation = errors.New("no conversation open")

// SendOffer validates raw as a card offer and sends it to the mounted
// conversation. The negotiation status moves to the state the server is
// expected to land on before the request goes out; a failed send restores
// the previous status and reports the failure through the Notifier.
//
// An invalid offer never reaches the backend.
func (s *Session) SendOffer(ctx context.Context, raw any) (*models.Message, error) {
	conversationID, err := s.writeTarget()
	if err != nil {
		return nil, err
	}

	o := offer.Parse(raw)
	if o == nil {
		return nil, fmt.Errorf("%w: invalid offer", pkg.ErrBadRequest)
	}
	payload, err := json.Marshal(o.Encode())
	if err != nil {
		return nil, fmt.Errorf("encode offer: %w", err)
	}

	undo := func() {}
	if next, ok := models.OfferTransition(s.Negotiation.Status(), s.userID); ok {
		undo = s.Negotiation.assume(&models.NegotiationStatus{
			ConversationID: conversationID,
			Status:         next,
			LastActorID:    s.userID,
			UpdatedAt:      s.clock.Now(),
		})
	}

	msg, err := s.backend.SendMessage(ctx, conversationID, models.CreateMessageRequest{
		Type:    models.MessageCardOffer,
		Payload: payload,
	})
	if err != nil {
		undo()
		s.log.Warn("send offer failed", zap.String("conversation_id", conversationID), zap.Error(err))
		s.notifier.Error("Couldn't send offer", err)
		return nil, err
	}

	s.Negotiation.Refetch()
	return msg, nil
}

// UpdateNegotiation asks the server to move the mounted conversation's
// negotiation to status to. Transitions the current status does not allow
// for this user are refused locally. Like SendOffer, the new status shows
// immediately and is rolled back if the request fails.
func (s *Session) UpdateNegotiation(ctx context.Context, to models.NegotiationState) (*models.NegotiationStatus, error) {
	conversationID, err := s.writeTarget()
	if err != nil {
		return nil, err
	}

	cur := s.Negotiation.Status()
	if !models.CanUpdate(cur, s.userID, to) {
		return nil, fmt.Errorf("%w: %s", pkg.ErrInvalidTransition, to)
	}

	undo := s.Negotiation.assume(&models.NegotiationStatus{
		ConversationID: conversationID,
		Status:         to,
		LastActorID:    s.userID,
		UpdatedAt:      s.clock.Now(),
	})

	st, err := s.backend.UpdateNegotiation(ctx, conversationID, to)
	if err != nil {
		undo()
		s.log.Warn("update negotiation failed", zap.String("conversation_id", conversationID),
			zap.String("to", string(to)), zap.Error(err))
		s.notifier.Error("Couldn't update trade", err)
		return nil, err
	}

	s.Negotiation.Refetch()
	return st, nil
}

func (s *Session) writeTarget() (string, error) {
	if s.backend == nil {
		return "", fmt.Errorf("%w: session has no backend", pkg.ErrInternal)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.conversationID == "" {
		return "", ErrNoConversation
	}
	return s.conversationID, nil
}
