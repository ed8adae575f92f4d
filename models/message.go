package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/akinalp/tradechat/pkg/offer"
)

// MessageType tags the payload a message carries.
type MessageType string

const (
	MessageText      MessageType = "text"
	MessageCardOffer MessageType = "card_offer"
	MessageImage     MessageType = "image"
	MessageSystem    MessageType = "system"
)

// ImagePayload is the payload of an image message.
type ImagePayload struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// SystemPayload is the payload of a server generated message
// ("offer_accepted", "meetup_confirmed", ...).
type SystemPayload struct {
	Event string `json:"event"`
}

// Message is a chat message. Exactly one of Offer, Image and System is set,
// matching Type; text messages carry none.
//
// On the wire the variant is flattened into a single "payload" field keyed
// by "type".
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Type           MessageType
	Body           *string
	CreatedAt      time.Time

	Offer  *offer.Payload
	Image  *ImagePayload
	System *SystemPayload
}

type messageJSON struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	SenderID       string          `json:"sender_id"`
	Type           MessageType     `json:"type"`
	Body           *string         `json:"body"`
	Payload        json.RawMessage `json:"payload"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	payload, err := m.EncodePayload()
	if err != nil {
		return nil, err
	}
	if payload == nil {
		payload = json.RawMessage("null")
	}
	return json.Marshal(messageJSON{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Type:           m.Type,
		Body:           m.Body,
		Payload:        payload,
		CreatedAt:      m.CreatedAt,
	})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var aux messageJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = Message{
		ID:             aux.ID,
		ConversationID: aux.ConversationID,
		SenderID:       aux.SenderID,
		Type:           aux.Type,
		Body:           aux.Body,
		CreatedAt:      aux.CreatedAt,
	}
	return m.DecodePayload(aux.Payload)
}

// EncodePayload returns the JSON form of the variant, or nil for text.
// A card_offer whose offer failed validation encodes as nil too, so a
// message read with DecodePayload always encodes again.
func (m *Message) EncodePayload() (json.RawMessage, error) {
	var v any
	switch m.Type {
	case MessageText:
		return nil, nil
	case MessageCardOffer:
		if m.Offer == nil {
			return nil, nil
		}
		v = m.Offer
	case MessageImage:
		if m.Image == nil {
			return nil, fmt.Errorf("image message without image payload")
		}
		v = m.Image
	case MessageSystem:
		if m.System == nil {
			return nil, fmt.Errorf("system message without system payload")
		}
		v = m.System
	default:
		return nil, fmt.Errorf("unknown message type %q", m.Type)
	}
	return json.Marshal(v)
}

// DecodePayload fills the variant matching m.Type from raw. A card_offer
// whose payload fails offer validation keeps a nil Offer; readers treat it
// as an absent offer.
func (m *Message) DecodePayload(raw json.RawMessage) error {
	m.Offer, m.Image, m.System = nil, nil, nil
	empty := len(raw) == 0 || string(raw) == "null"

	switch m.Type {
	case MessageText:
		return nil
	case MessageCardOffer:
		if empty {
			return nil
		}
		if o := offer.Parse(raw); o != nil {
			p := o.Encode()
			m.Offer = &p
		}
		return nil
	case MessageImage:
		if empty {
			return fmt.Errorf("image message without payload")
		}
		var img ImagePayload
		if err := json.Unmarshal(raw, &img); err != nil {
			return fmt.Errorf("decode image payload: %w", err)
		}
		m.Image = &img
		return nil
	case MessageSystem:
		if empty {
			return fmt.Errorf("system message without payload")
		}
		var sys SystemPayload
		if err := json.Unmarshal(raw, &sys); err != nil {
			return fmt.Errorf("decode system payload: %w", err)
		}
		m.System = &sys
		return nil
	}
	return fmt.Errorf("unknown message type %q", m.Type)
}

// ParsedOffer returns the validated offer carried by a card_offer message.
func (m *Message) ParsedOffer() *offer.Offer {
	if m.Type != MessageCardOffer || m.Offer == nil {
		return nil
	}
	return offer.Parse(*m.Offer)
}

// MessagePage is one page of a conversation's history, newest last.
type MessagePage struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}

// MaxBodyLength bounds the text body of a message, in runes.
const MaxBodyLength = 2000

// CreateMessageRequest sends a message. Clients may send text, card_offer
// and image messages; system messages are generated by the server.
type CreateMessageRequest struct {
	Type    MessageType     `json:"type"`
	Body    string          `json:"body"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate checks the request and returns the message variant it
// describes (without ids or timestamps).
func (r *CreateMessageRequest) Validate() (*Message, error) {
	if r.Type == "" {
		r.Type = MessageText
	}
	r.Body = strings.TrimSpace(r.Body)
	bodyLen := utf8.RuneCountInString(r.Body)
	if bodyLen > MaxBodyLength {
		return nil, fmt.Errorf("message body must be at most %d characters", MaxBodyLength)
	}

	msg := &Message{Type: r.Type}
	if bodyLen > 0 {
		body := r.Body
		msg.Body = &body
	}

	switch r.Type {
	case MessageText:
		if bodyLen == 0 {
			return nil, fmt.Errorf("message body is required")
		}
	case MessageCardOffer:
		o := offer.Parse(r.Payload)
		if o == nil {
			return nil, fmt.Errorf("invalid offer payload")
		}
		p := o.Encode()
		msg.Offer = &p
	case MessageImage:
		if err := msg.DecodePayload(r.Payload); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.Image.URL) == "" {
			return nil, fmt.Errorf("image url is required")
		}
	case MessageSystem:
		return nil, fmt.Errorf("system messages cannot be sent by clients")
	default:
		return nil, fmt.Errorf("unknown message type %q", r.Type)
	}
	return msg, nil
}
