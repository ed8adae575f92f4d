// Package offer validates and normalizes the structured trade offer that
// rides inside a card_offer chat message.
//
// Wire shape (JSON, inside message.payload):
//
//	{
//	  "offering":   [{"externalId": "...", "tcg": "...", "name": "...", "imageUrl": "..."}],
//	  "requesting": [...],
//	  "cash_amount": 20,
//	  "cash_direction": "offering",
//	  "note": "..."
//	}
//
// Parse is total: anything that does not match the schema yields nil.
package offer

import (
	"encoding/json"
	"math"
	"strings"
)

// CashDirection says which side adds the cash.
type CashDirection string

const (
	CashOffering   CashDirection = "offering"
	CashRequesting CashDirection = "requesting"
)

// CardRef is an immutable reference to a catalog card. Identity is
// ExternalID.
type CardRef struct {
	ExternalID string `json:"externalId"`
	TCG        string `json:"tcg"`
	Name       string `json:"name"`
	ImageURL   string `json:"imageUrl"`
}

// Payload is the wire form of an offer.
type Payload struct {
	Offering      []CardRef      `json:"offering"`
	Requesting    []CardRef      `json:"requesting"`
	CashAmount    *float64       `json:"cash_amount,omitempty"`
	CashDirection *CashDirection `json:"cash_direction,omitempty"`
	Note          *string        `json:"note,omitempty"`
}

// Offer is a parsed, normalized payload plus its derived fields.
//
// CashAmount is nil unless a positive amount was sent, and CashDirection
// is nil whenever CashAmount is nil. Counts are derived from the slices.
type Offer struct {
	Offering        []CardRef
	Requesting      []CardRef
	CashAmount      *float64
	CashDirection   *CashDirection
	Note            *string
	IsTradeOnly     bool
	OfferingCount   int
	RequestingCount int
}

// Parse validates raw against the offer schema. raw may be a decoded JSON
// value (map[string]any), a Payload, or JSON bytes (json.RawMessage or
// []byte). Any other input, or any schema violation, returns nil.
func Parse(raw any) *Offer {
	obj, ok := normalize(raw)
	if !ok {
		return nil
	}

	offering, ok := parseCards(obj["offering"])
	if !ok {
		return nil
	}
	requesting, ok := parseCards(obj["requesting"])
	if !ok {
		return nil
	}

	amount, ok := parseAmount(obj["cash_amount"])
	if !ok {
		return nil
	}
	direction, ok := parseDirection(obj["cash_direction"])
	if !ok {
		return nil
	}
	note, ok := parseNote(obj["note"])
	if !ok {
		return nil
	}

	o := &Offer{
		Offering:        offering,
		Requesting:      requesting,
		Note:            note,
		OfferingCount:   len(offering),
		RequestingCount: len(requesting),
	}
	if amount > 0 {
		o.CashAmount = &amount
		o.CashDirection = direction
	}
	o.IsTradeOnly = o.CashAmount == nil
	return o
}

// Encode returns the wire payload for an offer.
func (o *Offer) Encode() Payload {
	p := Payload{
		Offering:   append([]CardRef{}, o.Offering...),
		Requesting: append([]CardRef{}, o.Requesting...),
	}
	if o.CashAmount != nil {
		amount := *o.CashAmount
		p.CashAmount = &amount
		if o.CashDirection != nil {
			dir := *o.CashDirection
			p.CashDirection = &dir
		}
	}
	if o.Note != nil {
		note := *o.Note
		p.Note = &note
	}
	return p
}

// normalize turns the accepted input forms into a JSON object.
func normalize(raw any) (map[string]any, bool) {
	switch v := raw.(type) {
	case nil:
		return nil, false
	case map[string]any:
		return v, true
	case json.RawMessage:
		return decodeObject(v)
	case []byte:
		return decodeObject(v)
	case Payload:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, false
		}
		return decodeObject(b)
	case *Payload:
		if v == nil {
			return nil, false
		}
		return normalize(*v)
	default:
		return nil, false
	}
}

func decodeObject(b []byte) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal(b, &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

func parseCards(v any) ([]CardRef, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	cards := make([]CardRef, 0, len(list))
	for _, item := range list {
		card, ok := parseCard(item)
		if !ok {
			return nil, false
		}
		cards = append(cards, card)
	}
	return cards, true
}

func parseCard(v any) (CardRef, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return CardRef{}, false
	}

	var card CardRef
	fields := []struct {
		key      string
		dst      *string
		required bool
	}{
		{"externalId", &card.ExternalID, true},
		{"tcg", &card.TCG, true},
		{"name", &card.Name, true},
		{"imageUrl", &card.ImageURL, false},
	}
	for _, f := range fields {
		s, ok := obj[f.key].(string)
		if !ok {
			return CardRef{}, false
		}
		if f.required && strings.TrimSpace(s) == "" {
			return CardRef{}, false
		}
		*f.dst = s
	}
	return card, true
}

// parseAmount accepts an absent/null amount (0) or a finite number >= 0.
func parseAmount(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case nil:
		return 0, true
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, false
	}
	return f, true
}

func parseDirection(v any) (*CashDirection, bool) {
	if v == nil {
		return nil, true
	}
	s, ok := v.(string)
	if !ok {
		return nil, false
	}
	switch d := CashDirection(s); d {
	case CashOffering, CashRequesting:
		return &d, true
	default:
		return nil, false
	}
}

func parseNote(v any) (*string, bool) {
	if v == nil {
		return nil, true
	}
	s, ok := v.(string)
	if !ok {
		return nil, false
	}
	return &s, true
}
