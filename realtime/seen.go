package realtime

import "github.com/akinalp/tradechat/models"

// SeenMessageID returns the id of the viewer's most recent own message if
// the counterpart has read at least that far, otherwise "". The "Seen"
// marker is rendered under that message only.
//
// Recency is CreatedAt, with list position breaking ties. A pointer to a
// message that is not in messages is treated as unknown.
func SeenMessageID(messages []models.Message, viewerID, counterpartLastReadID string) string {
	if viewerID == "" || counterpartLastReadID == "" {
		return ""
	}

	own, read := -1, -1
	for i := range messages {
		m := &messages[i]
		if m.SenderID == viewerID && (own < 0 || newer(messages, i, own)) {
			own = i
		}
		if m.ID == counterpartLastReadID {
			read = i
		}
	}
	if own < 0 || read < 0 {
		return ""
	}
	if read == own || newer(messages, read, own) {
		return messages[own].ID
	}
	return ""
}

// newer reports whether messages[a] is more recent than messages[b].
func newer(messages []models.Message, a, b int) bool {
	ta, tb := messages[a].CreatedAt, messages[b].CreatedAt
	if ta.Equal(tb) {
		return a > b
	}
	return ta.After(tb)
}
