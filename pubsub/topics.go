package pubsub

import "strings"

// Channel names. Clients interoperate only if every one of them builds
// names the same way, so all coordinators go through these helpers.
const (
	PresenceGlobal = "presence:global"

	conversationStatusPrefix = "conversation-status:"
	readReceiptsPrefix       = "read-receipts-"
	meetupUpdatesPrefix      = "meetup-updates-"
	typingPrefix             = "typing:"
)

// TopicKind classifies a channel name.
type TopicKind string

const (
	TopicPresence           TopicKind = "presence"
	TopicConversationStatus TopicKind = "conversation_status"
	TopicReadReceipts       TopicKind = "read_receipts"
	TopicMeetupUpdates      TopicKind = "meetup_updates"
	TopicTyping             TopicKind = "typing"
)

func ConversationStatusTopic(conversationID string) string {
	return conversationStatusPrefix + conversationID
}

func ReadReceiptsTopic(conversationID string) string {
	return readReceiptsPrefix + conversationID
}

func MeetupUpdatesTopic(meetupID string) string {
	return meetupUpdatesPrefix + meetupID
}

func TypingTopic(conversationID string) string {
	return typingPrefix + conversationID
}

// ParseTopic splits a channel name into its kind and scoping id. ok is
// false for unknown names and for names with an empty id.
func ParseTopic(name string) (kind TopicKind, id string, ok bool) {
	if name == PresenceGlobal {
		return TopicPresence, "", true
	}

	prefixes := []struct {
		prefix string
		kind   TopicKind
	}{
		{conversationStatusPrefix, TopicConversationStatus},
		{readReceiptsPrefix, TopicReadReceipts},
		{meetupUpdatesPrefix, TopicMeetupUpdates},
		{typingPrefix, TopicTyping},
	}
	for _, p := range prefixes {
		if rest, found := strings.CutPrefix(name, p.prefix); found {
			if rest == "" {
				return "", "", false
			}
			return p.kind, rest, true
		}
	}
	return "", "", false
}
