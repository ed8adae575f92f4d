package realtime

import "github.com/akinalp/tradechat/models"

// ActionKind identifies a message menu entry.
type ActionKind string

const (
	ActionCopy   ActionKind = "copy"
	ActionReport ActionKind = "report"
	ActionCancel ActionKind = "cancel"
)

// Action is one entry of a message's long-press menu.
type Action struct {
	Kind        ActionKind `json:"kind"`
	Label       string     `json:"label"`
	Destructive bool       `json:"destructive"`
}

var (
	copyAction   = Action{Kind: ActionCopy, Label: "Copy"}
	reportAction = Action{Kind: ActionReport, Label: "Report", Destructive: true}
	cancelAction = Action{Kind: ActionCancel, Label: "Cancel"}
)

// ResolveActions returns the menu for message as seen by viewerID. An empty
// result means no menu is shown at all.
//
//	own text          Copy, Cancel
//	own non-text      (none)
//	other's text      Copy, Report, Cancel
//	other's non-text  Report, Cancel
func ResolveActions(message *models.Message, viewerID string) []Action {
	if message == nil {
		return nil
	}
	own := message.SenderID == viewerID
	text := message.Type == models.MessageText

	switch {
	case own && text:
		return []Action{copyAction, cancelAction}
	case own:
		return nil
	case text:
		return []Action{copyAction, reportAction, cancelAction}
	default:
		return []Action{reportAction, cancelAction}
	}
}
