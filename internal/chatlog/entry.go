package chatlog

import (
	"strings"
	"time"
)

// SpeakerType identifies where a speaker comes from.
type SpeakerType string

const (
	SpeakerXIVPlayer SpeakerType = "xiv_player"
	SpeakerDiscord   SpeakerType = "discord"
	SpeakerSystem    SpeakerType = "system"
)

// Owner is a weak back-reference to the page that holds an entry.
// It identifies the page by name only; it does not keep it alive.
type Owner struct {
	Overlay string `json:"overlay,omitempty"`
	Page    string `json:"page,omitempty"`
}

func (o Owner) IsZero() bool { return o.Overlay == "" && o.Page == "" }

func (o Owner) String() string {
	if o.IsZero() {
		return ""
	}
	return o.Overlay + "/" + o.Page
}

// Entry is a single chat log line.
//
// Optional fields (alias, speaker type) may be empty; they only affect
// rendering.
type Entry struct {
	Timestamp       time.Time   `json:"timestamp"`
	Channel         ChannelCode `json:"channel"`
	OriginalSpeaker string      `json:"original_speaker,omitempty"`
	SpeakerAlias    string      `json:"speaker_alias,omitempty"`
	SpeakerType     SpeakerType `json:"speaker_type,omitempty"`
	Message         string      `json:"message"`
	Synthetic       bool        `json:"synthetic,omitempty"`

	// Owner is stamped by the buffer that stores the entry.
	Owner Owner `json:"owner,omitempty"`
}

// Speaker returns the alias when set, otherwise the original name.
func (e Entry) Speaker() string {
	if a := strings.TrimSpace(e.SpeakerAlias); a != "" {
		return a
	}
	return e.OriginalSpeaker
}

// DedupWindow is the tolerance for collapsing identical messages.
const DedupWindow = 500 * time.Millisecond

// IsDuplicate reports whether a and b are the same chat line seen twice.
func IsDuplicate(a, b Entry) bool {
	if a.Channel != b.Channel || a.Message != b.Message {
		return false
	}
	d := a.Timestamp.Sub(b.Timestamp)
	if d < 0 {
		d = -d
	}
	return d <= DedupWindow
}
