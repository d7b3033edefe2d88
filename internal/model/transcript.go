package model

// TranscriptEvent is one decoded message from a room's data channel.
type TranscriptEvent struct {
	ID        string  `json:"id"`
	Text      string  `json:"text"`
	Speaker   Speaker `json:"speaker,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"`
}
