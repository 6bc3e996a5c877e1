package domain

// ParticipantID is assigned by the media engine for the lifetime of one
// connection. It is not stable across reconnects.
type ParticipantID string

// Participant is one member of a VideoSession as seen by one client.
// Membership is keyed by ID; no two entries in a session share an ID.
type Participant struct {
	ID          ParticipantID `json:"id"`
	DisplayName string        `json:"display_name"`
	Email       string        `json:"email,omitempty"`
	IsLocal     bool          `json:"is_local"`
	AudioMuted  bool          `json:"audio_muted"`
	VideoMuted  bool          `json:"video_muted"`
}

func NewParticipant(id ParticipantID, displayName, email string, local bool) *Participant {
	if displayName == "" {
		displayName = "Anonymous"
	}
	return &Participant{
		ID:          id,
		DisplayName: displayName,
		Email:       email,
		IsLocal:     local,
	}
}
