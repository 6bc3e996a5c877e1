// Package engine is the boundary to the external conferencing engine:
// join/leave/mute/ready-to-close events inbound, mute-toggle and hangup
// commands outbound. The engine itself (media transport, signaling) lives
// elsewhere; this package only speaks its event protocol.
package engine

import (
	"context"

	"classgate/internal/domain"
)

type EventType string

const (
	// ConferenceJoined confirms the local client's own join. The event
	// carries the id the engine assigned to the local participant.
	ConferenceJoined EventType = "conference_joined"
	// ConferenceLeft is the engine's terminal disconnect signal.
	ConferenceLeft    EventType = "conference_left"
	ParticipantJoined EventType = "participant_joined"
	ParticipantLeft   EventType = "participant_left"
	AudioMuteChanged  EventType = "audio_mute_changed"
	VideoMuteChanged  EventType = "video_mute_changed"
	// ReadyToClose means the engine wants the client to tear down. Both
	// this and ConferenceLeft can arrive for one departure.
	ReadyToClose EventType = "ready_to_close"
)

// Event is one fact from the local channel. An empty ID on a mute event
// refers to the local participant.
type Event struct {
	Type        EventType            `json:"type"`
	ID          domain.ParticipantID `json:"id,omitempty"`
	DisplayName string               `json:"display_name,omitempty"`
	Email       string               `json:"email,omitempty"`
	Muted       bool                 `json:"muted,omitempty"`
}

type CommandType string

const (
	ToggleAudio CommandType = "toggle_audio"
	ToggleVideo CommandType = "toggle_video"
	Hangup      CommandType = "hangup"
)

type Command struct {
	Type CommandType `json:"type"`
}

// Engine delivers events and accepts commands for one connection. The
// owner must Close it exactly once; Close is safe to repeat.
type Engine interface {
	Events() <-chan Event
	Send(ctx context.Context, cmd Command) error
	Close()
}
