package domain

import (
	"time"

	"github.com/google/uuid"
)

type (
	RoomName  string
	SessionID string
)

type SessionStatus string

const (
	SessionCreated SessionStatus = "created"
	SessionActive  SessionStatus = "active"
	SessionEnded   SessionStatus = "ended"
)

// VideoSession is one client's run of a room. AccessCode records which
// code authorized creation; it is audit data, never re-validated per event.
type VideoSession struct {
	ID         SessionID     `json:"id"`
	RoomName   RoomName      `json:"room_name"`
	AccessCode string        `json:"access_code"`
	Status     SessionStatus `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
}

func NewVideoSession(room RoomName, accessCode string) *VideoSession {
	return &VideoSession{
		ID:         SessionID(uuid.NewString()),
		RoomName:   room,
		AccessCode: NormalizeCode(accessCode),
		Status:     SessionCreated,
		StartedAt:  time.Now(),
	}
}
