package store

import (
	"sync"

	"github.com/rs/zerolog/log"

	"classgate/internal/domain"
)

type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// ParticipantChange is one notification from the participant record set.
// For deletes only Participant.ID is meaningful.
type ParticipantChange struct {
	Kind        ChangeKind
	SessionID   domain.SessionID
	Participant domain.Participant
}

// SessionChange is one notification from the session record set.
type SessionChange struct {
	Kind    ChangeKind
	Session domain.VideoSession
}

// ParticipantSub delivers participant changes for one session. The
// creator owns the subscription and must call Unsubscribe exactly once
// when done; Unsubscribe is safe to call more than once.
type ParticipantSub struct {
	C      <-chan ParticipantChange
	ch     chan ParticipantChange
	once   sync.Once
	cancel func()
}

func (s *ParticipantSub) Unsubscribe() {
	s.once.Do(s.cancel)
}

// SessionSub delivers session changes for one room.
type SessionSub struct {
	C      <-chan SessionChange
	ch     chan SessionChange
	once   sync.Once
	cancel func()
}

func (s *SessionSub) Unsubscribe() {
	s.once.Do(s.cancel)
}

const subBuffer = 64

// feed fans committed writes out to subscribers. Delivery is best-effort:
// a subscriber that stops draining loses notifications rather than
// blocking writers.
type feed struct {
	mu              sync.Mutex
	nextID          int
	participantSubs map[int]*participantEntry
	sessionSubs     map[int]*sessionEntry
}

type participantEntry struct {
	sessionID domain.SessionID
	sub       *ParticipantSub
}

type sessionEntry struct {
	room domain.RoomName
	sub  *SessionSub
}

func newFeed() *feed {
	return &feed{
		participantSubs: make(map[int]*participantEntry),
		sessionSubs:     make(map[int]*sessionEntry),
	}
}

func (f *feed) subscribeParticipants(sessionID domain.SessionID) *ParticipantSub {
	ch := make(chan ParticipantChange, subBuffer)
	sub := &ParticipantSub{C: ch, ch: ch}

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.participantSubs[id] = &participantEntry{sessionID: sessionID, sub: sub}
	f.mu.Unlock()

	// Close under the feed lock so no publish can race the close.
	sub.cancel = func() {
		f.mu.Lock()
		delete(f.participantSubs, id)
		close(ch)
		f.mu.Unlock()
	}
	return sub
}

func (f *feed) subscribeSessions(room domain.RoomName) *SessionSub {
	ch := make(chan SessionChange, subBuffer)
	sub := &SessionSub{C: ch, ch: ch}

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.sessionSubs[id] = &sessionEntry{room: room, sub: sub}
	f.mu.Unlock()

	sub.cancel = func() {
		f.mu.Lock()
		delete(f.sessionSubs, id)
		close(ch)
		f.mu.Unlock()
	}
	return sub
}

func (f *feed) publishParticipant(ev ParticipantChange) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.participantSubs {
		if e.sessionID != ev.SessionID {
			continue
		}
		select {
		case e.sub.ch <- ev:
		default:
			log.Warn().Str("module", "store.feed").Str("session", string(ev.SessionID)).Msg("participant change dropped, slow subscriber")
		}
	}
}

func (f *feed) publishSession(ev SessionChange) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.sessionSubs {
		if e.room != ev.Session.RoomName {
			continue
		}
		select {
		case e.sub.ch <- ev:
		default:
			log.Warn().Str("module", "store.feed").Str("room", string(ev.Session.RoomName)).Msg("session change dropped, slow subscriber")
		}
	}
}
