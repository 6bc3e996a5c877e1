// Package session holds one client's view of a live room: the session
// lifecycle and the reconciled participant set fed by the media engine's
// local events and the store's change feed.
package session

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"classgate/internal/codes"
	"classgate/internal/domain"
	"classgate/internal/engine"
	"classgate/internal/store"
)

// Validator is the join-time access-code check.
type Validator interface {
	Validate(code string) (*domain.AccessCode, error)
}

// Store is the remote side of a membership: the persisted session and
// participant records shared by every client in the room.
type Store interface {
	CreateSession(ctx context.Context, sess *domain.VideoSession) error
	UpdateSessionStatus(ctx context.Context, id domain.SessionID, status domain.SessionStatus) error
	AddParticipant(ctx context.Context, sessionID domain.SessionID, p *domain.Participant) error
	RemoveParticipant(ctx context.Context, sessionID domain.SessionID, id domain.ParticipantID) error
	ParticipantChanges(sessionID domain.SessionID) (<-chan store.ParticipantChange, func())
}

// Membership owns the canonical participant set for one session on one
// client. Local engine events and remote change-feed records both land
// here; the id-keyed set plus idempotent handlers make the merge safe
// under re-delivery and cross-channel reordering.
type Membership struct {
	mu           sync.RWMutex
	status       domain.SessionStatus
	sess         *domain.VideoSession
	local        *domain.Participant
	participants map[domain.ParticipantID]*domain.Participant
	unsubscribe  func()

	room      domain.RoomName
	code      string
	validator Validator
	store     Store
	eng       engine.Engine
}

// New builds a membership in the Created state. eng may be nil for
// observers that only follow the change feed.
func New(room domain.RoomName, accessCode string, validator Validator, st Store, eng engine.Engine) *Membership {
	return &Membership{
		status:       domain.SessionCreated,
		participants: make(map[domain.ParticipantID]*domain.Participant),
		room:         room,
		code:         domain.NormalizeCode(accessCode),
		validator:    validator,
		store:        st,
		eng:          eng,
	}
}

// Validate checks the access code before anything joins. Rejections
// distinguish a missing code, a revoked code, and an unreachable
// validation service; any of them is fatal to session creation.
func (m *Membership) Validate() (*domain.AccessCode, error) {
	record, err := m.validator.Validate(m.code)
	switch {
	case err == nil:
		return record, nil
	case errors.Is(err, codes.ErrNotFound):
		return nil, ErrCodeInvalid
	case errors.Is(err, codes.ErrRevoked):
		return nil, ErrCodeRevoked
	default:
		return nil, errors.Join(ErrValidationUnavailable, err)
	}
}

// Run consumes engine events until the channel closes or the session
// ends. Callers that feed events manually use HandleEngineEvent instead.
func (m *Membership) Run(ctx context.Context) {
	if m.eng == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			m.End(context.Background())
			return
		case ev, ok := <-m.eng.Events():
			if !ok {
				m.End(context.Background())
				return
			}
			m.HandleEngineEvent(ctx, ev)
		}
	}
}

// HandleEngineEvent applies one local-channel fact. Local state always
// updates first; mirroring to the store is best-effort and never blocks
// or fails the local view.
func (m *Membership) HandleEngineEvent(ctx context.Context, ev engine.Event) {
	switch ev.Type {
	case engine.ConferenceJoined:
		m.handleConferenceJoined(ctx, ev)
	case engine.ParticipantJoined:
		m.handleParticipantJoined(ctx, ev)
	case engine.ParticipantLeft:
		m.handleParticipantLeft(ctx, ev)
	case engine.AudioMuteChanged:
		m.handleMuteChanged(ev, true)
	case engine.VideoMuteChanged:
		m.handleMuteChanged(ev, false)
	case engine.ConferenceLeft, engine.ReadyToClose:
		m.End(ctx)
	default:
		log.Warn().Str("module", "session.membership").Str("type", string(ev.Type)).Msg("unknown engine event")
	}
}

// handleConferenceJoined fires the Created -> Active transition: the
// local participant enters the set, the session record is created, and
// the change feed is subscribed. A store failure degrades to a local-only
// session rather than failing the membership.
func (m *Membership) handleConferenceJoined(ctx context.Context, ev engine.Event) {
	id := ev.ID
	if id == "" {
		id = "local"
	}

	local := domain.NewParticipant(id, ev.DisplayName, ev.Email, true)

	m.mu.Lock()
	if m.status != domain.SessionCreated {
		m.mu.Unlock()
		return
	}
	m.status = domain.SessionActive
	m.local = local
	m.participants[id] = local
	m.mu.Unlock()

	sess := domain.NewVideoSession(m.room, m.code)
	sess.Status = domain.SessionActive
	if err := m.store.CreateSession(ctx, sess); err != nil {
		log.Error().Str("module", "session.membership").Err(err).Msg("session creation failed, continuing local-only")
		return
	}

	changes, cancel := m.store.ParticipantChanges(sess.ID)

	m.mu.Lock()
	if m.status != domain.SessionActive {
		// Ended while we were creating the record.
		m.mu.Unlock()
		cancel()
		_ = m.store.UpdateSessionStatus(ctx, sess.ID, domain.SessionEnded)
		return
	}
	m.sess = sess
	m.unsubscribe = cancel
	// Snapshot before unlocking: once followChanges runs, the feed may
	// rewrite the mapped participant concurrently.
	cp := *local
	m.mu.Unlock()

	go m.followChanges(changes)
	m.mirrorAdd(ctx, &cp)
	log.Info().Str("module", "session.membership").Str("session", string(sess.ID)).Str("room", string(m.room)).Msg("session active")
}

func (m *Membership) handleParticipantJoined(ctx context.Context, ev engine.Event) {
	if ev.ID == "" {
		return
	}
	p := domain.NewParticipant(ev.ID, ev.DisplayName, ev.Email, false)

	m.mu.Lock()
	if m.status == domain.SessionEnded {
		m.mu.Unlock()
		return
	}
	if _, seen := m.participants[ev.ID]; seen {
		// Re-delivered join, or the change feed got there first.
		m.mu.Unlock()
		return
	}
	m.participants[ev.ID] = p
	cp := *p
	m.mu.Unlock()

	m.mirrorAdd(ctx, &cp)
}

func (m *Membership) handleParticipantLeft(ctx context.Context, ev engine.Event) {
	m.mu.Lock()
	_, seen := m.participants[ev.ID]
	delete(m.participants, ev.ID)
	m.mu.Unlock()
	if !seen {
		return
	}
	m.mirrorRemove(ctx, ev.ID)
}

// handleMuteChanged touches only mute flags, never membership. An empty
// id refers to the local participant.
func (m *Membership) handleMuteChanged(ev engine.Event, audio bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := ev.ID
	if id == "" {
		if m.local == nil {
			return
		}
		id = m.local.ID
	}
	p, ok := m.participants[id]
	if !ok {
		return
	}
	if audio {
		p.AudioMuted = ev.Muted
	} else {
		p.VideoMuted = ev.Muted
	}
}

// followChanges drains the remote channel until unsubscribed.
func (m *Membership) followChanges(changes <-chan store.ParticipantChange) {
	for ev := range changes {
		m.ApplyRemoteChange(ev)
	}
}

// ApplyRemoteChange applies one change-feed record. Identity is the
// engine participant id; the handlers are idempotent, so feed order need
// not match local-channel order for the same fact.
func (m *Membership) ApplyRemoteChange(ev store.ParticipantChange) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == domain.SessionEnded {
		return
	}

	id := ev.Participant.ID
	switch ev.Kind {
	case store.ChangeInsert:
		// Our own mirrored join comes back on this channel; the local
		// entry already exists and must not be duplicated.
		if m.local != nil && id == m.local.ID {
			return
		}
		if _, seen := m.participants[id]; seen {
			return
		}
		m.participants[id] = domain.NewParticipant(id, ev.Participant.DisplayName, ev.Participant.Email, false)
	case store.ChangeUpdate:
		if p, ok := m.participants[id]; ok && ev.Participant.DisplayName != "" {
			p.DisplayName = ev.Participant.DisplayName
		}
	case store.ChangeDelete:
		delete(m.participants, id)
	}
}

// mirrorAdd and mirrorRemove push local facts into the shared record.
// Fire-and-forget: a store failure degrades remote observers, never the
// local view.
func (m *Membership) mirrorAdd(ctx context.Context, p *domain.Participant) {
	m.mu.RLock()
	sess := m.sess
	m.mu.RUnlock()
	if sess == nil {
		return
	}
	if err := m.store.AddParticipant(ctx, sess.ID, p); err != nil {
		log.Warn().Str("module", "session.membership").Err(err).Str("participant", string(p.ID)).Msg("mirror add failed")
	}
}

func (m *Membership) mirrorRemove(ctx context.Context, id domain.ParticipantID) {
	m.mu.RLock()
	sess := m.sess
	m.mu.RUnlock()
	if sess == nil {
		return
	}
	if err := m.store.RemoveParticipant(ctx, sess.ID, id); err != nil {
		log.Warn().Str("module", "session.membership").Err(err).Str("participant", string(id)).Msg("mirror remove failed")
	}
}

// End is the Active -> Ended transition. Idempotent: the ready-to-close
// and conference-left signals can both arrive for one departure. It
// releases the feed subscription exactly once and best-effort marks the
// stored session ended.
func (m *Membership) End(ctx context.Context) {
	m.mu.Lock()
	if m.status == domain.SessionEnded {
		m.mu.Unlock()
		return
	}
	m.status = domain.SessionEnded
	sess := m.sess
	local := m.local
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	// Ending the session implicitly removes every participant.
	m.participants = make(map[domain.ParticipantID]*domain.Participant)
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if sess != nil {
		if local != nil {
			if err := m.store.RemoveParticipant(ctx, sess.ID, local.ID); err != nil {
				log.Warn().Str("module", "session.membership").Err(err).Msg("remove local participant failed")
			}
		}
		if err := m.store.UpdateSessionStatus(ctx, sess.ID, domain.SessionEnded); err != nil {
			log.Warn().Str("module", "session.membership").Err(err).Msg("mark session ended failed")
		}
	}
	if m.eng != nil {
		m.eng.Close()
	}
	log.Info().Str("module", "session.membership").Str("room", string(m.room)).Msg("session ended")
}

// --- outbound controls: forwarded to the engine, never touched by store
// failures ---

func (m *Membership) ToggleAudio(ctx context.Context) error {
	return m.command(ctx, engine.ToggleAudio)
}

func (m *Membership) ToggleVideo(ctx context.Context) error {
	return m.command(ctx, engine.ToggleVideo)
}

// Hangup asks the engine to leave; the resulting conference-left event
// drives End.
func (m *Membership) Hangup(ctx context.Context) error {
	return m.command(ctx, engine.Hangup)
}

func (m *Membership) command(ctx context.Context, t engine.CommandType) error {
	if m.eng == nil {
		return nil
	}
	return m.eng.Send(ctx, engine.Command{Type: t})
}

// --- read side ---

func (m *Membership) Status() domain.SessionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Membership) Session() *domain.VideoSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.sess == nil {
		return nil
	}
	cp := *m.sess
	return &cp
}

func (m *Membership) Local() *domain.Participant {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.local == nil {
		return nil
	}
	cp := *m.local
	return &cp
}

// Participants snapshots the reconciled set, ordered by id for stable
// output.
func (m *Membership) Participants() []domain.Participant {
	m.mu.RLock()
	out := make([]domain.Participant, 0, len(m.participants))
	for _, p := range m.participants {
		out = append(out, *p)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
