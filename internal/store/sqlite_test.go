package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"classgate/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCodeRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	item, err := domain.NewAccessCode("abcd2345", "Alice")
	if err != nil {
		t.Fatalf("new code: %v", err)
	}
	if err := s.InsertCodes(ctx, []*domain.AccessCode{item}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	loaded, err := s.LoadCodes(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("loaded %d codes, want 1", len(loaded))
	}
	got := loaded[0]
	if got.Code != "ABCD2345" || got.Name != "Alice" || got.Status != domain.CodeActive {
		t.Errorf("loaded = %+v", got)
	}

	if err := s.RenameCodes(ctx, map[string]string{"ABCD2345": "Bob"}); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if err := s.SetCodeStatus(ctx, "ABCD2345", domain.CodeRevoked); err != nil {
		t.Fatalf("set status: %v", err)
	}

	loaded, _ = s.LoadCodes(ctx)
	if loaded[0].Name != "Bob" || loaded[0].Status != domain.CodeRevoked {
		t.Errorf("after mutation = %+v", loaded[0])
	}

	if err := s.DeleteCodes(ctx, []string{"ABCD2345"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	loaded, _ = s.LoadCodes(ctx)
	if len(loaded) != 0 {
		t.Errorf("loaded %d codes after delete, want 0", len(loaded))
	}
}

func TestInsertBatchAtomic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, _ := domain.NewAccessCode("aaaa2222", "")
	b, _ := domain.NewAccessCode("aaaa2222", "") // duplicate primary key

	if err := s.InsertCodes(ctx, []*domain.AccessCode{a, b}); err == nil {
		t.Fatal("duplicate insert succeeded, want error")
	}
	loaded, err := s.LoadCodes(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("partial batch persisted: %d rows", len(loaded))
	}
}

func TestImportCodesTransaction(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	existing, _ := domain.NewAccessCode("keep1234", "Old")
	if err := s.InsertCodes(ctx, []*domain.AccessCode{existing}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	fresh, _ := domain.NewAccessCode("newc5678", "Fresh")
	err := s.ImportCodes(ctx, []*domain.AccessCode{fresh}, map[string]string{"KEEP1234": "New"})
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	loaded, _ := s.LoadCodes(ctx)
	byCode := make(map[string]*domain.AccessCode)
	for _, it := range loaded {
		byCode[it.Code] = it
	}
	if byCode["KEEP1234"].Name != "New" {
		t.Errorf("rename not applied: %+v", byCode["KEEP1234"])
	}
	if byCode["NEWC5678"] == nil {
		t.Error("insert not applied")
	}
}

func TestSessionRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess := domain.NewVideoSession("physics-101", "abcd2345")
	sess.Status = domain.SessionActive
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create session: %v", err)
	}

	got, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got == nil || got.RoomName != "physics-101" || got.Status != domain.SessionActive {
		t.Errorf("got = %+v", got)
	}

	if err := s.UpdateSessionStatus(ctx, sess.ID, domain.SessionEnded); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, _ = s.GetSession(ctx, sess.ID)
	if got.Status != domain.SessionEnded {
		t.Errorf("status = %s, want ended", got.Status)
	}

	missing, err := s.GetSession(ctx, "no-such-id")
	if err != nil || missing != nil {
		t.Errorf("missing session: %+v, %v", missing, err)
	}
}

func waitChange(t *testing.T, ch <-chan ParticipantChange) ParticipantChange {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no change delivered")
		return ParticipantChange{}
	}
}

func TestParticipantChangeFeed(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess := domain.NewVideoSession("physics-101", "abcd2345")
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create session: %v", err)
	}

	ch, cancel := s.ParticipantChanges(sess.ID)
	other, otherCancel := s.ParticipantChanges("other-session")
	defer otherCancel()

	p := domain.NewParticipant("peer-1", "Bob", "", false)
	if err := s.AddParticipant(ctx, sess.ID, p); err != nil {
		t.Fatalf("add participant: %v", err)
	}
	ev := waitChange(t, ch)
	if ev.Kind != ChangeInsert || ev.Participant.ID != "peer-1" || ev.Participant.DisplayName != "Bob" {
		t.Errorf("insert event = %+v", ev)
	}

	if err := s.UpdateParticipantName(ctx, sess.ID, "peer-1", "Robert"); err != nil {
		t.Fatalf("update participant: %v", err)
	}
	ev = waitChange(t, ch)
	if ev.Kind != ChangeUpdate || ev.Participant.DisplayName != "Robert" {
		t.Errorf("update event = %+v", ev)
	}

	if err := s.RemoveParticipant(ctx, sess.ID, "peer-1"); err != nil {
		t.Fatalf("remove participant: %v", err)
	}
	ev = waitChange(t, ch)
	if ev.Kind != ChangeDelete || ev.Participant.ID != "peer-1" {
		t.Errorf("delete event = %+v", ev)
	}

	// The other session's subscriber saw none of it.
	select {
	case ev := <-other:
		t.Errorf("cross-session delivery: %+v", ev)
	default:
	}

	// Release is single-shot and safe to repeat; the channel closes.
	cancel()
	cancel()
	if _, open := <-ch; open {
		t.Error("channel still open after unsubscribe")
	}

	// Writes after unsubscribe do not panic or deliver.
	if err := s.AddParticipant(ctx, sess.ID, p); err != nil {
		t.Fatalf("add after unsubscribe: %v", err)
	}
}

func TestSessionChangeFeed(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sub := s.SubscribeSessions("physics-101")
	defer sub.Unsubscribe()
	other := s.SubscribeSessions("other-room")
	defer other.Unsubscribe()

	sess := domain.NewVideoSession("physics-101", "abcd2345")
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create session: %v", err)
	}

	select {
	case ev := <-sub.C:
		if ev.Kind != ChangeInsert || ev.Session.ID != sess.ID {
			t.Errorf("insert event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no session change delivered")
	}

	if err := s.UpdateSessionStatus(ctx, sess.ID, domain.SessionEnded); err != nil {
		t.Fatalf("update status: %v", err)
	}
	select {
	case ev := <-sub.C:
		if ev.Kind != ChangeUpdate || ev.Session.Status != domain.SessionEnded {
			t.Errorf("update event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}

	select {
	case ev := <-other.C:
		t.Errorf("cross-room delivery: %+v", ev)
	default:
	}
}

func TestAddParticipantUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sess := domain.NewVideoSession("room", "abcd2345")
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create session: %v", err)
	}

	p := domain.NewParticipant("peer-1", "Bob", "", false)
	if err := s.AddParticipant(ctx, sess.ID, p); err != nil {
		t.Fatalf("first add: %v", err)
	}
	// Re-delivered join fact must not error.
	p.DisplayName = "Bobby"
	if err := s.AddParticipant(ctx, sess.ID, p); err != nil {
		t.Fatalf("second add: %v", err)
	}
}
