package codes

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"classgate/internal/domain"
)

const (
	// MaxBulk is the administrative ceiling for one bulk generation.
	MaxBulk = 1000

	maxGenerateRetries = 32
)

// Store is the persisted side of the registry. Every batch method is
// all-or-nothing: on error nothing is written and the registry leaves its
// in-memory model untouched.
type Store interface {
	LoadCodes(ctx context.Context) ([]*domain.AccessCode, error)
	InsertCodes(ctx context.Context, items []*domain.AccessCode) error
	RenameCodes(ctx context.Context, names map[string]string) error
	SetCodeStatus(ctx context.Context, code string, status domain.CodeStatus) error
	DeleteCodes(ctx context.Context, codes []string) error
	// ImportCodes applies inserts and renames in one transaction.
	ImportCodes(ctx context.Context, inserts []*domain.AccessCode, renames map[string]string) error
}

// ImportItem is one row of an import batch. A nil Name leaves an existing
// code's name unchanged; an empty non-nil Name clears it.
type ImportItem struct {
	Code string
	Name *string
}

// Registry is the single source of truth for which codes exist, their
// names, and their status. Writes go to the store first; memory is only
// mutated after the store accepts the batch.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]*domain.AccessCode
	store Store

	codeLen int
	gen     func(length int) string
}

func NewRegistry(store Store) *Registry {
	return &Registry{
		byID:    make(map[string]*domain.AccessCode),
		store:   store,
		codeLen: DefaultLength,
		gen:     Generate,
	}
}

// SetCodeLength overrides the generated code length. Lengths below 4
// are ignored: the space gets small enough that the collision retry
// bound stops being a safety net.
func (r *Registry) SetCodeLength(n int) {
	if n < 4 {
		return
	}
	r.mu.Lock()
	r.codeLen = n
	r.mu.Unlock()
}

// Load replaces the in-memory collection with the store's contents.
// Called once at startup.
func (r *Registry) Load(ctx context.Context) error {
	items, err := r.store.LoadCodes(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrRemoteUnavailable, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[string]*domain.AccessCode, len(items))
	for _, it := range items {
		r.byID[it.Code] = it
	}
	log.Info().Str("module", "codes.registry").Int("count", len(items)).Msg("loaded codes")
	return nil
}

// GenerateOne creates exactly one new active code, retrying on collision
// with the existing collection up to a fixed bound.
func (r *Registry) GenerateOne(ctx context.Context, name string) (*domain.AccessCode, error) {
	item, err := r.newUniqueCode(name, nil)
	if err != nil {
		return nil, err
	}
	if err := r.store.InsertCodes(ctx, []*domain.AccessCode{item}); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRemoteUnavailable, err)
	}
	r.mu.Lock()
	r.byID[item.Code] = item
	r.mu.Unlock()
	log.Info().Str("module", "codes.registry").Str("code", item.Code).Msg("generated code")
	return copyCode(item), nil
}

// GenerateBulk creates n codes in one logical operation. n is clamped to
// [1, MaxBulk]. Name resolution: len(names)==n uses names positionally; a
// single entry is a prefix with a 1-based suffix per code; any other
// length leaves every name unset.
func (r *Registry) GenerateBulk(ctx context.Context, n int, names []string) ([]*domain.AccessCode, error) {
	if n < 1 {
		n = 1
	}
	if n > MaxBulk {
		n = MaxBulk
	}
	resolved := resolveBulkNames(n, names)

	items := make([]*domain.AccessCode, 0, n)
	batch := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		item, err := r.newUniqueCode(resolved[i], batch)
		if err != nil {
			return nil, err
		}
		batch[item.Code] = struct{}{}
		items = append(items, item)
	}

	if err := r.store.InsertCodes(ctx, items); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRemoteUnavailable, err)
	}
	r.mu.Lock()
	for _, it := range items {
		r.byID[it.Code] = it
	}
	r.mu.Unlock()
	log.Info().Str("module", "codes.registry").Int("count", len(items)).Msg("generated bulk codes")

	out := make([]*domain.AccessCode, len(items))
	for i, it := range items {
		out[i] = copyCode(it)
	}
	return out, nil
}

func resolveBulkNames(n int, names []string) []string {
	out := make([]string, n)
	switch {
	case len(names) == n:
		for i, s := range names {
			out[i] = strings.TrimSpace(s)
		}
	case len(names) == 1 && strings.TrimSpace(names[0]) != "":
		prefix := strings.TrimSpace(names[0])
		for i := range out {
			out[i] = fmt.Sprintf("%s%d", prefix, i+1)
		}
	}
	return out
}

// newUniqueCode draws codes until one misses both the registry and the
// in-flight batch. The retry bound keeps a misconfigured (too small) code
// space from looping forever.
func (r *Registry) newUniqueCode(name string, batch map[string]struct{}) (*domain.AccessCode, error) {
	r.mu.RLock()
	length := r.codeLen
	r.mu.RUnlock()
	for i := 0; i < maxGenerateRetries; i++ {
		candidate := r.gen(length)
		if _, taken := batch[candidate]; taken {
			continue
		}
		r.mu.RLock()
		_, taken := r.byID[candidate]
		r.mu.RUnlock()
		if taken {
			continue
		}
		return domain.NewAccessCode(candidate, name)
	}
	return nil, ErrCollisionExhausted
}

// ImportMany upserts a batch: an existing code gets a name-only update
// (status untouched), a new code is inserted active. Duplicates within
// the batch are dropped keeping the first occurrence. Rows with an empty
// code are skipped, never fatal to the batch.
func (r *Registry) ImportMany(ctx context.Context, items []ImportItem) error {
	inserts := make([]*domain.AccessCode, 0, len(items))
	renames := make(map[string]string)
	seen := make(map[string]struct{}, len(items))

	r.mu.RLock()
	for _, it := range items {
		code := domain.NormalizeCode(it.Code)
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}

		if _, exists := r.byID[code]; exists {
			if it.Name != nil {
				renames[code] = strings.TrimSpace(*it.Name)
			}
			continue
		}
		name := ""
		if it.Name != nil {
			name = *it.Name
		}
		item, err := domain.NewAccessCode(code, name)
		if err != nil {
			continue
		}
		inserts = append(inserts, item)
	}
	r.mu.RUnlock()

	if len(inserts) == 0 && len(renames) == 0 {
		return nil
	}
	if err := r.store.ImportCodes(ctx, inserts, renames); err != nil {
		return fmt.Errorf("%w: %s", ErrRemoteUnavailable, err)
	}

	r.mu.Lock()
	for _, it := range inserts {
		r.byID[it.Code] = it
	}
	for code, name := range renames {
		if it, ok := r.byID[code]; ok {
			it.Name = name
		}
	}
	r.mu.Unlock()
	log.Info().Str("module", "codes.registry").Int("inserted", len(inserts)).Int("renamed", len(renames)).Msg("imported codes")
	return nil
}

// SetName updates one code's display name. A nil name leaves it
// unchanged; an empty non-nil name clears it. Unknown codes are a no-op.
func (r *Registry) SetName(ctx context.Context, code string, name *string) error {
	if name == nil {
		return nil
	}
	id := domain.NormalizeCode(code)
	r.mu.RLock()
	_, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	next := strings.TrimSpace(*name)
	if err := r.store.RenameCodes(ctx, map[string]string{id: next}); err != nil {
		return fmt.Errorf("%w: %s", ErrRemoteUnavailable, err)
	}
	r.mu.Lock()
	if it, ok := r.byID[id]; ok {
		it.Name = next
	}
	r.mu.Unlock()
	return nil
}

// SetNamesBulk assigns names positionally. With overwrite=false any code
// that already has a non-empty name is skipped; with overwrite=true the
// name is always replaced, including clearing to empty. Codes beyond
// len(names) and unknown codes are skipped.
func (r *Registry) SetNamesBulk(ctx context.Context, codeList, names []string, overwrite bool) error {
	renames := make(map[string]string)
	r.mu.RLock()
	for i, code := range codeList {
		if i >= len(names) {
			break
		}
		id := domain.NormalizeCode(code)
		it, ok := r.byID[id]
		if !ok {
			continue
		}
		if !overwrite && it.Name != "" {
			continue
		}
		renames[id] = strings.TrimSpace(names[i])
	}
	r.mu.RUnlock()

	if len(renames) == 0 {
		return nil
	}
	if err := r.store.RenameCodes(ctx, renames); err != nil {
		return fmt.Errorf("%w: %s", ErrRemoteUnavailable, err)
	}
	r.mu.Lock()
	for code, name := range renames {
		if it, ok := r.byID[code]; ok {
			it.Name = name
		}
	}
	r.mu.Unlock()
	return nil
}

// SetStatus transitions a code between active and revoked. Setting the
// current status again is a no-op, as is an unknown code.
func (r *Registry) SetStatus(ctx context.Context, code string, status domain.CodeStatus) error {
	id := domain.NormalizeCode(code)
	r.mu.RLock()
	it, ok := r.byID[id]
	current := domain.CodeStatus("")
	if ok {
		current = it.Status
	}
	r.mu.RUnlock()
	if !ok || current == status {
		return nil
	}
	if err := r.store.SetCodeStatus(ctx, id, status); err != nil {
		return fmt.Errorf("%w: %s", ErrRemoteUnavailable, err)
	}
	r.mu.Lock()
	if it, ok := r.byID[id]; ok {
		it.Status = status
	}
	r.mu.Unlock()
	log.Info().Str("module", "codes.registry").Str("code", id).Str("status", string(status)).Msg("status changed")
	return nil
}

// RemoveMany deletes matching codes. Deleting an absent code is not an
// error.
func (r *Registry) RemoveMany(ctx context.Context, codeList []string) error {
	targets := make([]string, 0, len(codeList))
	r.mu.RLock()
	for _, code := range codeList {
		id := domain.NormalizeCode(code)
		if _, ok := r.byID[id]; ok {
			targets = append(targets, id)
		}
	}
	r.mu.RUnlock()

	if len(targets) == 0 {
		return nil
	}
	if err := r.store.DeleteCodes(ctx, targets); err != nil {
		return fmt.Errorf("%w: %s", ErrRemoteUnavailable, err)
	}
	r.mu.Lock()
	for _, id := range targets {
		delete(r.byID, id)
	}
	r.mu.Unlock()
	log.Info().Str("module", "codes.registry").Int("count", len(targets)).Msg("removed codes")
	return nil
}

// Find looks a code up case-insensitively. Returns nil when absent.
func (r *Registry) Find(code string) *domain.AccessCode {
	id := domain.NormalizeCode(code)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if it, ok := r.byID[id]; ok {
		return copyCode(it)
	}
	return nil
}

// Validate is the join-time check. It distinguishes a missing code from a
// revoked one so the caller can present a precise message.
func (r *Registry) Validate(code string) (*domain.AccessCode, error) {
	it := r.Find(code)
	if it == nil {
		return nil, ErrNotFound
	}
	if it.Status == domain.CodeRevoked {
		return nil, ErrRevoked
	}
	return it, nil
}

// List snapshots the collection, newest first.
func (r *Registry) List() []*domain.AccessCode {
	r.mu.RLock()
	out := make([]*domain.AccessCode, 0, len(r.byID))
	for _, it := range r.byID {
		out = append(out, copyCode(it))
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Code < out[j].Code
	})
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func copyCode(it *domain.AccessCode) *domain.AccessCode {
	cp := *it
	return &cp
}
