// Package memory provides a process-local implementation of the persistence
// repositories. It backs the "memory" storage mode and tests that do not need
// SQL.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/workorder-scheduler/internal/persistence"
)

type storedWorkOrder struct {
	order persistence.WorkOrder
	seq   uint64
}

// Store is an in-memory persistence layer. It is safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	users      map[string]persistence.User
	sessions   map[string]persistence.Session
	workOrders map[string]storedWorkOrder
	seq        uint64
	now        func() time.Time
}

// New returns an empty store using now for default timestamps.
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		users:      make(map[string]persistence.User),
		sessions:   make(map[string]persistence.Session),
		workOrders: make(map[string]storedWorkOrder),
		now:        now,
	}
}

// Close is a no-op kept for parity with the SQLite storage.
func (s *Store) Close() error {
	return nil
}

// Migrate is a no-op kept for parity with the SQLite storage.
func (s *Store) Migrate(context.Context) error {
	return nil
}

// --- WorkOrderRepository implementation ---

// CreateWorkOrder stores a new work order, generating an ID when missing.
func (s *Store) CreateWorkOrder(ctx context.Context, order persistence.WorkOrder) (persistence.WorkOrder, error) {
	if err := ctx.Err(); err != nil {
		return persistence.WorkOrder{}, err
	}
	if order.WorkOrderNumber == "" {
		return persistence.WorkOrder{}, fmt.Errorf("%w: work order number is required", persistence.ErrConstraintViolation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if _, ok := s.workOrders[order.ID]; ok {
		return persistence.WorkOrder{}, fmt.Errorf("%w: work order %s already exists", persistence.ErrDuplicate, order.ID)
	}

	now := s.now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}

	s.seq++
	s.workOrders[order.ID] = storedWorkOrder{order: persistence.CloneWorkOrder(order), seq: s.seq}
	return persistence.CloneWorkOrder(order), nil
}

// UpdateWorkOrder applies patch to a stored work order.
func (s *Store) UpdateWorkOrder(ctx context.Context, id string, patch persistence.WorkOrderPatch) (persistence.WorkOrder, error) {
	if err := ctx.Err(); err != nil {
		return persistence.WorkOrder{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.workOrders[id]
	if !ok {
		return persistence.WorkOrder{}, persistence.ErrNotFound
	}
	if patch.UpdatedAt.IsZero() {
		patch.UpdatedAt = s.now().UTC()
	}

	stored.order = patch.Apply(stored.order)
	s.workOrders[id] = stored
	return persistence.CloneWorkOrder(stored.order), nil
}

// GetWorkOrder retrieves a work order by ID.
func (s *Store) GetWorkOrder(ctx context.Context, id string) (persistence.WorkOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.workOrders[id]
	if !ok {
		return persistence.WorkOrder{}, persistence.ErrNotFound
	}
	return persistence.CloneWorkOrder(stored.order), nil
}

// ListWorkOrders returns work orders ordered as requested; ties fall back to
// insertion order.
func (s *Store) ListWorkOrders(ctx context.Context, opts persistence.ListOptions) ([]persistence.WorkOrder, error) {
	field, descending, err := persistence.ParseSort(opts.Sort)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	entries := make([]storedWorkOrder, 0, len(s.workOrders))
	for _, stored := range s.workOrders {
		entries = append(entries, stored)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		cmp := compareBy(field, entries[i].order, entries[j].order)
		if cmp == 0 {
			cmp = compareUint(entries[i].seq, entries[j].seq)
		}
		if descending {
			return cmp > 0
		}
		return cmp < 0
	})

	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}

	orders := make([]persistence.WorkOrder, 0, len(entries))
	for _, entry := range entries {
		orders = append(orders, persistence.CloneWorkOrder(entry.order))
	}
	return orders, nil
}

func compareBy(field persistence.SortField, a, b persistence.WorkOrder) int {
	if field == persistence.SortPlannedStart {
		switch {
		case a.PlannedStart == nil && b.PlannedStart == nil:
			return 0
		case a.PlannedStart == nil:
			return -1
		case b.PlannedStart == nil:
			return 1
		}
		return a.PlannedStart.Compare(*b.PlannedStart)
	}
	return a.CreatedAt.Compare(b.CreatedAt)
}

func compareUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// --- UserRepository implementation ---

// CreateUser stores a new user.
func (s *Store) CreateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || user.PasswordHash == "" {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return fmt.Errorf("%w: user %s already exists", persistence.ErrDuplicate, user.ID)
	}
	user.Email = normalizeEmail(user.Email)
	for _, existing := range s.users {
		if existing.Email == user.Email {
			return fmt.Errorf("%w: email %s already registered", persistence.ErrDuplicate, user.Email)
		}
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now().UTC()
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}

	s.users[user.ID] = user
	return nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (persistence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return persistence.User{}, persistence.ErrNotFound
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email address.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	normalized := normalizeEmail(email)
	for _, user := range s.users {
		if user.Email == normalized {
			return user, nil
		}
	}
	return persistence.User{}, persistence.ErrNotFound
}

// ListUsers returns all users ordered by CreatedAt ascending.
func (s *Store) ListUsers(ctx context.Context) ([]persistence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]persistence.User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

// --- SessionRepository implementation ---

// CreateSession stores a session keyed by its token.
func (s *Store) CreateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	session.Token = strings.TrimSpace(session.Token)
	if session.ID == "" || session.UserID == "" || session.Token == "" {
		return persistence.Session{}, persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[session.UserID]; !ok {
		return persistence.Session{}, persistence.ErrForeignKeyViolation
	}
	if _, ok := s.sessions[session.Token]; ok {
		return persistence.Session{}, persistence.ErrDuplicate
	}

	now := s.now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	s.sessions[session.Token] = cloneSession(session)
	return cloneSession(session), nil
}

// GetSession retrieves a session by token.
func (s *Store) GetSession(ctx context.Context, token string) (persistence.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[strings.TrimSpace(token)]
	if !ok {
		return persistence.Session{}, persistence.ErrNotFound
	}
	return cloneSession(session), nil
}

// RevokeSession marks a session as revoked. Revoking twice keeps the first
// revocation time.
func (s *Store) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (persistence.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token = strings.TrimSpace(token)
	session, ok := s.sessions[token]
	if !ok {
		return persistence.Session{}, persistence.ErrNotFound
	}
	if session.RevokedAt == nil {
		revoked := revokedAt.UTC()
		session.RevokedAt = &revoked
	}
	session.UpdatedAt = revokedAt.UTC()
	s.sessions[token] = session
	return cloneSession(session), nil
}

// DeleteExpiredSessions removes sessions expiring on or before reference.
func (s *Store) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for token, session := range s.sessions {
		if !session.ExpiresAt.After(reference) {
			delete(s.sessions, token)
		}
	}
	return nil
}

func cloneSession(session persistence.Session) persistence.Session {
	clone := session
	if session.RevokedAt != nil {
		revoked := *session.RevokedAt
		clone.RevokedAt = &revoked
	}
	return clone
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
