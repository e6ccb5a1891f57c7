package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"dispatchdesk/internal/models"
)

// In-memory implementations back local runs without DATABASE_URL and the
// service tests. They honour the same uniqueness rules as the schema.

type MemoryVerificationAttemptRepository struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]*models.VerificationAttempt
	tokens   map[string]uuid.UUID
}

func NewMemoryVerificationAttemptRepository() *MemoryVerificationAttemptRepository {
	return &MemoryVerificationAttemptRepository{
		attempts: make(map[uuid.UUID]*models.VerificationAttempt),
		tokens:   make(map[string]uuid.UUID),
	}
}

func (r *MemoryVerificationAttemptRepository) Create(_ context.Context, a *models.VerificationAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.attempts[a.ID]; ok {
		return ErrAlreadyExists
	}
	if _, ok := r.tokens[a.LinkToken]; ok {
		return ErrAlreadyExists
	}
	r.attempts[a.ID] = a.Clone()
	r.tokens[a.LinkToken] = a.ID
	return nil
}

func (r *MemoryVerificationAttemptRepository) GetByID(_ context.Context, id uuid.UUID) (*models.VerificationAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

func (r *MemoryVerificationAttemptRepository) GetByLinkToken(_ context.Context, token string) (*models.VerificationAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.tokens[token]
	if !ok {
		return nil, ErrNotFound
	}
	return r.attempts[id].Clone(), nil
}

func (r *MemoryVerificationAttemptRepository) MutateByID(_ context.Context, id uuid.UUID, fn AttemptMutation) (*models.VerificationAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.apply(a, fn), nil
}

func (r *MemoryVerificationAttemptRepository) MutateLatestWaitingByChatID(_ context.Context, chatID int64, fn AttemptMutation) (*models.VerificationAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.VerificationAttempt
	for _, a := range r.attempts {
		if a.Status != models.StatusWaitingForContact || a.ChatID == nil || *a.ChatID != chatID {
			continue
		}
		if latest == nil || newerAttempt(a, latest) {
			latest = a
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return r.apply(latest, fn), nil
}

// newerAttempt orders by created_at and breaks ties on the id so the pick
// does not depend on map iteration order.
func newerAttempt(a, b *models.VerificationAttempt) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID.String() > b.ID.String()
}

func (r *MemoryVerificationAttemptRepository) apply(stored *models.VerificationAttempt, fn AttemptMutation) *models.VerificationAttempt {
	work := stored.Clone()
	if !fn(work) {
		return stored.Clone()
	}
	// id and link token are immutable
	work.ID = stored.ID
	work.LinkToken = stored.LinkToken
	r.attempts[stored.ID] = work
	return work.Clone()
}

type MemoryUserRepository struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]*models.User
	byPh   map[string]int64
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID: make(map[int64]*models.User),
		byPh: make(map[string]int64),
	}
}

func (r *MemoryUserRepository) Create(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byPh[user.Phone]; ok {
		return ErrAlreadyExists
	}
	r.nextID++
	user.ID = r.nextID
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	stored := *user
	r.byID[user.ID] = &stored
	r.byPh[user.Phone] = user.ID
	return nil
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id int64) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	return &out, nil
}

func (r *MemoryUserRepository) GetByPhone(_ context.Context, phone string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPh[phone]
	if !ok {
		return nil, ErrNotFound
	}
	out := *r.byID[id]
	return &out, nil
}

type MemoryTelegramLinkRepository struct {
	mu     sync.RWMutex
	nextID int64
	chats  map[int64]models.TelegramIdentity
	users  map[int64]models.TelegramIdentity
}

func NewMemoryTelegramLinkRepository() *MemoryTelegramLinkRepository {
	return &MemoryTelegramLinkRepository{
		chats: make(map[int64]models.TelegramIdentity),
		users: make(map[int64]models.TelegramIdentity),
	}
}

func (r *MemoryTelegramLinkRepository) GetByChatID(_ context.Context, chatID int64) (*models.TelegramIdentity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.chats[chatID]
	if !ok {
		return nil, ErrNotFound
	}
	return &l, nil
}

func (r *MemoryTelegramLinkRepository) GetByUserID(_ context.Context, userID int64) (*models.TelegramIdentity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &l, nil
}

func (r *MemoryTelegramLinkRepository) Create(_ context.Context, link *models.TelegramIdentity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.chats[link.ChatID]; ok {
		return ErrAlreadyExists
	}
	if _, ok := r.users[link.UserID]; ok {
		return ErrAlreadyExists
	}
	r.nextID++
	link.ID = r.nextID
	r.chats[link.ChatID] = *link
	r.users[link.UserID] = *link
	return nil
}

type MemoryEmployeeInvitationRepository struct {
	mu          sync.Mutex
	invitations []*models.EmployeeInvitation
}

func NewMemoryEmployeeInvitationRepository() *MemoryEmployeeInvitationRepository {
	return &MemoryEmployeeInvitationRepository{}
}

// Add registers a pending invitation.
func (r *MemoryEmployeeInvitationRepository) Add(inv models.EmployeeInvitation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv.ID = int64(len(r.invitations) + 1)
	r.invitations = append(r.invitations, &inv)
}

func (r *MemoryEmployeeInvitationRepository) ClaimPendingByPhone(_ context.Context, userID int64, phone string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	now := time.Now().UTC()
	for _, inv := range r.invitations {
		if inv.Phone != phone || inv.AcceptedAt != nil {
			continue
		}
		uid := userID
		at := now
		inv.UserID = &uid
		inv.AcceptedAt = &at
		n++
	}
	return n, nil
}

// Pending lists invitations not yet claimed.
func (r *MemoryEmployeeInvitationRepository) Pending() []models.EmployeeInvitation {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.EmployeeInvitation
	for _, inv := range r.invitations {
		if inv.AcceptedAt == nil {
			out = append(out, *inv)
		}
	}
	return out
}
