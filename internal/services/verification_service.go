package services

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"dispatchdesk/internal/models"
	"dispatchdesk/internal/ratelimit"
	"dispatchdesk/internal/repositories"
	"dispatchdesk/internal/utils"
)

var (
	// ErrInvalidOrExpired is the only rejection callers see from VerifyCode;
	// the stored status keeps the real reason.
	ErrInvalidOrExpired = errors.New("invalid or expired code")
	ErrConflict         = errors.New("phone or telegram account already bound to another user")
	ErrThrottled        = errors.New("too many verification requests")
	ErrInvalidPhone     = errors.New("invalid phone number")
)

const (
	msgCode           = "Your verification code: %s\nIt expires in %d minutes. Never share it with anyone."
	msgSharePhone     = "Tap the button below to share your phone number."
	msgLinkInvalid    = "This link is invalid or has expired. Request a new code in the app."
	msgNoAttempt      = "There is no verification in progress for this chat. Request a code in the app first."
	msgPhoneMismatch  = "The shared number does not match the one entered in the app. Verification cancelled."
	msgSentToLinked   = "The code was sent to the Telegram account already linked to this number."
	msgContactExpired = "The verification window has closed. Request a new code in the app."
)

type LinkBuilder interface {
	DeepLink(linkToken string) string
}

type VerificationConfig struct {
	LinkTTL     time.Duration
	CodeTTL     time.Duration
	MaxAttempts int
}

// RequestResult is what the app needs to continue the flow. DeepLink is empty
// when the code went straight to an already linked chat.
type RequestResult struct {
	AttemptID    uuid.UUID
	DeepLink     string
	ExpiresAt    time.Time
	SentDirectly bool
}

type AttemptStatusView struct {
	Status    models.VerificationStatus
	ExpiresAt time.Time
}

type VerificationService struct {
	attempts repositories.VerificationAttemptRepository
	users    UserService
	links    repositories.TelegramLinkRepository
	hook     AssignmentHook
	notifier Notifier
	deepLink LinkBuilder
	limiter  ratelimit.Limiter
	cfg      VerificationConfig
	logger   *zap.Logger

	clock        func() time.Time
	newCode      func() (string, error)
	newLinkToken func() (string, error)
}

func NewVerificationService(
	attempts repositories.VerificationAttemptRepository,
	users UserService,
	links repositories.TelegramLinkRepository,
	hook AssignmentHook,
	notifier Notifier,
	deepLink LinkBuilder,
	limiter ratelimit.Limiter,
	cfg VerificationConfig,
	logger *zap.Logger,
) *VerificationService {
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = 10 * time.Minute
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if hook == nil {
		hook = NoopAssignmentHook{}
	}
	if limiter == nil {
		limiter = ratelimit.NoopLimiter{}
	}
	return &VerificationService{
		attempts:     attempts,
		users:        users,
		links:        links,
		hook:         hook,
		notifier:     notifier,
		deepLink:     deepLink,
		limiter:      limiter,
		cfg:          cfg,
		logger:       logger,
		clock:        func() time.Time { return time.Now().UTC() },
		newCode:      utils.NewOTPCode,
		newLinkToken: utils.NewLinkToken,
	}
}

// hashCode salts the code with the attempt's link token so equal codes on
// different attempts never share a hash.
func hashCode(code, linkToken string) string {
	sum := blake2b.Sum256([]byte(code + ":" + linkToken))
	return hex.EncodeToString(sum[:])
}

func codeMatches(code, linkToken, stored string) bool {
	if stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(hashCode(code, linkToken)), []byte(stored)) == 1
}

func (s *VerificationService) RequestVerification(ctx context.Context, rawPhone string) (*RequestResult, error) {
	phone := utils.NormalizePhone(rawPhone)
	if !utils.IsE164(phone) {
		return nil, ErrInvalidPhone
	}
	if !s.limiter.Allow(ctx, phone) {
		s.logger.Info("[verify][request] throttled", zap.String("phone_tail", utils.PhoneTail(phone, 4)))
		return nil, ErrThrottled
	}

	chatID, mapped, err := s.mappedChat(ctx, phone)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	a := &models.VerificationAttempt{
		ID:          uuid.New(),
		Phone:       phone,
		Status:      models.StatusPending,
		MaxAttempts: s.cfg.MaxAttempts,
		ExpiresAt:   now.Add(s.cfg.LinkTTL),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	var code string
	if mapped {
		if code, err = s.newCode(); err != nil {
			return nil, fmt.Errorf("generate code: %w", err)
		}
		a.Status = models.StatusSent
		a.ChatID = &chatID
		a.ExpiresAt = now.Add(s.cfg.CodeTTL)
	}

	if err := s.createWithFreshToken(ctx, a, code); err != nil {
		return nil, err
	}

	res := &RequestResult{AttemptID: a.ID, ExpiresAt: a.ExpiresAt}
	if mapped {
		res.SentDirectly = true
		s.dispatchCode(a, code)
		s.logger.Info("[verify][request] code sent to linked chat", zap.String("attempt_id", a.ID.String()))
		return res, nil
	}
	res.DeepLink = s.deepLink.DeepLink(a.LinkToken)
	s.logger.Info("[verify][request] pending link", zap.String("attempt_id", a.ID.String()))
	return res, nil
}

// createWithFreshToken retries on a link token collision. A non-empty code is
// re-hashed against every new token.
func (s *VerificationService) createWithFreshToken(ctx context.Context, a *models.VerificationAttempt, code string) error {
	for i := 0; i < 3; i++ {
		token, err := s.newLinkToken()
		if err != nil {
			return fmt.Errorf("generate link token: %w", err)
		}
		a.LinkToken = token
		if code != "" {
			a.CodeHash = hashCode(code, token)
		}
		err = s.attempts.Create(ctx, a)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repositories.ErrAlreadyExists) {
			return fmt.Errorf("create attempt: %w", err)
		}
	}
	return fmt.Errorf("create attempt: link token collisions")
}

// mappedChat reports the chat already linked to the owner of phone, if any.
func (s *VerificationService) mappedChat(ctx context.Context, phone string) (int64, bool, error) {
	u, err := s.users.GetUserByPhone(ctx, phone)
	if errors.Is(err, repositories.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup user: %w", err)
	}
	link, err := s.links.GetByUserID(ctx, u.ID)
	if errors.Is(err, repositories.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup telegram link: %w", err)
	}
	return link.ChatID, true, nil
}

// HandleLink processes /start link_<token> sent from chatID.
func (s *VerificationService) HandleLink(ctx context.Context, linkToken string, chatID int64) error {
	a, err := s.attempts.GetByLinkToken(ctx, linkToken)
	if errors.Is(err, repositories.ErrNotFound) {
		s.notify(OutboundNotice, chatID, msgLinkInvalid, uuid.Nil)
		return ErrInvalidOrExpired
	}
	if err != nil {
		return fmt.Errorf("load attempt by link: %w", err)
	}

	mappedChatID, mapped, err := s.mappedChat(ctx, a.Phone)
	if err != nil {
		return err
	}
	var code string
	if mapped {
		if code, err = s.newCode(); err != nil {
			return fmt.Errorf("generate code: %w", err)
		}
	}

	now := s.clock()
	rejected := false
	updated, err := s.attempts.MutateByID(ctx, a.ID, func(m *models.VerificationAttempt) bool {
		if m.Status != models.StatusPending {
			rejected = true
			return false
		}
		if !now.Before(m.ExpiresAt) {
			rejected = true
			m.Status = models.StatusExpired
			m.UpdatedAt = now
			return true
		}
		if mapped {
			m.Status = models.StatusSent
			m.ChatID = &mappedChatID
			m.CodeHash = hashCode(code, m.LinkToken)
			m.Attempts = 0
			m.ExpiresAt = now.Add(s.cfg.CodeTTL)
		} else {
			m.Status = models.StatusWaitingForContact
			m.ChatID = &chatID
		}
		m.UpdatedAt = now
		return true
	})
	if err != nil {
		return fmt.Errorf("link attempt: %w", err)
	}
	if rejected {
		s.logger.Info("[verify][link] rejected",
			zap.String("attempt_id", a.ID.String()), zap.String("status", string(updated.Status)))
		s.notify(OutboundNotice, chatID, msgLinkInvalid, a.ID)
		return ErrInvalidOrExpired
	}

	if mapped {
		s.dispatchCode(updated, code)
		if mappedChatID != chatID {
			s.notify(OutboundNotice, chatID, msgSentToLinked, a.ID)
		}
		s.logger.Info("[verify][link] phone already linked, code sent", zap.String("attempt_id", a.ID.String()))
		return nil
	}
	s.notify(OutboundContactRequest, chatID, msgSharePhone, a.ID)
	s.logger.Info("[verify][link] waiting for contact", zap.String("attempt_id", a.ID.String()))
	return nil
}

// HandleContact processes a contact the user shared from chatID. Only the
// newest WAITING_FOR_CONTACT attempt of the chat is considered.
func (s *VerificationService) HandleContact(ctx context.Context, chatID int64, sharedPhone string) error {
	shared := utils.NormalizePhone(sharedPhone)
	code, err := s.newCode()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}

	now := s.clock()
	updated, err := s.attempts.MutateLatestWaitingByChatID(ctx, chatID, func(m *models.VerificationAttempt) bool {
		switch {
		case !now.Before(m.ExpiresAt):
			m.Status = models.StatusExpired
		case m.Phone != shared:
			m.Status = models.StatusBlocked
			m.CodeHash = ""
		default:
			m.Status = models.StatusSent
			m.CodeHash = hashCode(code, m.LinkToken)
			m.Attempts = 0
			m.ExpiresAt = now.Add(s.cfg.CodeTTL)
		}
		m.UpdatedAt = now
		return true
	})
	if errors.Is(err, repositories.ErrNotFound) {
		s.notify(OutboundNotice, chatID, msgNoAttempt, uuid.Nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("contact attempt: %w", err)
	}

	switch updated.Status {
	case models.StatusSent:
		s.dispatchCode(updated, code)
		s.logger.Info("[verify][contact] phone confirmed, code sent", zap.String("attempt_id", updated.ID.String()))
	case models.StatusBlocked:
		s.notify(OutboundNotice, chatID, msgPhoneMismatch, updated.ID)
		s.logger.Warn("[verify][contact] phone mismatch, attempt blocked", zap.String("attempt_id", updated.ID.String()))
	case models.StatusExpired:
		s.notify(OutboundNotice, chatID, msgContactExpired, updated.ID)
		s.logger.Info("[verify][contact] attempt expired", zap.String("attempt_id", updated.ID.String()))
	}
	return nil
}

type verifyOutcome int

const (
	verifyRejected verifyOutcome = iota
	verifyMatched
)

// VerifyCode checks a submitted code. On success the attempt is VERIFIED, the
// user exists and the chat is linked to them.
func (s *VerificationService) VerifyCode(ctx context.Context, attemptID uuid.UUID, code string) (*models.User, error) {
	code = strings.TrimSpace(code)
	now := s.clock()
	outcome := verifyRejected

	updated, err := s.attempts.MutateByID(ctx, attemptID, func(m *models.VerificationAttempt) bool {
		if m.Status != models.StatusSent {
			return false
		}
		if !now.Before(m.ExpiresAt) {
			m.Status = models.StatusExpired
			m.CodeHash = ""
			m.UpdatedAt = now
			return true
		}
		m.Attempts++
		m.UpdatedAt = now
		if m.Attempts >= m.MaxAttempts {
			m.Status = models.StatusBlocked
			m.CodeHash = ""
			return true
		}
		if codeMatches(code, m.LinkToken, m.CodeHash) {
			m.Status = models.StatusVerified
			m.CodeHash = ""
			outcome = verifyMatched
		}
		return true
	})
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrInvalidOrExpired
	}
	if err != nil {
		return nil, fmt.Errorf("verify attempt: %w", err)
	}
	if outcome != verifyMatched {
		s.logger.Info("[verify][code] rejected",
			zap.String("attempt_id", attemptID.String()),
			zap.String("status", string(updated.Status)),
			zap.Int("attempts", updated.Attempts))
		return nil, ErrInvalidOrExpired
	}

	user, err := s.users.FindOrCreateByPhone(ctx, updated.Phone)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	if err := s.hook.ApplyPendingAssignment(ctx, user, updated.Phone); err != nil {
		s.logger.Warn("[verify][assign] pending assignment failed",
			zap.Int64("user_id", user.ID), zap.Error(err))
	}

	if updated.HasChat() {
		if err := s.ensureIdentity(ctx, *updated.ChatID, user.ID, now); err != nil {
			return nil, err
		}
	}

	s.logger.Info("[verify][code] verified",
		zap.String("attempt_id", attemptID.String()), zap.Int64("user_id", user.ID))
	return user, nil
}

func (s *VerificationService) ensureIdentity(ctx context.Context, chatID, userID int64, now time.Time) error {
	existing, err := s.links.GetByChatID(ctx, chatID)
	switch {
	case err == nil:
		if existing.UserID != userID {
			s.logger.Warn("[verify][link] chat bound to another user", zap.Int64("user_id", userID))
			return ErrConflict
		}
		return nil
	case !errors.Is(err, repositories.ErrNotFound):
		return fmt.Errorf("lookup telegram link: %w", err)
	}

	byUser, err := s.links.GetByUserID(ctx, userID)
	switch {
	case err == nil:
		if byUser.ChatID != chatID {
			s.logger.Warn("[verify][link] user bound to another chat", zap.Int64("user_id", userID))
			return ErrConflict
		}
		return nil
	case !errors.Is(err, repositories.ErrNotFound):
		return fmt.Errorf("lookup telegram link: %w", err)
	}

	err = s.links.Create(ctx, &models.TelegramIdentity{ChatID: chatID, UserID: userID, LinkedAt: now})
	if errors.Is(err, repositories.ErrAlreadyExists) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("create telegram link: %w", err)
	}
	s.logger.Info("[verify][link] telegram identity linked", zap.Int64("user_id", userID))
	return nil
}

// AttemptStatus exposes status and expiry only. A live attempt past its
// deadline is reported as EXPIRED without being written.
func (s *VerificationService) AttemptStatus(ctx context.Context, id uuid.UUID) (*AttemptStatusView, error) {
	a, err := s.attempts.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrInvalidOrExpired
	}
	if err != nil {
		return nil, fmt.Errorf("load attempt: %w", err)
	}
	status := a.Status
	if !status.IsTerminal() && !s.clock().Before(a.ExpiresAt) {
		status = models.StatusExpired
	}
	return &AttemptStatusView{Status: status, ExpiresAt: a.ExpiresAt}, nil
}

func (s *VerificationService) dispatchCode(a *models.VerificationAttempt, code string) {
	if !a.HasChat() {
		return
	}
	minutes := int(s.cfg.CodeTTL / time.Minute)
	s.notify(OutboundCode, *a.ChatID, fmt.Sprintf(msgCode, code, minutes), a.ID)
}

func (s *VerificationService) notify(kind OutboundKind, chatID int64, text string, attemptID uuid.UUID) {
	if s.notifier == nil || chatID == 0 {
		return
	}
	s.notifier.Enqueue(OutboundMessage{Kind: kind, ChatID: chatID, Text: text, AttemptID: attemptID})
}
