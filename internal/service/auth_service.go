package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/karingamassive/membership-service/internal/domain"
	"github.com/karingamassive/membership-service/internal/observability"
	"github.com/karingamassive/membership-service/internal/queue"
	"github.com/karingamassive/membership-service/internal/ratelimit"
	"github.com/karingamassive/membership-service/internal/repository"
	"github.com/karingamassive/membership-service/internal/security"
	"github.com/karingamassive/membership-service/internal/sidestore"
)

type AuthConfig struct {
	BcryptCost        int
	NegativeLookupTTL time.Duration
}

type RegisterInput struct {
	FullName             string `json:"full_name"`
	IdentificationNumber string `json:"identification_number"`
	Contact              string `json:"contact"`
	Email                string `json:"email"`
	Village              string `json:"village"`
	Area                 string `json:"area"`
	RegistrationNumber   string `json:"registration_number"`
	Occupation           string `json:"occupation"`
	Avatar               string `json:"avatar"`
	Password             string `json:"password"`
}

type LoginResult struct {
	TokenPair
	User *domain.User `json:"user"`
}

type AuthService struct {
	users     repository.UserRepository
	tokens    *TokenService
	otps      *OTPStore
	guard     *ratelimit.LoginGuard
	negative  NegativeLookupCacheStore
	publisher queue.Publisher
	cfg       AuthConfig
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *TokenService,
	otps *OTPStore,
	guard *ratelimit.LoginGuard,
	negative NegativeLookupCacheStore,
	publisher queue.Publisher,
	cfg AuthConfig,
	logger *slog.Logger,
) *AuthService {
	if negative == nil {
		negative = NewNoopNegativeLookupCacheStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 10
	}
	return &AuthService{
		users:     users,
		tokens:    tokens,
		otps:      otps,
		guard:     guard,
		negative:  negative,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

// Register creates a PENDING member. The password may be set later through
// the one-time code flow.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	return s.create(ctx, in, domain.RankMember, domain.StatusPending, false)
}

// Bootstrap creates an ACTIVE SUPERADMIN with a password.
func (s *AuthService) Bootstrap(ctx context.Context, in RegisterInput) (*domain.User, error) {
	return s.create(ctx, in, domain.RankSuperAdmin, domain.StatusActive, true)
}

func (s *AuthService) create(ctx context.Context, in RegisterInput, rank domain.Rank, status domain.Status, requirePassword bool) (*domain.User, error) {
	check := newFieldCheck()
	check.length("full_name", in.FullName, 3, 20)
	check.length("identification_number", in.IdentificationNumber, 7, 10)
	check.contact("contact", in.Contact)
	check.email("email", in.Email)
	check.required("village", in.Village)
	check.required("area", in.Area)
	check.required("registration_number", in.RegistrationNumber)
	check.required("occupation", in.Occupation)
	if in.Password != "" || requirePassword {
		check.password("password", in.Password)
	}
	if err := check.err(); err != nil {
		return nil, err
	}

	contact := normalizeContact(in.Contact)
	if _, err := s.users.FindByContact(ctx, contact); err == nil {
		return nil, conflict("CONTACT_TAKEN", "contact already registered")
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, s.dependency(ctx, "find user by contact", err)
	}

	user := &domain.User{
		FullName:             strings.TrimSpace(in.FullName),
		Contact:              contact,
		Email:                strings.TrimSpace(in.Email),
		IdentificationNumber: strings.TrimSpace(in.IdentificationNumber),
		RegistrationNumber:   strings.TrimSpace(in.RegistrationNumber),
		Occupation:           strings.TrimSpace(in.Occupation),
		Village:              strings.TrimSpace(in.Village),
		Area:                 strings.TrimSpace(in.Area),
		Avatar:               strings.TrimSpace(in.Avatar),
		Score:                1,
		Rank:                 rank,
		Status:               status,
	}
	if in.Password != "" {
		hash, err := security.HashPassword(in.Password, s.cfg.BcryptCost)
		if err != nil {
			return nil, s.dependency(ctx, "hash password", err)
		}
		user.PasswordHash = hash
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			return nil, conflict("ACCOUNT_EXISTS", "an account with these details already exists")
		}
		return nil, s.dependency(ctx, "create user", err)
	}
	if err := s.negative.Delete(ctx, NamespaceUnknownContact, contact); err != nil {
		s.logger.WarnContext(ctx, "negative lookup cache delete failed", "error", err)
	}
	s.publish(ctx, queue.NewEvent(queue.EventAccountRegistered, queue.AccountRegistered{
		UserID:  user.ID,
		Contact: user.Contact,
		Email:   user.Email,
		Area:    user.Area,
	}))
	return user, nil
}

// Login reserves a point on every limiter tier before the password is
// compared; a wrong password keeps the reservation as its charge. The pair
// counter is cleared only after tokens were issued and stored.
func (s *AuthService) Login(ctx context.Context, contact, password, address string) (*LoginResult, error) {
	contact = normalizeContact(contact)
	check := newFieldCheck()
	check.required("contact", contact)
	check.required("password", password)
	if err := check.err(); err != nil {
		return nil, err
	}

	held, decision, err := s.guard.Reserve(ctx, contact, address)
	if err != nil {
		return nil, s.dependency(ctx, "login limiter reserve", err)
	}
	if !decision.Allowed {
		observability.RecordAuthLogin(ctx, "rate_limited")
		return nil, rateLimited(decision)
	}

	user, err := s.lookupContact(ctx, contact)
	if err != nil {
		s.release(ctx, held)
		return nil, err
	}
	hash := ""
	if user != nil {
		hash = user.PasswordHash
	} else if err := held.ReleaseTier(ctx, ratelimit.TierContactAddress); err != nil {
		s.logger.WarnContext(ctx, "pair limiter release failed", "error", err)
	}
	if !security.CheckPassword(hash, password) {
		observability.RecordAuthLogin(ctx, "invalid_credentials")
		return nil, authFailure("INVALID_CREDENTIALS", "invalid contact or password", nil)
	}
	if !user.IsActive() {
		s.release(ctx, held)
		observability.RecordAuthLogin(ctx, "inactive")
		return nil, authFailure("INVALID_CREDENTIALS", "invalid contact or password", nil)
	}

	pair, err := s.tokens.Issue(ctx, security.IdentityOf(user))
	if err != nil {
		s.release(ctx, held)
		return nil, s.dependency(ctx, "issue tokens", err)
	}
	if err := held.Succeed(ctx); err != nil {
		s.logger.ErrorContext(ctx, "login limiter reset failed", "user_id", user.ID, "error", err)
	}
	observability.RecordAuthLogin(ctx, "success")
	return &LoginResult{TokenPair: pair, User: user}, nil
}

// RequestCode stores a fresh one-time code for an existing contact and hands
// it to the mailer through the event queue.
func (s *AuthService) RequestCode(ctx context.Context, contact, address string) error {
	contact = normalizeContact(contact)
	check := newFieldCheck()
	check.required("contact", contact)
	if err := check.err(); err != nil {
		return err
	}
	held, decision, err := s.guard.ReserveAddress(ctx, address)
	if err != nil {
		return s.dependency(ctx, "code limiter reserve", err)
	}
	if !decision.Allowed {
		return rateLimited(decision)
	}
	user, err := s.lookupContact(ctx, contact)
	if err != nil {
		s.release(ctx, held)
		return err
	}
	if user == nil {
		return notFound("USER_NOT_FOUND", "user not found")
	}
	s.release(ctx, held)

	code, err := security.NewNumericCode(otpLength)
	if err != nil {
		return s.dependency(ctx, "generate code", err)
	}
	if err := s.otps.Save(ctx, contact, code); err != nil {
		return s.dependency(ctx, "store code", err)
	}
	event := queue.NewEvent(queue.EventOTPRequested, queue.OTPRequested{
		UserID:    user.ID,
		Contact:   user.Contact,
		Email:     user.Email,
		Code:      code,
		ExpiresAt: time.Now().Add(s.otps.TTL()).UTC(),
	})
	if err := s.publisher.Publish(ctx, event); err != nil {
		return s.dependency(ctx, "publish code", err)
	}
	observability.RecordOTPEvent(ctx, "issued")
	return nil
}

type ChangePasswordInput struct {
	Contact  string `json:"contact"`
	Code     string `json:"code"`
	Password string `json:"password"`
}

// ChangePassword redeems a one-time code and sets a new password. Failed
// verifications are charged to the address tier only.
func (s *AuthService) ChangePassword(ctx context.Context, in ChangePasswordInput, address string) (*LoginResult, error) {
	contact := normalizeContact(in.Contact)
	check := newFieldCheck()
	check.required("contact", contact)
	check.code("code", in.Code)
	check.password("password", in.Password)
	if err := check.err(); err != nil {
		return nil, err
	}

	held, decision, err := s.guard.ReserveAddress(ctx, address)
	if err != nil {
		return nil, s.dependency(ctx, "code limiter reserve", err)
	}
	if !decision.Allowed {
		observability.RecordOTPEvent(ctx, "rate_limited")
		return nil, rateLimited(decision)
	}

	user, err := s.lookupContact(ctx, contact)
	if err != nil {
		s.release(ctx, held)
		return nil, err
	}
	if user == nil {
		return nil, codeFailure(ctx, notFound("USER_NOT_FOUND", "user not found"))
	}
	stored, err := s.otps.Get(ctx, contact)
	if errors.Is(err, sidestore.ErrNotFound) {
		return nil, codeFailure(ctx, notFound("CODE_NOT_FOUND", "code not found or expired"))
	}
	if err != nil {
		s.release(ctx, held)
		return nil, s.dependency(ctx, "load code", err)
	}
	if !security.ConstantTimeEqual(stored, in.Code) {
		return nil, codeFailure(ctx, authFailure("INVALID_CODE", "invalid code", nil))
	}
	switch err := s.otps.Consume(ctx, contact, in.Code); {
	case err == nil:
	case errors.Is(err, sidestore.ErrNotFound), errors.Is(err, sidestore.ErrConflict):
		return nil, codeFailure(ctx, notFound("CODE_NOT_FOUND", "code not found or expired"))
	default:
		s.release(ctx, held)
		return nil, s.dependency(ctx, "consume code", err)
	}
	s.release(ctx, held)
	observability.RecordOTPEvent(ctx, "redeemed")

	hash, err := security.HashPassword(in.Password, s.cfg.BcryptCost)
	if err != nil {
		return nil, s.dependency(ctx, "hash password", err)
	}
	user, err = s.users.Update(ctx, user.ID, domain.UserPatch{PasswordHash: &hash})
	if err != nil {
		return nil, s.dependency(ctx, "update password", err)
	}
	result := &LoginResult{User: user}
	if !user.IsActive() {
		return result, nil
	}
	pair, err := s.tokens.Issue(ctx, security.IdentityOf(user))
	if err != nil {
		return nil, s.dependency(ctx, "issue tokens", err)
	}
	result.TokenPair = pair
	return result, nil
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken string, userID uint) (TokenPair, error) {
	check := newFieldCheck()
	check.required("refreshToken", refreshToken)
	if userID == 0 {
		check.errs.add("user_id", "is required")
	}
	if err := check.err(); err != nil {
		return TokenPair{}, err
	}
	pair, err := s.tokens.Refresh(ctx, refreshToken, userID, s.activeUser)
	switch {
	case err == nil:
		return pair, nil
	case errors.Is(err, ErrRefreshExpired):
		return TokenPair{}, authFailure("REFRESH_TOKEN_EXPIRED", "refresh token expired, please sign in again", err)
	case errors.Is(err, ErrRefreshNotFound):
		return TokenPair{}, notFound("REFRESH_TOKEN_NOT_FOUND", "refresh token not found")
	case errors.Is(err, ErrRefreshMismatch):
		return TokenPair{}, authFailure("REFRESH_TOKEN_MISMATCH", "refresh token is no longer valid", err)
	case errors.Is(err, ErrRefreshInvalid):
		return TokenPair{}, authFailure("REFRESH_TOKEN_INVALID", "invalid refresh token", err)
	}
	if se, ok := AsError(err); ok {
		return TokenPair{}, se
	}
	return TokenPair{}, s.dependency(ctx, "refresh tokens", err)
}

// activeUser feeds rotation with current attributes. An account that is no
// longer active loses its refresh token.
func (s *AuthService) activeUser(ctx context.Context, userID uint) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		_ = s.tokens.Revoke(ctx, userID)
		return nil, ErrRefreshNotFound
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive() {
		if err := s.tokens.Revoke(ctx, userID); err != nil {
			return nil, err
		}
		return nil, forbidden("ACCOUNT_INACTIVE", "account inactive")
	}
	return user, nil
}

func (s *AuthService) Logout(ctx context.Context, userID uint) error {
	if err := s.tokens.Revoke(ctx, userID); err != nil {
		observability.RecordAuthLogout(ctx, "error")
		return s.dependency(ctx, "revoke refresh token", err)
	}
	observability.RecordAuthLogout(ctx, "success")
	return nil
}

// lookupContact returns nil without error when no identity has the contact.
func (s *AuthService) lookupContact(ctx context.Context, contact string) (*domain.User, error) {
	if hit, err := s.negative.Get(ctx, NamespaceUnknownContact, contact); err != nil {
		s.logger.WarnContext(ctx, "negative lookup cache read failed", "error", err)
	} else if hit {
		return nil, nil
	}
	user, err := s.users.FindByContact(ctx, contact)
	if errors.Is(err, repository.ErrUserNotFound) {
		if err := s.negative.Set(ctx, NamespaceUnknownContact, contact, s.cfg.NegativeLookupTTL); err != nil {
			s.logger.WarnContext(ctx, "negative lookup cache write failed", "error", err)
		}
		return nil, nil
	}
	if err != nil {
		return nil, s.dependency(ctx, "find user by contact", err)
	}
	return user, nil
}

// codeFailure ends a failed verification; the reserved address point
// stays spent.
func codeFailure(ctx context.Context, cause *Error) error {
	observability.RecordOTPEvent(ctx, "verification_failed")
	return cause
}

func (s *AuthService) release(ctx context.Context, held *ratelimit.Reservation) {
	if err := held.Release(ctx); err != nil {
		s.logger.WarnContext(ctx, "limiter release failed", "error", err)
	}
}

func (s *AuthService) publish(ctx context.Context, event queue.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "event publish failed", "event", event.Type, "error", err)
	}
}

func (s *AuthService) dependency(ctx context.Context, op string, err error) *Error {
	s.logger.ErrorContext(ctx, "dependency failure", "op", op, "error", err)
	return dependencyFailure(op, err)
}
