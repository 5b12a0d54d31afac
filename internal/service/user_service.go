package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/karingamassive/membership-service/internal/domain"
	"github.com/karingamassive/membership-service/internal/observability"
	"github.com/karingamassive/membership-service/internal/queue"
	"github.com/karingamassive/membership-service/internal/repository"
	"github.com/karingamassive/membership-service/internal/security"
)

// UpdateUserInput is a partial profile update. Rank and Status are honoured
// only when the actor is a SUPERADMIN and silently dropped otherwise.
type UpdateUserInput struct {
	UserID     uint    `json:"user_id"`
	FullName   *string `json:"full_name"`
	Email      *string `json:"email"`
	Occupation *string `json:"occupation"`
	Village    *string `json:"village"`
	Area       *string `json:"area"`
	Avatar     *string `json:"avatar"`
	Rank       *string `json:"rank"`
	Status     *string `json:"status"`
}

type ListUsersInput struct {
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
	Status    string
	Rank      string
	Area      string
}

type SearchUsersInput struct {
	Keyword  string `json:"keyword"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

type UserService struct {
	users       repository.UserRepository
	tokens      *TokenService
	publisher   queue.Publisher
	searchCache ListCacheStore
	searchTTL   time.Duration
	logger      *slog.Logger
}

func NewUserService(users repository.UserRepository, tokens *TokenService, publisher queue.Publisher, searchCache ListCacheStore, searchTTL time.Duration, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	if searchCache == nil {
		searchCache = NewNoopListCacheStore()
	}
	return &UserService{
		users:       users,
		tokens:      tokens,
		publisher:   publisher,
		searchCache: searchCache,
		searchTTL:   searchTTL,
		logger:      logger,
	}
}

func (s *UserService) Get(ctx context.Context, id uint) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, notFound("USER_NOT_FOUND", "user not found")
	}
	if err != nil {
		return nil, s.dependency(ctx, "find user", err)
	}
	return user, nil
}

// Update patches the target record. Members edit themselves; admins may
// edit anyone. A status change away from ACTIVE revokes the refresh token.
func (s *UserService) Update(ctx context.Context, actor security.Identity, in UpdateUserInput) (*domain.User, error) {
	targetID := in.UserID
	if targetID == 0 {
		targetID = actor.UserID
	}
	if targetID != actor.UserID && !actor.Rank.IsAdmin() {
		return nil, forbidden("UNAUTHORIZED_OPERATION", "unauthorized operation")
	}

	check := newFieldCheck()
	patch := domain.UserPatch{
		Occupation: in.Occupation,
		Village:    in.Village,
		Area:       in.Area,
		Avatar:     in.Avatar,
	}
	if in.FullName != nil {
		check.length("full_name", *in.FullName, 3, 20)
		patch.FullName = in.FullName
	}
	if in.Email != nil {
		check.email("email", *in.Email)
		patch.Email = in.Email
	}
	if actor.Rank == domain.RankSuperAdmin {
		if in.Rank != nil {
			rank, err := domain.ParseRank(*in.Rank)
			if err != nil {
				check.errs.add("rank", "is not a valid rank")
			}
			patch.Rank = &rank
		}
		if in.Status != nil {
			status, err := domain.ParseStatus(*in.Status)
			if err != nil {
				check.errs.add("status", "is not a valid status")
			}
			patch.Status = &status
		}
	}
	if err := check.err(); err != nil {
		return nil, err
	}
	if patch.Empty() {
		return nil, validationError(FieldErrors{"body": "no updatable fields supplied"})
	}
	return s.apply(ctx, actor.UserID, targetID, patch)
}

// SetStatus is the administrative status transition used outside HTTP.
func (s *UserService) SetStatus(ctx context.Context, actorID, targetID uint, status domain.Status) (*domain.User, error) {
	if !status.Valid() {
		return nil, validationError(FieldErrors{"status": "is not a valid status"})
	}
	return s.apply(ctx, actorID, targetID, domain.UserPatch{Status: &status})
}

func (s *UserService) apply(ctx context.Context, actorID, targetID uint, patch domain.UserPatch) (*domain.User, error) {
	before, err := s.Get(ctx, targetID)
	if err != nil {
		return nil, err
	}
	after, err := s.users.Update(ctx, targetID, patch)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrUserNotFound):
		return nil, notFound("USER_NOT_FOUND", "user not found")
	case errors.Is(err, repository.ErrDuplicateUser):
		return nil, conflict("ACCOUNT_EXISTS", "an account with these details already exists")
	case errors.Is(err, repository.ErrInvalidPatch):
		return nil, validationError(FieldErrors{"body": err.Error()})
	default:
		return nil, s.dependency(ctx, "update user", err)
	}

	s.invalidateSearch(ctx)
	if before.Status != after.Status {
		observability.RecordAccountStatusChange(ctx, string(before.Status), string(after.Status))
		if before.Status == domain.StatusActive {
			if err := s.tokens.Revoke(ctx, targetID); err != nil {
				return nil, s.dependency(ctx, "revoke refresh token", err)
			}
		}
		event := queue.NewEvent(queue.EventAccountStatusChanged, queue.AccountStatusChanged{
			UserID:  targetID,
			From:    string(before.Status),
			To:      string(after.Status),
			ActorID: actorID,
		})
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.ErrorContext(ctx, "event publish failed", "event", event.Type, "error", err)
		}
	}
	return after, nil
}

func (s *UserService) List(ctx context.Context, in ListUsersInput) (repository.PageResult[domain.User], error) {
	return s.list(ctx, in)
}

// ListForAdmin scopes representatives to their own area.
func (s *UserService) ListForAdmin(ctx context.Context, actor security.Identity, in ListUsersInput) (repository.PageResult[domain.User], error) {
	switch {
	case actor.Rank.IsAdmin():
	case actor.Rank == domain.RankRepresentative:
		if strings.TrimSpace(actor.Area) == "" {
			return repository.PageResult[domain.User]{}, forbidden("UNAUTHORIZED_OPERATION", "representative has no area")
		}
		in.Area = actor.Area
	default:
		return repository.PageResult[domain.User]{}, forbidden("UNAUTHORIZED_OPERATION", "unauthorized operation")
	}
	return s.list(ctx, in)
}

func (s *UserService) list(ctx context.Context, in ListUsersInput) (repository.PageResult[domain.User], error) {
	check := newFieldCheck()
	if in.Status != "" {
		if _, err := domain.ParseStatus(in.Status); err != nil {
			check.errs.add("status", "is not a valid status")
		}
	}
	if in.Rank != "" {
		if _, err := domain.ParseRank(in.Rank); err != nil {
			check.errs.add("rank", "is not a valid rank")
		}
	}
	if err := check.err(); err != nil {
		return repository.PageResult[domain.User]{}, err
	}
	page, err := s.users.ListPaged(ctx, repository.UserListQuery{
		PageRequest: repository.PageRequest{Page: in.Page, PageSize: in.PageSize},
		SortBy:      in.SortBy,
		SortOrder:   in.SortOrder,
		Area:        in.Area,
		Status:      strings.ToUpper(in.Status),
		Rank:        strings.ToUpper(in.Rank),
	})
	if errors.Is(err, repository.ErrInvalidListArg) {
		return repository.PageResult[domain.User]{}, validationError(FieldErrors{"sort_by": "is not supported"})
	}
	if err != nil {
		return repository.PageResult[domain.User]{}, s.dependency(ctx, "list users", err)
	}
	return page, nil
}

// Search matches keyword against name, area, village, occupation and status.
// Pages are cached for searchTTL; a cache failure falls through to the
// database.
func (s *UserService) Search(ctx context.Context, in SearchUsersInput) (repository.PageResult[domain.User], error) {
	keyword := strings.TrimSpace(in.Keyword)
	check := newFieldCheck()
	check.length("keyword", keyword, 1, 64)
	if err := check.err(); err != nil {
		return repository.PageResult[domain.User]{}, err
	}

	cacheKey := fmt.Sprintf("%s|%d|%d", strings.ToLower(keyword), in.Page, in.PageSize)
	payload, hit, err := s.searchCache.Get(ctx, NamespaceUserSearch, cacheKey)
	if err != nil {
		observability.RecordSideStoreFailure(ctx, "list_cache", "get")
		s.logger.WarnContext(ctx, "search cache read failed", "error", err)
	}
	if hit {
		var cached repository.PageResult[domain.User]
		if err := json.Unmarshal(payload, &cached); err == nil {
			return cached, nil
		}
	}

	page, err := s.users.Search(ctx, keyword, repository.PageRequest{Page: in.Page, PageSize: in.PageSize})
	if err != nil {
		return repository.PageResult[domain.User]{}, s.dependency(ctx, "search users", err)
	}
	if payload, err := json.Marshal(page); err == nil {
		if err := s.searchCache.Set(ctx, NamespaceUserSearch, cacheKey, payload, s.searchTTL); err != nil {
			observability.RecordSideStoreFailure(ctx, "list_cache", "set")
			s.logger.WarnContext(ctx, "search cache write failed", "error", err)
		}
	}
	return page, nil
}

func (s *UserService) invalidateSearch(ctx context.Context) {
	if err := s.searchCache.InvalidateNamespace(ctx, NamespaceUserSearch); err != nil {
		observability.RecordSideStoreFailure(ctx, "list_cache", "invalidate")
		s.logger.WarnContext(ctx, "search cache invalidation failed", "error", err)
	}
}

// Delete removes the record and its refresh token.
func (s *UserService) Delete(ctx context.Context, actor security.Identity, id uint) error {
	if id == actor.UserID {
		return forbidden("UNAUTHORIZED_OPERATION", "cannot delete own account")
	}
	err := s.users.Delete(ctx, id)
	if errors.Is(err, repository.ErrUserNotFound) {
		return notFound("USER_NOT_FOUND", "user not found")
	}
	if err != nil {
		return s.dependency(ctx, "delete user", err)
	}
	s.invalidateSearch(ctx)
	if err := s.tokens.Revoke(ctx, id); err != nil {
		return s.dependency(ctx, "revoke refresh token", err)
	}
	return nil
}

func (s *UserService) dependency(ctx context.Context, op string, err error) *Error {
	s.logger.ErrorContext(ctx, "dependency failure", "op", op, "error", err)
	return dependencyFailure(op, err)
}
