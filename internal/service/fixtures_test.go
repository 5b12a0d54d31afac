package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/karingamassive/membership-service/internal/config"
	"github.com/karingamassive/membership-service/internal/domain"
	"github.com/karingamassive/membership-service/internal/queue"
	"github.com/karingamassive/membership-service/internal/ratelimit"
	"github.com/karingamassive/membership-service/internal/repository"
	"github.com/karingamassive/membership-service/internal/security"
	"github.com/karingamassive/membership-service/internal/sidestore"
)

const (
	testAccessSecret  = "test-access-secret-0123456789abcdef"
	testRefreshSecret = "test-refresh-secret-0123456789abcdef"
	testPassword      = "correct-horse"
)

type memoryUserRepo struct {
	mu              sync.Mutex
	nextID          uint
	users           map[uint]*domain.User
	findByContactN  int
	searchN         int
	failFindContact error
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{nextID: 1, users: map[uint]*domain.User{}}
}

func (r *memoryUserRepo) FindByID(_ context.Context, id uint) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memoryUserRepo) FindByContact(_ context.Context, contact string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findByContactN++
	if r.failFindContact != nil {
		return nil, r.failFindContact
	}
	for _, u := range r.users {
		if u.Contact == contact {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r *memoryUserRepo) lookups() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findByContactN
}

func (r *memoryUserRepo) Create(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Contact == u.Contact || existing.Email == u.Email {
			return repository.ErrDuplicateUser
		}
	}
	u.ID = r.nextID
	r.nextID++
	u.CreatedAt = time.Now()
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *memoryUserRepo) Update(_ context.Context, id uint, p domain.UserPatch) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	setStr := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	setStr(&u.FullName, p.FullName)
	setStr(&u.Email, p.Email)
	setStr(&u.Occupation, p.Occupation)
	setStr(&u.Village, p.Village)
	setStr(&u.Area, p.Area)
	setStr(&u.Avatar, p.Avatar)
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	if p.Rank != nil {
		u.Rank = *p.Rank
	}
	if p.Status != nil {
		u.Status = *p.Status
	}
	cp := *u
	return &cp, nil
}

func (r *memoryUserRepo) ListPaged(_ context.Context, q repository.UserListQuery) (repository.PageResult[domain.User], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []domain.User
	for _, u := range r.users {
		if q.Area != "" && u.Area != q.Area {
			continue
		}
		if q.Status != "" && string(u.Status) != q.Status {
			continue
		}
		items = append(items, *u)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return repository.PageResult[domain.User]{Items: items, Page: 1, PageSize: len(items), Total: int64(len(items)), TotalPages: 1}, nil
}

func (r *memoryUserRepo) Search(_ context.Context, keyword string, page repository.PageRequest) (repository.PageResult[domain.User], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.searchN++
	needle := strings.ToLower(keyword)
	var items []domain.User
	for _, u := range r.users {
		for _, field := range []string{u.FullName, u.Area, u.Village, u.Occupation, string(u.Status)} {
			if strings.Contains(strings.ToLower(field), needle) {
				items = append(items, *u)
				break
			}
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID > items[j].ID })
	return repository.PageResult[domain.User]{Items: items, Page: 1, PageSize: len(items), Total: int64(len(items)), TotalPages: 1}, nil
}

func (r *memoryUserRepo) searches() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.searchN
}

func (r *memoryUserRepo) Delete(_ context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return repository.ErrUserNotFound
	}
	delete(r.users, id)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e queue.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) ofType(eventType string) []queue.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []queue.Event
	for _, e := range p.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	mr        *miniredis.Miniredis
	client    *redis.Client
	store     *sidestore.RedisStore
	jwt       *security.JWTManager
	tokens    *TokenService
	refresh   *RefreshStore
	otps      *OTPStore
	repo      *memoryUserRepo
	publisher *recordingPublisher
	negative  *RedisNegativeLookupCacheStore
	search    *RedisListCacheStore
	auth      *AuthService
	users     *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr, client := newRedisClientForTest(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := sidestore.NewRedisStore(client, "membership", 500*time.Millisecond)
	jwtMgr := security.NewJWTManager("membership-service", "membership-clients", testAccessSecret, testRefreshSecret)
	refresh := NewRefreshStore(store)
	tokens := NewTokenService(jwtMgr, refresh, time.Hour, 24*time.Hour)
	otps := NewOTPStore(store, time.Hour)

	backend := ratelimit.NewRedisBackend(client, "rl", 500*time.Millisecond)
	insurance := ratelimit.NewMemoryBackend()
	guard := ratelimit.NewLoginGuard(
		ratelimit.NewLimiter(ratelimit.Policy{Name: "login_fail_ip", Points: 10, Duration: 10 * time.Minute, Failure: config.FailClosed}, backend, insurance, logger),
		ratelimit.NewLimiter(ratelimit.Policy{Name: "login_fail_ip_per_day", Points: 100, Duration: 24 * time.Hour, BlockDuration: 24 * time.Hour, Failure: config.FailClosed}, backend, insurance, logger),
		ratelimit.NewLimiter(ratelimit.Policy{Name: "login_fail_consecutive_contact_and_ip", Points: 10, Duration: 10 * time.Minute, BlockDuration: 2 * time.Minute, Failure: config.FailClosed}, backend, insurance, logger),
	)
	repo := newMemoryUserRepo()
	publisher := &recordingPublisher{}
	negative := NewRedisNegativeLookupCacheStore(client, "neg", 500*time.Millisecond)
	auth := NewAuthService(repo, tokens, otps, guard, negative, publisher, AuthConfig{BcryptCost: 4, NegativeLookupTTL: time.Minute}, logger)
	search := NewRedisListCacheStore(client, "list", 500*time.Millisecond)
	users := NewUserService(repo, tokens, publisher, search, 10*time.Minute, logger)
	return &fixture{
		mr:        mr,
		client:    client,
		store:     store,
		jwt:       jwtMgr,
		tokens:    tokens,
		refresh:   refresh,
		otps:      otps,
		repo:      repo,
		publisher: publisher,
		negative:  negative,
		search:    search,
		auth:      auth,
		users:     users,
	}
}

func (f *fixture) seedUser(t *testing.T, contact string, rank domain.Rank, status domain.Status, area string) *domain.User {
	t.Helper()
	hash, err := security.HashPassword(testPassword, 4)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &domain.User{
		FullName:     "Seeded Member",
		Contact:      contact,
		Email:        strings.TrimPrefix(contact, "+") + "@example.com",
		Area:         area,
		PasswordHash: hash,
		Rank:         rank,
		Status:       status,
	}
	if err := f.repo.Create(context.Background(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func kindOf(err error) Kind {
	if se, ok := AsError(err); ok {
		return se.Kind
	}
	return ""
}
