package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/karingamassive/membership-service/internal/domain"
	"github.com/karingamassive/membership-service/internal/observability"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrDuplicateUser  = errors.New("user already exists")
	ErrInvalidPatch   = errors.New("invalid user patch")
	ErrInvalidListArg = errors.New("invalid list query")
)

type UserListQuery struct {
	PageRequest
	SortBy    string
	SortOrder string
	Area      string
	Status    string
	Rank      string
}

type UserRepository interface {
	FindByID(ctx context.Context, id uint) (*domain.User, error)
	FindByContact(ctx context.Context, contact string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) error
	Update(ctx context.Context, id uint, patch domain.UserPatch) (*domain.User, error)
	ListPaged(ctx context.Context, query UserListQuery) (PageResult[domain.User], error)
	Search(ctx context.Context, keyword string, page PageRequest) (PageResult[domain.User], error)
	Delete(ctx context.Context, id uint) error
}

type GormUserRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &GormUserRepository{db: db} }

var userSortColumns = map[string]string{
	"":           "users.id",
	"id":         "users.id",
	"full_name":  "users.full_name",
	"score":      "users.score",
	"created_at": "users.created_at",
}

func (r *GormUserRepository) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).First(&u, id).Error
	return r.found(ctx, "find_by_id", &u, err)
}

func (r *GormUserRepository) FindByContact(ctx context.Context, contact string) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).Where("contact = ?", strings.TrimSpace(contact)).First(&u).Error
	return r.found(ctx, "find_by_contact", &u, err)
}

func (r *GormUserRepository) found(ctx context.Context, op string, u *domain.User, err error) (*domain.User, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "user", op, "not_found")
			return nil, ErrUserNotFound
		}
		observability.RecordRepositoryOperation(ctx, "user", op, "error")
		return nil, fmt.Errorf("user %s: %w", op, err)
	}
	observability.RecordRepositoryOperation(ctx, "user", op, "success")
	return u, nil
}

func (r *GormUserRepository) Create(ctx context.Context, user *domain.User) error {
	if !user.Rank.Valid() || !user.Status.Valid() {
		return fmt.Errorf("%w: rank %q status %q", ErrInvalidPatch, user.Rank, user.Status)
	}
	err := r.db.WithContext(ctx).Create(user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			observability.RecordRepositoryOperation(ctx, "user", "create", "conflict")
			return ErrDuplicateUser
		}
		observability.RecordRepositoryOperation(ctx, "user", "create", "error")
		return fmt.Errorf("user create: %w", err)
	}
	observability.RecordRepositoryOperation(ctx, "user", "create", "success")
	return nil
}

// Update applies the non-nil fields of patch and returns the stored record.
func (r *GormUserRepository) Update(ctx context.Context, id uint, patch domain.UserPatch) (*domain.User, error) {
	changes, err := patchColumns(patch)
	if err != nil {
		return nil, err
	}
	var updated domain.User
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&updated, id).Error; err != nil {
			return err
		}
		if len(changes) == 0 {
			return nil
		}
		if err := tx.Model(&updated).Updates(changes).Error; err != nil {
			return err
		}
		return tx.First(&updated, id).Error
	})
	switch {
	case err == nil:
		observability.RecordRepositoryOperation(ctx, "user", "update", "success")
		return &updated, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		observability.RecordRepositoryOperation(ctx, "user", "update", "not_found")
		return nil, ErrUserNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		observability.RecordRepositoryOperation(ctx, "user", "update", "conflict")
		return nil, ErrDuplicateUser
	default:
		observability.RecordRepositoryOperation(ctx, "user", "update", "error")
		return nil, fmt.Errorf("user update: %w", err)
	}
}

func patchColumns(p domain.UserPatch) (map[string]any, error) {
	changes := map[string]any{}
	set := func(col string, v *string) {
		if v != nil {
			changes[col] = strings.TrimSpace(*v)
		}
	}
	set("full_name", p.FullName)
	set("email", p.Email)
	set("occupation", p.Occupation)
	set("village", p.Village)
	set("area", p.Area)
	set("avatar", p.Avatar)
	if p.PasswordHash != nil {
		changes["password_hash"] = *p.PasswordHash
	}
	if p.Rank != nil {
		if !p.Rank.Valid() {
			return nil, fmt.Errorf("%w: rank %q", ErrInvalidPatch, *p.Rank)
		}
		changes["rank"] = *p.Rank
	}
	if p.Status != nil {
		if !p.Status.Valid() {
			return nil, fmt.Errorf("%w: status %q", ErrInvalidPatch, *p.Status)
		}
		changes["status"] = *p.Status
	}
	return changes, nil
}

func (r *GormUserRepository) ListPaged(ctx context.Context, query UserListQuery) (PageResult[domain.User], error) {
	req := normalizePageRequest(query.PageRequest)
	result := PageResult[domain.User]{
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    []domain.User{},
	}
	sortCol, ok := userSortColumns[query.SortBy]
	if !ok {
		return PageResult[domain.User]{}, fmt.Errorf("%w: sort_by %q", ErrInvalidListArg, query.SortBy)
	}
	order := "asc"
	if strings.EqualFold(query.SortOrder, "desc") {
		order = "desc"
	}

	base := r.db.WithContext(ctx).Model(&domain.User{})
	if query.Area != "" {
		base = base.Where("users.area = ?", query.Area)
	}
	if query.Status != "" {
		base = base.Where("users.status = ?", query.Status)
	}
	if query.Rank != "" {
		base = base.Where("users.rank = ?", query.Rank)
	}

	if err := base.Session(&gorm.Session{}).Count(&result.Total).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "user", "list_paged", "error")
		return PageResult[domain.User]{}, fmt.Errorf("user count: %w", err)
	}
	listQuery := base.Order(sortCol + " " + order)
	if sortCol != "users.id" {
		listQuery = listQuery.Order("users.id " + order)
	}
	offset := (req.Page - 1) * req.PageSize
	if err := listQuery.Offset(offset).Limit(req.PageSize).Find(&result.Items).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "user", "list_paged", "error")
		return PageResult[domain.User]{}, fmt.Errorf("user list: %w", err)
	}
	result.TotalPages = calcTotalPages(result.Total, req.PageSize)
	observability.RecordRepositoryOperation(ctx, "user", "list_paged", "success")
	return result, nil
}

// searchColumns are matched case-insensitively against the keyword.
var searchColumns = []string{"users.full_name", "users.area", "users.village", "users.occupation", "users.status"}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// Search returns records whose name, area, village, occupation or status
// contains keyword, newest first. LIKE wildcards in keyword match literally.
func (r *GormUserRepository) Search(ctx context.Context, keyword string, page PageRequest) (PageResult[domain.User], error) {
	req := normalizePageRequest(page)
	result := PageResult[domain.User]{
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    []domain.User{},
	}
	pattern := "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(keyword))) + "%"
	clauses := make([]string, 0, len(searchColumns))
	args := make([]any, 0, len(searchColumns))
	for _, col := range searchColumns {
		clauses = append(clauses, "LOWER("+col+`) LIKE ? ESCAPE '\'`)
		args = append(args, pattern)
	}
	base := r.db.WithContext(ctx).Model(&domain.User{}).Where(strings.Join(clauses, " OR "), args...)

	if err := base.Session(&gorm.Session{}).Count(&result.Total).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "user", "search", "error")
		return PageResult[domain.User]{}, fmt.Errorf("user search count: %w", err)
	}
	offset := (req.Page - 1) * req.PageSize
	err := base.Order("users.created_at desc").Order("users.id desc").Offset(offset).Limit(req.PageSize).Find(&result.Items).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "user", "search", "error")
		return PageResult[domain.User]{}, fmt.Errorf("user search: %w", err)
	}
	result.TotalPages = calcTotalPages(result.Total, req.PageSize)
	observability.RecordRepositoryOperation(ctx, "user", "search", "success")
	return result, nil
}

func (r *GormUserRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&domain.User{}, id)
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "user", "delete", "error")
		return fmt.Errorf("user delete: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "user", "delete", "not_found")
		return ErrUserNotFound
	}
	observability.RecordRepositoryOperation(ctx, "user", "delete", "success")
	return nil
}
