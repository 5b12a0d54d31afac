package service

import (
	"context"

	"github.com/karingamassive/membership-service/internal/domain"
	"github.com/karingamassive/membership-service/internal/repository"
	"github.com/karingamassive/membership-service/internal/security"
)

type AuthServiceInterface interface {
	Register(ctx context.Context, in RegisterInput) (*domain.User, error)
	Login(ctx context.Context, contact, password, address string) (*LoginResult, error)
	RequestCode(ctx context.Context, contact, address string) error
	ChangePassword(ctx context.Context, in ChangePasswordInput, address string) (*LoginResult, error)
	Refresh(ctx context.Context, refreshToken string, userID uint) (TokenPair, error)
	Logout(ctx context.Context, userID uint) error
}

type UserServiceInterface interface {
	Get(ctx context.Context, id uint) (*domain.User, error)
	Update(ctx context.Context, actor security.Identity, in UpdateUserInput) (*domain.User, error)
	List(ctx context.Context, in ListUsersInput) (repository.PageResult[domain.User], error)
	ListForAdmin(ctx context.Context, actor security.Identity, in ListUsersInput) (repository.PageResult[domain.User], error)
	Search(ctx context.Context, in SearchUsersInput) (repository.PageResult[domain.User], error)
	Delete(ctx context.Context, actor security.Identity, id uint) error
}

var (
	_ AuthServiceInterface = (*AuthService)(nil)
	_ UserServiceInterface = (*UserService)(nil)
)
