package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/taskhub/apiserver/internal/storage"
	"github.com/taskhub/apiserver/internal/store"
	"github.com/taskhub/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	List(ctx context.Context) ([]types.User, error)
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	VerifyEmail(ctx context.Context, token string) (types.User, error)
	SetAvatarKey(ctx context.Context, id, key string) error
	Delete(ctx context.Context, id string) (types.User, error)
}

// VerificationSender delivers the verification token to a freshly registered
// address. Dispatch must not block the caller on mail delivery.
type VerificationSender interface {
	Dispatch(email, token string)
}

// AvatarStore is the object storage used for user avatars.
type AvatarStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// RegisterInput is the registration payload.
type RegisterInput struct {
	FullName string `json:"fullName" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// LoginInput is the login payload.
type LoginInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UpdateUserInput is the profile update payload.
type UpdateUserInput struct {
	FullName string `json:"fullName" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

const verificationTokenBytes = 32

// UserService encapsulates user use-cases.
type UserService struct {
	repo     UserRepository
	sender   VerificationSender
	avatars  AvatarStore
	logger   *slog.Logger
	hashCost int

	dummyOnce sync.Once
	dummyHash []byte
}

// NewUserService wires the user use-cases. sender and avatars may be nil:
// registration then skips the verification mail and avatar operations
// report ErrStorageDisabled.
func NewUserService(repo UserRepository, sender VerificationSender, avatars AvatarStore, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{
		repo:     repo,
		sender:   sender,
		avatars:  avatars,
		logger:   logger,
		hashCost: bcrypt.DefaultCost,
	}
}

func (s *UserService) Register(ctx context.Context, input RegisterInput) (types.User, error) {
	input.FullName = strings.TrimSpace(input.FullName)
	input.Email = normalizeEmail(input.Email)
	if err := validateStruct(input); err != nil {
		return types.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.hashCost)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}
	token, err := newVerificationToken()
	if err != nil {
		return types.User{}, err
	}

	user, err := s.repo.Create(ctx, types.User{
		ID:                uuid.NewString(),
		FullName:          input.FullName,
		Email:             input.Email,
		Role:              types.RoleUser,
		PasswordHash:      string(hash),
		VerificationToken: &token,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.User{}, ErrEmailTaken
		}
		return types.User{}, err
	}

	if s.sender != nil {
		s.sender.Dispatch(user.Email, token)
	} else {
		s.logger.Warn("verification sender not configured, skipping mail", "user_id", user.ID)
	}
	return user, nil
}

// Login checks the credentials and returns the matching user. Unknown emails
// and wrong passwords both yield ErrInvalidCredentials after a bcrypt
// comparison, so response timing does not reveal which one failed.
func (s *UserService) Login(ctx context.Context, input LoginInput) (types.User, error) {
	input.Email = normalizeEmail(input.Email)
	if err := validateStruct(input); err != nil {
		return types.User{}, err
	}

	user, err := s.repo.GetByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.fallbackHash(), []byte(input.Password))
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// VerifyEmail redeems a verification token. A token can be redeemed once.
func (s *UserService) VerifyEmail(ctx context.Context, token string) (types.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return types.User{}, invalidf("token is required")
	}
	return s.repo.VerifyEmail(ctx, token)
}

func (s *UserService) List(ctx context.Context) ([]types.User, error) {
	return s.repo.List(ctx)
}

func (s *UserService) GetByID(ctx context.Context, rawID string) (types.User, error) {
	id, err := parseID(rawID, "user")
	if err != nil {
		return types.User{}, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) Update(ctx context.Context, rawID string, input UpdateUserInput) (types.User, error) {
	id, err := parseID(rawID, "user")
	if err != nil {
		return types.User{}, err
	}
	input.FullName = strings.TrimSpace(input.FullName)
	input.Email = normalizeEmail(input.Email)
	if err := validateStruct(input); err != nil {
		return types.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.hashCost)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.repo.Update(ctx, types.User{
		ID:           id,
		FullName:     input.FullName,
		Email:        input.Email,
		PasswordHash: string(hash),
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.User{}, ErrEmailTaken
		}
		return types.User{}, err
	}
	return user, nil
}

// Delete removes the user. A stored avatar is removed on a best-effort
// basis after the row is gone.
func (s *UserService) Delete(ctx context.Context, rawID string) (types.User, error) {
	id, err := parseID(rawID, "user")
	if err != nil {
		return types.User{}, err
	}

	user, err := s.repo.Delete(ctx, id)
	if err != nil {
		return types.User{}, err
	}

	if user.HasAvatar() && s.avatars != nil {
		if err := s.avatars.Delete(ctx, *user.AvatarKey); err != nil {
			s.logger.Warn("failed to delete avatar", "user_id", user.ID, "key", *user.AvatarKey, "error", err)
		}
	}
	return user, nil
}

// SetAvatar uploads the avatar object and records its key on the user.
func (s *UserService) SetAvatar(ctx context.Context, rawID string, r io.Reader, size int64, contentType string) error {
	if s.avatars == nil {
		return ErrStorageDisabled
	}
	id, err := parseID(rawID, "user")
	if err != nil {
		return err
	}
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}

	key := avatarKey(id)
	if err := s.avatars.Put(ctx, key, r, size, contentType); err != nil {
		return fmt.Errorf("upload avatar: %w", err)
	}
	return s.repo.SetAvatarKey(ctx, id, key)
}

// Avatar opens the stored avatar of the user. Callers must close the reader.
func (s *UserService) Avatar(ctx context.Context, rawID string) (io.ReadCloser, error) {
	if s.avatars == nil {
		return nil, ErrStorageDisabled
	}
	user, err := s.GetByID(ctx, rawID)
	if err != nil {
		return nil, err
	}
	if !user.HasAvatar() {
		return nil, fmt.Errorf("avatar: %w", store.ErrNotFound)
	}
	rc, err := s.avatars.Get(ctx, *user.AvatarKey)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, fmt.Errorf("avatar: %w", store.ErrNotFound)
	}
	return rc, err
}

func (s *UserService) fallbackHash() []byte {
	s.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("taskhub-login-placeholder"), s.hashCost)
		if err != nil {
			s.logger.Error("failed to build placeholder hash", "error", err)
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func avatarKey(userID string) string {
	return "avatars/" + userID
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func newVerificationToken() (string, error) {
	buf := make([]byte, verificationTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate verification token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
