// Package profile maintains onboarding preferences and the profile image reference of an account.
package profile

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"account-identity-core/internal/account/domain"
	"account-identity-core/internal/account/repository"
)

// MaxImageBytes is the largest accepted profile image upload.
const MaxImageBytes = 5 << 20

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// ImageStore resizes raw image bytes and stores the desktop and mobile renditions.
type ImageStore interface {
	Store(ctx context.Context, ownerID string, raw []byte) (domain.ProfileImage, error)
	// Remove deletes renditions previously returned by Store. References it did not produce are ignored.
	Remove(ctx context.Context, refs domain.ProfileImage) error
}

// Preferences is an onboarding update. Nil Styles and empty Size leave the stored values alone.
type Preferences struct {
	Styles []domain.StylePreference
	Size   domain.Size
}

// Validate checks the style set and the size.
func (p Preferences) Validate() error {
	if err := domain.ValidateStyles(p.Styles); err != nil {
		return err
	}
	if p.Size != "" && !p.Size.Valid() {
		return domain.ErrInvalidSize
	}
	return nil
}

// Service updates profile data.
type Service struct {
	accounts repository.Repository
	images   ImageStore
	log      *zap.Logger
}

// NewService returns a Service. images may be nil when uploads are disabled.
func NewService(accounts repository.Repository, images ImageStore, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{accounts: accounts, images: images, log: log}
}

// UpdatePreferences stores p and marks onboarding complete. A non-zero expectedVersion makes the
// write fail with domain.ErrConflict when the account changed since the caller read it.
func (s *Service) UpdatePreferences(ctx context.Context, accountID string, p Preferences, expectedVersion int64) (*domain.Account, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return s.accounts.Update(ctx, accountID, expectedVersion, func(a *domain.Account) error {
		if p.Styles != nil {
			a.StylePreferences = append([]domain.StylePreference(nil), p.Styles...)
		}
		if p.Size != "" {
			a.Size = p.Size
		}
		a.HasCompletedPreferences = true
		return nil
	})
}

// UploadProfileImage checks size and sniffed content type before anything is written, stores the
// renditions and records their URLs on the account.
func (s *Service) UploadProfileImage(ctx context.Context, accountID string, raw []byte) (*domain.Account, error) {
	if err := CheckImage(raw); err != nil {
		return nil, err
	}
	if s.images == nil {
		return nil, errors.New("profile image storage is not configured")
	}
	a, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if a == nil {
		return nil, domain.ErrNotFound
	}
	refs, err := s.images.Store(ctx, accountID, raw)
	if err != nil {
		return nil, fmt.Errorf("store profile image: %w", err)
	}
	var previous domain.ProfileImage
	updated, err := s.accounts.Update(ctx, accountID, 0, func(a *domain.Account) error {
		previous = a.ProfileImage
		a.ProfileImage = refs
		return nil
	})
	if err != nil {
		s.log.Warn("profile image stored but not recorded", zap.String("account_id", accountID), zap.Error(err))
		s.discard(ctx, accountID, refs)
		return nil, err
	}
	s.discard(ctx, accountID, previous)
	return updated, nil
}

// DeleteProfileImage puts the default image back on the account and removes the uploaded renditions.
func (s *Service) DeleteProfileImage(ctx context.Context, accountID string) (*domain.Account, error) {
	var previous domain.ProfileImage
	updated, err := s.accounts.Update(ctx, accountID, 0, func(a *domain.Account) error {
		previous = a.ProfileImage
		a.ProfileImage = domain.DefaultProfileImage()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.discard(ctx, accountID, previous)
	return updated, nil
}

// discard removes renditions no account points at any more. Failures leave orphaned files and are
// only logged.
func (s *Service) discard(ctx context.Context, accountID string, refs domain.ProfileImage) {
	if s.images == nil || refs == domain.DefaultProfileImage() || refs == (domain.ProfileImage{}) {
		return
	}
	if err := s.images.Remove(ctx, refs); err != nil {
		s.log.Warn("profile image not removed", zap.String("account_id", accountID), zap.String("desktop_url", refs.DesktopURL), zap.Error(err))
	}
}

// CheckImage rejects empty, oversized and non jpeg/png/webp payloads.
func CheckImage(raw []byte) error {
	if len(raw) > MaxImageBytes {
		return domain.ErrImageTooLarge
	}
	if len(raw) == 0 || !allowedImageTypes[http.DetectContentType(raw)] {
		return domain.ErrUnsupportedType
	}
	return nil
}
