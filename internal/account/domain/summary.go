package domain

import "time"

// Summary is the client-visible projection of an account. Secrets and counters stay server-side.
type Summary struct {
	AccountID               string            `json:"accountId"`
	UserID                  string            `json:"userId"`
	Email                   string            `json:"email,omitempty"`
	Provider                Provider          `json:"provider"`
	IsVerified              bool              `json:"isVerified"`
	IsLocked                bool              `json:"isLocked"`
	HasCompletedPreferences bool              `json:"hasCompletedPreferences"`
	StylePreferences        []StylePreference `json:"stylePreferences,omitempty"`
	Size                    Size              `json:"size,omitempty"`
	ProfileDesktopURL       string            `json:"profileDesktopUrl"`
	ProfileMobileURL        string            `json:"profileMobileUrl"`
	Version                 int64             `json:"version"`
	CreatedAt               time.Time         `json:"createdAt"`
}

// Summary returns the client-visible projection of a.
func (a *Account) Summary() *Summary {
	if a == nil {
		return nil
	}
	return &Summary{
		AccountID:               a.ID,
		UserID:                  a.UserID,
		Email:                   a.Email,
		Provider:                a.Provider,
		IsVerified:              a.IsVerified,
		IsLocked:                a.IsLocked,
		HasCompletedPreferences: a.HasCompletedPreferences,
		StylePreferences:        append([]StylePreference(nil), a.StylePreferences...),
		Size:                    a.Size,
		ProfileDesktopURL:       a.ProfileImage.DesktopURL,
		ProfileMobileURL:        a.ProfileImage.MobileURL,
		Version:                 a.Version,
		CreatedAt:               a.CreatedAt,
	}
}
