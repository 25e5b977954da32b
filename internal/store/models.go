package store

import "time"

// User is a player profile as supplied by the identity provider.
type User struct {
	TelegramID string `gorm:"primaryKey;column:telegram_id"`
	Username   string
	FirstName  string
	LastName   string
	PhotoURL   string `gorm:"column:photo_url"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Score is one finished round. EventID is nil for free play.
type Score struct {
	ID             uint    `gorm:"primaryKey"`
	Score          int     `gorm:"not null"`
	UserTelegramID string  `gorm:"column:user_telegram_id;not null;index"`
	EventID        *string `gorm:"column:event_id;index"`
	CreatedAt      time.Time
}

// Profile is the identity handed to the store on round start.
type Profile struct {
	PlayerID  string `json:"telegramId"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
}

func (u User) profile() Profile {
	return Profile{
		PlayerID:  u.TelegramID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		PhotoURL:  u.PhotoURL,
	}
}

func eventID(roundContext string) *string {
	if roundContext == "" {
		return nil
	}
	return &roundContext
}
