package models

import "time"

// User is owned by the account subsystem; the monitor only reads it.
type User struct {
	UserID            string    `firestore:"userId"`
	UserName          string    `firestore:"userName"`
	Email             string    `firestore:"email"`
	Name              string    `firestore:"name"`
	DiscordWebhookURL string    `firestore:"discordWebhookUrl,omitempty"`
	CreatedAt         time.Time `firestore:"createdAt"`
	UpdatedAt         time.Time `firestore:"updatedAt"`
}

// DisplayName prefers the full name, then the user name, then the email.
func (u User) DisplayName() string {
	switch {
	case u.Name != "":
		return u.Name
	case u.UserName != "":
		return u.UserName
	default:
		return u.Email
	}
}
