package domain

import "time"

// User represents a Telegram user registered with the bot or moving through
// the registration workflow.
type User struct {
	UserID    int64     `bson:"user_id" json:"user_id"`
	Username  string    `bson:"username" json:"username"`
	Email     string    `bson:"email,omitempty" json:"email,omitempty"`
	Role      string    `bson:"role,omitempty" json:"role,omitempty"`
	Status    string    `bson:"status" json:"status"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// IsRegistered reports whether the user completed the full approval flow.
func (u User) IsRegistered() bool {
	return u.Status == StatusRegistered
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
