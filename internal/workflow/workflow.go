// Package workflow implements the conversation flows of the bot:
// registration with admin approval and role assignment, admin-only user
// deletion with document access revocation, and access grants on shared
// documents. Handlers here are transport-free; the telegram package routes
// updates into them.
package workflow

import (
	"context"
	"time"

	"github.com/go-telegram/bot/models"

	"access_share_bot/internal/domain"
)

// Messenger is the outbound Telegram surface the workflows talk through.
// Implemented by the telegram package; faked in tests.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string, markup models.ReplyMarkup) error
	Edit(ctx context.Context, chatID int64, messageID int, text string, markup models.ReplyMarkup) error
	Ban(ctx context.Context, chatID, userID int64, until time.Time) error
	CreateInviteLink(ctx context.Context, chatID int64) (string, error)
}

// UserStore is the persistence surface the workflows need. Satisfied by
// *domain.UserRepository.
type UserStore interface {
	Create(ctx context.Context, user domain.User) (domain.User, error)
	GetByID(ctx context.Context, userID int64) (domain.User, error)
	GetByUsername(ctx context.Context, username string) (domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	Update(ctx context.Context, userID int64, patch domain.UserPatch) (domain.User, error)
	Delete(ctx context.Context, userID int64) error
}

// AccessProvider manages permissions on shared documents. Satisfied by
// *drive.Client.
type AccessProvider interface {
	GrantAccess(ctx context.Context, link, email string) error
	FindPermissionID(ctx context.Context, link, email string) (string, error)
	RevokeAccess(ctx context.Context, link, permissionID string) error
}

// EmailValidator decides whether an address belongs to the organization.
// Satisfied by drive.EmailValidator.
type EmailValidator interface {
	IsOrganizationalEmail(email string) bool
}

func strPtr(s string) *string { return &s }
