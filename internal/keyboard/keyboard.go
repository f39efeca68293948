// Package keyboard builds the reply and inline markups the bot sends. Every
// constructor returns fresh markup so handlers can never mutate shared state.
package keyboard

import (
	"fmt"

	"github.com/go-telegram/bot/models"

	"access_share_bot/internal/action"
	"access_share_bot/internal/domain"
	"access_share_bot/internal/tables"
)

// Reply-button captions. Message handlers match incoming text against these.
const (
	ButtonOpenAccess  = "Open the access"
	ButtonChangeEmail = "Change my email"
	ButtonAllLinks    = "All Links"
	ButtonDeleteUser  = "Delete User"
)

// Inline-button captions.
const (
	captionConfirm = "Confirm Selection ✅"
	captionSkip    = "Skip ⏩"
	captionDeny    = "Deny ⛔"
)

// MainMenu returns the role-dependent reply keyboard shown to registered
// users.
func MainMenu(role string) (*models.ReplyKeyboardMarkup, error) {
	openAccess := models.KeyboardButton{Text: ButtonOpenAccess}
	allLinks := models.KeyboardButton{Text: ButtonAllLinks}
	changeEmail := models.KeyboardButton{Text: ButtonChangeEmail}
	deleteUser := models.KeyboardButton{Text: ButtonDeleteUser}

	var rows [][]models.KeyboardButton
	switch role {
	case domain.RoleAdmin:
		rows = [][]models.KeyboardButton{
			{openAccess},
			{allLinks, changeEmail},
			{deleteUser},
		}
	case domain.RoleUser:
		rows = [][]models.KeyboardButton{
			{openAccess},
			{allLinks, changeEmail},
		}
	case domain.RoleRestricted:
		rows = [][]models.KeyboardButton{
			{openAccess},
		}
	default:
		return nil, fmt.Errorf("no menu for role %q", role)
	}

	return &models.ReplyKeyboardMarkup{
		Keyboard:       rows,
		ResizeKeyboard: true,
	}, nil
}

// Approval returns the approve/deny markup sent to the admin chat when a new
// registration arrives.
func Approval(userID int64) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{{
			{Text: "✅", CallbackData: fmt.Sprintf("%s%d", action.PrefixApprove, userID)},
			{Text: "⛔", CallbackData: fmt.Sprintf("%s%d", action.PrefixDeny, userID)},
		}},
	}
}

// RoleChoice returns the markup the admin uses to assign a role to an
// approved user.
func RoleChoice(userID int64) *models.InlineKeyboardMarkup {
	row := make([]models.InlineKeyboardButton, 0, len(domain.AssignableRoles))
	for _, role := range domain.AssignableRoles {
		row = append(row, models.InlineKeyboardButton{
			Text:         role,
			CallbackData: fmt.Sprintf("%s%s_%d", action.PrefixRole, role, userID),
		})
	}

	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{row},
	}
}

// TableSelection returns the working-table multi-select markup used during
// deletion, with confirm and skip controls on the last row.
func TableSelection(registry *tables.Registry) *models.InlineKeyboardMarkup {
	working := registry.Working()

	row := make([]models.InlineKeyboardButton, 0, len(working))
	for _, category := range working {
		row = append(row, tableButton(category))
	}

	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			row,
			{
				{Text: captionConfirm, CallbackData: action.DataConfirm},
				{Text: captionSkip, CallbackData: action.DataSkip},
			},
		},
	}
}

// FinalConfirmation returns the last-step markup of the deletion workflow.
func FinalConfirmation() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{{
			{Text: captionConfirm, CallbackData: action.DataConfirm},
			{Text: captionDeny, CallbackData: action.DataDeny},
		}},
	}
}

// AllLinks returns the role-dependent category keyboard behind the
// "All Links" reply button. Admins see every category, everyone else only
// the guide.
func AllLinks(role string, registry *tables.Registry) (*models.InlineKeyboardMarkup, error) {
	switch role {
	case domain.RoleAdmin:
		categories := registry.All()

		rows := make([][]models.InlineKeyboardButton, 0, 2)
		var row []models.InlineKeyboardButton
		for _, category := range categories {
			row = append(row, tableButton(category))
			if len(row) == 3 {
				rows = append(rows, row)
				row = nil
			}
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}

		return &models.InlineKeyboardMarkup{InlineKeyboard: rows}, nil

	case domain.RoleUser, domain.RoleRestricted:
		if !registry.Has(tables.LinkToGuide) {
			return nil, fmt.Errorf("guide link is not configured")
		}
		return &models.InlineKeyboardMarkup{
			InlineKeyboard: [][]models.InlineKeyboardButton{{tableButton(tables.LinkToGuide)}},
		}, nil
	}

	return nil, fmt.Errorf("no link keyboard for role %q", role)
}

// Excluding returns a copy of markup without the buttons carrying
// callbackData, dropping rows that become empty. Used to consume pressed
// table buttons in place.
func Excluding(callbackData string, markup *models.InlineKeyboardMarkup) *models.InlineKeyboardMarkup {
	if markup == nil {
		return &models.InlineKeyboardMarkup{}
	}

	rows := make([][]models.InlineKeyboardButton, 0, len(markup.InlineKeyboard))
	for _, row := range markup.InlineKeyboard {
		kept := make([]models.InlineKeyboardButton, 0, len(row))
		for _, button := range row {
			if button.CallbackData == callbackData {
				continue
			}
			kept = append(kept, button)
		}
		if len(kept) > 0 {
			rows = append(rows, kept)
		}
	}

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// Remove returns the marker that clears any visible reply keyboard.
func Remove() *models.ReplyKeyboardRemove {
	return &models.ReplyKeyboardRemove{RemoveKeyboard: true}
}

func tableButton(category string) models.InlineKeyboardButton {
	return models.InlineKeyboardButton{
		Text:         tables.Label(category),
		CallbackData: action.PrefixTable + category,
	}
}
