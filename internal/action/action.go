// Package action decodes raw inline-keyboard callback payloads into a closed
// set of typed actions before any workflow logic runs. Payloads follow the
// <action>_<argument...> convention used by the keyboard package.
package action

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Payload prefixes and literals. The keyboard package builds callback data
// from these same constants.
const (
	PrefixApprove = "approve_"
	PrefixDeny    = "deny_"
	PrefixRole    = "role_"
	PrefixTable   = "table_"
	DataConfirm   = "confirm"
	DataSkip      = "skip"
	DataDeny      = "deny"
)

// Action is a decoded callback payload.
type Action interface {
	isAction()
}

// Approve is the admin approving a pending registration.
type Approve struct {
	UserID int64
}

// Deny is the admin denying a pending registration.
type Deny struct {
	UserID int64
}

// AssignRole is the admin assigning a role to an approved user.
type AssignRole struct {
	Role   string
	UserID int64
}

// SelectTable is a press on one document-category button.
type SelectTable struct {
	Category string
}

// Confirm is a press on the confirm control.
type Confirm struct{}

// Skip is a press on the skip control.
type Skip struct{}

// DenySelection is a press on the bare deny control during deletion.
type DenySelection struct{}

func (Approve) isAction()       {}
func (Deny) isAction()          {}
func (AssignRole) isAction()    {}
func (SelectTable) isAction()   {}
func (Confirm) isAction()       {}
func (Skip) isAction()          {}
func (DenySelection) isAction() {}

// Parse decodes a raw callback payload. Unknown or malformed payloads return
// an error; callers log and acknowledge them rather than crash.
func Parse(data string) (Action, error) {
	data = clean(data)

	switch data {
	case DataConfirm:
		return Confirm{}, nil
	case DataSkip:
		return Skip{}, nil
	case DataDeny:
		return DenySelection{}, nil
	case "":
		return nil, fmt.Errorf("empty callback payload")
	}

	switch {
	case strings.HasPrefix(data, PrefixApprove):
		userID, err := parseUserID(strings.TrimPrefix(data, PrefixApprove))
		if err != nil {
			return nil, fmt.Errorf("approve payload: %w", err)
		}
		return Approve{UserID: userID}, nil

	case strings.HasPrefix(data, PrefixDeny):
		userID, err := parseUserID(strings.TrimPrefix(data, PrefixDeny))
		if err != nil {
			return nil, fmt.Errorf("deny payload: %w", err)
		}
		return Deny{UserID: userID}, nil

	case strings.HasPrefix(data, PrefixRole):
		rest := strings.TrimPrefix(data, PrefixRole)
		sep := strings.LastIndex(rest, "_")
		if sep <= 0 || sep == len(rest)-1 {
			return nil, fmt.Errorf("role payload %q: missing role or user id", data)
		}
		userID, err := parseUserID(rest[sep+1:])
		if err != nil {
			return nil, fmt.Errorf("role payload: %w", err)
		}
		return AssignRole{Role: rest[:sep], UserID: userID}, nil

	case strings.HasPrefix(data, PrefixTable):
		category := strings.TrimPrefix(data, PrefixTable)
		if category == "" {
			return nil, fmt.Errorf("table payload %q: missing category", data)
		}
		return SelectTable{Category: category}, nil
	}

	return nil, fmt.Errorf("unknown callback payload %q", data)
}

func parseUserID(raw string) (int64, error) {
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user id %q", raw)
	}
	if userID == 0 {
		return 0, fmt.Errorf("user id must be non-zero")
	}
	return userID, nil
}

// clean strips whitespace and non-printable characters some clients smuggle
// into callback data.
func clean(data string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) {
			return r
		}
		return -1
	}, strings.TrimSpace(data))
}
