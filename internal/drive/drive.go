// Package drive is the document access provider: it validates share links and
// organizational emails, and grants, finds, and revokes writer permissions on
// Google documents through the Drive permissions API.
package drive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"access_share_bot/internal/logging"
)

const (
	permissionRole = "writer"
	permissionType = "user"

	defaultAttempts = 3
	defaultBackoff  = 500 * time.Millisecond
)

var (
	// linkPattern accepts Google document and spreadsheet share links and
	// captures the file id.
	linkPattern = regexp.MustCompile(`^https://docs\.google\.com/(?:document|spreadsheets)/d/([a-zA-Z0-9_-]+)`)

	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// IsDocumentLink reports whether link is a well-formed Google document or
// spreadsheet reference.
func IsDocumentLink(link string) bool {
	return linkPattern.MatchString(strings.TrimSpace(link))
}

// FileID extracts the file id from a share link.
func FileID(link string) (string, error) {
	match := linkPattern.FindStringSubmatch(strings.TrimSpace(link))
	if match == nil {
		return "", fmt.Errorf("not a document link: %q", link)
	}
	return match[1], nil
}

// EmailValidator checks addresses against the configured organizational
// domain allow-list.
type EmailValidator struct {
	domains map[string]struct{}
}

// NewEmailValidator builds a validator from the allowed domain list.
func NewEmailValidator(domains []string) EmailValidator {
	allowed := make(map[string]struct{}, len(domains))
	for _, domain := range domains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain == "" {
			continue
		}
		allowed[domain] = struct{}{}
	}
	return EmailValidator{domains: allowed}
}

// IsOrganizationalEmail reports whether email is well-formed and its domain
// is on the allow-list.
func (v EmailValidator) IsOrganizationalEmail(email string) bool {
	email = strings.TrimSpace(email)
	if !emailPattern.MatchString(email) {
		return false
	}

	at := strings.LastIndex(email, "@")
	domain := strings.ToLower(email[at+1:])

	_, ok := v.domains[domain]
	return ok
}

// grant is one existing permission on a file.
type grant struct {
	id    string
	email string
}

// permissionAPI is the narrow surface of the Drive permissions service the
// client depends on, stubbed in tests.
type permissionAPI interface {
	create(ctx context.Context, fileID, email string) error
	list(ctx context.Context, fileID string) ([]grant, error)
	delete(ctx context.Context, fileID, permissionID string) error
}

type googlePermissionAPI struct {
	svc *drive.Service
}

func (g googlePermissionAPI) create(ctx context.Context, fileID, email string) error {
	permission := &drive.Permission{
		Type:         permissionType,
		Role:         permissionRole,
		EmailAddress: email,
	}

	_, err := g.svc.Permissions.Create(fileID, permission).
		Fields("id").
		Context(ctx).
		Do()
	return err
}

func (g googlePermissionAPI) list(ctx context.Context, fileID string) ([]grant, error) {
	resp, err := g.svc.Permissions.List(fileID).
		Fields("permissions(id,emailAddress)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}

	grants := make([]grant, 0, len(resp.Permissions))
	for _, permission := range resp.Permissions {
		grants = append(grants, grant{id: permission.Id, email: permission.EmailAddress})
	}
	return grants, nil
}

func (g googlePermissionAPI) delete(ctx context.Context, fileID, permissionID string) error {
	return g.svc.Permissions.Delete(fileID, permissionID).
		Context(ctx).
		Do()
}

// Client wraps the Drive permissions API with link parsing and bounded
// retries around every remote call.
type Client struct {
	api      permissionAPI
	logger   *logrus.Entry
	attempts int
	backoff  time.Duration
}

// NewClient builds a Drive client from a service account credentials file.
func NewClient(ctx context.Context, credentialsFile string, logger *logrus.Entry) (*Client, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if strings.TrimSpace(credentialsFile) == "" {
		return nil, errors.New("credentials file is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	raw, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(raw, drive.DriveScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}

	svc, err := drive.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("init drive service: %w", err)
	}

	return &Client{
		api:      googlePermissionAPI{svc: svc},
		logger:   logger,
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
	}, nil
}

// newClientWithAPI wires a custom permission API; used in tests.
func newClientWithAPI(api permissionAPI, logger *logrus.Entry) *Client {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Client{
		api:      api,
		logger:   logger,
		attempts: defaultAttempts,
		backoff:  time.Millisecond,
	}
}

// GrantAccess gives writer access on the linked document to the email.
func (c *Client) GrantAccess(ctx context.Context, link, email string) error {
	if c == nil || c.api == nil {
		return errors.New("drive client is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	fileID, err := FileID(link)
	if err != nil {
		return err
	}

	err = c.retry(ctx, func() error {
		return c.api.create(ctx, fileID, email)
	})
	if err != nil {
		return fmt.Errorf("grant access on %s: %w", fileID, err)
	}

	c.logger.WithFields(logging.Fields{
		"event":   "drive_access_granted",
		"file_id": fileID,
	}).Info("shared document access")

	return nil
}

// FindPermissionID returns the id of the permission granted to email on the
// linked document, or "" when the email holds no permission there.
func (c *Client) FindPermissionID(ctx context.Context, link, email string) (string, error) {
	if c == nil || c.api == nil {
		return "", errors.New("drive client is not initialized")
	}
	if ctx == nil {
		return "", errors.New("context is required")
	}

	fileID, err := FileID(link)
	if err != nil {
		return "", err
	}

	var grants []grant
	err = c.retry(ctx, func() error {
		var listErr error
		grants, listErr = c.api.list(ctx, fileID)
		return listErr
	})
	if err != nil {
		return "", fmt.Errorf("list permissions on %s: %w", fileID, err)
	}

	target := strings.ToLower(strings.TrimSpace(email))
	for _, g := range grants {
		if strings.ToLower(g.email) == target {
			return g.id, nil
		}
	}

	return "", nil
}

// RevokeAccess removes a permission from the linked document.
func (c *Client) RevokeAccess(ctx context.Context, link, permissionID string) error {
	if c == nil || c.api == nil {
		return errors.New("drive client is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if permissionID == "" {
		return errors.New("permission id is required")
	}

	fileID, err := FileID(link)
	if err != nil {
		return err
	}

	err = c.retry(ctx, func() error {
		return c.api.delete(ctx, fileID, permissionID)
	})
	if err != nil {
		return fmt.Errorf("revoke permission %s on %s: %w", permissionID, fileID, err)
	}

	c.logger.WithFields(logging.Fields{
		"event":         "drive_access_revoked",
		"file_id":       fileID,
		"permission_id": permissionID,
	}).Info("removed document access")

	return nil
}

// retry runs fn up to c.attempts times with a flat backoff between tries.
// External provider calls are the operations most likely to fail
// transiently; callers surface the final error and leave their workflow step
// unchanged for manual retry.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if attempt == c.attempts {
			break
		}

		c.logger.WithFields(logging.Fields{
			"event":   "drive_retry",
			"attempt": attempt,
		}).WithError(lastErr).Warn("drive call failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff):
		}
	}

	return lastErr
}
