// Package users resolves user ids against the external user directory. The
// core only consults it to reject alerts for unknown users.
package users

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Directory answers whether a user id resolves.
type Directory interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// HTTPDirectoryOptions parameterise the profile-service client.
type HTTPDirectoryOptions struct {
	BaseURL string
	Timeout time.Duration
}

// HTTPDirectory checks user existence against the profile service.
type HTTPDirectory struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewHTTPDirectory constructs a directory client.
func NewHTTPDirectory(opts HTTPDirectoryOptions, logger zerolog.Logger) *HTTPDirectory {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &HTTPDirectory{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "user_directory").Logger(),
	}
}

// Exists issues GET /profile/{id}; 200 resolves, 404 does not.
func (d *HTTPDirectory) Exists(ctx context.Context, userID string) (bool, error) {
	if d.baseURL == "" {
		return false, fmt.Errorf("user directory base url not configured")
	}

	endpoint := fmt.Sprintf("%s/profile/%s", d.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("query user directory: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("user directory unexpected status: %d", resp.StatusCode)
	}
}

// AllowAll is the development directory: every non-empty id resolves.
type AllowAll struct{}

func (AllowAll) Exists(_ context.Context, userID string) (bool, error) {
	return userID != "", nil
}

var (
	_ Directory = (*HTTPDirectory)(nil)
	_ Directory = AllowAll{}
)
