package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ContributorRoster answers whether a provider login belongs to a verified
// project contributor. It is injected so the ledger's contributor side
// effect stays testable without network access; the production
// implementation calls a rate-limited external API.
type ContributorRoster interface {
	IsContributor(ctx context.Context, login string) (bool, error)
}

// HTTPRoster queries a contributor-list endpoint that returns a JSON array
// of objects carrying a "login" field.
type HTTPRoster struct {
	url    string
	client *http.Client
}

// NewHTTPRoster constructs an HTTPRoster for the given endpoint.
func NewHTTPRoster(url string) *HTTPRoster {
	return &HTTPRoster{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// IsContributor fetches the roster and checks the login against it.
func (r *HTTPRoster) IsContributor(ctx context.Context, login string) (bool, error) {
	req, errReq := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if errReq != nil {
		return false, fmt.Errorf("identity: build roster request: %w", errReq)
	}

	resp, errDo := r.client.Do(req)
	if errDo != nil {
		return false, fmt.Errorf("identity: fetch roster: %w", errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("identity: roster returned status %d", resp.StatusCode)
	}

	var entries []struct {
		Login string `json:"login"`
	}
	if errDecode := json.NewDecoder(resp.Body).Decode(&entries); errDecode != nil {
		return false, fmt.Errorf("identity: decode roster: %w", errDecode)
	}

	for _, entry := range entries {
		if entry.Login == login {
			return true, nil
		}
	}
	return false, nil
}

// StaticRoster is a fixed in-memory roster, used in tests and when no
// roster endpoint is configured.
type StaticRoster map[string]bool

// IsContributor checks the login against the fixed set.
func (r StaticRoster) IsContributor(_ context.Context, login string) (bool, error) {
	return r[login], nil
}
