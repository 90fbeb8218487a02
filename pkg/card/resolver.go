// Package card resolves Agent Cards from a URL, a local file, or a
// registry lookup by human-readable ID, returning a validated card or
// a categorised error.
package card

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/agentvault/agentvault-go/pkg/a2a"
	agentvaulterrors "github.com/agentvault/agentvault-go/pkg/errors"
)

// Resolver loads and validates Agent Cards. The zero value is usable;
// an HTTP client is built per call when none was injected, matching
// the pack's httpClient-injection-for-testability idiom.
type Resolver struct {
	// HTTPClient is used for URL and registry resolution. When nil, a
	// short-lived client with a 10s timeout is created and closed per
	// call.
	HTTPClient *http.Client

	// RegistryURL is the base URL of the registry consulted by
	// ResolveByHumanReadableID.
	RegistryURL string
}

func New(registryURL string) *Resolver {
	return &Resolver{RegistryURL: registryURL}
}

func (r *Resolver) client() *http.Client {
	if r.HTTPClient != nil {
		return r.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func parseAndValidate(body []byte) (*a2a.AgentCard, error) {
	var card a2a.AgentCard
	if err := json.Unmarshal(body, &card); err != nil {
		return nil, agentvaulterrors.NewAgentCardValidation("malformed agent card json", err)
	}
	if err := card.Validate(); err != nil {
		return nil, agentvaulterrors.NewAgentCardValidation(err.Error(), err)
	}
	return &card, nil
}

// ResolveFromURL fetches an Agent Card document via HTTP GET. A
// non-2xx response surfaces a fetch error carrying the status code
// and a truncated body.
func (r *Resolver) ResolveFromURL(ctx context.Context, cardURL string) (*a2a.AgentCard, error) {
	if _, err := url.ParseRequestURI(cardURL); err != nil {
		return nil, agentvaulterrors.NewAgentCardFetch("malformed card url", 0, "", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cardURL, nil)
	if err != nil {
		return nil, agentvaulterrors.NewAgentCardFetch("failed to build request", 0, "", err)
	}

	resp, err := r.client().Do(req)
	if err != nil {
		return nil, agentvaulterrors.NewAgentCardFetch("request failed", 0, "", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, agentvaulterrors.NewAgentCardFetch("non-2xx response fetching agent card", resp.StatusCode, string(body), nil)
	}

	return parseAndValidate(body)
}

// ResolveFromFile reads and parses a local Agent Card JSON file.
func (r *Resolver) ResolveFromFile(path string) (*a2a.AgentCard, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, agentvaulterrors.NewAgentCardFetch("agent card file not found", 0, "", err)
	}
	if info.IsDir() {
		return nil, agentvaulterrors.NewAgentCardFetch("agent card path is a directory, not a file", 0, "", nil)
	}

	body, err := os.ReadFile(path)
	if err != nil {
		return nil, agentvaulterrors.NewAgentCardFetch("failed to read agent card file", 0, "", err)
	}

	return parseAndValidate(body)
}

// registryEnvelope is the documented registry response shape:
// {card_data: AgentCard}.
type registryEnvelope struct {
	CardData json.RawMessage `json:"card_data"`
}

// ResolveByHumanReadableID looks up an Agent Card from the configured
// registry at GET {registryUrl}/api/v1/agent-cards/id/{id}. A 404
// surfaces a distinct not-found error; other non-2xx statuses surface
// a fetch error with status and body.
func (r *Resolver) ResolveByHumanReadableID(ctx context.Context, humanReadableID string) (*a2a.AgentCard, error) {
	if r.RegistryURL == "" {
		return nil, agentvaulterrors.NewAgentCardFetch("no registry url configured", 0, "", nil)
	}

	endpoint := fmt.Sprintf("%s/api/v1/agent-cards/id/%s", r.RegistryURL, url.PathEscape(humanReadableID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, agentvaulterrors.NewAgentCardFetch("failed to build registry request", 0, "", err)
	}

	resp, err := r.client().Do(req)
	if err != nil {
		return nil, agentvaulterrors.NewAgentCardFetch("registry request failed", 0, "", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return nil, agentvaulterrors.NewAgentCardNotFound(humanReadableID)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, agentvaulterrors.NewAgentCardFetch("non-2xx response from registry", resp.StatusCode, string(body), nil)
	}

	var envelope registryEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, agentvaulterrors.NewAgentCardFetch("malformed registry envelope", resp.StatusCode, string(body), err)
	}

	return parseAndValidate(envelope.CardData)
}
