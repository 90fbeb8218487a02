package a2a

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/cohesivestack/valgo"
)

var humanReadableIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*/[a-z0-9][a-z0-9._-]*$`)

// AuthScheme names the authentication mechanisms a card may advertise.
type AuthScheme string

const (
	AuthSchemeAPIKey AuthScheme = "apiKey"
	AuthSchemeBearer AuthScheme = "bearer"
	AuthSchemeOAuth2 AuthScheme = "oauth2"
	AuthSchemeNone   AuthScheme = "none"
)

// AgentAuthentication describes one accepted authentication scheme and
// the metadata a client needs to satisfy it.
type AgentAuthentication struct {
	Scheme            AuthScheme `json:"scheme"`
	ServiceIdentifier string     `json:"serviceIdentifier,omitempty"`
	TokenURL          string     `json:"tokenUrl,omitempty"`
}

// TEEDetails describes a trusted-execution-environment attestation
// endpoint, when an agent runs inside one.
type TEEDetails struct {
	Type                string `json:"type,omitempty"`
	AttestationEndpoint string `json:"attestationEndpoint,omitempty"`
	PublicKey           string `json:"publicKey,omitempty"`
}

// AgentCapabilities advertises protocol-level capabilities of an agent.
type AgentCapabilities struct {
	A2AVersion                string      `json:"a2aVersion"`
	SupportsPushNotifications bool        `json:"supportsPushNotifications,omitempty"`
	TeeDetails                *TEEDetails `json:"teeDetails,omitempty"`
}

// AgentProvider identifies the organisation publishing an agent.
type AgentProvider struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// AgentSkill describes one capability an agent exposes, with optional
// JSON Schemas describing its input and output shape.
type AgentSkill struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	InputSchema  map[string]any `json:"inputSchema,omitempty"`
	OutputSchema map[string]any `json:"outputSchema,omitempty"`
}

// AgentCard is the public, immutable descriptor of an agent: its
// endpoint, its accepted authentication schemes, and its capabilities.
// It is the contract a client resolves before it can locate,
// authenticate to, or understand an agent.
type AgentCard struct {
	SchemaVersion   string                `json:"schemaVersion"`
	HumanReadableID string                `json:"humanReadableId"`
	AgentVersion    string                `json:"agentVersion"`
	Name            string                `json:"name"`
	Description     string                `json:"description,omitempty"`
	URL             string                `json:"url"`
	Provider        AgentProvider         `json:"provider"`
	Capabilities    AgentCapabilities     `json:"capabilities"`
	AuthSchemes     []AgentAuthentication `json:"authSchemes"`
	Skills          []AgentSkill          `json:"skills,omitempty"`
	Tags            []string              `json:"tags,omitempty"`
	IconURL         string                `json:"iconUrl,omitempty"`
	PolicyURL       string                `json:"policyUrl,omitempty"`
	TermsOfService  string                `json:"termsOfServiceUrl,omitempty"`
	LastUpdated     *time.Time            `json:"lastUpdated,omitempty"`
}

// Validate checks the invariants from the Agent Card specification:
// a non-empty auth scheme list, a well-formed URL that is HTTPS unless
// it targets loopback, a human-readable ID matching the org/agent
// shape, and a tokenUrl present on every oauth2 scheme.
func (c *AgentCard) Validate() error {
	v := valgo.New()

	v.Is(valgo.String(c.SchemaVersion, "schemaVersion").Not().Blank())
	v.Is(valgo.String(c.AgentVersion, "agentVersion").Not().Blank())
	v.Is(valgo.String(c.Name, "name").Not().Blank())
	v.Is(valgo.String(c.Provider.Name, "provider.name").Not().Blank())
	v.Is(valgo.String(c.Capabilities.A2AVersion, "capabilities.a2aVersion").Not().Blank())

	v.Is(valgo.String(c.HumanReadableID, "humanReadableId").MatchingTo(
		humanReadableIDPattern,
		"must match org/agent",
	))

	if len(c.AuthSchemes) == 0 {
		v.AddErrorMessage("authSchemes", "must contain at least one scheme")
	}
	for i, scheme := range c.AuthSchemes {
		switch scheme.Scheme {
		case AuthSchemeAPIKey, AuthSchemeBearer, AuthSchemeOAuth2, AuthSchemeNone:
		default:
			v.AddErrorMessage(fmt.Sprintf("authSchemes[%d].scheme", i), fmt.Sprintf("unknown scheme %q", scheme.Scheme))
		}
		if scheme.Scheme == AuthSchemeOAuth2 && strings.TrimSpace(scheme.TokenURL) == "" {
			v.AddErrorMessage(fmt.Sprintf("authSchemes[%d].tokenUrl", i), "required when scheme is oauth2")
		}
	}

	if err := validateURL(c.URL); err != nil {
		v.AddErrorMessage("url", err.Error())
	}

	if !v.Valid() {
		return v.Error()
	}
	return nil
}

func validateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("malformed url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must use http or https")
	}
	host := u.Hostname()
	isLoopback := host == "localhost" || strings.HasPrefix(host, "127.") || host == "::1"
	if u.Scheme != "https" && !isLoopback {
		return fmt.Errorf("must use https except for loopback hosts")
	}
	return nil
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	sectionStyle = lipgloss.NewStyle().MarginTop(1)
)

// String renders a human-readable, lipgloss-styled summary of the
// card: name, id, url, provider, and its auth schemes.
func (c *AgentCard) String() string {
	b := strings.Builder{}
	b.WriteString(headerStyle.Render(c.Name))
	b.WriteString(" ")
	b.WriteString(labelStyle.Render(c.HumanReadableID))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("url") + " " + valueStyle.Render(c.URL) + "\n")
	b.WriteString(labelStyle.Render("provider") + " " + valueStyle.Render(c.Provider.Name) + "\n")
	b.WriteString(sectionStyle.Render(labelStyle.Render("auth schemes")))
	b.WriteString("\n")
	for _, scheme := range c.AuthSchemes {
		b.WriteString(fmt.Sprintf("  - %s\n", scheme.Scheme))
	}
	return b.String()
}
