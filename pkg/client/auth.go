package client

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/agentvault/agentvault-go/pkg/a2a"
	"github.com/agentvault/agentvault-go/pkg/credentials"
	agentvaulterrors "github.com/agentvault/agentvault-go/pkg/errors"
)

// applyAuth resolves the credential for card's preferred authScheme
// and sets the corresponding header on req, per SPEC_FULL §4.4.4. A
// "none" scheme (or an empty scheme list) leaves the request
// untouched.
func (c *Session) applyAuth(ctx context.Context, card *a2a.AgentCard, req *http.Request) error {
	scheme, ok := preferredScheme(card)
	if !ok || scheme.Scheme == a2a.AuthSchemeNone {
		return nil
	}

	serviceID := scheme.ServiceIdentifier
	if serviceID == "" {
		serviceID = card.HumanReadableID
	}

	switch scheme.Scheme {
	case a2a.AuthSchemeAPIKey:
		key, found := c.Credentials.GetKey(serviceID)
		if !found {
			return agentvaulterrors.NewA2AAuthentication("no api key configured for "+serviceID, nil)
		}
		req.Header.Set("X-Api-Key", key)
		return nil

	case a2a.AuthSchemeBearer:
		token, found := c.Credentials.GetKey(serviceID)
		if !found {
			return agentvaulterrors.NewA2AAuthentication("no bearer token configured for "+serviceID, nil)
		}
		if expired := jwtLooksExpired(token); expired {
			return agentvaulterrors.NewA2AAuthentication("bearer token for "+serviceID+" is expired", nil)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return nil

	case a2a.AuthSchemeOAuth2:
		clientID, clientSecret, found := c.Credentials.GetOAuthCredentials(serviceID)
		if !found {
			return agentvaulterrors.NewA2AAuthentication("no oauth2 client credentials configured for "+serviceID, nil)
		}
		token, err := c.tokens.Token(ctx, scheme.TokenURL, clientID, clientSecret)
		if err != nil {
			return agentvaulterrors.NewA2AAuthentication("oauth2 token request failed for "+serviceID, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return nil

	default:
		return agentvaulterrors.NewA2AAuthentication("unsupported auth scheme: "+string(scheme.Scheme), nil)
	}
}

// invalidateAuth drops any cached OAuth2 token for card's scheme so
// the next applyAuth call fetches a fresh one, used on a 401 from the
// agent before the standard single retry.
func (c *Session) invalidateAuth(card *a2a.AgentCard) {
	scheme, ok := preferredScheme(card)
	if !ok || scheme.Scheme != a2a.AuthSchemeOAuth2 {
		return
	}
	serviceID := scheme.ServiceIdentifier
	if serviceID == "" {
		serviceID = card.HumanReadableID
	}
	clientID, _, found := c.Credentials.GetOAuthCredentials(serviceID)
	if !found {
		return
	}
	c.tokens.Invalidate(scheme.TokenURL, clientID)
}

func preferredScheme(card *a2a.AgentCard) (a2a.AgentAuthentication, bool) {
	if len(card.AuthSchemes) == 0 {
		return a2a.AgentAuthentication{}, false
	}
	return card.AuthSchemes[0], true
}

// jwtLooksExpired does a best-effort client-side expiry check: a
// three-segment token is parsed (without signature verification, the
// client does not hold the signing key) and its exp claim compared to
// now. An opaque (non-JWT) token, or one jwt.Parse can't read claims
// from, is assumed not expired — a real 401 still triggers the
// standard invalidate-and-retry-once path.
func jwtLooksExpired(token string) bool {
	if strings.Count(token, ".") != 2 {
		return false
	}

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	_, _, err := parser.ParseUnverified(token, claims)
	if err != nil {
		return false
	}

	expirationTime, err := claims.GetExpirationTime()
	if err != nil || expirationTime == nil {
		return false
	}
	return expirationTime.Before(time.Now())
}
