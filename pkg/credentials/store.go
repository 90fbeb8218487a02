// Package credentials resolves per-service API keys and OAuth client
// credentials from a key file, environment variables, and the OS
// keyring, in that priority order, tracking the source of each
// resolved secret for diagnostics.
package credentials

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	agentvaulterrors "github.com/agentvault/agentvault-go/pkg/errors"
)

const envPrefix = "AGENTVAULT_KEY_"
const oauthClientIDPrefix = "AGENTVAULT_OAUTH_"
const oauthClientIDSuffix = "_CLIENT_ID"
const oauthClientSecretSuffix = "_CLIENT_SECRET"

// Source names where a credential was resolved from, for diagnostics.
type Source string

const (
	SourceFile    Source = "file"
	SourceEnv     Source = "env"
	SourceKeyring Source = "keyring"
)

type oauthCreds struct {
	ClientID     string
	ClientSecret string
}

// fileEntry mirrors the JSON key-file record shape: either a bare
// string (API key) or an object carrying an apiKey and/or oauth pair.
type fileEntry struct {
	APIKey *string `json:"apiKey,omitempty"`
	OAuth  *struct {
		ClientID     string `json:"clientId"`
		ClientSecret string `json:"clientSecret"`
	} `json:"oauth,omitempty"`
}

// KeyringBackend abstracts the OS secret store so the default
// implementation (zalando/go-keyring) can be swapped for tests or for
// platforms without a functional backend.
type KeyringBackend interface {
	Get(service, user string) (string, error)
	Set(service, user, value string) error
	Available() bool
}

// Store resolves and caches credentials. It is safe for concurrent
// use.
type Store struct {
	mu sync.RWMutex

	useEnv     bool
	useKeyring bool
	keyring    KeyringBackend
	logger     *log.Logger

	keys        map[string]string
	keySources  map[string]Source
	oauth       map[string]oauthCreds
	oauthSource map[string]Source
}

// Option configures a Store at construction time.
type Option func(*Store)

func WithEnv(enabled bool) Option { return func(s *Store) { s.useEnv = enabled } }

func WithKeyring(backend KeyringBackend) Option {
	return func(s *Store) {
		if backend == nil {
			return
		}
		if backend.Available() {
			s.useKeyring = true
			s.keyring = backend
			return
		}
		s.logger.Warn("keyring backend unavailable, keyring support disabled")
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a Store, applying options first and then loading from
// keyFilePath (if non-empty, format auto-detected by extension) and
// from environment variables (unless disabled). Load failures are logged and
// non-fatal: a store with a corrupt file still serves env/keyring
// entries.
func New(keyFilePath string, opts ...Option) *Store {
	s := &Store{
		useEnv:      true,
		logger:      log.Default(),
		keys:        make(map[string]string),
		keySources:  make(map[string]Source),
		oauth:       make(map[string]oauthCreds),
		oauthSource: make(map[string]Source),
	}

	for _, opt := range opts {
		opt(s)
	}

	if keyFilePath != "" {
		s.loadFromFile(keyFilePath)
	}
	if s.useEnv {
		s.loadFromEnv()
	}

	return s
}

func normalize(serviceID string) string { return strings.ToLower(serviceID) }

func (s *Store) loadFromFile(path string) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".env":
		values, err := godotenv.Read(path)
		if err != nil {
			s.logger.Warn("failed to read key file", "path", path, "error", err)
			return
		}
		for key, value := range values {
			if value == "" {
				continue
			}
			id := normalize(key)
			s.keys[id] = value
			s.keySources[id] = SourceFile
		}

	case ".json":
		raw, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("failed to read key file", "path", path, "error", err)
			return
		}
		var data map[string]json.RawMessage
		if err := json.Unmarshal(raw, &data); err != nil {
			s.logger.Error("invalid json key file", "path", path, "error", err)
			return
		}
		for key, raw := range data {
			id := normalize(key)

			var asString string
			if err := json.Unmarshal(raw, &asString); err == nil {
				if asString != "" {
					s.keys[id] = asString
					s.keySources[id] = SourceFile
				}
				continue
			}

			var entry fileEntry
			if err := json.Unmarshal(raw, &entry); err != nil {
				s.logger.Warn("skipping unrecognised key file entry", "service", id)
				continue
			}
			if entry.APIKey != nil && *entry.APIKey != "" {
				s.keys[id] = *entry.APIKey
				s.keySources[id] = SourceFile
			}
			if entry.OAuth != nil && entry.OAuth.ClientID != "" && entry.OAuth.ClientSecret != "" {
				s.oauth[id] = oauthCreds{ClientID: entry.OAuth.ClientID, ClientSecret: entry.OAuth.ClientSecret}
				s.oauthSource[id] = SourceFile
			}
		}

	default:
		s.logger.Warn("unsupported key file extension, only .env and .json are supported", "path", path)
	}
}

func (s *Store) loadFromEnv() {
	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if !ok || value == "" {
			continue
		}

		if strings.HasPrefix(key, envPrefix) {
			id := normalize(strings.TrimPrefix(key, envPrefix))
			if id == "" {
				continue
			}
			if _, exists := s.keys[id]; !exists {
				s.keys[id] = value
				s.keySources[id] = SourceEnv
			}
			continue
		}

		if strings.HasPrefix(key, oauthClientIDPrefix) && strings.HasSuffix(key, oauthClientIDSuffix) {
			id := normalize(strings.TrimSuffix(strings.TrimPrefix(key, oauthClientIDPrefix), oauthClientIDSuffix))
			if id == "" {
				continue
			}
			if s.oauthSource[id] == SourceFile {
				continue
			}
			c := s.oauth[id]
			c.ClientID = value
			s.oauth[id] = c
			s.oauthSource[id] = SourceEnv
			continue
		}

		if strings.HasPrefix(key, oauthClientIDPrefix) && strings.HasSuffix(key, oauthClientSecretSuffix) {
			id := normalize(strings.TrimSuffix(strings.TrimPrefix(key, oauthClientIDPrefix), oauthClientSecretSuffix))
			if id == "" {
				continue
			}
			if s.oauthSource[id] == SourceFile {
				continue
			}
			c := s.oauth[id]
			c.ClientSecret = value
			s.oauth[id] = c
			s.oauthSource[id] = SourceEnv
		}
	}
}

// GetKey returns the API key for serviceID, consulting the cache then
// the keyring (if enabled) under service name "agentvault:{serviceId}".
func (s *Store) GetKey(serviceID string) (string, bool) {
	id := normalize(serviceID)

	s.mu.RLock()
	if v, ok := s.keys[id]; ok {
		s.mu.RUnlock()
		return v, true
	}
	useKeyring := s.useKeyring
	s.mu.RUnlock()

	if !useKeyring {
		return "", false
	}

	value, err := s.keyring.Get("agentvault:"+id, id)
	if err != nil || value == "" {
		return "", false
	}

	s.mu.Lock()
	s.keys[id] = value
	s.keySources[id] = SourceKeyring
	s.mu.Unlock()

	return value, true
}

// GetOAuthCredentials returns the client-id/secret pair for serviceID.
// Both must be present for a keyring lookup to be considered
// configured.
func (s *Store) GetOAuthCredentials(serviceID string) (clientID, clientSecret string, ok bool) {
	id := normalize(serviceID)

	s.mu.RLock()
	if c, found := s.oauth[id]; found && c.ClientID != "" && c.ClientSecret != "" {
		s.mu.RUnlock()
		return c.ClientID, c.ClientSecret, true
	}
	useKeyring := s.useKeyring
	s.mu.RUnlock()

	if !useKeyring {
		return "", "", false
	}

	cid, errID := s.keyring.Get("agentvault:oauth:"+id, "clientId")
	csec, errSecret := s.keyring.Get("agentvault:oauth:"+id, "clientSecret")
	if errID != nil || errSecret != nil || cid == "" || csec == "" {
		return "", "", false
	}

	s.mu.Lock()
	s.oauth[id] = oauthCreds{ClientID: cid, ClientSecret: csec}
	s.oauthSource[id] = SourceKeyring
	s.mu.Unlock()

	return cid, csec, true
}

// KeySource reports where the API key for serviceID, if any, was
// resolved from.
func (s *Store) KeySource(serviceID string) (Source, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.keySources[normalize(serviceID)]
	return src, ok
}

// SetKeyInKeyring stores an API key in the OS keyring. Returns a
// KeyManagementError if keyring support is disabled or non-functional.
func (s *Store) SetKeyInKeyring(serviceID, value string) error {
	s.mu.RLock()
	enabled := s.useKeyring
	s.mu.RUnlock()

	if !enabled {
		return agentvaulterrors.NewKeyManagement("keyring support is not enabled for this store", nil)
	}
	id := normalize(serviceID)
	if err := s.keyring.Set("agentvault:"+id, id, value); err != nil {
		return agentvaulterrors.NewKeyManagement("failed to set key in keyring for service "+id, err)
	}

	s.mu.Lock()
	s.keys[id] = value
	s.keySources[id] = SourceKeyring
	s.mu.Unlock()
	return nil
}
