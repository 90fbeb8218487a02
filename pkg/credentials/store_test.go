package credentials

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetKeyFromEnv(t *testing.T) {
	t.Setenv("AGENTVAULT_KEY_FOO", "abc")

	s := New("")

	v, ok := s.GetKey("foo")
	require.True(t, ok)
	assert.Equal(t, "abc", v)

	src, ok := s.KeySource("FOO")
	require.True(t, ok)
	assert.Equal(t, SourceEnv, src)
}

func TestUnknownServiceIsNotFoundNotError(t *testing.T) {
	s := New("")

	_, ok := s.GetKey("does-not-exist")
	assert.False(t, ok)
}

func TestFilePriorityOverridesEnv(t *testing.T) {
	t.Setenv("AGENTVAULT_KEY_FOO", "from-env")

	dir := t.TempDir()
	path := filepath.Join(dir, "keys.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"foo": "from-file"}`), 0o600))

	s := New(path)

	v, ok := s.GetKey("foo")
	require.True(t, ok)
	assert.Equal(t, "from-file", v)

	src, _ := s.KeySource("foo")
	assert.Equal(t, SourceFile, src)
}

func TestOAuthCredentialsFromJSONFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keys.json")
	body := `{"bar": {"oauth": {"clientId": "cid", "clientSecret": "csec"}}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	s := New(path)

	cid, csec, ok := s.GetOAuthCredentials("bar")
	require.True(t, ok)
	assert.Equal(t, "cid", cid)
	assert.Equal(t, "csec", csec)
}

func TestOAuthCredentialsFromEnv(t *testing.T) {
	t.Setenv("AGENTVAULT_OAUTH_BAZ_CLIENT_ID", "cid")
	t.Setenv("AGENTVAULT_OAUTH_BAZ_CLIENT_SECRET", "csec")

	s := New("")

	cid, csec, ok := s.GetOAuthCredentials("baz")
	require.True(t, ok)
	assert.Equal(t, "cid", cid)
	assert.Equal(t, "csec", csec)
}

func TestSetKeyInKeyringFailsWhenDisabled(t *testing.T) {
	s := New("")

	err := s.SetKeyInKeyring("foo", "value")
	require.Error(t, err)
}

type fakeKeyring struct {
	values map[string]string
}

func (f *fakeKeyring) key(service, user string) string { return service + "|" + user }

func (f *fakeKeyring) Get(service, user string) (string, error) {
	v, ok := f.values[f.key(service, user)]
	if !ok {
		return "", assertNotFound{}
	}
	return v, nil
}

func (f *fakeKeyring) Set(service, user, value string) error {
	if f.values == nil {
		f.values = make(map[string]string)
	}
	f.values[f.key(service, user)] = value
	return nil
}

func (f *fakeKeyring) Available() bool { return true }

type assertNotFound struct{}

func (assertNotFound) Error() string { return "not found" }

func TestKeyringIsConsultedOnlyOnCacheMiss(t *testing.T) {
	backend := &fakeKeyring{}
	require.NoError(t, backend.Set("agentvault:foo", "foo", "from-keyring"))

	s := New("", WithKeyring(backend))

	v, ok := s.GetKey("foo")
	require.True(t, ok)
	assert.Equal(t, "from-keyring", v)

	src, _ := s.KeySource("foo")
	assert.Equal(t, SourceKeyring, src)

	// A second lookup is a cache hit and must not consult the keyring.
	delete(backend.values, backend.key("agentvault:foo", "foo"))
	v, ok = s.GetKey("foo")
	require.True(t, ok)
	assert.Equal(t, "from-keyring", v)
}
