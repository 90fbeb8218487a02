package server

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentvault/agentvault-go/pkg/taskstore"
)

func TestRegisterMethodRejectsMalformedSchema(t *testing.T) {
	r := NewRegistry()

	err := r.RegisterMethod("bad", []byte(`{not json`), func(ctx context.Context, store *taskstore.Store, params json.RawMessage) (any, error) {
		return nil, nil
	})

	require.Error(t, err)
}

func TestRegistryLookupMissing(t *testing.T) {
	r := NewRegistry()
	_, ok := r.lookup("missing")
	assert.False(t, ok)
}

func TestDomainErrorImplementsError(t *testing.T) {
	var err error = NewDomainError("boom", nil)
	assert.Equal(t, "boom", err.Error())
}
