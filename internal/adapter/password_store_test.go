package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestKeyringPasswordStore(t *testing.T) {
	keyring.MockInit()

	store := NewKeyringPasswordStore("zipmirror-test")

	_, err := store.Get("/backup")
	assert.ErrorIs(t, err, ErrPasswordNotFound)

	require.NoError(t, store.Set("/backup", "secret"))

	pw, err := store.Get("/backup")
	require.NoError(t, err)
	assert.Equal(t, "secret", pw)

	require.NoError(t, store.Delete("/backup"))
	assert.ErrorIs(t, store.Delete("/backup"), ErrPasswordNotFound)
}
