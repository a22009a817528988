package session

import (
	"os"
	"path/filepath"
	"testing"

	"devlink-client/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredStore_SaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store := NewCredStore(path)

	saved := Credentials{
		AccessToken: "tok-abc",
		User:        models.User{ID: "u1", Name: "Alice", Email: "alice@devlink.dev"},
	}
	require.NoError(t, store.Save(saved))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// A fresh store reading the same file sees the same session.
	loaded, err := NewCredStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, saved, loaded)
}

func TestCredStore_LoadMissingFile(t *testing.T) {
	store := NewCredStore(filepath.Join(t.TempDir(), "nope.json"))
	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestCredStore_LoadRejectsIncompleteSnapshot(t *testing.T) {
	cases := map[string]string{
		"missing token": `{"user":{"id":"u1","name":"A","email":"a@x.dev"}}`,
		"missing id":    `{"accessToken":"t","user":{"name":"A","email":"a@x.dev"}}`,
		"missing name":  `{"accessToken":"t","user":{"id":"u1","email":"a@x.dev"}}`,
		"missing email": `{"accessToken":"t","user":{"id":"u1","name":"A"}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "credentials.json")
			require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

			_, err := NewCredStore(path).Load()
			assert.ErrorIs(t, err, ErrNoCredentials)
		})
	}
}

func TestCredStore_ClearRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store := NewCredStore(path)
	require.NoError(t, store.Save(Credentials{
		AccessToken: "tok",
		User:        models.User{ID: "u1", Name: "A", Email: "a@x.dev"},
	}))

	store.Clear()

	assert.Empty(t, store.Token())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestCredStore_SetTokenKeepsSnapshot(t *testing.T) {
	store := NewCredStore(filepath.Join(t.TempDir(), "credentials.json"))
	store.SetToken("oauth-token")
	assert.Equal(t, "oauth-token", store.Token())
}
