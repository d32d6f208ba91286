package ids_test

import (
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/TruongKhoiNguyen/Agora-api/internal/ids"
	"github.com/TruongKhoiNguyen/Agora-api/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsOrdered(t *testing.T) {
	generated := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		generated = append(generated, ids.New())
	}
	require.True(t, sort.StringsAreSorted(generated))
	for _, id := range generated {
		require.Len(t, id, 24)
		require.True(t, ids.IsValid(id))
	}
}

func TestIsValid(t *testing.T) {
	assert.True(t, ids.IsValid(strings.ToUpper(ids.New())))
	for _, bad := range []string{"", "u1", "zzzzzzzzzzzzzzzzzzzzzzzz"} {
		assert.False(t, ids.IsValid(bad), bad)
	}
}

func TestParse(t *testing.T) {
	id := ids.New()

	got, err := ids.Parse("conversationId", "  "+id+" ")
	require.NoError(t, err)
	require.Equal(t, id, got)

	for _, bad := range []string{"", "abc", "zzzzzzzzzzzzzzzzzzzzzzzz", id + "0"} {
		_, err := ids.Parse("cursor", bad)
		var verr *store.ValidationError
		require.True(t, errors.As(err, &verr), "input %q", bad)
		require.Equal(t, "cursor", verr.Field)
	}
}

func TestParseUser(t *testing.T) {
	id, err := ids.ParseUser("userId", "  auth0|5f1c2b  ")
	require.NoError(t, err)
	assert.Equal(t, "auth0|5f1c2b", id)

	for _, bad := range []string{"", "has space", "semi;colon"} {
		_, err := ids.ParseUser("userId", bad)
		var verr *store.ValidationError
		assert.True(t, errors.As(err, &verr), bad)
	}

	all, err := ids.ParseUsers("members", []string{"u1", "u2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, all)
}
