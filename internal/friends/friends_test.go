package friends

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic_IsSymmetric(t *testing.T) {
	d := NewStatic([][2]string{{"ana", "beto"}, {"ana", "caio"}, {"ana", "beto"}, {"x", "x"}})
	ctx := context.Background()

	ids, err := d.FriendsOf(ctx, "ana")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"beto", "caio"}, ids)

	ok, err := AreFriends(ctx, d, "beto", "ana")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = AreFriends(ctx, d, "beto", "caio")
	require.NoError(t, err)
	assert.False(t, ok)

	ids, _ = d.FriendsOf(ctx, "x")
	assert.Empty(t, ids)
}
