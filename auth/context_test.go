package auth

import (
	"context"
	"market-chat/errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserIDFromContext(t *testing.T) {
	req := require.New(t)

	userID, err := UserIDFromContext(WithUserID(context.Background(), "alice"))
	req.NoError(err)
	req.Equal("alice", userID)

	_, err = UserIDFromContext(context.Background())
	req.ErrorIs(err, errors.ErrUnauthenticated)

	_, err = UserIDFromContext(WithUserID(context.Background(), ""))
	req.ErrorIs(err, errors.ErrUnauthenticated)
}
