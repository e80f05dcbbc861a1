package mockclient

import (
	"context"

	"bwsrank/ingestion/internal/models"

	"github.com/stretchr/testify/mock"
)

type Client struct {
	mock.Mock
}

func (c *Client) FetchUser(ctx context.Context, userID int) (*models.UserResponse, error) {
	args := c.Called(ctx, userID)

	var res *models.UserResponse
	switch v := args.Get(0).(type) {
	case func(context.Context, int) *models.UserResponse:
		res = v(ctx, userID)
	case *models.UserResponse:
		res = v
	}

	return res, args.Error(1)
}
