package fake

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClient_ReverseGeocode(t *testing.T) {
	c := New()
	a1, err := c.ReverseGeocode(context.Background(), 52.52, 13.405)
	require.NoError(t, err)
	require.NotEmpty(t, a1)

	a2, err := c.ReverseGeocode(context.Background(), 52.52, 13.405)
	require.NoError(t, err)
	require.Equal(t, a1, a2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.ReverseGeocode(ctx, 0, 0)
	require.Error(t, err)
}
