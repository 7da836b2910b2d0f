package gateway

import (
	"testing"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessToken_GrantsRoomJoin(t *testing.T) {
	t.Parallel()

	client := New(Config{
		URL:       "wss://rtc.example.com",
		APIKey:    "devkey",
		APISecret: "devsecret-devsecret-devsecret-32",
	})

	token, err := client.AccessToken("call-abc", "panel-user", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	// The verifier proves the token round-trips with the grants we set.
	verifier, err := auth.ParseAPIToken(token)
	require.NoError(t, err)
	assert.Equal(t, "devkey", verifier.APIKey())

	claims, err := verifier.Verify("devsecret-devsecret-devsecret-32")
	require.NoError(t, err)
	assert.Equal(t, "panel-user", claims.Identity)
	require.NotNil(t, claims.Video)
	assert.True(t, claims.Video.RoomJoin)
	assert.Equal(t, "call-abc", claims.Video.Room)
}

func TestURL_Passthrough(t *testing.T) {
	t.Parallel()

	client := New(Config{URL: "wss://rtc.example.com", APIKey: "k", APISecret: "s"})
	assert.Equal(t, "wss://rtc.example.com", client.URL())
}
