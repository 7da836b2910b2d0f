// Package gateway wraps the real-time audio/SIP gateway's server SDK. Room
// signaling, SIP trunking and media transport all happen inside the gateway;
// this package only drives its API.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"

	"github.com/quickcall/quickcall/internal/ctxlog"
)

// Config holds the gateway endpoint and API credentials.
type Config struct {
	URL        string
	APIKey     string
	APISecret  string
	SIPTrunkID string
}

// Client bundles the gateway's room and SIP service clients.
type Client struct {
	cfg   Config
	rooms *lksdk.RoomServiceClient
	sip   *lksdk.SIPClient
}

// New builds a gateway client. The URL is the same ws(s)/http(s) endpoint
// the browser connects to.
func New(cfg Config) *Client {
	return &Client{
		cfg:   cfg,
		rooms: lksdk.NewRoomServiceClient(cfg.URL, cfg.APIKey, cfg.APISecret),
		sip:   lksdk.NewSIPClient(cfg.URL, cfg.APIKey, cfg.APISecret),
	}
}

// URL returns the gateway endpoint for clients joining with a token.
func (c *Client) URL() string {
	return c.cfg.URL
}

// AccessToken mints a signed join token for the given room and identity.
// The JWT internals are the auth library's job.
func (c *Client) AccessToken(room, identity string, ttl time.Duration) (string, error) {
	at := auth.NewAccessToken(c.cfg.APIKey, c.cfg.APISecret)
	at.SetIdentity(identity).
		SetValidFor(ttl).
		SetVideoGrant(&auth.VideoGrant{
			RoomJoin: true,
			Room:     room,
		})
	token, err := at.ToJWT()
	if err != nil {
		return "", fmt.Errorf("sign access token for room %q: %w", room, err)
	}
	return token, nil
}

// EnsureRoom creates the room if it does not exist. Creating an existing
// room is a no-op on the gateway side, so no existence check is needed.
func (c *Client) EnsureRoom(ctx context.Context, name, metadata string) error {
	ctxlog.FromContext(ctx).Debug("Ensuring gateway room.", "room", name)
	_, err := c.rooms.CreateRoom(ctx, &livekit.CreateRoomRequest{
		Name:     name,
		Metadata: metadata,
	})
	if err != nil {
		return fmt.Errorf("create room %q: %w", name, err)
	}
	return nil
}

// DeleteRoom tears the room down, disconnecting every participant. This is
// how calls are hung up.
func (c *Client) DeleteRoom(ctx context.Context, name string) error {
	_, err := c.rooms.DeleteRoom(ctx, &livekit.DeleteRoomRequest{Room: name})
	if err != nil {
		return fmt.Errorf("delete room %q: %w", name, err)
	}
	return nil
}

// ListParticipants returns the identities currently in the room.
func (c *Client) ListParticipants(ctx context.Context, room string) ([]string, error) {
	res, err := c.rooms.ListParticipants(ctx, &livekit.ListParticipantsRequest{Room: room})
	if err != nil {
		return nil, fmt.Errorf("list participants in %q: %w", room, err)
	}
	identities := make([]string, 0, len(res.Participants))
	for _, p := range res.Participants {
		identities = append(identities, p.Identity)
	}
	return identities, nil
}

// DialSIP bridges a phone number into the room through the configured SIP
// trunk. It blocks until the callee answers or the gateway gives up.
func (c *Client) DialSIP(ctx context.Context, room, number, identity string) error {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Placing outbound SIP call.", "room", room, "number", number)
	_, err := c.sip.CreateSIPParticipant(ctx, &livekit.CreateSIPParticipantRequest{
		SipTrunkId:          c.cfg.SIPTrunkID,
		SipCallTo:           number,
		RoomName:            room,
		ParticipantIdentity: identity,
		WaitUntilAnswered:   true,
	})
	if err != nil {
		return fmt.Errorf("dial %s into room %q: %w", number, room, err)
	}
	logger.Info("Outbound call answered.", "room", room, "number", number)
	return nil
}
