package hub

import (
	"context"
	"encoding/json"
	"time"
)

// Bridge carries room traffic between instances. Subscribe delivers every
// payload published to roomID by any instance, including this one, until
// the returned func is called.
type Bridge interface {
	Publish(ctx context.Context, roomID string, payload []byte) error
	Subscribe(ctx context.Context, roomID string, deliver func(payload []byte)) (unsubscribe func(), err error)
}

// PresenceStore mirrors room membership somewhere other instances and
// dashboards can read it.
type PresenceStore interface {
	SetRoomState(ctx context.Context, roomID string, state RoomState) error
}

// RoomState is the presence summary written on every join and leave.
type RoomState struct {
	Participants []string  `json:"participants"`
	Count        int       `json:"count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// envelope tags bridged traffic with the instance that produced it so
// the producer can skip its own echo.
type envelope struct {
	Origin string          `json:"origin"`
	Data   json.RawMessage `json:"data"`
}
