// Package pubsub holds the Redis side of the realtime layer: the
// cross-instance room bridge, the room presence mirror and the short-lived
// sensor cache.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/playperu/motionquiz/internal/hub"
	"github.com/playperu/motionquiz/internal/sensor"
)

const (
	PresenceTTL       = time.Hour
	DefaultSensorTTL  = 5 * time.Minute
	roomChannelPrefix = "room:"
)

func roomChannel(roomID string) string { return roomChannelPrefix + roomID }

func roomStateKey(roomID string) string { return "room_state:" + roomID }

func sensorKey(roomID, userID string) string { return "sensor:" + roomID + ":" + userID }

// Redis implements hub.Bridge and hub.PresenceStore.
type Redis struct {
	rdb       *redis.Client
	logger    *slog.Logger
	sensorTTL time.Duration
}

func NewRedis(rdb *redis.Client, logger *slog.Logger, sensorTTL time.Duration) *Redis {
	if sensorTTL <= 0 {
		sensorTTL = DefaultSensorTTL
	}
	return &Redis{rdb: rdb, logger: logger, sensorTTL: sensorTTL}
}

// Open parses rawURL and pings the server.
func Open(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

func (r *Redis) Check(ctx context.Context) error { return r.rdb.Ping(ctx).Err() }

func (r *Redis) Publish(ctx context.Context, roomID string, payload []byte) error {
	return r.rdb.Publish(ctx, roomChannel(roomID), payload).Err()
}

// Subscribe waits for the subscription to be confirmed before returning so
// nothing published afterwards is missed. The returned func closes the
// subscription and waits for the delivery goroutine to exit.
func (r *Redis) Subscribe(ctx context.Context, roomID string, deliver func([]byte)) (func(), error) {
	ps := r.rdb.Subscribe(ctx, roomChannel(roomID))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", roomChannel(roomID), err)
	}

	ch := ps.Channel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ch {
			deliver([]byte(msg.Payload))
		}
	}()

	return func() {
		if err := ps.Close(); err != nil {
			r.logger.Warn("closing subscription", "room_id", roomID, "error", err)
		}
		<-done
	}, nil
}

func (r *Redis) SetRoomState(ctx context.Context, roomID string, state hub.RoomState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding room state: %w", err)
	}
	return r.rdb.Set(ctx, roomStateKey(roomID), data, PresenceTTL).Err()
}

// RoomState reports ok=false when nothing is recorded for roomID or the
// record expired.
func (r *Redis) RoomState(ctx context.Context, roomID string) (state hub.RoomState, ok bool, err error) {
	data, err := r.rdb.Get(ctx, roomStateKey(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return hub.RoomState{}, false, nil
	}
	if err != nil {
		return hub.RoomState{}, false, err
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return hub.RoomState{}, false, fmt.Errorf("decoding room state: %w", err)
	}
	return state, true, nil
}

// CacheSensor keeps a user's latest normalized reading so an answer that
// arrives without a payload can fall back to it.
func (r *Redis) CacheSensor(ctx context.Context, roomID, userID string, reading sensor.Reading) error {
	data, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("encoding reading: %w", err)
	}
	return r.rdb.Set(ctx, sensorKey(roomID, userID), data, r.sensorTTL).Err()
}

func (r *Redis) LatestSensor(ctx context.Context, roomID, userID string) (reading sensor.Reading, ok bool, err error) {
	data, err := r.rdb.Get(ctx, sensorKey(roomID, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return sensor.Reading{}, false, nil
	}
	if err != nil {
		return sensor.Reading{}, false, err
	}
	if err := json.Unmarshal(data, &reading); err != nil {
		return sensor.Reading{}, false, fmt.Errorf("decoding reading: %w", err)
	}
	return reading, true, nil
}
