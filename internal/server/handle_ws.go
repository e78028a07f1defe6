package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/playperu/motionquiz/internal/auth"
	"github.com/playperu/motionquiz/internal/hub"
	"github.com/playperu/motionquiz/internal/motionquiz"
	"github.com/playperu/motionquiz/internal/sensor"
	"github.com/playperu/motionquiz/internal/session"
)

const (
	pingInterval   = 30 * time.Second
	writeTimeout   = 10 * time.Second
	cacheTimeout   = time.Second
	maxMessageSize = 64 << 10
)

func handleWS(logger *slog.Logger, d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		token := q.Get("token")
		if token == "" {
			token, _ = auth.BearerToken(r.Header.Get("Authorization"))
		}
		caller, err := d.Verifier.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "invalid or missing token")
			return
		}

		sessionID := q.Get("session_id")
		if sessionID == "" {
			writeError(w, http.StatusBadRequest, "bad_request", "session_id query parameter required")
			return
		}
		c, err := d.Sessions.Get(r.Context(), sessionID)
		if err != nil {
			writeSessionError(w, logger, err)
			return
		}
		if caller.UserID != c.HostID() {
			ok, err := c.IsParticipant(r.Context(), caller.UserID)
			if err != nil {
				writeSessionError(w, logger, err)
				return
			}
			if !ok {
				writeSessionError(w, logger, motionquiz.ErrNotParticipant)
				return
			}
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Error("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()
		conn.SetReadLimit(maxMessageSize)

		// Snapshot and register in one actor step so no state change falls
		// between the first message and the live stream.
		hc := hub.NewConn(caller.UserID, c.RoomID(), caller.DisplayName, d.SendQueueSize)
		defer d.Hub.Unregister(hc)
		err = c.Attach(r.Context(), func(snap motionquiz.Snapshot) {
			initial, err := motionquiz.NewMessage(motionquiz.MessageRoomUpdate, c.RoomID(), "", snap, time.Now())
			if err != nil {
				logger.Error("encoding snapshot", "session_id", sessionID, "error", err)
				d.Hub.Register(hc)
				return
			}
			d.Hub.Register(hc, initial)
		})
		if err != nil {
			logger.Warn("attaching websocket", "session_id", sessionID, "user_id", caller.UserID, "error", err)
			conn.Close(websocket.StatusInternalError, "session unavailable")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		go func() {
			defer cancel()
			if err := writeLoop(ctx, conn, hc); err != nil && !errors.Is(err, context.Canceled) {
				logger.Info("websocket writer stopped", "session_id", sessionID, "user_id", caller.UserID, "error", err)
			}
		}()

		cl := &client{
			logger:  logger.With("session_id", sessionID, "user_id", caller.UserID, "conn_id", hc.ID),
			deps:    d,
			session: c,
			conn:    hc,
			norm:    sensor.NewNormalizer(d.SmoothingFactor),
		}
		cl.readLoop(ctx, conn)
	}
}

// writeLoop is the only writer on conn. It drains the hub queue and pings
// on an interval so idle proxies keep the connection open.
func writeLoop(ctx context.Context, conn *websocket.Conn, hc *hub.Conn) error {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-hc.Send():
			if !ok {
				conn.Close(websocket.StatusPolicyViolation, "send queue overflow")
				return fmt.Errorf("%w: send queue overflow", motionquiz.ErrConnectionLost)
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return fmt.Errorf("%w: %w", motionquiz.ErrConnectionLost, err)
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return fmt.Errorf("%w: ping: %w", motionquiz.ErrConnectionLost, err)
			}
		}
	}
}

// client is the per-connection read side: it owns the sensor normalizer
// and the latest orientation reading.
type client struct {
	logger  *slog.Logger
	deps    Deps
	session *session.Controller
	conn    *hub.Conn
	norm    *sensor.Normalizer
	latest  *sensor.Reading
}

func (cl *client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				cl.logger.Debug("websocket closed by client")
			default:
				cl.logger.Debug("websocket read ended", "error", err)
			}
			return
		}

		var msg motionquiz.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			cl.logger.Debug("malformed message", "error", err)
			continue
		}

		switch msg.Type {
		case motionquiz.MessageAnswerSubmitted:
			cl.answer(ctx, msg.Data)
		case motionquiz.MessageSensorData:
			cl.sample(ctx, msg.Data)
		default:
			cl.logger.Debug("ignoring inbound message", "type", msg.Type)
		}
	}
}

func (cl *client) answer(ctx context.Context, data json.RawMessage) {
	var req motionquiz.AnswerSubmission
	if err := json.Unmarshal(data, &req); err != nil {
		cl.reply(motionquiz.AnswerResult{Code: "bad_request", Error: "invalid answer payload"})
		return
	}

	fillOrientation(ctx, cl.logger, cl.deps.Sensors, cl.conn.RoomID, cl.conn.UserID, &req.Payload, cl.latest)

	out, err := cl.session.Submit(ctx, cl.conn.UserID, submission(req))
	if err != nil {
		res := motionquiz.AnswerResult{Code: motionquiz.Code(err), Error: err.Error()}
		if res.Code == "internal" {
			cl.logger.Error("submitting answer", "error", err)
			res.Error = "internal error"
		}
		cl.reply(res)
		return
	}
	cl.reply(accepted(out))
}

func (cl *client) sample(ctx context.Context, data json.RawMessage) {
	var sample motionquiz.SensorSample
	if err := json.Unmarshal(data, &sample); err != nil {
		cl.logger.Debug("malformed sensor sample", "error", err)
		return
	}

	reading := cl.norm.Normalize(sample)
	if reading.Orientation != nil {
		cl.latest = &reading
	}

	if cl.deps.Sensors == nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()
	if err := cl.deps.Sensors.CacheSensor(cctx, cl.conn.RoomID, cl.conn.UserID, reading); err != nil {
		cl.logger.Warn("caching sensor reading", "error", err)
	}
}

func (cl *client) reply(res motionquiz.AnswerResult) {
	msg, err := motionquiz.NewMessage(motionquiz.MessageAnswerSubmitted, cl.conn.RoomID, cl.conn.UserID, res, time.Now())
	if err != nil {
		cl.logger.Error("encoding answer result", "error", err)
		return
	}
	cl.deps.Hub.Send(cl.conn, msg)
}
