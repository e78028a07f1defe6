package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/motionquiz/internal/hub"
	"github.com/playperu/motionquiz/internal/motionquiz"
	"github.com/playperu/motionquiz/internal/sensor"
	"github.com/playperu/motionquiz/internal/session"
)

type PresenceResponse struct {
	RoomID      string         `json:"room_id"`
	SessionID   string         `json:"session_id,omitempty"`
	Users       []hub.Presence `json:"users"`
	Connections int            `json:"connections"`
	// Shared is the room state written by every instance; absent without Redis.
	Shared *hub.RoomState `json:"shared,omitempty"`
}

func handleCreateSession(logger *slog.Logger, sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req session.CreateRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
			return
		}

		snap, err := sessions.Create(r.Context(), callerFrom(r), req)
		if err != nil {
			writeSessionError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, snap)
	}
}

func handleGetSession(logger *slog.Logger, sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := sessions.Snapshot(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeSessionError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func handleJoinSession(logger *slog.Logger, sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := sessions.Join(r.Context(), chi.URLParam(r, "id"), callerFrom(r))
		if err != nil {
			writeSessionError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// handleHostCommand runs start, advance or end and answers with the
// resulting snapshot.
func handleHostCommand(logger *slog.Logger, sessions *session.Manager, cmd func(ctx context.Context, id, callerID string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := cmd(r.Context(), id, callerFrom(r).UserID); err != nil {
			writeSessionError(w, logger, err)
			return
		}
		snap, err := sessions.Snapshot(r.Context(), id)
		if err != nil {
			writeSessionError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func handleSubmitAnswer(logger *slog.Logger, sessions *session.Manager, sensors SensorCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req motionquiz.AnswerSubmission
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
			return
		}

		c, err := sessions.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeSessionError(w, logger, err)
			return
		}

		caller := callerFrom(r)
		fillOrientation(r.Context(), logger, sensors, c.RoomID(), caller.UserID, &req.Payload, nil)

		out, err := c.Submit(r.Context(), caller.UserID, submission(req))
		if err != nil {
			writeSessionError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, accepted(out))
	}
}

func handleLeaderboard(logger *slog.Logger, sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scores, err := sessions.Leaderboard(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeSessionError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, scores)
	}
}

func handlePresence(logger *slog.Logger, h *hub.Hub, sessions *session.Manager, rooms RoomStates) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomID")
		resp := PresenceResponse{
			RoomID:      roomID,
			Users:       h.Presence(roomID),
			Connections: h.Connections(roomID),
		}
		if c, err := sessions.ByRoom(roomID); err == nil {
			resp.SessionID = c.ID()
		}
		if rooms != nil {
			state, ok, err := rooms.RoomState(r.Context(), roomID)
			switch {
			case err != nil:
				logger.Warn("reading room state", "room_id", roomID, "error", err)
			case ok:
				resp.Shared = &state
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleRound(logger *slog.Logger, sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		detail, err := sessions.Round(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "roundID"))
		if err != nil {
			writeSessionError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	}
}

func submission(req motionquiz.AnswerSubmission) session.Submission {
	return session.Submission{
		QuestionID:    req.QuestionID,
		Payload:       req.Payload,
		TimeToRespond: time.Duration(req.TimeToRespondMS) * time.Millisecond,
	}
}

func accepted(out session.Outcome) motionquiz.AnswerResult {
	return motionquiz.AnswerResult{
		Accepted:   true,
		Response:   &out.Response,
		TotalScore: out.Score.Points,
		Rank:       out.Score.Rank,
	}
}

// fillOrientation supplies the user's latest smoothed orientation when an
// answer arrives without one: the connection's own reading first, then the
// shared cache.
func fillOrientation(ctx context.Context, logger *slog.Logger, sensors SensorCache, roomID, userID string, p *motionquiz.Payload, local *sensor.Reading) {
	if p.Orientation != nil {
		return
	}
	if local != nil && local.Orientation != nil {
		o := *local.Orientation
		p.Orientation = &o
		return
	}
	if sensors == nil {
		return
	}
	reading, ok, err := sensors.LatestSensor(ctx, roomID, userID)
	if err != nil {
		logger.Warn("reading sensor cache", "room_id", roomID, "user_id", userID, "error", err)
		return
	}
	if ok && reading.Orientation != nil {
		p.Orientation = reading.Orientation
	}
}
