package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/playperu/motionquiz/internal/motionquiz"
	"github.com/playperu/motionquiz/internal/session"
)

// HealthResponse documents the /healthz body.
type HealthResponse struct {
	Status     string `json:"status"`
	Components map[string]struct {
		Status string `json:"status"`
	} `json:"components"`
}

type sessionPath struct {
	ID string `path:"id"`
}

type roomPath struct {
	RoomID string `path:"roomID"`
}

type roundPath struct {
	ID      string `path:"id"`
	RoundID string `path:"roundID"`
}

type answerRequest struct {
	sessionPath
	motionquiz.AnswerSubmission
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "MotionQuiz API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Realtime session engine for motion and voice quizzes. " +
		"Every /api route requires a Bearer token.")

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Returns the health status of backend dependencies.")
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHealthz)

	// GET /ws
	getWS, _ := r.NewOperationContext(http.MethodGet, "/ws")
	getWS.SetSummary("Realtime connection")
	getWS.SetDescription("Upgrades to a WebSocket bound to one session. Pass session_id and token as query " +
		"parameters. The first message is a room_update snapshot.")
	getWS.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusSwitchingProtocols),
		openapi.WithContentType("text/plain"))
	getWS.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	getWS.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusForbidden))
	_ = r.AddOperation(getWS)

	// POST /api/sessions
	create, _ := r.NewOperationContext(http.MethodPost, "/api/sessions")
	create.SetSummary("Create session")
	create.SetDescription("Opens a session in a room. The caller becomes the host.")
	create.AddReqStructure(session.CreateRequest{})
	create.AddRespStructure(motionquiz.Snapshot{}, openapi.WithHTTPStatus(http.StatusCreated))
	create.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	create.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	create.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnprocessableEntity))
	_ = r.AddOperation(create)

	// GET /api/sessions/{id}
	get, _ := r.NewOperationContext(http.MethodGet, "/api/sessions/{id}")
	get.SetSummary("Get session")
	get.SetDescription("Returns the session snapshot. The current question never includes its answer.")
	get.AddReqStructure(sessionPath{})
	get.AddRespStructure(motionquiz.Snapshot{}, openapi.WithHTTPStatus(http.StatusOK))
	get.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(get)

	// POST /api/sessions/{id}/join
	join, _ := r.NewOperationContext(http.MethodPost, "/api/sessions/{id}/join")
	join.SetSummary("Join session")
	join.SetDescription("Adds the caller as a participant. Joining again only refreshes the display name.")
	join.AddReqStructure(sessionPath{})
	join.AddRespStructure(motionquiz.Snapshot{}, openapi.WithHTTPStatus(http.StatusOK))
	join.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	join.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(join)

	for _, cmd := range []struct{ path, summary, desc string }{
		{"/api/sessions/{id}/start", "Start session", "Host only. Moves a waiting session into the first countdown."},
		{"/api/sessions/{id}/advance", "Advance session", "Host only. Skips the countdown, closes the open round, or moves past results."},
		{"/api/sessions/{id}/end", "End session", "Host only. Seals any open round and finishes the session."},
	} {
		op, _ := r.NewOperationContext(http.MethodPost, cmd.path)
		op.SetSummary(cmd.summary)
		op.SetDescription(cmd.desc)
		op.AddReqStructure(sessionPath{})
		op.AddRespStructure(motionquiz.Snapshot{}, openapi.WithHTTPStatus(http.StatusOK))
		op.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusForbidden))
		op.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
		op.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
		_ = r.AddOperation(op)
	}

	// POST /api/sessions/{id}/answers
	answer, _ := r.NewOperationContext(http.MethodPost, "/api/sessions/{id}/answers")
	answer.SetSummary("Submit answer")
	answer.SetDescription("Submits the caller's answer to the open round. One answer per participant per round.")
	answer.AddReqStructure(answerRequest{})
	answer.AddRespStructure(motionquiz.AnswerResult{}, openapi.WithHTTPStatus(http.StatusOK))
	answer.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	answer.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusForbidden))
	answer.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(answer)

	// GET /api/sessions/{id}/leaderboard
	board, _ := r.NewOperationContext(http.MethodGet, "/api/sessions/{id}/leaderboard")
	board.SetSummary("Leaderboard")
	board.SetDescription("Scores ranked by points, then by who got there first.")
	board.AddReqStructure(sessionPath{})
	board.AddRespStructure([]motionquiz.Score{}, openapi.WithHTTPStatus(http.StatusOK))
	board.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(board)

	// GET /api/sessions/{id}/rounds/{roundID}
	round, _ := r.NewOperationContext(http.MethodGet, "/api/sessions/{id}/rounds/{roundID}")
	round.SetSummary("Round detail")
	round.SetDescription("An archived round. Responses are listed once the round is sealed.")
	round.AddReqStructure(roundPath{})
	round.AddRespStructure(session.RoundDetail{}, openapi.WithHTTPStatus(http.StatusOK))
	round.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(round)

	// GET /api/rooms/{roomID}/presence
	presence, _ := r.NewOperationContext(http.MethodGet, "/api/rooms/{roomID}/presence")
	presence.SetSummary("Room presence")
	presence.SetDescription("Users with live connections to this instance, the room's open session, " +
		"and the room state shared across instances when Redis is configured.")
	presence.AddReqStructure(roomPath{})
	presence.AddRespStructure(PresenceResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(presence)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
