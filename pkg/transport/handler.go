package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kadirpekel/dossier/pkg/events"
	"github.com/kadirpekel/dossier/pkg/logger"
	"github.com/kadirpekel/dossier/pkg/observability"
	"github.com/kadirpekel/dossier/pkg/outline"
	"github.com/kadirpekel/dossier/pkg/report"
	"github.com/kadirpekel/dossier/pkg/research"
	"github.com/kadirpekel/dossier/pkg/session"
)

// Runner executes one research session. Satisfied by research.Pipeline.
type Runner interface {
	Run(ctx context.Context, req research.Request, bus *events.Bus, gate research.OutlineGate) (*report.Report, error)
}

// Handler serves the JSON-RPC methods and the SSE session stream.
type Handler struct {
	runner   Runner
	sessions *session.Manager
	log      *slog.Logger
}

// NewHandler wires the RPC surface.
func NewHandler(runner Runner, sessions *session.Manager) *Handler {
	return &Handler{
		runner:   runner,
		sessions: sessions,
		log:      logger.Component("transport"),
	}
}

// Router builds the HTTP routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Post("/rpc", h.handleRPC)
	r.Post("/rpc/stream", h.handleStream)
	return r
}

// handleRPC serves the non-streaming methods.
func (h *Handler) handleRPC(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var rpcReq Request
	if err := json.NewDecoder(r.Body).Decode(&rpcReq); err != nil {
		h.send(w, newErrorResponse(nil, &RPCError{Code: ParseError, Message: "invalid JSON"}))
		return
	}
	if rpcReq.JSONRPC != "2.0" {
		h.send(w, newErrorResponse(rpcReq.ID, &RPCError{Code: InvalidRequest, Message: "invalid JSON-RPC version"}))
		return
	}

	h.log.Info("RPC request", "method", rpcReq.Method, "id", rpcReq.ID)

	result, rpcErr := h.dispatch(r.Context(), rpcReq.Method, rpcReq.Params)
	if rpcErr != nil {
		h.send(w, newErrorResponse(rpcReq.ID, rpcErr))
		return
	}
	h.send(w, newResponse(rpcReq.ID, result))
}

func (h *Handler) dispatch(ctx context.Context, method string, params json.RawMessage) (interface{}, *RPCError) {
	switch method {
	case "tools/list":
		return toolList(), nil
	case "tools/call":
		return nil, &RPCError{Code: InvalidRequest, Message: "tools/call streams; use the /rpc/stream endpoint"}
	case "session/status":
		return h.sessionStatus(ctx, params)
	case "session/cancel":
		return h.sessionCancel(params)
	default:
		return nil, &RPCError{Code: MethodNotFound, Message: "method not found: " + method}
	}
}

type sessionParams struct {
	SessionID string `json:"session_id"`
}

func (h *Handler) sessionStatus(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	var p sessionParams
	if err := json.Unmarshal(params, &p); err != nil || p.SessionID == "" {
		return nil, &RPCError{Code: InvalidParams, Message: "session_id is required"}
	}
	rec, err := h.sessions.Status(ctx, p.SessionID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, &RPCError{Code: InvalidParams, Message: "session not found: " + p.SessionID}
	}
	if err != nil {
		return nil, &RPCError{Code: InternalError, Message: err.Error()}
	}
	return rec, nil
}

func (h *Handler) sessionCancel(params json.RawMessage) (interface{}, *RPCError) {
	var p sessionParams
	if err := json.Unmarshal(params, &p); err != nil || p.SessionID == "" {
		return nil, &RPCError{Code: InvalidParams, Message: "session_id is required"}
	}
	cancelled := h.sessions.Cancel(p.SessionID)
	return map[string]bool{"cancelled": cancelled}, nil
}

// toolCallParams is the tools/call submission shape.
type toolCallParams struct {
	Task     string         `json:"task"`
	TaskType string         `json:"task_type"`
	Kwargs   map[string]any `json:"kwargs"`
}

// handleStream serves tools/call: it runs the session and renders its
// event stream as server-sent events, one JSON-RPC message per frame.
// The stream always ends with a response carrying the request id,
// either a result or an error.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var rpcReq Request
	if err := json.NewDecoder(r.Body).Decode(&rpcReq); err != nil {
		h.sendSSE(w, flusher, newErrorResponse(nil, &RPCError{Code: ParseError, Message: "invalid JSON"}))
		return
	}
	if rpcReq.Method != "tools/call" {
		h.sendSSE(w, flusher, newErrorResponse(rpcReq.ID, &RPCError{Code: MethodNotFound, Message: "only tools/call streams"}))
		return
	}

	var params toolCallParams
	if err := json.Unmarshal(rpcReq.Params, &params); err != nil {
		h.sendSSE(w, flusher, newErrorResponse(rpcReq.ID, &RPCError{Code: InvalidParams, Message: "invalid params"}))
		return
	}

	if params.Kwargs == nil {
		params.Kwargs = map[string]any{}
	}
	req, err := research.DecodeRequest(params.Kwargs)
	if err != nil {
		h.sendSSE(w, flusher, newErrorResponse(rpcReq.ID, rpcErrorFrom(err)))
		return
	}
	req.Topic = params.Task
	req.ReportType = params.TaskType

	// The session outlives the SSE connection: a client disconnect stops
	// the stream, while the research run ends only through session/cancel
	// or its own budget.
	active, ctx, err := h.sessions.Open(context.WithoutCancel(r.Context()), req.Topic, req.ReportType)
	if err != nil {
		h.sendSSE(w, flusher, newErrorResponse(rpcReq.ID, rpcErrorFrom(err)))
		return
	}

	go h.runSession(ctx, active, req)

	sub := active.Bus.Subscribe()
	for {
		ev, ok := sub.Next(r.Context())
		if !ok {
			return
		}
		for _, msg := range translate(ev, rpcReq.ID) {
			h.sendSSE(w, flusher, msg)
		}
	}
}

// runSession drives the pipeline and records the terminal state,
// independent of the client connection.
func (h *Handler) runSession(ctx context.Context, active *session.Active, req research.Request) {
	rep, err := h.runner.Run(ctx, req, active.Bus, streamGate(active.Bus))

	status := session.StatusCompleted
	var errMsg, filePath string
	switch {
	case err != nil && research.Classify(err) == research.ErrTypeCancelled:
		status = session.StatusCancelled
		errMsg = err.Error()
	case err != nil:
		status = session.StatusFailed
		errMsg = err.Error()
	default:
		filePath, _ = rep.Metadata["file_path"].(string)
	}

	finishCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h.sessions.Finish(finishCtx, active.Record.ID, status, filePath, errMsg)
	observability.Active().RecordSession(finishCtx, status)
}

// streamGate surfaces the planned outline on the event stream and
// approves it. Interactive review happens on the CLI, not over RPC.
func streamGate(bus *events.Bus) research.OutlineGate {
	return func(ctx context.Context, o *outline.Outline) (bool, string, error) {
		bus.StepProgress("outline", 0, "outline_review", "outline ready for review",
			map[string]any{"outline": o})
		return true, "", nil
	}
}

// modelUsageMsg is the discriminated notifications/message payload for
// model telemetry.
type modelUsageMsg struct {
	Type string `json:"type"`
	events.UsageRecord
}

// translate maps one bus event onto its JSON-RPC wire messages. Final
// yields a session/completed notification followed by the result
// response; Error yields an error response. Both close the stream.
func translate(ev events.Event, id interface{}) []interface{} {
	switch ev.Kind {
	case events.KindSessionStarted:
		return []interface{}{newNotification("session/started", map[string]string{"session_id": ev.SessionID})}

	case events.KindStepStarted, events.KindStepProgress, events.KindStepCompleted:
		return []interface{}{newNotification("notifications/message", ev.Payload)}

	case events.KindModelUsage:
		rec, _ := ev.Payload.(events.UsageRecord)
		return []interface{}{newNotification("notifications/message", modelUsageMsg{Type: "model_usage", UsageRecord: rec})}

	case events.KindAnalysisResult:
		return []interface{}{newNotification("notifications/message", map[string]any{
			"status":  "analysis",
			"message": "analysis result",
			"details": ev.Payload,
		})}

	case events.KindSectionGenerated:
		return []interface{}{newNotification("notifications/message", map[string]any{
			"status":  "section_generated",
			"message": "section written",
			"details": ev.Payload,
		})}

	case events.KindError:
		payload, _ := ev.Payload.(events.ErrorPayload)
		code := InternalError
		switch payload.Type {
		case research.ErrTypeValidation:
			code = InvalidParams
		case research.ErrTypeConfig:
			code = InvalidRequest
		}
		return []interface{}{newErrorResponse(id, &RPCError{
			Code:    code,
			Message: payload.Message,
			Data:    errorData{Type: payload.Type, Message: payload.Message},
		})}

	case events.KindFinal:
		return []interface{}{
			newNotification("session/completed", map[string]string{"session_id": ev.SessionID}),
			newResponse(id, map[string]any{"method": "tools/result", "payload": ev.Payload}),
		}
	}
	return nil
}

func (h *Handler) send(w http.ResponseWriter, resp Response) {
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Warn("Failed to write response", "error", err)
	}
}

func (h *Handler) sendSSE(w http.ResponseWriter, flusher http.Flusher, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Warn("Failed to marshal SSE frame", "error", err)
		return
	}
	if _, err := w.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
		return
	}
	flusher.Flush()
}

// toolList describes the callable tool surface.
func toolList() map[string]any {
	return map[string]any{
		"tools": []map[string]any{
			{
				"name":        "research",
				"description": "Generate a long-form analytical report on a topic.",
				"input_schema": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"task":      map[string]any{"type": "string", "description": "Topic to research"},
						"task_type": map[string]any{"type": "string", "enum": append(outline.Types(), research.TaskSearch, research.TaskAnalysis, research.ReportTypeAuto)},
						"kwargs": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"days":              map[string]any{"type": "integer", "default": 7},
								"quality_threshold": map[string]any{"type": "number", "default": 0.7},
								"max_iterations":    map[string]any{"type": "integer", "default": 3},
								"companies":         map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
								"language":          map[string]any{"type": "string"},
								"include_citations": map[string]any{"type": "boolean", "default": true},
								"auto_confirm": map[string]any{
									"type":        "boolean",
									"description": "Over RPC the outline is published for review and then approved automatically; interactive approval is available on the CLI only.",
								},
							},
						},
					},
					"required": []string{"task"},
				},
			},
		},
	}
}
