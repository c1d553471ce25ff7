package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/dossier/pkg/events"
	"github.com/kadirpekel/dossier/pkg/report"
	"github.com/kadirpekel/dossier/pkg/research"
	"github.com/kadirpekel/dossier/pkg/session"
)

// ============================================================================
// Fixtures
// ============================================================================

// scriptedRunner mimics the pipeline's stream contract: progress
// events, then exactly one terminal event.
type scriptedRunner struct {
	fail bool
}

func (r *scriptedRunner) Run(ctx context.Context, req research.Request, bus *events.Bus, gate research.OutlineGate) (*report.Report, error) {
	if err := req.Validate(); err != nil || r.fail {
		if err == nil {
			err = &research.ValidationError{Field: "topic", Msg: "forced failure"}
		}
		bus.Error(research.Classify(err), err.Error())
		return nil, err
	}

	bus.SessionStarted(req.Topic, req.ReportType)
	bus.StepStarted("search", 0, "searching")
	bus.ModelUsage(events.UsageRecord{Provider: "test", Model: "m", InputTokens: 10, OutputTokens: 20})
	bus.StepCompleted("search", 0, "done")

	rep := &report.Report{
		Topic:    req.Topic,
		Content:  "# " + req.Topic,
		Metadata: map[string]any{"file_path": "/tmp/" + req.Topic + ".md"},
	}
	bus.Final(events.FinalPayload{Content: rep.Content, FilePath: "/tmp/" + req.Topic + ".md"})
	return rep, nil
}

// blockingRunner parks until its session context ends, recording how.
type blockingRunner struct {
	running chan struct{}
	ended   chan error
}

func (r *blockingRunner) Run(ctx context.Context, req research.Request, bus *events.Bus, gate research.OutlineGate) (*report.Report, error) {
	bus.SessionStarted(req.Topic, req.ReportType)
	close(r.running)
	<-ctx.Done()
	r.ended <- ctx.Err()
	bus.Error(research.ErrTypeCancelled, "cancelled")
	return nil, ctx.Err()
}

func newTestServer(t *testing.T, runner Runner) (*httptest.Server, *session.Manager) {
	t.Helper()
	mgr := session.NewManager(session.NewMemoryStore(), 4)
	t.Cleanup(func() { _ = mgr.Close() })
	srv := httptest.NewServer(NewHandler(runner, mgr).Router())
	t.Cleanup(srv.Close)
	return srv, mgr
}

func postRPC(t *testing.T, url string, body map[string]any) Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url+"/rpc", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// streamRPC posts to the SSE endpoint and decodes every data frame.
func streamRPC(t *testing.T, url string, body map[string]any) []map[string]any {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url+"/rpc/stream", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var frames []map[string]any
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var frame map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame))
		frames = append(frames, frame)
	}
	require.NoError(t, scanner.Err())
	return frames
}

// ============================================================================
// Non-streaming methods
// ============================================================================

func TestToolsList(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedRunner{})

	resp := postRPC(t, srv.URL, map[string]any{"jsonrpc": "2.0", "id": 1, "method": "tools/list"})
	require.Nil(t, resp.Error)

	result := resp.Result.(map[string]any)
	tools := result["tools"].([]any)
	require.Len(t, tools, 1)
	tool := tools[0].(map[string]any)
	assert.Equal(t, "research", tool["name"])

	// auto_confirm spells out that RPC approval is automatic.
	schema := tool["input_schema"].(map[string]any)
	kwargs := schema["properties"].(map[string]any)["kwargs"].(map[string]any)
	autoConfirm := kwargs["properties"].(map[string]any)["auto_confirm"].(map[string]any)
	assert.Contains(t, autoConfirm["description"], "approved automatically")
}

func TestMethodNotFound(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedRunner{})

	resp := postRPC(t, srv.URL, map[string]any{"jsonrpc": "2.0", "id": 2, "method": "tools/unknown"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, MethodNotFound, resp.Error.Code)
}

func TestParseError(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedRunner{})

	resp, err := http.Post(srv.URL+"/rpc", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotNil(t, out.Error)
	assert.Equal(t, ParseError, out.Error.Code)
}

func TestInvalidVersion(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedRunner{})

	resp := postRPC(t, srv.URL, map[string]any{"jsonrpc": "1.0", "id": 3, "method": "tools/list"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, InvalidRequest, resp.Error.Code)
}

func TestSessionCancelUnknown(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedRunner{})

	resp := postRPC(t, srv.URL, map[string]any{
		"jsonrpc": "2.0", "id": 4, "method": "session/cancel",
		"params": map[string]any{"session_id": "nope"},
	})
	require.Nil(t, resp.Error)
	assert.Equal(t, false, resp.Result.(map[string]any)["cancelled"])
}

func TestSessionStatusMissing(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedRunner{})

	resp := postRPC(t, srv.URL, map[string]any{
		"jsonrpc": "2.0", "id": 5, "method": "session/status",
		"params": map[string]any{"session_id": "nope"},
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, InvalidParams, resp.Error.Code)
}

// ============================================================================
// Streaming
// ============================================================================

func TestStreamHappyPath(t *testing.T) {
	srv, mgr := newTestServer(t, &scriptedRunner{})

	frames := streamRPC(t, srv.URL, map[string]any{
		"jsonrpc": "2.0", "id": 7, "method": "tools/call",
		"params": map[string]any{
			"task":      "grid storage",
			"task_type": "comprehensive",
			"kwargs":    map[string]any{"days": 7, "auto_confirm": true},
		},
	})
	require.NotEmpty(t, frames)

	assert.Equal(t, "session/started", frames[0]["method"])

	// The closing frames: session/completed, then the id-bearing result.
	last := frames[len(frames)-1]
	assert.EqualValues(t, 7, last["id"])
	require.NotNil(t, last["result"])
	assert.Equal(t, "tools/result", last["result"].(map[string]any)["method"])
	assert.Equal(t, "session/completed", frames[len(frames)-2]["method"])

	// Model usage rides notifications/message with a discriminator.
	var sawUsage bool
	for _, f := range frames {
		if f["method"] == "notifications/message" {
			if params, ok := f["params"].(map[string]any); ok && params["type"] == "model_usage" {
				sawUsage = true
				assert.Equal(t, "test", params["model_provider"])
			}
		}
	}
	assert.True(t, sawUsage)

	// The record reaches its terminal state shortly after the stream ends.
	sid := frames[0]["params"].(map[string]any)["session_id"].(string)
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec, err := mgr.Status(context.Background(), sid)
		require.NoError(t, err)
		if rec.Terminal() {
			assert.Equal(t, session.StatusCompleted, rec.Status)
			assert.Equal(t, "/tmp/grid storage.md", rec.FilePath)
			break
		}
		require.True(t, time.Now().Before(deadline), "session never finished")
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStreamValidationError(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedRunner{})

	frames := streamRPC(t, srv.URL, map[string]any{
		"jsonrpc": "2.0", "id": 8, "method": "tools/call",
		"params": map[string]any{"task": "", "task_type": "comprehensive"},
	})
	require.NotEmpty(t, frames)

	last := frames[len(frames)-1]
	require.NotNil(t, last["error"])
	errObj := last["error"].(map[string]any)
	assert.EqualValues(t, InvalidParams, errObj["code"])
	assert.Equal(t, research.ErrTypeValidation, errObj["data"].(map[string]any)["type"])
}

func TestStreamDisconnectDoesNotCancelSession(t *testing.T) {
	runner := &blockingRunner{running: make(chan struct{}), ended: make(chan error, 1)}
	srv, _ := newTestServer(t, runner)

	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": 11, "method": "tools/call",
		"params": map[string]any{"task": "grid storage", "task_type": "comprehensive"},
	})
	require.NoError(t, err)

	reqCtx, disconnect := context.WithCancel(context.Background())
	defer disconnect()
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, srv.URL+"/rpc/stream", bytes.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(httpReq)
	require.NoError(t, err)
	defer resp.Body.Close()

	// The first frame carries the session id.
	scanner := bufio.NewScanner(resp.Body)
	var sid string
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var frame map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame))
		sid = frame["params"].(map[string]any)["session_id"].(string)
		break
	}
	require.NotEmpty(t, sid)
	<-runner.running

	// Dropping the SSE connection must leave the session running.
	disconnect()
	select {
	case err := <-runner.ended:
		t.Fatalf("session ended with the connection: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	cancelResp := postRPC(t, srv.URL, map[string]any{
		"jsonrpc": "2.0", "id": 12, "method": "session/cancel",
		"params": map[string]any{"session_id": sid},
	})
	require.Nil(t, cancelResp.Error)
	assert.Equal(t, true, cancelResp.Result.(map[string]any)["cancelled"])

	select {
	case <-runner.ended:
	case <-time.After(2 * time.Second):
		t.Fatal("session/cancel did not end the session")
	}
}

func TestStreamRejectsOtherMethods(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedRunner{})

	frames := streamRPC(t, srv.URL, map[string]any{
		"jsonrpc": "2.0", "id": 9, "method": "tools/list",
	})
	require.Len(t, frames, 1)
	errObj := frames[0]["error"].(map[string]any)
	assert.EqualValues(t, MethodNotFound, errObj["code"])
}
