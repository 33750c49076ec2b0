package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/argument-tutor/internal/evaluator"
	"github.com/sells-group/argument-tutor/internal/history"
	"github.com/sells-group/argument-tutor/internal/model"
	"github.com/sells-group/argument-tutor/internal/workbook"
)

// stubEvaluator approves evidence containing "spiders" and reasoning
// containing "pests". Text "fail:<kind>" returns an evaluator error.
type stubEvaluator struct {
	mu    sync.Mutex
	calls int
	block chan struct{}
}

func (e *stubEvaluator) Evaluate(_ context.Context, req evaluator.Request) (*model.EvaluationResult, error) {
	e.mu.Lock()
	e.calls++
	block := e.block
	e.mu.Unlock()
	if block != nil {
		<-block
	}

	if kind, ok := strings.CutPrefix(req.Text, "fail:"); ok {
		return nil, &evaluator.Error{Kind: evaluator.Kind(kind), Step: req.Step, Err: errors.New("stub failure")}
	}

	label := model.LabelNonSupportive
	if req.Step == model.StepEvidence && strings.Contains(req.Text, "spiders") {
		label = model.LabelSupportive
	}
	if req.Step == model.StepReasoning {
		label = model.LabelAlternative
		if strings.Contains(req.Text, "pests") {
			label = model.LabelValid
		}
	}
	passed := req.Step.Passes(label)
	return &model.EvaluationResult{
		Step:       req.Step,
		Label:      label,
		Passed:     passed,
		Feedback:   req.Step.DefaultFeedback(passed),
		Confidence: 0.7,
	}, nil
}

type testServer struct {
	*httptest.Server
	eval     *stubEvaluator
	sessions *Sessions
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ev := &stubEvaluator{}
	sessions := NewSessions(ev, history.NewMemoryBackend())
	ts := httptest.NewServer(New(sessions, []string{"https://workbook.example.org"}).Handler())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, eval: ev, sessions: sessions}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	var out map[string]any
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &out), string(data))
	}
	return resp, out
}

func (ts *testServer) create(t *testing.T) string {
	t.Helper()
	resp, body := ts.do(t, http.MethodPost, "/sessions", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, ok := body["id"].(string)
	require.True(t, ok)
	return id
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp, body := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	id := ts.create(t)
	assert.Equal(t, 1, ts.sessions.Len())

	resp, body := ts.do(t, http.MethodGet, "/sessions/"+id, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(workbook.StateChoosingClaim), body["state"])
	assert.Equal(t, "None", body["claim_display"])

	resp, _ = ts.do(t, http.MethodDelete, "/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, ts.sessions.Len())

	resp, body = ts.do(t, http.MethodGet, "/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body["kind"])
}

func TestSelectClaim(t *testing.T) {
	ts := newTestServer(t)
	id := ts.create(t)

	resp, body := ts.do(t, http.MethodPut, "/sessions/"+id+"/claim", map[string]any{"claim": "agree"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "agree", body["claim"])
	assert.Equal(t, "Agree", body["claim_display"])
	assert.Equal(t, string(workbook.StateEvidenceUnlocked), body["state"])

	resp, body = ts.do(t, http.MethodPut, "/sessions/"+id+"/claim", map[string]any{"claim": "maybe"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "bad_request", body["kind"])

	resp, _ = ts.do(t, http.MethodPut, "/sessions/"+id+"/claim", "{not json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWorkbookFlow(t *testing.T) {
	ts := newTestServer(t)
	id := ts.create(t)
	base := "/sessions/" + id

	resp, body := ts.do(t, http.MethodPost, base+"/evidence", map[string]any{"text": "data"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "illegal_action", body["kind"])

	ts.do(t, http.MethodPut, base+"/claim", map[string]any{"claim": "agree"})

	resp, body = ts.do(t, http.MethodPost, base+"/reasoning", map[string]any{"text": "pests"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = ts.do(t, http.MethodPost, base+"/evidence", map[string]any{"text": "corn only"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := body["result"].(map[string]any)
	assert.Equal(t, false, result["passed"])
	assert.Equal(t, "Please refine your evidence.", result["feedback"])

	resp, body = ts.do(t, http.MethodPost, base+"/evidence", map[string]any{"text": "spiders rose with yield"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sess := body["session"].(map[string]any)
	assert.Equal(t, string(workbook.StateEvidenceApproved), sess["state"])

	resp, body = ts.do(t, http.MethodPost, base+"/submit", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = ts.do(t, http.MethodPost, base+"/reasoning", map[string]any{"text": "spiders eat pests"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "valid", body["result"].(map[string]any)["label"])

	resp, body = ts.do(t, http.MethodPost, base+"/submit", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["submitted"])

	resp, body = ts.do(t, http.MethodPost, base+"/reasoning/unlock", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["submitted"])
	assert.Equal(t, true, body["evidence"].(map[string]any)["approved"])

	resp, body = ts.do(t, http.MethodPost, base+"/evidence/unlock", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["evidence"].(map[string]any)["approved"])
	assert.Equal(t, false, body["reasoning"].(map[string]any)["approved"])

	resp, _ = ts.do(t, http.MethodPost, base+"/evidence/unlock", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestEvaluationErrors(t *testing.T) {
	tests := []struct {
		kind   evaluator.Kind
		status int
	}{
		{evaluator.KindConfiguration, http.StatusInternalServerError},
		{evaluator.KindTransient, http.StatusBadGateway},
		{evaluator.KindRemote, http.StatusBadGateway},
		{evaluator.KindParse, http.StatusBadGateway},
		{evaluator.KindContract, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			ts := newTestServer(t)
			id := ts.create(t)
			ts.do(t, http.MethodPut, "/sessions/"+id+"/claim", map[string]any{"claim": "disagree"})

			resp, body := ts.do(t, http.MethodPost, "/sessions/"+id+"/evidence", map[string]any{"text": "fail:" + string(tt.kind)})
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, string(tt.kind), body["kind"])

			_, hist := ts.do(t, http.MethodGet, "/sessions/"+id+"/history", nil)
			assert.Empty(t, hist["records"])
		})
	}
}

func TestBusySession(t *testing.T) {
	ts := newTestServer(t)
	id := ts.create(t)
	ts.do(t, http.MethodPut, "/sessions/"+id+"/claim", map[string]any{"claim": "agree"})

	release := make(chan struct{})
	ts.eval.mu.Lock()
	ts.eval.block = release
	ts.eval.mu.Unlock()

	done := make(chan int, 1)
	go func() {
		data, _ := json.Marshal(map[string]any{"text": "spiders"})
		resp, err := http.Post(ts.URL+"/sessions/"+id+"/evidence", "application/json", bytes.NewReader(data))
		if err != nil {
			done <- 0
			return
		}
		resp.Body.Close() //nolint:errcheck
		done <- resp.StatusCode
	}()

	sess, ok := ts.sessions.Get(id)
	require.True(t, ok)
	require.Eventually(t, sess.Busy, 2*time.Second, time.Millisecond)

	resp, body := ts.do(t, http.MethodPut, "/sessions/"+id+"/claim", map[string]any{"claim": "disagree"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "busy", body["kind"])

	_, snap := ts.do(t, http.MethodGet, "/sessions/"+id, nil)
	assert.Equal(t, true, snap["busy"])

	close(release)
	assert.Equal(t, http.StatusOK, <-done)
}

func TestHistoryEndpoint(t *testing.T) {
	ts := newTestServer(t)
	id := ts.create(t)
	base := "/sessions/" + id

	ts.do(t, http.MethodPut, base+"/claim", map[string]any{"claim": "agree"})
	ts.do(t, http.MethodPost, base+"/evidence", map[string]any{"text": "corn only"})
	ts.do(t, http.MethodPost, base+"/evidence", map[string]any{"text": "spiders rose"})
	ts.do(t, http.MethodPost, base+"/reasoning", map[string]any{"text": "because"})
	ts.do(t, http.MethodPut, base+"/claim", map[string]any{"claim": "disagree"})

	resp, body := ts.do(t, http.MethodGet, base+"/history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "disagree", body["claim"])
	assert.Empty(t, body["records"])

	resp, body = ts.do(t, http.MethodGet, base+"/history?claim=agree", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	records := body["records"].([]any)
	require.Len(t, records, 3)
	newest := records[0].(map[string]any)
	assert.Equal(t, "reasoning", newest["step"])
	assert.Equal(t, "spiders rose", newest["evidence_snapshot"])

	resp, body = ts.do(t, http.MethodGet, base+"/history?claim=agree&step=evidence", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["records"].([]any), 2)

	resp, _ = ts.do(t, http.MethodGet, base+"/history?step=claim", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, base+"/history?claim=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, snap := ts.do(t, http.MethodGet, base, nil)
	hidden := snap["hidden_attempts"].(map[string]any)
	assert.Equal(t, float64(2), hidden["evidence"])
	assert.Equal(t, float64(1), hidden["reasoning"])
}

func TestHistoryExport(t *testing.T) {
	ts := newTestServer(t)
	id := ts.create(t)
	base := "/sessions/" + id
	ts.do(t, http.MethodPut, base+"/claim", map[string]any{"claim": "agree"})
	ts.do(t, http.MethodPost, base+"/evidence", map[string]any{"text": "spiders rose"})

	resp, err := http.Get(ts.URL + base + "/history/export")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	f, err := xlsx.OpenBinary(data)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	require.Len(t, f.Sheets[0].Rows, 2)
	assert.Equal(t, "spiders rose", f.Sheets[0].Rows[1].Cells[3].Value)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/sessions", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://workbook.example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, "https://workbook.example.org", resp.Header.Get("Access-Control-Allow-Origin"))
}
