package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"codejudge/internal/judge/model"
	"codejudge/internal/judge/scheduler"
	appErr "codejudge/pkg/errors"
	"codejudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type fakeJudgeService struct {
	mu       sync.Mutex
	subs     []model.Submission
	verdict  model.Verdict
	judgeErr error
	frames   []model.Judge0Response
	polls    int
	runErr   error
	stored   map[string]model.Verdict
}

func (f *fakeJudgeService) Judge(ctx context.Context, sub model.Submission) (model.Verdict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, sub)
	if f.judgeErr != nil {
		return model.Verdict{}, f.judgeErr
	}
	return f.verdict, nil
}

func (f *fakeJudgeService) SubmitRun(ctx context.Context, sub model.Submission) (scheduler.JobHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, sub)
	if f.runErr != nil {
		return "", f.runErr
	}
	return "tok-1", nil
}

func (f *fakeJudgeService) RunStatus(ctx context.Context, token scheduler.JobHandle) (model.Judge0Response, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if token != "tok-1" {
		return model.Judge0Response{}, false, appErr.New(appErr.NotFound)
	}
	idx := f.polls
	if idx >= len(f.frames) {
		idx = len(f.frames) - 1
	}
	f.polls++
	frame := f.frames[idx]
	return frame, frame.Status.ID > model.Judge0Processing, nil
}

func (f *fakeJudgeService) GetVerdict(ctx context.Context, submissionID string) (model.Verdict, error) {
	v, ok := f.stored[submissionID]
	if !ok {
		return model.Verdict{}, appErr.New(appErr.SubmissionNotFound)
	}
	return v, nil
}

func newRouter(svc JudgeService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, NewJudgeController(svc, 5*time.Millisecond), nil)
	return r
}

func doJSON(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(rec, req)
	return rec
}

func TestExecuteReturnsJudge0Body(t *testing.T) {
	t.Parallel()
	svc := &fakeJudgeService{verdict: model.Verdict{
		SubmissionID: "sub-1",
		Status:       model.VerdictAccepted,
		Output:       model.RawOutput("5\n"),
		TimeMs:       12,
		MemoryKB:     2048,
	}}
	r := newRouter(svc)

	for _, path := range []string{"/execute", "/api/execute", "/api/v1/judge/execute"} {
		rec := doJSON(r, http.MethodPost, path, `{"code":"print(2+3)","language":"python","input":""}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", path, rec.Code, rec.Body.String())
		}
		var body model.Judge0Response
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if body.Status.ID != model.Judge0Accepted || body.Stdout != "5\n" || body.Token != "sub-1" {
			t.Fatalf("%s: unexpected body %+v", path, body)
		}
		if body.Time != "0.012" || body.Memory != "2048" {
			t.Fatalf("%s: expected time 0.012 and memory 2048, got %s %s", path, body.Time, body.Memory)
		}
	}
}

func TestExecuteRequestMapping(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		body     string
		language string
		code     string
		input    string
		problem  int64
	}{
		{name: "string_language", body: `{"code":"x","language":"javascript","input":"1"}`, language: "javascript", code: "x", input: "1"},
		{name: "numeric_language", body: `{"code":"x","language":71}`, language: "71", code: "x"},
		{name: "judge0_fields", body: `{"source_code":"y","language_id":63,"stdin":"2"}`, language: "63", code: "y", input: "2"},
		{name: "problem_id", body: `{"code":"x","language":"python","problemId":1}`, language: "python", code: "x", problem: 1},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := &fakeJudgeService{verdict: model.Verdict{SubmissionID: "s", Status: model.VerdictAccepted}}
			rec := doJSON(newRouter(svc), http.MethodPost, "/execute", tt.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			sub := svc.subs[0]
			if sub.Language != tt.language || sub.SourceCode != tt.code || sub.CustomInput != tt.input {
				t.Fatalf("unexpected submission %+v", sub)
			}
			if tt.problem != 0 && (sub.ProblemID == nil || *sub.ProblemID != tt.problem) {
				t.Fatalf("expected problem %d, got %v", tt.problem, sub.ProblemID)
			}
		})
	}
}

func TestExecuteErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		body   string
		err    error
		status int
		code   appErr.ErrorCode
	}{
		{name: "bad_json", body: `{"code":`, status: http.StatusBadRequest, code: appErr.InvalidParams},
		{name: "bad_language_type", body: `{"code":"x","language":true}`, status: http.StatusBadRequest, code: appErr.InvalidParams},
		{name: "unsupported_language", body: `{"code":"x","language":"cobol"}`, err: appErr.New(appErr.LanguageNotSupported), status: http.StatusBadRequest, code: appErr.LanguageNotSupported},
		{name: "code_too_large", body: `{"code":"x","language":"python"}`, err: appErr.New(appErr.CodeTooLarge), status: http.StatusRequestEntityTooLarge, code: appErr.CodeTooLarge},
		{name: "unknown_problem", body: `{"code":"x","language":"python","problemId":9}`, err: appErr.New(appErr.ProblemNotFound), status: http.StatusNotFound, code: appErr.ProblemNotFound},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := doJSON(newRouter(&fakeJudgeService{judgeErr: tt.err}), http.MethodPost, "/execute", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			var body response.Response
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if body.Code != tt.code {
				t.Fatalf("expected code %d, got %d", tt.code, body.Code)
			}
		})
	}
}

func TestRunEndpoints(t *testing.T) {
	t.Parallel()
	svc := &fakeJudgeService{frames: []model.Judge0Response{
		{Status: model.NewJudge0Status(model.Judge0InQueue), Token: "tok-1"},
	}}
	r := newRouter(svc)

	rec := doJSON(r, http.MethodPost, "/api/v1/judge/runs", `{"code":"x","language":"python"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var created map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil || created["token"] != "tok-1" {
		t.Fatalf("expected token tok-1, got %v (%v)", created, err)
	}

	rec = doJSON(r, http.MethodGet, "/api/v1/judge/runs/tok-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body model.Judge0Response
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body.Status.ID != model.Judge0InQueue {
		t.Fatalf("expected in queue, got %+v", body.Status)
	}

	rec = doJSON(r, http.MethodGet, "/api/v1/judge/runs/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetVerdict(t *testing.T) {
	t.Parallel()
	svc := &fakeJudgeService{stored: map[string]model.Verdict{
		"sub-1": {SubmissionID: "sub-1", Status: model.VerdictWrongAnswer},
	}}
	r := newRouter(svc)

	rec := doJSON(r, http.MethodGet, "/api/v1/judge/verdicts/sub-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"sub-1"`)) {
		t.Fatalf("expected verdict in body, got %s", rec.Body.String())
	}

	rec = doJSON(r, http.MethodGet, "/api/v1/judge/verdicts/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestWatchRunStreamsUntilTerminal(t *testing.T) {
	t.Parallel()
	svc := &fakeJudgeService{frames: []model.Judge0Response{
		{Status: model.NewJudge0Status(model.Judge0InQueue), Token: "tok-1"},
		{Status: model.NewJudge0Status(model.Judge0InQueue), Token: "tok-1"},
		{Status: model.NewJudge0Status(model.Judge0Processing), Token: "tok-1"},
		{Status: model.NewJudge0Status(model.Judge0Accepted), Token: "tok-1", Stdout: "5\n"},
	}}
	srv := httptest.NewServer(newRouter(svc))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/judge/runs/tok-1/watch"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ids []int
	for {
		var frame model.Judge0Response
		if err := conn.ReadJSON(&frame); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Fatalf("expected normal close, got %v", err)
			}
			break
		}
		ids = append(ids, frame.Status.ID)
	}
	want := []int{model.Judge0InQueue, model.Judge0Processing, model.Judge0Accepted}
	if len(ids) != len(want) {
		t.Fatalf("expected frames %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected frames %v, got %v", want, ids)
		}
	}
}

func TestWatchRunUnknownToken(t *testing.T) {
	t.Parallel()
	rec := doJSON(newRouter(&fakeJudgeService{}), http.MethodGet, "/api/v1/judge/runs/nope/watch", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/healthz", Healthz(func() scheduler.Stats { return scheduler.Stats{Queued: 2, Slots: 4} }))

	rec := doJSON(r, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Status    string          `json:"status"`
		Scheduler scheduler.Stats `json:"scheduler"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body.Status != "ok" || body.Scheduler.Queued != 2 || body.Scheduler.Slots != 4 {
		t.Fatalf("unexpected health body %+v", body)
	}
}
