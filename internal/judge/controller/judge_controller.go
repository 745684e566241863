package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"codejudge/internal/judge/model"
	"codejudge/internal/judge/scheduler"
	appErr "codejudge/pkg/errors"
	"codejudge/pkg/utils/logger"
	"codejudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const defaultWatchInterval = 200 * time.Millisecond

// JudgeService is the part of the judge service the HTTP layer needs.
type JudgeService interface {
	Judge(ctx context.Context, sub model.Submission) (model.Verdict, error)
	SubmitRun(ctx context.Context, sub model.Submission) (scheduler.JobHandle, error)
	RunStatus(ctx context.Context, token scheduler.JobHandle) (model.Judge0Response, bool, error)
	GetVerdict(ctx context.Context, submissionID string) (model.Verdict, error)
}

// LanguageField accepts a language name or a Judge0 numeric id.
type LanguageField string

func (l *LanguageField) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = LanguageField(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	id, err := n.Int64()
	if err != nil {
		return err
	}
	*l = LanguageField(strconv.FormatInt(id, 10))
	return nil
}

// ExecuteRequest is the execute body. Judge0 field names are accepted as fallbacks.
type ExecuteRequest struct {
	Code       string        `json:"code"`
	Language   LanguageField `json:"language"`
	Input      string        `json:"input"`
	ProblemID  *int64        `json:"problemId"`
	SourceCode string        `json:"source_code"`
	LanguageID LanguageField `json:"language_id"`
	Stdin      string        `json:"stdin"`
}

func (r ExecuteRequest) submission() model.Submission {
	sub := model.Submission{
		SourceCode:  r.Code,
		Language:    string(r.Language),
		CustomInput: r.Input,
		ProblemID:   r.ProblemID,
		CreatedAt:   time.Now(),
	}
	if sub.SourceCode == "" {
		sub.SourceCode = r.SourceCode
	}
	if sub.Language == "" {
		sub.Language = string(r.LanguageID)
	}
	if sub.CustomInput == "" {
		sub.CustomInput = r.Stdin
	}
	return sub
}

// JudgeController serves execution and verdict requests.
type JudgeController struct {
	svc           JudgeService
	watchInterval time.Duration
	upgrader      websocket.Upgrader
}

// NewJudgeController creates a new controller.
func NewJudgeController(svc JudgeService, watchInterval time.Duration) *JudgeController {
	if watchInterval <= 0 {
		watchInterval = defaultWatchInterval
	}
	return &JudgeController{
		svc:           svc,
		watchInterval: watchInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Execute runs a submission to completion and answers in Judge0 form.
func (h *JudgeController) Execute(c *gin.Context) {
	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErr.Wrap(err, appErr.InvalidParams).WithMessage("Invalid request body"))
		return
	}
	verdict, err := h.svc.Judge(c.Request.Context(), req.submission())
	if err != nil {
		response.Error(c, err)
		return
	}
	body, err := verdict.ToJudge0(verdict.SubmissionID)
	if err != nil {
		response.Error(c, appErr.Wrap(err, appErr.InternalServerError))
		return
	}
	c.JSON(http.StatusOK, body)
}

// SubmitRun queues a free run and returns its token.
func (h *JudgeController) SubmitRun(c *gin.Context) {
	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErr.Wrap(err, appErr.InvalidParams).WithMessage("Invalid request body"))
		return
	}
	token, err := h.svc.SubmitRun(c.Request.Context(), req.submission())
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token": string(token)})
}

// GetRun reports a queued run.
func (h *JudgeController) GetRun(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		response.BadRequest(c, "Invalid run token")
		return
	}
	body, _, err := h.svc.RunStatus(c.Request.Context(), scheduler.JobHandle(token))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, body)
}

// WatchRun streams status frames over a websocket until the run is terminal.
// A frame is sent only when the status id changes.
func (h *JudgeController) WatchRun(c *gin.Context) {
	token := scheduler.JobHandle(strings.TrimSpace(c.Param("token")))
	if token == "" {
		response.BadRequest(c, "Invalid run token")
		return
	}
	ctx := c.Request.Context()
	// Unknown tokens are rejected before the upgrade so the client gets a plain error.
	first, done, err := h.svc.RunStatus(ctx, token)
	if err != nil {
		response.Error(c, err)
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(ctx, "websocket upgrade failed", zap.String("token", string(token)), zap.Error(err))
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	last := first.Status.ID
	if err := h.writeFrame(conn, first); err != nil || done {
		h.closeWatch(conn)
		return
	}
	ticker := time.NewTicker(h.watchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case <-ticker.C:
		}
		body, done, err := h.svc.RunStatus(ctx, token)
		if err != nil {
			logger.Warn(ctx, "watch run status failed", zap.String("token", string(token)), zap.Error(err))
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()),
				time.Now().Add(time.Second))
			return
		}
		if body.Status.ID != last || done {
			last = body.Status.ID
			if err := h.writeFrame(conn, body); err != nil {
				return
			}
		}
		if done {
			h.closeWatch(conn)
			return
		}
	}
}

func (h *JudgeController) writeFrame(conn *websocket.Conn, body model.Judge0Response) error {
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteJSON(body)
}

func (h *JudgeController) closeWatch(conn *websocket.Conn) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
		time.Now().Add(time.Second))
}

// GetVerdict returns the stored verdict for one submission.
func (h *JudgeController) GetVerdict(c *gin.Context) {
	submissionID := strings.TrimSpace(c.Param("id"))
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	verdict, err := h.svc.GetVerdict(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, verdict)
}
