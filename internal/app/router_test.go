package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"edu_portal_backend/internal/config"
	"edu_portal_backend/internal/model"
	"edu_portal_backend/internal/repository/memory"
	"edu_portal_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "router-test-secret"

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type routerFixture struct {
	router  *gin.Engine
	db      *memory.DB
	student model.Student
	open    *model.Assessment
	closed  *model.Assessment
}

func newRouterFixture(t *testing.T, opts ...func(*config.Config)) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	now := time.Now().UTC()
	if now.Hour() == 23 && now.Minute() >= 58 {
		t.Skip("assessment window would straddle midnight")
	}

	cfg := &config.Config{}
	cfg.Server.Mode = "test"
	cfg.JWT.Secret = testSecret
	cfg.Schedule.TimeZone = "UTC"
	for _, opt := range opts {
		opt(cfg)
	}

	db := memory.NewDB()
	assessments := memory.NewAssessmentStore(db)
	f := &routerFixture{db: db}
	f.student = db.AddStudent(model.Student{FullName: "Ada Obi", Email: "ada@example.com", Course: "Math", Level: "JSS1"})

	f.open = &model.Assessment{
		Course:     "Math",
		Level:      "JSS1",
		Date:       now.Format(util.DateFormat),
		StartTime:  "00:00",
		EndTime:    "23:59",
		TotalMarks: 4,
		Questions: []model.Question{
			{Type: model.QuestionMCQ, Prompt: "2 + 2?", Options: []string{"3", "4"}, Correct: model.IndexAnswer(2), Marks: 4},
		},
	}
	require.NoError(t, assessments.CreateAssessment(context.Background(), f.open))

	f.closed = &model.Assessment{Course: "Math", Level: "JSS1", Date: "2020-01-01", StartTime: "10:00", EndTime: "11:00"}
	require.NoError(t, assessments.CreateAssessment(context.Background(), f.closed))

	stores := Stores{
		Assessments: assessments,
		Attempts:    memory.NewAttemptStore(db),
		AIAttempts:  memory.NewAIAttemptStore(db),
		Students:    memory.NewStudentStore(db),
	}
	f.router = NewHandler(cfg, stores, nil, nil)
	return f
}

func (f *routerFixture) token(t *testing.T, role model.UserRole) string {
	t.Helper()
	claims := util.Claims{UserID: "user-1", Role: role}
	if role == model.RoleStudent {
		claims.StudentID = f.student.ID
		claims.Email = f.student.Email
	}
	tok, err := util.GenerateJWT(claims, testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

func (f *routerFixture) do(t *testing.T, method, path, token, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (f *routerFixture) start(t *testing.T, token string, assessmentID uint) (int, envelope) {
	return f.do(t, http.MethodPost, "/api/attempts/start", token, fmt.Sprintf(`{"assessmentId": %d}`, assessmentID))
}

func attemptID(t *testing.T, env envelope) uint {
	t.Helper()
	var data struct {
		Attempt model.Attempt `json:"attempt"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotZero(t, data.Attempt.ID)
	return data.Attempt.ID
}

func TestRoutesRequireToken(t *testing.T) {
	f := newRouterFixture(t)

	code, env := f.start(t, "", f.open.ID)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Unauthorized", env.Error)

	code, _ = f.start(t, "not-a-jwt", f.open.ID)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestStartAttemptRoute(t *testing.T) {
	f := newRouterFixture(t)
	tok := f.token(t, model.RoleStudent)

	code, env := f.start(t, tok, f.open.ID)
	require.Equal(t, http.StatusOK, code, env.Error)
	first := attemptID(t, env)

	code, env = f.start(t, tok, f.open.ID)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, first, attemptID(t, env))
	assert.Equal(t, 1, f.db.AttemptCount())
}

func TestStartAttemptRouteErrors(t *testing.T) {
	f := newRouterFixture(t)
	tok := f.token(t, model.RoleStudent)

	code, env := f.start(t, tok, f.closed.ID)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Contains(t, env.Error, "expired")

	code, _ = f.start(t, tok, 999)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, http.MethodPost, "/api/attempts/start", tok, `{"assessmentId":`)
	assert.Equal(t, http.StatusBadRequest, code)

	// a student may not start on someone else's behalf
	body := fmt.Sprintf(`{"assessmentId": %d, "studentEmail": "bo@example.com"}`, f.open.ID)
	code, _ = f.do(t, http.MethodPost, "/api/attempts/start", tok, body)
	assert.Equal(t, http.StatusForbidden, code)

	// staff may, but the student must exist
	code, _ = f.do(t, http.MethodPost, "/api/attempts/start", f.token(t, model.RoleTeacher), body)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestStartAttemptRouteThrottledPerStudent(t *testing.T) {
	f := newRouterFixture(t, func(cfg *config.Config) {
		cfg.RateLimit.AttemptMaxRequests = 2
	})
	tok := f.token(t, model.RoleStudent)

	for i := 0; i < 2; i++ {
		code, env := f.start(t, tok, f.open.ID)
		require.Equal(t, http.StatusOK, code, env.Error)
	}

	code, env := f.start(t, tok, f.open.ID)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, http.StatusTooManyRequests, env.Code)
	assert.Equal(t, "too many requests", env.Error)
	assert.Equal(t, 1, f.db.AttemptCount())

	// 其他身份不受影响
	body := fmt.Sprintf(`{"assessmentId": %d, "studentEmail": "bo@example.com"}`, f.open.ID)
	code, _ = f.do(t, http.MethodPost, "/api/attempts/start", f.token(t, model.RoleTeacher), body)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestCompleteAttemptRoute(t *testing.T) {
	f := newRouterFixture(t)
	tok := f.token(t, model.RoleStudent)

	_, env := f.start(t, tok, f.open.ID)
	id := attemptID(t, env)
	path := fmt.Sprintf("/api/attempts/%d/complete", id)
	body := fmt.Sprintf(`{"answers": [{"questionId": %d, "answer": 2}]}`, f.open.Questions[0].ID)

	code, env := f.do(t, http.MethodPut, path, tok, body)
	require.Equal(t, http.StatusOK, code, env.Error)
	var result struct {
		Score      int      `json:"score"`
		Percentage *float64 `json:"percentage"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 4, result.Score)
	require.NotNil(t, result.Percentage)
	assert.Equal(t, 100.0, *result.Percentage)

	code, env = f.do(t, http.MethodPut, path, tok, body)
	assert.Equal(t, http.StatusConflict, code)
	assert.NotEmpty(t, env.Error)

	code, _ = f.do(t, http.MethodPut, "/api/attempts/abc/complete", tok, body)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAttemptQuestionsRouteHidesAnswers(t *testing.T) {
	f := newRouterFixture(t)
	tok := f.token(t, model.RoleStudent)
	_, env := f.start(t, tok, f.open.ID)
	id := attemptID(t, env)

	code, env := f.do(t, http.MethodGet, fmt.Sprintf("/api/attempts/%d/questions", id), tok, "")
	require.Equal(t, http.StatusOK, code)
	assert.NotContains(t, string(env.Data), "correct")
	assert.Contains(t, string(env.Data), "2 + 2?")
}

func TestAdminRoutesRequireStaff(t *testing.T) {
	f := newRouterFixture(t)

	code, _ := f.do(t, http.MethodGet, "/api/admin/marks", f.token(t, model.RoleStudent), "")
	assert.Equal(t, http.StatusForbidden, code)

	code, env := f.do(t, http.MethodGet, "/api/admin/marks?manualSort=totalScore&manualDir=desc", f.token(t, model.RoleAdmin), "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"manual"`)

	code, _ = f.do(t, http.MethodGet, "/api/admin/marks?manualSort=height", f.token(t, model.RoleAdmin), "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCreateAssessmentRoute(t *testing.T) {
	f := newRouterFixture(t)
	tok := f.token(t, model.RoleTeacher)

	body := `{"course":"Math","level":"JSS2","date":"2024-06-01","startTime":"10:00 AM","endTime":"11:00 AM","totalMarks":10}`
	code, env := f.do(t, http.MethodPost, "/api/admin/assessments", tok, body)
	require.Equal(t, http.StatusCreated, code, env.Error)

	body = `{"course":"Math","level":"JSS2","date":"2024-06-01","startTime":"noon","endTime":"11:00 AM"}`
	code, _ = f.do(t, http.MethodPost, "/api/admin/assessments", tok, body)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStudentAssessmentsRoute(t *testing.T) {
	f := newRouterFixture(t)

	code, env := f.do(t, http.MethodGet, "/api/assessments/student", f.token(t, model.RoleStudent), "")
	require.Equal(t, http.StatusOK, code, env.Error)

	var list []struct {
		ID    uint   `json:"id"`
		State string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 2)
	states := map[uint]string{}
	for _, item := range list {
		states[item.ID] = item.State
	}
	assert.Equal(t, "ongoing", states[f.open.ID])
	assert.Equal(t, "expired", states[f.closed.ID])
}
