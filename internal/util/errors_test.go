package util

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{NotFoundf("assessment %d", 3), http.StatusNotFound},
		{fmt.Errorf("%w (expired)", ErrWindowClosed), http.StatusForbidden},
		{fmt.Errorf("%w: attempt 9 was abandoned", ErrAlreadyCompleted), http.StatusConflict},
		{ErrInvalidStudent, http.StatusUnprocessableEntity},
		{Validationf("bad answer"), http.StatusBadRequest},
		{ErrPermissionDenied, http.StatusForbidden},
		{NewStorageError("find", errors.New("io")), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, StatusFor(tt.err), tt.err.Error())
	}
}

func TestStorageErrorChain(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("start: %w", NewStorageError("find attempt", cause))

	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrNotFound)

	var se *StorageError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, "find attempt", se.Op)
	assert.Nil(t, NewStorageError("noop", nil))
}

func TestRespondErrorHidesStorageDetail(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	RespondError(c, NewStorageError("find", errors.New("password=hunter2")))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "hunter2")

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	RespondError(c, ErrAlreadyCompleted)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"code":409,"message":"attempt already submitted","error":"attempt already submitted"}`, w.Body.String())
}
