package middleware_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/api/dto"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/api/middleware"
)

func validCreateRequest() dto.CreateDagInfoRequest {
	return dto.CreateDagInfoRequest{
		DagID:             "etl_daily",
		ExpireTime:        "2030-01-01 00:00:00",
		SchedulerInterval: 3600,
	}
}

func TestValidateRequest(t *testing.T) {
	t.Run("valid request", func(t *testing.T) {
		assert.NoError(t, middleware.ValidateRequest(validCreateRequest()))
	})

	t.Run("missing dag_id", func(t *testing.T) {
		req := validCreateRequest()
		req.DagID = ""
		assert.Error(t, middleware.ValidateRequest(req))
	})

	t.Run("malformed timestamp", func(t *testing.T) {
		req := validCreateRequest()
		req.ExpireTime = "2030-01-01T00:00:00Z"
		assert.Error(t, middleware.ValidateRequest(req))
	})

	t.Run("optional timestamp checked when set", func(t *testing.T) {
		req := validCreateRequest()
		req.NextStartTime = "tomorrow"
		assert.Error(t, middleware.ValidateRequest(req))
	})

	t.Run("interval below one second", func(t *testing.T) {
		req := validCreateRequest()
		req.SchedulerInterval = 0
		assert.Error(t, middleware.ValidateRequest(req))
	})
}

func TestBindAndValidate(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newContext := func(body []byte) (*gin.Context, *httptest.ResponseRecorder) {
		httpReq := httptest.NewRequest(http.MethodPost, "/test", bytes.NewReader(body))
		httpReq.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httpReq
		return c, w
	}

	t.Run("valid request", func(t *testing.T) {
		body, _ := json.Marshal(validCreateRequest())
		c, _ := newContext(body)

		var bound dto.CreateDagInfoRequest
		assert.True(t, middleware.BindAndValidate(c, &bound))
		assert.Equal(t, "etl_daily", bound.DagID)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		c, w := newContext([]byte("invalid json"))

		var bound dto.CreateDagInfoRequest
		assert.False(t, middleware.BindAndValidate(c, &bound))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("validation failure", func(t *testing.T) {
		req := validCreateRequest()
		req.ExpireTime = "soon"
		body, _ := json.Marshal(req)
		c, w := newContext(body)

		var bound dto.CreateDagInfoRequest
		assert.False(t, middleware.BindAndValidate(c, &bound))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
	})
}

func TestValidationErrorResponse(t *testing.T) {
	err := middleware.ValidateRequest(dto.CreateDagInfoRequest{ExpireTime: "bad"})
	assert.Error(t, err)

	errors := middleware.ValidationErrorResponse(err)
	assert.Contains(t, errors, "DagID")
	assert.Contains(t, errors["ExpireTime"], "2006-01-02 15:04:05")
}
