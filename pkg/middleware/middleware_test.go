package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectoinject/ectocontainer"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appctx "github.com/Ramsey-B/clover/pkg/context"
)

func newTestServer() *echo.Echo {
	logger := zapadapter.NewZapEctoLogger(zap.NewNop(), nil)
	e := echo.New()
	e.HTTPErrorHandler = Error(logger)
	e.Use(Context())
	e.Use(Logger(logger))
	return e
}

func TestContext(t *testing.T) {
	e := newTestServer()
	e.GET("/whoami", func(c echo.Context) error {
		ctx := c.Request().Context()
		return c.JSON(http.StatusOK, map[string]string{
			"request_id":  appctx.GetRequestID(ctx),
			"operator_id": appctx.GetOperatorID(ctx),
		})
	})

	t.Run("UsesIncomingHeaders", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set(echo.HeaderXRequestID, "req-1")
		req.Header.Set(HeaderOperatorID, "ops-1")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "req-1", body["request_id"])
		assert.Equal(t, "ops-1", body["operator_id"])
		assert.Equal(t, "req-1", rec.Header().Get(echo.HeaderXRequestID))
	})

	t.Run("GeneratesRequestID", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/whoami", nil))
		assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	})
}

func TestError(t *testing.T) {
	e := newTestServer()
	e.GET("/missing", func(c echo.Context) error {
		return httperror.NewHTTPError(http.StatusNotFound, "user 42 does not exist")
	})
	e.GET("/boom", func(c echo.Context) error {
		return assert.AnError
	})
	e.GET("/locked", func(c echo.Context) error {
		return errors.Wrap(httperror.NewHTTPError(http.StatusConflict, "a merge involving these users is already in progress"), "merge")
	})

	tests := []struct {
		path    string
		code    int
		message string
	}{
		{"/missing", http.StatusNotFound, "user 42 does not exist"},
		{"/boom", http.StatusInternalServerError, "Internal Server Error"},
		{"/nowhere", http.StatusNotFound, "Not Found"},
		{"/locked", http.StatusConflict, "a merge involving these users is already in progress"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set(echo.HeaderXRequestID, "req-2")
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.code, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.message, body.Message)
		})
	}
}

func TestContainer(t *testing.T) {
	config := ectoinject.DefaultContainerConfig
	config.ID = uuid.New().String()
	config.LoggerConfig = &ectocontainer.DIContainerLoggerConfig{Enabled: false}
	container, err := ectoinject.NewDIContainer(config)
	require.NoError(t, err)
	require.NoError(t, ectoinject.RegisterInstance[string](container, "from "+config.ID))

	e := newTestServer()
	e.GET("/resolved", func(c echo.Context) error {
		_, value, err := ectoinject.GetContext[string](c.Request().Context())
		if err != nil {
			return err
		}
		return c.String(http.StatusOK, value)
	}, Container(config.ID))
	e.GET("/unknown", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, Container("no-such-container"))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/resolved", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "from "+config.ID, rec.Body.String())

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/unknown", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
