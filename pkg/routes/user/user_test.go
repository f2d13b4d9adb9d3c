package user

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectoinject/ectocontainer"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/schema"
)

type stubs struct {
	lineageErr error
}

func (s *stubs) Related(ctx context.Context, userID string) ([]models.RelatedObject, error) {
	if userID == "missing" {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "user missing does not exist")
	}
	return []models.RelatedObject{{
		Object:   schema.ObjectRef{Type: "contact_infos", ID: "c1"},
		Relation: "contact_infos.user",
		Field:    "user",
	}}, nil
}

func (s *stubs) Resolve(ctx context.Context, userID string) (*models.Resolution, error) {
	return &models.Resolution{RequestedID: userID, ResolvedID: "b", Path: []string{userID, "b"}}, nil
}

func (s *stubs) Lineage(ctx context.Context, userID string) ([]graph.LineageEntry, error) {
	if s.lineageErr != nil {
		return nil, s.lineageErr
	}
	return []graph.LineageEntry{{UserID: "a", MergeID: "m1", Depth: 1}}, nil
}

// newServer registers s for every user dependency. Lineage is left out
// unless withLineage is set, as when the graph is disabled.
func newServer(t *testing.T, s *stubs, withLineage bool) *echo.Echo {
	t.Helper()
	logger := zapadapter.NewZapEctoLogger(zap.NewNop(), nil)

	config := ectoinject.DefaultContainerConfig
	config.ID = uuid.New().String()
	config.LoggerConfig = &ectocontainer.DIContainerLoggerConfig{Enabled: false}
	container, err := ectoinject.NewDIContainer(config)
	require.NoError(t, err)
	require.NoError(t, ectoinject.RegisterInstance[ectologger.Logger](container, logger))
	require.NoError(t, ectoinject.RegisterInstance[RelatedLister](container, s))
	require.NoError(t, ectoinject.RegisterInstance[Resolver](container, s))
	if withLineage {
		require.NoError(t, ectoinject.RegisterInstance[LineageReader](container, s))
	}

	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(middleware.Container(config.ID))
	Register(e.Group("/api/v1"))
	return e
}

func get(e *echo.Echo, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestGetRelated(t *testing.T) {
	s := &stubs{}
	e := newServer(t, s, true)

	rec := get(e, "/api/v1/users/u1/related")
	require.Equal(t, http.StatusOK, rec.Code)

	var related []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &related))
	require.Len(t, related, 1)
	assert.Equal(t, "contact_infos.user", related[0]["relation"])
	assert.NotContains(t, related[0], "Descriptor")

	assert.Equal(t, http.StatusNotFound, get(e, "/api/v1/users/missing/related").Code)
}

func TestResolve(t *testing.T) {
	s := &stubs{}
	rec := get(newServer(t, s, true), "/api/v1/users/a/resolve")
	require.Equal(t, http.StatusOK, rec.Code)

	var res models.Resolution
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "b", res.ResolvedID)
	assert.Equal(t, []string{"a", "b"}, res.Path)
}

func TestGetLineage(t *testing.T) {
	t.Run("Configured", func(t *testing.T) {
		s := &stubs{}
		rec := get(newServer(t, s, true), "/api/v1/users/b/lineage")
		require.Equal(t, http.StatusOK, rec.Code)

		var entries []graph.LineageEntry
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
		assert.Equal(t, "a", entries[0].UserID)
	})

	t.Run("NotConfigured", func(t *testing.T) {
		s := &stubs{}
		rec := get(newServer(t, s, false), "/api/v1/users/b/lineage")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("GraphDown", func(t *testing.T) {
		s := &stubs{lineageErr: errors.New("bolt: connection refused")}
		rec := get(newServer(t, s, true), "/api/v1/users/b/lineage")
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}
