package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scarecr0w12/ai-server-management/internal/audit"
	"github.com/scarecr0w12/ai-server-management/internal/engine"
	"github.com/scarecr0w12/ai-server-management/internal/model"
	"github.com/scarecr0w12/ai-server-management/internal/testutil"
	"github.com/scarecr0w12/ai-server-management/internal/transport"
)

func setup(t *testing.T) *httptest.Server {
	t.Helper()

	addr := testutil.StartAgent(t)
	client := transport.NewClient(transport.Config{
		Addr:            addr,
		ResponseTimeout: time.Second,
	}, zap.NewNop())
	t.Cleanup(func() { client.Close() })

	eng := engine.New(client, audit.Nop{}, engine.Options{
		InterTaskDelay: time.Millisecond,
		Backoff:        &engine.FixedBackoff{Delay: time.Millisecond},
	}, zap.NewNop())

	srv := httptest.NewServer(New(eng, zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, payload interface{}) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestAPIWorkflowLifecycle(t *testing.T) {
	srv := setup(t)

	t.Run("Create", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/workflows", map[string]string{
			"id":        "wf1",
			"server_id": "srv1",
			"template":  "system_health_check",
		})
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("List", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/workflows")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Workflows []model.WorkflowProjection `json:"workflows"`
		}
		decodeJSON(t, resp, &body)
		require.Len(t, body.Workflows, 1)
		assert.Equal(t, "wf1", body.Workflows[0].ID)
		assert.Equal(t, model.WorkflowStatusPending, body.Workflows[0].Status)
	})

	t.Run("Execute", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/api/workflows/wf1/execute", "application/json", nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var summary model.Summary
		decodeJSON(t, resp, &summary)
		assert.Equal(t, model.WorkflowStatusCompleted, summary.Status)
		assert.Equal(t, 4, summary.Counts.TotalTasks)
		assert.Equal(t, 0, summary.Counts.Failed)
		assert.Equal(t,
			[]string{"All diagnostic tasks completed successfully - system appears healthy"},
			summary.Recommendations)
	})
}

func TestAPICreateGeneratesID(t *testing.T) {
	srv := setup(t)

	resp := postJSON(t, srv.URL+"/api/workflows", map[string]string{
		"server_id": "srv1",
		"template":  "security_audit",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var body struct {
		ID string `json:"id"`
	}
	decodeJSON(t, resp, &body)
	assert.NotEmpty(t, body.ID)
}

func TestAPIErrors(t *testing.T) {
	srv := setup(t)

	t.Run("Unknown Template", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/workflows", map[string]string{
			"id":        "wf1",
			"server_id": "srv1",
			"template":  "not_a_template",
		})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("Missing Fields", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/workflows", map[string]string{"id": "wf1"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("Execute Unknown Workflow", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/api/workflows/nope/execute", "application/json", nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		resp.Body.Close()
	})
}

func TestAPITemplatesAndHealth(t *testing.T) {
	srv := setup(t)

	t.Run("Templates", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/templates")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Templates []string `json:"templates"`
		}
		decodeJSON(t, resp, &body)
		assert.ElementsMatch(t, []string{
			"web_server_diagnostic",
			"system_health_check",
			"security_audit",
		}, body.Templates)
	})

	t.Run("Health", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/healthz")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	})
}
