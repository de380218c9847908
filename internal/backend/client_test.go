package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testProjectID = "5b0e4c8e-8a44-4f7e-9a61-3f0f2b8c1d21"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "secret", 2*time.Second, nil)
}

func TestClient_GetProject(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/projects/"+testProjectID, r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "` + testProjectID + `",
			"status": "new",
			"credits": 12.5,
			"content": "roof survey",
			"payload": {"foo": "bar", "output_text": "done"}
		}`))
	})

	project, err := client.GetProject(context.Background(), testProjectID)
	require.NoError(t, err)
	assert.Equal(t, "new", project.Status)
	require.NotNil(t, project.Credits)
	assert.Equal(t, 12.5, *project.Credits)
	assert.JSONEq(t, `"bar"`, string(project.Payload["foo"]))
	assert.JSONEq(t, `"done"`, string(project.Payload["output_text"]))
}

func TestClient_GetProject_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	})

	_, err := client.GetProject(context.Background(), testProjectID)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestClient_PatchProject(t *testing.T) {
	var got map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"` + testProjectID + `"}`))
	})

	err := client.PatchProject(context.Background(), testProjectID, map[string]interface{}{
		"content": "updated",
		"payload": map[string]interface{}{"foo": "bar"},
	})
	require.NoError(t, err)
	assert.Equal(t, "updated", got["content"])
	assert.Equal(t, map[string]interface{}{"foo": "bar"}, got["payload"])
}

func TestClient_PatchProject_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	})

	err := client.PatchProject(context.Background(), testProjectID, map[string]interface{}{"content": "x"})
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "status=500")
}

func TestClient_CountOutputs(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected int
	}{
		{"no files", `{"items":[]}`, 0},
		{"only inputs", `{"items":[{"id":"1","name":"plan.pdf","tag":"input"}]}`, 0},
		{"mixed", `{"items":[
			{"id":"1","name":"plan.pdf","tag":"input"},
			{"id":"2","name":"report.pdf","tag":"output"},
			{"id":"3","name":"photos.zip","tag":"output"}
		]}`, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/projects/"+testProjectID+"/files", r.URL.Path)
				_, _ = w.Write([]byte(tt.body))
			})

			count, err := client.CountOutputs(context.Background(), testProjectID)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, count)
		})
	}
}

func TestClient_GetCustomer(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/customers/c-1", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"c-1","name":"Acme GmbH","email":"ops@acme.example"}`))
	})

	customer, err := client.GetCustomer(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme GmbH", customer.Name)
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := NewClient(srv.URL, "", time.Second, nil)

	_, err := client.GetProject(context.Background(), testProjectID)
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
}
