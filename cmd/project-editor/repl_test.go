package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"project-desk/internal/backend"
	"project-desk/internal/common/logger"
	"project-desk/internal/project"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const replProjectID = "7d9a3c1e-2b4f-4e6a-8c0d-1f2e3a4b5c6d"

type replBackend struct {
	mu      sync.Mutex
	record  map[string]json.RawMessage
	outputs int
	patches int
}

func (b *replBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/projects/"+replProjectID:
		json.NewEncoder(w).Encode(b.record)
	case r.Method == http.MethodPatch && r.URL.Path == "/projects/"+replProjectID:
		var patch map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for k, v := range patch {
			b.record[k] = v
		}
		b.patches++
		json.NewEncoder(w).Encode(b.record)
	case r.Method == http.MethodGet && r.URL.Path == "/projects/"+replProjectID+"/files":
		items := make([]map[string]string, 0, b.outputs)
		for i := 0; i < b.outputs; i++ {
			items = append(items, map[string]string{"id": "f", "name": "report.pdf", "tag": "output"})
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"items": items})
	default:
		http.NotFound(w, r)
	}
}

func openReplSession(t *testing.T, outputs int) (*project.Session, *replBackend) {
	t.Helper()
	b := &replBackend{
		outputs: outputs,
		record: map[string]json.RawMessage{
			"id":      json.RawMessage(`"` + replProjectID + `"`),
			"status":  json.RawMessage(`"in_progress"`),
			"content": json.RawMessage(`"original"`),
			"payload": json.RawMessage(`{"foo":"bar"}`),
		},
	}
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	api := backend.NewClient(srv.URL, "", time.Second, nil)
	s, err := project.Open(context.Background(), replProjectID, project.Dependencies{
		API:    api,
		Logger: logger.NewNoOpLogger(),
	}, project.Options{QuietPeriod: time.Minute})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, b
}

func runScript(t *testing.T, s *project.Session, script string) string {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, runCommands(context.Background(), s, strings.NewReader(script), &out))
	return out.String()
}

func TestRunCommands_EditAndSave(t *testing.T) {
	s, b := openReplSession(t, 0)

	out := runScript(t, s, "set content new text here\nsave\nquit\n")

	assert.Contains(t, out, "saved at")
	assert.Equal(t, "new text here", s.Field(project.FieldContent))
	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Equal(t, 1, b.patches)
	assert.JSONEq(t, `"new text here"`, string(b.record["content"]))
	assert.JSONEq(t, `{"foo":"bar"}`, string(b.record["payload"]))
}

func TestRunCommands_Errors(t *testing.T) {
	s, _ := openReplSession(t, 0)

	out := runScript(t, s, "set credits lots\nstatus completed\nnote add internal    \nbogus\n")

	assert.Contains(t, out, "VALIDATION_FAILED")
	assert.Contains(t, out, "PRECONDITION_FAILED")
	assert.Contains(t, out, `unknown command "bogus"`)
}

func TestRunCommands_CompletionFlow(t *testing.T) {
	s, b := openReplSession(t, 1)

	out := runScript(t, s, "status completed\nconfirm\ncheck on\nconfirm\n")

	assert.Contains(t, out, `"check on"`)
	assert.Contains(t, out, "project completed")
	assert.Equal(t, "completed", s.Field(project.FieldStatus))
	assert.Equal(t, "pending", s.Field(project.FieldQCStatus))
	b.mu.Lock()
	defer b.mu.Unlock()
	assert.JSONEq(t, `"pending"`, string(b.record["qc_status"]))
}

func TestRunCommands_Notes(t *testing.T) {
	s, _ := openReplSession(t, 0)

	out := runScript(t, s, "note add customer Hello there\nshow\n")

	assert.Contains(t, out, "added ")
	assert.Contains(t, out, "Hello there")
	notes := s.Notes("customer")
	require.Len(t, notes, 1)

	out = runScript(t, s, "note rm customer "+notes[0].ID+"\nnote rm customer missing\n")
	assert.Contains(t, out, "removed "+notes[0].ID)
	assert.Contains(t, out, "NOT_FOUND")
	assert.Empty(t, s.Notes("customer"))
}

func TestRunCommands_StopsOnCancel(t *testing.T) {
	s, _ := openReplSession(t, 0)
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	var out bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- runCommands(ctx, s, pr, &out) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("runCommands did not return after cancel")
	}

	// A line arriving after cancel is read and dropped.
	written := make(chan struct{})
	go func() {
		pw.Write([]byte("show\n"))
		close(written)
	}()
	select {
	case <-written:
	case <-time.After(time.Second):
		t.Fatal("reader goroutine no longer consumes input")
	}
}

func TestSplitWord(t *testing.T) {
	tests := []struct {
		in, head, tail string
	}{
		{"set content hello world", "set", "content hello world"},
		{"  save  ", "save", ""},
		{"", "", ""},
		{"note\tadd internal x", "note", "add internal x"},
	}
	for _, tt := range tests {
		head, tail := splitWord(tt.in)
		assert.Equal(t, tt.head, head)
		assert.Equal(t, tt.tail, tail)
	}
}
