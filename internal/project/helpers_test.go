package project

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"project-desk/internal/backend"
	"project-desk/internal/common/logger"
	"project-desk/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

const (
	testProjectID  = "0c2f8a56-1c3b-4f43-9c7e-6a8b5d2e9f10"
	testCustomerID = "cust-42"
	testQuiet      = 40 * time.Millisecond
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func createTestProject() *models.Project {
	credits := 3.0
	return &models.Project{
		ID:            testProjectID,
		CustomerID:    testCustomerID,
		Status:        models.StatusInProgress,
		Credits:       &credits,
		Content:       "server content",
		CustomerNotes: "call before noon",
		ProjectCity:   "Berlin",
		Payload: models.Payload{
			"foo": json.RawMessage(`"bar"`),
		},
	}
}

// fakeAPI is an in-memory backend. PATCH bodies go through JSON so the
// stored record looks exactly like what a real server would persist.
type fakeAPI struct {
	mu       sync.Mutex
	project  *models.Project
	customer *models.Customer

	getErr     error
	patchErr   error
	patchDelay time.Duration

	getCalls int
	patches  []map[string]interface{}
}

func newFakeAPI(p *models.Project) *fakeAPI {
	return &fakeAPI{
		project:  p,
		customer: &models.Customer{ID: testCustomerID, Name: "Acme GmbH"},
	}
}

func (f *fakeAPI) GetProject(ctx context.Context, id string) (*models.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.project == nil || f.project.ID != id {
		return nil, &backend.APIError{StatusCode: 404, Body: "not found"}
	}
	data, err := json.Marshal(f.project)
	if err != nil {
		return nil, err
	}
	var out models.Project
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (f *fakeAPI) PatchProject(ctx context.Context, id string, fields map[string]interface{}) error {
	f.mu.Lock()
	delay, patchErr := f.patchDelay, f.patchErr
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	f.patches = append(f.patches, decoded)

	if patchErr != nil {
		return patchErr
	}

	current, err := json.Marshal(f.project)
	if err != nil {
		return err
	}
	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(current, &merged); err != nil {
		return err
	}
	var patch map[string]json.RawMessage
	if err := json.Unmarshal(data, &patch); err != nil {
		return err
	}
	for k, v := range patch {
		merged[k] = v
	}
	next, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	var p models.Project
	if err := json.Unmarshal(next, &p); err != nil {
		return err
	}
	f.project = &p
	return nil
}

func (f *fakeAPI) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.customer == nil || f.customer.ID != id {
		return nil, &backend.APIError{StatusCode: 404, Body: "not found"}
	}
	c := *f.customer
	return &c, nil
}

func (f *fakeAPI) setPatchErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patchErr = err
}

func (f *fakeAPI) patchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.patches)
}

func (f *fakeAPI) lastPatch() map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.patches) == 0 {
		return nil
	}
	return f.patches[len(f.patches)-1]
}

func (f *fakeAPI) stored() models.Project {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.project
}

type fakeCounter struct {
	mu    sync.Mutex
	count int
	err   error
	calls int
}

func (c *fakeCounter) CountOutputs(ctx context.Context, projectID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.count, c.err
}

// memoryDrafts is a DraftStore that records calls.
type memoryDrafts struct {
	mu     sync.Mutex
	drafts map[string]map[string]string
	clears int
}

func newMemoryDrafts() *memoryDrafts {
	return &memoryDrafts{drafts: map[string]map[string]string{}}
}

func (m *memoryDrafts) Read(ctx context.Context, id string) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]string{}
	for k, v := range m.drafts[id] {
		out[k] = v
	}
	return out
}

func (m *memoryDrafts) Write(ctx context.Context, id string, f Field, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.drafts[id] == nil {
		m.drafts[id] = map[string]string{}
	}
	m.drafts[id][string(f)] = value
}

func (m *memoryDrafts) Clear(ctx context.Context, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, id)
	m.clears++
}

func (m *memoryDrafts) has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.drafts[id]
	return ok
}

func openTestSession(t *testing.T, api *fakeAPI, counter *fakeCounter, drafts DraftStore) *Session {
	t.Helper()
	if counter == nil {
		counter = &fakeCounter{}
	}
	s, err := Open(context.Background(), testProjectID, Dependencies{
		API:    api,
		Files:  counter,
		Drafts: drafts,
		// Autosave callbacks can outlive the test body.
		Logger: logger.NewNoOpLogger(),
	}, Options{QuietPeriod: testQuiet, SaveTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}
