// internal/backend/client.go
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	commonhttp "project-desk/internal/common/http"
	"project-desk/internal/common/observability"
	"project-desk/internal/models"
)

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to the project REST API.
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *commonhttp.Client
}

func NewClient(baseURL, apiToken string, timeout time.Duration, obs *observability.Observability) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiToken:   apiToken,
		httpClient: commonhttp.NewClient(timeout, obs),
	}
}

// GetProject fetches one project record.
func (c *Client) GetProject(ctx context.Context, id string) (*models.Project, error) {
	var project models.Project
	endpoint := fmt.Sprintf("projects/%s", url.PathEscape(id))
	if err := c.do(ctx, http.MethodGet, endpoint, "GET /projects/{id}", nil, &project); err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &project, nil
}

// PatchProject sends a partial update. The echoed record is ignored; the
// caller already holds the newest local state.
func (c *Client) PatchProject(ctx context.Context, id string, fields map[string]interface{}) error {
	endpoint := fmt.Sprintf("projects/%s", url.PathEscape(id))
	if err := c.do(ctx, http.MethodPatch, endpoint, "PATCH /projects/{id}", fields, nil); err != nil {
		return fmt.Errorf("failed to patch project: %w", err)
	}
	return nil
}

// GetCustomer fetches the parent customer of a project.
func (c *Client) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	var customer models.Customer
	endpoint := fmt.Sprintf("customers/%s", url.PathEscape(id))
	if err := c.do(ctx, http.MethodGet, endpoint, "GET /customers/{id}", nil, &customer); err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return &customer, nil
}

// ListFiles returns every file attached to a project.
func (c *Client) ListFiles(ctx context.Context, projectID string) ([]models.ProjectFile, error) {
	var result struct {
		Items []models.ProjectFile `json:"items"`
	}
	endpoint := fmt.Sprintf("projects/%s/files", url.PathEscape(projectID))
	if err := c.do(ctx, http.MethodGet, endpoint, "GET /projects/{id}/files", nil, &result); err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return result.Items, nil
}

// CountOutputs counts files tagged as output artifacts.
func (c *Client) CountOutputs(ctx context.Context, projectID string) (int, error) {
	items, err := c.ListFiles(ctx, projectID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, f := range items {
		if f.Tag == models.FileTagOutput {
			count++
		}
	}
	return count, nil
}

func (c *Client) do(ctx context.Context, method, endpoint, route string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.DoWithContext(ctx, req, route)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
