package taskrostersdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal taskroster HTTP API client.
type Client struct {
	BaseURL    string
	BasePath   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

type Task struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	Deadline         time.Time `json:"deadline"`
	Completed        bool      `json:"completed"`
	AssignedUser     string    `json:"assignedUser"`
	AssignedUserName string    `json:"assignedUserName"`
	DateCreated      time.Time `json:"dateCreated"`
}

// TaskInput is the full state sent on create and replace.
type TaskInput struct {
	Name         string `json:"name,omitempty"`
	Description  string `json:"description,omitempty"`
	Deadline     string `json:"deadline,omitempty"`
	Completed    bool   `json:"completed,omitempty"`
	AssignedUser string `json:"assignedUser,omitempty"`
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PendingTasks []string  `json:"pendingTasks"`
	DateCreated  time.Time `json:"dateCreated"`
}

type UserInput struct {
	Name         string   `json:"name,omitempty"`
	Email        string   `json:"email,omitempty"`
	PendingTasks []string `json:"pendingTasks,omitempty"`
}

// Query holds the raw list parameters. Where, Sort and Select are JSON
// objects; zero values are omitted.
type Query struct {
	Where  string
	Sort   string
	Select string
	Skip   int
	Limit  *int
}

func (q Query) values() url.Values {
	v := url.Values{}
	if q.Where != "" {
		v.Set("where", q.Where)
	}
	if q.Sort != "" {
		v.Set("sort", q.Sort)
	}
	if q.Select != "" {
		v.Set("select", q.Select)
	}
	if q.Skip > 0 {
		v.Set("skip", strconv.Itoa(q.Skip))
	}
	if q.Limit != nil {
		v.Set("limit", strconv.Itoa(*q.Limit))
	}
	return v
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

type envelope[T any] struct {
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func (c *Client) ListTasks(ctx context.Context, q Query) ([]Task, error) {
	var resp envelope[[]Task]
	err := c.do(ctx, http.MethodGet, withQuery("tasks", q.values()), nil, &resp)
	return resp.Data, err
}

// ListTaskDocuments returns projected task documents.
func (c *Client) ListTaskDocuments(ctx context.Context, q Query) ([]map[string]any, error) {
	var resp envelope[[]map[string]any]
	err := c.do(ctx, http.MethodGet, withQuery("tasks", q.values()), nil, &resp)
	return resp.Data, err
}

func (c *Client) CountTasks(ctx context.Context, where string) (int, error) {
	return c.count(ctx, "tasks", where)
}

func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp envelope[Task]
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(id), nil, &resp)
	return resp.Data, err
}

func (c *Client) CreateTask(ctx context.Context, in TaskInput) (Task, error) {
	var resp envelope[Task]
	err := c.do(ctx, http.MethodPost, "tasks", in, &resp)
	return resp.Data, err
}

// ReplaceTask overwrites every field of the task.
func (c *Client) ReplaceTask(ctx context.Context, id string, in TaskInput) (Task, error) {
	var resp envelope[Task]
	err := c.do(ctx, http.MethodPut, "tasks/"+url.PathEscape(id), in, &resp)
	return resp.Data, err
}

func (c *Client) DeleteTask(ctx context.Context, id string) (Task, error) {
	var resp envelope[Task]
	err := c.do(ctx, http.MethodDelete, "tasks/"+url.PathEscape(id), nil, &resp)
	return resp.Data, err
}

func (c *Client) ListUsers(ctx context.Context, q Query) ([]User, error) {
	var resp envelope[[]User]
	err := c.do(ctx, http.MethodGet, withQuery("users", q.values()), nil, &resp)
	return resp.Data, err
}

func (c *Client) CountUsers(ctx context.Context, where string) (int, error) {
	return c.count(ctx, "users", where)
}

func (c *Client) GetUser(ctx context.Context, id string) (User, error) {
	var resp envelope[User]
	err := c.do(ctx, http.MethodGet, "users/"+url.PathEscape(id), nil, &resp)
	return resp.Data, err
}

func (c *Client) CreateUser(ctx context.Context, in UserInput) (User, error) {
	var resp envelope[User]
	err := c.do(ctx, http.MethodPost, "users", in, &resp)
	return resp.Data, err
}

func (c *Client) ReplaceUser(ctx context.Context, id string, in UserInput) (User, error) {
	var resp envelope[User]
	err := c.do(ctx, http.MethodPut, "users/"+url.PathEscape(id), in, &resp)
	return resp.Data, err
}

func (c *Client) DeleteUser(ctx context.Context, id string) (User, error) {
	var resp envelope[User]
	err := c.do(ctx, http.MethodDelete, "users/"+url.PathEscape(id), nil, &resp)
	return resp.Data, err
}

// EventsPage returns a page of events, newest first.
func (c *Client) EventsPage(ctx context.Context, entityKind, entityID string, limit int, cursor string) (PaginatedEvents, error) {
	v := url.Values{}
	if entityKind != "" {
		v.Set("entity_kind", entityKind)
	}
	if entityID != "" {
		v.Set("entity_id", entityID)
	}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		v.Set("cursor", cursor)
	}
	var resp envelope[PaginatedEvents]
	err := c.do(ctx, http.MethodGet, withQuery("events", v), nil, &resp)
	return resp.Data, err
}

func (c *Client) count(ctx context.Context, kind, where string) (int, error) {
	v := url.Values{"count": {"true"}}
	if where != "" {
		v.Set("where", where)
	}
	var resp envelope[int]
	err := c.do(ctx, http.MethodGet, withQuery(kind, v), nil, &resp)
	return resp.Data, err
}

func withQuery(endpoint string, v url.Values) string {
	if len(v) == 0 {
		return endpoint
	}
	return endpoint + "?" + v.Encode()
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var parsed struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &parsed) == nil {
			apiErr.Code, apiErr.Message = parsed.Error.Code, parsed.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
