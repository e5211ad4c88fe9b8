package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"

	"taskroster/internal/config"
	"taskroster/internal/db"
	"taskroster/internal/domain"
	"taskroster/internal/engine"
	"taskroster/internal/migrate"
	taskrostersdk "taskroster/sdk/go"
)

const deadline = "2030-06-01T12:00:00Z"

type testServer struct {
	URL    string
	Client *taskrostersdk.Client
	close  func()
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default(), nil)
	handler, err := New(Config{Engine: e, BasePath: "/v0"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Client: taskrostersdk.New("http://" + ln.Addr().String()),
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.close)
	return ts
}

func apiStatus(t *testing.T, err error) (int, string) {
	t.Helper()
	var apiErr *taskrostersdk.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected api error, got %v", err)
	}
	return apiErr.StatusCode, apiErr.Code
}

func getRaw(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	res, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("decode %s: %v", string(data), err)
	}
	return res.StatusCode, body
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	c := srv.Client

	ada, err := c.CreateUser(ctx, taskrostersdk.UserInput{Name: "Ada", Email: "Ada@Example.com"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if ada.Email != "ada@example.com" || len(ada.PendingTasks) != 0 {
		t.Fatalf("unexpected user %+v", ada)
	}
	task, err := c.CreateTask(ctx, taskrostersdk.TaskInput{Name: "Ship release", Deadline: deadline, AssignedUser: ada.ID})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.AssignedUserName != "Ada" {
		t.Fatalf("expected cached owner name, got %q", task.AssignedUserName)
	}
	got, err := c.GetUser(ctx, ada.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if len(got.PendingTasks) != 1 || got.PendingTasks[0] != task.ID {
		t.Fatalf("expected task pending, got %v", got.PendingTasks)
	}

	if _, err := c.ReplaceTask(ctx, task.ID, taskrostersdk.TaskInput{Name: "Ship release", Deadline: deadline, AssignedUser: ada.ID, Completed: true}); err != nil {
		t.Fatalf("complete task: %v", err)
	}
	got, _ = c.GetUser(ctx, ada.ID)
	if len(got.PendingTasks) != 0 {
		t.Fatalf("completed task still pending: %v", got.PendingTasks)
	}

	deleted, err := c.DeleteTask(ctx, task.ID)
	if err != nil || deleted.ID != task.ID {
		t.Fatalf("delete task: %v %+v", err, deleted)
	}
	_, err = c.GetTask(ctx, task.ID)
	if status, code := apiStatus(t, err); status != http.StatusNotFound || code != "not_found" {
		t.Fatalf("expected 404 not_found, got %d %s", status, code)
	}
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	c := srv.Client

	if _, err := c.CreateUser(ctx, taskrostersdk.UserInput{Name: "Ada", Email: "ada@example.com"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	_, err := c.CreateUser(ctx, taskrostersdk.UserInput{Name: "Other", Email: "ADA@example.com"})
	if status, code := apiStatus(t, err); status != http.StatusConflict || code != "conflict" {
		t.Fatalf("expected 409 conflict, got %d %s", status, code)
	}

	_, err = c.CreateTask(ctx, taskrostersdk.TaskInput{Name: "no deadline"})
	if status, _ := apiStatus(t, err); status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	_, err = c.GetTask(ctx, "not-an-id")
	if status, _ := apiStatus(t, err); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", status)
	}
	_, err = c.ListTasks(ctx, taskrostersdk.Query{Where: `{"name":`})
	if status, code := apiStatus(t, err); status != http.StatusBadRequest || code != "bad_request" {
		t.Fatalf("expected 400 bad_request, got %d %s", status, code)
	}

	status, body := getRaw(t, srv.URL+"/v0/users?sort=%7B%22nope%22%3A1%7D")
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	envelope, ok := body["error"].(map[string]any)
	if !ok || !strings.Contains(envelope["message"].(string), "nope") {
		t.Fatalf("unexpected error envelope %v", body)
	}
}

func TestListQueries(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	c := srv.Client

	for _, name := range []string{"alpha", "beta", "gamma"} {
		if _, err := c.CreateTask(ctx, taskrostersdk.TaskInput{Name: name, Deadline: deadline, Completed: name == "beta"}); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	tasks, err := c.ListTasks(ctx, taskrostersdk.Query{Where: `{"completed":false}`, Sort: `{"name":-1}`})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 2 || tasks[0].Name != "gamma" || tasks[1].Name != "alpha" {
		t.Fatalf("unexpected tasks %+v", tasks)
	}

	one := 1
	tasks, err = c.ListTasks(ctx, taskrostersdk.Query{Sort: `{"name":1}`, Skip: 1, Limit: &one})
	if err != nil || len(tasks) != 1 || tasks[0].Name != "beta" {
		t.Fatalf("paging: %v %+v", err, tasks)
	}

	n, err := c.CountTasks(ctx, `{"completed":true}`)
	if err != nil || n != 1 {
		t.Fatalf("count: %v %d", err, n)
	}

	docs, err := c.ListTaskDocuments(ctx, taskrostersdk.Query{Select: `{"name":1,"_id":0}`, Sort: `{"name":1}`})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(docs) != 3 || len(docs[0]) != 1 || docs[0]["name"] != "alpha" {
		t.Fatalf("unexpected projection %v", docs)
	}
}

func TestUserPendingTasksOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	c := srv.Client

	ada, _ := c.CreateUser(ctx, taskrostersdk.UserInput{Name: "Ada", Email: "ada@example.com"})
	t1, _ := c.CreateTask(ctx, taskrostersdk.TaskInput{Name: "t1", Deadline: deadline, AssignedUser: ada.ID})
	t2, _ := c.CreateTask(ctx, taskrostersdk.TaskInput{Name: "t2", Deadline: deadline})

	bob, err := c.CreateUser(ctx, taskrostersdk.UserInput{Name: "Bob", Email: "bob@example.com", PendingTasks: []string{t1.ID}})
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}
	if len(bob.PendingTasks) != 1 || bob.PendingTasks[0] != t1.ID {
		t.Fatalf("bob should hold t1: %v", bob.PendingTasks)
	}
	ada, _ = c.GetUser(ctx, ada.ID)
	if len(ada.PendingTasks) != 0 {
		t.Fatalf("ada still holds %v", ada.PendingTasks)
	}

	bob, err = c.ReplaceUser(ctx, bob.ID, taskrostersdk.UserInput{Name: "Bob", Email: "bob@example.com", PendingTasks: []string{t2.ID}})
	if err != nil {
		t.Fatalf("replace bob: %v", err)
	}
	if len(bob.PendingTasks) != 1 || bob.PendingTasks[0] != t2.ID {
		t.Fatalf("bob should hold t2: %v", bob.PendingTasks)
	}
	if got, _ := c.GetTask(ctx, t1.ID); got.AssignedUser != "" || got.AssignedUserName != "unassigned" {
		t.Fatalf("t1 should be unassigned: %+v", got)
	}

	if _, err := c.DeleteUser(ctx, bob.ID); err != nil {
		t.Fatalf("delete bob: %v", err)
	}
	if got, _ := c.GetTask(ctx, t2.ID); got.AssignedUser != "" {
		t.Fatalf("t2 should be unassigned: %+v", got)
	}

	page, err := c.EventsPage(ctx, "task", t1.ID, 2, "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(page.Items) != 2 || page.Items[0].Type != "task.unassigned" || page.NextCursor == "" {
		t.Fatalf("unexpected events page %+v", page)
	}
	next, err := c.EventsPage(ctx, "task", t1.ID, 10, page.NextCursor)
	if err != nil {
		t.Fatalf("events next: %v", err)
	}
	if len(next.Items) != 2 || next.Items[len(next.Items)-1].Type != "task.created" {
		t.Fatalf("unexpected second page %+v", next)
	}
}

func TestHealthAndOpenAPI(t *testing.T) {
	srv := newTestServer(t)
	status, body := getRaw(t, srv.URL+"/v0/health")
	if status != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health: %d %v", status, body)
	}
	status, body = getRaw(t, srv.URL+"/v0/openapi.json")
	if status != http.StatusOK {
		t.Fatalf("openapi status %d", status)
	}
	paths, _ := body["paths"].(map[string]any)
	for _, p := range []string{"/v0/tasks", "/v0/tasks/{id}", "/v0/users", "/v0/users/{id}", "/v0/events"} {
		if _, ok := paths[p]; !ok {
			t.Fatalf("openapi missing %s", p)
		}
	}
}

func TestEventResponseKeepsUndecodablePayload(t *testing.T) {
	resp := eventResponse(domain.Event{ID: 7, Type: "task.created", EntityKind: "task", Payload: "{not json"})
	if resp.Payload["raw"] != "{not json" {
		t.Fatalf("expected raw payload, got %#v", resp.Payload)
	}
	if msg, _ := resp.Payload["decode_error"].(string); msg == "" {
		t.Fatalf("expected decode error, got %#v", resp.Payload)
	}

	resp = eventResponse(domain.Event{ID: 8, Payload: `{"user_id":"u1"}`})
	if len(resp.Payload) != 1 || resp.Payload["user_id"] != "u1" {
		t.Fatalf("unexpected payload %#v", resp.Payload)
	}
}

func TestOpenAPIConcurrentFirstRequests(t *testing.T) {
	srv := newTestServer(t)
	const n = 8
	bodies := make(chan string, n)
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := http.Get(srv.URL + "/v0/openapi.json")
			if err != nil {
				errs <- err
				return
			}
			defer res.Body.Close()
			data, err := io.ReadAll(res.Body)
			if err != nil {
				errs <- err
				return
			}
			bodies <- string(data)
		}()
	}
	wg.Wait()
	close(bodies)
	close(errs)
	for err := range errs {
		t.Fatalf("get openapi: %v", err)
	}
	var first string
	for b := range bodies {
		if first == "" {
			first = b
		}
		if b == "" || b != first {
			t.Fatalf("openapi bodies differ or are empty")
		}
	}
}
