package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"taskroster/internal/engine"
	"taskroster/internal/query"
)

type idPath struct {
	ID string `path:"id"`
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
		Description: "Without a limit at most the configured task default (100) is returned.",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *listParams) (*struct {
		Body ListEnvelope `json:"body"`
	}, error) {
		q, err := query.Parse(input.params())
		if err != nil {
			return nil, handleError(err)
		}
		res, err := e.ListTasks(ctx, q)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ListEnvelope `json:"body"`
		}{Body: ListEnvelope{Message: "OK", Data: listData(res)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ID     string `path:"id"`
		Select string `query:"select"`
	}) (*struct {
		Body DocumentEnvelope `json:"body"`
	}, error) {
		proj, err := query.ParseSelect(input.Select)
		if err != nil {
			return nil, handleError(err)
		}
		doc, err := e.SelectTask(ctx, input.ID, proj)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DocumentEnvelope `json:"body"`
		}{Body: DocumentEnvelope{Message: "OK", Data: doc}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body TaskRequest `json:"body"`
	}) (*struct {
		Body TaskEnvelope `json:"body"`
	}, error) {
		t, err := e.CreateTask(ctx, input.Body.input())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskEnvelope `json:"body"`
		}{Body: TaskEnvelope{Message: "task created", Data: t}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "replace-task",
		Method:      http.MethodPut,
		Path:        "/tasks/{id}",
		Summary:     "Replace task",
		Description: "Every field is replaced; omitted fields take their defaults.",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ID   string      `path:"id"`
		Body TaskRequest `json:"body"`
	}) (*struct {
		Body TaskEnvelope `json:"body"`
	}, error) {
		t, err := e.UpdateTask(ctx, input.ID, input.Body.input())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskEnvelope `json:"body"`
		}{Body: TaskEnvelope{Message: "task updated", Data: t}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/tasks/{id}",
		Summary:     "Delete task",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *idPath) (*struct {
		Body TaskEnvelope `json:"body"`
	}, error) {
		t, err := e.DeleteTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskEnvelope `json:"body"`
		}{Body: TaskEnvelope{Message: "task deleted", Data: t}}, nil
	})
}
