package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"taskroster/internal/engine"
	"taskroster/internal/query"
)

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
		Description: "Without a limit every matching user is returned.",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *listParams) (*struct {
		Body ListEnvelope `json:"body"`
	}, error) {
		q, err := query.Parse(input.params())
		if err != nil {
			return nil, handleError(err)
		}
		res, err := e.ListUsers(ctx, q)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ListEnvelope `json:"body"`
		}{Body: ListEnvelope{Message: "OK", Data: listData(res)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user",
		Method:      http.MethodGet,
		Path:        "/users/{id}",
		Summary:     "Get user",
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
		doc, err := e.SelectUser(ctx, input.ID, proj)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DocumentEnvelope `json:"body"`
		}{Body: DocumentEnvelope{Message: "OK", Data: doc}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create user",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body UserRequest `json:"body"`
	}) (*struct {
		Body UserEnvelope `json:"body"`
	}, error) {
		u, err := e.CreateUser(ctx, input.Body.input())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserEnvelope `json:"body"`
		}{Body: UserEnvelope{Message: "user created", Data: u}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "replace-user",
		Method:      http.MethodPut,
		Path:        "/users/{id}",
		Summary:     "Replace user",
		Description: "pendingTasks lists the tasks the user should own; dropped tasks are unassigned and new ones are transferred.",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ID   string      `path:"id"`
		Body UserRequest `json:"body"`
	}) (*struct {
		Body UserEnvelope `json:"body"`
	}, error) {
		u, err := e.UpdateUser(ctx, input.ID, input.Body.input())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserEnvelope `json:"body"`
		}{Body: UserEnvelope{Message: "user updated", Data: u}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-user",
		Method:      http.MethodDelete,
		Path:        "/users/{id}",
		Summary:     "Delete user",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *idPath) (*struct {
		Body UserEnvelope `json:"body"`
	}, error) {
		u, err := e.DeleteUser(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserEnvelope `json:"body"`
		}{Body: UserEnvelope{Message: "user deleted", Data: u}}, nil
	})
}
