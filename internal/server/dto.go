package server

import (
	"encoding/json"

	"taskroster/internal/domain"
	"taskroster/internal/engine"
	"taskroster/internal/query"
)

// Request payloads. Every field is optional at the schema level so that
// missing values reach the engine and are reported with its messages.

type TaskRequest struct {
	Name         string `json:"name,omitempty" example:"Ship release"`
	Description  string `json:"description,omitempty"`
	Deadline     string `json:"deadline,omitempty" example:"2030-06-01T12:00:00Z"`
	Completed    bool   `json:"completed,omitempty"`
	AssignedUser string `json:"assignedUser,omitempty"`
}

func (r TaskRequest) input() engine.TaskInput {
	return engine.TaskInput{
		Name:         r.Name,
		Description:  r.Description,
		Deadline:     r.Deadline,
		Completed:    r.Completed,
		AssignedUser: r.AssignedUser,
	}
}

type UserRequest struct {
	Name         string   `json:"name,omitempty" example:"Ada"`
	Email        string   `json:"email,omitempty" example:"ada@example.com"`
	PendingTasks []string `json:"pendingTasks,omitempty"`
}

func (r UserRequest) input() engine.UserInput {
	return engine.UserInput{Name: r.Name, Email: r.Email, PendingTasks: r.PendingTasks}
}

// listParams are the query parameters shared by both list endpoints.
type listParams struct {
	Where  string `query:"where" doc:"JSON filter object, e.g. {\"completed\":false}"`
	Sort   string `query:"sort" doc:"JSON object of field to 1 or -1"`
	Select string `query:"select" doc:"JSON object of field to 1 or 0"`
	Skip   string `query:"skip"`
	Limit  string `query:"limit"`
	Count  string `query:"count" doc:"true to return only the number of matches"`
}

func (p listParams) params() query.Params {
	return query.Params{Where: p.Where, Sort: p.Sort, Select: p.Select, Skip: p.Skip, Limit: p.Limit, Count: p.Count}
}

// Responses. Every successful body is {"message": ..., "data": ...}.

type TaskEnvelope struct {
	Message string      `json:"message" example:"OK"`
	Data    domain.Task `json:"data"`
}

type UserEnvelope struct {
	Message string      `json:"message" example:"OK"`
	Data    domain.User `json:"data"`
}

type DocumentEnvelope struct {
	Message string         `json:"message" example:"OK"`
	Data    query.Document `json:"data" jsonschema:"type=object,additionalProperties=true"`
}

// ListEnvelope carries either an array of documents or, for count-only
// queries, a number.
type ListEnvelope struct {
	Message string `json:"message" example:"OK"`
	Data    any    `json:"data"`
}

type EventsEnvelope struct {
	Message string          `json:"message" example:"OK"`
	Data    paginatedEvents `json:"data"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	Payload    map[string]any `json:"payload" jsonschema:"type=object,additionalProperties=true"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func eventResponse(e domain.Event) EventResponse {
	resp := EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		Payload:    map[string]any{},
	}
	if e.Payload != "" {
		if err := json.Unmarshal([]byte(e.Payload), &resp.Payload); err != nil {
			// Keep the stored text so a corrupt row stays visible to the caller.
			resp.Payload = map[string]any{"raw": e.Payload, "decode_error": err.Error()}
		}
	}
	return resp
}

// listData is the data of a list response: the count for count-only
// queries, the documents otherwise.
func listData(res query.Result) any {
	if res.CountOnly {
		return res.Count
	}
	if res.Items == nil {
		return []query.Document{}
	}
	return res.Items
}
