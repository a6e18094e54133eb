package tool

import (
	"context"
	"errors"

	"github.com/workbridge/workbridge/internal/azdo"
)

// WorkItemClient is the slice of the tracking client the tools consume.
type WorkItemClient interface {
	CreateWorkItem(ctx context.Context, req azdo.WorkItemRequest) (*azdo.WorkItem, error)
	GetWorkItem(ctx context.Context, id int) (*azdo.WorkItem, error)
	UpdateWorkItem(ctx context.Context, id int, upd azdo.WorkItemUpdate) (*azdo.WorkItem, error)
	ListWorkItems(ctx context.Context, query string) ([]*azdo.WorkItem, error)
}

// clientFailure converts a client error into a business-failure Result.
// Tracking-API failures are reported to the caller as a normal response
// carrying success=false, never as an RPC-level error.
func clientFailure(err error) Result {
	res := Result{Success: false, ErrorMessage: err.Error()}
	var authErr *azdo.AuthorizationError
	var valErr *azdo.ValidationError
	var apiErr *azdo.APIError
	switch {
	case errors.As(err, &authErr):
		res.ErrorCode = authErr.StatusCode
	case errors.As(err, &valErr):
		res.ErrorCode = valErr.StatusCode
	case errors.As(err, &apiErr):
		res.ErrorCode = apiErr.StatusCode
	}
	return res
}

// CreateWorkItemTool creates a work item from title/workItemType plus
// optional description and priority. Assignee is deliberately not exposed
// here; an assignment tool variant would carry it.
type CreateWorkItemTool struct {
	client WorkItemClient
}

func NewCreateWorkItemTool(client WorkItemClient) *CreateWorkItemTool {
	return &CreateWorkItemTool{client: client}
}

func (t *CreateWorkItemTool) Name() string { return "create_work_item" }

func (t *CreateWorkItemTool) Description() string {
	return "Create a work item with a title, type, and optional description and priority"
}

func (t *CreateWorkItemTool) Execute(ctx context.Context, bag *ParameterBag) (Result, error) {
	title, err := GetRequired[string](bag, "title")
	if err != nil {
		return Result{}, err
	}
	workItemType, err := GetRequired[string](bag, "workItemType")
	if err != nil {
		return Result{}, err
	}

	req := azdo.WorkItemRequest{Title: title, Type: workItemType}
	if description, ok := TryGet[string](bag, "description"); ok {
		req.Description = &description
	}
	if priority, ok := TryGet[string](bag, "priority"); ok {
		req.Priority = &priority
	}

	item, err := t.client.CreateWorkItem(ctx, req)
	if err != nil {
		return clientFailure(err), nil
	}
	return Result{Success: true, Data: item}, nil
}

// GetWorkItemTool fetches a single work item by id.
type GetWorkItemTool struct {
	client WorkItemClient
}

func NewGetWorkItemTool(client WorkItemClient) *GetWorkItemTool {
	return &GetWorkItemTool{client: client}
}

func (t *GetWorkItemTool) Name() string { return "get_work_item" }

func (t *GetWorkItemTool) Description() string {
	return "Fetch a single work item by its id"
}

func (t *GetWorkItemTool) Execute(ctx context.Context, bag *ParameterBag) (Result, error) {
	id, err := GetRequired[int](bag, "id")
	if err != nil {
		return Result{}, err
	}
	item, err := t.client.GetWorkItem(ctx, id)
	if err != nil {
		return clientFailure(err), nil
	}
	return Result{Success: true, Data: item}, nil
}

// UpdateWorkItemTool applies a partial update; at least one updatable
// field must be supplied or the client rejects the request locally.
type UpdateWorkItemTool struct {
	client WorkItemClient
}

func NewUpdateWorkItemTool(client WorkItemClient) *UpdateWorkItemTool {
	return &UpdateWorkItemTool{client: client}
}

func (t *UpdateWorkItemTool) Name() string { return "update_work_item" }

func (t *UpdateWorkItemTool) Description() string {
	return "Update the title, description, priority, or assignee of a work item"
}

func (t *UpdateWorkItemTool) Execute(ctx context.Context, bag *ParameterBag) (Result, error) {
	id, err := GetRequired[int](bag, "id")
	if err != nil {
		return Result{}, err
	}

	var upd azdo.WorkItemUpdate
	if title, ok := TryGet[string](bag, "title"); ok {
		upd.Title = &title
	}
	if description, ok := TryGet[string](bag, "description"); ok {
		upd.Description = &description
	}
	if priority, ok := TryGet[string](bag, "priority"); ok {
		upd.Priority = &priority
	}
	if assignedTo, ok := TryGet[string](bag, "assignedTo"); ok {
		upd.AssignedTo = &assignedTo
	}

	item, err := t.client.UpdateWorkItem(ctx, id, upd)
	if err != nil {
		return clientFailure(err), nil
	}
	return Result{Success: true, Data: item}, nil
}

// ListWorkItemsTool runs a WIQL query, or the project default when none
// is given.
type ListWorkItemsTool struct {
	client WorkItemClient
}

func NewListWorkItemsTool(client WorkItemClient) *ListWorkItemsTool {
	return &ListWorkItemsTool{client: client}
}

func (t *ListWorkItemsTool) Name() string { return "list_work_items" }

func (t *ListWorkItemsTool) Description() string {
	return "List work items matching a WIQL query, newest first by default"
}

func (t *ListWorkItemsTool) Execute(ctx context.Context, bag *ParameterBag) (Result, error) {
	query, err := Get[string](bag, "query", "")
	if err != nil {
		return Result{}, err
	}
	items, err := t.client.ListWorkItems(ctx, query)
	if err != nil {
		return clientFailure(err), nil
	}
	return Result{Success: true, Data: map[string]any{"workItems": items, "count": len(items)}}, nil
}
