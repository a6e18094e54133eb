package azdo

// Wire field reference names used by the work-item tracking API.
const (
	fieldTitle        = "System.Title"
	fieldDescription  = "System.Description"
	fieldWorkItemType = "System.WorkItemType"
	fieldState        = "System.State"
	fieldAssignedTo   = "System.AssignedTo"
	fieldPriority     = "Microsoft.VSTS.Common.Priority"
)

// WorkItemRequest describes a work item to create. Type is supplied via
// the URL path segment on create and never patched.
type WorkItemRequest struct {
	Title       string
	Type        string
	Description *string
	Priority    *string
	AssignedTo  *string
}

// WorkItemUpdate carries the fields of a partial update; nil fields are
// omitted from the patch document.
type WorkItemUpdate struct {
	Title       *string
	Description *string
	Priority    *string
	AssignedTo  *string
}

// WorkItem is the domain view of a tracked work item.
type WorkItem struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Type        string `json:"workItemType"`
	State       string `json:"state"`
	Priority    string `json:"priority,omitempty"`
	AssignedTo  string `json:"assignedTo,omitempty"`
	URL         string `json:"url,omitempty"`
}

type wireWorkItem struct {
	ID     int            `json:"id"`
	Fields map[string]any `json:"fields"`
	URL    string         `json:"url"`
}

func mapWorkItem(w *wireWorkItem) *WorkItem {
	item := &WorkItem{
		ID:          w.ID,
		Title:       fieldString(w.Fields, fieldTitle),
		Description: fieldString(w.Fields, fieldDescription),
		Type:        fieldString(w.Fields, fieldWorkItemType),
		State:       fieldString(w.Fields, fieldState),
		URL:         w.URL,
	}
	if ord, ok := w.Fields[fieldPriority].(float64); ok {
		item.Priority = priorityLabel(int(ord))
	}
	item.AssignedTo = identityDisplayName(w.Fields[fieldAssignedTo])
	return item
}

func fieldString(fields map[string]any, name string) string {
	s, _ := fields[name].(string)
	return s
}

// identityDisplayName unwraps the identity object the API returns for
// person fields; plain strings pass through.
func identityDisplayName(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case map[string]any:
		if name, ok := id["displayName"].(string); ok {
			return name
		}
		if name, ok := id["uniqueName"].(string); ok {
			return name
		}
	}
	return ""
}
