package azdo

import (
	"fmt"
	"strconv"
	"strings"
)

// patchOp is a single JSON-Patch operation. Create and update bodies are
// arrays of these sent as application/json-patch+json.
type patchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value"`
}

func addField(name string, value any) patchOp {
	return patchOp{Op: "add", Path: "/fields/" + name, Value: value}
}

func createPatchDocument(req WorkItemRequest) ([]patchOp, error) {
	doc := []patchOp{addField(fieldTitle, req.Title)}
	if req.Description != nil {
		doc = append(doc, addField(fieldDescription, *req.Description))
	}
	if req.Priority != nil {
		ord, err := priorityOrdinal(*req.Priority)
		if err != nil {
			return nil, err
		}
		doc = append(doc, addField(fieldPriority, ord))
	}
	if req.AssignedTo != nil {
		doc = append(doc, addField(fieldAssignedTo, *req.AssignedTo))
	}
	return doc, nil
}

func updatePatchDocument(u WorkItemUpdate) ([]patchOp, error) {
	doc := make([]patchOp, 0, 4)
	if u.Title != nil {
		doc = append(doc, addField(fieldTitle, *u.Title))
	}
	if u.Description != nil {
		doc = append(doc, addField(fieldDescription, *u.Description))
	}
	if u.Priority != nil {
		ord, err := priorityOrdinal(*u.Priority)
		if err != nil {
			return nil, err
		}
		doc = append(doc, addField(fieldPriority, ord))
	}
	if u.AssignedTo != nil {
		doc = append(doc, addField(fieldAssignedTo, *u.AssignedTo))
	}
	return doc, nil
}

var priorityOrdinals = map[string]int{
	"critical": 1,
	"high":     2,
	"medium":   3,
	"low":      4,
}

// priorityOrdinal normalizes a priority label to the numeric field value.
// Numeric strings in the 1..4 range pass through.
func priorityOrdinal(label string) (int, error) {
	key := strings.ToLower(strings.TrimSpace(label))
	if ord, ok := priorityOrdinals[key]; ok {
		return ord, nil
	}
	if n, err := strconv.Atoi(key); err == nil && n >= 1 && n <= 4 {
		return n, nil
	}
	return 0, &ValidationError{Message: fmt.Sprintf("unknown priority %q, expected critical/high/medium/low or 1-4", label)}
}

func priorityLabel(ordinal int) string {
	for label, ord := range priorityOrdinals {
		if ord == ordinal {
			return label
		}
	}
	return strconv.Itoa(ordinal)
}
