package model

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestAllowList_Check_AllAllowed(t *testing.T) {
	a := NewAllowList("description", "completed")
	fields := UpdateFields{
		"description": json.RawMessage(`"buy milk"`),
		"completed":   json.RawMessage(`true`),
	}

	if err := a.Check(fields); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestAllowList_Check_RejectsUnknownField(t *testing.T) {
	a := NewAllowList("description", "completed")
	fields := UpdateFields{
		"description": json.RawMessage(`"buy milk"`),
		"owner":       json.RawMessage(`"someone-else"`),
	}

	err := a.Check(fields)
	if err == nil {
		t.Fatal("expected error for disallowed field")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Code != ErrCodeInvalidUpdates {
		t.Errorf("Code = %q, want %q", apiErr.Code, ErrCodeInvalidUpdates)
	}
}

func TestAllowList_Disallowed_SortedNames(t *testing.T) {
	a := NewAllowList("name")
	fields := UpdateFields{
		"zeta":  json.RawMessage(`1`),
		"alpha": json.RawMessage(`1`),
		"name":  json.RawMessage(`"x"`),
	}

	got := a.Disallowed(fields)
	if len(got) != 2 || got[0] != "alpha" || got[1] != "zeta" {
		t.Errorf("Disallowed = %v, want [alpha zeta]", got)
	}
}

func TestAllowList_Check_EmptyFieldsAllowed(t *testing.T) {
	a := NewAllowList("name")
	if err := a.Check(UpdateFields{}); err != nil {
		t.Errorf("expected no error for empty update, got %v", err)
	}
}

func TestTaskSortField_IsValid(t *testing.T) {
	tests := []struct {
		field TaskSortField
		want  bool
	}{
		{TaskSortCreatedAt, true},
		{TaskSortUpdatedAt, true},
		{TaskSortDescription, true},
		{TaskSortCompleted, true},
		{"owner", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := tt.field.IsValid(); got != tt.want {
			t.Errorf("TaskSortField(%q).IsValid() = %v, want %v", tt.field, got, tt.want)
		}
	}
}

func TestIsNull(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{`null`, true},
		{` null `, true},
		{`false`, false},
		{`0`, false},
		{`"null"`, false},
	}

	for _, tt := range tests {
		if got := IsNull(json.RawMessage(tt.raw)); got != tt.want {
			t.Errorf("IsNull(%s) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
