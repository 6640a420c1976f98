package notice_test

import (
	"encoding/json"
	"testing"
	"time"

	"noticeboard/internal/domain/notice"
)

// TestNotice_UnmarshalJSON_BackendShapes decodes the shapes the backend is known to send.
func TestNotice_UnmarshalJSON_BackendShapes(t *testing.T) {
	raw := `{
		"id": 42,
		"title": "IEEE Workshop",
		"content": "Machine learning basics",
		"category": "club",
		"subcategory": "IEEE",
		"priority": 2,
		"created_at": "2025-08-08T14:30:00",
		"views": 89,
		"author": "IEEE Club"
	}`
	var n notice.Notice
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if n.ID != "42" {
		t.Errorf("ID = %q, want 42", n.ID)
	}
	if n.Priority != notice.PriorityMedium {
		t.Errorf("Priority = %q, want medium", n.Priority)
	}
	want := time.Date(2025, 8, 8, 14, 30, 0, 0, time.UTC)
	if !n.CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", n.CreatedAt, want)
	}
	if n.SubcategoryName() != "IEEE" {
		t.Errorf("Subcategory = %q", n.SubcategoryName())
	}
	if n.Author != "IEEE Club" {
		t.Errorf("Author = %q", n.Author)
	}
	if err := n.Validate(); err != nil {
		t.Errorf("decoded notice should be valid: %v", err)
	}
}

// TestNotice_UnmarshalJSON_Variants covers string ids, object authors and empty subcategories.
func TestNotice_UnmarshalJSON_Variants(t *testing.T) {
	raw := `{"id":"n-7","title":"t","content":"c","category":"main","subcategory":"","priority":"HIGH",
		"created_at":"2025-08-09T10:00:00Z","expires_at":null,"views":0,"author":{"name":"Main Office"}}`
	var n notice.Notice
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if n.ID != "n-7" {
		t.Errorf("ID = %q", n.ID)
	}
	if n.Subcategory != nil {
		t.Errorf("empty subcategory should decode to nil, got %q", *n.Subcategory)
	}
	if n.Priority != notice.PriorityHigh {
		t.Errorf("Priority = %q, want high", n.Priority)
	}
	if n.Author != "Main Office" {
		t.Errorf("Author = %q", n.Author)
	}
	if !n.ExpiresAt.IsZero() {
		t.Errorf("ExpiresAt = %v, want zero", n.ExpiresAt)
	}
}

// TestNotice_UnmarshalJSON_BadTimestamp rejects unparseable creation times.
func TestNotice_UnmarshalJSON_BadTimestamp(t *testing.T) {
	var n notice.Notice
	err := json.Unmarshal([]byte(`{"id":1,"created_at":"yesterday"}`), &n)
	if err == nil {
		t.Fatal("expected error for bad created_at")
	}
}

// TestPriority_UnmarshalJSON covers names, numbers and numeric strings.
func TestPriority_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		raw  string
		want notice.Priority
		rank int
	}{
		{`"low"`, notice.PriorityLow, 1},
		{`"Medium"`, notice.PriorityMedium, 2},
		{`3`, notice.PriorityHigh, 3},
		{`"1"`, notice.PriorityLow, 1},
		{`7`, notice.Priority("7"), 0},
		{`"urgent"`, notice.Priority("urgent"), 0},
		{`null`, notice.Priority(""), 0},
	}
	for _, tt := range tests {
		var p notice.Priority
		if err := json.Unmarshal([]byte(tt.raw), &p); err != nil {
			t.Fatalf("unmarshal %s: %v", tt.raw, err)
		}
		if p != tt.want {
			t.Errorf("%s decoded to %q, want %q", tt.raw, p, tt.want)
		}
		if p.Rank() != tt.rank {
			t.Errorf("%s rank = %d, want %d", tt.raw, p.Rank(), tt.rank)
		}
	}
}

// TestDraft_MarshalJSON verifies drafts go out with a numeric priority.
func TestDraft_MarshalJSON(t *testing.T) {
	d := notice.Draft{
		Title: "t", Content: "c", Category: notice.CategoryDepartment, Subcategory: strPtr("ECE"),
		Priority: notice.PriorityHigh, ExpiresAt: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["priority"] != float64(3) {
		t.Errorf("priority = %v, want 3", out["priority"])
	}
	if out["subcategory"] != "ECE" {
		t.Errorf("subcategory = %v", out["subcategory"])
	}
	if out["expires_at"] != "2026-04-01T00:00:00Z" {
		t.Errorf("expires_at = %v", out["expires_at"])
	}

	main := notice.Draft{Title: "t", Content: "c", Category: notice.CategoryMain, Priority: notice.PriorityLow}
	b, _ = json.Marshal(main)
	out = map[string]any{}
	json.Unmarshal(b, &out)
	if v, ok := out["subcategory"]; !ok || v != nil {
		t.Errorf("main draft subcategory = %v (present=%v), want explicit null", v, ok)
	}
	if _, ok := out["expires_at"]; ok {
		t.Error("zero expiry should be omitted")
	}
}
