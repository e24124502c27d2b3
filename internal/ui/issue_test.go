package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/edavis10/issuekit/internal/types"
)

func plainRefs() *Refs {
	return &Refs{
		Statuses: map[int64]*types.Status{
			1: {ID: 1, Name: "New"},
			2: {ID: 2, Name: "Closed", IsClosed: true},
		},
		Priorities: map[int64]*types.Priority{
			1: {ID: 1, Name: "Normal"},
		},
		Trackers: map[int64]*types.Tracker{
			1: {ID: 1, Name: "Bug"},
		},
		Users: map[int64]string{1: "Alice"},
		Fields: map[int64]*types.CustomField{
			4: {ID: 4, Name: "Severity"},
		},
	}
}

func TestRenderIssuePlain(t *testing.T) {
	t.Setenv("TRK_PLAIN", "1")

	hours := 2.5
	issue := &types.Issue{
		ID: 7, TrackerID: 1, StatusID: 1, PriorityID: 1, AuthorID: 1,
		Subject:        "Crash on start",
		DoneRatio:      40,
		EstimatedHours: &hours,
		CustomValues:   map[int64][]string{4: {"high"}},
	}
	out := RenderIssue(issue, plainRefs())

	for _, want := range []string{
		"Bug #7: Crash on start",
		"Status",
		"New",
		"Author",
		"Alice",
		"40%",
		"2.5h",
		"Severity",
		"high",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderTreeIndentsChildren(t *testing.T) {
	t.Setenv("TRK_PLAIN", "1")

	parentID := int64(1)
	issues := []*types.Issue{
		{ID: 1, TrackerID: 1, StatusID: 1, PriorityID: 1, Subject: "Epic", Lft: 1, Rgt: 4},
		{ID: 2, TrackerID: 1, StatusID: 2, PriorityID: 1, Subject: "Subtask", ParentID: &parentID, Lft: 2, Rgt: 3},
	}
	out := RenderTree(issues, plainRefs())

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("tree lines = %d, want 2:\n%s", len(lines), out)
	}
	if strings.HasPrefix(lines[0], TreeLast) {
		t.Errorf("root must not be indented: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], TreeLast) {
		t.Errorf("child line not indented: %q", lines[1])
	}
}

func TestRenderHistoryDetailLines(t *testing.T) {
	t.Setenv("TRK_PLAIN", "1")

	old := "New"
	now := "Closed"
	added := "high"
	journals := []*types.Journal{
		{
			UserID:    1,
			Notes:     "closing this",
			CreatedOn: time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC),
			Details: []types.JournalDetail{
				{Property: types.PropAttribute, PropKey: types.AttrStatusID, OldValue: &old, NewValue: &now},
				{Property: types.PropCustom, PropKey: "4", NewValue: &added},
				{Property: types.PropAttribute, PropKey: types.AttrDueDate, OldValue: &old},
			},
		},
	}
	out := RenderHistory(journals, plainRefs())

	for _, want := range []string{
		"2026-08-30 14:00 by Alice",
		"status_id changed from New to Closed",
		"Severity set to high",
		"due_date deleted",
		"closing this",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("history missing %q:\n%s", want, out)
		}
	}
}

func TestCustomFieldID(t *testing.T) {
	if got := customFieldID("42"); got != 42 {
		t.Errorf("customFieldID(42) = %d", got)
	}
	if got := customFieldID("4x"); got != 0 {
		t.Errorf("non-numeric key must resolve to 0, got %d", got)
	}
}
