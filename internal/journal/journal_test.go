package journal

import (
	"testing"
	"time"

	"github.com/edavis10/issuekit/internal/types"
)

var now = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func baseIssue() *types.Issue {
	return &types.Issue{
		ID:         7,
		ProjectID:  1,
		TrackerID:  1,
		StatusID:   1,
		PriorityID: 2,
		AuthorID:   3,
		Subject:    "original subject",
	}
}

func TestCommitRecordsAttributeDiffs(t *testing.T) {
	issue := baseIssue()
	user := &types.User{ID: 3}
	snap := BeginChange(issue, user, "changed it")

	issue.Subject = "new subject"
	issue.StatusID = 2

	j := snap.Commit(issue, now)
	if j == nil {
		t.Fatal("no journal for a real change")
	}
	if j.Notes != "changed it" || j.UserID != 3 || j.IssueID != 7 {
		t.Errorf("journal header = %+v", j)
	}
	if len(j.Details) != 2 {
		t.Fatalf("details = %+v, want 2", j.Details)
	}
	byKey := map[string]types.JournalDetail{}
	for _, d := range j.Details {
		byKey[d.PropKey] = d
	}
	subj := byKey[types.AttrSubject]
	if subj.OldValue == nil || *subj.OldValue != "original subject" {
		t.Errorf("old subject = %v", subj.OldValue)
	}
	if subj.NewValue == nil || *subj.NewValue != "new subject" {
		t.Errorf("new subject = %v", subj.NewValue)
	}
	status := byKey[types.AttrStatusID]
	if status.OldValue == nil || *status.OldValue != "1" || *status.NewValue != "2" {
		t.Errorf("status detail = %+v", status)
	}
}

func TestCommitDiscardsEmptyJournal(t *testing.T) {
	issue := baseIssue()
	snap := BeginChange(issue, &types.User{ID: 3}, "   ")
	if j := snap.Commit(issue, now); j != nil {
		t.Errorf("journal for no-op edit: %+v", j)
	}
}

func TestCommitNotesOnly(t *testing.T) {
	issue := baseIssue()
	snap := BeginChange(issue, &types.User{ID: 3}, "just a comment")
	j := snap.Commit(issue, now)
	if j == nil || len(j.Details) != 0 {
		t.Fatalf("notes-only journal = %+v", j)
	}
}

func TestDescriptionEOLNormalizationIsNotAChange(t *testing.T) {
	issue := baseIssue()
	issue.Description = "line one\r\nline two\rline three"
	snap := BeginChange(issue, &types.User{ID: 3}, "")

	issue.Description = "line one\nline two\nline three"
	if j := snap.Commit(issue, now); j != nil {
		t.Errorf("EOL-only edit journaled: %+v", j.Details)
	}

	issue.Description = "line one\nline 2\nline three"
	j := snap.Commit(issue, now)
	if j == nil || len(j.Details) != 1 {
		t.Fatalf("real description edit lost: %+v", j)
	}
}

func TestCustomValueBlankToBlank(t *testing.T) {
	issue := baseIssue()
	issue.CustomValues = map[int64][]string{4: {""}}
	snap := BeginChange(issue, &types.User{ID: 3}, "")

	issue.CustomValues = map[int64][]string{}
	if j := snap.Commit(issue, now); j != nil {
		t.Errorf("blank-to-blank custom value journaled: %+v", j.Details)
	}
}

func TestCustomValueScalarChange(t *testing.T) {
	issue := baseIssue()
	issue.CustomValues = map[int64][]string{4: {"red"}}
	snap := BeginChange(issue, &types.User{ID: 3}, "")

	issue.CustomValues = map[int64][]string{4: {"blue"}}
	j := snap.Commit(issue, now)
	if j == nil || len(j.Details) != 1 {
		t.Fatalf("details = %+v", j)
	}
	d := j.Details[0]
	if d.Property != types.PropCustom || d.PropKey != "4" {
		t.Errorf("detail key = %+v", d)
	}
	if *d.OldValue != "red" || *d.NewValue != "blue" {
		t.Errorf("detail values = %v -> %v", d.OldValue, d.NewValue)
	}
}

func TestCustomValueSetDifference(t *testing.T) {
	issue := baseIssue()
	issue.CustomValues = map[int64][]string{4: {"a", "b", "c"}}
	snap := BeginChange(issue, &types.User{ID: 3}, "")

	issue.CustomValues = map[int64][]string{4: {"b", "c", "d"}}
	j := snap.Commit(issue, now)
	if j == nil || len(j.Details) != 2 {
		t.Fatalf("details = %+v, want one removal and one addition", j)
	}
	var removed, added bool
	for _, d := range j.Details {
		if d.OldValue != nil && *d.OldValue == "a" && d.NewValue == nil {
			removed = true
		}
		if d.NewValue != nil && *d.NewValue == "d" && d.OldValue == nil {
			added = true
		}
	}
	if !removed || !added {
		t.Errorf("set diff details = %+v", j.Details)
	}
}

func TestCommitReArmsSnapshot(t *testing.T) {
	issue := baseIssue()
	snap := BeginChange(issue, &types.User{ID: 3}, "")

	issue.Subject = "edited once"
	if j := snap.Commit(issue, now); j == nil {
		t.Fatal("first commit lost")
	}
	// second commit with no further edits must record nothing
	if j := snap.Commit(issue, now.Add(time.Minute)); j != nil {
		t.Errorf("second commit duplicated details: %+v", j.Details)
	}

	issue.Subject = "edited twice"
	j := snap.Commit(issue, now.Add(2*time.Minute))
	if j == nil || len(j.Details) != 1 {
		t.Fatalf("third commit = %+v", j)
	}
	if *j.Details[0].OldValue != "edited once" {
		t.Errorf("old value = %q, want the re-armed baseline", *j.Details[0].OldValue)
	}
}

func TestAddDetailExtraRows(t *testing.T) {
	issue := baseIssue()
	snap := BeginChange(issue, &types.User{ID: 3}, "")
	old := "report.pdf"
	snap.AddDetail(types.JournalDetail{
		Property: types.PropAttachment,
		PropKey:  "12",
		OldValue: &old,
	})
	j := snap.Commit(issue, now)
	if j == nil || len(j.Details) != 1 {
		t.Fatalf("extra detail lost: %+v", j)
	}
	if j.Details[0].Property != types.PropAttachment {
		t.Errorf("detail = %+v", j.Details[0])
	}
	// extras must not survive the re-arm
	if j := snap.Commit(issue, now.Add(time.Minute)); j != nil {
		t.Errorf("extra detail duplicated: %+v", j.Details)
	}
}
