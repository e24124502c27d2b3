// Package journal produces the append-only audit trail: it snapshots an
// issue's persisted attributes before a batch of edits and, at commit time,
// computes the structured diff that becomes a Journal row.
package journal

import (
	"strconv"
	"strings"
	"time"

	"github.com/edavis10/issuekit/internal/types"
)

// Snapshot is the pending state of one logical edit: the attribute and
// custom-field values captured before mutation, plus any extra details
// (attachment removals) queued during the edit.
type Snapshot struct {
	issueID int64
	userID  int64
	notes   string
	attrs   map[string]string
	custom  map[int64][]string
	extra   []types.JournalDetail
}

// BeginChange captures the issue's current persisted scalar attributes and
// custom-field values. Call before applying an attribute change-set.
func BeginChange(issue *types.Issue, user *types.User, notes string) *Snapshot {
	return &Snapshot{
		issueID: issue.ID,
		userID:  user.ID,
		notes:   notes,
		attrs:   issue.AttributeStrings(),
		custom:  copyValues(issue.CustomValues),
	}
}

// AddDetail queues an extra detail row (attachment removal and the like)
// for the next commit.
func (s *Snapshot) AddDetail(d types.JournalDetail) {
	s.extra = append(s.extra, d)
}

// Notes returns the free-text notes attached to the pending edit.
func (s *Snapshot) Notes() string { return s.notes }

// Commit diffs the mutated issue against the snapshot and returns the
// resulting journal, or nil when there is nothing to record (no detail and
// blank notes). The snapshot is re-armed against the mutated state, so a
// second commit without new edits records nothing already journaled.
func (s *Snapshot) Commit(issue *types.Issue, now time.Time) *types.Journal {
	j := &types.Journal{
		IssueID:   issue.ID,
		UserID:    s.userID,
		Notes:     s.notes,
		CreatedOn: now,
	}

	after := issue.AttributeStrings()
	for _, attr := range types.JournaledAttributes {
		before := s.attrs[attr]
		current := after[attr]
		if !attributeChanged(attr, before, current) {
			continue
		}
		j.Details = append(j.Details, types.JournalDetail{
			Property: types.PropAttribute,
			PropKey:  attr,
			OldValue: valuePtr(before),
			NewValue: valuePtr(current),
		})
	}

	j.Details = append(j.Details, s.customDetails(issue.CustomValues)...)
	j.Details = append(j.Details, s.extra...)

	// re-arm: a later commit in the same logical edit must not duplicate
	// what this one recorded
	s.attrs = after
	s.custom = copyValues(issue.CustomValues)
	s.extra = nil

	if j.Empty() {
		return nil
	}
	if s.issueID == 0 {
		// creation: the snapshot was taken on an unsaved issue; diffs
		// against the zero row are not journaled
		j.IssueID = issue.ID
	}
	return j
}

// customDetails diffs custom-field values. Single values compare directly,
// with blank-to-blank treated as unchanged; multi-valued fields diff as a
// set difference and emit one detail per added and per removed value.
func (s *Snapshot) customDetails(after map[int64][]string) []types.JournalDetail {
	ids := make(map[int64]bool, len(s.custom)+len(after))
	for id := range s.custom {
		ids[id] = true
	}
	for id := range after {
		ids[id] = true
	}

	var details []types.JournalDetail
	for id := range ids {
		key := customKey(id)
		before, current := s.custom[id], after[id]
		if len(before) > 1 || len(current) > 1 {
			for _, removed := range difference(before, current) {
				details = append(details, types.JournalDetail{
					Property: types.PropCustom,
					PropKey:  key,
					OldValue: valuePtr(removed),
				})
			}
			for _, added := range difference(current, before) {
				details = append(details, types.JournalDetail{
					Property: types.PropCustom,
					PropKey:  key,
					NewValue: valuePtr(added),
				})
			}
			continue
		}
		b := first(before)
		c := first(current)
		if b == c || (b == "" && c == "") {
			continue
		}
		details = append(details, types.JournalDetail{
			Property: types.PropCustom,
			PropKey:  key,
			OldValue: valuePtr(b),
			NewValue: valuePtr(c),
		})
	}
	return details
}

// attributeChanged compares one column's rendered values. The description
// column tolerates line-ending differences: an edit consisting only of
// CRLF/CR/LF normalization is not a change.
func attributeChanged(attr, before, after string) bool {
	if before == after {
		return false
	}
	if attr == types.AttrDescription {
		return normalizeEOL(before) != normalizeEOL(after)
	}
	return true
}

func normalizeEOL(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// difference returns the members of a that are not in b, blanks dropped.
func difference(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, v := range b {
		inB[v] = true
	}
	var out []string
	for _, v := range a {
		if v == "" || inB[v] {
			continue
		}
		out = append(out, v)
	}
	return out
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func valuePtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func customKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

func copyValues(values map[int64][]string) map[int64][]string {
	out := make(map[int64][]string, len(values))
	for id, vs := range values {
		out[id] = append([]string(nil), vs...)
	}
	return out
}
