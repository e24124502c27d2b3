// Package notify delivers post-commit notifications for issue changes.
// Events are dispatched to configured channels (log, email, webhook) after
// the surrounding transaction has committed; delivery failures never undo
// the change.
package notify

import (
	"context"
	"time"

	"github.com/edavis10/issuekit/internal/types"
)

// Kind names the change an event describes.
type Kind string

// Event kinds
const (
	IssueCreated    Kind = "issue_created"
	IssueUpdated    Kind = "issue_updated"
	IssueMoved      Kind = "issue_moved"
	IssueCopied     Kind = "issue_copied"
	RelationAdded   Kind = "relation_added"
	RelationRemoved Kind = "relation_removed"
)

// Event is one committed change. Journal is nil for relation events;
// Recipients holds the mail addresses of the watchers of the change (author
// and assignee, de-duplicated).
type Event struct {
	Kind       Kind            `json:"kind"`
	Issue      *types.Issue    `json:"issue,omitempty"`
	Journal    *types.Journal  `json:"journal,omitempty"`
	Relation   *types.Relation `json:"relation,omitempty"`
	Actor      *types.User     `json:"actor,omitempty"`
	Recipients []string        `json:"recipients,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Notifier receives committed events. Implementations must tolerate being
// called concurrently.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

type discard struct{}

func (discard) Notify(context.Context, Event) error { return nil }

// Discard returns a notifier that drops every event.
func Discard() Notifier { return discard{} }

// Func adapts a function to the Notifier interface.
type Func func(ctx context.Context, event Event) error

// Notify implements Notifier.
func (f Func) Notify(ctx context.Context, event Event) error { return f(ctx, event) }

// Recipients computes the notification list for an issue: the author and
// the assignee (expanded through groups), de-duplicated, blank mails
// dropped.
func Recipients(ctx context.Context, src RecipientSource, issue *types.Issue) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(u *types.User) {
		if u == nil || u.Mail == "" || seen[u.Mail] {
			return
		}
		seen[u.Mail] = true
		out = append(out, u.Mail)
	}

	author, err := src.GetUser(ctx, issue.AuthorID)
	if err == nil {
		add(author)
	}
	if issue.AssignedToID != nil {
		group, err := src.IsGroup(ctx, *issue.AssignedToID)
		if err != nil {
			return out, err
		}
		if group {
			members, err := src.UsersInGroup(ctx, *issue.AssignedToID)
			if err != nil {
				return out, err
			}
			for _, m := range members {
				add(m)
			}
		} else if assignee, err := src.GetUser(ctx, *issue.AssignedToID); err == nil {
			add(assignee)
		}
	}
	return out, nil
}

// RecipientSource is the slice of the storage surface recipient resolution
// needs.
type RecipientSource interface {
	GetUser(ctx context.Context, id int64) (*types.User, error)
	IsGroup(ctx context.Context, principalID int64) (bool, error)
	UsersInGroup(ctx context.Context, groupID int64) ([]*types.User, error)
}
