package lifecycle

import (
	"context"
	"fmt"

	"github.com/edavis10/issuekit/internal/journal"
	"github.com/edavis10/issuekit/internal/notify"
	"github.com/edavis10/issuekit/internal/storage"
	"github.com/edavis10/issuekit/internal/types"
)

// RemoveAttachment deletes an attachment from its issue and journals the
// removal as a detail row carrying the filename.
func (s *Service) RemoveAttachment(ctx context.Context, user *types.User, attachmentID int64) error {
	ctx, span := s.tracer.Start(ctx, "lifecycle.RemoveAttachment", spanAttrs(0, user))
	defer span.End()

	var events []notify.Event
	err := s.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		ops := s.begin(tx, user)

		attachment, err := tx.GetAttachment(ctx, attachmentID)
		if err != nil {
			return err
		}
		issue, err := ops.loadIssue(ctx, attachment.IssueID)
		if err != nil {
			return err
		}
		can, err := hasPermission(ctx, tx, user, issue.ProjectID, types.PermEditIssues)
		if err != nil {
			return err
		}
		if !can {
			return fmt.Errorf("remove attachment %d: %w", attachmentID, ErrPermissionDenied)
		}

		snap := journal.BeginChange(issue, user, "")
		snap.AddDetail(types.JournalDetail{
			Property: types.PropAttachment,
			PropKey:  fmt.Sprintf("%d", attachmentID),
			OldValue: &attachment.Filename,
		})
		if err := tx.DeleteAttachment(ctx, attachmentID); err != nil {
			return err
		}

		issue.UpdatedOn = s.now()
		if err := tx.UpdateIssue(ctx, issue); err != nil {
			return err
		}
		if j := snap.Commit(issue, issue.UpdatedOn); j != nil {
			if err := tx.InsertJournal(ctx, j); err != nil {
				return err
			}
			ops.queueIssueEvent(ctx, notify.IssueUpdated, issue, j)
		}
		events = ops.events
		return nil
	})
	if err != nil {
		return err
	}
	for _, ev := range events {
		s.dispatch(ctx, ev)
	}
	return nil
}
