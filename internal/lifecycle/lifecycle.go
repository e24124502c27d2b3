// Package lifecycle orchestrates issue mutations: create, update, move,
// copy, and relation changes. Each operation runs inside a single storage
// transaction, so tree renumbering, journals, cascades and the issue row
// itself commit or roll back together.
package lifecycle

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/edavis10/issuekit/internal/notify"
	"github.com/edavis10/issuekit/internal/storage"
	"github.com/edavis10/issuekit/internal/telemetry"
	"github.com/edavis10/issuekit/internal/types"
	"github.com/edavis10/issuekit/internal/workflow"
)

// ErrPermissionDenied is returned when the acting user lacks the project
// permission an operation requires.
var ErrPermissionDenied = errors.New("permission denied")

// ErrTrackerDisabled is returned when the issue's tracker is not enabled on
// the target project.
var ErrTrackerDisabled = errors.New("tracker is not enabled on the project")

// Edit is one attribute change-set submitted by a user. Attrs maps attribute
// names to raw string values; an empty string clears an optional reference.
// Custom maps custom field ids to their new values. Unknown or unauthorized
// keys are dropped silently.
type Edit struct {
	Attrs  map[string]string
	Custom map[int64][]string
	Notes  string

	// LockVersion, when non-nil, is the lock counter the caller last saw.
	// A mismatch with the stored row aborts with storage.ErrStaleObject.
	LockVersion *int
}

// Service coordinates the domain core over a storage backend. All methods
// are safe for concurrent use; conflicting edits are serialized by the
// optimistic lock rather than by the service.
type Service struct {
	store    storage.Store
	notifier notify.Notifier
	now      func() time.Time

	tracer  trace.Tracer
	updates metric.Int64Counter
	moves   metric.Int64Counter
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier installs a post-commit notification dispatcher.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New builds a lifecycle service over the given store.
func New(store storage.Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		notifier: notify.Discard(),
		now:      time.Now,
		tracer:   telemetry.Tracer("lifecycle"),
	}
	meter := telemetry.Meter("lifecycle")
	s.updates, _ = meter.Int64Counter("issuekit.issue.updates",
		metric.WithDescription("Issue create and update operations"))
	s.moves, _ = meter.Int64Counter("issuekit.issue.moves",
		metric.WithDescription("Issue move and copy operations"))
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the underlying read surface for query paths that need no
// orchestration (show, list, history).
func (s *Service) Store() storage.Store { return s.store }

// hasPermission reports whether the user holds the permission on the project
// through any role. Administrators hold every permission.
func hasPermission(ctx context.Context, r storage.Reader, user *types.User, projectID int64, perm types.Permission) (bool, error) {
	if user.Admin {
		return true, nil
	}
	roles, err := r.RolesForUser(ctx, user.ID, projectID)
	if err != nil {
		return false, err
	}
	for _, role := range roles {
		if role.HasPermission(perm) {
			return true, nil
		}
	}
	return false, nil
}

// applyAttributes parses and assigns a filtered attribute map onto the
// issue. Malformed values accumulate as validation errors; the caller
// decides whether to abort.
func applyAttributes(issue *types.Issue, attrs map[string]string, errs types.ValidationErrors) {
	for key, raw := range attrs {
		switch key {
		case types.AttrSubject:
			issue.Subject = raw
		case types.AttrDescription:
			issue.Description = raw
		case types.AttrTrackerID:
			if id, ok := parseID(key, raw, errs); ok && id != nil {
				issue.TrackerID = *id
			}
		case types.AttrStatusID:
			if id, ok := parseID(key, raw, errs); ok && id != nil {
				issue.StatusID = *id
			}
		case types.AttrPriorityID:
			if id, ok := parseID(key, raw, errs); ok && id != nil {
				issue.PriorityID = *id
			}
		case types.AttrCategoryID:
			if id, ok := parseID(key, raw, errs); ok {
				issue.CategoryID = id
			}
		case types.AttrAssignedToID:
			if id, ok := parseID(key, raw, errs); ok {
				issue.AssignedToID = id
			}
		case types.AttrFixedVersionID:
			if id, ok := parseID(key, raw, errs); ok {
				issue.FixedVersionID = id
			}
		case types.AttrParentID:
			if id, ok := parseID(key, raw, errs); ok {
				issue.ParentID = id
			}
		case types.AttrStartDate:
			if d, ok := parseDate(key, raw, errs); ok {
				issue.StartDate = d
			}
		case types.AttrDueDate:
			if d, ok := parseDate(key, raw, errs); ok {
				issue.DueDate = d
			}
		case types.AttrDoneRatio:
			if raw == "" {
				issue.DoneRatio = 0
				continue
			}
			n, err := strconv.Atoi(raw)
			if err != nil {
				errs.Add(key, "is not a valid number")
				continue
			}
			issue.DoneRatio = n
		case types.AttrEstimatedHours:
			if raw == "" {
				issue.EstimatedHours = nil
				continue
			}
			h, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				errs.Add(key, "is not a valid number")
				continue
			}
			issue.EstimatedHours = &h
		}
	}
}

func parseID(key, raw string, errs types.ValidationErrors) (*int64, bool) {
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		errs.Add(key, "is invalid")
		return nil, false
	}
	return &id, true
}

func parseDate(key, raw string, errs types.ValidationErrors) (*types.Date, bool) {
	if raw == "" {
		return nil, true
	}
	d, err := types.ParseDate(raw)
	if err != nil {
		errs.Add(key, "is not a valid date")
		return nil, false
	}
	return &d, true
}

// filterAttributes drops the keys the user may not set on the issue in its
// current state. Dropping is silent: a forbidden key never fails the edit.
func filterAttributes(ctx context.Context, auth *workflow.Authorizer, tx storage.Tx, user *types.User, issue *types.Issue, edit *Edit, creating bool) (map[string]string, map[int64][]string, error) {
	readonly, err := auth.ReadOnlyFields(ctx, user, issue)
	if err != nil {
		return nil, nil, err
	}

	allowed := make(map[string]string, len(edit.Attrs))
	for key, raw := range edit.Attrs {
		if !knownAttribute(key) || readonly[key] {
			continue
		}
		allowed[key] = raw
	}

	// Derived columns of a non-leaf issue are aggregates of its children
	// and cannot be edited directly.
	if !creating && !issue.Leaf() {
		delete(allowed, types.AttrPriorityID)
		delete(allowed, types.AttrStartDate)
		delete(allowed, types.AttrDueDate)
		delete(allowed, types.AttrDoneRatio)
		delete(allowed, types.AttrEstimatedHours)
	}

	// A status change must be reachable in the workflow; an unreachable
	// target resolves to "no status change".
	if raw, ok := allowed[types.AttrStatusID]; ok {
		drop := true
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			var ok2 bool
			if creating {
				ok2, err = newIssueStatusAllowed(ctx, tx, id)
			} else {
				ok2, err = auth.StatusAllowed(ctx, user, issue, id)
			}
			if err != nil {
				return nil, nil, err
			}
			drop = !ok2
		}
		if drop {
			delete(allowed, types.AttrStatusID)
		}
	}

	// Reparenting needs the subtask permission on the issue's project.
	if _, ok := allowed[types.AttrParentID]; ok && !parentChanged(issue, allowed[types.AttrParentID]) {
		delete(allowed, types.AttrParentID)
	}
	if _, ok := allowed[types.AttrParentID]; ok {
		can, err := hasPermission(ctx, tx, user, issue.ProjectID, types.PermManageSubtasks)
		if err != nil {
			return nil, nil, err
		}
		if !can {
			delete(allowed, types.AttrParentID)
		}
	}

	custom := make(map[int64][]string, len(edit.Custom))
	for id, values := range edit.Custom {
		if readonly[workflow.CustomFieldKey(id)] {
			continue
		}
		custom[id] = values
	}
	return allowed, custom, nil
}

// newIssueStatusAllowed reports whether a brand new issue may start in the
// given status. A fresh issue has no workflow history to transition from,
// so only the default status qualifies; anything else is silently dropped
// by the attribute filter.
func newIssueStatusAllowed(ctx context.Context, r storage.Reader, statusID int64) (bool, error) {
	def, err := r.DefaultStatus(ctx)
	if err != nil {
		return false, err
	}
	return def.ID == statusID, nil
}

func parentChanged(issue *types.Issue, raw string) bool {
	if raw == "" {
		return issue.ParentID != nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false
	}
	return issue.ParentID == nil || *issue.ParentID != id
}

func knownAttribute(key string) bool {
	for _, a := range types.JournaledAttributes {
		if a == key {
			return true
		}
	}
	return false
}

// checkRequiredFields verifies that every workflow-required field carries a
// value after the edit has been applied.
func checkRequiredFields(ctx context.Context, auth *workflow.Authorizer, user *types.User, issue *types.Issue, errs types.ValidationErrors) error {
	required, err := auth.RequiredFields(ctx, user, issue)
	if err != nil {
		return err
	}
	rendered := issue.AttributeStrings()
	for field := range required {
		if value, ok := rendered[field]; ok {
			if value == "" {
				errs.Add(field, "cannot be blank")
			}
			continue
		}
		if id, err := strconv.ParseInt(field, 10, 64); err == nil {
			if len(issue.CustomValues[id]) == 0 || issue.CustomValues[id][0] == "" {
				errs.Add(field, "cannot be blank")
			}
		}
	}
	return nil
}

func spanAttrs(issueID int64, user *types.User) trace.SpanStartOption {
	return trace.WithAttributes(
		attribute.Int64("issue.id", issueID),
		attribute.Int64("user.id", user.ID),
	)
}

func idOrZero(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}

func cloneStrings(values map[int64][]string) map[int64][]string {
	out := make(map[int64][]string, len(values))
	for id, vs := range values {
		out[id] = append([]string(nil), vs...)
	}
	return out
}
