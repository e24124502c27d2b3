package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/edavis10/issuekit/internal/storage"
	"github.com/edavis10/issuekit/internal/types"
)

const storageScopeName = "github.com/edavis10/issuekit/storage"

// InstrumentedStore wraps storage.Store with OTel tracing and metrics.
// Every method gets a span and is counted in issuekit.storage.* metrics.
// Use WrapStore to create one; it returns the original store unchanged when
// telemetry is disabled.
type InstrumentedStore struct {
	inner  storage.Store
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// WrapStore returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is with zero overhead.
func WrapStore(s storage.Store) storage.Store {
	if !Enabled() {
		return s
	}
	m := Meter(storageScopeName)
	ops, _ := m.Int64Counter("issuekit.storage.operations",
		metric.WithDescription("Total storage operations executed"),
	)
	dur, _ := m.Float64Histogram("issuekit.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("issuekit.storage.errors",
		metric.WithDescription("Total storage operation errors"),
	)
	return &InstrumentedStore{
		inner:  s,
		tracer: Tracer(storageScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
	}
}

// op starts a span and records a metric for the named storage operation.
func (s *InstrumentedStore) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "storage."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedStore) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

func issueAttr(id int64) attribute.KeyValue { return attribute.Int64("issuekit.issue.id", id) }

// ── Issues and trees ────────────────────────────────────────────────────────

func (s *InstrumentedStore) GetIssue(ctx context.Context, id int64) (*types.Issue, error) {
	ctx, span, t := s.op(ctx, "GetIssue", issueAttr(id))
	v, err := s.inner.GetIssue(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) ChildIssues(ctx context.Context, parentID int64) ([]*types.Issue, error) {
	ctx, span, t := s.op(ctx, "ChildIssues", issueAttr(parentID))
	v, err := s.inner.ChildIssues(ctx, parentID)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) SubtreeIssues(ctx context.Context, rootID int64, lft, rgt int) ([]*types.Issue, error) {
	ctx, span, t := s.op(ctx, "SubtreeIssues", attribute.Int64("issuekit.root.id", rootID))
	v, err := s.inner.SubtreeIssues(ctx, rootID, lft, rgt)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) LeafIssues(ctx context.Context, rootID int64, lft, rgt int) ([]*types.Issue, error) {
	ctx, span, t := s.op(ctx, "LeafIssues", attribute.Int64("issuekit.root.id", rootID))
	v, err := s.inner.LeafIssues(ctx, rootID, lft, rgt)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) TreeNodes(ctx context.Context, rootID int64) ([]types.TreeNode, error) {
	ctx, span, t := s.op(ctx, "TreeNodes", attribute.Int64("issuekit.root.id", rootID))
	v, err := s.inner.TreeNodes(ctx, rootID)
	if err == nil {
		span.SetAttributes(attribute.Int("issuekit.result.count", len(v)))
	}
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) ProjectIssues(ctx context.Context, projectID int64) ([]*types.Issue, error) {
	ctx, span, t := s.op(ctx, "ProjectIssues", attribute.Int64("issuekit.project.id", projectID))
	v, err := s.inner.ProjectIssues(ctx, projectID)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Relations ───────────────────────────────────────────────────────────────

func (s *InstrumentedStore) GetRelation(ctx context.Context, id int64) (*types.Relation, error) {
	ctx, span, t := s.op(ctx, "GetRelation")
	v, err := s.inner.GetRelation(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) RelationsFrom(ctx context.Context, issueID int64) ([]*types.Relation, error) {
	ctx, span, t := s.op(ctx, "RelationsFrom", issueAttr(issueID))
	v, err := s.inner.RelationsFrom(ctx, issueID)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) RelationsTo(ctx context.Context, issueID int64) ([]*types.Relation, error) {
	ctx, span, t := s.op(ctx, "RelationsTo", issueAttr(issueID))
	v, err := s.inner.RelationsTo(ctx, issueID)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) RelationsOf(ctx context.Context, issueID int64) ([]*types.Relation, error) {
	ctx, span, t := s.op(ctx, "RelationsOf", issueAttr(issueID))
	v, err := s.inner.RelationsOf(ctx, issueID)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Reference data ──────────────────────────────────────────────────────────

func (s *InstrumentedStore) GetProject(ctx context.Context, id int64) (*types.Project, error) {
	ctx, span, t := s.op(ctx, "GetProject")
	v, err := s.inner.GetProject(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) FindProjectByIdentifier(ctx context.Context, identifier string) (*types.Project, error) {
	ctx, span, t := s.op(ctx, "FindProjectByIdentifier")
	v, err := s.inner.FindProjectByIdentifier(ctx, identifier)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) ListProjects(ctx context.Context) ([]*types.Project, error) {
	ctx, span, t := s.op(ctx, "ListProjects")
	v, err := s.inner.ListProjects(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) GetTracker(ctx context.Context, id int64) (*types.Tracker, error) {
	ctx, span, t := s.op(ctx, "GetTracker")
	v, err := s.inner.GetTracker(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) ListTrackers(ctx context.Context) ([]*types.Tracker, error) {
	ctx, span, t := s.op(ctx, "ListTrackers")
	v, err := s.inner.ListTrackers(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) GetStatus(ctx context.Context, id int64) (*types.Status, error) {
	ctx, span, t := s.op(ctx, "GetStatus")
	v, err := s.inner.GetStatus(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) ListStatuses(ctx context.Context) ([]*types.Status, error) {
	ctx, span, t := s.op(ctx, "ListStatuses")
	v, err := s.inner.ListStatuses(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) DefaultStatus(ctx context.Context) (*types.Status, error) {
	ctx, span, t := s.op(ctx, "DefaultStatus")
	v, err := s.inner.DefaultStatus(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) GetPriority(ctx context.Context, id int64) (*types.Priority, error) {
	ctx, span, t := s.op(ctx, "GetPriority")
	v, err := s.inner.GetPriority(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) ListPriorities(ctx context.Context) ([]*types.Priority, error) {
	ctx, span, t := s.op(ctx, "ListPriorities")
	v, err := s.inner.ListPriorities(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) DefaultPriority(ctx context.Context) (*types.Priority, error) {
	ctx, span, t := s.op(ctx, "DefaultPriority")
	v, err := s.inner.DefaultPriority(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) GetCategory(ctx context.Context, id int64) (*types.Category, error) {
	ctx, span, t := s.op(ctx, "GetCategory")
	v, err := s.inner.GetCategory(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) FindCategoryByName(ctx context.Context, projectID int64, name string) (*types.Category, error) {
	ctx, span, t := s.op(ctx, "FindCategoryByName")
	v, err := s.inner.FindCategoryByName(ctx, projectID, name)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) GetVersion(ctx context.Context, id int64) (*types.Version, error) {
	ctx, span, t := s.op(ctx, "GetVersion")
	v, err := s.inner.GetVersion(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) SharedVersions(ctx context.Context, projectID int64) ([]*types.Version, error) {
	ctx, span, t := s.op(ctx, "SharedVersions")
	v, err := s.inner.SharedVersions(ctx, projectID)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Principals and roles ────────────────────────────────────────────────────

func (s *InstrumentedStore) GetUser(ctx context.Context, id int64) (*types.User, error) {
	ctx, span, t := s.op(ctx, "GetUser")
	v, err := s.inner.GetUser(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) GetUserByLogin(ctx context.Context, login string) (*types.User, error) {
	ctx, span, t := s.op(ctx, "GetUserByLogin")
	v, err := s.inner.GetUserByLogin(ctx, login)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) UserInGroup(ctx context.Context, userID, groupID int64) (bool, error) {
	ctx, span, t := s.op(ctx, "UserInGroup")
	v, err := s.inner.UserInGroup(ctx, userID, groupID)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) UsersInGroup(ctx context.Context, groupID int64) ([]*types.User, error) {
	ctx, span, t := s.op(ctx, "UsersInGroup")
	v, err := s.inner.UsersInGroup(ctx, groupID)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) IsGroup(ctx context.Context, principalID int64) (bool, error) {
	ctx, span, t := s.op(ctx, "IsGroup")
	v, err := s.inner.IsGroup(ctx, principalID)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) RolesForUser(ctx context.Context, userID, projectID int64) ([]*types.Role, error) {
	ctx, span, t := s.op(ctx, "RolesForUser")
	v, err := s.inner.RolesForUser(ctx, userID, projectID)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) ListRoles(ctx context.Context) ([]*types.Role, error) {
	ctx, span, t := s.op(ctx, "ListRoles")
	v, err := s.inner.ListRoles(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Workflow ────────────────────────────────────────────────────────────────

func (s *InstrumentedStore) TransitionRules(ctx context.Context, trackerID, oldStatusID int64, roleIDs []int64) ([]*types.WorkflowRule, error) {
	ctx, span, t := s.op(ctx, "TransitionRules")
	v, err := s.inner.TransitionRules(ctx, trackerID, oldStatusID, roleIDs)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) FieldRules(ctx context.Context, trackerID, statusID int64, roleIDs []int64) ([]*types.FieldRule, error) {
	ctx, span, t := s.op(ctx, "FieldRules")
	v, err := s.inner.FieldRules(ctx, trackerID, statusID, roleIDs)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Journals, custom fields, attachments, settings ──────────────────────────

func (s *InstrumentedStore) JournalsForIssue(ctx context.Context, issueID int64) ([]*types.Journal, error) {
	ctx, span, t := s.op(ctx, "JournalsForIssue", issueAttr(issueID))
	v, err := s.inner.JournalsForIssue(ctx, issueID)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) ListCustomFields(ctx context.Context) ([]*types.CustomField, error) {
	ctx, span, t := s.op(ctx, "ListCustomFields")
	v, err := s.inner.ListCustomFields(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) CustomValues(ctx context.Context, issueID int64) (map[int64][]string, error) {
	ctx, span, t := s.op(ctx, "CustomValues", issueAttr(issueID))
	v, err := s.inner.CustomValues(ctx, issueID)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) GetAttachment(ctx context.Context, id int64) (*types.Attachment, error) {
	ctx, span, t := s.op(ctx, "GetAttachment")
	v, err := s.inner.GetAttachment(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) GetSetting(ctx context.Context, key string) (string, error) {
	ctx, span, t := s.op(ctx, "GetSetting", attribute.String("issuekit.setting.key", key))
	v, err := s.inner.GetSetting(ctx, key)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Transactions and lifecycle ──────────────────────────────────────────────

func (s *InstrumentedStore) RunInTransaction(ctx context.Context, fn func(tx storage.Tx) error) error {
	ctx, span, t := s.op(ctx, "RunInTransaction")
	err := s.inner.RunInTransaction(ctx, fn)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}
