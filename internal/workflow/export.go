package workflow

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/edavis10/issuekit/internal/storage"
	"github.com/edavis10/issuekit/internal/types"
)

// Document is the YAML shape of an exported workflow: the transition table
// and the per-field rules, addressed by name where possible so the file
// survives re-seeding.
type Document struct {
	Transitions []TransitionEntry `yaml:"transitions"`
	Fields      []FieldEntry      `yaml:"fields,omitempty"`
}

// TransitionEntry is one transition table row.
type TransitionEntry struct {
	Role     string `yaml:"role"`
	Tracker  string `yaml:"tracker"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
	Author   bool   `yaml:"author,omitempty"`
	Assignee bool   `yaml:"assignee,omitempty"`
}

// FieldEntry is one field rule row.
type FieldEntry struct {
	Role    string `yaml:"role"`
	Tracker string `yaml:"tracker"`
	Status  string `yaml:"status"`
	Field   string `yaml:"field"`
	Rule    string `yaml:"rule"`
}

// Export writes the full workflow of the database as YAML.
func Export(ctx context.Context, r storage.Reader, w io.Writer) error {
	names, err := loadNames(ctx, r)
	if err != nil {
		return err
	}

	var doc Document
	for _, tracker := range names.trackers {
		for _, from := range names.statuses {
			rules, err := r.TransitionRules(ctx, tracker.ID, from.ID, nil)
			if err != nil {
				return err
			}
			for _, rule := range rules {
				doc.Transitions = append(doc.Transitions, TransitionEntry{
					Role:     names.role(rule.RoleID),
					Tracker:  tracker.Name,
					From:     from.Name,
					To:       names.status(rule.NewStatusID),
					Author:   rule.Author,
					Assignee: rule.Assignee,
				})
			}
			fieldRules, err := r.FieldRules(ctx, tracker.ID, from.ID, nil)
			if err != nil {
				return err
			}
			for _, rule := range fieldRules {
				doc.Fields = append(doc.Fields, FieldEntry{
					Role:    names.role(rule.RoleID),
					Tracker: tracker.Name,
					Status:  from.Name,
					Field:   rule.Field,
					Rule:    string(rule.Rule),
				})
			}
		}
	}

	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(&doc)
}

// Import replaces nothing: it inserts the rules of the document, resolving
// roles, trackers and statuses by name. Unknown names fail the import.
func Import(ctx context.Context, tx storage.Tx, data []byte) (int, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("parse workflow document: %w", err)
	}
	names, err := loadNames(ctx, tx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, entry := range doc.Transitions {
		rule := &types.WorkflowRule{Author: entry.Author, Assignee: entry.Assignee}
		if rule.RoleID, err = names.roleID(entry.Role); err != nil {
			return count, err
		}
		if rule.TrackerID, err = names.trackerID(entry.Tracker); err != nil {
			return count, err
		}
		if rule.OldStatusID, err = names.statusID(entry.From); err != nil {
			return count, err
		}
		if rule.NewStatusID, err = names.statusID(entry.To); err != nil {
			return count, err
		}
		if err := tx.InsertWorkflowRule(ctx, rule); err != nil {
			return count, err
		}
		count++
	}
	for _, entry := range doc.Fields {
		kind := types.FieldRuleKind(entry.Rule)
		if kind != types.RuleReadonly && kind != types.RuleRequired {
			return count, fmt.Errorf("unknown field rule %q", entry.Rule)
		}
		rule := &types.FieldRule{Field: entry.Field, Rule: kind}
		if rule.RoleID, err = names.roleID(entry.Role); err != nil {
			return count, err
		}
		if rule.TrackerID, err = names.trackerID(entry.Tracker); err != nil {
			return count, err
		}
		if rule.StatusID, err = names.statusID(entry.Status); err != nil {
			return count, err
		}
		if err := tx.InsertFieldRule(ctx, rule); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

type nameTable struct {
	trackers []*types.Tracker
	statuses []*types.Status
	roles    []*types.Role
}

func loadNames(ctx context.Context, r storage.Reader) (*nameTable, error) {
	trackers, err := r.ListTrackers(ctx)
	if err != nil {
		return nil, err
	}
	statuses, err := r.ListStatuses(ctx)
	if err != nil {
		return nil, err
	}
	roles, err := r.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	return &nameTable{trackers: trackers, statuses: statuses, roles: roles}, nil
}

func (n *nameTable) role(id int64) string {
	for _, r := range n.roles {
		if r.ID == id {
			return r.Name
		}
	}
	return fmt.Sprintf("role-%d", id)
}

func (n *nameTable) status(id int64) string {
	for _, s := range n.statuses {
		if s.ID == id {
			return s.Name
		}
	}
	return fmt.Sprintf("status-%d", id)
}

func (n *nameTable) roleID(name string) (int64, error) {
	for _, r := range n.roles {
		if r.Name == name {
			return r.ID, nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", name)
}

func (n *nameTable) trackerID(name string) (int64, error) {
	for _, t := range n.trackers {
		if t.Name == name {
			return t.ID, nil
		}
	}
	return 0, fmt.Errorf("unknown tracker %q", name)
}

func (n *nameTable) statusID(name string) (int64, error) {
	for _, s := range n.statuses {
		if s.Name == name {
			return s.ID, nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", name)
}
