package sqlstore

import "strings"

// schemaTemplate is the shared DDL. The {{PK}} marker expands to the
// dialect's auto-incrementing primary key clause; everything else is plain
// SQL accepted by both SQLite and MySQL.
const schemaTemplate = `
CREATE TABLE IF NOT EXISTS projects (
    id          {{PK}},
    identifier  VARCHAR(255) NOT NULL UNIQUE,
    name        VARCHAR(255) NOT NULL
);

CREATE TABLE IF NOT EXISTS trackers (
    id        {{PK}},
    name      VARCHAR(255) NOT NULL,
    position  INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS project_trackers (
    project_id  BIGINT NOT NULL,
    tracker_id  BIGINT NOT NULL,
    PRIMARY KEY (project_id, tracker_id)
);

CREATE TABLE IF NOT EXISTS statuses (
    id                  {{PK}},
    name                VARCHAR(255) NOT NULL,
    is_closed           INTEGER NOT NULL DEFAULT 0,
    is_default          INTEGER NOT NULL DEFAULT 0,
    position            INTEGER NOT NULL DEFAULT 1,
    default_done_ratio  INTEGER
);

CREATE TABLE IF NOT EXISTS priorities (
    id          {{PK}},
    name        VARCHAR(255) NOT NULL,
    position    INTEGER NOT NULL DEFAULT 1,
    is_default  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS principals (
    id      {{PK}},
    kind    VARCHAR(16) NOT NULL DEFAULT 'user',
    login   VARCHAR(255),
    name    VARCHAR(255) NOT NULL,
    mail    VARCHAR(255),
    admin   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS group_members (
    group_id  BIGINT NOT NULL,
    user_id   BIGINT NOT NULL,
    PRIMARY KEY (group_id, user_id)
);

CREATE TABLE IF NOT EXISTS roles (
    id           {{PK}},
    name         VARCHAR(255) NOT NULL,
    position     INTEGER NOT NULL DEFAULT 1,
    permissions  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS memberships (
    user_id     BIGINT NOT NULL,
    project_id  BIGINT NOT NULL,
    role_id     BIGINT NOT NULL,
    PRIMARY KEY (user_id, project_id, role_id)
);

CREATE TABLE IF NOT EXISTS categories (
    id              {{PK}},
    project_id      BIGINT NOT NULL,
    name            VARCHAR(255) NOT NULL,
    assigned_to_id  BIGINT
);

CREATE TABLE IF NOT EXISTS versions (
    id          {{PK}},
    project_id  BIGINT NOT NULL,
    name        VARCHAR(255) NOT NULL,
    sharing     VARCHAR(16) NOT NULL DEFAULT 'none',
    is_closed   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS issues (
    id                {{PK}},
    project_id        BIGINT NOT NULL,
    tracker_id        BIGINT NOT NULL,
    status_id         BIGINT NOT NULL,
    priority_id       BIGINT NOT NULL,
    author_id         BIGINT NOT NULL,
    assigned_to_id    BIGINT,
    category_id       BIGINT,
    fixed_version_id  BIGINT,
    parent_id         BIGINT,
    root_id           BIGINT NOT NULL DEFAULT 0,
    lft               INTEGER NOT NULL DEFAULT 1,
    rgt               INTEGER NOT NULL DEFAULT 2,
    subject           VARCHAR(255) NOT NULL,
    description       TEXT NOT NULL DEFAULT '',
    start_date        VARCHAR(10),
    due_date          VARCHAR(10),
    done_ratio        INTEGER NOT NULL DEFAULT 0,
    estimated_hours   DOUBLE PRECISION,
    lock_version      INTEGER NOT NULL DEFAULT 0,
    created_on        TIMESTAMP NOT NULL,
    updated_on        TIMESTAMP NOT NULL,
    CHECK (lft < rgt),
    CHECK (done_ratio >= 0 AND done_ratio <= 100)
);

CREATE INDEX IF NOT EXISTS idx_issues_project ON issues (project_id);
CREATE INDEX IF NOT EXISTS idx_issues_parent ON issues (parent_id);
CREATE INDEX IF NOT EXISTS idx_issues_tree ON issues (root_id, lft);

CREATE TABLE IF NOT EXISTS relations (
    id             {{PK}},
    issue_from_id  BIGINT NOT NULL,
    issue_to_id    BIGINT NOT NULL,
    relation_type  VARCHAR(32) NOT NULL,
    delay          INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_relations_from ON relations (issue_from_id);
CREATE INDEX IF NOT EXISTS idx_relations_to ON relations (issue_to_id);

CREATE TABLE IF NOT EXISTS journals (
    id          {{PK}},
    issue_id    BIGINT NOT NULL,
    user_id     BIGINT NOT NULL,
    notes       TEXT NOT NULL DEFAULT '',
    created_on  TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_journals_issue ON journals (issue_id);

CREATE TABLE IF NOT EXISTS journal_details (
    id          {{PK}},
    journal_id  BIGINT NOT NULL,
    property    VARCHAR(32) NOT NULL,
    prop_key    VARCHAR(255) NOT NULL,
    old_value   TEXT,
    new_value   TEXT
);

CREATE INDEX IF NOT EXISTS idx_journal_details_journal ON journal_details (journal_id);

CREATE TABLE IF NOT EXISTS workflow_rules (
    id             {{PK}},
    role_id        BIGINT NOT NULL,
    tracker_id     BIGINT NOT NULL,
    old_status_id  BIGINT NOT NULL,
    new_status_id  BIGINT NOT NULL,
    author         INTEGER NOT NULL DEFAULT 0,
    assignee       INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_workflow_rules_lookup ON workflow_rules (tracker_id, old_status_id);

CREATE TABLE IF NOT EXISTS field_rules (
    id          {{PK}},
    role_id     BIGINT NOT NULL,
    tracker_id  BIGINT NOT NULL,
    status_id   BIGINT NOT NULL,
    field       VARCHAR(255) NOT NULL,
    rule        VARCHAR(16) NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_field_rules_lookup ON field_rules (tracker_id, status_id);

CREATE TABLE IF NOT EXISTS custom_fields (
    id               {{PK}},
    name             VARCHAR(255) NOT NULL,
    field_format     VARCHAR(32) NOT NULL DEFAULT 'string',
    multiple         INTEGER NOT NULL DEFAULT 0,
    possible_values  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS custom_values (
    id               {{PK}},
    issue_id         BIGINT NOT NULL,
    custom_field_id  BIGINT NOT NULL,
    value            TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_custom_values_issue ON custom_values (issue_id);

CREATE TABLE IF NOT EXISTS time_entries (
    id          {{PK}},
    project_id  BIGINT NOT NULL,
    issue_id    BIGINT,
    user_id     BIGINT NOT NULL,
    hours       DOUBLE PRECISION NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_time_entries_issue ON time_entries (issue_id);

CREATE TABLE IF NOT EXISTS attachments (
    id         {{PK}},
    issue_id   BIGINT NOT NULL,
    filename   VARCHAR(255) NOT NULL,
    author_id  BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
    name   VARCHAR(255) PRIMARY KEY,
    value  TEXT NOT NULL DEFAULT ''
);
`

// Schema renders the DDL for a dialect.
func Schema(primaryKey string) string {
	return strings.ReplaceAll(schemaTemplate, "{{PK}}", primaryKey)
}
