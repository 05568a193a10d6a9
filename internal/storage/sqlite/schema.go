package sqlite

// schema is executed by Open on every start. Every statement is IF NOT
// EXISTS, so an existing database keeps its tables and only missing ones are
// created. After it runs, checkMigrationHead (see migrations.go) records
// 0001_initial on an empty schema_migrations table and refuses a database
// whose recorded migrations include a name this binary does not know.
const schema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS schema_migrations (
	name TEXT PRIMARY KEY,
	applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL CHECK(length(title) > 0),
	description TEXT,
	key TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'active',
	version INTEGER NOT NULL DEFAULT 1,
	next_work_item_number INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	created_by TEXT NOT NULL DEFAULT '',
	updated_by TEXT NOT NULL DEFAULT '',
	deleted_at INTEGER
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_projects_key_active
	ON projects(key) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS work_items (
	id TEXT PRIMARY KEY,
	item_type TEXT NOT NULL,
	project_id TEXT NOT NULL REFERENCES projects(id),
	parent_id TEXT REFERENCES work_items(id),
	position INTEGER NOT NULL DEFAULT 0,
	title TEXT NOT NULL CHECK(length(title) > 0),
	description TEXT,
	status TEXT NOT NULL DEFAULT 'backlog',
	priority TEXT NOT NULL DEFAULT 'medium',
	story_points REAL,
	assignee_id TEXT,
	sprint_id TEXT REFERENCES sprints(id),
	item_number INTEGER NOT NULL,
	version INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	created_by TEXT NOT NULL DEFAULT '',
	updated_by TEXT NOT NULL DEFAULT '',
	deleted_at INTEGER,
	CHECK (parent_id IS NULL OR parent_id != id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_work_items_number_active
	ON work_items(project_id, item_number) WHERE deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_work_items_project ON work_items(project_id);
CREATE INDEX IF NOT EXISTS idx_work_items_parent ON work_items(parent_id);
CREATE INDEX IF NOT EXISTS idx_work_items_sprint ON work_items(sprint_id);
CREATE INDEX IF NOT EXISTS idx_work_items_updated ON work_items(project_id, updated_at);

CREATE TABLE IF NOT EXISTS sprints (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id),
	name TEXT NOT NULL CHECK(length(name) > 0),
	goal TEXT,
	start_date INTEGER NOT NULL,
	end_date INTEGER NOT NULL CHECK(end_date >= start_date),
	status TEXT NOT NULL DEFAULT 'planned',
	velocity REAL,
	version INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	created_by TEXT NOT NULL DEFAULT '',
	updated_by TEXT NOT NULL DEFAULT '',
	deleted_at INTEGER
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_sprints_active_per_project
	ON sprints(project_id) WHERE status = 'active' AND deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_sprints_project ON sprints(project_id);

CREATE TABLE IF NOT EXISTS comments (
	id TEXT PRIMARY KEY,
	work_item_id TEXT NOT NULL REFERENCES work_items(id),
	content TEXT NOT NULL CHECK(length(content) > 0),
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	created_by TEXT NOT NULL DEFAULT '',
	updated_by TEXT NOT NULL DEFAULT '',
	deleted_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_comments_work_item ON comments(work_item_id);

CREATE TABLE IF NOT EXISTS time_entries (
	id TEXT PRIMARY KEY,
	work_item_id TEXT NOT NULL REFERENCES work_items(id),
	user_id TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	ended_at INTEGER,
	duration_seconds INTEGER,
	description TEXT,
	version INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	created_by TEXT NOT NULL DEFAULT '',
	updated_by TEXT NOT NULL DEFAULT '',
	deleted_at INTEGER
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_time_entries_running_per_user
	ON time_entries(user_id) WHERE ended_at IS NULL AND deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_time_entries_work_item ON time_entries(work_item_id);

CREATE TABLE IF NOT EXISTS dependencies (
	id TEXT PRIMARY KEY,
	blocking_item_id TEXT NOT NULL REFERENCES work_items(id),
	blocked_item_id TEXT NOT NULL REFERENCES work_items(id),
	type TEXT NOT NULL DEFAULT 'blocks',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	created_by TEXT NOT NULL DEFAULT '',
	updated_by TEXT NOT NULL DEFAULT '',
	deleted_at INTEGER,
	CHECK (blocking_item_id != blocked_item_id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_dependencies_pair_active
	ON dependencies(blocking_item_id, blocked_item_id) WHERE deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_dependencies_blocking ON dependencies(blocking_item_id);
CREATE INDEX IF NOT EXISTS idx_dependencies_blocked ON dependencies(blocked_item_id);

CREATE TABLE IF NOT EXISTS activity_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	action TEXT NOT NULL,
	field_name TEXT,
	old_value TEXT,
	new_value TEXT,
	user_id TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	comment TEXT
);

CREATE INDEX IF NOT EXISTS idx_activity_log_entity ON activity_log(entity_type, entity_id, timestamp);

CREATE TABLE IF NOT EXISTS idempotency_records (
	message_id TEXT PRIMARY KEY,
	operation TEXT NOT NULL,
	serialized_result BLOB NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_idempotency_created ON idempotency_records(created_at);

CREATE TABLE IF NOT EXISTS swim_lanes (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id),
	name TEXT NOT NULL,
	position INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS project_members (
	project_id TEXT NOT NULL REFERENCES projects(id),
	user_id TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'member',
	PRIMARY KEY (project_id, user_id)
);

CREATE TABLE IF NOT EXISTS llm_context (
	id TEXT PRIMARY KEY,
	work_item_id TEXT NOT NULL REFERENCES work_items(id),
	content TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
`
