package repository

import (
	"context"

	"github.com/flowgrid/flowgrid/common/db"
)

// schema is applied on boot through the bootstrap DB init hook. Types
// mirror the API payloads: graphs and execution data are stored as
// JSONB documents, credential data as encrypted text.
const schema = `
CREATE TABLE IF NOT EXISTS workflows (
	id          BIGSERIAL PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	is_active   BOOLEAN NOT NULL DEFAULT TRUE,
	nodes       JSONB NOT NULL DEFAULT '[]',
	edges       JSONB NOT NULL DEFAULT '[]',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS executions (
	id          TEXT PRIMARY KEY,
	workflow_id BIGINT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	status      TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ,
	data        JSONB,
	error       TEXT
);

CREATE INDEX IF NOT EXISTS idx_executions_workflow_id ON executions(workflow_id);

CREATE TABLE IF NOT EXISTS credentials (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	type       TEXT NOT NULL,
	data       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_credentials_type ON credentials(type);
`

// InitSchema creates the tables if they do not exist
func InitSchema(database *db.DB) error {
	_, err := database.Exec(context.Background(), schema)
	return err
}
