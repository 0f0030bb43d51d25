package database

import (
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/sauti/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS "user" (
    id            TEXT PRIMARY KEY,
    name          TEXT        NOT NULL,
    email         TEXT        NOT NULL UNIQUE,
    role          TEXT        NOT NULL,
    password_hash BYTEA       NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS feedback (
    id           TEXT PRIMARY KEY,
    author_id    TEXT        NOT NULL,
    is_anonymous BOOLEAN     NOT NULL,
    content      TEXT        NOT NULL,
    rating       INT         NOT NULL,
    category     TEXT        NOT NULL,
    status       TEXT        NOT NULL,
    thread       JSONB       NOT NULL DEFAULT '[]',
    created_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS feedback_author_id_idx ON feedback (author_id);
`

// Open connects to the configured Postgres database and pings it.
func Open(conf *core.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", conf.DatabaseURL)
	return db, errors.Wrap(err, "connecting to database")
}

// Migrate brings the schema up to date.
func Migrate(db *sqlx.DB) error {
	_, err := db.Exec(schema)
	return errors.Wrap(err, "migrating database")
}
