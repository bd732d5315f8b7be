package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	_ "modernc.org/sqlite"

	lerrors "github.com/Aman-CERP/lorerank/internal/errors"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	doc_id     INTEGER PRIMARY KEY,
	page_title TEXT NOT NULL,
	section    TEXT NOT NULL DEFAULT '',
	subsection TEXT NOT NULL DEFAULT '',
	text       TEXT NOT NULL,
	url        TEXT NOT NULL DEFAULT ''
);
`

// OpenSQLite opens (or creates) a corpus database using the pure-Go driver.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	return db, nil
}

// SaveSQLite replaces the documents table of db with c in one transaction.
func SaveSQLite(ctx context.Context, db *sql.DB, c *Corpus) error {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create corpus schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("clear documents: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (doc_id, page_title, section, subsection, text, url)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, d := range c.docs {
		if _, err := stmt.ExecContext(ctx, d.DocID, d.PageTitle, d.Section, d.Subsection, d.Text, d.URL); err != nil {
			return fmt.Errorf("insert document %d: %w", d.DocID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ReadSQLite loads every document ordered by doc_id. The ids must be
// exactly 0..N-1, otherwise rows could not line up with the vector index.
func ReadSQLite(ctx context.Context, db *sql.DB) (*Corpus, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT doc_id, page_title, section, subsection, text, url
		FROM documents
		ORDER BY doc_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.DocID, &d.PageTitle, &d.Section, &d.Subsection, &d.Text, &d.URL); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if d.DocID != len(docs) {
			return nil, lerrors.Inconsistent(
				fmt.Sprintf("corpus doc_ids are not contiguous: expected %d, found %d", len(docs), d.DocID))
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return New(docs), nil
}

// LoadSQLite opens path read-only and reads the corpus from it.
func LoadSQLite(ctx context.Context, path string) (*Corpus, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, lerrors.New(lerrors.ErrCodeFileNotFound, "corpus database not found: "+path, err)
	}
	db, err := OpenSQLite(path)
	if err != nil {
		return nil, lerrors.New(lerrors.ErrCodeCorruptCorpus, "cannot open corpus database", err).WithDetail("path", path)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Warn("corpus_db_close_failed", slog.String("path", path), slog.String("error", err.Error()))
		}
	}()

	c, err := ReadSQLite(ctx, db)
	if err != nil {
		if lerrors.GetCode(err) != "" {
			return nil, err
		}
		return nil, lerrors.New(lerrors.ErrCodeCorruptCorpus, "cannot read corpus database", err).WithDetail("path", path)
	}
	return c, nil
}
