package archive

import "sniff-go/internal/model"

// Database indexes archived changesets so that listing and path history do
// not need to read payloads from the vault. Finders return nil and no error
// when nothing matches.
type Database interface {
	// Changeset operations

	// CreateChangeset inserts the record and all of its entries in one
	// transaction.
	CreateChangeset(record *model.ChangesetRecord, entries []model.ChangesetEntry) error

	// FindChangeset returns the record with the given ID.
	FindChangeset(id string) (*model.ChangesetRecord, error)

	// FindChangesetsByIDPrefix returns all records whose ID starts with prefix.
	FindChangesetsByIDPrefix(prefix string) ([]*model.ChangesetRecord, error)

	// ListChangesets returns the most recently recorded changesets, newest
	// first. A limit of zero or less returns all of them.
	ListChangesets(limit int) ([]*model.ChangesetRecord, error)

	// FindEntriesForPath returns every appearance of path, newest first.
	FindEntriesForPath(path string) ([]*model.PathEntry, error)

	// Operation tracking

	// CreateOperation records the start of a mutating CLI operation.
	CreateOperation(operation, parameters string) (*model.Operation, error)

	// FinishOperation stamps the end time and final status.
	FinishOperation(id int64, status string) error

	// ListOperations returns the most recent operations, newest first.
	ListOperations(limit int) ([]*model.Operation, error)

	// MaxOperationID returns the highest operation ID, or 0 if there is none.
	// It doubles as the version of the index.
	MaxOperationID() (int64, error)

	// Maintenance

	// CheckMigrations verifies the schema is up to date.
	CheckMigrations() error

	// BackupTo writes a consistent copy of the database to destPath.
	BackupTo(destPath string) error

	// Close closes the database connection.
	Close() error
}
