package archive

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strings"

	"sniff-go/internal/changes"
	"sniff-go/internal/model"
)

// ErrChangesetNotFound is returned when no archived changeset matches a
// reference.
var ErrChangesetNotFound = errors.New("changeset not found")

// ErrLocked is returned when an encrypted changeset is loaded without a
// decryption context.
var ErrLocked = errors.New("changeset is encrypted; unlock the private key first")

// LatestRef resolves to the most recently recorded changeset.
const LatestRef = "latest"

// Service is the orchestration layer that archives changesets in a vault and
// keeps the local index in sync.
type Service struct {
	database  Database
	vault     Vault
	encryptor Encryptor
	hostID    string
	logger    Logger
	clock     Clock
	idgen     IDGenerator
}

// NewService creates a new Service. encryptor may be nil, in which case
// payloads are stored in plaintext.
func NewService(database Database, vault Vault, encryptor Encryptor, hostID string, logger Logger, clock Clock, idgen IDGenerator) *Service {
	return &Service{
		database:  database,
		vault:     vault,
		encryptor: encryptor,
		hostID:    hostID,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
	}
}

// Record validates a changeset, stores its payload in the vault and indexes
// every path in the database.
func (s *Service) Record(cs *changes.Changeset[changes.Timestamp]) (*model.ChangesetRecord, error) {
	if cs == nil {
		return nil, errors.New("changeset is nil")
	}
	if err := cs.Validate(); err != nil {
		return nil, fmt.Errorf("invalid changeset: %w", err)
	}

	var payload bytes.Buffer
	if err := changes.Encode(&payload, cs); err != nil {
		return nil, fmt.Errorf("encoding changeset: %w", err)
	}

	encrypted := false
	if s.encryptor != nil {
		var sealed bytes.Buffer
		if err := s.encryptor.Encrypt(&payload, &sealed); err != nil {
			return nil, fmt.Errorf("encrypting changeset: %w", err)
		}
		payload = sealed
		encrypted = true
	}

	record := &model.ChangesetRecord{
		ID:                s.idgen.New(),
		HostID:            s.hostID,
		EarliestTimestamp: cs.EarliestTimestamp,
		RecordedAt:        s.clock.Now(),
		EntryCount:        cs.Len(),
		PayloadSize:       int64(payload.Len()),
		Encrypted:         encrypted,
		Summary:           changes.Summarize(cs),
	}

	if err := s.vault.PutChangeset(s.hostID, record.ID, &payload, record.PayloadSize); err != nil {
		return nil, fmt.Errorf("storing changeset payload: %w", err)
	}

	entries := make([]model.ChangesetEntry, 0, cs.Len())
	for path, diff := range cs.All() {
		entries = append(entries, model.ChangesetEntry{
			ChangesetID: record.ID,
			Path:        path,
			Kind:        diff.Kind(),
		})
	}
	if err := s.database.CreateChangeset(record, entries); err != nil {
		return nil, fmt.Errorf("indexing changeset: %w", err)
	}

	s.logger.Info("changeset recorded",
		"id", record.ID,
		"entries", record.EntryCount,
		"bytes", record.PayloadSize,
		"encrypted", record.Encrypted)
	return record, nil
}

// Resolve turns a reference into a changeset record. A reference is either
// "latest", a full changeset ID, or a unique ID prefix.
func (s *Service) Resolve(ref string) (*model.ChangesetRecord, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("empty changeset reference")
	}

	if ref == LatestRef {
		records, err := s.database.ListChangesets(1)
		if err != nil {
			return nil, fmt.Errorf("listing changesets: %w", err)
		}
		if len(records) == 0 {
			return nil, fmt.Errorf("%w: archive is empty", ErrChangesetNotFound)
		}
		return records[0], nil
	}

	record, err := s.database.FindChangeset(ref)
	if err != nil {
		return nil, fmt.Errorf("finding changeset: %w", err)
	}
	if record != nil {
		return record, nil
	}

	matches, err := s.database.FindChangesetsByIDPrefix(ref)
	if err != nil {
		return nil, fmt.Errorf("finding changeset by prefix: %w", err)
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrChangesetNotFound, ref)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous changeset reference %q matches %d changesets", ref, len(matches))
	}
}

// Load fetches a changeset payload from the vault and decodes it. dctx is
// required only when the changeset was stored encrypted.
func (s *Service) Load(record *model.ChangesetRecord, dctx DecryptionContext) (*changes.Changeset[changes.Timestamp], error) {
	if record.Encrypted && dctx == nil {
		return nil, ErrLocked
	}

	var payload bytes.Buffer
	if err := s.vault.GetChangeset(record.HostID, record.ID, &payload); err != nil {
		return nil, fmt.Errorf("fetching changeset payload: %w", err)
	}
	if int64(payload.Len()) != record.PayloadSize {
		return nil, fmt.Errorf("payload size mismatch for %s: expected %d, got %d", record.ID, record.PayloadSize, payload.Len())
	}

	if record.Encrypted {
		var plain bytes.Buffer
		if err := dctx.Decrypt(&payload, &plain); err != nil {
			return nil, fmt.Errorf("decrypting changeset: %w", err)
		}
		payload = plain
	}

	cs, err := changes.Decode(&payload)
	if err != nil {
		return nil, fmt.Errorf("decoding changeset %s: %w", record.ID, err)
	}
	if err := cs.Validate(); err != nil {
		return nil, fmt.Errorf("archived changeset %s is invalid: %w", record.ID, err)
	}

	s.logger.Debug("changeset loaded", "id", record.ID, "entries", cs.Len())
	return cs, nil
}

// List returns the most recent changeset records, newest first.
func (s *Service) List(limit int) ([]*model.ChangesetRecord, error) {
	records, err := s.database.ListChangesets(limit)
	if err != nil {
		return nil, fmt.Errorf("listing changesets: %w", err)
	}
	return records, nil
}

// PathHistory returns every archived change to path, newest first.
func (s *Service) PathHistory(path string) ([]*model.PathEntry, error) {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil, errors.New("empty path")
	}
	entries, err := s.database.FindEntriesForPath(path)
	if err != nil {
		return nil, fmt.Errorf("finding path history: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("path has no recorded changes: %s", path)
	}
	return entries, nil
}

// ArchiveReport describes disagreements between the vault and the index.
type ArchiveReport struct {
	Indexed  int      // Records in the index for this host
	Stored   int      // Payloads in the vault for this host
	Orphaned []string // Payloads in the vault with no index record
	Missing  []string // Index records with no payload in the vault
}

// OK reports whether vault and index agree.
func (r *ArchiveReport) OK() bool {
	return len(r.Orphaned) == 0 && len(r.Missing) == 0
}

// CheckArchive compares the payloads in the vault with the local index.
func (s *Service) CheckArchive() (*ArchiveReport, error) {
	stored, err := s.vault.ListChangesets(s.hostID)
	if err != nil {
		return nil, fmt.Errorf("listing vault payloads: %w", err)
	}
	records, err := s.database.ListChangesets(0)
	if err != nil {
		return nil, fmt.Errorf("listing changesets: %w", err)
	}

	indexed := make(map[string]bool, len(records))
	for _, r := range records {
		if r.HostID == s.hostID {
			indexed[r.ID] = true
		}
	}

	report := &ArchiveReport{Indexed: len(indexed), Stored: len(stored)}
	inVault := make(map[string]bool, len(stored))
	for _, id := range stored {
		inVault[id] = true
		if !indexed[id] {
			report.Orphaned = append(report.Orphaned, id)
		}
	}
	for id := range indexed {
		if !inVault[id] {
			report.Missing = append(report.Missing, id)
		}
	}
	slices.Sort(report.Missing)

	if !report.OK() {
		s.logger.Warn("archive inconsistent",
			"orphaned", len(report.Orphaned),
			"missing", len(report.Missing))
	}
	return report, nil
}

// History returns the most recent mutating operations, newest first.
func (s *Service) History(limit int) ([]*model.Operation, error) {
	ops, err := s.database.ListOperations(limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}
