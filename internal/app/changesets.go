package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"sniff-go/internal/archive"
	"sniff-go/internal/changes"
	"sniff-go/internal/config"
	"sniff-go/internal/filter"
	"sniff-go/internal/model"
	"sniff-go/internal/render"
)

// StdinPath names standard input wherever a changeset file is expected.
const StdinPath = "-"

// ErrEncryptionDisabled is returned by key operations when the config
// selects encryption type "none".
var ErrEncryptionDisabled = errors.New("encryption is disabled in the config")

// ReadChangeset decodes and validates a changeset from a file, or from stdin
// when path is "-".
func ReadChangeset(path string, stdin io.Reader) (*changes.Changeset[changes.Timestamp], error) {
	r := stdin
	if path != StdinPath {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening changeset file: %w", err)
		}
		defer f.Close()
		r = f
	}

	cs, err := changes.Decode(r)
	if err != nil {
		return nil, err
	}
	if err := cs.Validate(); err != nil {
		return nil, fmt.Errorf("invalid changeset: %w", err)
	}
	return cs, nil
}

// RecordFile reads a changeset from path (or stdin for "-") and archives it.
func (a *App) RecordFile(path string, stdin io.Reader) (*model.ChangesetRecord, error) {
	if err := a.persistOperation(); err != nil {
		return nil, err
	}

	record, err := a.record(path, stdin)
	if err != nil {
		a.op.Fail()
		return nil, err
	}
	return record, nil
}

func (a *App) record(path string, stdin io.Reader) (*model.ChangesetRecord, error) {
	if a.encryptor != nil && !a.encryptor.IsConfigured() {
		return nil, errors.New("encryption keys are not set up: run 'sniff key setup' first")
	}
	cs, err := ReadChangeset(path, stdin)
	if err != nil {
		return nil, err
	}
	return a.service.Record(cs)
}

// Resolve finds the archived changeset a reference points to.
func (a *App) Resolve(ref string) (*model.ChangesetRecord, error) {
	return a.service.Resolve(ref)
}

// Unlock opens the private key so encrypted changesets can be shown.
func (a *App) Unlock(passphrase string) (archive.DecryptionContext, error) {
	if a.encryptor == nil {
		return nil, ErrEncryptionDisabled
	}
	return a.encryptor.Unlock(passphrase)
}

// Show loads the changeset for record and renders it to w. dctx may be nil
// for plaintext changesets.
func (a *App) Show(w io.Writer, record *model.ChangesetRecord, dctx archive.DecryptionContext, opts ShowOptions) error {
	cs, err := a.service.Load(record, dctx)
	if err != nil {
		return err
	}
	return RenderChangeset(w, cs, a.cfg, opts)
}

// List returns the most recent changeset records, newest first. A limit of
// zero or less returns all of them.
func (a *App) List(limit int) ([]*model.ChangesetRecord, error) {
	return a.service.List(limit)
}

// PathHistory returns every archived change to a path, newest first.
func (a *App) PathHistory(path string) ([]*model.PathEntry, error) {
	return a.service.PathHistory(path)
}

// History returns the most recent mutating operations.
func (a *App) History(limit int) ([]*model.Operation, error) {
	return a.service.History(limit)
}

// CheckArchive verifies the vault and compares its payloads with the index.
func (a *App) CheckArchive() (*archive.ArchiveReport, error) {
	if err := a.vault.ValidateSetup(); err != nil {
		return nil, fmt.Errorf("vault %s: %w", a.cfg.Vaults[0].Name, err)
	}
	return a.service.CheckArchive()
}

// SetupKeys generates the encryption key pair.
func (a *App) SetupKeys(passphrase string) error {
	if a.encryptor == nil {
		return ErrEncryptionDisabled
	}
	return a.encryptor.Setup(passphrase)
}

// KeysConfigured reports whether a key pair exists. It is false when
// encryption is disabled.
func (a *App) KeysConfigured() bool {
	return a.encryptor != nil && a.encryptor.IsConfigured()
}

// Schema returns the CREATE statements of the index database.
func (a *App) Schema() (string, error) {
	return a.db.Schema()
}

// BackupDB writes a copy of the index database to destPath.
func (a *App) BackupDB(destPath string) error {
	if _, err := os.Stat(destPath); err == nil {
		return fmt.Errorf("refusing to overwrite %s", destPath)
	}
	return a.db.BackupTo(destPath)
}

// ShowOptions override the output section of the config for one command.
// Empty fields fall back to the config.
type ShowOptions struct {
	Format   string
	Timezone string
	Color    bool
	Exclude  []string
}

// RenderChangeset filters cs with the configured and requested exclusion
// patterns and writes it to w in the chosen format.
func RenderChangeset(w io.Writer, cs *changes.Changeset[changes.Timestamp], cfg *config.Config, opts ShowOptions) error {
	out := cfg.Output
	if opts.Format != "" {
		out.Format = opts.Format
	}
	if opts.Timezone != "" {
		out.Timezone = opts.Timezone
	}
	loc, err := out.Location()
	if err != nil {
		return err
	}

	patterns := slices.Clone(cfg.Filter.Exclude)
	if cfg.Filter.File != "" {
		fromFile, err := filter.ParseFile(cfg.Filter.File)
		if err != nil {
			return err
		}
		patterns = append(patterns, fromFile...)
	}
	patterns = append(patterns, opts.Exclude...)

	m, err := filter.New(patterns)
	if err != nil {
		return fmt.Errorf("building path filter: %w", err)
	}

	f, err := render.NewFormatter(out.Format, render.Options{Location: loc, Color: opts.Color})
	if err != nil {
		return err
	}
	return f.Format(w, filter.Apply(m, cs))
}
