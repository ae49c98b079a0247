package app

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"sniff-go/internal/changes"
	"sniff-go/internal/config"
	"sniff-go/internal/testutil"
	"sniff-go/internal/vault"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig("host-1", t.TempDir())
	cfg.Encryption = config.EncryptionConfig{Type: "test"}
	cfg.LogLevel = "error"
	return cfg
}

func writeSampleFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scan.json")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating sample file: %v", err)
	}
	defer f.Close()
	if err := changes.Encode(f, testutil.SampleChangeset()); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return path
}

func openApp(t *testing.T, cfg *config.Config, op *Operation) *App {
	t.Helper()
	a, err := NewApp(cfg, op)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	return a
}

func metadataVersion(t *testing.T, cfg *config.Config) int64 {
	t.Helper()
	v, err := vault.NewFileSystemVault("check", cfg.Vaults[0].FSVaultRoot)
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}
	version, err := v.GetMetadataVersion(cfg.HostID, "db")
	if err != nil {
		t.Fatalf("GetMetadataVersion() error = %v", err)
	}
	return version
}

func TestApp_RecordAndShow(t *testing.T) {
	cfg := newTestConfig(t)
	path := writeSampleFile(t)

	a := openApp(t, cfg, NewOperation("Record", path))
	record, err := a.RecordFile(path, nil)
	if err != nil {
		t.Fatalf("RecordFile() error = %v", err)
	}
	if !record.Encrypted {
		t.Error("record not encrypted with the test encryptor configured")
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if got := metadataVersion(t, cfg); got != 1 {
		t.Errorf("uploaded db version = %d, want 1", got)
	}

	a = openApp(t, cfg, NewOperation("Show", "latest"))
	defer a.Close()

	latest, err := a.Resolve("latest")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if latest.ID != record.ID {
		t.Errorf("Resolve(latest) = %s, want %s", latest.ID, record.ID)
	}

	dctx, err := a.Unlock("")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	var out bytes.Buffer
	if err := a.Show(&out, latest, dctx, ShowOptions{Format: "json"}); err != nil {
		t.Fatalf("Show() error = %v", err)
	}
	got, err := changes.Decode(&out)
	if err != nil {
		t.Fatalf("Decode(Show output) error = %v", err)
	}
	if !reflect.DeepEqual(got, testutil.SampleChangeset()) {
		t.Errorf("Show() = %+v, want sample changeset", got)
	}

	history, err := a.PathHistory("src/main.go")
	if err != nil {
		t.Fatalf("PathHistory() error = %v", err)
	}
	if len(history) != 1 || history[0].ChangesetID != record.ID {
		t.Errorf("PathHistory() = %+v, want one entry for %s", history, record.ID)
	}
}

func TestApp_NonMutatingCommandDoesNotUpload(t *testing.T) {
	cfg := newTestConfig(t)

	a := openApp(t, cfg, NewOperation("List"))
	records, err := a.List(10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("List() = %d records on a fresh archive", len(records))
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if got := metadataVersion(t, cfg); got != 0 {
		t.Errorf("db version = %d after a read-only command, want 0", got)
	}
}

func TestApp_FailedRecordIsLogged(t *testing.T) {
	cfg := newTestConfig(t)
	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte(`{"earliest_timestamp": "yesterday"}`), 0644); err != nil {
		t.Fatal(err)
	}

	a := openApp(t, cfg, NewOperation("Record", bad))
	if _, err := a.RecordFile(bad, nil); err == nil {
		t.Fatal("RecordFile() expected error for malformed changeset")
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	a = openApp(t, cfg, NewOperation("History"))
	defer a.Close()
	ops, err := a.History(10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("History() returned %d operations, want 1", len(ops))
	}
	if ops[0].Operation != "Record" || ops[0].Status != "error" || ops[0].Parameters != bad {
		t.Errorf("History()[0] = %+v, want failed Record of %s", ops[0], bad)
	}
	if ops[0].FinishedAt == nil {
		t.Error("FinishedAt not set on a closed operation")
	}
}

func TestApp_LocalBehindRemote(t *testing.T) {
	cfg := newTestConfig(t)

	v, err := vault.NewFileSystemVault("local", cfg.Vaults[0].FSVaultRoot)
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}
	if err := v.PutMetadata(cfg.HostID, "db", strings.NewReader("x"), 1, 5); err != nil {
		t.Fatalf("PutMetadata() error = %v", err)
	}

	_, err = NewApp(cfg, NewOperation("List"))
	if err == nil || !strings.Contains(err.Error(), "behind remote") {
		t.Fatalf("NewApp() error = %v, want local behind remote", err)
	}
}

func TestApp_InvalidConfig(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.HostID = ""

	if _, err := NewApp(cfg, NewOperation("List")); err == nil {
		t.Fatal("NewApp() expected error for config without host_id")
	}
}

func TestApp_AgeKeys(t *testing.T) {
	cfg := config.NewConfig("host-1", t.TempDir())
	cfg.LogLevel = "error"
	path := writeSampleFile(t)

	a := openApp(t, cfg, NewOperation("Record", path))
	if a.KeysConfigured() {
		t.Error("KeysConfigured() = true before setup")
	}
	_, err := a.RecordFile(path, nil)
	if err == nil || !strings.Contains(err.Error(), "key setup") {
		t.Fatalf("RecordFile() error = %v, want a hint to run key setup", err)
	}

	if err := a.SetupKeys("correct horse"); err != nil {
		t.Fatalf("SetupKeys() error = %v", err)
	}
	if !a.KeysConfigured() {
		t.Error("KeysConfigured() = false after setup")
	}
	record, err := a.RecordFile(path, nil)
	if err != nil {
		t.Fatalf("RecordFile() after setup error = %v", err)
	}

	if _, err := a.Unlock("wrong"); err == nil {
		t.Error("Unlock() with wrong passphrase expected error")
	}
	dctx, err := a.Unlock("correct horse")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	var out bytes.Buffer
	if err := a.Show(&out, record, dctx, ShowOptions{Format: "text"}); err != nil {
		t.Fatalf("Show() error = %v", err)
	}
	if !strings.Contains(out.String(), "src/main.go") {
		t.Errorf("Show() output missing path: %q", out.String())
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestApp_EncryptionDisabled(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Encryption = config.EncryptionConfig{Type: "none"}
	path := writeSampleFile(t)

	a := openApp(t, cfg, NewOperation("Record", path))
	defer a.Close()

	if err := a.SetupKeys("pw"); err != ErrEncryptionDisabled {
		t.Errorf("SetupKeys() error = %v, want ErrEncryptionDisabled", err)
	}
	record, err := a.RecordFile(path, nil)
	if err != nil {
		t.Fatalf("RecordFile() error = %v", err)
	}
	if record.Encrypted {
		t.Error("record encrypted with encryption disabled")
	}
	var out bytes.Buffer
	if err := a.Show(&out, record, nil, ShowOptions{Format: "yaml"}); err != nil {
		t.Fatalf("Show() error = %v", err)
	}
	if !strings.Contains(out.String(), "docs/readme.md") {
		t.Errorf("Show() output missing path: %q", out.String())
	}
}

func TestApp_CheckArchiveAndDB(t *testing.T) {
	cfg := newTestConfig(t)
	path := writeSampleFile(t)

	a := openApp(t, cfg, NewOperation("Record", path))
	defer a.Close()
	if _, err := a.RecordFile(path, nil); err != nil {
		t.Fatalf("RecordFile() error = %v", err)
	}

	report, err := a.CheckArchive()
	if err != nil {
		t.Fatalf("CheckArchive() error = %v", err)
	}
	if !report.OK() || report.Indexed != 1 {
		t.Errorf("CheckArchive() = %+v, want one consistent changeset", report)
	}

	schema, err := a.Schema()
	if err != nil {
		t.Fatalf("Schema() error = %v", err)
	}
	if !strings.Contains(schema, "CREATE TABLE changesets") {
		t.Errorf("Schema() missing changesets table: %s", schema)
	}

	dest := filepath.Join(t.TempDir(), "copy.db")
	if err := a.BackupDB(dest); err != nil {
		t.Fatalf("BackupDB() error = %v", err)
	}
	if err := a.BackupDB(dest); err == nil {
		t.Error("BackupDB() expected error when the destination exists")
	}
}

func TestReadChangeset(t *testing.T) {
	var payload bytes.Buffer
	if err := changes.Encode(&payload, testutil.SampleChangeset()); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	t.Run("stdin", func(t *testing.T) {
		cs, err := ReadChangeset(StdinPath, bytes.NewReader(payload.Bytes()))
		if err != nil {
			t.Fatalf("ReadChangeset() error = %v", err)
		}
		if cs.Len() != 4 {
			t.Errorf("Len() = %d, want 4", cs.Len())
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := ReadChangeset(filepath.Join(t.TempDir(), "nope.json"), nil); err == nil {
			t.Fatal("ReadChangeset() expected error for missing file")
		}
	})

	t.Run("invalid changeset", func(t *testing.T) {
		in := `{"earliest_timestamp":"2024-06-01 10:00:00","changes":{"":"Added"}}`
		if _, err := ReadChangeset(StdinPath, strings.NewReader(in)); err == nil {
			t.Fatal("ReadChangeset() expected error for empty path")
		}
	})
}

func TestRenderChangeset_Filters(t *testing.T) {
	cfg := newTestConfig(t)
	filterFile := filepath.Join(t.TempDir(), "ignore")
	if err := os.WriteFile(filterFile, []byte("# build output\nbin/**\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg.Filter = config.FilterConfig{Exclude: []string{"*.log"}, File: filterFile}

	var out bytes.Buffer
	err := RenderChangeset(&out, testutil.SampleChangeset(), cfg, ShowOptions{Format: "json", Exclude: []string{"docs/**"}})
	if err != nil {
		t.Fatalf("RenderChangeset() error = %v", err)
	}

	got, err := changes.Decode(&out)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if paths := got.Paths(); !reflect.DeepEqual(paths, []string{"src/main.go"}) {
		t.Errorf("rendered paths = %v, want [src/main.go]", paths)
	}
}

func TestRenderChangeset_BadOptions(t *testing.T) {
	cfg := newTestConfig(t)
	cs := testutil.SampleChangeset()

	if err := RenderChangeset(&bytes.Buffer{}, cs, cfg, ShowOptions{Format: "xml"}); err == nil {
		t.Error("RenderChangeset() expected error for unknown format")
	}
	if err := RenderChangeset(&bytes.Buffer{}, cs, cfg, ShowOptions{Timezone: "Mars/Olympus"}); err == nil {
		t.Error("RenderChangeset() expected error for unknown timezone")
	}
}

func TestColorEnabled(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	tests := []struct {
		mode    string
		want    bool
		wantErr bool
	}{
		{mode: "always", want: true},
		{mode: "never", want: false},
		{mode: "auto", want: false},
		{mode: "", want: false},
		{mode: "rainbow", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			got, err := ColorEnabled(tt.mode, f)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ColorEnabled(%q) expected error", tt.mode)
				}
				return
			}
			if err != nil {
				t.Fatalf("ColorEnabled(%q) error = %v", tt.mode, err)
			}
			if got != tt.want {
				t.Errorf("ColorEnabled(%q) = %v, want %v", tt.mode, got, tt.want)
			}
		})
	}
}
