package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"sniff-go/internal/app"
	"sniff-go/internal/archive"
	"sniff-go/internal/changes"
	"sniff-go/internal/config"
	"sniff-go/internal/render"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config from the default location.
func loadConfig() (*config.Config, *app.Defaults, error) {
	defaults := app.GetDefaults()
	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, defaults, fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults, nil
}

// newApp reads the config and creates an App. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Record", "Show").
func newApp(operation string, args ...string) (*app.App, *config.Config, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	a, err := app.NewApp(cfg, app.NewOperation(operation, args...))
	if err != nil {
		return nil, nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, cfg, nil
}

// renderConfig returns the config when one exists, or the defaults, so that
// commands that never touch the archive work before "config init".
func renderConfig() (*config.Config, error) {
	cfg, defaults, err := loadConfig()
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return config.NewConfig("", defaults.BaseDir), nil
	}
	return nil, err
}

// readPassphrase prompts on the terminal without echo.
func readPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("a passphrase is required but stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

// showOptions collects the output flags shared by show and render.
func showOptions(cmd *cobra.Command, cfg *config.Config) (app.ShowOptions, error) {
	format, _ := cmd.Flags().GetString("format")
	tz, _ := cmd.Flags().GetString("tz")
	exclude, _ := cmd.Flags().GetStringArray("exclude")
	colorMode, _ := cmd.Flags().GetString("color")
	if colorMode == "" {
		colorMode = cfg.Output.Color
	}

	colorOn, err := app.ColorEnabled(colorMode, os.Stdout)
	if err != nil {
		return app.ShowOptions{}, err
	}
	return app.ShowOptions{Format: format, Timezone: tz, Color: colorOn, Exclude: exclude}, nil
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "f", "", "Output format: text, json or yaml")
	cmd.Flags().String("tz", "", "Show timestamps in this time zone (e.g. Local, Europe/Berlin)")
	cmd.Flags().StringArrayP("exclude", "x", nil, "Hide paths matching this pattern (repeatable)")
	cmd.Flags().String("color", "", "Color mode: auto, always or never")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func summaryText(s changes.Summary) string {
	return fmt.Sprintf("+%d -%d ~%d *%d  %s",
		s.Added, s.Deleted, s.MetaOnlyChange, s.EntryChange, render.SignedBytes(s.SizeDelta))
}

var rootCmd = &cobra.Command{
	Use:          "sniff",
	Short:        "Archive and inspect filesystem changesets",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults := app.GetDefaults()
		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults.BaseDir)

		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Host ID: %s\n", hostID)
		fmt.Printf("Base Dir: %s\n", defaults.BaseDir)
		fmt.Println("Run 'sniff key setup' before recording encrypted changesets.")
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, defaults, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("Host ID:    %s\n", cfg.HostID)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Database:   %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Encryption: %s\n", cfg.Encryption.Type)
		for _, v := range cfg.Vaults {
			fmt.Printf("Vault:      %s (%s)\n", v.Name, v.Type)
		}
		if err := cfg.Validate(); err != nil {
			fmt.Printf("\nConfig problems:\n%v\n", err)
		}
		return nil
	},
}

// key command
var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage encryption keys",
}

var keySetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Generate the encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := newApp("KeySetup")
		if err != nil {
			return err
		}
		defer a.Close()

		if a.KeysConfigured() {
			return errors.New("encryption keys already exist")
		}

		pass, err := readPassphrase("New passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Repeat passphrase: ")
		if err != nil {
			return err
		}
		if pass != confirm {
			return errors.New("passphrases do not match")
		}

		if err := a.SetupKeys(pass); err != nil {
			return fmt.Errorf("setting up keys: %w", err)
		}
		fmt.Println("Encryption keys created.")
		return nil
	},
}

// validate command
var validateCmd = &cobra.Command{
	Use:   "validate FILE",
	Short: "Check that a changeset file decodes and is well formed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cs, err := app.ReadChangeset(args[0], os.Stdin)
		if err != nil {
			return err
		}
		fmt.Printf("ok: %d path(s), earliest %s\n", cs.Len(), cs.EarliestTimestamp)
		fmt.Println(summaryText(changes.Summarize(cs)))
		return nil
	},
}

// record command
var recordCmd = &cobra.Command{
	Use:   "record FILE",
	Short: "Archive a changeset (use - for stdin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := newApp("Record", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		record, err := a.RecordFile(args[0], os.Stdin)
		if err != nil {
			return fmt.Errorf("record failed: %w", err)
		}

		fmt.Printf("Recorded %s: %d path(s), %s\n",
			record.ID, record.EntryCount, humanize.IBytes(uint64(record.PayloadSize)))
		return nil
	},
}

// list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived changesets",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, _, err := newApp("List")
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.List(limit)
		if err != nil {
			return err
		}

		if len(records) == 0 {
			fmt.Println("No changesets recorded.")
			return nil
		}

		for _, r := range records {
			lock := " "
			if r.Encrypted {
				lock = "E"
			}
			fmt.Printf("%s %s  %-14s  earliest %s  %s\n",
				shortID(r.ID),
				lock,
				humanize.Time(r.RecordedAt),
				r.EarliestTimestamp,
				summaryText(r.Summary),
			)
		}
		return nil
	},
}

// show command
var showCmd = &cobra.Command{
	Use:   "show [REF]",
	Short: "Show an archived changeset (default: latest)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref := archive.LatestRef
		if len(args) > 0 {
			ref = args[0]
		}

		a, cfg, err := newApp("Show", ref)
		if err != nil {
			return err
		}
		defer a.Close()

		opts, err := showOptions(cmd, cfg)
		if err != nil {
			return err
		}

		record, err := a.Resolve(ref)
		if err != nil {
			return err
		}

		var dctx archive.DecryptionContext
		if record.Encrypted {
			pass, err := readPassphrase("Passphrase: ")
			if err != nil {
				return err
			}
			dctx, err = a.Unlock(pass)
			if err != nil {
				return err
			}
		}

		return a.Show(os.Stdout, record, dctx, opts)
	},
}

// render command
var renderCmd = &cobra.Command{
	Use:   "render FILE",
	Short: "Render a changeset file without archiving it (use - for stdin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := renderConfig()
		if err != nil {
			return err
		}
		opts, err := showOptions(cmd, cfg)
		if err != nil {
			return err
		}

		cs, err := app.ReadChangeset(args[0], os.Stdin)
		if err != nil {
			return err
		}
		return app.RenderChangeset(os.Stdout, cs, cfg, opts)
	},
}

// log command
var logCmd = &cobra.Command{
	Use:   "log PATH",
	Short: "View the recorded changes of a path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := newApp("PathHistory")
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.PathHistory(args[0])
		if err != nil {
			return err
		}

		for _, e := range entries {
			fmt.Printf("%s  %-14s  %-14s  earliest %s\n",
				shortID(e.ChangesetID),
				e.Kind,
				humanize.Time(e.RecordedAt),
				e.EarliestTimestamp,
			)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, _, err := newApp("History")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt != nil {
				duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-12s  %s  %-8s  %-10s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Local().Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Parameters,
			)
		}
		return nil
	},
}

// check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Compare the vault with the local index",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := newApp("Check")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.CheckArchive()
		if err != nil {
			return err
		}

		fmt.Printf("Indexed: %d  Stored: %d\n", report.Indexed, report.Stored)
		for _, id := range report.Orphaned {
			fmt.Printf("orphaned payload (not indexed): %s\n", id)
		}
		for _, id := range report.Missing {
			fmt.Printf("missing payload (indexed only): %s\n", id)
		}
		if !report.OK() {
			return errors.New("archive is inconsistent")
		}
		fmt.Println("Archive is consistent.")
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Inspect the local index database",
}

var dbSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the index schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := newApp("Schema")
		if err != nil {
			return err
		}
		defer a.Close()

		schema, err := a.Schema()
		if err != nil {
			return err
		}
		fmt.Print(schema)
		return nil
	},
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup DEST",
	Short: "Write a copy of the index database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := newApp("BackupDB", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.BackupDB(args[0]); err != nil {
			return err
		}
		fmt.Printf("Index copied to %s\n", args[0])
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// key subcommands
	keyCmd.AddCommand(keySetupCmd)

	// db subcommands
	dbCmd.AddCommand(dbSchemaCmd)
	dbCmd.AddCommand(dbBackupCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keyCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().IntP("limit", "n", 20, "Maximum number of changesets to show (0 for all)")
	rootCmd.AddCommand(showCmd)
	addOutputFlags(showCmd)
	rootCmd.AddCommand(renderCmd)
	addOutputFlags(renderCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(dbCmd)
}
