package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ppiankov/bwingest/internal/agent"
	"github.com/ppiankov/bwingest/internal/archive"
	"github.com/ppiankov/bwingest/internal/config"
	"github.com/ppiankov/bwingest/internal/ingest"
	"github.com/ppiankov/bwingest/internal/logging"
)

var (
	flagConfig      string
	flagURL         string
	flagUser        string
	flagKey         string
	flagScriptAlias string
	flagLogDir      string
	flagVerbose     bool
	flagFile        string
	flagTimeout     time.Duration
)

// newResolver is replaced in tests.
var newResolver = func() agent.Resolver { return &agent.NetResolver{} }

func init() {
	f := rootCmd.Flags()
	f.StringVar(&flagConfig, "config", "", "Path to config YAML (default $"+config.EnvPath+" or ~/.bwingest/config.yaml)")
	f.StringVarP(&flagURL, "url", "U", "", "Archive base URL (default http://localhost:8000)")
	f.StringVarP(&flagUser, "user", "u", "", "Archive username")
	f.StringVarP(&flagKey, "key", "k", "", "Archive API key")
	f.StringVarP(&flagScriptAlias, "script-alias", "s", "", "URL prefix of the archive REST API, \"/\" for none (default /)")
	f.StringVarP(&flagLogDir, "log-dir", "l", "", "Existing directory for bwingest.log (default stdout)")
	f.BoolVarP(&flagVerbose, "verbose", "v", false, "Log at debug level")
	f.StringVarP(&flagFile, "file", "f", "", "Read bwctl output from file instead of stdin")
	f.DurationVar(&flagTimeout, "timeout", 0, "HTTP timeout for archive requests (default 30s)")
}

var rootCmd = &cobra.Command{
	Use:   "bwingest",
	Short: "Archive bwctl throughput results in an esmond measurement archive",
	Long: "Reads the output of one bwctl/iperf3 run, extracts the JSON result\n" +
		"embedded between the start_tool and stop_tool markers, and writes it\n" +
		"to an esmond archive: one metadata record, then one bulk append.\n\n" +
		"Exit code 0 on success (and when the tool is unsupported or the\n" +
		"metadata write fails), 78 when credentials are missing, 1 otherwise.",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runIngest,
}

// loggedError marks an error already written to the run log.
type loggedError struct{ err error }

func (e loggedError) Error() string { return e.err.Error() }
func (e loggedError) Unwrap() error { return e.err }

// Execute runs the root command and exits with the run's status.
func Execute() {
	err := rootCmd.Execute()
	var logged loggedError
	if err != nil && !errors.As(err, &logged) {
		fmt.Fprintf(os.Stderr, "bwingest: %v\n", err)
	}
	os.Exit(ingest.ExitCode(err))
}

func runIngest(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, _ := config.ParseLevel(cfg.Log.Level)
	runID := uuid.NewString()
	log, closeLog, err := logging.New(cfg.Log.Dir, level, runID)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	in, closeIn, err := openInput(flagFile)
	if err != nil {
		return err
	}
	defer func() { _ = closeIn() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Debug("run started", "event", "run.start", "version", version, "archive", cfg.Archive.URL)

	p := ingest.New(archive.NewClient(cfg.Archive), newResolver(), log)
	report, err := p.Process(ctx, in)
	if err != nil {
		return loggedError{err}
	}
	log.Info("run finished", "event", "run.done", "tool", report.Tool,
		"metadata_key", report.MetadataKey, "events", report.Events, "bulk_ok", report.BulkErr == nil)
	return nil
}

// loadConfig reads the config file and applies flags set on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(flagConfig)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("url") {
		cfg.Archive.URL = flagURL
	}
	if f.Changed("user") {
		cfg.Archive.Username = flagUser
	}
	if f.Changed("key") {
		cfg.Archive.APIKey = flagKey
	}
	if f.Changed("script-alias") {
		cfg.Archive.ScriptAlias = flagScriptAlias
	}
	if f.Changed("log-dir") {
		cfg.Log.Dir = flagLogDir
	}
	if f.Changed("timeout") {
		cfg.Archive.Timeout = flagTimeout
	}
	if flagVerbose {
		cfg.Log.Level = slog.LevelDebug.String()
	}
	return cfg, nil
}

// openInput returns the file at path, or stdin when path is empty.
// An interactive stdin is refused.
func openInput(path string) (io.Reader, func() error, error) {
	if path == "" {
		if term.IsTerminal(int(os.Stdin.Fd())) {
			return nil, nil, errors.New("stdin is a terminal; pipe bwctl output in or use --file")
		}
		return os.Stdin, func() error { return nil }, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	return f, f.Close, nil
}
