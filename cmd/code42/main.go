package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/donnguyen19/code42cli/internal/adapter/eventapi"
	httpadapter "github.com/donnguyen19/code42cli/internal/adapter/http"
	"github.com/donnguyen19/code42cli/internal/config"
	"github.com/donnguyen19/code42cli/internal/cursor"
	"github.com/donnguyen19/code42cli/internal/domain"
	"github.com/donnguyen19/code42cli/internal/extract"
	"github.com/donnguyen19/code42cli/internal/format"
	"github.com/donnguyen19/code42cli/internal/observability"
	"github.com/donnguyen19/code42cli/internal/sink"
	"github.com/donnguyen19/code42cli/internal/watch"
)

// Exit codes. A clean run with zero events is distinguishable from both
// success-with-events and failure.
const (
	exitOK         = 0
	exitRunError   = 1
	exitUsageError = 2
	exitNoResults  = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 2 {
		usage()
		return exitUsageError
	}

	var service eventapi.Service
	switch args[0] {
	case "events":
		service = eventapi.FileEvents
	case "alerts":
		service = eventapi.Alerts
	default:
		usage()
		return exitUsageError
	}

	switch args[1] {
	case "search":
		return runSearch(service, args[2:])
	case "clear-checkpoint":
		return runClearCheckpoint(service, args[2:])
	default:
		usage()
		return exitUsageError
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: code42 <events|alerts> <search|clear-checkpoint> [flags]

run "code42 events search -h" for search flags`)
}

// stringSlice is a repeatable string flag.
type stringSlice []string

func (s *stringSlice) String() string { return strings.Join(*s, ",") }

func (s *stringSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

type searchFlags struct {
	profile        string
	begin          string
	end            string
	useCheckpoint  string
	recordCursor   bool
	clearCursor    bool
	checkpointName string
	outputFormat   string
	destType       string
	dest           string
	destPort       int
	destProtocol   string
	poll           time.Duration
	ignoreSSL      bool
	orQuery        bool

	exposureTypes stringSlice
	severities    stringSlice
	states        stringSlice
	actors        stringSlice
	ruleNames     stringSlice
}

func parseSearchFlags(service eventapi.Service, args []string) (*searchFlags, error) {
	f := &searchFlags{}
	fs := flag.NewFlagSet("code42 "+service.Name+" search", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	fs.StringVar(&f.profile, "profile", "", "named profile to load settings from")
	fs.StringVar(&f.begin, "begin", "", "start of the query window (YYYY-MM-DD, \"YYYY-MM-DD HH:MM:SS\", or 30d/12h ago)")
	fs.StringVar(&f.end, "end", "", "end of the query window, same forms as --begin")
	fs.StringVar(&f.useCheckpoint, "use-checkpoint", "", "resume from the named checkpoint and record progress under it")
	fs.BoolVar(&f.recordCursor, "record-cursor", false, "record progress without resuming from it")
	fs.BoolVar(&f.clearCursor, "clear-cursor", false, "clear all checkpoints for this service before extracting")
	fs.StringVar(&f.checkpointName, "checkpoint-name", "default", "checkpoint name used with --record-cursor")
	fs.StringVar(&f.outputFormat, "format", "json", "output serialization: json or cef")
	fs.StringVar(&f.destType, "dest-type", "stdout", "destination: stdout, file, server, or kafka")
	fs.StringVar(&f.dest, "dest", "", "file path or server hostname (required for file and server)")
	fs.IntVar(&f.destPort, "dest-port", 514, "server destination port")
	fs.StringVar(&f.destProtocol, "dest-protocol", "tcp", "server destination protocol: tcp or udp")
	fs.DurationVar(&f.poll, "poll", 0, "re-run checkpointed extraction on this interval (watch mode)")
	fs.BoolVar(&f.ignoreSSL, "ignore-ssl-errors", false, "skip TLS certificate verification")
	fs.BoolVar(&f.orQuery, "or-query", false, "combine filter flags with OR instead of AND")

	if service.Name == eventapi.FileEvents.Name {
		fs.Var(&f.exposureTypes, "exposure-type", "filter by exposure type (repeatable)")
	} else {
		fs.Var(&f.severities, "severity", "filter alerts by severity (repeatable)")
		fs.Var(&f.states, "state", "filter alerts by status (repeatable)")
		fs.Var(&f.actors, "actor", "filter alerts by the actor who triggered them (repeatable)")
		fs.Var(&f.ruleNames, "rule-name", "filter alerts by rule name (repeatable)")
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

// verifyDestination enforces the destination/flag pairing before anything
// is opened: stdout takes no --dest, file and server require one.
func verifyDestination(f *searchFlags) error {
	switch f.destType {
	case "stdout":
		if f.dest != "" {
			return fmt.Errorf("destination %q not applicable for stdout; remove --dest or use --dest-type file|server", f.dest)
		}
	case "file":
		if f.dest == "" {
			return errors.New("missing file name; try --dest path/to/file")
		}
	case "server":
		if f.dest == "" {
			return errors.New("missing server hostname; try --dest syslog.example.com")
		}
	case "kafka":
	default:
		return fmt.Errorf("unsupported destination type %q", f.destType)
	}
	return nil
}

func (f *searchFlags) filters(service eventapi.Service) []domain.Filter {
	var filters []domain.Filter
	add := func(term string, values stringSlice) {
		for _, v := range values {
			filters = append(filters, domain.Filter{Term: term, Operator: "IS", Value: v})
		}
	}
	if service.Name == eventapi.FileEvents.Name {
		add("exposure", f.exposureTypes)
		return filters
	}
	add("severity", f.severities)
	add("state", f.states)
	add("actor", f.actors)
	add("name", f.ruleNames)
	return filters
}

func newFormatter(name string, service eventapi.Service) (format.Formatter, error) {
	switch strings.ToLower(name) {
	case "json":
		return format.NewJSON(), nil
	case "cef":
		if service.Name == eventapi.Alerts.Name {
			return format.NewAlertCEF(), nil
		}
		return format.NewFileEventCEF(), nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", name)
	}
}

func buildSinks(f *searchFlags, cfg *config.Config, logger *slog.Logger) ([]sink.Sink, error) {
	switch f.destType {
	case "stdout":
		return []sink.Sink{sink.NewStdout(nil)}, nil
	case "file":
		s, err := sink.NewFile(f.dest)
		if err != nil {
			return nil, err
		}
		return []sink.Sink{s}, nil
	case "server":
		s, err := sink.NewNet(f.destProtocol, f.dest, f.destPort)
		if err != nil {
			return nil, err
		}
		return []sink.Sink{s}, nil
	case "kafka":
		topic := cfg.KafkaTopic
		if f.dest != "" {
			topic = f.dest
		}
		s, err := sink.NewKafka(cfg.KafkaBrokers, topic, logger)
		if err != nil {
			return nil, err
		}
		return []sink.Sink{s}, nil
	}
	return nil, fmt.Errorf("unsupported destination type %q", f.destType)
}

func runSearch(service eventapi.Service, args []string) int {
	f, err := parseSearchFlags(service, args)
	if err != nil {
		return exitUsageError
	}
	if err := verifyDestination(f); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsageError
	}
	if f.useCheckpoint != "" && f.begin != "" {
		fmt.Fprintln(os.Stderr, "--begin cannot be combined with --use-checkpoint: the stored cursor determines the window")
		return exitUsageError
	}

	cfg, err := config.Load(f.profile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsageError
	}
	if cfg.APIBaseURL == "" || cfg.APIToken == "" {
		fmt.Fprintln(os.Stderr, "API URL and token are required: set C42_API_URL and C42_API_TOKEN or a profile file")
		return exitUsageError
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat).With(
		"run_id", uuid.NewString(),
		"service", service.Name,
	)

	now := time.Now().UTC()
	begin, err := config.ParseTimestamp(f.begin, now)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsageError
	}
	end, err := config.ParseTimestamp(f.end, now)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsageError
	}

	formatter, err := newFormatter(f.outputFormat, service)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsageError
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sinks, err := buildSinks(f, cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsageError
	}
	defer func() {
		for _, s := range sinks {
			if err := s.Close(); err != nil {
				logger.Error("sink close failed", "error", err)
			}
		}
	}()

	checkpointName := f.checkpointName
	if f.useCheckpoint != "" {
		checkpointName = f.useCheckpoint
	}

	var store *cursor.Store
	if f.useCheckpoint != "" || f.recordCursor || f.clearCursor {
		if err := os.MkdirAll(cfg.Home, 0o755); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitRunError
		}
		store, err = cursor.Open(cfg.CheckpointPath(), service.Name, logger)
		if err != nil {
			return reportStoreError(err)
		}
		defer store.Close()

		if f.clearCursor {
			if err := store.Reset(ctx); err != nil {
				return reportStoreError(err)
			}
		}
	}

	metrics := observability.NewMetrics()
	client := eventapi.NewClient(eventapi.ClientConfig{
		BaseURL:         cfg.APIBaseURL,
		Token:           cfg.APIToken,
		PageSize:        cfg.PageSize,
		Timeout:         cfg.APITimeout,
		RateLimit:       cfg.RateLimit,
		OrQuery:         f.orQuery,
		IgnoreSSLErrors: f.ignoreSSL,
	}, service, logger)

	handler := extract.NewHandler(formatter, sinks, logger, metrics)
	onError := func(err error) { logger.Error("extraction error", "error", err) }
	driver := extract.NewDriver(client, handler, store, nil, logger, metrics, onError)

	params := extract.Params{
		Begin:          begin,
		End:            end,
		Filters:        f.filters(service),
		UseCheckpoint:  f.useCheckpoint != "",
		RecordCursor:   f.recordCursor,
		CheckpointName: checkpointName,
	}

	if f.poll > 0 {
		return runWatch(ctx, cfg, driver, params, logger, metrics, f.poll)
	}

	result, err := driver.Extract(ctx, params)
	if err != nil {
		return reportRunError(err)
	}
	if result.NoResults() {
		fmt.Fprintln(os.Stderr, "no results")
		return exitNoResults
	}
	return exitOK
}

// runWatch re-runs the extraction on a ticker and serves health, metrics,
// and run status over HTTP until interrupted.
func runWatch(
	ctx context.Context,
	cfg *config.Config,
	driver *extract.Driver,
	params extract.Params,
	logger *slog.Logger,
	metrics *observability.Metrics,
	interval time.Duration,
) int {
	if !params.UseCheckpoint {
		fmt.Fprintln(os.Stderr, "--poll requires --use-checkpoint so each run resumes from the last")
		return exitUsageError
	}

	runner := func(ctx context.Context) (domain.RunResult, error) {
		return driver.Extract(ctx, params)
	}
	watcher := watch.New(runner, interval, uuid.NewString(), logger, metrics)
	srv := httpadapter.NewServer(cfg.HTTPAddr, watcher, watcher, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server error", "error", err)
		}
	}()

	err := watcher.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error("status server shutdown error", "error", shutdownErr)
	}

	if err != nil {
		return exitRunError
	}
	return exitOK
}

func runClearCheckpoint(service eventapi.Service, args []string) int {
	fs := flag.NewFlagSet("code42 "+service.Name+" clear-checkpoint", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	profile := fs.String("profile", "", "named profile to load settings from")
	if err := fs.Parse(args); err != nil {
		return exitUsageError
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: code42 "+service.Name+" clear-checkpoint <name>")
		return exitUsageError
	}

	cfg, err := config.Load(*profile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsageError
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	store, err := cursor.Open(cfg.CheckpointPath(), service.Name, logger)
	if err != nil {
		return reportStoreError(err)
	}
	defer store.Close()

	if err := store.Delete(context.Background(), fs.Arg(0)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitRunError
	}
	return exitOK
}

func reportStoreError(err error) int {
	if errors.Is(err, domain.ErrStoreCorrupt) {
		fmt.Fprintln(os.Stderr, "checkpoint store is unreadable; run with --clear-cursor to rebuild it:", err)
		return exitUsageError
	}
	fmt.Fprintln(os.Stderr, err)
	return exitRunError
}

func reportRunError(err error) int {
	var validationErr *domain.ValidationError
	var sinkErr *domain.SinkConfigError
	switch {
	case errors.As(err, &validationErr), errors.As(err, &sinkErr):
		fmt.Fprintln(os.Stderr, err)
		return exitUsageError
	case errors.Is(err, domain.ErrStoreCorrupt):
		return reportStoreError(err)
	default:
		fmt.Fprintln(os.Stderr, err)
		return exitRunError
	}
}
