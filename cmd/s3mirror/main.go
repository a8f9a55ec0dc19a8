package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bamsammich/s3mirror/internal/compare"
	"github.com/bamsammich/s3mirror/internal/config"
	"github.com/bamsammich/s3mirror/internal/engine"
	"github.com/bamsammich/s3mirror/internal/filter"
	"github.com/bamsammich/s3mirror/internal/server"
	"github.com/bamsammich/s3mirror/internal/store"
	"github.com/bamsammich/s3mirror/internal/ui"
)

var version = "dev"

const (
	defaultWorkers    = 64
	defaultMaxRetries = 5
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// filterFlag is a custom pflag.Value that preserves CLI ordering of
// --exclude and --include rules by appending to a shared filter.Chain.
type filterFlag struct {
	chain   *filter.Chain
	include bool
}

func (*filterFlag) String() string { return "" }
func (*filterFlag) Type() string   { return "string" }

func (f *filterFlag) Set(val string) error {
	return f.chain.Add(val, f.include)
}

// cliFlags holds every root command flag.
type cliFlags struct {
	chain *filter.Chain

	workers        int
	maxRetries     int
	retryDelay     time.Duration
	reportInterval time.Duration
	restoreDays    int32
	sshPort        int

	compareName  string
	filterFile   string
	minSizeStr   string
	maxSizeStr   string
	maxAgeStr    string
	bwLimitStr   string
	logFile      string
	storageClass string
	sse          string
	acl          string
	region       string
	endpoint     string
	profile      string
	proxy        string
	sshKeyFile   string
	schedule     string
	metricsAddr  string

	showVersion    bool
	verbose        bool
	quiet          bool
	dryRun         bool
	deleteFlag     bool
	sizeOnly       bool
	logFailures    bool
	pathStyle      bool
	sshInsecure    bool
	restoreTiering bool

	// Static keys only come from the config file.
	accessKey string
	secretKey string
}

func run(args []string) int {
	cmd, _ := newRootCmd(os.Stdout, os.Stderr)
	cmd.SetArgs(args)

	if err := cmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer) (*cobra.Command, *cliFlags) {
	f := &cliFlags{chain: filter.NewChain()}

	rootCmd := &cobra.Command{
		Use:   "s3mirror [flags] <source> <destination>",
		Short: "Mirror keys between S3 buckets, local directories and SFTP hosts",
		Long: `s3mirror copies every key of the source that is missing or different at the
destination, optionally deleting destination keys that no longer exist at the
source. Locations are s3://bucket/prefix, [user@]host:path or sftp://host/path,
or a local directory.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if f.showVersion {
				return nil
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.showVersion {
				fmt.Fprintf(stdout, "s3mirror %s\n", version)
				return nil
			}
			return f.execute(cmd, args, stdout, stderr)
		},
	}

	fl := rootCmd.Flags()
	fl.BoolVar(&f.showVersion, "version", false, "print version and exit")
	fl.IntVarP(&f.workers, "workers", "n", defaultWorkers, "maximum number of keys in flight")
	fl.IntVar(&f.maxRetries, "max-retries", defaultMaxRetries, "attempts per key operation before giving up")
	fl.DurationVar(&f.retryDelay, "retry-delay", engine.DefaultRetryDelay, "pause between attempts")
	fl.StringVar(&f.compareName, "compare", compare.NameETag, "change detection: size, size-mtime or etag")
	fl.BoolVar(&f.sizeOnly, "size-only", false, "compare sizes only (same as --compare size)")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "verbose output")
	fl.BoolVarP(&f.quiet, "quiet", "q", false, "suppress all output except errors")
	fl.BoolVar(&f.dryRun, "dry-run", false, "show what would be copied or deleted without writing")
	fl.BoolVar(&f.deleteFlag, "delete", false, "delete destination keys missing from the source")
	fl.BoolVar(&f.logFailures, "log-failures", false, "record failed keys and list them in the report")
	fl.DurationVar(&f.reportInterval, "report-interval", 0, "print the stats report periodically (0 = only at the end)")

	fl.Var(&filterFlag{chain: f.chain, include: false}, "exclude", "exclude keys matching PATTERN or prefix:P (repeatable)")
	fl.Var(&filterFlag{chain: f.chain, include: true}, "include", "include keys matching PATTERN or prefix:P (repeatable)")
	fl.StringVar(&f.filterFile, "filter", "", "read filter rules from FILE")
	fl.StringVar(&f.minSizeStr, "min-size", "", "skip objects smaller than SIZE (e.g. 100K, 1MiB)")
	fl.StringVar(&f.maxSizeStr, "max-size", "", "skip objects larger than SIZE (e.g. 500MB, 1GiB)")
	fl.StringVar(&f.maxAgeStr, "max-age", "", "only copy objects modified within AGE (e.g. 36h, 7d, 2w)")
	fl.StringVar(&f.bwLimitStr, "bwlimit", "", "bandwidth limit for streamed copies (e.g. 100M, 1G)")

	fl.StringVar(&f.storageClass, "storage-class", "", "storage class for objects written to S3")
	fl.StringVar(&f.sse, "sse", "", "server-side encryption for objects written to S3 (e.g. AES256)")
	fl.StringVar(&f.acl, "acl", "", "canned ACL for objects written to S3")
	fl.BoolVar(&f.restoreTiering, "restore-tiering", false, "request restores for archived intelligent-tiering objects")
	fl.Int32Var(&f.restoreDays, "restore-days", 0, "days a restored copy stays available (0 = tier default)")

	fl.StringVar(&f.region, "region", "", "AWS region (default: SDK resolution, then "+store.DefaultRegion+")")
	fl.StringVar(&f.endpoint, "endpoint", "", "custom S3 endpoint URL")
	fl.StringVar(&f.profile, "profile", "", "shared config profile")
	fl.BoolVar(&f.pathStyle, "path-style", false, "use path-style bucket addressing")
	fl.StringVar(&f.proxy, "proxy", "", "HTTP proxy URL for S3 requests")

	fl.StringVar(&f.sshKeyFile, "ssh-key", "", "SSH private key file (default: auto-detect)")
	fl.IntVar(&f.sshPort, "ssh-port", 22, "SSH port")
	fl.BoolVar(&f.sshInsecure, "ssh-insecure", false, "skip SSH host key verification")

	fl.StringVar(&f.logFile, "log", "", "write structured JSON log to FILE")
	fl.StringVar(&f.schedule, "schedule", "", "run repeatedly on a cron schedule (e.g. \"0 */6 * * *\")")
	fl.StringVar(&f.metricsAddr, "metrics-addr", "", "serve /metrics and /stats on ADDR (e.g. :9090)")

	fl.VisitAll(func(fl *pflag.Flag) {
		if fl.Name == "exclude" || fl.Name == "include" {
			fl.NoOptDefVal = ""
		}
	})

	rootCmd.AddCommand(newDocsCmd(), newLastRunCmd(stdout))
	return rootCmd, f
}

func (f *cliFlags) execute(cmd *cobra.Command, args []string, stdout, stderr io.Writer) error {
	srcLoc, err := store.ParseLocation(args[0])
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	dstLoc, err := store.ParseLocation(args[1])
	if err != nil {
		return fmt.Errorf("destination: %w", err)
	}

	// Load optional config file.
	cfg, err := config.Load()
	if err != nil {
		slog.Warn("failed to load config", "error", err)
	}
	if err := applyConfigDefaults(cmd, cfg, f); err != nil {
		return err
	}

	closeLog, err := f.setupLogging(stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	opts, maxAge, err := f.engineOptions(srcLoc, dstLoc)
	if err != nil {
		return err
	}
	if f.dryRun {
		slog.Info("dry run mode")
	}

	// Set up context with signal handling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var s3api store.S3API
	if srcLoc.Scheme == store.SchemeS3 || dstLoc.Scheme == store.SchemeS3 {
		client, err := store.NewS3Client(ctx, f.s3ClientOptions())
		if err != nil {
			return err
		}
		s3api = client
	}

	sshOpts := store.SSHOpts{KeyFile: f.sshKeyFile, Port: f.sshPort, Insecure: f.sshInsecure}
	src, err := store.Open(srcLoc, s3api, sshOpts)
	if err != nil {
		return fmt.Errorf("source %s: %w", srcLoc, err)
	}
	defer src.Close()
	dst, err := store.Open(dstLoc, s3api, sshOpts)
	if err != nil {
		return fmt.Errorf("destination %s: %w", dstLoc, err)
	}
	defer dst.Close()

	mr := &mirrorRun{
		opts:           opts,
		src:            src,
		dst:            dst,
		srcDisplay:     srcLoc.String(),
		dstDisplay:     dstLoc.String(),
		maxAge:         maxAge,
		workers:        f.workers,
		reportInterval: f.reportInterval,
		logFailures:    f.logFailures,
		logEvents:      f.logFile != "",
		quiet:          f.quiet,
		verbose:        f.verbose,
		stdout:         stdout,
		stderr:         stderr,
	}

	if f.metricsAddr != "" {
		mr.srv = server.New(f.metricsAddr)
		if _, err := mr.srv.Start(ctx); err != nil {
			return err
		}
	}

	if f.schedule != "" {
		return runScheduled(ctx, f.schedule, func(ctx context.Context) { mr.once(ctx) })
	}

	res := mr.once(ctx)
	if code := exitCode(res); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

// setupLogging installs the default slog logger: text on stderr, plus JSON
// to --log when set. The returned func closes the log file.
func (f *cliFlags) setupLogging(stderr io.Writer) (func(), error) {
	logLevel := slog.LevelWarn
	if f.verbose {
		logLevel = slog.LevelDebug
	} else if !f.quiet {
		logLevel = slog.LevelInfo
	}
	textHandler := slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	var logHandler slog.Handler = textHandler
	closeFn := func() {}
	if f.logFile != "" {
		lf, err := os.Create(f.logFile)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		closeFn = func() { lf.Close() }
		jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
		logHandler = ui.NewMultiHandler(textHandler, jsonHandler)
	}
	slog.SetDefault(slog.New(logHandler))
	return closeFn, nil
}

// engineOptions translates flags into engine options. The max age is
// returned separately because its cutoff is fixed at the start of each run.
func (f *cliFlags) engineOptions(srcLoc, dstLoc store.Location) (engine.Options, time.Duration, error) {
	name := f.compareName
	if f.sizeOnly {
		name = compare.NameSize
	}
	strategy, err := compare.Parse(name)
	if err != nil {
		return engine.Options{}, 0, fmt.Errorf("invalid --compare: %w", err)
	}

	opts := engine.Options{
		Strategy:       strategy,
		Put:            store.PutOptions{StorageClass: f.storageClass, SSE: f.sse, ACL: f.acl},
		SourcePrefix:   srcLoc.Prefix,
		DestPrefix:     dstLoc.Prefix,
		MaxRetries:     f.maxRetries,
		MaxConcurrent:  f.workers,
		RetryDelay:     f.retryDelay,
		RestoreDays:    f.restoreDays,
		DryRun:         f.dryRun,
		Verbose:        f.verbose,
		DeleteRemoved:  f.deleteFlag,
		RestoreTiering: f.restoreTiering,
	}

	if f.bwLimitStr != "" {
		bwLimit, err := filter.ParseSize(f.bwLimitStr)
		if err != nil {
			return engine.Options{}, 0, fmt.Errorf("invalid --bwlimit: %w", err)
		}
		if bwLimit > 0 {
			opts.BWLimit = engine.NewBWLimiter(bwLimit)
		}
	}

	// Load filter file if specified.
	if f.filterFile != "" {
		if err := f.chain.LoadFile(f.filterFile); err != nil {
			return engine.Options{}, 0, fmt.Errorf("load filter file: %w", err)
		}
	}
	if f.minSizeStr != "" {
		n, err := filter.ParseSize(f.minSizeStr)
		if err != nil {
			return engine.Options{}, 0, fmt.Errorf("invalid --min-size: %w", err)
		}
		f.chain.SetMinSize(n)
	}
	if f.maxSizeStr != "" {
		n, err := filter.ParseSize(f.maxSizeStr)
		if err != nil {
			return engine.Options{}, 0, fmt.Errorf("invalid --max-size: %w", err)
		}
		f.chain.SetMaxSize(n)
	}
	var maxAge time.Duration
	if f.maxAgeStr != "" {
		maxAge, err = filter.ParseAge(f.maxAgeStr)
		if err != nil {
			return engine.Options{}, 0, fmt.Errorf("invalid --max-age: %w", err)
		}
	}

	// Only set filter if it has rules or constraints.
	if !f.chain.Empty() || maxAge > 0 {
		opts.Filter = f.chain
	}
	return opts, maxAge, nil
}

func (f *cliFlags) s3ClientOptions() store.S3ClientOptions {
	return store.S3ClientOptions{
		Region:         f.region,
		Profile:        f.profile,
		Endpoint:       f.endpoint,
		Proxy:          f.proxy,
		AccessKey:      f.accessKey,
		SecretKey:      f.secretKey,
		PathStyle:      f.pathStyle,
		MaxConnections: f.workers,
	}
}

// applyConfigDefaults applies config file defaults for flags not explicitly
// set on the CLI.
//
//nolint:gocyclo // one branch per setting
func applyConfigDefaults(cmd *cobra.Command, cfg config.Config, f *cliFlags) error {
	changed := cmd.Flags().Changed
	d := cfg.Defaults

	if !changed("workers") && d.Workers != nil {
		f.workers = *d.Workers
	}
	if !changed("max-retries") && d.MaxRetries != nil {
		f.maxRetries = *d.MaxRetries
	}
	if !changed("compare") && d.Compare != nil {
		f.compareName = *d.Compare
	}
	if !changed("bwlimit") && d.BWLimit != nil {
		f.bwLimitStr = *d.BWLimit
	}
	if !changed("log-failures") && d.LogFailures != nil {
		f.logFailures = *d.LogFailures
	}
	if !changed("report-interval") && d.ReportInterval != nil {
		interval, err := time.ParseDuration(*d.ReportInterval)
		if err != nil {
			return fmt.Errorf("config %s: report_interval: %w", config.ConfigPath(), err)
		}
		f.reportInterval = interval
	}

	s := cfg.S3
	if !changed("region") && s.Region != nil {
		f.region = *s.Region
	}
	if !changed("endpoint") && s.Endpoint != nil {
		f.endpoint = *s.Endpoint
	}
	if !changed("profile") && s.Profile != nil {
		f.profile = *s.Profile
	}
	if !changed("path-style") && s.PathStyle != nil {
		f.pathStyle = *s.PathStyle
	}
	if !changed("proxy") && s.Proxy != nil {
		f.proxy = *s.Proxy
	}
	if s.AccessKey != nil && s.SecretKey != nil {
		f.accessKey = *s.AccessKey
		f.secretKey = *s.SecretKey
	}
	return nil
}

// exitCode maps a run outcome to the process exit status: 0 when every key
// was mirrored, 1 when some keys failed, 2 when the run itself failed.
func exitCode(res engine.Result) int {
	switch {
	case res.Err != nil:
		return 2
	case !res.Stats.CompletedFully:
		return 1
	default:
		return 0
	}
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
