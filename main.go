package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/docguard/docguard/internal/batch"
	"github.com/docguard/docguard/internal/config"
	"github.com/docguard/docguard/internal/docproc"
	"github.com/docguard/docguard/internal/ner"
	"github.com/docguard/docguard/internal/ocr"
	"github.com/docguard/docguard/internal/ocr/tesseract"
)

// Version information (set during build)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// parseLogLevel parses the LOG_LEVEL environment variable and returns the
// appropriate logrus level. Defaults to WarnLevel if not set or invalid.
func parseLogLevel() logrus.Level {
	logLevelStr := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	switch logLevelStr {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.WarnLevel
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(parseLogLevel())
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	app := &cli.Command{
		Name:    "docguard",
		Usage:   "Anonymise, redact, and extract documents (.txt, .docx, .pdf)",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate),
		Commands: []*cli.Command{
			processCommand(logger),
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		logger.WithError(err).Error("command failed")
		os.Exit(1)
	}
}

func processCommand(logger *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:      "process",
		Usage:     "Process one or more documents",
		ArgsUsage: "FILE [FILE...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "anonymize",
				Aliases: []string{"a"},
				Usage:   "Replace configured terms in the documents",
			},
			&cli.BoolFlag{
				Name:    "remove-pii",
				Aliases: []string{"p"},
				Usage:   "Redact detected personal information",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Emit a structured JSON snapshot instead of a document",
			},
			&cli.BoolFlag{
				Name:    "ocr",
				Value:   true,
				Usage:   "Run OCR over embedded images",
				Sources: cli.EnvVars("DOCGUARD_OCR"),
			},
			&cli.BoolFlag{
				Name:  "no-ocr",
				Usage: "Disable OCR (overrides --ocr)",
			},
			&cli.BoolFlag{
				Name:    "throughput",
				Usage:   "Favour speed over fidelity (skips OCR and model inference)",
				Sources: cli.EnvVars("DOCGUARD_THROUGHPUT"),
			},
			&cli.StringSliceFlag{
				Name:    "term",
				Aliases: []string{"t"},
				Usage:   "Term to anonymise (repeatable)",
			},
			&cli.StringFlag{
				Name:  "replacement",
				Value: "REDACTED",
				Usage: "Replacement text for anonymised terms",
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Value:   ".",
				Usage:   "Output directory",
			},
			&cli.IntFlag{
				Name:    "workers",
				Usage:   "Parallel workers (default: number of CPUs)",
				Sources: cli.EnvVars("DOCGUARD_MAX_WORKERS"),
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log per-stage details",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runProcess(ctx, cmd, logger)
		},
	}
}

func runProcess(ctx context.Context, cmd *cli.Command, logger *logrus.Logger) error {
	if cmd.Args().Len() == 0 {
		return errors.New("no input files given")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if w := cmd.Int("workers"); w > 0 {
		cfg.MaxWorkers = int(w)
	}
	if cmd.Bool("verbose") && logger.GetLevel() < logrus.DebugLevel {
		logger.SetLevel(logrus.DebugLevel)
	}

	req := docproc.Request{
		Anonymize:   cmd.Bool("anonymize"),
		RemovePII:   cmd.Bool("remove-pii"),
		ExtractJSON: cmd.Bool("json"),
		Options: docproc.Options{
			ThroughputMode:       cmd.Bool("throughput"),
			VerboseLogging:       cmd.Bool("verbose"),
			OCREnabled:           cmd.Bool("ocr") && !cmd.Bool("no-ocr"),
			AnonymizeTerms:       cmd.StringSlice("term"),
			AnonymizeReplacement: cmd.String("replacement"),
		},
	}
	if !req.Anonymize && !req.RemovePII && !req.ExtractJSON {
		return errors.New("nothing to do: pass --anonymize, --remove-pii, or --json")
	}
	if req.Anonymize && len(req.Options.AnonymizeTerms) == 0 {
		return errors.New("--anonymize requires at least one --term")
	}

	jobs, err := loadJobs(cmd.Args().Slice(), req, cfg)
	if err != nil {
		return err
	}

	outDir := cmd.String("out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	var engine ocr.Engine
	if tess, err := tesseract.NewEngine(); err != nil {
		logger.WithError(err).Debug("OCR engine unavailable")
	} else {
		engine = tess
	}
	var recognizer ner.Recognizer // external model hookup not wired in the CLI yet

	supervisor := batch.NewSupervisor(func() batch.Processor {
		return docproc.New(cfg, engine, recognizer, logger)
	}, cfg.MaxWorkers, logger)

	events := make(chan batch.Event, len(jobs)*4)
	renderDone := make(chan struct{})
	go func() {
		defer close(renderDone)
		printEvents(events)
	}()

	outcomes, summary := supervisor.Run(ctx, jobs, events, nil)
	close(events)
	<-renderDone

	if err := writeOutputs(outDir, outcomes); err != nil {
		return err
	}
	printSummary(outcomes, summary)

	if summary.Succeeded == 0 && summary.Total > 0 {
		return errors.New("all documents failed")
	}
	return nil
}

// loadJobs reads the inputs and enforces the size and count limits before
// any processing starts.
func loadJobs(paths []string, req docproc.Request, cfg config.Config) ([]batch.Job, error) {
	if len(paths) > cfg.MaxFiles {
		return nil, fmt.Errorf("too many files: %d given, limit is %d", len(paths), cfg.MaxFiles)
	}

	var total int
	jobs := make([]batch.Job, 0, len(paths))
	for i, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if len(data) > cfg.MaxFileSizeMB<<20 {
			return nil, fmt.Errorf("%s exceeds the %d MB file size limit", path, cfg.MaxFileSizeMB)
		}
		total += len(data)
		if total > cfg.MaxBatchSizeMB<<20 {
			return nil, fmt.Errorf("batch exceeds the %d MB total size limit", cfg.MaxBatchSizeMB)
		}
		jobs = append(jobs, batch.Job{
			Index:    i,
			Filename: filepath.Base(path),
			Data:     data,
			Request:  req,
		})
	}
	return jobs, nil
}

func printEvents(events <-chan batch.Event) {
	stateColors := map[batch.State]*color.Color{
		batch.StateProcessing: color.New(color.FgCyan),
		batch.StateDone:       color.New(color.FgGreen),
		batch.StateError:      color.New(color.FgRed),
		batch.StateCancelled:  color.New(color.FgYellow),
	}
	for ev := range events {
		c, ok := stateColors[ev.State]
		if !ok {
			continue // queued transitions are noise on a terminal
		}
		line := fmt.Sprintf("[%d] %s: %s", ev.JobIndex+1, ev.Filename, ev.State)
		if ev.Err != "" {
			line += " (" + ev.Err + ")"
		}
		_, _ = c.Fprintln(os.Stderr, line)
	}
}

func writeOutputs(dir string, outcomes []batch.Outcome) error {
	for _, outcome := range outcomes {
		if outcome.State != batch.StateDone {
			continue
		}
		name := docproc.OutputName(outcome.Job.Filename, outcome.Job.Request)
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, outcome.Result.Content, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}

// printSummary renders a per-document table with timing and cache details,
// followed by the batch totals.
func printSummary(outcomes []batch.Outcome, summary batch.Summary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tSTATE\tOUTPUT\tCACHE\tTIME")
	for _, outcome := range outcomes {
		switch outcome.State {
		case batch.StateDone:
			meta := outcome.Result.Metadata
			var elapsed float64
			for _, v := range meta.Timing {
				elapsed += v
			}
			cache := "miss"
			if meta.CacheHit {
				cache = "hit"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2fs\n",
				outcome.Job.Filename, outcome.State,
				docproc.OutputName(outcome.Job.Filename, outcome.Job.Request),
				cache, elapsed)
		case batch.StateError:
			fmt.Fprintf(w, "%s\t%s\t-\t-\t-\n", outcome.Job.Filename, outcome.State)
		default:
			fmt.Fprintf(w, "%s\t%s\t-\t-\t-\n", outcome.Job.Filename, outcome.State)
		}
	}
	_ = w.Flush()

	fmt.Printf("\n%d processed (%d from cache), %d failed, %d cancelled in %s\n",
		summary.Succeeded, summary.CacheHits, summary.Failed, summary.Cancelled,
		summary.Elapsed.Round(10*time.Millisecond))
}
