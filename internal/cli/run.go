// Package cli implements the pageoverlay command: load pages, overlay translations
// onto them, and write the results.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"pageoverlay/internal/config"
	"pageoverlay/internal/glossary"
	"pageoverlay/internal/logging"
	"pageoverlay/internal/openai"
	"pageoverlay/internal/overlay"
	"pageoverlay/internal/siterules"
	"pageoverlay/internal/version"
)

const (
	defaultOutDir   = "out"
	defaultRoot     = "body"
	summaryFileName = "_summary.json"

	formatHTML     = "html"
	formatMarkdown = "markdown"

	errorTypeFetch     = "fetch_failed"
	errorTypeParse     = "parse_failed"
	errorTypeTranslate = "translate_failed"
	errorTypeRestore   = "restore_failed"
	errorTypeOutput    = "output_failed"
	errorTypeUnknown   = "unknown"
)

type options struct {
	Model           string
	OutPath         string
	Format          string
	RootSelector    string
	Mode            string
	SourceLang      string
	TargetLang      string
	MainContentOnly bool
	SiteRules       string
	StylePreset     string
	CustomCSS       string
	Toggle          bool
	Readable        bool
	ShowVersion     bool
	Workers         int
	MaxRetries      int
	FailFast        bool
	PriceConfig     string
	Glossary        string
	Timeout         time.Duration
	LogLevel        string
	LogFormat       string
	ShowHelp        bool
	Sources         []string
}

// apply copies flag values over the environment configuration.
func (o options) apply(cfg config.Config) config.Config {
	cfg.Mode = o.Mode
	cfg.SourceLang = o.SourceLang
	cfg.TargetLang = o.TargetLang
	cfg.MainContentOnly = o.MainContentOnly
	cfg.SiteRules = o.SiteRules
	cfg.StylePreset = o.StylePreset
	cfg.CustomCSS = o.CustomCSS
	cfg.MaxConcurrency = o.Workers
	cfg.LogLevel = o.LogLevel
	cfg.LogFormat = o.LogFormat
	cfg.OpenAI.Model = o.Model
	cfg.OpenAI.MaxRetries = o.MaxRetries
	cfg.OpenAI.Timeout = o.Timeout
	return cfg
}

type processError struct {
	errorType  string
	outputPath string
	usage      usageStats
	report     overlay.Report
	err        error
}

func (e *processError) Error() string {
	return e.err.Error()
}

func (e *processError) Unwrap() error {
	return e.err
}

func Run(args []string, stdout io.Writer, stderr io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	opts, err := parseFlags(args, stderr, cfg)
	if err != nil {
		return err
	}
	if opts.ShowHelp {
		return nil
	}
	if opts.ShowVersion {
		_, _ = fmt.Fprintln(stdout, version.String())
		return nil
	}

	opts.Sources = normalizeSources(opts.Sources)
	if len(opts.Sources) == 0 {
		return errors.New("at least one URL or file is required")
	}

	cfg = opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	apiKey := strings.TrimSpace(cfg.OpenAI.APIKey)
	if apiKey == "" {
		return errors.New("OPENAI_API_KEY is required")
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := logging.New(
		logging.WithLevel(level),
		logging.WithFormat(logging.Format(cfg.LogFormat)),
		logging.WithOutput(stderr),
	)

	httpClient := &http.Client{Timeout: cfg.OpenAI.Timeout}

	glossaryMap, err := glossary.Load(opts.Glossary)
	if err != nil {
		return err
	}

	rules, err := siterules.Load(cfg.SiteRules)
	if err != nil {
		return err
	}

	prices, err := loadPriceConfig(opts.PriceConfig)
	if err != nil {
		return err
	}

	outPlan, err := buildOutputPlan(opts)
	if err != nil {
		return err
	}
	if err := prepareOutputPlan(outPlan); err != nil {
		return err
	}

	job := &pageJob{
		cfg:        cfg,
		opts:       opts,
		httpClient: httpClient,
		client:     openai.NewClient(apiKey, cfg.OpenAI.BaseURL, httpClient, cfg.OpenAI.MaxRetries),
		glossary:   glossaryMap,
		rules:      rules,
		outPlan:    outPlan,
		logger:     logger,
		progress:   stderr,
	}

	runCtx, stopSignal := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignal()
	runStart := time.Now()

	summary := taskSummary{
		GeneratedAt: optsStartTime(runStart),
		Model:       cfg.OpenAI.Model,
		Mode:        cfg.Mode,
		TargetLang:  cfg.TargetLang,
		Format:      opts.Format,
		TotalURLs:   len(opts.Sources),
		Results:     make([]summaryItem, 0, len(opts.Sources)),
	}

	for _, source := range opts.Sources {
		itemStart := time.Now()
		item := summaryItem{SourceURL: source}

		output, err := job.process(runCtx, source)
		item.DurationMS = time.Since(itemStart).Milliseconds()
		if err != nil {
			details := errorDetails(err)
			item.Success = false
			item.ErrorType = details.errorType
			item.ErrorMessage = details.message
			item.OutputPath = details.outputPath
			item.setReport(details.report)
			item.setUsage(details.usage, prices, cfg.OpenAI.Model)
			summary.FailureCount++
			summary.add(item)
			_, _ = fmt.Fprintf(stderr, "Failed [%s]: %s (%s)\n", details.errorType, compactURL(source), details.message)
			if opts.FailFast {
				_, _ = fmt.Fprintln(stderr, "Fail-fast enabled: stop after first failure.")
				break
			}
			continue
		}

		item.Success = true
		item.FinalURL = output.finalURL
		item.Title = output.title
		item.OutputPath = output.outputPath
		item.Restored = output.restored
		item.setReport(output.report)
		item.setUsage(output.usage, prices, cfg.OpenAI.Model)
		summary.SuccessCount++
		summary.add(item)

		_, _ = fmt.Fprintf(stdout, "Output: %s\n", output.outputPath)
	}

	summary.TotalDurationMS = time.Since(runStart).Milliseconds()

	if len(opts.Sources) > 1 {
		summaryPath := filepath.Join(outPlan.summaryDir, summaryFileName)
		if err := writeSummary(summaryPath, summary); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(stdout, "Summary: %s\n", summaryPath)
	}

	_, _ = fmt.Fprintf(
		stdout,
		"Done: %d succeeded, %d failed, total %s\n",
		summary.SuccessCount,
		summary.FailureCount,
		time.Duration(summary.TotalDurationMS)*time.Millisecond,
	)
	_, _ = fmt.Fprintf(
		stdout,
		"Units: %d translated, %d failed, %d unchanged\n",
		summary.Translated,
		summary.Failed,
		summary.Discarded,
	)

	if summary.InputTokens > 0 || summary.OutputTokens > 0 || summary.TotalTokens > 0 {
		_, _ = fmt.Fprintf(
			stdout,
			"Usage: input=%d output=%d total=%d tokens\n",
			summary.InputTokens,
			summary.OutputTokens,
			summary.TotalTokens,
		)
	}
	if summary.MissingUsageCount > 0 {
		_, _ = fmt.Fprintf(
			stderr,
			"Usage info missing for %d request(s); totals may be partial.\n",
			summary.MissingUsageCount,
		)
	}
	if summary.CostEstimateModel != "" {
		_, _ = fmt.Fprintf(stdout, "Estimated cost (%s): $%.6f\n", summary.CostEstimateModel, summary.CostEstimate)
		if summary.CostEstimatePartial {
			_, _ = fmt.Fprintln(stderr, "Cost estimate is partial due to missing usage data.")
		}
	}

	if summary.FailureCount > 0 {
		return fmt.Errorf("%d URL(s) failed", summary.FailureCount)
	}
	return nil
}

func parseFlags(args []string, stderr io.Writer, cfg config.Config) (options, error) {
	fs := flag.NewFlagSet("pageoverlay", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := options{}
	fs.StringVar(&opts.Model, "model", cfg.OpenAI.Model, "OpenAI model name")
	fs.StringVar(&opts.OutPath, "out", "", "Output path: file for a single source, directory for several (default: ./out/)")
	fs.StringVar(&opts.Format, "format", formatHTML, "Output format: html or markdown")
	fs.StringVar(&opts.RootSelector, "root", defaultRoot, "CSS selector of the subtree to translate")
	fs.StringVar(&opts.Mode, "mode", cfg.Mode, "Translation mode: bilingual or translation-only")
	fs.StringVar(&opts.SourceLang, "source-lang", cfg.SourceLang, "Source language tag (und = detect)")
	fs.StringVar(&opts.TargetLang, "target-lang", cfg.TargetLang, "Target language tag")
	fs.BoolVar(&opts.MainContentOnly, "main-content-only", cfg.MainContentOnly, "Skip navigation, header, footer and aside regions")
	fs.StringVar(&opts.SiteRules, "site-rules", cfg.SiteRules, "Path to YAML site rules with skip/force_block selectors")
	fs.StringVar(&opts.StylePreset, "style", cfg.StylePreset, "Style preset class applied to translated content")
	fs.StringVar(&opts.CustomCSS, "css", cfg.CustomCSS, "Custom CSS injected once per style scope")
	fs.BoolVar(&opts.Toggle, "toggle", false, "Toggle translations off and on again, verifying the page is restored in between")
	fs.BoolVar(&opts.Readable, "readable", false, "Reduce pages to their main article before translating")
	fs.BoolVar(&opts.ShowVersion, "version", false, "Print version information and exit")
	fs.IntVar(&opts.Workers, "workers", cfg.MaxConcurrency, "Maximum concurrent translation requests")
	fs.IntVar(&opts.MaxRetries, "max-retries", cfg.OpenAI.MaxRetries, "Maximum retries for OpenAI requests")
	fs.BoolVar(&opts.FailFast, "fail-fast", false, "Stop at first source failure (default: continue for partial success)")
	fs.StringVar(&opts.PriceConfig, "price-config", "", "Optional JSON pricing config file for cost estimation")
	fs.StringVar(&opts.Glossary, "glossary", "", "Path to glossary JSON or YAML map, e.g. {\"term\":\"translation\"}")
	fs.DurationVar(&opts.Timeout, "timeout", cfg.OpenAI.Timeout, "HTTP timeout, e.g. 120s")
	fs.StringVar(&opts.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn or error")
	fs.StringVar(&opts.LogFormat, "log-format", cfg.LogFormat, "Log format: text or json")

	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: pageoverlay [flags] <url|file> [url|file...]")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Example:")
		fmt.Fprintln(stderr, "  pageoverlay --target-lang de --mode translation-only https://go.dev/doc/effective_go")
		fmt.Fprintln(stderr, "")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			opts.ShowHelp = true
			return opts, nil
		}
		return options{}, err
	}
	if opts.Timeout <= 0 {
		return options{}, errors.New("--timeout must be positive")
	}
	if opts.Workers <= 0 {
		return options{}, errors.New("--workers must be greater than 0")
	}
	if opts.MaxRetries < 0 {
		return options{}, errors.New("--max-retries must be 0 or greater")
	}
	switch opts.Format {
	case formatHTML, formatMarkdown:
	default:
		return options{}, fmt.Errorf("--format must be %s or %s", formatHTML, formatMarkdown)
	}
	if strings.TrimSpace(opts.RootSelector) == "" {
		opts.RootSelector = defaultRoot
	}

	opts.Sources = fs.Args()
	if opts.ShowVersion {
		return opts, nil
	}
	if len(opts.Sources) == 0 {
		fs.Usage()
		return options{}, errors.New("at least one URL or file is required")
	}

	return opts, nil
}

func normalizeSources(sources []string) []string {
	out := make([]string, 0, len(sources))
	for _, raw := range sources {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

type failureDetails struct {
	errorType  string
	message    string
	outputPath string
	usage      usageStats
	report     overlay.Report
}

func errorDetails(err error) failureDetails {
	if err == nil {
		return failureDetails{}
	}

	var stageErr *processError
	if errors.As(err, &stageErr) {
		return failureDetails{
			errorType:  stageErr.errorType,
			message:    stageErr.err.Error(),
			outputPath: stageErr.outputPath,
			usage:      stageErr.usage,
			report:     stageErr.report,
		}
	}

	return failureDetails{errorType: errorTypeUnknown, message: err.Error()}
}

func optsStartTime(start time.Time) string {
	return start.UTC().Format(time.RFC3339)
}
