package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"pageoverlay/internal/config"
	"pageoverlay/internal/fetch"
	"pageoverlay/internal/markdown"
	"pageoverlay/internal/openai"
	"pageoverlay/internal/overlay"
	"pageoverlay/internal/siterules"
	"pageoverlay/internal/tree"
)

// pageJob holds what every source of one invocation shares.
type pageJob struct {
	cfg        config.Config
	opts       options
	httpClient *http.Client
	client     *openai.Client
	glossary   map[string]string
	rules      *siterules.Rules
	outPlan    outputPlan
	logger     *slog.Logger
	progress   io.Writer
}

type pageOutput struct {
	finalURL   string
	title      string
	outputPath string
	report     overlay.Report
	usage      usageStats
	restored   bool
}

func (j *pageJob) process(ctx context.Context, source string) (pageOutput, error) {
	page, err := fetch.Load(ctx, j.httpClient, source, j.opts.Readable)
	if err != nil {
		return pageOutput{}, newProcessError(errorTypeFetch, fmt.Errorf("fetch %s: %w", source, err))
	}

	doc, err := tree.ParseString(page.HTML)
	if err != nil {
		return pageOutput{}, newProcessError(errorTypeParse, fmt.Errorf("parse %s: %w", source, err))
	}
	root, err := selectRoot(doc, j.opts.RootSelector)
	if err != nil {
		return pageOutput{}, newProcessError(errorTypeParse, fmt.Errorf("select root in %s: %w", source, err))
	}

	settings, err := j.cfg.Settings(j.rules, hostOf(page.FinalURL))
	if err != nil {
		return pageOutput{}, newProcessError(errorTypeParse, err)
	}

	translator := openai.NewTranslator(j.client, j.cfg.OpenAI.Model, openai.Prompt{
		SourceLang: settings.SourceLang,
		TargetLang: settings.TargetLang,
		Glossary:   j.glossary,
	})
	backend := &failureRecorder{Translator: translator}
	logger := j.logger.With(slog.String("source", compactURL(source)))
	engine := overlay.New(backend,
		overlay.WithLogger(logger),
		overlay.WithSettings(settings),
		overlay.WithMaxConcurrency(j.cfg.MaxConcurrency),
	)

	var original string
	if j.opts.Toggle {
		original = pageText(doc, root)
	}

	_, _ = fmt.Fprintf(j.progress, "Translating %s (%s, %s)...\n", compactURL(source), settings.Mode, settings.TargetLang)
	report, err := engine.Run(ctx, doc, root, overlay.ReasonPage)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return pageOutput{}, &processError{errorType: errorTypeTranslate, usage: usageFrom(translator), report: report, err: err}
	}

	restored := false
	if j.opts.Toggle {
		report, err = toggle(ctx, engine, doc, root, original)
		if err != nil {
			errorType := errorTypeTranslate
			if errors.Is(err, errNotRestored) {
				errorType = errorTypeRestore
			}
			return pageOutput{}, &processError{errorType: errorType, usage: usageFrom(translator), report: report, err: err}
		}
		restored = true
	}
	logger.Info("page translated",
		slog.String("session", report.Session),
		slog.Int("translated", report.Translated),
		slog.Int("failed", report.Failed),
		slog.Int("discarded", report.Discarded),
	)

	usage := usageFrom(translator)
	outPath, err := j.write(doc, source)
	if err != nil {
		return pageOutput{}, &processError{errorType: errorTypeOutput, usage: usage, report: report, err: err}
	}

	if report.Failed > 0 {
		cause := backend.err()
		if cause == nil {
			cause = errors.New("translation failed")
		}
		return pageOutput{}, &processError{
			errorType:  errorTypeTranslate,
			outputPath: outPath,
			usage:      usage,
			report:     report,
			err:        fmt.Errorf("%d of %d unit(s) failed: %w", report.Failed, report.Dispatched, cause),
		}
	}

	return pageOutput{
		finalURL:   page.FinalURL,
		title:      page.Title,
		outputPath: outPath,
		report:     report,
		usage:      usage,
		restored:   restored,
	}, nil
}

var errNotRestored = errors.New("page not restored after toggling translations off")

// toggle switches translations off, checks that the original text is back, and
// switches them on again. It returns the report of the final pass.
func toggle(ctx context.Context, engine *overlay.Engine, doc *tree.Document, root *html.Node, original string) (overlay.Report, error) {
	off, err := engine.Run(ctx, doc, root, overlay.ReasonToggle)
	if err != nil {
		return off, err
	}
	if n := len(overlay.FindOverlays(doc, root)); n > 0 {
		return off, fmt.Errorf("%w: %d overlay(s) left", errNotRestored, n)
	}
	if got := pageText(doc, root); got != original {
		return off, errNotRestored
	}

	on, err := engine.Run(ctx, doc, root, overlay.ReasonToggle)
	if err == nil {
		err = ctx.Err()
	}
	return on, err
}

// pageText is the text under root, ignoring embedded frames.
func pageText(doc *tree.Document, root *html.Node) string {
	text, _ := doc.Text(root, tree.IsFrame)
	return text
}

func (j *pageJob) write(doc *tree.Document, source string) (string, error) {
	rendered, err := doc.String()
	if err != nil {
		return "", fmt.Errorf("render %s: %w", source, err)
	}
	if j.opts.Format == formatMarkdown {
		rendered, err = markdown.FromOverlaidHTML(rendered)
		if err != nil {
			return "", fmt.Errorf("convert %s to markdown: %w", source, err)
		}
	}

	outPath, err := outputPathForSource(j.outPlan, source, j.opts.Format)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(outPath, []byte(rendered), 0o644); err != nil {
		return "", fmt.Errorf("write output file %s: %w", outPath, err)
	}
	return outPath, nil
}

func selectRoot(doc *tree.Document, selector string) (*html.Node, error) {
	matcher, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid root selector %q: %w", selector, err)
	}
	found := goquery.NewDocumentFromNode(doc.Root).FindMatcher(matcher).First()
	if found.Length() == 0 {
		return nil, fmt.Errorf("root selector %q matched nothing", selector)
	}
	return found.Get(0), nil
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

// failureRecorder remembers the first backend error so a failed page can report it.
type failureRecorder struct {
	overlay.Translator

	mu    sync.Mutex
	first error
}

func (r *failureRecorder) Translate(ctx context.Context, text string) (string, error) {
	translated, err := r.Translator.Translate(ctx, text)
	if err != nil {
		r.mu.Lock()
		if r.first == nil {
			r.first = err
		}
		r.mu.Unlock()
	}
	return translated, err
}

func (r *failureRecorder) err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.first
}

func newProcessError(errorType string, err error) error {
	if err == nil {
		return nil
	}
	return &processError{errorType: errorType, err: err}
}
