package cli

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"pageoverlay/internal/fetch"
)

type outputPlan struct {
	outputDir  string
	singleFile string
	summaryDir string
}

func buildOutputPlan(opts options) (outputPlan, error) {
	if opts.OutPath == "" {
		return outputPlan{
			outputDir:  defaultOutDir,
			summaryDir: defaultOutDir,
		}, nil
	}

	if len(opts.Sources) == 1 {
		return outputPlan{
			singleFile: opts.OutPath,
			summaryDir: filepath.Dir(opts.OutPath),
		}, nil
	}

	return outputPlan{
		outputDir:  opts.OutPath,
		summaryDir: opts.OutPath,
	}, nil
}

func prepareOutputPlan(plan outputPlan) error {
	if plan.outputDir != "" {
		if err := os.MkdirAll(plan.outputDir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	if plan.singleFile != "" {
		dir := filepath.Dir(plan.singleFile)
		if dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
		}
	}

	if plan.summaryDir != "" && plan.summaryDir != "." {
		if err := os.MkdirAll(plan.summaryDir, 0o755); err != nil {
			return fmt.Errorf("create summary directory: %w", err)
		}
	}

	return nil
}

func outputPathForSource(plan outputPlan, source string, format string) (string, error) {
	if plan.singleFile != "" {
		return plan.singleFile, nil
	}

	ext := ".html"
	if format == formatMarkdown {
		ext = ".md"
	}

	if !fetch.IsURL(source) {
		return filepath.Join(plan.outputDir, filenameFromPath(source)+ext), nil
	}
	filename, err := filenameFromURL(source)
	if err != nil {
		return "", err
	}
	return filepath.Join(plan.outputDir, filename+ext), nil
}

func filenameFromURL(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("invalid URL: %s", rawURL)
	}

	base := parsed.Host + parsed.Path
	if parsed.RawQuery != "" {
		base += "_" + parsed.RawQuery
	}
	base = strings.ReplaceAll(base, "/", "_")
	base = sanitizeFilename(base)
	base = strings.Trim(base, "_")
	if base == "" {
		base = "output"
	}
	return base, nil
}

func filenameFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.Trim(sanitizeFilename(base), "_")
	if base == "" {
		base = "output"
	}
	return base
}

func sanitizeFilename(s string) string {
	var b strings.Builder
	lastUnderscore := false

	for _, r := range s {
		allowed := (r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '.' || r == '-' || r == '_'

		if allowed {
			b.WriteRune(r)
			lastUnderscore = r == '_'
			continue
		}

		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}

	return b.String()
}

func compactURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}

	path := strings.TrimSuffix(parsed.Path, "/")
	if path == "" {
		return parsed.Host
	}

	return parsed.Host + path
}
