package summarizer

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Formatter defines the interface for formatting a Summary.
type Formatter interface {
	// Format converts a Summary to a formatted string.
	Format(summary *Summary) string
}

// FormatFunc is a function adapter for the Formatter interface.
type FormatFunc func(summary *Summary) string

// Format implements the Formatter interface.
func (f FormatFunc) Format(summary *Summary) string {
	return f(summary)
}

// ForPath picks the JSON formatter for .json paths and Markdown otherwise.
func ForPath(path string, opts ...MarkdownOption) Formatter {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return JSONFormatter{}
	}
	return NewMarkdownFormatter(opts...)
}

// JSONFormatter renders an indented JSON document.
type JSONFormatter struct{}

// Format implements Formatter.
func (JSONFormatter) Format(summary *Summary) string {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data) + "\n"
}

// MarkdownOption configures a MarkdownFormatter.
type MarkdownOption func(*MarkdownFormatter)

// WithTranslator translates headings and labels.
func WithTranslator(t func(string) string) MarkdownOption {
	return func(f *MarkdownFormatter) { f.t = t }
}

// WithVersion adds the tool version to the footer.
func WithVersion(version string) MarkdownOption {
	return func(f *MarkdownFormatter) { f.version = version }
}

// MarkdownFormatter renders a human readable report.
type MarkdownFormatter struct {
	t       func(string) string
	version string
}

// NewMarkdownFormatter creates a Markdown formatter.
func NewMarkdownFormatter(opts ...MarkdownOption) *MarkdownFormatter {
	f := &MarkdownFormatter{t: func(s string) string { return s }}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format implements Formatter.
func (f *MarkdownFormatter) Format(s *Summary) string {
	var b strings.Builder
	row := func(label, value string) {
		fmt.Fprintf(&b, "| %s | %s |\n", f.t(label), value)
	}
	table := func(title string) {
		fmt.Fprintf(&b, "\n## %s\n\n| %s | %s |\n|---|---|\n", f.t(title), f.t("Item"), f.t("Value"))
	}

	fmt.Fprintf(&b, "# %s\n\n", f.t("Recording Summary"))
	fmt.Fprintf(&b, "%s: %s\n", f.t("Generated"), s.GeneratedAt.Format(time.RFC3339))

	table("Source")
	row("Kind", s.Source.Kind)
	if s.Source.URL != "" {
		row("URL", s.Source.URL)
	}
	row("Capture Size", fmt.Sprintf("%dx%d", s.Source.Width, s.Source.Height))

	table("Encoder")
	encoder := s.Settings.Encoder
	if encoder == "" {
		encoder = "N/A"
	}
	kind := f.t("Software")
	if s.Settings.Hardware {
		kind = f.t("Hardware")
	}
	row("Encoder", fmt.Sprintf("%s (%s)", encoder, kind))
	row("Bitrate", formatBitrate(s.Settings.Bitrate))
	row("Frame Rate", fmt.Sprintf("%d fps", s.Settings.FrameRate))
	row("Key Frame Interval", fmt.Sprintf("%d s", s.Settings.KeyFrameInterval))

	table("Video")
	row("File", s.Video.Path)
	if s.Video.Codec != "" {
		row("Codec", s.Video.Codec)
	}
	row("Video Size", fmt.Sprintf("%dx%d", s.Video.Width, s.Video.Height))
	row("Frames Encoded", fmt.Sprintf("%d", s.Video.FrameCount))
	row("Samples", fmt.Sprintf("%d", s.Video.Samples))
	if s.Video.Fragments > 0 {
		row("Fragments", fmt.Sprintf("%d", s.Video.Fragments))
	}
	row("Duration", fmt.Sprintf("%d ms", s.Video.DurationMs))
	row("File Size", formatBytes(s.Video.FileSize))

	if f.version != "" {
		fmt.Fprintf(&b, "\n---\n%s %s\n", f.t("Generated by screencap"), f.version)
	}
	return b.String()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit && exp < 2; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(n)/float64(div), "KMG"[exp])
}

func formatBitrate(bps int) string {
	switch {
	case bps >= 1_000_000:
		return fmt.Sprintf("%.2f Mbps", float64(bps)/1_000_000)
	case bps >= 1_000:
		return fmt.Sprintf("%.1f kbps", float64(bps)/1_000)
	default:
		return fmt.Sprintf("%d bps", bps)
	}
}
