// Package summarizer provides summary generation for recording results.
package summarizer

import "time"

// Summary contains all data collected during a recording session.
type Summary struct {
	// Metadata
	GeneratedAt time.Time `json:"generatedAt"`

	Source   SourceInfo `json:"source"`
	Settings Settings   `json:"settings"`
	Video    VideoInfo  `json:"video"`
}

// SourceInfo describes what was captured.
type SourceInfo struct {
	Kind   string `json:"kind"`
	URL    string `json:"url,omitempty"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Settings contains the encoder configuration.
type Settings struct {
	Encoder          string `json:"encoder"`
	Hardware         bool   `json:"hardware"`
	Bitrate          int    `json:"bitrate"`
	FrameRate        int    `json:"frameRate"`
	KeyFrameInterval int    `json:"keyFrameInterval"` // seconds
}

// VideoInfo contains information about the output video.
type VideoInfo struct {
	Path       string `json:"path"`
	Codec      string `json:"codec"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	FrameCount int64  `json:"frameCount"`
	Samples    int64  `json:"samples"`
	Fragments  int    `json:"fragments"`
	DurationMs int64  `json:"durationMs"`
	FileSize   int64  `json:"fileSize"`
}

// NewSummary creates a new Summary with the current timestamp.
func NewSummary() *Summary {
	return &Summary{
		GeneratedAt: time.Now(),
	}
}

// Builder provides a fluent interface for building a Summary.
type Builder struct {
	summary *Summary
}

// NewBuilder creates a new Builder.
func NewBuilder() *Builder {
	return &Builder{
		summary: NewSummary(),
	}
}

// WithSource sets the capture source.
func (b *Builder) WithSource(kind, url string, width, height int) *Builder {
	b.summary.Source = SourceInfo{
		Kind:   kind,
		URL:    url,
		Width:  width,
		Height: height,
	}
	return b
}

// WithSettings sets encoder settings.
func (b *Builder) WithSettings(settings Settings) *Builder {
	b.summary.Settings = settings
	return b
}

// WithVideo sets video output information.
func (b *Builder) WithVideo(video VideoInfo) *Builder {
	b.summary.Video = video
	return b
}

// Build returns the constructed Summary.
func (b *Builder) Build() *Summary {
	return b.summary
}
