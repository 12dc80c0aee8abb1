// Package main provides the CLI entry point for screencap.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/user/screencap/pkg/adapters/chromesource"
	"github.com/user/screencap/pkg/adapters/codecdetect"
	"github.com/user/screencap/pkg/adapters/h264decoder"
	"github.com/user/screencap/pkg/adapters/logger"
	"github.com/user/screencap/pkg/adapters/mp4muxer"
	"github.com/user/screencap/pkg/adapters/osfilesystem"
	"github.com/user/screencap/pkg/adapters/patternsource"
	"github.com/user/screencap/pkg/adapters/smartencoder"
	"github.com/user/screencap/pkg/adapters/stillcodec"
	"github.com/user/screencap/pkg/adapters/wstransport"
	"github.com/user/screencap/pkg/config"
	"github.com/user/screencap/pkg/framebus"
	"github.com/user/screencap/pkg/httpbridge"
	"github.com/user/screencap/pkg/orchestrator"
	"github.com/user/screencap/pkg/pipeline"
	"github.com/user/screencap/pkg/ports"
	"github.com/user/screencap/pkg/stages/record"
	"github.com/user/screencap/pkg/summarizer"
)

var version = "dev"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, l10n.T("Interrupted, shutting down..."))
		cancel()
	}()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Fprintln(c.App.Writer, l10n.F("screencap version %s", c.App.Version))
	}

	return &cli.App{
		Name:    "screencap",
		Usage:   l10n.T("Capture a screen source for live preview and H.264 recording"),
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    l10n.T("YAML configuration file"),
				Category: l10n.T("Configuration"),
			},
			&cli.StringFlag{
				Name:     "log-level",
				Usage:    l10n.T("Log level (debug, info, warn, error)"),
				Category: l10n.T("Logging"),
			},
			&cli.BoolFlag{
				Name:     "quiet",
				Aliases:  []string{"q"},
				Usage:    l10n.T("Suppress all log output"),
				Category: l10n.T("Logging"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  l10n.T("Serve the host bridge and the live preview"),
				Flags:  append(sourceFlags(), serveFlags()...),
				Action: runServe,
			},
			{
				Name:      "record",
				Usage:     l10n.T("Record the capture source to an MP4 file"),
				ArgsUsage: " ",
				Flags:     append(sourceFlags(), recordFlags()...),
				Action:    runRecord,
			},
			{
				Name:      "inspect",
				Usage:     l10n.T("Show the codec and track layout of an MP4 file"),
				ArgsUsage: l10n.T("FILE"),
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "frame", Value: -1, Usage: l10n.T("Decode this frame index to a PNG file"), Category: l10n.T("Output")},
					&cli.StringFlag{Name: "out", Usage: l10n.T("PNG path for --frame"), Category: l10n.T("Output")},
					&cli.StringFlag{Name: "ffmpeg", Usage: l10n.T("Path to the ffmpeg executable"), Category: l10n.T("Encoding")},
				},
				Action: runInspect,
			},
			{
				Name:  "version",
				Usage: l10n.T("Show version information"),
				Action: func(c *cli.Context) error {
					cli.VersionPrinter(c)
					return nil
				},
			},
		},
	}
}

func sourceFlags() []cli.Flag {
	category := l10n.T("Capture")
	return []cli.Flag{
		&cli.StringFlag{Name: "source", Usage: l10n.T("Frame source (pattern or chrome)"), Category: category},
		&cli.StringFlag{Name: "url", Usage: l10n.T("Page to capture with the chrome source"), Category: category},
		&cli.IntFlag{Name: "width", Usage: l10n.T("Capture width in pixels"), Category: category},
		&cli.IntFlag{Name: "height", Usage: l10n.T("Capture height in pixels"), Category: category},
		&cli.IntFlag{Name: "fps", Usage: l10n.T("Capture frame rate"), Category: category},
		&cli.StringFlag{Name: "chrome-path", Usage: l10n.T("Path to the Chrome executable"), Category: category},
		&cli.BoolFlag{Name: "no-headless", Usage: l10n.T("Show the browser window"), Category: category},
		&cli.StringFlag{Name: "ffmpeg", Usage: l10n.T("Path to the ffmpeg executable"), Category: l10n.T("Encoding")},
		&cli.StringFlag{Name: "encoder", Usage: l10n.T("Preferred ffmpeg H.264 encoder"), Category: l10n.T("Encoding")},
		&cli.BoolFlag{Name: "allow-software", Usage: l10n.T("Fall back to libx264 when no hardware encoder works"), Category: l10n.T("Encoding")},
	}
}

func serveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "listen", Usage: l10n.T("HTTP listen address"), Category: l10n.T("Server")},
		&cli.BoolFlag{Name: "autostart", Usage: l10n.T("Start capturing immediately"), Category: l10n.T("Server")},
	}
}

func recordFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: l10n.T("Output MP4 file path"), Category: l10n.T("Output")},
		&cli.DurationFlag{Name: "duration", Aliases: []string{"d"}, Value: 10 * time.Second, Usage: l10n.T("Recording duration"), Category: l10n.T("Output")},
		&cli.StringFlag{Name: "summary", Usage: l10n.T("Write a recording summary (.md or .json)"), Category: l10n.T("Output")},
	}
}

// loadConfig reads the configuration file, if any, and applies flag overrides.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Defaults()
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("source") {
		cfg.Capture.Source = c.String("source")
	}
	if c.IsSet("url") {
		cfg.Capture.URL = c.String("url")
	}
	if c.IsSet("width") {
		cfg.Capture.Width = c.Int("width")
	}
	if c.IsSet("height") {
		cfg.Capture.Height = c.Int("height")
	}
	if c.IsSet("fps") {
		cfg.Capture.FPS = c.Int("fps")
	}
	if c.IsSet("chrome-path") {
		cfg.Capture.ChromePath = c.String("chrome-path")
	}
	if c.Bool("no-headless") {
		cfg.Capture.Headless = false
	}
	if c.IsSet("ffmpeg") {
		cfg.Record.FFmpegPath = c.String("ffmpeg")
	}
	if c.IsSet("encoder") {
		cfg.Record.Encoder = c.String("encoder")
	}
	if c.Bool("allow-software") {
		cfg.Record.AllowSoftware = true
	}
	if c.IsSet("listen") {
		cfg.Server.Listen = c.String("listen")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func newLogger(c *cli.Context, cfg config.Config) (ports.Logger, error) {
	if c.Bool("quiet") {
		return logger.NewNoop(), nil
	}
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if level == ports.LevelQuiet {
		return logger.NewNoop(), nil
	}
	return logger.NewConsole(level), nil
}

// newSourceProvider returns a provider creating a fresh source per session.
func newSourceProvider(cfg config.Config, log ports.Logger) ports.SourceProvider {
	return ports.SourceProviderFunc(func(ctx context.Context) (ports.FrameSource, error) {
		switch cfg.Capture.Source {
		case config.SourceChrome:
			return chromesource.New(chromesource.Options{
				ChromePath: cfg.Capture.ChromePath,
				URL:        cfg.Capture.URL,
				Width:      cfg.Capture.Width,
				Height:     cfg.Capture.Height,
				Headless:   cfg.Capture.Headless,
			}, log), nil
		default:
			return patternsource.New(patternsource.Options{
				Width:  cfg.Capture.Width,
				Height: cfg.Capture.Height,
				FPS:    cfg.Capture.FPS,
				Label:  "screencap",
			})
		}
	})
}

func newEncoderSelector(cfg config.Config, log ports.Logger) *smartencoder.Selector {
	return smartencoder.New(smartencoder.Options{
		FFmpegPath:    cfg.Record.FFmpegPath,
		Preferred:     cfg.Record.Encoder,
		AllowSoftware: cfg.Record.AllowSoftware,
		Logger:        log,
	})
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log, err := newLogger(c, cfg)
	if err != nil {
		return err
	}

	hub := wstransport.New(wstransport.Options{}, log)
	orch := orchestrator.New(cfg.ToOrchestratorConfig(), orchestrator.Deps{
		Sources:   newSourceProvider(cfg, log),
		Codec:     stillcodec.New(),
		Transport: hub,
		Encoders:  newEncoderSelector(cfg, log),
		Muxers:    mp4muxer.Factory{FrameRate: cfg.Record.FrameRate},
		FS:        osfilesystem.New(),
		Logger:    log,
	})

	server := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           httpbridge.New(orch, hub, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if c.Bool("autostart") {
		if res := orch.Start(c.Context); !res.OK() {
			return errors.New(res.Message)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	log.Info(l10n.F("Serving on http://%s (preview at /ws)", cfg.Server.Listen))

	select {
	case err := <-errCh:
		orch.Stop()
		hub.Close()
		return err
	case <-c.Context.Done():
	}

	orch.Stop()
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func runRecord(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log, err := newLogger(c, cfg)
	if err != nil {
		return err
	}

	output := c.String("output")
	if output == "" {
		output = fmt.Sprintf("screencap-%s.mp4", uuid.NewString()[:8])
	}
	fs := osfilesystem.New()
	if err := reserveOutput(fs, output); err != nil {
		return err
	}
	started := false
	defer func() {
		if !started {
			fs.Remove(output)
		}
	}()

	source, err := newSourceProvider(cfg, log).Acquire(c.Context)
	if err != nil {
		return err
	}
	srcW, srcH := source.Size()

	bus := framebus.New(log, pipeline.SystemClock)
	recCfg := cfg.ToRecordConfig(srcW, srcH)
	selector := newEncoderSelector(cfg, log)
	recorder := record.New(
		recCfg,
		selector,
		mp4muxer.Factory{FrameRate: cfg.Record.FrameRate},
		fs,
		pipeline.SystemClock,
		log,
		nil,
	)
	if err := recorder.Start(output); err != nil {
		return err
	}
	started = true
	bus.Register(recorder)

	log.Info(l10n.F("Recording %s for %s...", output, c.Duration("duration")))

	runCtx, cancel := context.WithTimeout(c.Context, c.Duration("duration"))
	defer cancel()
	runErr := bus.Run(runCtx, source)

	bus.Unregister(recorder)
	if runErr != nil {
		recorder.Abort()
		recorder.Wait()
		return runErr
	}
	recorder.Stop()
	recorder.Wait()

	res := recorder.Result()
	if res.Err != nil {
		return res.Err
	}
	log.Info(l10n.F("Output saved to %s (%d frames, %s)", res.Path, res.FramesEncoded, res.Duration.Round(time.Millisecond)))

	if path := c.String("summary"); path != "" {
		if err := writeSummary(path, cfg, srcW, srcH, recCfg, selector, res); err != nil {
			return err
		}
		log.Info(l10n.F("Summary saved to %s", path))
	}
	return nil
}

// reserveOutput creates path empty so nothing else can take it while the
// recorder starts. An existing file is never touched.
func reserveOutput(fs ports.FileSystem, path string) error {
	if err := fs.CreateExclusive(path); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", orchestrator.ErrFileExists, path)
		}
		return err
	}
	return nil
}

func writeSummary(path string, cfg config.Config, srcW, srcH int, recCfg record.Config, selector *smartencoder.Selector, res record.Result) error {
	info, _ := selector.Info()
	video := summarizer.VideoInfo{
		Path:       res.Path,
		Width:      recCfg.Width,
		Height:     recCfg.Height,
		FrameCount: res.FramesEncoded,
		Samples:    res.SamplesWritten,
		DurationMs: res.Duration.Milliseconds(),
	}
	if report, err := codecdetect.InspectFile(res.Path); err == nil {
		video.Codec = string(report.Codec)
		video.Fragments = report.Fragments
	}
	if st, err := os.Stat(res.Path); err == nil {
		video.FileSize = st.Size()
	}

	url := ""
	if cfg.Capture.Source == config.SourceChrome {
		url = cfg.Capture.URL
	}
	summary := summarizer.NewBuilder().
		WithSource(cfg.Capture.Source, url, srcW, srcH).
		WithSettings(summarizer.Settings{
			Encoder:          info.Encoder,
			Hardware:         info.Hardware,
			Bitrate:          recCfg.Bitrate(),
			FrameRate:        recCfg.FrameRate,
			KeyFrameInterval: recCfg.KeyFrameInterval,
		}).
		WithVideo(video).
		Build()

	formatter := summarizer.ForPath(path, summarizer.WithTranslator(l10n.T), summarizer.WithVersion(version))
	return summarizer.NewWriter(formatter, osfilesystem.New()).Write(path, summary)
}

func runInspect(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return errors.New(l10n.T("inspect requires a file argument"))
	}

	report, err := codecdetect.InspectFile(path)
	if err != nil {
		return err
	}

	w := c.App.Writer
	fmt.Fprintln(w, l10n.F("Codec: %s", report.Codec))
	fmt.Fprintln(w, l10n.F("Video tracks: %d", report.VideoTracks))
	fmt.Fprintln(w, l10n.F("Size: %dx%d", report.Width, report.Height))
	fmt.Fprintln(w, l10n.F("Fragmented: %t (%d fragments)", report.Fragmented, report.Fragments))
	fmt.Fprintln(w, l10n.F("Samples: %d", report.Samples))
	fmt.Fprintln(w, l10n.F("Duration: %s", report.Duration))

	if index := c.Int("frame"); index >= 0 {
		return extractFrame(c, path, index)
	}
	return nil
}

// extractFrame decodes one frame of the recording and saves it as PNG.
func extractFrame(c *cli.Context, path string, index int) error {
	out := c.String("out")
	if out == "" {
		out = fmt.Sprintf("%s.frame%d.png", strings.TrimSuffix(path, filepath.Ext(path)), index)
	}

	samples, err := h264decoder.ReadFile(path)
	if err != nil {
		return err
	}

	codec := stillcodec.New()
	img, err := h264decoder.New(c.String("ffmpeg"), codec).DecodeFrame(c.Context, samples, index)
	if err != nil {
		return err
	}
	data, err := codec.EncodePNG(img)
	if err != nil {
		return err
	}
	if err := osfilesystem.New().WriteFile(out, data); err != nil {
		return err
	}

	fmt.Fprintln(c.App.Writer, l10n.F("Frame %d saved to %s", index, out))
	return nil
}
