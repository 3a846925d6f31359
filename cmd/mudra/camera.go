package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/display"
	"github.com/ayusman/mudra/internal/observability"
	"github.com/ayusman/mudra/internal/server"
	"github.com/ayusman/mudra/internal/speech"
	"github.com/ayusman/mudra/internal/tray"
)

func newDisplay(cfg *config.Config, title string) display.Display {
	if !cfg.ShowWindow {
		return display.Headless{}
	}
	return display.NewWindow(title)
}

func runRecord(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("record", flag.ContinueOnError)
	label := fs.String("label", "", "sign to record (required)")
	samples := fs.Int("samples", 30, "samples to record (0 records until stopped)")
	countdown := fs.Duration("countdown", 3*time.Second, "delay before the first sample")
	source := fs.String("camera", "", "camera device ID or video file (overrides MUDRA_CAMERA_ID)")
	fs.IntVar(&cfg.RecordWindowLength, "window", cfg.RecordWindowLength, "frames per sample")
	fs.StringVar(&cfg.GapPolicy, "gap", cfg.GapPolicy, "frames without hands: drop or pad")
	fs.IntVar(&cfg.MaxMissedFrames, "max-missed", cfg.MaxMissedFrames, "padded frames tolerated per sample")
	fs.StringVar(&cfg.DatasetDir, "dataset", cfg.DatasetDir, "dataset directory")
	fs.BoolVar(&cfg.ShowWindow, "window-display", cfg.ShowWindow, "show the preview window")
	if err := parseFlags(fs, cfg, args); err != nil {
		return err
	}
	if *label == "" {
		return errors.New("record: -label is required")
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	det, err := app.NewDetector(cfg, false)
	if err != nil {
		return fmt.Errorf("start detector: %w", err)
	}

	rec, err := app.NewRecorder(app.RecordOptions{
		Label:           *label,
		WindowLength:    cfg.RecordWindowLength,
		HandAssignment:  cfg.Assignment(),
		GapPolicy:       cfg.Gap(),
		MaxMissedFrames: cfg.MaxMissedFrames,
		Samples:         *samples,
		Countdown:       *countdown,
		Mirrored:        cfg.Mirror,
	}, app.RecordDeps{
		Camera:   app.NewCamera(cfg, *source),
		Detector: det,
		Dataset:  openDataset(cfg, cfg.RecordWindowLength),
		Display:  newDisplay(cfg, "mudra record: "+*label),
		Store:    st,
	})
	if err != nil {
		det.Close()
		return err
	}

	stats, err := rec.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d samples saved, %d discarded\n", *label, stats.Saved, stats.Discarded)
	return nil
}

func runLive(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("live", flag.ContinueOnError)
	source := fs.String("camera", "", "camera device ID or video file (overrides MUDRA_CAMERA_ID)")
	fs.Float64Var(&cfg.Threshold, "threshold", cfg.Threshold, "confidence a prediction must exceed")
	fs.DurationVar(&cfg.DisplayDuration, "display-duration", cfg.DisplayDuration, "how long a sign stays on screen")
	fs.StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "HTTP listen address (empty disables)")
	fs.BoolVar(&cfg.ShowWindow, "window-display", cfg.ShowWindow, "show the preview window")
	fs.BoolVar(&cfg.Tray, "tray", cfg.Tray, "show the system tray menu")
	fs.BoolVar(&cfg.AsyncInference, "async", cfg.AsyncInference, "classify on a worker goroutine")
	fs.StringVar(&cfg.Announcer, "announcer", cfg.Announcer, "command, plugin or none")
	if err := parseFlags(fs, cfg, args); err != nil {
		return err
	}
	logger := observability.Component("live")

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	c, err := app.NewClassifier(cfg)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	announcer, err := app.NewAnnouncer(cfg)
	if err != nil {
		c.Close()
		return fmt.Errorf("announcer: %w", err)
	}
	det, err := app.NewDetector(cfg, false)
	if err != nil {
		c.Close()
		speech.Close(announcer)
		return fmt.Errorf("start detector: %w", err)
	}

	var t *tray.Tray
	if cfg.Tray {
		if cfg.ShowWindow {
			logger.Warn().Msg("preview window disabled while the tray is shown")
			cfg.ShowWindow = false
		}
		t = tray.New()
		announcer = speech.Multi{announcer, t}
	}

	deps := app.Deps{
		Camera:     app.NewCamera(cfg, *source),
		Detector:   det,
		Classifier: c,
		Announcer:  announcer,
		Display:    newDisplay(cfg, "mudra"),
		Store:      st,
	}
	var hub *server.Hub
	if cfg.HTTPAddr != "" {
		hub = server.NewHub()
		deps.Events = hub
		deps.Frames = display.NewFrames()
	}

	sess, err := app.NewSession(app.NewOptions(cfg), deps)
	if err != nil {
		c.Close()
		det.Close()
		deps.Display.Close()
		speech.Close(announcer)
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if cfg.HTTPAddr != "" {
		srv := server.New(server.Config{
			StaticDir: findWebDir(cfg),
			Store:     st,
			Session:   sess,
			Hub:       hub,
			Frames:    deps.Frames,
			Metrics:   cfg.MetricsEnabled,
		})
		g.Go(func() error {
			return srv.ListenAndServe(ctx, cfg.HTTPAddr)
		})
	}

	runSession := func() error {
		defer cancel()
		return sess.Run(ctx)
	}

	// The preview window and the tray both need the main goroutine.
	if t == nil {
		err = runSession()
	} else {
		t.SetEnabled(sess.Enabled())
		t.OnToggle(sess.SetEnabled)
		t.OnQuit(cancel)
		if cfg.HTTPAddr != "" {
			url := dashboardURL(cfg.HTTPAddr)
			t.OnDashboard(func() {
				if err := openBrowser(url); err != nil {
					logger.Warn().Err(err).Str("url", url).Msg("failed to open dashboard")
				}
			})
		}
		g.Go(runSession)
		go func() {
			<-ctx.Done()
			t.Quit()
		}()
		t.Run()
	}

	if werr := g.Wait(); err == nil {
		err = werr
	}
	return err
}

// findWebDir looks for the dashboard files next to the working directory
// and under the data directory. Empty means no static files are served.
func findWebDir(cfg *config.Config) string {
	candidates := []string{"web", "../web", "../../web", filepath.Join(cfg.DataDir, "web")}
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}

func dashboardURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/"
}

func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
