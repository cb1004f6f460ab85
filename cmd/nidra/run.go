package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ayusman/nidra/internal/app"
	"github.com/ayusman/nidra/internal/capture"
	"github.com/ayusman/nidra/internal/config"
	"github.com/ayusman/nidra/internal/detector"
	"github.com/ayusman/nidra/internal/hook"
	"github.com/ayusman/nidra/internal/server"
	"github.com/ayusman/nidra/internal/tray"
)

// statusInterval is how often the tray is refreshed from the monitor.
const statusInterval = 500 * time.Millisecond

var runFlags struct {
	addr    string
	webDir  string
	model   int
	backend int
	facing  int
	fps     int
	start   bool
	tray    bool
	preview bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the monitor with its HTTP dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyRunFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		return runMonitor(cmd.Context(), cfg)
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.addr, "addr", ":8080", "HTTP listen address")
	f.StringVar(&runFlags.webDir, "web-dir", "", "directory of static dashboard files")
	f.IntVarP(&runFlags.model, "model", "m", 0, "model id to load at startup (see 'nidra models')")
	f.IntVar(&runFlags.backend, "backend", 0, "0 for cpu, 1 for accelerated")
	f.IntVar(&runFlags.facing, "facing", 0, "0 for the front camera, 1 for the back camera")
	f.IntVar(&runFlags.fps, "fps", 0, "camera frame rate (default 30)")
	f.BoolVar(&runFlags.start, "start", false, "open the camera at startup")
	f.BoolVar(&runFlags.tray, "tray", false, "show the system tray menu")
	f.BoolVar(&runFlags.preview, "preview", false, "show rendered frames in a native window")
	rootCmd.AddCommand(runCmd)
}

// applyRunFlags overrides config values with flags the user actually set.
func applyRunFlags(cmd *cobra.Command, c *config.Config) {
	f := cmd.Flags()
	if f.Changed("addr") {
		c.HTTPAddr = runFlags.addr
	}
	if f.Changed("web-dir") {
		c.WebDir = runFlags.webDir
	}
	if f.Changed("model") {
		id := runFlags.model
		c.ModelID = &id
	}
	if f.Changed("backend") {
		c.Backend = runFlags.backend
	}
	if f.Changed("facing") {
		c.Facing = runFlags.facing
	}
	if f.Changed("fps") {
		c.FPS = runFlags.fps
	}
	if f.Changed("start") {
		c.AutoStart = runFlags.start
	}
	if f.Changed("tray") {
		c.Tray = runFlags.tray
	}
	if f.Changed("preview") {
		c.Preview = runFlags.preview
	}
}

func runMonitor(ctx context.Context, c *config.Config) error {
	log.Info().Str("version", Version).Msg("Nidra - Driver Drowsiness Monitor")

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	frames := server.NewFrameHub()
	alerts := server.NewAlertHub()

	monitor := app.New(app.Config{
		Store:   st,
		Factory: detector.NewServiceFactory(c.Service()),
		Devices: c.Devices(),
		Opener:  cameraOpener(c.FPS),
	})
	monitor.AddOutput(frames)
	monitor.AddSink(alerts)

	hooks := hook.NewManager(c.HooksPath())
	if err := hooks.Discover(); err != nil {
		log.Warn().Err(err).Str("dir", hooks.Dir()).Msg("Failed to discover hooks")
	}
	dispatcher := hook.NewDispatcher(hooks, hook.NewExecutor(c.HookTimeout()))
	defer dispatcher.Close()
	monitor.AddSink(dispatcher)

	var tr *tray.Tray
	if c.Tray {
		tr = tray.New()
		monitor.AddSink(tr)
	}

	if err := monitor.Init(app.Chain(app.LogNotifier{}, alerts, notifierOf(tr))); err != nil {
		return fmt.Errorf("failed to initialize monitor: %w", err)
	}
	defer monitor.Teardown()

	if c.ModelID != nil {
		if !monitor.LoadModel(*c.ModelID, c.Backend) {
			log.Warn().Int("model", *c.ModelID).Int("backend", c.Backend).Msg("Startup model failed to load, running without detection")
		}
	} else if !monitor.RestoreModel() {
		log.Info().Msg("No model loaded, select one from the dashboard")
	}

	if c.Preview {
		monitor.SetOutputWindow(capture.NewPreviewWindow("Nidra"))
	}
	if c.AutoStart && !monitor.OpenCamera(c.Facing) {
		log.Warn().Int("facing", c.Facing).Msg("Camera failed to open at startup")
	}

	webDir := c.WebDir
	if webDir == "" {
		webDir = findWebDir(c.DataDir)
	}
	if webDir != "" {
		log.Info().Str("dir", webDir).Msg("Serving static files")
	}

	srv := server.New(server.Config{
		StaticDir: webDir,
		Store:     st,
		Monitor:   monitor,
		Frames:    frames,
		Alerts:    alerts,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.HTTPAddr).Msg("Starting server")
		errCh <- srv.ListenAndServe(c.HTTPAddr)
	}()

	if tr != nil {
		go func() {
			select {
			case <-ctx.Done():
			case <-errCh:
			}
			tr.Quit()
		}()
		runTray(ctx, tr, monitor, c)
	} else {
		select {
		case <-ctx.Done():
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
		}
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// runTray blocks in the tray loop, refreshing it from the monitor until quit.
func runTray(ctx context.Context, tr *tray.Tray, monitor *app.App, c *config.Config) {
	tr.OnCamera(func(open bool) bool {
		if open {
			return monitor.OpenCamera(c.Facing)
		}
		return monitor.CloseCamera()
	})
	tr.OnDashboard(func() {
		if err := openBrowser(dashboardURL(c.HTTPAddr)); err != nil {
			log.Warn().Err(err).Msg("Failed to open dashboard")
		}
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(statusInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s := monitor.Snapshot()
				tr.SetStatus(s.Alert)
				tr.SetModel(s.Model)
				tr.SetCameraOpen(s.CameraOpen)
			}
		}
	}()

	tr.Run()
}

// notifierOf avoids handing a typed nil tray to the notifier chain.
func notifierOf(tr *tray.Tray) app.Notifier {
	if tr == nil {
		return nil
	}
	return tr
}

// cameraOpener opens local devices at fps, or the camera default when fps is 0.
func cameraOpener(fps int) capture.Opener {
	return func(deviceID int) capture.Camera {
		cam := capture.NewCamera(deviceID)
		cam.SetFPS(fps)
		return cam
	}
}

// dashboardURL turns a listen address into a browsable URL.
func dashboardURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/"
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and <dataDir>/web.
// Returns the first existing directory or empty string if none found.
func findWebDir(dataDir string) string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	dataWebDir := filepath.Join(dataDir, "web")
	if info, err := os.Stat(dataWebDir); err == nil && info.IsDir() {
		return dataWebDir
	}
	return ""
}
