// Command alarm is a nidra hook that sounds an alarm and shows a desktop
// notification when the driver is drowsy.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/ayusman/nidra/internal/hook"
)

// Config is read from the "config" object of hook.json.
type Config struct {
	// Volume sets the output volume (0-100) before the alarm. Zero leaves it alone.
	Volume int `json:"volume"`
	// Sound is the file to play. Empty uses the platform default.
	Sound string `json:"sound"`
	// Notify shows a desktop notification alongside the sound.
	Notify bool `json:"notify"`
}

var defaultSounds = map[string]string{
	"darwin": "/System/Library/Sounds/Sosumi.aiff",
	"linux":  "/usr/share/sounds/freedesktop/stereo/alarm-clock-elapsed.oga",
}

func main() {
	var req hook.Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}
	if req.Event != hook.EventAlert {
		writeErrorResponse(fmt.Sprintf("unknown event: %s", req.Event))
		return
	}

	var cfg Config
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			writeErrorResponse(fmt.Sprintf("invalid config: %v", err))
			return
		}
	}

	var errs []error
	if cfg.Volume > 0 {
		errs = append(errs, setVolume(cfg.Volume))
	}
	if cfg.Notify {
		errs = append(errs, notify(req.Alert))
	}
	errs = append(errs, playSound(cfg.Sound))

	if err := errors.Join(errs...); err != nil {
		writeErrorResponse(err.Error())
		return
	}
	writeSuccessResponse()
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(hook.Response{Success: false, Error: errMsg})
}

// writeSuccessResponse writes a success response to stdout.
func writeSuccessResponse() {
	json.NewEncoder(os.Stdout).Encode(hook.Response{Success: true})
}

func run(name string, args ...string) error {
	output, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, string(output))
	}
	return nil
}

func setVolume(volume int) error {
	volume = min(volume, 100)
	switch runtime.GOOS {
	case "darwin":
		return run("osascript", "-e", fmt.Sprintf("set volume output volume %d", volume))
	case "linux":
		return run("pactl", "set-sink-volume", "@DEFAULT_SINK@", fmt.Sprintf("%d%%", volume))
	default:
		return fmt.Errorf("volume control not supported on %s", runtime.GOOS)
	}
}

func notify(a hook.Alert) error {
	msg := fmt.Sprintf("Eyes closed for %.1fs. Take a break.", float64(a.ClosedMs)/1000)
	switch runtime.GOOS {
	case "darwin":
		return run("osascript", "-e", fmt.Sprintf("display notification %q with title \"Nidra\"", msg))
	case "linux":
		return run("notify-send", "--urgency=critical", "Nidra", msg)
	default:
		return fmt.Errorf("notifications not supported on %s", runtime.GOOS)
	}
}

func playSound(sound string) error {
	if sound == "" {
		sound = defaultSounds[runtime.GOOS]
	}
	if sound == "" {
		return fmt.Errorf("no default sound on %s", runtime.GOOS)
	}
	switch runtime.GOOS {
	case "darwin":
		return run("afplay", sound)
	default:
		return run("paplay", sound)
	}
}
