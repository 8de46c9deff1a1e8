// Package desktop simulates mouse and keyboard input with xdotool and captures
// the screen with ffmpeg or scrot. It backs coordinate targets and screenshot
// fallback in the engine.
package desktop

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"

	"go.uber.org/zap"

	"github.com/rahul/autopilot/internal/engine"
)

// ErrToolMissing is returned when the required binary is not on PATH.
var ErrToolMissing = errors.New("desktop tool not installed")

// Runner executes an external command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Input drives the X display named by Display.
type Input struct {
	Display string
	run     Runner
	logger  *zap.Logger
}

var _ engine.Desktop = (*Input)(nil)

func New(display string, logger *zap.Logger) *Input {
	return NewWithRunner(display, execRunner, logger)
}

// NewWithRunner replaces command execution, for tests.
func NewWithRunner(display string, run Runner, logger *zap.Logger) *Input {
	if display == "" {
		display = ":0.0"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Input{Display: display, run: run, logger: logger.Named("desktop")}
}

func (d *Input) xdotool(ctx context.Context, args ...string) error {
	out, err := d.run(ctx, "xdotool", args...)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("xdotool: %w", ErrToolMissing)
		}
		return fmt.Errorf("xdotool %s: %w: %s", args[0], err, out)
	}
	return nil
}

// Click moves the pointer to x,y and left-clicks.
func (d *Input) Click(ctx context.Context, x, y int) error {
	return d.xdotool(ctx, "mousemove", strconv.Itoa(x), strconv.Itoa(y), "click", "1")
}

func (d *Input) TypeText(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	return d.xdotool(ctx, "type", "--", text)
}

// Key presses a key or combination such as "Return" or "ctrl+a".
func (d *Input) Key(ctx context.Context, key string) error {
	return d.xdotool(ctx, "key", key)
}

// Screenshot grabs one frame with ffmpeg and falls back to scrot.
func (d *Input) Screenshot(ctx context.Context, path string) error {
	out, err := d.run(ctx, "ffmpeg", "-f", "x11grab", "-i", d.Display, "-frames:v", "1", path, "-y")
	if err == nil {
		return nil
	}
	d.logger.Debug("ffmpeg capture failed, trying scrot.", zap.Error(err), zap.ByteString("output", out))
	out, err = d.run(ctx, "scrot", "--overwrite", path)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("ffmpeg or scrot: %w", ErrToolMissing)
		}
		return fmt.Errorf("capture desktop: %w: %s", err, out)
	}
	return nil
}
