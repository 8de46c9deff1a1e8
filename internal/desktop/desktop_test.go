package desktop

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recorder struct {
	calls []string
	fail  map[string]error
}

func (r *recorder) run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, name+" "+strings.Join(args, " "))
	if err := r.fail[name]; err != nil {
		return []byte("boom"), err
	}
	return nil, nil
}

func TestInput_Commands(t *testing.T) {
	rec := &recorder{}
	d := NewWithRunner("", rec.run, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, d.Click(ctx, 10, 20))
	require.NoError(t, d.TypeText(ctx, "-hello"))
	require.NoError(t, d.TypeText(ctx, ""))
	require.NoError(t, d.Key(ctx, "Return"))

	assert.Equal(t, []string{
		"xdotool mousemove 10 20 click 1",
		"xdotool type -- -hello",
		"xdotool key Return",
	}, rec.calls)
}

func TestInput_MissingTool(t *testing.T) {
	rec := &recorder{fail: map[string]error{"xdotool": exec.ErrNotFound}}
	d := NewWithRunner(":1", rec.run, nil)
	assert.ErrorIs(t, d.Key(context.Background(), "Return"), ErrToolMissing)
}

func TestInput_ScreenshotFallsBackToScrot(t *testing.T) {
	rec := &recorder{fail: map[string]error{"ffmpeg": errors.New("no x11grab")}}
	d := NewWithRunner(":1", rec.run, zaptest.NewLogger(t))

	require.NoError(t, d.Screenshot(context.Background(), "/tmp/shot.png"))
	require.Len(t, rec.calls, 2)
	assert.Equal(t, "ffmpeg -f x11grab -i :1 -frames:v 1 /tmp/shot.png -y", rec.calls[0])
	assert.Equal(t, "scrot --overwrite /tmp/shot.png", rec.calls[1])
}

func TestInput_ScreenshotBothFail(t *testing.T) {
	rec := &recorder{fail: map[string]error{
		"ffmpeg": errors.New("no x11grab"),
		"scrot":  exec.ErrNotFound,
	}}
	d := NewWithRunner(":1", rec.run, nil)
	assert.ErrorIs(t, d.Screenshot(context.Background(), "x.png"), ErrToolMissing)
}
