package observability

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

var startTime = time.Now()

const (
	colorReset    = "\033[0m"
	colorCyan     = "\033[36m"
	colorBlue     = "\033[34m"
	colorPurple   = "\033[35m"
	colorNeonCyan = "\033[96m"
	colorNeonMag  = "\033[95m"
)

var radarFrames = []string{"◜", "◝", "◞", "◟"}
var radarIdx = 0

// termMu serialises all terminal output so the cursor save/restore in
// PrintLiveStatus is never interrupted by a log write.
var termMu sync.Mutex

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return w
}

// IsTerminal reports whether stdout is an interactive terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

type termWriter struct{ out io.Writer }

func (tw termWriter) Write(p []byte) (int, error) {
	termMu.Lock()
	defer termMu.Unlock()
	return tw.out.Write(p)
}

func (tw termWriter) Sync() error { return nil }

// NewTermWriter returns a stderr writer that shares a lock with the live
// status line.
func NewTermWriter() io.Writer {
	return termWriter{out: os.Stderr}
}

func PrintBanner() {
	fmt.Print("\033[2J\033[H")

	banner := `
    ___         __              _ __      __
   /   | __  __/ /_____  ____  (_) /___  / /_
  / /| |/ / / / __/ __ \/ __ \/ / / __ \/ __/
 / ___ / /_/ / /_/ /_/ / /_/ / / / /_/ / /_
/_/  |_\__,_/\__/\____/ .___/_/_/\____/\__/
                     /_/
        >> COMMANDS IN, CLICKS OUT <<
`
	width := termWidth()
	for _, l := range strings.Split(banner, "\n") {
		padding := max((width-len(l))/2, 0)
		fmt.Printf("%s%s%s\n", strings.Repeat(" ", padding), colorNeonCyan+l, colorReset)
	}
}

// InitializeTerminal reserves lines 1-11 for the banner and status line and
// scrolls logs below them.
func InitializeTerminal() {
	fmt.Print("\033[12;r")
	fmt.Print("\033[12;1H")
}

func CleanupTerminal() {
	fmt.Print("\033[r\033[2J\033[H")
}

// StatusLine renders the dashboard line without escape positioning.
func StatusLine(now time.Time) string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	memMB := float64(m.Alloc) / 1024 / 1024

	role, task, progress, lastHB := GetStatus()

	pulseIcon, pulseText, pulseColor := "🔴", "OFFLINE", colorNeonMag
	switch delta := now.Sub(lastHB); {
	case delta < 40*time.Second:
		pulseIcon, pulseText, pulseColor = "🟢", "HEALTHY", colorNeonCyan
	case delta < 90*time.Second:
		pulseIcon, pulseText, pulseColor = "🟡", "LAGGING", colorPurple
	}

	icon, roleColor := "💤", colorReset
	switch role {
	case RoleRunning:
		icon, roleColor = "⚙️", colorNeonCyan
	case RoleDone:
		icon, roleColor = "✅", colorCyan
	case RoleFailed:
		icon, roleColor = "❌", colorNeonMag
	}

	radar := " "
	if role == RoleRunning {
		radar = radarFrames[radarIdx]
		radarIdx = (radarIdx + 1) % len(radarFrames)
	}

	if task == "" {
		task = "Waiting..."
	}
	task = truncate(task, 25)
	progress = truncate(progress, 40)

	return fmt.Sprintf("%s[%s] %s%s %-8s%s | %s%s %-7s%s [%s] %s %s%s%s [%v] [%.1fMB]",
		colorReset,
		lastHB.Format("15:04:05"),
		pulseColor, pulseIcon, pulseText, colorReset,
		roleColor, icon, role, colorReset,
		task, progress,
		colorPurple, radar, colorReset,
		now.Sub(startTime).Round(time.Second),
		memMB,
	)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// PrintLiveStatus redraws the status line on row 10.
func PrintLiveStatus() {
	line := "\033[s\033[10;1H\033[K" + StatusLine(time.Now()) + "\033[u"
	termMu.Lock()
	fmt.Print(line)
	termMu.Unlock()
}
