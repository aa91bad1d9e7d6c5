package main

import (
	"fmt"
	"os"
	"time"

	"github.com/kalambet/steptrace/internal/model"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

func printSettings(st model.Settings) {
	if st.IsRecording {
		printStatus("Recording", "%s", colorize(colorGreen, "yes"))
	} else {
		printStatus("Recording", "no")
	}
	if id := st.ActiveEpisode(); id != "" {
		printStatus("Episode", "%s", id)
	}
	if st.StartedAt != nil {
		printStatus("Started", "%s", st.StartedAt.Local().Format(time.DateTime))
	}
	printStatus("Steps", "%d", st.StepCount)
	printStatus("Screenshots", "%s", onOff(st.Options.CaptureScreenshots))
	printStatus("DOM state", "%s", onOff(st.Options.CaptureDOMState))
	if st.LastMessage != "" {
		printStatus("Message", "%s", st.LastMessage)
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
