package tui

import (
	"fmt"
	"strings"

	"github.com/voicepipe/voicepipe/internal/classify"
	"github.com/voicepipe/voicepipe/internal/job"
)

var statusLabels = map[job.Status]string{
	job.StatusQueued:      "queued",
	job.StatusSubmitting:  "submitting",
	job.StatusPolling:     "waiting for provider",
	job.StatusAggregating: "transcribing",
	job.StatusCompleted:   "completed",
	job.StatusFailed:      "failed",
	job.StatusCancelled:   "cancelled",
}

// RenderStatus formats one job snapshot as a single status line.
func RenderStatus(s job.Snapshot) string {
	label := statusLabels[s.Status]
	if label == "" {
		label = string(s.Status)
	}

	switch s.Status {
	case job.StatusCompleted:
		return StyleSuccess.Render("✓ " + label)
	case job.StatusFailed:
		return StyleError.Render("✗ " + label)
	case job.StatusCancelled:
		return StyleWarning.Render("– " + label)
	}
	return fmt.Sprintf("%s %s", StyleMuted.Render(label), renderProgressBar(s.Progress))
}

// RenderTranscript wraps the final text in a bordered block.
func RenderTranscript(text string) string {
	return StyleTranscript.Render(text)
}

// RenderError formats a classified error with its remediation hint.
func RenderError(ce *classify.ClassifiedError) string {
	if ce == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(StyleError.Render("Error: " + ce.Error()))
	if hint := ce.Remediation(); hint != "" {
		b.WriteString("\n")
		b.WriteString(StyleSubtle.Render(hint))
	}
	return b.String()
}

const progressBarWidth = 24

func renderProgressBar(progress float64) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	filled := int(progress / 100 * progressBarWidth)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", progressBarWidth-filled)
	return fmt.Sprintf("%s %3.0f%%", StyleSubtle.Render(bar), progress)
}
