package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/dgnsrekt/voicestudio/internal/batch"
	"github.com/dgnsrekt/voicestudio/internal/project"
	"github.com/dgnsrekt/voicestudio/internal/quality"
)

const progressWidth = 30

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd())) //nolint:gosec
}

// terminalWidth is the stdout width capped at 120, or 80 when stdout is
// not a terminal.
func terminalWidth() int {
	if !isTerminal(os.Stdout) {
		return 80
	}
	w, _, err := term.GetSize(int(os.Stdout.Fd())) //nolint:gosec
	if err != nil || w <= 0 {
		return 80
	}
	return min(w, 120)
}

// progressPrinter draws a bar on a terminal and logs otherwise.
func progressPrinter(w *os.File) batch.ProgressFunc {
	if !isTerminal(w) {
		return func(done, total int, percent float64) {
			log.Info("Batch progress", "done", done, "total", total, "percent", fmt.Sprintf("%.1f", percent))
		}
	}

	var mu sync.Mutex
	best := 0
	return func(done, total int, percent float64) {
		mu.Lock()
		defer mu.Unlock()
		// callbacks may arrive out of order
		if done < best {
			return
		}
		best = done

		filled := min(progressWidth, int(percent/100*progressWidth))
		bar := strings.Repeat("█", filled) + strings.Repeat("░", progressWidth-filled)
		fmt.Fprintf(w, "\r%s %5.1f%% %s", keyword(bar), percent, faint(fmt.Sprintf("%d/%d", done, total)))
		if done == total {
			fmt.Fprintln(w)
		}
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func cell(s string, width int) string {
	return runewidth.FillRight(runewidth.Truncate(s, width, "…"), width)
}

func printDetected(w io.Writer, files []*project.File) {
	nameWidth := max(12, min(40, terminalWidth()-58))

	fmt.Fprintln(w, heading(cell("FILE", nameWidth)+"  "+cell("FORMAT", 18)+cell("CHARS", 7)+cell("SEGS", 6)+cell("DURATION", 10)+cell("SIZE", 10)+"SCORE"))
	for _, f := range files {
		duration := time.Duration(f.EstimatedDuration * float64(time.Second)).Round(time.Second)
		fmt.Fprintln(w,
			cell(f.Name(), nameWidth)+"  "+
				cell(string(f.Format), 18)+
				cell(fmt.Sprint(len(f.Characters)), 7)+
				cell(fmt.Sprint(f.SegmentCount), 6)+
				cell(duration.String(), 10)+
				cell(humanize.Bytes(fileSize(f.Path)), 10)+
				fmt.Sprintf("%.1f", f.QualityScore))
	}
}

func printResult(w io.Writer, res *batch.Result, stats quality.Stats) {
	status := keyword("completed")
	if !res.Success {
		status = failure("completed with failures")
	}
	fmt.Fprintf(w, "\n%s %s\n", heading(res.JobID), status)

	var size uint64
	for _, f := range res.OutputFiles {
		size += fileSize(f)
	}
	for _, f := range res.CompositeFiles {
		size += fileSize(f)
	}

	elapsed := time.Duration(res.ProcessingTime * float64(time.Second)).Round(time.Millisecond)
	fmt.Fprintf(w, "  units       %d ok, %d failed\n", res.FilesProcessed, res.FilesFailed)
	fmt.Fprintf(w, "  audio       %d clips, %d composites, %s\n", res.TotalAudioFiles, len(res.CompositeFiles), humanize.Bytes(size))
	fmt.Fprintf(w, "  characters  %d\n", res.PerformanceMetrics.CharactersMerged)
	fmt.Fprintf(w, "  time        %s (%.2f units/s, %d workers)\n", elapsed, res.PerformanceMetrics.FilesPerSecond, res.PerformanceMetrics.ParallelWorkers)
	fmt.Fprintf(w, "  quality     %.3f average, %.1f candidates per task, %.1f%% success\n",
		stats.AvgQualityScore, stats.AvgCandidatesNeeded, stats.SuccessRate*100)

	width := terminalWidth() - 4
	for _, msg := range res.Warnings {
		fmt.Fprintln(w, "  "+faint(runewidth.Truncate("warning: "+msg, width, "…")))
	}
	for _, msg := range res.ErrorMessages {
		fmt.Fprintln(w, "  "+failure(runewidth.Truncate(msg, width, "…")))
	}
}

func printReport(w io.Writer, r *quality.Report, output string) {
	status := keyword("passed")
	if !r.Success {
		status = failure("below threshold")
	}
	fmt.Fprintf(w, "%s %s\n", heading(r.TaskID), status)

	for _, c := range r.AllCandidates {
		marker := " "
		if r.BestCandidate != nil && c.ID == r.BestCandidate.ID {
			marker = keyword("*")
		}
		fmt.Fprintf(w, " %s %s %.3f %s\n", marker, cell(c.ID, 36), c.OverallScore, faint(string(c.Pass)))
	}
	for _, f := range r.Failures {
		fmt.Fprintf(w, "   %s %s\n", cell(f.CandidateID, 36), failure(f.Message))
	}
	if output != "" {
		fmt.Fprintf(w, "\nWrote %s (%s)\n", output, humanize.Bytes(fileSize(output)))
	}
	for _, rec := range r.Recommendations {
		fmt.Fprintln(w, faint("  - "+rec))
	}
}
