package converse

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/vango-go/vai-converse/pkg/core/types"
)

const exportTimeLayout = "2006-01-02 15:04:05"

// ExportFilename returns the download name for a summary written on day.
func ExportFilename(day time.Time) string {
	return fmt.Sprintf("conversation-summary-%s.txt", day.Format("2006-01-02"))
}

// WriteExport renders the plain-text summary document.
func WriteExport(w io.Writer, s types.Summary) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "Conversation Summary")
	fmt.Fprintln(bw, "===================")
	fmt.Fprintf(bw, "Participant: %s\n", s.ParticipantName)
	fmt.Fprintf(bw, "Agent: %s\n", s.AgentName)
	fmt.Fprintf(bw, "Duration: %d minutes\n", s.DurationMinutes)
	fmt.Fprintf(bw, "Started: %s\n", formatExportTime(s.StartedAt))
	fmt.Fprintf(bw, "Ended: %s\n", formatExportTime(s.EndedAt))
	fmt.Fprintln(bw)

	fmt.Fprintln(bw, "Statistics:")
	fmt.Fprintf(bw, "- Total Messages: %d\n", s.TotalTurns)
	fmt.Fprintf(bw, "- User Messages: %d\n", s.ParticipantTurns)
	fmt.Fprintf(bw, "- Agent Messages: %d\n", s.AgentTurns)
	fmt.Fprintln(bw)

	fmt.Fprintln(bw, "Key Topics:")
	for _, t := range s.KeyTopics {
		fmt.Fprintf(bw, "- %s (mentioned %d times)\n", t.Word, t.Count)
	}
	fmt.Fprintln(bw)

	fmt.Fprintln(bw, "Conversation Preview:")
	for _, p := range s.Preview {
		fmt.Fprintf(bw, "%s: %s\n", p.Speaker, p.Text)
	}
	fmt.Fprintln(bw)

	fmt.Fprintln(bw, "Full Conversation:")
	for _, t := range s.Turns {
		fmt.Fprintf(bw, "[%s] %s: %s\n", t.Timestamp.Format(exportTimeLayout), t.Speaker, t.Text)
	}

	return bw.Flush()
}

// SaveExport writes the summary into dir using ExportFilename and returns
// the file path.
func SaveExport(dir string, s types.Summary) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	day := s.EndedAt
	if day.IsZero() {
		day = time.Now()
	}
	path := filepath.Join(dir, ExportFilename(day))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	if err := WriteExport(f, s); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write export: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close export file: %w", err)
	}
	return path, nil
}

func formatExportTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(exportTimeLayout)
}
