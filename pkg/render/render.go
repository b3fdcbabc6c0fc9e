// Package render draws a conversation in the terminal.
package render

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/vango-go/vai-converse/pkg/core/live"
	"github.com/vango-go/vai-converse/pkg/core/types"
	converse "github.com/vango-go/vai-converse/sdk"
)

var (
	colorCyan    = lipgloss.Color("#00FFFF")
	colorGreen   = lipgloss.Color("#00FF00")
	colorYellow  = lipgloss.Color("#FFFF00")
	colorRed     = lipgloss.Color("#FF0000")
	colorGray    = lipgloss.Color("#666666")
	colorDimGray = lipgloss.Color("#444444")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	agentStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	participantStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorGreen)

	timestampStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	interimStyle = lipgloss.NewStyle().
			Foreground(colorYellow).
			Italic(true)

	recordingStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	dividerStyle = lipgloss.NewStyle().
			Foreground(colorDimGray)

	summaryBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorCyan).
			Padding(0, 1)
)

const levelBarWidth = 10

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// Renderer writes transcript lines, notifications and the summary. With
// styling off it emits plain text.
type Renderer struct {
	out    io.Writer
	styled bool

	info *color.Color
	warn *color.Color
	fail *color.Color
}

// New returns a Renderer writing to out.
func New(out io.Writer, styled bool) *Renderer {
	r := &Renderer{
		out:    out,
		styled: styled,
		info:   color.New(color.FgCyan),
		warn:   color.New(color.FgYellow),
		fail:   color.New(color.FgRed, color.Bold),
	}
	if !styled {
		r.info.DisableColor()
		r.warn.DisableColor()
		r.fail.DisableColor()
	} else {
		r.info.EnableColor()
		r.warn.EnableColor()
		r.fail.EnableColor()
	}
	return r
}

func (r *Renderer) paint(style lipgloss.Style, s string) string {
	if !r.styled {
		return s
	}
	return style.Render(s)
}

// Header prints the conversation title.
func (r *Renderer) Header(session types.Session) {
	name := session.AgentName
	if name == "" {
		name = "agent"
	}
	fmt.Fprintln(r.out, r.paint(titleStyle, "Conversation with "+name))
	if session.AgentPurpose != "" {
		fmt.Fprintln(r.out, r.paint(dimStyle, session.AgentPurpose))
	}
	fmt.Fprintln(r.out, r.paint(dividerStyle, strings.Repeat("─", 40)))
}

// Turn prints one transcript line.
func (r *Renderer) Turn(t types.Turn, session types.Session) {
	fmt.Fprintln(r.out, r.FormatTurn(t, session))
}

// FormatTurn renders "[15:04] Name: text".
func (r *Renderer) FormatTurn(t types.Turn, session types.Session) string {
	var label string
	var style lipgloss.Style
	if t.Speaker == types.SpeakerAgent {
		label, style = session.AgentName, agentStyle
		if label == "" {
			label = "Agent"
		}
	} else {
		label, style = session.ParticipantName, participantStyle
		if label == "" {
			label = "You"
		}
		if t.Modality == types.ModalityVoice {
			label += " (voice)"
		}
	}
	ts := r.paint(timestampStyle, "["+t.Timestamp.Format("15:04")+"]")
	return fmt.Sprintf("%s %s %s", ts, r.paint(style, label+":"), t.Text)
}

// Notice prints a notification coloured by severity.
func (r *Renderer) Notice(n converse.Notification) {
	switch n.Severity {
	case converse.SeverityError:
		r.fail.Fprintf(r.out, "! %s\n", n.Message)
	case converse.SeverityWarning:
		r.warn.Fprintf(r.out, "! %s\n", n.Message)
	default:
		r.info.Fprintf(r.out, "· %s\n", n.Message)
	}
}

// Status renders the one-line indicator shown under the transcript.
func (r *Renderer) Status(s converse.Snapshot) string {
	var parts []string
	if s.Capture == live.CaptureListening {
		parts = append(parts, r.paint(recordingStyle, "● listening")+" "+LevelBar(s.Level, levelBarWidth))
	}
	if s.Playback == live.PlaybackSpeaking {
		parts = append(parts, r.paint(dimStyle, "speaking"))
	}
	if s.Busy {
		parts = append(parts, r.paint(dimStyle, "thinking..."))
	}
	if s.Interim != "" {
		parts = append(parts, r.paint(interimStyle, s.Interim))
	}
	if !s.VoiceEnabled {
		parts = append(parts, r.paint(dimStyle, "voice off"))
	}
	return strings.Join(parts, "  ")
}

// LevelBar draws level in [0,1] as a fixed-width bar.
func LevelBar(level float64, width int) string {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	filled := int(level*float64(width) + 0.5)
	return strings.Repeat("▮", filled) + strings.Repeat("▯", width-filled)
}

// Summary prints the end-of-conversation digest in a box.
func (r *Renderer) Summary(s types.Summary) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", r.paint(titleStyle, "Conversation summary"))
	fmt.Fprintf(&b, "Participant: %s\n", orUnknown(s.ParticipantName))
	fmt.Fprintf(&b, "Agent: %s\n", orUnknown(s.AgentName))
	fmt.Fprintf(&b, "Duration: %d minutes\n", s.DurationMinutes)
	fmt.Fprintf(&b, "Messages: %d total (%d from you, %d from the agent)\n", s.TotalTurns, s.ParticipantTurns, s.AgentTurns)
	if len(s.KeyTopics) > 0 {
		topics := make([]string, 0, len(s.KeyTopics))
		for _, tc := range s.KeyTopics {
			topics = append(topics, fmt.Sprintf("%s (%d)", tc.Word, tc.Count))
		}
		fmt.Fprintf(&b, "Key topics: %s\n", strings.Join(topics, ", "))
	}
	if len(s.Preview) > 0 {
		b.WriteString("\n")
		for _, p := range s.Preview {
			fmt.Fprintf(&b, "%s: %s\n", p.Speaker, p.Text)
		}
	}
	body := strings.TrimRight(b.String(), "\n")
	if r.styled {
		body = summaryBox.Render(body)
	}
	fmt.Fprintln(r.out, body)
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
