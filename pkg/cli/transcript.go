package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/haivivi/lifeline/pkg/conversation"
)

// Theme defines the color scheme for terminal output.
type Theme struct {
	Primary lipgloss.Color // Assistant and titles
	User    lipgloss.Color
	Dim     lipgloss.Color // Pending entries and help text
	Error   lipgloss.Color
}

// DefaultTheme is the default bright green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	User:    lipgloss.Color("#58a6ff"),
	Dim:     lipgloss.Color("#6e7681"),
	Error:   lipgloss.Color("#ff7b72"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Title     lipgloss.Style
	User      lipgloss.Style
	Assistant lipgloss.Style
	Pending   lipgloss.Style
	Error     lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:     lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		User:      lipgloss.NewStyle().Bold(true).Foreground(t.User),
		Assistant: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Pending:   lipgloss.NewStyle().Italic(true).Foreground(t.Dim),
		Error:     lipgloss.NewStyle().Bold(true).Foreground(t.Error),
	}
}

// Entry renders one transcript entry as "Label: text". Entries still
// streaming are dimmed.
func (s Styles) Entry(e conversation.Entry) string {
	label := s.Assistant.Render("Assistant:")
	if e.Role == conversation.RoleUser {
		label = s.User.Render("You:")
	}
	text := e.Text
	if !e.IsFinal {
		text = s.Pending.Render(text)
	}
	return label + " " + text
}

// Status renders a status line with a volume meter.
func (s Styles) Status(status string, volume float64) string {
	return s.Title.Render("["+status+"]") + " " + VolumeBar(volume, 10)
}

// VolumeBar draws v (clamped to [0,1]) as a bar of width cells.
func VolumeBar(v float64, width int) string {
	v = min(max(v, 0), 1)
	n := int(v*float64(width) + 0.5)
	return strings.Repeat("▮", n) + strings.Repeat("▯", width-n)
}

// TranscriptPrinter prints finalized entries once each, in order.
type TranscriptPrinter struct {
	w      io.Writer
	styles Styles

	mu      sync.Mutex
	printed map[string]bool
}

// NewTranscriptPrinter returns a printer writing to w.
func NewTranscriptPrinter(w io.Writer, styles Styles) *TranscriptPrinter {
	return &TranscriptPrinter{w: w, styles: styles, printed: make(map[string]bool)}
}

// Update prints the final entries of entries not printed before. A
// streaming entry stops the scan so output keeps transcript order.
func (p *TranscriptPrinter) Update(entries []conversation.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range entries {
		if p.printed[e.ID] {
			continue
		}
		if !e.IsFinal {
			return
		}
		p.printed[e.ID] = true
		fmt.Fprintln(p.w, p.styles.Entry(e))
	}
}

// Reset forgets what was printed.
func (p *TranscriptPrinter) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.printed)
}
