// Package toast renders in-page notifications on a terminal.
package toast

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarning
)

type Toast struct {
	Title string
	Body  string
	Level Level
}

const toastWidth = 48

var (
	baseStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Width(toastWidth)
	infoStyle    = baseStyle.BorderForeground(lipgloss.Color("39"))
	successStyle = baseStyle.BorderForeground(lipgloss.Color("42"))
	warningStyle = baseStyle.BorderForeground(lipgloss.Color("214"))
	titleStyle   = lipgloss.NewStyle().Bold(true)
	bodyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// Render returns the boxed toast.
func Render(t Toast) string {
	var style lipgloss.Style
	switch t.Level {
	case LevelSuccess:
		style = successStyle
	case LevelWarning:
		style = warningStyle
	default:
		style = infoStyle
	}

	lines := []string{titleStyle.Render(t.Title)}
	if t.Body != "" {
		lines = append(lines, bodyStyle.Render(t.Body))
	}
	return style.Render(strings.Join(lines, "\n"))
}

// Printer writes toasts to a terminal.
type Printer struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out, now: time.Now}
}

func (p *Printer) Show(t Toast) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "%s\n%s\n", p.now().Format("15:04:05"), Render(t))
}

// Bell rings the terminal bell as the notification sound.
type Bell struct {
	mu  sync.Mutex
	out io.Writer
}

func NewBell(out io.Writer) *Bell {
	return &Bell{out: out}
}

func (b *Bell) Play() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := io.WriteString(b.out, "\a")
	return err
}

// Sound is anything that can play the notification sound.
type Sound interface {
	Play() error
}

// PlaySafely plays s and logs a failure instead of returning it.
func PlaySafely(s Sound, log *zap.Logger) {
	if s == nil {
		return
	}
	if err := s.Play(); err != nil {
		log.Debug("notification sound failed", zap.Error(err))
	}
}
