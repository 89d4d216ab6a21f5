// Package logview provides a terminal viewer that shows the buffered device
// stream and refreshes it on a fixed interval.
package logview

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/zjrosen/klogger/internal/device"
	"github.com/zjrosen/klogger/internal/log"
)

const (
	// DefaultInterval is how often the stream is re-read.
	DefaultInterval = 500 * time.Millisecond

	// logPaneLines is how many recent debug log lines the log pane shows.
	logPaneLines = 200

	viewportMinHeight = 3
	boxMaxWidth       = 120
	boxMinWidth       = 40
)

var (
	titleColor  = lipgloss.AdaptiveColor{Light: "#5A4FCF", Dark: "#A6A1FF"}
	borderColor = lipgloss.AdaptiveColor{Light: "#BBBBBB", Dark: "#555555"}
	mutedColor  = lipgloss.AdaptiveColor{Light: "#888888", Dark: "#777777"}
	textColor   = lipgloss.AdaptiveColor{Light: "#1A1A1A", Dark: "#E0E0E0"}
	errorColor  = lipgloss.AdaptiveColor{Light: "#C62828", Dark: "#FF6B6B"}
)

// tickMsg triggers a refresh.
type tickMsg time.Time

// streamMsg carries a freshly drained snapshot.
type streamMsg struct {
	lines []string
	stats device.Stats
	err   error
}

// Model is the viewer state.
type Model struct {
	dev      *device.Device
	interval time.Duration

	width    int
	height   int
	viewport viewport.Model
	ready    bool // viewport initialized

	lines  []string
	stats  device.Stats
	err    error
	follow bool // keep the newest line in view

	showLogs bool // debug log pane replaces the stream
	logLines []string
}

// New creates a viewer for dev. A non-positive interval uses DefaultInterval.
func New(dev *device.Device, interval time.Duration) Model {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return Model{
		dev:      dev,
		interval: interval,
		follow:   true,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.refresh(), m.tick())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// refresh drains the device through a fresh session, the same way any
// reader would.
func (m Model) refresh() tea.Cmd {
	dev := m.dev
	return func() tea.Msg {
		h, err := dev.Open(context.Background())
		if err != nil {
			return streamMsg{err: err}
		}
		defer func() { _ = h.Close() }()

		var buf bytes.Buffer
		if _, err := h.WriteTo(&buf); err != nil {
			return streamMsg{err: err}
		}
		text := strings.TrimSuffix(buf.String(), "\n")
		var lines []string
		if buf.Len() > 0 {
			lines = strings.Split(text, "\n")
		}
		return streamMsg{lines: lines, stats: dev.Stats()}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit

		case "j", "down":
			if m.ready {
				m.viewport.ScrollDown(1)
				m.follow = m.viewport.AtBottom()
			}
			return m, nil

		case "k", "up":
			if m.ready {
				m.viewport.ScrollUp(1)
				m.follow = false
			}
			return m, nil

		case "g":
			if m.ready {
				m.viewport.GotoTop()
				m.follow = false
			}
			return m, nil

		case "G":
			if m.ready {
				m.viewport.GotoBottom()
				m.follow = true
			}
			return m, nil

		case "f":
			m.follow = !m.follow
			if m.follow && m.ready {
				m.viewport.GotoBottom()
			}
			return m, nil

		case "r":
			return m, m.refresh()

		case "l":
			m.showLogs = !m.showLogs
			m.loadLogs()
			m.updateViewportContent()
			return m, nil

		case "c":
			if m.showLogs {
				log.ClearBuffer()
				m.loadLogs()
				m.updateViewportContent()
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.initViewport()
		return m, nil

	case tickMsg:
		if m.showLogs {
			m.loadLogs()
			m.updateViewportContent()
		}
		return m, tea.Batch(m.refresh(), m.tick())

	case streamMsg:
		if msg.err != nil {
			log.ErrorErr(log.CatUI, "refresh failed", msg.err)
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.lines = msg.lines
		m.stats = msg.stats
		m.updateViewportContent()
		return m, nil
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	boxWidth := m.boxWidth()
	contentWidth := boxWidth - 2

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(titleColor).
		PaddingLeft(1)
	dividerStyle := lipgloss.NewStyle().Foreground(borderColor)
	divider := dividerStyle.Render(strings.Repeat("─", boxWidth))

	title := fmt.Sprintf("%s · %d/%d entries", m.dev.Name(), m.stats.Entries, m.stats.Capacity)
	if m.showLogs {
		title = fmt.Sprintf("%s · debug log (%d lines)", m.dev.Name(), len(m.logLines))
	}
	header := titleStyle.Render(title)

	var content string
	if m.ready {
		content = m.viewport.View()
	} else {
		content = m.buildContent(contentWidth)
	}

	var result strings.Builder
	result.WriteString(header)
	result.WriteString("\n")
	result.WriteString(divider)
	result.WriteString("\n")
	result.WriteString(content)
	result.WriteString("\n")
	result.WriteString(divider)
	result.WriteString("\n")
	result.WriteString(m.buildFooter())

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor).
		Width(boxWidth)

	return boxStyle.Render(result.String())
}

// Lines returns the lines from the last refresh.
func (m Model) Lines() []string {
	return m.lines
}

// ShowingLogs reports whether the debug log pane is open.
func (m Model) ShowingLogs() bool {
	return m.showLogs
}

// Following reports whether the view sticks to the newest line.
func (m Model) Following() bool {
	return m.follow
}

func (m Model) boxWidth() int {
	return max(min(m.width-4, boxMaxWidth), boxMinWidth)
}

func (m Model) buildContent(contentWidth int) string {
	lines, empty, color := m.lines, "No messages buffered", textColor
	if m.showLogs {
		lines, empty, color = m.logLines, "No debug log entries (run with --debug)", mutedColor
	}
	if len(lines) == 0 {
		emptyStyle := lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)
		return emptyStyle.Render(empty)
	}

	style := lipgloss.NewStyle().Foreground(color)
	rendered := make([]string, 0, len(lines))
	for _, line := range lines {
		if ansi.StringWidth(line) > contentWidth {
			line = ansi.Truncate(line, contentWidth-3, "...")
		}
		rendered = append(rendered, style.Render(line))
	}
	return strings.Join(rendered, "\n")
}

func (m Model) buildFooter() string {
	hintStyle := lipgloss.NewStyle().Foreground(mutedColor)
	if m.err != nil {
		return lipgloss.NewStyle().Foreground(errorColor).Render("error: " + m.err.Error())
	}

	followHint := "[f] Follow"
	if m.follow {
		followHint = lipgloss.NewStyle().Foreground(textColor).Bold(true).Render(followHint)
	} else {
		followHint = hintStyle.Render(followHint)
	}

	if m.showLogs {
		hints := []string{
			hintStyle.Render("[j/k] Scroll"),
			hintStyle.Render("[c] Clear"),
			hintStyle.Render("[l] Stream"),
			hintStyle.Render("[q] Quit"),
		}
		return strings.Join(hints, "  ")
	}

	hints := []string{
		hintStyle.Render(fmt.Sprintf("%d bytes", m.stats.Bytes)),
		hintStyle.Render("[j/k] Scroll"),
		hintStyle.Render("[g/G] Top/Bottom"),
		followHint,
		hintStyle.Render("[l] Logs"),
		hintStyle.Render("[q] Quit"),
	}
	return strings.Join(hints, "  ")
}

// initViewport sizes the viewport to the terminal.
func (m *Model) initViewport() {
	if m.width == 0 || m.height == 0 {
		return
	}
	contentWidth := m.boxWidth() - 2

	// header (2 lines), footer (2 lines), borders (2 lines)
	viewportHeight := max(m.height-6, viewportMinHeight)

	m.viewport = viewport.New(contentWidth, viewportHeight)
	m.viewport.SetContent(m.buildContent(contentWidth))
	m.ready = true
	if m.follow {
		m.viewport.GotoBottom()
	}
}

// loadLogs snapshots the recent debug log lines while the pane is open.
func (m *Model) loadLogs() {
	if !m.showLogs {
		m.logLines = nil
		return
	}
	m.logLines = log.GetRecentLogs(logPaneLines)
}

// updateViewportContent refreshes the viewport after new data arrives.
func (m *Model) updateViewportContent() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.buildContent(m.boxWidth() - 2))
	if m.follow {
		m.viewport.GotoBottom()
	}
}
