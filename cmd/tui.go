// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/smartaudio/internal/monitor"
	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
)

// Error log entry
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info
}

// TUI model
type model struct {
	connInfo       string
	statsInterval  int
	showAll        bool
	stats          *smartaudio.Statistics
	errorLog       []errorLogEntry
	maxLogEntries  int
	synchronized   bool
	invalidBytes   int
	commandsSeen   uint64
	lastSettings   *smartaudio.Settings
	lastSettingsAt time.Time
	width          int
	height         int
	quitting       bool
	closed         bool
}

// Messages
type tickMsg time.Time
type lineEventMsg monitor.Event
type connectionClosedMsg struct {
	err error
}

// formatDuration formats a duration as a human-friendly string
func formatDuration(d time.Duration) string {
	seconds := int64(d / time.Second)
	if seconds <= 0 {
		return "0 seconds"
	}

	units := []struct {
		name string
		size int64
	}{
		{"day", 86400},
		{"hour", 3600},
		{"minute", 60},
		{"second", 1},
	}

	parts := []string{}
	for _, u := range units {
		n := seconds / u.size
		seconds %= u.size
		switch {
		case n == 1:
			parts = append(parts, "1 "+u.name)
		case n > 1:
			parts = append(parts, fmt.Sprintf("%d %ss", n, u.name))
		}
	}

	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func initialModel(connInfo string, statsInterval int, showAll bool) model {
	return model{
		connInfo:      connInfo,
		statsInterval: statsInterval,
		showAll:       showAll,
		stats:         smartaudio.NewStatistics(),
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.stats.Reset()
			m.addLogEntry("Statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case connectionClosedMsg:
		m.closed = true
		m.addLogEntry(fmt.Sprintf("Connection closed: %v", msg.err), true)

	case lineEventMsg:
		m.handleEvent(monitor.Event(msg))
	}

	return m, nil
}

func (m *model) handleEvent(e monitor.Event) {
	switch e.Kind {
	case monitor.EventSync:
		m.synchronized = true
		m.invalidBytes = e.Skipped
		if e.Skipped > 0 {
			m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d invalid bytes", e.Skipped), false)
		} else {
			m.addLogEntry("Synchronized", false)
		}

	case monitor.EventError:
		m.stats.Update(nil, e.Err, nil)
		m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", e.Err), true)

	case monitor.EventCommand:
		m.commandsSeen++
		if m.showAll {
			m.addLogEntry("-> "+smartaudio.FormatCommand(e.Command), false)
		}

	case monitor.EventResponse:
		m.stats.Update(e.Response, nil, e.Anomalies)
		if s, ok := e.Response.(smartaudio.Settings); ok {
			m.lastSettings = &s
			m.lastSettingsAt = e.Time
		}

		name := smartaudio.FormatResponseName(e.Response.ResponseCode())
		if len(e.Anomalies) > 0 {
			for _, v := range e.Anomalies {
				m.addLogEntry(fmt.Sprintf("%s: %s", name, v.Message), true)
			}
		} else if m.showAll {
			m.addLogEntry(fmt.Sprintf("%s (valid)", name), false)
		}
	}
}

func (m *model) addLogEntry(message string, isError bool) {
	m.errorLog = append(m.errorLog, errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

// tuiStyles is the shared palette of the terminal UIs
type tuiStyles struct {
	title, header, label, value, err, warning, box lipgloss.Style
}

func newTUIStyles() tuiStyles {
	return tuiStyles{
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1),
		header:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		label:   lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		value:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		err:     lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		warning: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
	}
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	st := newTUIStyles()

	var s strings.Builder
	s.WriteString(st.title.Render("SMARTAUDIO - ERROR DETECTION"))
	s.WriteString("\n")
	mode := "Errors only"
	if m.showAll {
		mode = "All frames"
	}
	s.WriteString(st.header.Render(fmt.Sprintf("%s | Mode: %s | Up %s | 'r' reset, 'q' quit",
		m.connInfo, mode, formatDuration(time.Since(m.stats.StartTime)))))
	s.WriteString("\n\n")

	switch {
	case m.closed:
		s.WriteString(st.err.Render("✗ Connection closed"))
	case !m.synchronized:
		s.WriteString(st.warning.Render("⏳ Waiting for synchronization..."))
	default:
		s.WriteString(st.value.Render("✓ Synchronized"))
		if m.invalidBytes > 0 {
			s.WriteString(st.header.Render(fmt.Sprintf(" (skipped %d invalid bytes)", m.invalidBytes)))
		}
	}
	s.WriteString("\n\n")

	s.WriteString(st.box.Render(renderStatistics(m.stats, m.commandsSeen, st)))
	s.WriteString("\n\n")

	if m.lastSettings != nil {
		s.WriteString(st.label.Render("Latest Settings:"))
		s.WriteString("\n")
		s.WriteString(st.box.Render(renderSettings(*m.lastSettings, m.lastSettingsAt, st)))
		s.WriteString("\n\n")
	}

	s.WriteString(st.label.Render("Recent Events:"))
	s.WriteString("\n")
	logHeight := max(m.height-22, 5)
	s.WriteString(st.box.Width(m.width - 4).Render(renderEventLog(m.errorLog, logHeight, st)))

	return s.String()
}

func renderStatistics(stats *smartaudio.Statistics, commands uint64, st tuiStyles) string {
	stats.CalculateRates()

	var validPercent, errorPercent float64
	if stats.TotalFrames > 0 {
		validPercent = float64(stats.ValidFrames) * 100.0 / float64(stats.TotalFrames)
		errorPercent = float64(stats.Errors()) * 100.0 / float64(stats.TotalFrames)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s   %s %s   %s %s   %s %s\n",
		st.label.Render("Total:"), st.value.Render(fmt.Sprintf("%d", stats.TotalFrames)),
		st.label.Render("Valid:"), st.value.Render(fmt.Sprintf("%d (%.1f%%)", stats.ValidFrames, validPercent)),
		st.label.Render("Errors:"), st.err.Render(fmt.Sprintf("%d (%.1f%%)", stats.Errors(), errorPercent)),
		st.label.Render("Commands:"), st.value.Render(fmt.Sprintf("%d", commands)),
	)

	if stats.CRCErrors > 0 || stats.FramingErrors > 0 || stats.DecodeErrors > 0 {
		fmt.Fprintf(&b, "%s %s   %s %s   %s %s\n",
			st.label.Render("CRC:"), st.err.Render(fmt.Sprintf("%d", stats.CRCErrors)),
			st.label.Render("Framing:"), st.err.Render(fmt.Sprintf("%d", stats.FramingErrors)),
			st.label.Render("Decode:"), st.err.Render(fmt.Sprintf("%d", stats.DecodeErrors)),
		)
	}

	if stats.AnomalousValues > 0 {
		fmt.Fprintf(&b, "%s %s (%s: %d, %s: %d, %s: %d, %s: %d)\n",
			st.label.Render("Anomalous:"), st.warning.Render(fmt.Sprintf("%d", stats.AnomalousValues)),
			st.header.Render("channel"), stats.ChannelRange,
			st.header.Render("frequency"), stats.FrequencyRange,
			st.header.Render("power"), stats.PowerAnomalies,
			st.header.Render("mode"), stats.ModeConflicts,
		)
	}

	rate := st.value
	if stats.ErrorRate > 0 {
		rate = st.err
	}
	fmt.Fprintf(&b, "%s %s   %s %s",
		st.label.Render("Frame Rate:"), st.value.Render(fmt.Sprintf("%.1f frames/s", stats.FrameRate)),
		st.label.Render("Error Rate:"), rate.Render(fmt.Sprintf("%.1f err/s", stats.ErrorRate)),
	)
	return b.String()
}

func renderSettings(s smartaudio.Settings, at time.Time, st tuiStyles) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s   %s %s\n",
		st.label.Render("Version:"), st.value.Render(s.Version.String()),
		st.label.Render("Seen:"), st.header.Render(at.Format("15:04:05")),
	)
	fmt.Fprintf(&b, "%s %s   %s %s\n",
		st.label.Render("Channel:"), st.value.Render(fmt.Sprintf("%d (%s)", s.Channel, smartaudio.ChannelName(s.Channel))),
		st.label.Render("Frequency:"), st.value.Render(smartaudio.FormatFrequency(s.Frequency)),
	)
	power := fmt.Sprintf("level %d", s.PowerLevel)
	if ps := s.PowerSettings; ps != nil {
		power = fmt.Sprintf("%d dBm", ps.CurrentPower)
	}
	lock := "locked"
	if s.Unlocked {
		lock = "unlocked"
	}
	pit := "off"
	if s.PitmodeEnabled {
		pit = "on"
	}
	fmt.Fprintf(&b, "%s %s   %s %s   %s %s",
		st.label.Render("Power:"), st.value.Render(power),
		st.label.Render("Pit mode:"), st.value.Render(pit),
		st.label.Render("Lock:"), st.value.Render(lock),
	)
	return b.String()
}

func renderEventLog(entries []errorLogEntry, height int, st tuiStyles) string {
	if len(entries) == 0 {
		return st.header.Render("  (no events yet)")
	}

	var b strings.Builder
	for _, entry := range entries[max(len(entries)-height, 0):] {
		timestamp := st.header.Render(entry.timestamp.Format("01/02/06 15:04:05.000"))
		if entry.isError {
			fmt.Fprintf(&b, "%s %s\n", timestamp, st.err.Render("✗ "+entry.message))
		} else {
			fmt.Fprintf(&b, "%s %s\n", timestamp, st.warning.Render("ℹ "+entry.message))
		}
	}
	return b.String()
}
