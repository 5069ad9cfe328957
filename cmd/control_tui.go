// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
)

//////////////////////////////////////////////////////////////
// Actions
//////////////////////////////////////////////////////////////

type actionKind int

const (
	actionRefresh actionKind = iota
	actionChannel
	actionFrequency
	actionPowerLevel
	actionPowerDBm
	actionTogglePitmode
	actionToggleLock
)

// controlAction is one entry of the action list
type controlAction struct {
	kind        actionKind
	title       string
	desc        string
	placeholder string // non-empty when the action takes a value
}

func (a controlAction) Title() string       { return a.title }
func (a controlAction) Description() string { return a.desc }
func (a controlAction) FilterValue() string { return a.title }

var controlActions = []controlAction{
	{kind: actionRefresh, title: "Refresh", desc: "Read current settings"},
	{kind: actionChannel, title: "Set Channel", desc: "Index 0-39 or name A1-R8", placeholder: "R1"},
	{kind: actionFrequency, title: "Set Frequency", desc: "Frequency in MHz", placeholder: "5800"},
	{kind: actionPowerLevel, title: "Set Power Level", desc: "Level index 0-3", placeholder: "0"},
	{kind: actionPowerDBm, title: "Set Power dBm", desc: "SmartAudio 2.1 only", placeholder: "14"},
	{kind: actionTogglePitmode, title: "Toggle Pit Mode", desc: "Enable or disable pit mode"},
	{kind: actionToggleLock, title: "Toggle Lock", desc: "Lock or unlock the VTX"},
}

// buildCommand turns an action and its input value into a command
func buildCommand(a controlAction, value string) (smartaudio.Command, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		value = a.placeholder
	}

	switch a.kind {
	case actionRefresh:
		return smartaudio.GetSettingsCommand{}, nil
	case actionChannel:
		ch, err := parseChannelArg(value)
		if err != nil {
			return nil, err
		}
		return smartaudio.SetChannelCommand{Channel: ch}, nil
	case actionFrequency:
		freq, err := strconv.ParseUint(value, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid frequency %q", value)
		}
		return smartaudio.SetFrequencyCommand{Frequency: uint16(freq)}, nil
	case actionPowerLevel, actionPowerDBm:
		p, err := parsePowerArg(value, a.kind == actionPowerDBm)
		if err != nil {
			return nil, err
		}
		return smartaudio.SetPowerCommand{Power: p}, nil
	}
	return nil, fmt.Errorf("%s takes no value", a.title)
}

// toggleCommand flips one mode flag of the last known settings
func toggleCommand(kind actionKind, s *smartaudio.Settings) (smartaudio.Command, error) {
	if s == nil {
		return nil, errors.New("settings unknown, refresh first")
	}
	c := smartaudio.SetModeCommand{
		PitmodeInRangeActive:  s.PitmodeInRangeActive,
		PitmodeOutRangeActive: s.PitmodeOutRangeActive,
		PitmodeEnabled:        s.PitmodeEnabled,
		Unlocked:              s.Unlocked,
	}
	switch kind {
	case actionTogglePitmode:
		c.PitmodeEnabled = !c.PitmodeEnabled
	case actionToggleLock:
		c.Unlocked = !c.Unlocked
	default:
		return nil, fmt.Errorf("action %d is not a toggle", kind)
	}
	return c, nil
}

//////////////////////////////////////////////////////////////
// Model
//////////////////////////////////////////////////////////////

const (
	focusActions = iota
	focusInput
)

type controlModel struct {
	session  *controlSession
	connInfo string
	poll     time.Duration

	actions      list.Model
	input        textinput.Model
	pending      *controlAction
	focusedField int

	lastSettings   *smartaudio.Settings
	lastSettingsAt time.Time
	lastLatency    time.Duration
	inFlight       int
	requests       uint64
	failures       uint64

	errorLog      []errorLogEntry
	maxLogEntries int

	width          int
	height         int
	quitting       bool
	connectionLost bool
}

type controlTickMsg time.Time

type controlResultMsg struct {
	command  smartaudio.Command
	response smartaudio.Response
	err      error
	elapsed  time.Duration
}

type reconnectedMsg struct {
	connInfo string
}

func initialControlModel(session *controlSession, connInfo string, poll time.Duration) controlModel {
	ti := textinput.New()
	ti.CharLimit = 5
	ti.Width = 10

	items := make([]list.Item, len(controlActions))
	for i, a := range controlActions {
		items[i] = a
	}
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	actions := list.New(items, delegate, 30, 16)
	actions.Title = "Actions"
	actions.SetShowStatusBar(false)
	actions.SetShowHelp(false)
	actions.SetFilteringEnabled(false)

	return controlModel{
		session:       session,
		connInfo:      connInfo,
		poll:          poll,
		actions:       actions,
		input:         ti,
		focusedField:  focusActions,
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m controlModel) Init() tea.Cmd {
	cmds := []tea.Cmd{m.session.send(smartaudio.GetSettingsCommand{})}
	if m.poll > 0 {
		cmds = append(cmds, controlTickCmd(m.poll))
	}
	return tea.Batch(cmds...)
}

func controlTickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.actions.SetSize(28, max(m.height/2, 8))

	case controlTickMsg:
		var cmds []tea.Cmd
		if !m.connectionLost && m.inFlight == 0 {
			m.inFlight++
			cmds = append(cmds, m.session.send(smartaudio.GetSettingsCommand{}))
		}
		cmds = append(cmds, controlTickCmd(m.poll))
		return m, tea.Batch(cmds...)

	case controlResultMsg:
		return m.handleResult(msg)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.addLogEntry("Reconnected: "+msg.connInfo, false)
		m.inFlight++
		return m, m.session.send(smartaudio.GetSettingsCommand{})
	}

	return m, nil
}

func (m controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.focusedField == focusInput {
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "esc":
			m.blurInput()
			return m, nil
		case "enter":
			a := *m.pending
			value := m.input.Value()
			m.blurInput()
			c, err := buildCommand(a, value)
			if err != nil {
				m.addLogEntry(err.Error(), true)
				return m, nil
			}
			return m.dispatch(c)
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "r":
		return m.dispatch(smartaudio.GetSettingsCommand{})
	case "enter":
		a, ok := m.actions.SelectedItem().(controlAction)
		if !ok {
			return m, nil
		}
		return m.runAction(a)
	}

	var cmd tea.Cmd
	m.actions, cmd = m.actions.Update(msg)
	return m, cmd
}

func (m controlModel) runAction(a controlAction) (tea.Model, tea.Cmd) {
	switch a.kind {
	case actionTogglePitmode, actionToggleLock:
		c, err := toggleCommand(a.kind, m.lastSettings)
		if err != nil {
			m.addLogEntry(err.Error(), true)
			return m, nil
		}
		return m.dispatch(c)
	case actionRefresh:
		return m.dispatch(smartaudio.GetSettingsCommand{})
	}

	m.pending = &a
	m.focusedField = focusInput
	m.input.Placeholder = a.placeholder
	m.input.SetValue("")
	return m, m.input.Focus()
}

func (m *controlModel) blurInput() {
	m.pending = nil
	m.focusedField = focusActions
	m.input.Blur()
}

func (m controlModel) dispatch(c smartaudio.Command) (tea.Model, tea.Cmd) {
	if m.connectionLost {
		m.addLogEntry("Cannot send command: connection lost", true)
		return m, nil
	}
	if _, ok := c.(smartaudio.GetSettingsCommand); !ok {
		m.addLogEntry("-> "+smartaudio.FormatCommand(c), false)
	}
	m.inFlight++
	return m, m.session.send(c)
}

func (m controlModel) handleResult(msg controlResultMsg) (tea.Model, tea.Cmd) {
	m.inFlight = max(m.inFlight-1, 0)
	m.requests++

	if msg.err != nil {
		m.failures++
		name := smartaudio.FormatCommandName(msg.command.Code())
		if connectionLost(msg.err) {
			if m.connectionLost {
				return m, nil
			}
			m.connectionLost = true
			m.addLogEntry("Connection lost - reconnecting...", true)
			return m, m.session.reconnect()
		}
		m.addLogEntry(fmt.Sprintf("%s failed: %v", name, msg.err), true)
		return m, nil
	}

	m.lastLatency = msg.elapsed

	if s, ok := msg.response.(smartaudio.Settings); ok {
		changed := m.lastSettings == nil || !sameSettings(*m.lastSettings, s)
		m.lastSettings = &s
		m.lastSettingsAt = time.Now()
		if changed {
			m.addLogEntry(fmt.Sprintf("Settings: %s %s", smartaudio.ChannelName(s.Channel), smartaudio.FormatFrequency(s.Frequency)), false)
		}
		for _, v := range smartaudio.ValidateResponse(s) {
			m.addLogEntry(v.Message, true)
		}
		return m, nil
	}

	code := msg.response.ResponseCode()
	m.addLogEntry(fmt.Sprintf("%s acknowledged in %s", smartaudio.FormatResponseName(code), msg.elapsed.Round(time.Millisecond)), false)

	// read back the result of every change
	m.inFlight++
	return m, m.session.send(smartaudio.GetSettingsCommand{})
}

func sameSettings(a, b smartaudio.Settings) bool {
	pa, pb := a.PowerSettings, b.PowerSettings
	a.PowerSettings, b.PowerSettings = nil, nil
	if a != b {
		return false
	}
	if pa == nil || pb == nil {
		return pa == pb
	}
	return *pa == *pb
}

func (m *controlModel) addLogEntry(message string, isError bool) {
	m.errorLog = append(m.errorLog, errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	st := newTUIStyles()
	focusedBox := st.box.BorderForeground(lipgloss.Color("12"))

	var s strings.Builder

	s.WriteString(st.title.Render("SMARTAUDIO CONTROL"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = st.warning.Render("RECONNECTING...")
	}
	s.WriteString(st.header.Render(fmt.Sprintf("| %s | q=quit r=refresh Enter=run Esc=cancel", connStatus)))
	s.WriteString("\n\n")

	leftWidth := 30
	rightWidth := max(m.width-leftWidth-6, 20)

	listBox := st.box.Width(leftWidth)
	if m.focusedField == focusActions {
		listBox = focusedBox.Width(leftWidth)
	}

	var right strings.Builder
	right.WriteString(st.label.Render("SETTINGS"))
	right.WriteString("\n")
	if m.lastSettings == nil {
		right.WriteString(st.header.Render("(waiting for VTX)"))
	} else {
		right.WriteString(renderSettings(*m.lastSettings, m.lastSettingsAt, st))
	}
	right.WriteString("\n\n")
	fmt.Fprintf(&right, "%s %s   %s %s   %s %s",
		st.label.Render("Requests:"), st.value.Render(strconv.FormatUint(m.requests, 10)),
		st.label.Render("Failed:"), st.value.Render(strconv.FormatUint(m.failures, 10)),
		st.label.Render("Latency:"), st.value.Render(m.lastLatency.Round(time.Millisecond).String()),
	)
	if m.inFlight > 0 {
		right.WriteString("  " + st.warning.Render("busy"))
	}
	if m.pending != nil {
		right.WriteString("\n\n")
		right.WriteString(st.label.Render(m.pending.title + ": "))
		right.WriteString(m.input.View())
	}

	rightBox := st.box.Width(rightWidth)
	if m.focusedField == focusInput {
		rightBox = focusedBox.Width(rightWidth)
	}

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		listBox.Render(m.actions.View()), " ", rightBox.Render(right.String())))
	s.WriteString("\n\n")

	logHeight := max(m.height-26, 5)
	var events strings.Builder
	events.WriteString(st.label.Render("EVENTS"))
	events.WriteString("\n")
	events.WriteString(renderEventLog(m.errorLog, logHeight, st))
	s.WriteString(st.box.Width(max(m.width-4, 20)).Render(events.String()))

	return s.String()
}
