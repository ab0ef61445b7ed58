package tui

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lu-zhengda/tcpmon/internal/monitor"
	"github.com/lu-zhengda/tcpmon/internal/process"
)

// Backend is the monitor session the dashboard renders and drives.
// *monitor.Session satisfies it.
type Backend interface {
	CurrentRecords() []monitor.Record
	CurrentHistory() []int
	HistoryCapacity() int
	LastCycle() monitor.Cycle
	Filter() string
	SetFilter(criterion string)
	RefreshNow() bool
	KillSelected(ctx context.Context, pid int32) (monitor.Ack, error)
}

// InfoProvider looks up process details for the info view.
type InfoProvider interface {
	Info(ctx context.Context, pid int32) (*process.ProcessInfo, error)
}

// viewState tracks which screen the TUI is currently showing.
type viewState int

const (
	viewTable viewState = iota
	viewInfo
	viewKillConfirm
	viewKillResult
	viewFilter
)

// sortField defines what column to sort by.
type sortField int

const (
	sortNone sortField = iota // source order
	sortByPort
	sortByPID
	sortByProcess
)

var sortNames = map[sortField]string{
	sortNone:      "source",
	sortByPort:    "port",
	sortByPID:     "pid",
	sortByProcess: "process",
}

// CycleMsg tells the dashboard a sampling cycle finished. Send it from the
// scheduler's cycle hook with tea.Program.Send.
type CycleMsg struct {
	Cycle monitor.Cycle
}

type killDoneMsg struct {
	record monitor.Record
	ack    monitor.Ack
	err    error
}

type infoDoneMsg struct {
	info *process.ProcessInfo
	err  error
}

// Options configures the dashboard.
type Options struct {
	Version string
	Color   bool
	Info    InfoProvider // nil disables the info view
}

// Model is the main Bubbletea model for the tcpmon dashboard.
type Model struct {
	backend Backend
	info    InfoProvider
	version string
	color   bool

	records []monitor.Record
	history []int
	last    monitor.Cycle
	sampled bool // at least one cycle has been seen

	cursor       int
	scrollOffset int
	sortBy       sortField
	paused       bool

	filterInput textinput.Model

	// Info view state.
	infoRecord *monitor.Record
	infoData   *process.ProcessInfo
	infoErr    error

	// Kill state.
	killRecord *monitor.Record
	killResult string
	killErr    error

	spinner spinner.Model

	width  int
	height int

	currentView viewState
}

// New creates a new dashboard model.
func New(backend Backend, opts Options) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorCyan)

	ti := textinput.New()
	ti.Placeholder = "port, e.g. 443"
	ti.Prompt = "/ "
	ti.CharLimit = 5

	return Model{
		backend:     backend,
		info:        opts.Info,
		version:     opts.Version,
		color:       opts.Color,
		filterInput: ti,
		spinner:     sp,
		currentView: viewTable,
	}
}

// Init starts the spinner. Cycles arrive as CycleMsg.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) doKill(rec monitor.Record) tea.Cmd {
	backend := m.backend
	return func() tea.Msg {
		ack, err := backend.KillSelected(context.Background(), rec.PID)
		return killDoneMsg{record: rec, ack: ack, err: err}
	}
}

func (m Model) doGetInfo(pid int32) tea.Cmd {
	provider := m.info
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		info, err := provider.Info(ctx, pid)
		return infoDoneMsg{info: info, err: err}
	}
}

// Update handles all messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.adjustScroll()
		return m, nil

	case spinner.TickMsg:
		if !m.sampled {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case CycleMsg:
		m.sampled = true
		if !m.paused {
			m.pull()
		}
		return m, nil

	case killDoneMsg:
		m.killErr = msg.err
		if msg.err == nil {
			m.killResult = fmt.Sprintf("Sent termination request to %s (PID %d)", msg.record.ProcessName, msg.ack.PID)
		}
		m.currentView = viewKillResult
		return m, nil

	case infoDoneMsg:
		m.infoData = msg.info
		m.infoErr = msg.err
		m.currentView = viewInfo
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

		switch m.currentView {
		case viewTable:
			return m.updateTable(msg)
		case viewInfo:
			return m.updateInfo(msg)
		case viewKillConfirm:
			return m.updateKillConfirm(msg)
		case viewKillResult:
			return m.updateKillResult(msg)
		case viewFilter:
			return m.updateFilter(msg)
		}
	}

	return m, nil
}

// pull copies the latest published state out of the backend.
func (m *Model) pull() {
	m.records = m.backend.CurrentRecords()
	m.history = m.backend.CurrentHistory()
	m.last = m.backend.LastCycle()
	m.sortRecords()
	if m.cursor >= len(m.records) {
		m.cursor = max(0, len(m.records)-1)
	}
	m.adjustScroll()
}

func (m Model) updateTable(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "j", "down":
		if len(m.records) > 0 && m.cursor < len(m.records)-1 {
			m.cursor++
			m.ensureCursorVisible()
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
			m.ensureCursorVisible()
		}
	case "K":
		if rec := m.selectedRecord(); rec != nil {
			m.killRecord = rec
			m.currentView = viewKillConfirm
		}
	case "i", "enter":
		if rec := m.selectedRecord(); rec != nil {
			m.infoRecord = rec
			m.infoData = nil
			m.infoErr = nil
			switch {
			case m.info == nil:
				m.infoErr = errors.New("process details are not available")
			case !rec.HasPID():
				m.infoErr = monitor.ErrNoOwningProcess
			default:
				return m, m.doGetInfo(rec.PID)
			}
			m.currentView = viewInfo
		}
	case "r":
		m.backend.RefreshNow()
	case "s":
		m.sortBy = (m.sortBy + 1) % 4
		m.sortRecords()
	case "p":
		m.paused = !m.paused
		if !m.paused && m.sampled {
			m.pull()
		}
	case "/":
		m.currentView = viewFilter
		m.filterInput.SetValue(m.backend.Filter())
		m.filterInput.CursorEnd()
		cmd := m.filterInput.Focus()
		return m, cmd
	case "esc":
		if m.backend.Filter() != "" {
			m.backend.SetFilter("")
			m.backend.RefreshNow()
		}
	}
	return m, nil
}

func (m Model) updateInfo(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "esc", "backspace":
		m.currentView = viewTable
	case "K":
		if m.infoRecord != nil {
			m.killRecord = m.infoRecord
			m.currentView = viewKillConfirm
		}
	}
	return m, nil
}

func (m Model) updateKillConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		if m.killRecord != nil {
			return m, m.doKill(*m.killRecord)
		}
	case "n", "esc", "N":
		m.currentView = viewTable
		m.killRecord = nil
	case "q":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updateKillResult(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "esc", "enter", "backspace":
		m.currentView = viewTable
		m.killRecord = nil
		m.killResult = ""
		m.killErr = nil
		m.backend.RefreshNow()
	}
	return m, nil
}

func (m Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.currentView = viewTable
		m.filterInput.Blur()
		value := strings.TrimSpace(m.filterInput.Value())
		if value != m.backend.Filter() {
			m.backend.SetFilter(value)
			m.backend.RefreshNow()
		}
		return m, nil
	case tea.KeyEsc:
		m.currentView = viewTable
		m.filterInput.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.filterInput, cmd = m.filterInput.Update(msg)
	return m, cmd
}

func (m *Model) selectedRecord() *monitor.Record {
	if len(m.records) == 0 || m.cursor < 0 || m.cursor >= len(m.records) {
		return nil
	}
	rec := m.records[m.cursor]
	return &rec
}

func (m *Model) sortRecords() {
	if m.sortBy == sortNone {
		return
	}
	sort.SliceStable(m.records, func(i, j int) bool {
		a, b := m.records[i], m.records[j]
		switch m.sortBy {
		case sortByPID:
			return a.PID < b.PID
		case sortByProcess:
			return strings.ToLower(a.ProcessName) < strings.ToLower(b.ProcessName)
		default:
			return a.Local.Port < b.Local.Port
		}
	})
}

func (m *Model) ensureCursorVisible() {
	visible := m.visibleRows()
	if m.cursor < m.scrollOffset {
		m.scrollOffset = m.cursor
	}
	if m.cursor >= m.scrollOffset+visible {
		m.scrollOffset = m.cursor - visible + 1
	}
}

func (m *Model) adjustScroll() {
	m.ensureCursorVisible()
	maxOffset := max(0, len(m.records)-m.visibleRows())
	if m.scrollOffset > maxOffset {
		m.scrollOffset = maxOffset
	}
	if m.scrollOffset < 0 {
		m.scrollOffset = 0
	}
}

func (m Model) visibleRows() int {
	// Reserve lines for: header (1), trend (1), column headers (1), status (2), help (2) = 7.
	const reserved = 7
	return max(1, m.height-reserved)
}

// View renders the TUI.
func (m Model) View() string {
	switch m.currentView {
	case viewInfo:
		return m.viewInfo()
	case viewKillConfirm:
		return m.viewKillConfirm()
	case viewKillResult:
		return m.viewKillResult()
	case viewFilter:
		return m.viewFilter()
	default:
		return m.viewTable()
	}
}

func (m Model) viewTable() string {
	var b strings.Builder

	// Header bar.
	title := titleStyle.Render(fmt.Sprintf("tcpmon %s", m.version))
	suspicious := 0
	for _, r := range m.records {
		if r.Suspicious {
			suspicious++
		}
	}
	stats := dimStyle.Render(fmt.Sprintf("Connections: %d  Suspicious: %d  Sort: %s",
		len(m.records), suspicious, sortNames[m.sortBy]))
	pauseIndicator := ""
	if m.paused {
		pauseIndicator = warnStyle.Render("  [PAUSED]")
	}
	b.WriteString(title + "  " + stats + pauseIndicator + "\n")

	if !m.sampled {
		b.WriteString("\n" + m.spinner.View() + " Sampling connections...\n")
		return b.String()
	}

	b.WriteString(m.trendLine() + "\n")

	b.WriteString(headerStyle.Render(fmt.Sprintf(
		"  %-1s %-7s %-16s %-24s %-24s %s",
		"!", "PID", "PROCESS", "LOCAL", "REMOTE", "STATUS",
	)) + "\n")

	if len(m.records) == 0 {
		if f := m.backend.Filter(); f != "" {
			b.WriteString("\n  No connections matching port filter: " + f + "\n")
		} else {
			b.WriteString("\n  No TCP connections found.\n")
		}
	} else {
		viewportRows := m.visibleRows()
		end := min(m.scrollOffset+viewportRows, len(m.records))

		for i := m.scrollOffset; i < end; i++ {
			r := m.records[i]

			cursor := "  "
			if i == m.cursor {
				cursor = cursorStyle.Render("> ")
			}

			flag := " "
			if r.Suspicious {
				flag = "!"
			}
			pid := "-"
			if r.HasPID() {
				pid = strconv.Itoa(int(r.PID))
			}
			line := fmt.Sprintf("%-1s %-7s %-16s %-24s %-24s %s",
				flag, pid,
				truncate(r.ProcessName, 16),
				truncate(r.Local.String(), 24),
				truncate(r.RemoteString(), 24),
				r.Status,
			)

			b.WriteString(cursor + rowStyle(r.Suspicious, m.color).Render(line) + "\n")
		}

		if len(m.records) > viewportRows {
			b.WriteString(dimStyle.Render(fmt.Sprintf("  [%d-%d of %d]",
				m.scrollOffset+1, end, len(m.records))) + "\n")
		}
	}

	if m.last.Err != nil {
		b.WriteString("\n" + errorStyle.Render(fmt.Sprintf("  Sampling failed: %v", m.last.Err)))
	}
	if f := m.backend.Filter(); f != "" {
		b.WriteString("\n" + dimStyle.Render(fmt.Sprintf("  filter: %s", f)))
	}

	b.WriteString(helpStyle.Render("j/k:navigate  K:kill  i:info  r:refresh  s:sort  p:pause  /:filter  q:quit") + "\n")

	return b.String()
}

func (m Model) trendLine() string {
	capacity := m.backend.HistoryCapacity()
	spark := Sparkline(m.history, capacity)
	if spark == "" {
		return dimStyle.Render("  Trend: no data yet")
	}
	last := m.history[len(m.history)-1]
	return dimStyle.Render("  Trend: ") + trendStyle.Render(spark) +
		dimStyle.Render(fmt.Sprintf("  now %d  (%d/%d cycles)", last, len(m.history), capacity))
}

func (m Model) viewInfo() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("tcpmon -- Connection Info") + "\n\n")

	if m.infoRecord == nil {
		b.WriteString("  No connection selected.\n")
		b.WriteString(helpStyle.Render("\nesc back | q quit") + "\n")
		return b.String()
	}

	r := m.infoRecord
	b.WriteString(labelStyle.Render("Local:") + valueStyle.Render(r.Local.String()) + "\n")
	b.WriteString(labelStyle.Render("Remote:") + valueStyle.Render(r.RemoteString()) + "\n")
	b.WriteString(labelStyle.Render("Status:") + valueStyle.Render(r.Status) + "\n")
	b.WriteString(labelStyle.Render("Process:") + valueStyle.Render(fmt.Sprintf("%s (PID %d)", r.ProcessName, r.PID)) + "\n")
	if r.Suspicious {
		b.WriteString(labelStyle.Render("Watchlist:") + errorStyle.Render("suspicious port") + "\n")
	}

	if m.infoErr != nil {
		b.WriteString("\n" + errorStyle.Render(fmt.Sprintf("  Error: %v", m.infoErr)) + "\n")
		b.WriteString(helpStyle.Render("\nesc back | q quit") + "\n")
		return b.String()
	}

	if m.infoData != nil {
		info := m.infoData
		b.WriteString(labelStyle.Render("Command:") + valueStyle.Render(info.Command) + "\n")
		b.WriteString(labelStyle.Render("User:") + valueStyle.Render(info.User) + "\n")

		if !info.StartTime.IsZero() {
			ago := time.Since(info.StartTime).Truncate(time.Second)
			b.WriteString(labelStyle.Render("Started:") + valueStyle.Render(
				fmt.Sprintf("%s ago (%s)", formatDuration(ago), info.StartTime.Format("2006-01-02 15:04:05")),
			) + "\n")
		}

		b.WriteString(labelStyle.Render("CPU:") + valueStyle.Render(fmt.Sprintf("%.1f%%", info.CPUPercent)) + "\n")
		b.WriteString(labelStyle.Render("Memory:") + valueStyle.Render(FormatBytes(info.MemRSS)+" (RSS)") + "\n")

		if info.PPID > 0 {
			b.WriteString(labelStyle.Render("Parent PID:") + valueStyle.Render(fmt.Sprintf("%d", info.PPID)) + "\n")
		}

		if len(info.Children) > 0 {
			childStrs := make([]string, len(info.Children))
			for i, c := range info.Children {
				childStrs[i] = fmt.Sprintf("%d", c)
			}
			b.WriteString(labelStyle.Render("Children:") + valueStyle.Render(strings.Join(childStrs, ", ")) + "\n")
		}
	}

	b.WriteString(helpStyle.Render("\nK:kill  esc:back  q:quit") + "\n")
	return b.String()
}

func (m Model) viewKillConfirm() string {
	var b strings.Builder

	b.WriteString(dangerStyle.Render(" KILL PROCESS ") + "\n\n")

	if m.killRecord == nil {
		b.WriteString("  No process selected.\n")
		b.WriteString(helpStyle.Render("\nesc cancel | q quit") + "\n")
		return b.String()
	}

	r := m.killRecord
	if !r.HasPID() {
		b.WriteString(fmt.Sprintf("  Connection %s has no known owning process.\n\n", r.Local.String()))
	} else {
		b.WriteString(fmt.Sprintf("  Terminate %q (PID %d) owning %s?\n\n", r.ProcessName, r.PID, r.Local.String()))
	}

	if r.ProcessName == monitor.NameAccessDenied {
		b.WriteString(warnStyle.Render("  WARNING: this process could not be inspected.") + "\n")
		b.WriteString(warnStyle.Render("  You may need elevated privileges to kill it.") + "\n\n")
	}

	b.WriteString(helpStyle.Render("y:terminate  n/esc:cancel") + "\n")
	return b.String()
}

func (m Model) viewKillResult() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("tcpmon -- Kill Result") + "\n\n")

	if m.killErr != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("  Failed: %v", m.killErr)) + "\n")
	} else {
		b.WriteString(successStyle.Render(fmt.Sprintf("  %s", m.killResult)) + "\n")
	}

	b.WriteString(helpStyle.Render("\nenter/esc:back  q:quit") + "\n")
	return b.String()
}

func (m Model) viewFilter() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("tcpmon -- Port Filter") + "\n\n")
	b.WriteString("  " + m.filterInput.View() + "\n")
	b.WriteString(dimStyle.Render("  Matches local or remote ports containing the text. Empty shows all.") + "\n")
	b.WriteString(helpStyle.Render("\nenter:apply  esc:cancel") + "\n")

	return b.String()
}

// truncate truncates a string to max length, appending "..." if truncated.
func truncate(s string, maxLen int) string {
	if maxLen < 4 {
		maxLen = 4
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// FormatBytes formats bytes into a human-readable string.
func FormatBytes(b uint64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatDuration formats a duration into a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	hours := int(d.Hours())
	if hours < 24 {
		return fmt.Sprintf("%dh %dm", hours, int(d.Minutes())%60)
	}
	days := hours / 24
	return fmt.Sprintf("%dd %dh", days, hours%24)
}
