// Package ui provides a TUI dashboard for BitPulse.
package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bitpulse/bitpulse/internal/game"
	"github.com/bitpulse/bitpulse/internal/pipeline"
)

// Status represents the dashboard state
type Status int

const (
	StatusIdle Status = iota
	StatusStreaming
	StatusPaused
	StatusStopped
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "Idle"
	case StatusStreaming:
		return "Streaming"
	case StatusPaused:
		return "Paused"
	case StatusStopped:
		return "Stopped"
	case StatusCompleted:
		return "Completed"
	default:
		return "Unknown"
	}
}

// LogEntry represents a log message
type LogEntry struct {
	Time    time.Time
	Level   string
	Message string
}

// Controls are the hooks the key bindings invoke. Nil hooks are ignored,
// so a replay without a game attaches no FinishGame.
type Controls struct {
	Pause      func()
	Resume     func()
	Stop       func()
	FinishGame func()
}

// Dashboard is the main TUI model. It doubles as the pipeline's visual and
// stats sink; those methods are called from the pipeline goroutine while
// Update and View run on the UI loop, so shared fields are mutex-protected.
type Dashboard struct {
	mu sync.Mutex

	// Dimensions
	width  int
	height int

	// State
	status    Status
	stats     *Stats
	statsView *StatsView
	wave      *WaveView
	gameView  *GameView
	spinner   *SpinnerProgress
	replay    *ReplayProgress

	game        *game.State // nil outside game mode
	replayTotal int64       // >0 in replay mode

	// Logs
	logs    []LogEntry
	maxLogs int

	// Source info
	sourceDesc string

	controls Controls

	// Animation
	tickCount int
}

// NewDashboard creates a new dashboard instance
func NewDashboard() *Dashboard {
	return &Dashboard{
		width:     80,
		height:    24,
		status:    StatusIdle,
		stats:     NewStats(),
		statsView: NewStatsView(40, 15),
		wave:      NewWaveView(70, 9),
		gameView:  NewGameView(40),
		spinner:   NewSpinnerProgress(),
		logs:      make([]LogEntry, 0, 100),
		maxLogs:   50,
	}
}

// SetSourceDesc sets the source description shown in the header.
func (d *Dashboard) SetSourceDesc(desc string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sourceDesc = desc
}

// SetControls wires the key-binding hooks.
func (d *Dashboard) SetControls(c Controls) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.controls = c
}

// AttachGame enables the game panel.
func (d *Dashboard) AttachGame(g *game.State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.game = g
}

// SetReplayTotal enables the replay progress bar with the record count
// recorded in the capture metadata.
func (d *Dashboard) SetReplayTotal(total int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.replayTotal = total
	d.replay = NewReplayProgress(d.width - 4)
}

// AddLog adds a log entry
func (d *Dashboard) AddLog(level, message string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.logs = append(d.logs, LogEntry{
		Time:    time.Now(),
		Level:   level,
		Message: message,
	})

	// Trim if too many logs
	if len(d.logs) > d.maxLogs {
		d.logs = d.logs[len(d.logs)-d.maxLogs:]
	}
}

// GetStats returns the stats for external reads
func (d *Dashboard) GetStats() *Stats {
	return d.stats
}

// AddPoint receives a signal point from the pipeline.
func (d *Dashboard) AddPoint(value float64, marker string) {
	d.wave.AddPoint(value, marker)
	if marker != "" {
		d.stats.RecordSpike(marker)
	}
}

// UpdateStats receives a stats refresh from the pipeline.
func (d *Dashboard) UpdateStats(u pipeline.StatsUpdate) {
	d.stats.Apply(u)
}

// Start marks the stream as live
func (d *Dashboard) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = StatusStreaming
	d.spinner.Start()
}

// Pause marks the stream as paused
func (d *Dashboard) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = StatusPaused
	d.spinner.Stop()
}

// Resume marks the stream as live again
func (d *Dashboard) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = StatusStreaming
	d.spinner.Start()
}

// Stop marks the stream as stopped
func (d *Dashboard) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = StatusStopped
	d.spinner.Stop()
}

// Complete marks the stream as exhausted
func (d *Dashboard) Complete() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = StatusCompleted
	d.spinner.Stop()
	d.spinner.SetText("Stream complete")
}

// --- Bubbletea Model interface ---

// TickMsg is sent on each animation tick
type TickMsg time.Time

// Init initializes the model
func (d *Dashboard) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

// tickCmd returns a command that ticks periodically
func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// Update handles messages
func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return d.handleKey(msg)

	case tea.WindowSizeMsg:
		d.mu.Lock()
		d.width = msg.Width
		d.height = msg.Height
		d.statsView.SetSize(d.width/3, d.height-10)
		d.wave.SetSize(d.width-6, 9)
		d.gameView.SetSize(d.width / 3)
		if d.replay != nil {
			d.replay.SetSize(d.width - 4)
		}
		d.mu.Unlock()

	case TickMsg:
		d.mu.Lock()
		d.tickCount++
		d.spinner.Tick()
		if d.replay != nil {
			snap := d.stats.Snapshot()
			d.replay.Update(snap.Position, d.replayTotal, replayETA(snap, d.replayTotal))
		}
		d.mu.Unlock()
		return d, tickCmd()
	}

	return d, nil
}

func (d *Dashboard) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	d.mu.Lock()
	controls := d.controls
	status := d.status
	hasGame := d.game != nil
	d.mu.Unlock()

	switch msg.String() {
	case "q", "ctrl+c":
		if controls.Stop != nil {
			controls.Stop()
		}
		d.Stop()
		return d, tea.Quit

	case "p":
		if status == StatusStreaming {
			if controls.Pause != nil {
				controls.Pause()
			}
			d.Pause()
			d.AddLog("INFO", "stream paused")
		} else if status == StatusPaused {
			if controls.Resume != nil {
				controls.Resume()
			}
			d.Resume()
			d.AddLog("INFO", "stream resumed")
		}

	case "r":
		if status == StatusPaused {
			if controls.Resume != nil {
				controls.Resume()
			}
			d.Resume()
			d.AddLog("INFO", "stream resumed")
		}

	case "s":
		snap := d.stats.Snapshot()
		d.AddLog("INFO", fmt.Sprintf("saved %d records so far", snap.RecordsWritten))

	case "f":
		if hasGame && controls.FinishGame != nil {
			controls.FinishGame()
			d.AddLog("INFO", "game session finished")
		}
	}

	return d, nil
}

// replayETA estimates time remaining from the average replay rate.
func replayETA(snap StatsSnapshot, total int64) string {
	if snap.Rate <= 0 || total <= snap.Position {
		return ""
	}
	left := time.Duration(float64(total-snap.Position)/snap.Rate) * time.Second
	return formatDuration(left)
}

// View renders the dashboard
func (d *Dashboard) View() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	b.WriteString(d.renderHeader())
	b.WriteString("\n")

	// Signal wave
	b.WriteString(WavePanelStyle.Width(d.width - 4).Render(d.wave.Render()))
	b.WriteString("\n")

	// Main content area
	panels := []string{
		d.statsView.Render(d.stats.Snapshot()),
		d.renderLogPanel(),
	}
	if d.game != nil {
		panels = append([]string{d.gameView.Render(d.game.Snapshot(), d.game.Overall())}, panels...)
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, panels...))
	b.WriteString("\n")

	if d.replay != nil {
		b.WriteString(d.replay.Render())
	} else {
		b.WriteString(d.spinner.Render())
	}
	b.WriteString("\n")

	b.WriteString(d.renderFooter())

	return b.String()
}

// renderHeader renders the header section
func (d *Dashboard) renderHeader() string {
	title := TitleStyle.Render("⚡ BitPulse")

	var statusText string
	switch d.status {
	case StatusStreaming:
		statusText = RunningStyle.Render("● STREAMING")
	case StatusPaused:
		statusText = PausedStyle.Render("⏸ PAUSED")
	case StatusStopped:
		statusText = StoppedStyle.Render("■ STOPPED")
	case StatusCompleted:
		statusText = SuccessStyle.Render("✓ COMPLETE")
	default:
		statusText = HelpStyle.Render("○ IDLE")
	}

	source := ""
	if d.sourceDesc != "" {
		source = LabelStyle.Render("Source: ") + InfoStyle.Render(d.sourceDesc)
	}

	leftSide := title + "  " + statusText
	rightSide := source

	padding := d.width - lipgloss.Width(leftSide) - lipgloss.Width(rightSide) - 2
	if padding < 0 {
		padding = 0
	}

	return lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(ColorCyan).
		Width(d.width - 2).
		Render(leftSide + strings.Repeat(" ", padding) + rightSide)
}

// renderLogPanel renders the log panel
func (d *Dashboard) renderLogPanel() string {
	var b strings.Builder

	b.WriteString(HeaderStyle.Render("📝 Activity Log"))
	b.WriteString("\n\n")

	startIdx := 0
	if len(d.logs) > 8 {
		startIdx = len(d.logs) - 8
	}

	for i := startIdx; i < len(d.logs); i++ {
		log := d.logs[i]

		timeStr := log.Time.Format("15:04:05")

		var levelStyle lipgloss.Style
		switch log.Level {
		case "ERROR":
			levelStyle = ErrorStyle
		case "WARN":
			levelStyle = WarningStyle
		case "INFO":
			levelStyle = InfoStyle
		default:
			levelStyle = HelpStyle
		}

		line := fmt.Sprintf("%s %s %s",
			HelpStyle.Render(timeStr),
			levelStyle.Render(fmt.Sprintf("%-5s", log.Level)),
			log.Message,
		)

		// Truncate if too long
		if len(line) > d.width/2-10 {
			line = line[:d.width/2-13] + "..."
		}

		b.WriteString(line)
		b.WriteString("\n")
	}

	return LogPanelStyle.Width(d.width/2 - 4).Render(b.String())
}

// renderFooter renders the footer with help text
func (d *Dashboard) renderFooter() string {
	var helps []string

	if d.status == StatusStreaming {
		helps = append(helps, RenderHelp("p", "pause"))
	} else if d.status == StatusPaused {
		helps = append(helps, RenderHelp("r", "resume"))
	}
	helps = append(helps, RenderHelp("s", "save status"))
	if d.game != nil {
		helps = append(helps, RenderHelp("f", "finish game"))
	}
	helps = append(helps, RenderHelp("q", "quit"))

	return FooterStyle.Render(strings.Join(helps, "  "))
}

// Run starts the TUI application
func Run(d *Dashboard) error {
	p := tea.NewProgram(d, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RunWithProgram returns the tea.Program for external control
func RunWithProgram(d *Dashboard) *tea.Program {
	return tea.NewProgram(d, tea.WithAltScreen())
}
