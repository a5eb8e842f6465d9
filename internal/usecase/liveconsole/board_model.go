package liveconsole

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"goalsync/internal/bootstrap/logging"
	"goalsync/internal/domain/match"
	"goalsync/internal/usecase/livesync"
)

const maxShownTransitions = 6
const maxAuditLines = 8

// BoardService is the slice of livesync.Service the board reads and drives.
type BoardService interface {
	ListLive(ctx context.Context, limit int) ([]match.EventRecord, error)
	GetEvent(ctx context.Context, eventID string, transitionLimit int) (livesync.EventDetail, error)
	Status(ctx context.Context) (livesync.StatusReport, error)
	RunTick(ctx context.Context) (livesync.TickResult, error)
	RunSweep(ctx context.Context) (livesync.SweepResult, error)
}

type BoardOptions struct {
	Limit           int
	RefreshInterval time.Duration
}

type boardModel struct {
	ctx             context.Context
	service         BoardService
	limit           int
	refreshInterval time.Duration

	events        []match.EventRecord
	selectedIndex int
	detail        livesync.EventDetail
	hasDetail     bool
	report        livesync.StatusReport
	status        string
	auditLogs     []string
}

type eventsLoadedMsg struct {
	items  []match.EventRecord
	report livesync.StatusReport
	err    error
}

type detailLoadedMsg struct {
	eventID string
	detail  livesync.EventDetail
	err     error
}

type refreshMsg struct{}

type actionDoneMsg struct {
	action string
	result string
	err    error
}

func NewBoardModel(ctx context.Context, service BoardService, options BoardOptions) tea.Model {
	limit := options.Limit
	if limit <= 0 {
		limit = 50
	}
	interval := options.RefreshInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &boardModel{
		ctx:             logging.WithAttrs(ctx, slog.String("component", "liveconsole")),
		service:         service,
		limit:           limit,
		refreshInterval: interval,
		status:          "loading",
	}
}

func (m *boardModel) Init() tea.Cmd {
	return tea.Batch(m.loadEventsCmd(), m.refreshCmd())
}

func (m *boardModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := message.(type) {
	case refreshMsg:
		return m, tea.Batch(m.loadEventsCmd(), m.refreshCmd())
	case eventsLoadedMsg:
		if msg.err != nil {
			m.status = "refresh failed: " + msg.err.Error()
			return m, nil
		}
		m.events = msg.items
		m.report = msg.report
		if len(m.events) == 0 {
			m.selectedIndex = 0
			m.hasDetail = false
			m.status = "no live events"
			return m, nil
		}
		if m.selectedIndex >= len(m.events) {
			m.selectedIndex = len(m.events) - 1
		}
		m.status = fmt.Sprintf("%d live events", len(m.events))
		return m, m.loadDetailCmd()
	case detailLoadedMsg:
		if len(m.events) == 0 || m.events[m.selectedIndex].ID != msg.eventID {
			return m, nil
		}
		if msg.err != nil {
			m.hasDetail = false
			m.status = "detail failed: " + msg.err.Error()
			return m, nil
		}
		m.detail = msg.detail
		m.hasDetail = true
		return m, nil
	case actionDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
			m.appendAuditLog(msg.action + " failed: " + msg.err.Error())
		} else {
			m.status = fmt.Sprintf("%s done: %s", msg.action, msg.result)
			m.appendAuditLog(msg.action + " " + msg.result)
		}
		return m, m.loadEventsCmd()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "g":
			m.status = "refreshing"
			return m, m.loadEventsCmd()
		case "up", "k":
			if m.selectedIndex > 0 {
				m.selectedIndex--
				return m, m.loadDetailCmd()
			}
		case "down", "j":
			if m.selectedIndex < len(m.events)-1 {
				m.selectedIndex++
				return m, m.loadDetailCmd()
			}
		case "t":
			m.status = "running tick"
			return m, m.tickNowCmd()
		case "w":
			m.status = "running sweep"
			return m, m.sweepNowCmd()
		}
	}
	return m, nil
}

func (m *boardModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true)
	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	selectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("62"))
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	var builder strings.Builder
	builder.WriteString(titleStyle.Render("goalsync live board"))
	builder.WriteString("\n")
	builder.WriteString(dimStyle.Render(fmt.Sprintf("limit=%d refresh=%s %s", m.limit, m.refreshInterval, lastRunLine(m.report))))
	builder.WriteString("\n\n")

	builder.WriteString(sectionStyle.Render("Live"))
	builder.WriteString("\n")
	if len(m.events) == 0 {
		builder.WriteString(dimStyle.Render("- no live events"))
		builder.WriteString("\n")
	}
	for index, record := range m.events {
		line := fmt.Sprintf("%-14s %-12s %6s  %s", record.ID, record.State, minuteLabel(record), scoreLine(record.Score))
		if index == m.selectedIndex {
			builder.WriteString(selectedStyle.Render("> " + line))
		} else {
			builder.WriteString("  " + line)
		}
		builder.WriteString("\n")
	}
	builder.WriteString("\n")

	builder.WriteString(sectionStyle.Render("Detail"))
	builder.WriteString("\n")
	if !m.hasDetail {
		builder.WriteString(dimStyle.Render("- no detail"))
		builder.WriteString("\n")
	} else {
		record := m.detail.Record
		builder.WriteString(fmt.Sprintf("Event: %s (code %d)\n", record.ID, record.ProviderStatusCode))
		builder.WriteString(fmt.Sprintf("Kickoffs: %s / %s\n", epochLabel(record.FirstPeriodStartTime), epochLabel(record.SecondPeriodStartTime)))
		builder.WriteString(fmt.Sprintf("Reconciled: %s  Provider: %s\n", epochLabel(record.LastReconciledAt), epochLabel(record.LastProviderUpdateTime)))
		if record.ReadmissionRequestedAt != nil {
			builder.WriteString(warnStyle.Render("Readmission requested " + epochLabel(record.ReadmissionRequestedAt)))
			builder.WriteString("\n")
		}
		transitions := m.detail.Transitions
		if start := len(transitions) - maxShownTransitions; start > 0 {
			transitions = transitions[start:]
		}
		for _, transition := range transitions {
			builder.WriteString(fmt.Sprintf("- %s %s -> %s [%s/%s]\n", epochLabel(&transition.ObservedAt), transition.From, transition.To, transition.Kind, transition.Source))
		}
	}
	builder.WriteString("\n")

	builder.WriteString(sectionStyle.Render("Status"))
	builder.WriteString("\n- " + m.status + "\n")
	for _, line := range m.auditLogs {
		builder.WriteString(dimStyle.Render("- " + line))
		builder.WriteString("\n")
	}
	builder.WriteString("\n")
	builder.WriteString(dimStyle.Render("Keys: up/k down/j move  g refresh  t tick  w sweep  q quit"))
	return builder.String()
}

func (m *boardModel) refreshCmd() tea.Cmd {
	return tea.Tick(m.refreshInterval, func(time.Time) tea.Msg {
		return refreshMsg{}
	})
}

func (m *boardModel) loadEventsCmd() tea.Cmd {
	return func() tea.Msg {
		items, err := m.service.ListLive(m.ctx, m.limit)
		if err != nil {
			return eventsLoadedMsg{err: err}
		}
		report, err := m.service.Status(m.ctx)
		if err != nil {
			return eventsLoadedMsg{err: err}
		}
		return eventsLoadedMsg{items: items, report: report}
	}
}

func (m *boardModel) loadDetailCmd() tea.Cmd {
	if len(m.events) == 0 {
		return nil
	}
	id := m.events[m.selectedIndex].ID
	return func() tea.Msg {
		detail, err := m.service.GetEvent(m.ctx, id, maxShownTransitions)
		return detailLoadedMsg{eventID: id, detail: detail, err: err}
	}
}

func (m *boardModel) tickNowCmd() tea.Cmd {
	return func() tea.Msg {
		result, err := m.service.RunTick(m.ctx)
		if err != nil {
			return actionDoneMsg{action: "tick", err: err}
		}
		return actionDoneMsg{action: "tick", result: fmt.Sprintf("fetched=%d updated=%d", result.Fetched, result.Outcomes[livesync.OutcomeUpdated])}
	}
}

func (m *boardModel) sweepNowCmd() tea.Cmd {
	return func() tea.Msg {
		result, err := m.service.RunSweep(m.ctx)
		if err != nil {
			return actionDoneMsg{action: "sweep", err: err}
		}
		return actionDoneMsg{action: "sweep", result: fmt.Sprintf("candidates=%d updated=%d", result.Candidates, result.Outcomes[livesync.OutcomeUpdated])}
	}
}

func (m *boardModel) appendAuditLog(line string) {
	stamp := time.Now().Format("15:04:05")
	m.auditLogs = append(m.auditLogs, stamp+" "+line)
	if len(m.auditLogs) > maxAuditLines {
		m.auditLogs = m.auditLogs[len(m.auditLogs)-maxAuditLines:]
	}
}

func minuteLabel(record match.EventRecord) string {
	if record.ElapsedMinuteText != nil && strings.TrimSpace(*record.ElapsedMinuteText) != "" {
		return *record.ElapsedMinuteText
	}
	if record.ElapsedMinute != nil {
		return fmt.Sprintf("%d'", *record.ElapsedMinute)
	}
	return "-"
}

func scoreLine(score match.Score) string {
	line := fmt.Sprintf("%d-%d", score.Home.Regular, score.Away.Regular)
	if score.Home.Penalties > 0 || score.Away.Penalties > 0 {
		line += fmt.Sprintf(" (p %d-%d)", score.Home.Penalties, score.Away.Penalties)
	}
	return line
}

func epochLabel(value *int64) string {
	if value == nil || *value <= 0 {
		return "-"
	}
	return time.Unix(*value, 0).UTC().Format("15:04:05")
}

func lastRunLine(report livesync.StatusReport) string {
	parts := make([]string, 0, 2)
	if report.LastTick != nil {
		parts = append(parts, "tick="+report.LastTick.FinishedAt.Format("15:04:05"))
	}
	if report.LastSweep != nil {
		parts = append(parts, "sweep="+report.LastSweep.FinishedAt.Format("15:04:05"))
	}
	return strings.Join(parts, " ")
}
