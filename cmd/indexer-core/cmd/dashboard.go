package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/localsearch/indexer-core/internal/embedqueue"
	"github.com/localsearch/indexer-core/internal/pipeline"
	"github.com/localsearch/indexer-core/internal/startup"
	"github.com/localsearch/indexer-core/internal/ui"
	"github.com/localsearch/indexer-core/internal/watcher"
)

func newDashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard <dir>...",
		Short: "Render a live TUI of startup progress and embedding queue depth",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runDashboard(c.Context(), args)
		},
	}
}

func runDashboard(ctx context.Context, dirs []string) error {
	drv, guard, err := buildDriver(dataDir, dirs, modelSpec)
	if err != nil {
		return err
	}
	defer closeGuard(guard)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := newDashboardModel(stop)
	p := tea.NewProgram(m)

	go runDashboardPipeline(ctx, drv, dirs, p)

	_, runErr := p.Run()
	_ = drv.Shutdown(10_000)
	return runErr
}

// runDashboardPipeline drives Bootstrap and the watch loop, forwarding
// progress into the TUI program with p.Send — a tea.Program is itself a
// thread-safe mailbox, so this is the idiomatic bridge from driver
// callbacks to bubbletea messages.
func runDashboardPipeline(ctx context.Context, drv *pipeline.Driver, dirs []string, p *tea.Program) {
	cb := startup.Callbacks{
		ShowWindow: func() {},
		NotifyStageProgress: func(pr startup.Progress) {
			p.Send(stageMsg(pr))
		},
		NotifyError: func(e startup.ErrorEvent) {
			p.Send(bootstrapErrMsg{fmt.Errorf("%s during %s", e.Type, e.Stage)})
		},
		NotifyFilesLoaded: func() {},
		NotifyReady: func() {
			p.Send(readyMsg{})
		},
	}

	if err := drv.Bootstrap(ctx, cb); err != nil {
		p.Send(bootstrapErrMsg{err})
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, dir := range dirs {
		dir := dir
		g.Go(func() error {
			w, err := watcher.NewHybridWatcher(watcher.Options{DataDir: dataDir}.WithDefaults())
			if err != nil {
				return err
			}
			return drv.Watch(gctx, w, dir)
		})
	}

	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-gctx.Done():
			return
		case <-ticker.C:
			p.Send(queueStatsMsg(drv.QueueStats()))
		}
	}
}

type stageMsg startup.Progress
type readyMsg struct{}
type bootstrapErrMsg struct{ err error }
type queueStatsMsg embedqueue.Stats

var dashboardStages = []startup.Stage{
	startup.StageWorkerSpawn,
	startup.StageModelDownload,
	startup.StageDBInit,
	startup.StageDBLoad,
	startup.StageReady,
}

type dashboardModel struct {
	cancel context.CancelFunc

	stage    startup.Stage
	message  string
	ready    bool
	err      error
	quitting bool

	queue   embedqueue.Stats
	spinner spinner.Model
	styles  ui.Styles
}

func newDashboardModel(cancel context.CancelFunc) *dashboardModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ui.ColorLime))

	return &dashboardModel{
		cancel:  cancel,
		stage:   startup.StageWorkerSpawn,
		styles:  ui.DefaultStyles(),
		spinner: s,
	}
}

func (m *dashboardModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}

	case stageMsg:
		m.stage = msg.Stage
		m.message = msg.Message

	case readyMsg:
		m.ready = true
		m.stage = startup.StageReady
		m.message = "watching for changes"

	case bootstrapErrMsg:
		m.err = msg.err
		return m, tea.Quit

	case queueStatsMsg:
		m.queue = embedqueue.Stats(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *dashboardModel) View() string {
	if m.quitting {
		return "Stopped.\n"
	}
	if m.err != nil {
		return m.styles.Error.Render(fmt.Sprintf("bootstrap failed: %v\n", m.err))
	}

	var lines []string
	lines = append(lines, m.styles.Header.Render("indexer-core dashboard"))
	lines = append(lines, m.renderStages())
	lines = append(lines, "")

	if m.ready {
		lines = append(lines, m.styles.Success.Render("ready"))
		lines = append(lines, m.styles.Label.Render(fmt.Sprintf(
			"queue depth: %d    batches in flight: %d", m.queue.QueueDepth, m.queue.ProcessingBatches)))
	} else {
		lines = append(lines, fmt.Sprintf("%s %s", m.spinner.View(), m.message))
	}

	lines = append(lines, "")
	lines = append(lines, m.styles.Dim.Render("q to quit"))

	content := strings.Join(lines, "\n")
	return m.styles.Panel.Render(content) + "\n"
}

func (m *dashboardModel) renderStages() string {
	var parts []string
	for _, s := range dashboardStages {
		style := m.styles.Dim
		icon := "○"
		switch {
		case stageRank(s) < stageRank(m.stage):
			icon, style = "●", m.styles.Success
		case s == m.stage:
			icon, style = m.spinner.View(), m.styles.Active
		}
		parts = append(parts, style.Render(icon+" "+string(s)))
	}
	return strings.Join(parts, m.styles.Dim.Render(" -> "))
}

func stageRank(s startup.Stage) int {
	for i, st := range dashboardStages {
		if st == s {
			return i
		}
	}
	return -1
}
