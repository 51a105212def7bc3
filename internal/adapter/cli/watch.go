package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"savings-rate-service/internal/domain/model"
	"savings-rate-service/internal/domain/ports"
	"savings-rate-service/pkg/utils"
)

const lowQuotaThreshold = 10

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live view of cache and quota health",
	Long: `watch polls the acquirer's inspection every --interval.
Keys: r force refresh, c clear cache and limits, q quit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if os.Getenv("RATECTL_SKIP_WATCH_RUN") == "true" {
			return nil
		}
		return withAcquirer(func(acq ports.RateAcquirer) error {
			p := tea.NewProgram(newWatchModel(cmd.Context(), acq, watchInterval))
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("watch run failed: %w", err)
			}
			return nil
		})
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 5*time.Second, "how often to re-inspect")
	RootCmd.AddCommand(watchCmd)
}

// Styles
var titleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#FAFAFA")).
	Background(lipgloss.Color("#7D56F4")).
	PaddingLeft(1).
	PaddingRight(1)

var panelStyle = lipgloss.NewStyle().
	BorderStyle(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("240")).
	Padding(0, 1)

var quotaOK = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
var quotaLow = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
var mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))

type tickMsg time.Time

type inspectMsg model.Inspection

type sampleMsg model.RateSample

type clearedMsg struct{ err error }

type watchModel struct {
	ctx      context.Context
	acquirer ports.RateAcquirer
	interval time.Duration

	info   model.Inspection
	last   *model.RateSample
	busy   bool
	status string
	err    error
}

func newWatchModel(ctx context.Context, acq ports.RateAcquirer, interval time.Duration) watchModel {
	if ctx == nil {
		ctx = context.Background()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return watchModel{ctx: ctx, acquirer: acq, interval: interval}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.inspect(), m.tick())
}

func (m watchModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m watchModel) inspect() tea.Cmd {
	return func() tea.Msg { return inspectMsg(m.acquirer.Inspect(m.ctx)) }
}

func (m watchModel) refresh() tea.Cmd {
	return func() tea.Msg { return sampleMsg(m.acquirer.ForceRefresh(m.ctx)) }
}

func (m watchModel) clear() tea.Cmd {
	return func() tea.Msg { return clearedMsg{err: m.acquirer.Clear(m.ctx)} }
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			if m.busy {
				return m, nil
			}
			m.busy = true
			m.status = "Refreshing..."
			return m, m.refresh()
		case "c":
			if m.busy {
				return m, nil
			}
			m.busy = true
			m.status = "Clearing..."
			return m, m.clear()
		}

	case tickMsg:
		return m, tea.Batch(m.inspect(), m.tick())

	case inspectMsg:
		m.info = model.Inspection(msg)
		return m, nil

	case sampleMsg:
		sample := model.RateSample(msg)
		m.last = &sample
		m.busy = false
		m.err = nil
		m.status = fmt.Sprintf("Refreshed: %.2f (%s)", sample.Rate, sample.Source)
		return m, m.inspect()

	case clearedMsg:
		m.busy = false
		m.err = msg.err
		if msg.err == nil {
			m.last = nil
			m.status = "Cache and limits cleared"
		} else {
			m.status = ""
		}
		return m, m.inspect()
	}
	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder

	limit := m.acquirer.QuotaLimit()
	quota := fmt.Sprintf("API requests: %d/%d", m.info.RemainingQuota, limit)
	if m.info.RemainingQuota < lowQuotaThreshold {
		b.WriteString(quotaLow.Render(quota))
	} else {
		b.WriteString(quotaOK.Render(quota))
	}
	b.WriteString("\n")

	if m.info.HasCache {
		fmt.Fprintf(&b, "Cache: active, %s old\n", utils.FormatAge(*m.info.CacheAge))
		fmt.Fprintf(&b, "Origin: %s\n", *m.info.CacheOrigin)
	} else {
		b.WriteString("Cache: empty\n")
	}

	if m.last != nil {
		fmt.Fprintf(&b, "Last rate: 1 USD = %.2f INR (%s)\n", m.last.Rate, m.last.Source.Description())
	}

	if m.err != nil {
		b.WriteString(quotaLow.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	} else if m.status != "" {
		b.WriteString(m.status + "\n")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("USD/INR rate inspector"),
		panelStyle.Render(strings.TrimRight(b.String(), "\n")),
		mutedStyle.Render("r refresh • c clear • q quit"),
	)
}
