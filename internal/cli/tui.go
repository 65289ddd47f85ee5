package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/dogstack/pkg/pipeline"
)

// Progress styles
var (
	progressDoneStyle    = lipgloss.NewStyle().Foreground(colorGreen)
	progressPendingStyle = lipgloss.NewStyle().Foreground(colorDim)
	progressBarStyle     = lipgloss.NewStyle().Foreground(colorCyan)
)

const progressBarWidth = 30

// =============================================================================
// ProgressModel - Per-image progress of a run
// =============================================================================

// imageDoneMsg reports that one input finished filtering.
type imageDoneMsg struct {
	name string
	done int
}

// runFinishedMsg reports the end of the whole run.
type runFinishedMsg struct {
	err error
}

// ProgressModel is the bubbletea model for the run --tui view.
type ProgressModel struct {
	Names    []string
	Done     []bool
	Finished int
	Err      error
	Aborted  bool
	Complete bool
	Start    time.Time
	Elapsed  time.Duration
}

// NewProgressModel creates a progress model for inputs in stacking order.
func NewProgressModel(names []string) ProgressModel {
	return ProgressModel{
		Names: names,
		Done:  make([]bool, len(names)),
		Start: time.Now(),
	}
}

func (m ProgressModel) Init() tea.Cmd {
	return nil
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.Aborted = true
			return m, tea.Quit
		}
	case imageDoneMsg:
		// Names may repeat; mark the first pending entry.
		for i, name := range m.Names {
			if name == msg.name && !m.Done[i] {
				m.Done[i] = true
				break
			}
		}
		m.Finished = msg.done
	case runFinishedMsg:
		m.Err = msg.err
		m.Complete = true
		m.Elapsed = time.Since(m.Start)
		return m, tea.Quit
	}
	return m, nil
}

func (m ProgressModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Filtering images"))
	b.WriteString("\n\n")

	for i, name := range m.Names {
		if m.Done[i] {
			b.WriteString(progressDoneStyle.Render(iconSuccess + " " + name))
		} else {
			b.WriteString(progressPendingStyle.Render("· " + name))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.bar())
	b.WriteString(" ")
	b.WriteString(StyleDim.Render(fmt.Sprintf("%d/%d", m.Finished, len(m.Names))))
	b.WriteString("\n")

	switch {
	case m.Err != nil:
		b.WriteString(StyleError.Render(iconError + " " + m.Err.Error()))
		b.WriteString("\n")
	case m.Complete:
		b.WriteString(StyleSuccess.Render(fmt.Sprintf("%s stacked in %s", iconSuccess, m.Elapsed.Round(time.Millisecond))))
		b.WriteString("\n")
	case m.Aborted:
		b.WriteString(StyleWarning.Render(iconWarning + " cancelled"))
		b.WriteString("\n")
	default:
		b.WriteString(StyleDim.Render("q cancel"))
		b.WriteString("\n")
	}
	return b.String()
}

func (m ProgressModel) bar() string {
	filled := 0
	if len(m.Names) > 0 {
		filled = m.Finished * progressBarWidth / len(m.Names)
	}
	return progressBarStyle.Render(strings.Repeat("█", filled)) +
		progressPendingStyle.Render(strings.Repeat("░", progressBarWidth-filled))
}

// =============================================================================
// Running
// =============================================================================

// executeWithTUI runs the pipeline while a ProgressModel shows each image.
// Quitting the view cancels the run.
func executeWithTUI(ctx context.Context, runner *pipeline.Runner, inputs []pipeline.Input, opts pipeline.Options) (*pipeline.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	names := make([]string, len(inputs))
	for i, in := range inputs {
		names[i] = in.Name
	}
	p := tea.NewProgram(NewProgressModel(names), tea.WithContext(ctx), tea.WithOutput(os.Stderr))

	opts.OnProgress = func(done, _ int, name string) {
		p.Send(imageDoneMsg{name: name, done: done})
	}

	var (
		result *pipeline.Result
		runErr error
	)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		result, runErr = runner.Execute(ctx, inputs, opts)
		p.Send(runFinishedMsg{err: runErr})
	}()

	final, tuiErr := p.Run()
	cancel()
	<-finished

	if runErr != nil {
		return nil, runErr
	}
	if m, ok := final.(ProgressModel); ok && m.Aborted && !m.Complete {
		return nil, context.Canceled
	}
	if result == nil && tuiErr != nil {
		return nil, tuiErr
	}
	return result, nil
}
