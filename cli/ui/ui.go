// Package ui provides the terminal components of the cqrs CLI: a spinner
// shown while a task runs and table rendering.
package ui

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/AshkanYarmoradi/go-cqrs/cli/styles"
)

// Task is work shown behind a spinner.
type Task func(ctx context.Context) error

// TaskDoneMsg reports that the task finished.
type TaskDoneMsg struct {
	Err error
}

// SpinnerModel is a bubbletea model that spins until its task finishes.
type SpinnerModel struct {
	spinner   spinner.Model
	message   string
	task      Task
	ctx       context.Context
	done      bool
	cancelled bool
	err       error
}

// NewSpinner creates a spinner running task with message next to it.
func NewSpinner(ctx context.Context, message string, task Task) SpinnerModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(styles.Primary)

	return SpinnerModel{
		spinner: s,
		message: message,
		task:    task,
		ctx:     ctx,
	}
}

// Init starts the animation and the task.
func (m SpinnerModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.run)
}

func (m SpinnerModel) run() tea.Msg {
	return TaskDoneMsg{Err: m.task(m.ctx)}
}

// Update handles ticks, the task result and ctrl+c.
func (m SpinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.cancelled = true
			m.err = context.Canceled
			return m, tea.Quit
		}

	case TaskDoneMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the spinner line, or the outcome once finished.
func (m SpinnerModel) View() string {
	switch {
	case m.cancelled:
		return styles.FormatWarning(m.message+" cancelled") + "\n"
	case m.done && m.err != nil:
		return styles.FormatError(m.message+" failed") + "\n"
	case m.done:
		return styles.FormatSuccess(m.message) + "\n"
	}
	return m.spinner.View() + " " + styles.Normal.Render(m.message) + "\n"
}

// Err returns the task error.
func (m SpinnerModel) Err() error {
	return m.err
}

// Done reports whether the task finished.
func (m SpinnerModel) Done() bool {
	return m.done
}

// RunWithSpinner runs task, animating a spinner on out while it works.
// When animate is false the task runs without any terminal program.
func RunWithSpinner(ctx context.Context, out io.Writer, animate bool, message string, task Task) error {
	if !animate {
		return task(ctx)
	}

	p := tea.NewProgram(NewSpinner(ctx, message, task),
		tea.WithContext(ctx),
		tea.WithOutput(out),
		tea.WithInput(nil),
	)
	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("ui: %w", err)
	}
	return final.(SpinnerModel).Err()
}

// Table renders rows under headers with rounded borders.
func Table(headers []string, rows [][]string) string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(styles.Primary).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Foreground(styles.Text).Padding(0, 1)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(styles.Border)).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...)

	return t.String()
}

// Banner returns the one-line CLI banner.
func Banner() string {
	return lipgloss.NewStyle().Bold(true).Foreground(styles.Primary).Render("cqrs") +
		" " + styles.Muted.Render("- event-sourced aggregates for Go")
}

// Divider returns a horizontal line of width cells.
func Divider(width int) string {
	return styles.Muted.Render(strings.Repeat("─", width))
}
