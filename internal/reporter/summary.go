package reporter

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/bebsworthy/testreport/internal/events"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Summary accumulates test counts across every task of a run. It is safe for
// concurrent use.
type Summary struct {
	mu       sync.Mutex
	tasks    int
	tests    int
	failures int
	ignored  int
	perTask  map[string]*taskCounts
	order    []string
}

type taskCounts struct {
	tests, failures, ignored int
}

// NewSummary creates an empty summary.
func NewSummary() *Summary {
	return &Summary{perTask: make(map[string]*taskCounts)}
}

// TaskExecuted counts one executed test task.
func (s *Summary) TaskExecuted(task string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks++
	s.countsFor(task)
}

// TestResult accounts a result. Composite results are ignored; only individual
// tests count.
func (s *Summary) TestResult(task string, d *events.Descriptor, result events.Result) {
	if d.Composite {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.countsFor(task)
	s.tests++
	c.tests++
	switch result.Type {
	case events.ResultFailure:
		s.failures++
		c.failures++
	case events.ResultSkipped:
		s.ignored++
		c.ignored++
	}
}

func (s *Summary) countsFor(task string) *taskCounts {
	c, ok := s.perTask[task]
	if !ok {
		c = &taskCounts{}
		s.perTask[task] = c
		s.order = append(s.order, task)
	}
	return c
}

// Failures returns the number of failed tests.
func (s *Summary) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

// TasksExecuted returns the number of executed test tasks.
func (s *Summary) TasksExecuted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks
}

// String renders the one-line summary, or "" when no task ran.
func (s *Summary) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tasks == 0 {
		return ""
	}
	var msg strings.Builder
	msg.WriteString(pluralize("test task", s.tasks))
	msg.WriteString(" executed, ")
	msg.WriteString(pluralize("test", s.tests))
	if s.failures > 0 {
		msg.WriteString(", " + pluralize("failure", s.failures))
	}
	if s.ignored > 0 {
		msg.WriteString(fmt.Sprintf(", %d ignored", s.ignored))
	}
	return msg.String()
}

// RenderTable writes a per-task breakdown followed by the summary line.
func (s *Summary) RenderTable(w io.Writer) {
	line := s.String()
	if line == "" {
		return
	}

	s.mu.Lock()
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Task", "Tests", "Failed", "Ignored"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Tests", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Ignored", Align: text.AlignRight},
	})
	for _, task := range s.order {
		c := s.perTask[task]
		t.AppendRow(table.Row{task, c.tests, c.failures, c.ignored})
	}
	t.AppendFooter(table.Row{"Total", s.tests, s.failures, s.ignored})
	s.mu.Unlock()

	t.Render()
	fmt.Fprintln(w, line)
}

func pluralize(word string, count int) string {
	if count == 1 {
		return fmt.Sprintf("%d %s", count, word)
	}
	return fmt.Sprintf("%d %ss", count, word)
}
