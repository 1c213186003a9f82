// Package testjson turns a `go test -json` event stream into test listener events.
package testjson

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/bebsworthy/testreport/internal/debug"
	"github.com/bebsworthy/testreport/internal/events"
)

// Actions emitted by test2json.
const (
	ActionStart       = "start"
	ActionRun         = "run"
	ActionPause       = "pause"
	ActionCont        = "cont"
	ActionPass        = "pass"
	ActionBench       = "bench"
	ActionFail        = "fail"
	ActionOutput      = "output"
	ActionSkip        = "skip"
	ActionBuildOutput = "build-output"
	ActionBuildFail   = "build-fail"
)

// Event is one line of test2json output.
type Event struct {
	Time        time.Time `json:"Time"`
	Action      string    `json:"Action"`
	Package     string    `json:"Package,omitempty"`
	Test        string    `json:"Test,omitempty"`
	Elapsed     float64   `json:"Elapsed,omitempty"`
	Output      string    `json:"Output,omitempty"`
	ImportPath  string    `json:"ImportPath,omitempty"`
	FailedBuild string    `json:"FailedBuild,omitempty"`
}

type packageState struct {
	suite       *events.Descriptor
	tests       map[string]*events.Descriptor
	running     map[string]bool
	buildFailed bool
	done        bool
	result      events.ResultType
}

// Decoder drives a listener from the test2json events of one test task.
// A Decoder is not safe for concurrent use; run one per task.
type Decoder struct {
	task     string
	listener events.Listener
	logger   *debug.Logger

	root     *events.Descriptor
	begun    bool
	finished bool
	packages map[string]*packageState
	order    []string
}

// NewDecoder creates a decoder for the named task.
func NewDecoder(task string, listener events.Listener, logger *debug.Logger) *Decoder {
	if logger == nil {
		logger = debug.Default()
	}
	return &Decoder{
		task:     task,
		listener: listener,
		logger:   logger,
		root: &events.Descriptor{
			ID:        "task:" + task,
			Name:      task,
			Composite: true,
			Synthetic: true,
		},
		packages: make(map[string]*packageState),
	}
}

// Root returns the synthetic descriptor enclosing every package of the task.
func (d *Decoder) Root() *events.Descriptor {
	return d.root
}

// Decode reads events from r until EOF and completes the task. Packages the
// stream never finished are reported as failures.
func (d *Decoder) Decode(ctx context.Context, r io.Reader) error {
	if err := d.Begin(); err != nil {
		return err
	}
	reader := bufio.NewReaderSize(r, 64*1024)
	for {
		if err := ctx.Err(); err != nil {
			return errors.Join(err, d.Finish())
		}
		line, readErr := reader.ReadBytes('\n')
		if len(line) > 0 {
			if err := d.HandleLine(line); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			return d.Finish()
		}
		if readErr != nil {
			return errors.Join(fmt.Errorf("reading test events for %s: %w", d.task, readErr), d.Finish())
		}
	}
}

// Begin starts the task root suite. It is called implicitly by Decode.
func (d *Decoder) Begin() error {
	if d.begun {
		return nil
	}
	d.begun = true
	return d.listener.BeforeSuite(d.root)
}

// HandleLine decodes one line. Lines that are not test2json events are
// attributed to the task root, where they are not reported.
func (d *Decoder) HandleLine(line []byte) error {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return nil
	}
	var ev Event
	if trimmed[0] != '{' || json.Unmarshal(trimmed, &ev) != nil || ev.Action == "" {
		d.logger.Log("Non-JSON test output in %s: %s", d.task, trimmed)
		text := string(line)
		if !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		return d.listener.OnOutput(d.root, events.OutputEvent{Destination: events.StdErr, Message: text})
	}
	return d.Handle(ev)
}

// Handle applies one decoded event.
func (d *Decoder) Handle(ev Event) error {
	switch ev.Action {
	case ActionBuildOutput:
		pkg, err := d.pkg(packageOf(ev.ImportPath))
		if err != nil {
			return err
		}
		return d.listener.OnOutput(pkg.suite, events.OutputEvent{Destination: events.StdErr, Message: ev.Output})

	case ActionBuildFail:
		pkg, err := d.pkg(packageOf(ev.ImportPath))
		if err != nil {
			return err
		}
		pkg.buildFailed = true
		return nil
	}

	if ev.Package == "" {
		d.logger.Log("Ignoring %q event without a package in %s", ev.Action, d.task)
		return nil
	}
	pkg, err := d.pkg(ev.Package)
	if err != nil {
		return err
	}
	if pkg.done {
		d.logger.Log("Ignoring %q event for finished package %s", ev.Action, ev.Package)
		return nil
	}

	if ev.Test == "" {
		return d.handlePackage(pkg, ev)
	}
	return d.handleTest(pkg, ev)
}

func (d *Decoder) handlePackage(pkg *packageState, ev Event) error {
	switch ev.Action {
	case ActionOutput, ActionBench:
		return d.listener.OnOutput(pkg.suite, events.OutputEvent{Destination: events.StdOut, Message: ev.Output})
	case ActionPass, ActionSkip:
		return d.endPackage(pkg, resultFor(ev.Action))
	case ActionFail:
		return d.endPackage(pkg, events.ResultFailure)
	}
	return nil
}

func (d *Decoder) handleTest(pkg *packageState, ev Event) error {
	test, known := pkg.tests[ev.Test]
	if !known {
		test = &events.Descriptor{
			ID:        pkg.suite.ID + "." + ev.Test,
			Name:      ev.Test,
			ClassName: pkg.suite.ClassName,
			Parent:    pkg.suite,
		}
		pkg.tests[ev.Test] = test
	}

	switch ev.Action {
	case ActionRun:
		pkg.running[ev.Test] = true
		return d.listener.BeforeTest(test)
	case ActionOutput, ActionBench:
		return d.listener.OnOutput(test, events.OutputEvent{Destination: events.StdOut, Message: ev.Output})
	case ActionPass, ActionFail, ActionSkip:
		delete(pkg.running, ev.Test)
		return d.listener.AfterTest(test, events.Result{Type: resultFor(ev.Action)})
	}
	return nil
}

func (d *Decoder) pkg(name string) (*packageState, error) {
	if pkg, ok := d.packages[name]; ok {
		return pkg, nil
	}
	pkg := &packageState{
		suite: &events.Descriptor{
			ID:        d.root.ID + "/" + name,
			Name:      name,
			ClassName: name,
			Parent:    d.root,
			Composite: true,
		},
		tests:   make(map[string]*events.Descriptor),
		running: make(map[string]bool),
	}
	d.packages[name] = pkg
	d.order = append(d.order, name)
	return pkg, d.listener.BeforeSuite(pkg.suite)
}

// endPackage closes tests the stream left running, then the package suite.
func (d *Decoder) endPackage(pkg *packageState, result events.ResultType) error {
	if pkg.buildFailed {
		result = events.ResultFailure
	}
	pkg.done = true
	pkg.result = result
	for _, name := range slices.Sorted(maps.Keys(pkg.running)) {
		testResult := events.ResultSkipped
		if result == events.ResultFailure {
			testResult = events.ResultFailure
		}
		if err := d.listener.AfterTest(pkg.tests[name], events.Result{Type: testResult}); err != nil {
			return err
		}
	}
	pkg.running = nil
	return d.listener.AfterSuite(pkg.suite, events.Result{Type: result})
}

// Finish fails every unfinished package, then ends the task root.
func (d *Decoder) Finish() error {
	if d.finished {
		return nil
	}
	d.finished = true
	var errs []error
	for _, name := range d.order {
		pkg := d.packages[name]
		if pkg.done {
			continue
		}
		d.logger.Warn("Package %s did not report a result in %s, marking it failed", name, d.task)
		errs = append(errs, d.endPackage(pkg, events.ResultFailure))
	}
	errs = append(errs, d.listener.AfterSuite(d.root, events.Result{Type: d.rootResult()}))
	return errors.Join(errs...)
}

// Failed reports whether any package failed so far.
func (d *Decoder) Failed() bool {
	return d.rootResult() == events.ResultFailure
}

func (d *Decoder) rootResult() events.ResultType {
	for _, name := range d.order {
		pkg := d.packages[name]
		if pkg.buildFailed || (pkg.done && pkg.result == events.ResultFailure) {
			return events.ResultFailure
		}
	}
	return events.ResultSuccess
}

func resultFor(action string) events.ResultType {
	switch action {
	case ActionPass:
		return events.ResultSuccess
	case ActionSkip:
		return events.ResultSkipped
	default:
		return events.ResultFailure
	}
}

// packageOf strips the " [pkg.test]" variant suffix go build adds to import paths.
func packageOf(importPath string) string {
	if i := strings.IndexByte(importPath, ' '); i > 0 {
		return importPath[:i]
	}
	return importPath
}
