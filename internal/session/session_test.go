package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/kballard/go-shellquote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bebsworthy/testreport/internal/buildopts"
	"github.com/bebsworthy/testreport/internal/capture"
	"github.com/bebsworthy/testreport/internal/debug"
	"github.com/bebsworthy/testreport/pkg/config"
)

const testSeed = "0123456789ABCDEF"

func init() {
	color.NoColor = true
}

type fixture struct {
	cfg     *config.Config
	console *bytes.Buffer
	logs    *bytes.Buffer
}

func newFixture(t *testing.T, tasks map[string]*config.TaskConfig) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		SpillDir:   filepath.Join(dir, "spill"),
		ReportsDir: filepath.Join(dir, "reports"),
		Tasks:      tasks,
	}
	cfg.ApplyDefaults()
	return &fixture{cfg: cfg, console: &bytes.Buffer{}, logs: &bytes.Buffer{}}
}

func (f *fixture) session(t *testing.T, props map[string]string, mutate func(*Options)) *Session {
	t.Helper()
	if props == nil {
		props = map[string]string{}
	}
	if _, ok := props[buildopts.OptionSeed]; !ok {
		props[buildopts.OptionSeed] = testSeed
	}
	set := buildopts.NewSet(buildopts.Resolver{
		Properties: props,
		LookupEnv:  func(string) (string, bool) { return "", false },
	})
	opts := Options{
		Config:       f.cfg,
		BuildOptions: set,
		Console:      f.console,
		Stderr:       io.Discard,
		Logger:       debug.New(f.logs),
	}
	if mutate != nil {
		mutate(&opts)
	}
	s, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func catTask(t *testing.T, name string) *config.TaskConfig {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires cat")
	}
	path, err := filepath.Abs(filepath.Join("testdata", name))
	require.NoError(t, err)
	return &config.TaskConfig{Command: "cat", Args: []string{path}}
}

func TestRun_ReportsFailedSuite(t *testing.T) {
	f := newFixture(t, map[string]*config.TaskConfig{"unit": catTask(t, "failing.json")})
	s := f.session(t, nil, nil)

	result, err := s.Run(context.Background(), []string{"unit"})
	require.NoError(t, err)

	assert.True(t, result.Failed)
	require.Len(t, result.Failures, 1)
	logPath := filepath.Join(f.cfg.ReportsDir, "unit", "OUTPUT-example.com_a.txt")
	assert.Equal(t, logPath, result.Failures[0].LogPath)

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "  1> === RUN   TestOK\n")
	assert.Contains(t, string(content), "  1>     a_test.go:10: boom\n")
	assert.Contains(t, string(content), "Test: example.com/a.TestBad FAILED\n")

	console := f.console.String()
	assert.Contains(t, console, "example.com/a > TESTS FAILED\n")
	assert.Contains(t, console,
		"    reproduce with: testreport run --task unit --tests example.com/a.TestBad -Ptests.seed="+testSeed+"\n")
	assert.Contains(t, console, "    test suite's output: "+logPath+" (copied below):\n")
	assert.NotContains(t, console, "example.com/b")

	assert.Equal(t, "1 test task executed, 3 tests, 1 failure, 1 ignored", result.Summary.String())
	assert.True(t, result.Exec.HasFailures || result.Failed)
}

func TestRun_PassingTaskLeavesNoLogs(t *testing.T) {
	f := newFixture(t, map[string]*config.TaskConfig{"unit": catTask(t, "passing.json")})
	s := f.session(t, nil, nil)

	stale := filepath.Join(f.cfg.ReportsDir, "unit", "OUTPUT-old.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o750))
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o600))

	result, err := s.Run(context.Background(), []string{"unit"})
	require.NoError(t, err)

	assert.False(t, result.Failed)
	assert.Empty(t, result.Failures)
	assert.Empty(t, f.console.String())
	assert.NoFileExists(t, stale)
	assert.Equal(t, "1 test task executed, 1 test", result.Summary.String())
}

func TestRun_MultipleTasks(t *testing.T) {
	f := newFixture(t, map[string]*config.TaskConfig{
		"unit":        catTask(t, "failing.json"),
		"integration": catTask(t, "passing.json"),
	})
	s := f.session(t, nil, nil)

	result, err := s.Run(context.Background(), []string{"integration", "unit"})
	require.NoError(t, err)

	assert.True(t, result.Failed)
	assert.Equal(t, []string{"integration", "unit"}, result.Exec.Order)
	assert.Equal(t, "2 test tasks executed, 4 tests, 1 failure, 1 ignored", result.Summary.String())
	assert.FileExists(t, filepath.Join(f.cfg.ReportsDir, "unit", "OUTPUT-example.com_a.txt"))
	assert.NoDirExists(t, filepath.Join(f.cfg.ReportsDir, "integration"))
}

func TestRun_CommandFailureWithoutEvents(t *testing.T) {
	f := newFixture(t, map[string]*config.TaskConfig{
		"unit": {Command: "testreport-no-such-command"},
	})
	s := f.session(t, nil, nil)

	result, err := s.Run(context.Background(), []string{"unit"})
	require.NoError(t, err)

	assert.True(t, result.Failed)
	assert.Contains(t, f.logs.String(), "test command not found")
}

func TestRun_ConfigurationErrors(t *testing.T) {
	f := newFixture(t, map[string]*config.TaskConfig{
		"unit":        {Command: "go"},
		"integration": {Command: "go"},
	})

	tests := []struct {
		name   string
		props  map[string]string
		mutate func(*Options)
		tasks  []string
		want   string
	}{
		{name: "no tasks", want: "no test tasks selected"},
		{name: "unknown task", tasks: []string{"e2e"}, want: `unknown test task "e2e"`},
		{
			name:   "command override with two tasks",
			mutate: func(o *Options) { o.Command = []string{"cat"} },
			tasks:  []string{"unit", "integration"},
			want:   "exactly one task",
		},
		{
			name:  "bad iteration count",
			props: map[string]string{buildopts.OptionIters: "many"},
			tasks: []string{"unit"},
			want:  buildopts.OptionIters,
		},
		{
			name:  "verbose with parallel tasks",
			props: map[string]string{buildopts.OptionVerbose: "true"},
			tasks: []string{"unit", "integration"},
			want:  "Run only one test task in verbose mode or pass --max-parallel=1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := f.session(t, tt.props, tt.mutate)
			_, err := s.Run(context.Background(), tt.tasks)
			require.Error(t, err)
			assert.ErrorIs(t, err, capture.ErrConfiguration)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCheckEcho(t *testing.T) {
	f := newFixture(t, map[string]*config.TaskConfig{"unit": {Command: "go"}})
	tasks := []string{"unit", "integration"}

	s := f.session(t, nil, func(o *Options) { o.Echo = true })
	err := s.CheckEcho(tasks)
	assert.ErrorIs(t, err, ErrEchoConcurrency)
	assert.NoError(t, s.CheckEcho([]string{"unit"}))

	f.cfg.MaxParallel = 1
	s = f.session(t, nil, func(o *Options) { o.Echo = true })
	assert.NoError(t, s.CheckEcho(tasks))

	f.cfg.MaxParallel = 4
	s = f.session(t, map[string]string{buildopts.OptionVerbose: "yes"}, nil)
	assert.ErrorIs(t, s.CheckEcho(tasks), capture.ErrConfiguration)
}

func TestRun_EchoMirrorsOutput(t *testing.T) {
	f := newFixture(t, map[string]*config.TaskConfig{"unit": catTask(t, "failing.json")})
	s := f.session(t, map[string]string{buildopts.OptionVerbose: "true"}, nil)

	result, err := s.Run(context.Background(), []string{"unit"})
	require.NoError(t, err)

	assert.True(t, result.Failed)
	console := f.console.String()
	assert.Contains(t, console, "    a_test.go:10: boom\n")
	assert.NotContains(t, console, "TESTS FAILED")
}

func TestCommandFor(t *testing.T) {
	task := &config.TaskConfig{
		Command:  "go",
		Args:     []string{"test", "-json"},
		Packages: []string{"./..."},
	}

	tests := []struct {
		name   string
		props  map[string]string
		tests  string
		expect []string
	}{
		{
			name:   "plain",
			expect: []string{"test", "-json", "./..."},
		},
		{
			name:   "filter iters and args",
			props:  map[string]string{"tests.filter": "TestA|TestB", "tests.iters": "3", "tests.args": `-v -tags "a b"`},
			expect: []string{"test", "-json", "-run", "TestA|TestB", "-count", "3", "-v", "-tags", "a b", "./..."},
		},
		{
			name:   "selector narrows package and test",
			props:  map[string]string{"tests.filter": "Ignored"},
			tests:  "example.com/a.TestBad/case_1",
			expect: []string{"test", "-json", "-run", "^TestBad$/^case_1$", "example.com/a"},
		},
		{
			name:   "selector of a package keeps the filter",
			props:  map[string]string{"tests.filter": "TestA"},
			tests:  "example.com/a",
			expect: []string{"test", "-json", "-run", "TestA", "example.com/a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, map[string]*config.TaskConfig{"unit": task})
			s := f.session(t, tt.props, func(o *Options) { o.Tests = tt.tests })

			command, args, err := s.commandFor(task)
			require.NoError(t, err)
			assert.Equal(t, "go", command)
			assert.Equal(t, tt.expect, args)
		})
	}

	t.Run("override", func(t *testing.T) {
		f := newFixture(t, map[string]*config.TaskConfig{"unit": task})
		s := f.session(t, nil, func(o *Options) { o.Command = []string{"gotestsum", "--jsonfile", "out.json"} })

		command, args, err := s.commandFor(task)
		require.NoError(t, err)
		assert.Equal(t, "gotestsum", command)
		assert.Equal(t, []string{"--jsonfile", "out.json"}, args)
	})
}

func TestTimeoutFor(t *testing.T) {
	task := &config.TaskConfig{Command: "go", Timeout: 60000}
	f := newFixture(t, map[string]*config.TaskConfig{"unit": task})

	s := f.session(t, nil, nil)
	timeout, err := s.timeoutFor(task)
	require.NoError(t, err)
	assert.Equal(t, "1m0s", timeout.String())

	s = f.session(t, map[string]string{buildopts.OptionTimeout: "90s"}, nil)
	timeout, err = s.timeoutFor(task)
	require.NoError(t, err)
	assert.Equal(t, "1m30s", timeout.String())

	s = f.session(t, map[string]string{buildopts.OptionTimeout: "soon"}, nil)
	_, err = s.timeoutFor(task)
	assert.ErrorIs(t, err, capture.ErrConfiguration)
}

func TestReproBuilder(t *testing.T) {
	f := newFixture(t, map[string]*config.TaskConfig{"unit": {Command: "go"}})

	s := f.session(t, map[string]string{buildopts.OptionFilter: "TestA"}, nil)
	assert.Equal(t,
		[]string{"testreport", "run", "--task", "unit", "-Ptests.seed=" + testSeed, "-Ptests.filter=TestA"},
		s.reproBuilder("unit").Args(nil))

	assert.Equal(t,
		[]string{"testreport", "run", "-Ptests.seed=" + testSeed, "-Ptests.filter=TestA"},
		s.reproBuilder("replay").Args(nil))

	f.cfg.EntryPoint = []string{"make", "test", "--"}
	s = f.session(t, nil, nil)
	assert.Equal(t, "make test -- -Ptests.seed="+testSeed, s.reproBuilder("unit").Line(nil))
}

func TestReplay(t *testing.T) {
	f := newFixture(t, map[string]*config.TaskConfig{"unit": {Command: "go"}})
	s := f.session(t, nil, nil)

	data, err := os.ReadFile(filepath.Join("testdata", "failing.json"))
	require.NoError(t, err)

	result, err := s.Replay(context.Background(), "ci", bytes.NewReader(data))
	require.NoError(t, err)

	assert.True(t, result.Failed)
	assert.FileExists(t, filepath.Join(f.cfg.ReportsDir, "ci", "OUTPUT-example.com_a.txt"))
	assert.Contains(t, f.console.String(), "reproduce with: testreport run --tests example.com/a.TestBad -Ptests.seed="+testSeed+"\n")
	assert.NotContains(t, f.console.String(), "--task ci")
	assert.Equal(t, "1 test task executed, 3 tests, 1 failure, 1 ignored", s.Summary().String())
}

func TestReplay_ReproduceLineSelectsConfiguredTasks(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "failing.json"))
	require.NoError(t, err)

	for _, task := range []string{"replay", "unit"} {
		t.Run(task, func(t *testing.T) {
			f := newFixture(t, map[string]*config.TaskConfig{"unit": {Command: "go"}})
			s := f.session(t, nil, nil)

			result, err := s.Replay(context.Background(), task, bytes.NewReader(data))
			require.NoError(t, err)
			require.True(t, result.Failed)

			var line string
			for _, l := range strings.Split(f.console.String(), "\n") {
				if rest, ok := strings.CutPrefix(l, "    reproduce with: "); ok {
					line = rest
				}
			}
			require.NotEmpty(t, line)
			words, err := shellquote.Split(line)
			require.NoError(t, err)
			require.Equal(t, []string{"testreport", "run"}, words[:2])
			for i, word := range words {
				if word == "--task" {
					require.Less(t, i+1, len(words))
					assert.Contains(t, f.cfg.Tasks, words[i+1])
				}
			}
		})
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestReplay_ReadError(t *testing.T) {
	f := newFixture(t, map[string]*config.TaskConfig{"unit": {Command: "go"}})
	s := f.session(t, nil, nil)

	result, err := s.Replay(context.Background(), "ci", failingReader{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
	assert.True(t, result.Failed)
}

func TestClose(t *testing.T) {
	f := newFixture(t, map[string]*config.TaskConfig{"unit": {Command: "go"}})
	f.cfg.MetricsFile = filepath.Join(t.TempDir(), "testreport.prom")
	f.cfg.MaxBuffered = 8
	s := f.session(t, nil, nil)

	data, err := os.ReadFile(filepath.Join("testdata", "failing.json"))
	require.NoError(t, err)
	_, err = s.Replay(context.Background(), "ci", bytes.NewReader(data))
	require.NoError(t, err)

	assert.DirExists(t, s.SpillDir())
	require.NoError(t, s.Close())
	assert.NoDirExists(t, s.SpillDir())

	families, err := s.Metrics().Registry().Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == "testreport_active_suites" {
			assert.Zero(t, family.GetMetric()[0].GetGauge().GetValue())
		}
	}

	metricsText, err := os.ReadFile(f.cfg.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(metricsText), "testreport_failure_logs_total")
	assert.Contains(t, string(metricsText), s.ID())
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(Options{Config: &config.Config{Version: "1.0"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, capture.ErrConfiguration)
}
