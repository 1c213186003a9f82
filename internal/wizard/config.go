// Package wizard provides the interactive configuration wizard for testreport
package wizard

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/kballard/go-shellquote"
	"golang.org/x/term"

	"github.com/bebsworthy/testreport/internal/config"
	"github.com/bebsworthy/testreport/internal/debug"
	"github.com/bebsworthy/testreport/internal/detector"
	pkgconfig "github.com/bebsworthy/testreport/pkg/config"
)

// ErrNotInteractive is returned when the wizard runs without a terminal.
var ErrNotInteractive = errors.New("the configuration wizard requires an interactive terminal")

// AskFunc asks a single question; survey.AskOne by default.
type AskFunc func(p survey.Prompt, response interface{}, opts ...survey.AskOpt) error

// ConfigWizard provides an interactive configuration wizard
type ConfigWizard struct {
	defaults *config.DefaultConfigs
	ask      AskFunc
	out      io.Writer
	isTTY    func() bool
}

// NewConfigWizard creates a new configuration wizard
func NewConfigWizard() (*ConfigWizard, error) {
	defaults, err := config.NewDefaultConfigs()
	if err != nil {
		return nil, fmt.Errorf("failed to load default configs: %w", err)
	}

	return &ConfigWizard{
		defaults: defaults,
		ask:      survey.AskOne,
		out:      os.Stdout,
		isTTY: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
		},
	}, nil
}

// Run runs the interactive configuration wizard
func (w *ConfigWizard) Run(outputPath string, force bool) error {
	debug.LogSection("Configuration Wizard")

	if !w.isTTY() {
		return ErrNotInteractive
	}

	path, err := w.determineOutputPath(outputPath)
	if err != nil {
		return err
	}
	outputPath = path

	if !force {
		overwrite, err := w.checkExistingConfig(outputPath)
		if err != nil {
			return err
		}
		if !overwrite {
			fmt.Fprintln(w.out, "Configuration wizard canceled.")
			return nil
		}
	}

	project := w.detectProject(filepath.Dir(outputPath))
	w.printWelcome(project)

	cfg, err := w.createConfiguration()
	if err != nil {
		return err
	}

	if err := w.addModuleTasks(cfg, project); err != nil {
		return err
	}

	if err := w.configureSettings(cfg); err != nil {
		return err
	}

	if err := w.validateAndSave(cfg, outputPath); err != nil {
		return err
	}

	w.printSuccess(outputPath, cfg)
	return nil
}

// determineOutputPath determines the output path for configuration
func (w *ConfigWizard) determineOutputPath(outputPath string) (string, error) {
	if outputPath != "" {
		return outputPath, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	return filepath.Join(cwd, config.ConfigFileName), nil
}

// checkExistingConfig checks if config exists and prompts for overwrite
func (w *ConfigWizard) checkExistingConfig(outputPath string) (bool, error) {
	if _, err := os.Stat(outputPath); err != nil {
		return true, nil
	}

	overwrite := false
	prompt := &survey.Confirm{
		Message: fmt.Sprintf("Configuration already exists at %s. Overwrite?", outputPath),
		Default: false,
	}
	if err := w.ask(prompt, &overwrite); err != nil {
		return false, err
	}
	return overwrite, nil
}

// detectProject finds the Go modules next to the configuration file
func (w *ConfigWizard) detectProject(projectDir string) *detector.Project {
	project, err := detector.Detect(projectDir)
	if err != nil {
		debug.LogError(err, "detecting Go modules")
		return &detector.Project{Root: projectDir}
	}
	return project
}

// printWelcome prints welcome message
func (w *ConfigWizard) printWelcome(project *detector.Project) {
	fmt.Fprintln(w.out, "Welcome to the testreport configuration wizard!")
	fmt.Fprintln(w.out, "Each task runs a command that writes go test -json events.")
	switch {
	case len(project.Modules) == 0:
		fmt.Fprintf(w.out, "No go.mod found in %s; adjust task packages accordingly.\n", project.Root)
	case project.MultiModule():
		fmt.Fprintf(w.out, "Found %d Go modules:\n", len(project.Modules))
		for _, module := range project.Modules {
			fmt.Fprintf(w.out, "  • %s (%s)\n", module.Path, module.Dir)
		}
	}
	fmt.Fprintln(w.out)
}

// addModuleTasks offers one task per module; go test ./... stops at nested go.mod files
func (w *ConfigWizard) addModuleTasks(cfg *pkgconfig.Config, project *detector.Project) error {
	if !project.MultiModule() {
		return nil
	}

	perModule := true
	prompt := &survey.Confirm{
		Message: "Create one test task per module?",
		Default: true,
	}
	if err := w.ask(prompt, &perModule); err != nil {
		return err
	}
	if !perModule {
		return nil
	}

	base, ok := cfg.Tasks[pkgconfig.DefaultTaskName]
	if !ok {
		base = pkgconfig.DefaultTask()
	}
	for _, module := range project.Modules {
		task := base.Clone()
		task.WorkingDir = ""
		if module.Dir != "." {
			task.WorkingDir = module.Dir
		}
		cfg.Tasks[module.TaskName()] = task
	}
	return nil
}

// createConfiguration starts from a template and optionally customizes its tasks
func (w *ConfigWizard) createConfiguration() (*pkgconfig.Config, error) {
	templates := w.defaults.GetAllTemplates()
	options := make([]string, 0, len(templates))
	for _, name := range templates {
		options = append(options, string(name))
	}

	choice := string(config.TemplateBasic)
	prompt := &survey.Select{
		Message: "Choose a starting layout:",
		Options: options,
		Default: choice,
		Description: func(value string, _ int) string {
			return config.Descriptions[config.Template(value)]
		},
	}
	if err := w.ask(prompt, &choice); err != nil {
		return nil, err
	}

	cfg, err := w.defaults.GetConfig(config.Template(choice))
	if err != nil {
		return nil, err
	}

	customize := false
	customPrompt := &survey.Confirm{
		Message: "Would you like to customize the tasks?",
		Default: false,
	}
	if err := w.ask(customPrompt, &customize); err != nil {
		return nil, err
	}
	if !customize {
		return cfg, nil
	}

	if err := w.customizeTasks(cfg); err != nil {
		return nil, err
	}
	if err := w.configureCustomTasks(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// customizeTasks lets the user edit selected tasks
func (w *ConfigWizard) customizeTasks(cfg *pkgconfig.Config) error {
	fmt.Fprintln(w.out, "\nCurrent tasks:")
	names := cfg.TaskNames()
	for _, name := range names {
		task := cfg.Tasks[name]
		fmt.Fprintf(w.out, "  • %s: %s\n", name, taskLine(task))
	}

	selected := []string{}
	selectPrompt := &survey.MultiSelect{
		Message: "Select tasks to modify:",
		Options: names,
	}
	if err := w.ask(selectPrompt, &selected); err != nil {
		return err
	}

	for _, name := range selected {
		fmt.Fprintf(w.out, "\nModifying '%s' task:\n", name)
		if err := w.configureTask(cfg.Tasks[name]); err != nil {
			return err
		}
	}
	return nil
}

// configureTask prompts for the command, arguments, packages and timeout of task
func (w *ConfigWizard) configureTask(task *pkgconfig.TaskConfig) error {
	command := task.Command
	if err := w.ask(&survey.Input{Message: "Command:", Default: task.Command}, &command,
		survey.WithValidator(survey.Required)); err != nil {
		return err
	}
	task.Command = command

	args, err := w.askWords("Arguments:", task.Args)
	if err != nil {
		return err
	}
	task.Args = args

	packages, err := w.askWords("Packages:", task.Packages)
	if err != nil {
		return err
	}
	task.Packages = packages

	timeout := ""
	if task.Timeout > 0 {
		timeout = task.TimeoutDuration().String()
	}
	if err := w.ask(&survey.Input{Message: "Timeout (e.g. 10m, empty for none):", Default: timeout}, &timeout,
		survey.WithValidator(validateDuration)); err != nil {
		return err
	}
	task.Timeout = 0
	if timeout != "" {
		d, _ := time.ParseDuration(timeout) //nolint:errcheck // validated above
		task.Timeout = int(d / time.Millisecond)
	}
	return nil
}

// configureCustomTasks adds new tasks until an empty name is entered
func (w *ConfigWizard) configureCustomTasks(cfg *pkgconfig.Config) error {
	for {
		name := ""
		namePrompt := &survey.Input{
			Message: "New task name (empty to finish):",
		}
		if err := w.ask(namePrompt, &name); err != nil {
			return err
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil
		}

		task := pkgconfig.DefaultTask()
		if err := w.configureTask(task); err != nil {
			return err
		}
		cfg.Tasks[name] = task
	}
}

// configureSettings prompts for the run-wide settings
func (w *ConfigWizard) configureSettings(cfg *pkgconfig.Config) error {
	reportsDir := cfg.ReportsDir
	if err := w.ask(&survey.Input{Message: "Directory for failure logs:", Default: cfg.ReportsDir}, &reportsDir,
		survey.WithValidator(survey.Required)); err != nil {
		return err
	}
	cfg.ReportsDir = reportsDir

	parallel := strconv.Itoa(cfg.MaxParallel)
	if err := w.ask(&survey.Input{Message: "Tasks to run in parallel:", Default: parallel}, &parallel,
		survey.WithValidator(validatePositive)); err != nil {
		return err
	}
	cfg.MaxParallel, _ = strconv.Atoi(parallel) //nolint:errcheck // validated above

	stripANSI := cfg.StripANSI
	if err := w.ask(&survey.Confirm{Message: "Strip terminal colors from printed output?", Default: cfg.StripANSI}, &stripANSI); err != nil {
		return err
	}
	cfg.StripANSI = stripANSI

	entryPoint, err := w.askWords("Reproduce command prefix (empty for testreport run --task <task>):", cfg.EntryPoint)
	if err != nil {
		return err
	}
	cfg.EntryPoint = entryPoint
	return nil
}

// askWords asks for a shell-quoted word list.
func (w *ConfigWizard) askWords(message string, current []string) ([]string, error) {
	answer := shellquote.Join(current...)
	if err := w.ask(&survey.Input{Message: message, Default: answer}, &answer,
		survey.WithValidator(validateWords)); err != nil {
		return nil, err
	}
	words, _ := shellquote.Split(answer) //nolint:errcheck // validated above
	if len(words) == 0 {
		return nil, nil
	}
	return words, nil
}

// validateAndSave validates and saves configuration
func (w *ConfigWizard) validateAndSave(cfg *pkgconfig.Config, outputPath string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	data, err := pkgconfig.SaveConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize configuration: %w", err)
	}

	if err := os.WriteFile(outputPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}
	return config.ValidateConfigFile(outputPath)
}

// printSuccess prints success message
func (w *ConfigWizard) printSuccess(outputPath string, cfg *pkgconfig.Config) {
	fmt.Fprintf(w.out, "\nConfiguration saved to: %s\n", outputPath)
	fmt.Fprintln(w.out, "Run your tests with:")
	for _, name := range cfg.TaskNames() {
		fmt.Fprintf(w.out, "   • testreport run --task %s\n", name)
	}
}

func taskLine(task *pkgconfig.TaskConfig) string {
	words := append([]string{task.Command}, task.Args...)
	words = append(words, task.Packages...)
	return shellquote.Join(words...)
}

func validateWords(ans interface{}) error {
	s, _ := ans.(string)
	if _, err := shellquote.Split(s); err != nil {
		return fmt.Errorf("can't split %q: %w", s, err)
	}
	return nil
}

func validateDuration(ans interface{}) error {
	s, _ := ans.(string)
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("not a duration: %q", s)
	}
	if d < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	return nil
}

func validatePositive(ans interface{}) error {
	s, _ := ans.(string)
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fmt.Errorf("enter a positive number")
	}
	return nil
}
