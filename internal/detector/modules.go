// Package detector finds the Go modules of a project so the configuration
// wizard can offer one test task per module.
package detector

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/mod/modfile"

	"github.com/bebsworthy/testreport/internal/debug"
)

// Module is a Go module found under the project root
type Module struct {
	Path string // module path from the module directive
	Dir  string // directory relative to the root, "." for the root module
}

// Project describes the Go layout of a directory tree
type Project struct {
	Root      string
	Workspace bool // a go.work file is present at the root
	Modules   []Module
}

// MultiModule reports whether go test ./... at the root misses modules.
func (p *Project) MultiModule() bool {
	return len(p.Modules) > 1
}

// skipDirs are never searched for nested modules
var skipDirs = map[string]bool{
	"vendor":       true,
	"testdata":     true,
	"node_modules": true,
}

// Detect scans root for go.mod files. When a go.work file exists, its use
// directives list the modules instead.
func Detect(root string) (*Project, error) {
	debug.LogSection("Module Detection")
	debug.Log("Scanning path: %s", root)

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path must be a directory")
	}

	project := &Project{Root: root}
	dirs, err := workspaceDirs(root)
	switch {
	case err == nil:
		project.Workspace = true
	case errors.Is(err, fs.ErrNotExist):
		dirs, err = walkModules(root)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	for _, dir := range dirs {
		path, err := modulePath(filepath.Join(root, dir))
		if err != nil {
			debug.Log("Skipping %s: %v", dir, err)
			continue
		}
		project.Modules = append(project.Modules, Module{Path: path, Dir: dir})
	}
	sort.Slice(project.Modules, func(i, j int) bool {
		return project.Modules[i].Dir < project.Modules[j].Dir
	})
	debug.Log("Found %d modules (workspace: %v)", len(project.Modules), project.Workspace)
	return project, nil
}

func workspaceDirs(root string) ([]string, error) {
	name := filepath.Join(root, "go.work")
	// #nosec G304 - reading the project's own workspace file
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	work, err := modfile.ParseWork(name, data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse go.work: %w", err)
	}
	dirs := make([]string, 0, len(work.Use))
	for _, use := range work.Use {
		dirs = append(dirs, filepath.Clean(filepath.FromSlash(use.Path)))
	}
	return dirs, nil
}

func walkModules(root string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (skipDirs[name] || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != "go.mod" {
			return nil
		}
		rel, err := filepath.Rel(root, filepath.Dir(path))
		if err != nil {
			return err
		}
		dirs = append(dirs, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan for modules: %w", err)
	}
	return dirs, nil
}

func modulePath(dir string) (string, error) {
	name := filepath.Join(dir, "go.mod")
	// #nosec G304 - reading a go.mod inside the project
	data, err := os.ReadFile(name)
	if err != nil {
		return "", err
	}
	path := modfile.ModulePath(data)
	if path == "" {
		return "", fmt.Errorf("no module directive in %s", name)
	}
	return path, nil
}

// TaskName derives a task name from the module directory.
func (m Module) TaskName() string {
	if m.Dir == "." {
		return "test"
	}
	return strings.ReplaceAll(filepath.ToSlash(m.Dir), "/", "-")
}
