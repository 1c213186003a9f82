// Package repro builds copy-pasteable command lines that rerun a failed suite or test.
package repro

import (
	"github.com/bebsworthy/testreport/internal/buildopts"
	"github.com/bebsworthy/testreport/internal/events"
	"github.com/kballard/go-shellquote"
)

// Builder assembles reproduce lines for one test task.
type Builder struct {
	entryPoint []string
	extraArgs  []string
}

// NewBuilder creates a builder whose lines start with entryPoint.
func NewBuilder(entryPoint ...string) *Builder {
	return &Builder{entryPoint: append([]string(nil), entryPoint...)}
}

// AddProperty appends a -Pname=value override.
func (b *Builder) AddProperty(name, value string) {
	b.extraArgs = append(b.extraArgs, "-P"+name+"="+value)
}

// AddOption appends an override for opt when it is present and either
// differs from its default or was computed.
func (b *Builder) AddOption(opt *buildopts.Option) {
	if !opt.IsPresent() {
		return
	}
	if !opt.IsEqualToDefault() || opt.Source() == buildopts.SourceComputed {
		b.AddProperty(opt.Name, opt.String())
	}
}

// Args returns the reproduce line as separate arguments.
func (b *Builder) Args(d *events.Descriptor) []string {
	args := append([]string(nil), b.entryPoint...)
	if d != nil && d.ClassName != "" {
		args = append(args, "--tests", Selector(d))
	}
	return append(args, b.extraArgs...)
}

// Line returns the shell-quoted reproduce line for d.
func (b *Builder) Line(d *events.Descriptor) string {
	return shellquote.Join(b.Args(d)...)
}

// Selector returns the --tests value: the class alone for a suite,
// class.name for an individual test.
func Selector(d *events.Descriptor) string {
	if d.Composite {
		return d.ClassName
	}
	return d.ClassName + "." + d.Name
}
