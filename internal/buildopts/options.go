// Package buildopts resolves named build options from layered sources.
package buildopts

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Type is the declared value type of an option.
type Type int

const (
	// TypeString accepts any value
	TypeString Type = iota
	// TypeBool accepts true or false
	TypeBool
	// TypeInt accepts an integer
	TypeInt
	// TypeDuration accepts a Go duration string
	TypeDuration
)

// String returns the type name
func (t Type) String() string {
	switch t {
	case TypeBool:
		return "BOOLEAN"
	case TypeInt:
		return "INTEGER"
	case TypeDuration:
		return "DURATION"
	default:
		return "STRING"
	}
}

// Source records where an option value came from.
type Source int

const (
	// SourceProperty is a -P name=value command line property
	SourceProperty Source = iota
	// SourceEnvironment is an environment variable
	SourceEnvironment
	// SourceLocalFile is the local options file
	SourceLocalFile
	// SourceExplicit is an explicit default value
	SourceExplicit
	// SourceComputed is a default computed at setup time
	SourceComputed
)

// String returns the source name
func (s Source) String() string {
	switch s {
	case SourceProperty:
		return "property"
	case SourceEnvironment:
		return "environment variable"
	case SourceLocalFile:
		return "local options file"
	case SourceExplicit:
		return "default"
	case SourceComputed:
		return "computed"
	default:
		return "unknown"
	}
}

// Value is a resolved option value.
type Value struct {
	Value  string
	Source Source
}

// Option is a named, typed build option with a resolved value.
type Option struct {
	Name        string
	Description string
	Type        Type

	value        *Value
	defaultValue *Value
}

// IsPresent reports whether the option has any value.
func (o *Option) IsPresent() bool {
	return o.value != nil
}

// String returns the raw value, or "" when absent.
func (o *Option) String() string {
	if o.value == nil {
		return ""
	}
	return o.value.Value
}

// Source returns where the value came from. It panics on absent options,
// callers check IsPresent first.
func (o *Option) Source() Source {
	if o.value == nil {
		panic("build option has no value set: " + o.Name)
	}
	return o.value.Source
}

// DefaultValue returns the default value and whether one exists.
func (o *Option) DefaultValue() (string, bool) {
	if o.defaultValue == nil {
		return "", false
	}
	return o.defaultValue.Value, true
}

// IsEqualToDefault reports whether a default exists and the resolved value equals it.
func (o *Option) IsEqualToDefault() bool {
	if o.value == nil || o.defaultValue == nil {
		return false
	}
	return o.value.Value == o.defaultValue.Value
}

// Bool converts the value to a boolean.
func (o *Option) Bool() (bool, error) {
	if err := o.ensureType(TypeBool); err != nil {
		return false, err
	}
	switch strings.ToLower(o.String()) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, o.conversionError("a 'true' or 'false' value")
}

// Int converts the value to an integer.
func (o *Option) Int() (int, error) {
	if err := o.ensureType(TypeInt); err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(o.String())
	if err != nil {
		return 0, o.conversionError("an integer value")
	}
	return v, nil
}

// Duration converts the value to a time.Duration. Bare integers are milliseconds.
func (o *Option) Duration() (time.Duration, error) {
	if err := o.ensureType(TypeDuration); err != nil {
		return 0, err
	}
	raw := o.String()
	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, o.conversionError("a duration value")
	}
	return d, nil
}

func (o *Option) ensureType(target Type) error {
	if o.Type != target && o.Type != TypeString {
		return fmt.Errorf("build option '%s' is of type %s, it cannot be converted to %s", o.Name, o.Type, target)
	}
	if o.value == nil {
		return fmt.Errorf("build option has no value set: %s", o.Name)
	}
	return nil
}

func (o *Option) conversionError(expected string) error {
	return fmt.Errorf("build option '%s' is of type %s and expects %s but was: %s", o.Name, o.Type, expected, o.String())
}

// Resolver supplies the non-default value layers, highest precedence first:
// properties, environment, local options file.
type Resolver struct {
	Properties map[string]string
	LookupEnv  func(string) (string, bool)
	Local      map[string]string
}

// EnvName maps an option name to its conventional environment variable, e.g.
// tests.seed -> TESTS_SEED.
func EnvName(name string) string {
	return strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(name))
}

func (r Resolver) resolve(name string) *Value {
	if v, ok := r.Properties[name]; ok {
		return &Value{Value: v, Source: SourceProperty}
	}
	lookup := r.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(name); ok {
		return &Value{Value: v, Source: SourceEnvironment}
	}
	if v, ok := lookup(EnvName(name)); ok {
		return &Value{Value: v, Source: SourceEnvironment}
	}
	if v, ok := r.Local[name]; ok {
		return &Value{Value: v, Source: SourceLocalFile}
	}
	return nil
}

// Set holds options in registration order.
type Set struct {
	resolver Resolver
	options  []*Option
	byName   map[string]*Option
}

// NewSet creates an empty option set resolving values through r.
func NewSet(r Resolver) *Set {
	return &Set{
		resolver: r,
		byName:   make(map[string]*Option),
	}
}

// Add registers an option without a default value.
func (s *Set) Add(name, description string, typ Type) *Option {
	return s.add(name, description, typ, nil)
}

// AddWithDefault registers an option with an explicit default value.
func (s *Set) AddWithDefault(name, description string, typ Type, defaultValue string) *Option {
	return s.add(name, description, typ, &Value{Value: defaultValue, Source: SourceExplicit})
}

// AddComputed registers an option whose default is computed once, now.
func (s *Set) AddComputed(name, description string, typ Type, compute func() string) *Option {
	return s.add(name, description, typ, &Value{Value: compute(), Source: SourceComputed})
}

func (s *Set) add(name, description string, typ Type, def *Value) *Option {
	if existing, ok := s.byName[name]; ok {
		return existing
	}
	opt := &Option{
		Name:         name,
		Description:  description,
		Type:         typ,
		defaultValue: def,
		value:        s.resolver.resolve(name),
	}
	if opt.value == nil {
		opt.value = def
	}
	s.options = append(s.options, opt)
	s.byName[name] = opt
	return opt
}

// Get returns the option registered under name.
func (s *Set) Get(name string) (*Option, bool) {
	opt, ok := s.byName[name]
	return opt, ok
}

// All returns options in registration order.
func (s *Set) All() []*Option {
	return s.options
}

// ParseProperties parses name=value pairs given on the command line.
func ParseProperties(pairs []string) (map[string]string, error) {
	props := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid property %q: expected name=value", pair)
		}
		props[name] = value
	}
	return props, nil
}
