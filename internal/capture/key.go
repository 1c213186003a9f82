package capture

import "github.com/bebsworthy/testreport/internal/events"

// noParent stands in for the parent identity of a root descriptor.
const noParent = "-"

// SuiteKey distinguishes suites and tests that may share a display name.
type SuiteKey struct {
	ClassName string
	Name      string
	Parent    string
}

// KeyOf builds the lookup key for a descriptor.
func KeyOf(d *events.Descriptor) SuiteKey {
	parent := noParent
	if d.Parent != nil {
		parent = d.Parent.String()
	}
	return SuiteKey{
		ClassName: d.ClassName,
		Name:      d.Name,
		Parent:    parent,
	}
}

// String renders the key as class::name::parent.
func (k SuiteKey) String() string {
	return k.ClassName + "::" + k.Name + "::" + k.Parent
}
