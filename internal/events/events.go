// Package events defines the test execution events delivered by a host test runner.
package events

// ResultType is the outcome of a test or suite.
type ResultType int

const (
	// ResultSuccess indicates the test or suite passed
	ResultSuccess ResultType = iota
	// ResultFailure indicates the test or suite failed
	ResultFailure
	// ResultSkipped indicates the test or suite was skipped
	ResultSkipped
)

// String returns the display name of the result type
func (r ResultType) String() string {
	switch r {
	case ResultSuccess:
		return "SUCCESS"
	case ResultFailure:
		return "FAILURE"
	case ResultSkipped:
		return "SKIPPED"
	default:
		return "UNKNOWN"
	}
}

// Result is the outcome of a test or suite plus any failure messages.
type Result struct {
	Type       ResultType
	Exceptions []string
}

// Destination identifies the stream an output chunk was written to.
type Destination int

const (
	// StdOut is the test's standard output
	StdOut Destination = iota
	// StdErr is the test's standard error
	StdErr
)

// OutputEvent is a chunk of output produced by a test or suite.
type OutputEvent struct {
	Destination Destination
	Message     string
}

// Descriptor identifies a suite or a test as reported by the host runner.
type Descriptor struct {
	// ID uniquely identifies the descriptor within a run
	ID string
	// Name is the suite or test name
	Name string
	// ClassName is the enclosing class or package name
	ClassName string
	// DisplayName is shown to humans; defaults to Name
	DisplayName string
	// Parent is the enclosing suite, nil for a root
	Parent *Descriptor
	// Composite is true for suites, false for individual tests
	Composite bool
	// Synthetic marks host-internal wrapper suites that are never reported
	Synthetic bool
}

// String returns the identity used when the descriptor is referenced as a parent.
func (d *Descriptor) String() string {
	if d.ID != "" {
		return d.ID
	}
	if d.ClassName != "" && d.ClassName != d.Name {
		return d.ClassName + "." + d.Name
	}
	return d.Name
}

// Display returns DisplayName, falling back to Name.
func (d *Descriptor) Display() string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return d.Name
}

// IsRoot reports whether the descriptor should be ignored for reporting.
func (d *Descriptor) IsRoot() bool {
	return d.Parent == nil || d.Synthetic
}

// Listener consumes the event stream of one or more test suites.
type Listener interface {
	BeforeSuite(suite *Descriptor) error
	BeforeTest(test *Descriptor) error
	OnOutput(desc *Descriptor, event OutputEvent) error
	AfterTest(test *Descriptor, result Result) error
	AfterSuite(suite *Descriptor, result Result) error
}
