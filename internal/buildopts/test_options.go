package buildopts

import (
	"fmt"
	"math/rand/v2"
)

// Names of the options that drive test runs.
const (
	OptionSeed    = "tests.seed"
	OptionVerbose = "tests.verbose"
	OptionFilter  = "tests.filter"
	OptionTimeout = "tests.timeout"
	OptionIters   = "tests.iters"
	OptionArgs    = "tests.args"
)

// RandomSeed returns a random root seed as 16 upper-case hex digits.
func RandomSeed() string {
	return fmt.Sprintf("%016X", rand.Uint64())
}

// RegisterTestOptions registers the standard test options on s, in the order
// they appear on a reproduce line.
func RegisterTestOptions(s *Set) {
	s.AddComputed(OptionSeed, "Root randomization seed, exported to tests as TESTS_SEED.", TypeString, RandomSeed)
	s.AddWithDefault(OptionVerbose, "Echo all stdout/stderr from tests to the console.", TypeBool, "false")
	s.Add(OptionFilter, "Run only tests matching this pattern.", TypeString)
	s.Add(OptionTimeout, "Test task timeout (duration, or millis).", TypeDuration)
	s.Add(OptionIters, "Repeat each test the provided number of times.", TypeInt)
	s.Add(OptionArgs, "Additional arguments passed directly to the test command.", TypeString)
}

// Environment returns NAME=value pairs for every present option, in registration order.
func (s *Set) Environment() []string {
	env := make([]string, 0, len(s.options))
	for _, opt := range s.options {
		if opt.IsPresent() {
			env = append(env, EnvName(opt.Name)+"="+opt.String())
		}
	}
	return env
}
