package buildopts

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func TestResolutionOrder(t *testing.T) {
	tests := []struct {
		name           string
		resolver       Resolver
		expectedValue  string
		expectedSource Source
	}{
		{
			name: "property wins over everything",
			resolver: Resolver{
				Properties: map[string]string{"tests.filter": "prop"},
				LookupEnv:  envFrom(map[string]string{"tests.filter": "env"}),
				Local:      map[string]string{"tests.filter": "local"},
			},
			expectedValue:  "prop",
			expectedSource: SourceProperty,
		},
		{
			name: "exact environment name before local file",
			resolver: Resolver{
				LookupEnv: envFrom(map[string]string{"tests.filter": "env"}),
				Local:     map[string]string{"tests.filter": "local"},
			},
			expectedValue:  "env",
			expectedSource: SourceEnvironment,
		},
		{
			name: "conventional environment name",
			resolver: Resolver{
				LookupEnv: envFrom(map[string]string{"TESTS_FILTER": "upper"}),
			},
			expectedValue:  "upper",
			expectedSource: SourceEnvironment,
		},
		{
			name: "local file",
			resolver: Resolver{
				LookupEnv: envFrom(nil),
				Local:     map[string]string{"tests.filter": "local"},
			},
			expectedValue:  "local",
			expectedSource: SourceLocalFile,
		},
		{
			name:           "explicit default",
			resolver:       Resolver{LookupEnv: envFrom(nil)},
			expectedValue:  "dflt",
			expectedSource: SourceExplicit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := NewSet(tt.resolver)
			opt := set.AddWithDefault("tests.filter", "filter", TypeString, "dflt")
			require.True(t, opt.IsPresent())
			assert.Equal(t, tt.expectedValue, opt.String())
			assert.Equal(t, tt.expectedSource, opt.Source())
		})
	}
}

func TestAbsentOption(t *testing.T) {
	set := NewSet(Resolver{LookupEnv: envFrom(nil)})
	opt := set.Add("tests.filter", "filter", TypeString)

	assert.False(t, opt.IsPresent())
	assert.Equal(t, "", opt.String())
	assert.False(t, opt.IsEqualToDefault())
	assert.Panics(t, func() { opt.Source() })
}

func TestIsEqualToDefault(t *testing.T) {
	set := NewSet(Resolver{
		LookupEnv:  envFrom(nil),
		Properties: map[string]string{"same": "false", "different": "true"},
	})

	assert.True(t, set.AddWithDefault("same", "", TypeBool, "false").IsEqualToDefault())
	assert.False(t, set.AddWithDefault("different", "", TypeBool, "false").IsEqualToDefault())
	assert.True(t, set.AddWithDefault("untouched", "", TypeBool, "false").IsEqualToDefault())
	assert.False(t, set.Add("nodefault", "", TypeString).IsEqualToDefault())
}

func TestComputedDefault(t *testing.T) {
	calls := 0
	set := NewSet(Resolver{LookupEnv: envFrom(nil)})
	opt := set.AddComputed("tests.seed", "", TypeString, func() string {
		calls++
		return "CAFEBABE"
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, "CAFEBABE", opt.String())
	assert.Equal(t, SourceComputed, opt.Source())
	assert.True(t, opt.IsEqualToDefault())
}

func TestTypedAccessors(t *testing.T) {
	set := NewSet(Resolver{
		LookupEnv: envFrom(nil),
		Properties: map[string]string{
			"b":    "TRUE",
			"bbad": "yes",
			"i":    "12",
			"ibad": "twelve",
			"d":    "1500",
			"d2":   "2m",
		},
	})

	b, err := set.Add("b", "", TypeBool).Bool()
	require.NoError(t, err)
	assert.True(t, b)

	_, err = set.Add("bbad", "", TypeBool).Bool()
	assert.EqualError(t, err, "build option 'bbad' is of type BOOLEAN and expects a 'true' or 'false' value but was: yes")

	i, err := set.Add("i", "", TypeInt).Int()
	require.NoError(t, err)
	assert.Equal(t, 12, i)

	_, err = set.Add("ibad", "", TypeInt).Int()
	assert.EqualError(t, err, "build option 'ibad' is of type INTEGER and expects an integer value but was: twelve")

	d, err := set.Add("d", "", TypeDuration).Duration()
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, d)

	d, err = set.Add("d2", "", TypeDuration).Duration()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, d)

	iOpt, ok := set.Get("i")
	require.True(t, ok)
	_, err = iOpt.Bool()
	assert.EqualError(t, err, "build option 'i' is of type INTEGER, it cannot be converted to BOOLEAN")
}

func TestRegistrationOrderAndDuplicates(t *testing.T) {
	set := NewSet(Resolver{LookupEnv: envFrom(nil)})
	a := set.Add("a", "", TypeString)
	set.Add("c", "", TypeString)
	set.Add("b", "", TypeString)
	again := set.Add("a", "other", TypeInt)

	assert.Same(t, a, again)
	var names []string
	for _, opt := range set.All() {
		names = append(names, opt.Name)
	}
	assert.Equal(t, []string{"a", "c", "b"}, names)
}

func TestRegisterTestOptionsAndEnvironment(t *testing.T) {
	set := NewSet(Resolver{
		LookupEnv:  envFrom(nil),
		Properties: map[string]string{"tests.seed": "DEADBEEF", "tests.filter": "TestFoo"},
	})
	RegisterTestOptions(set)

	seed, ok := set.Get(OptionSeed)
	require.True(t, ok)
	assert.Equal(t, SourceProperty, seed.Source())

	assert.Equal(t, []string{
		"TESTS_SEED=DEADBEEF",
		"TESTS_VERBOSE=false",
		"TESTS_FILTER=TestFoo",
	}, set.Environment())
}

func TestRandomSeed(t *testing.T) {
	assert.Regexp(t, regexp.MustCompile(`^[0-9A-F]{16}$`), RandomSeed())
}

func TestParseProperties(t *testing.T) {
	props, err := ParseProperties([]string{"tests.seed=DEADBEEF", "tests.args=-v -race", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"tests.seed": "DEADBEEF",
		"tests.args": "-v -race",
		"empty":      "",
	}, props)

	_, err = ParseProperties([]string{"novalue"})
	assert.Error(t, err)
	_, err = ParseProperties([]string{"=x"})
	assert.Error(t, err)
}

func TestLoadLocalOptions(t *testing.T) {
	dir := t.TempDir()

	missing, err := LoadLocalOptions(filepath.Join(dir, LocalOptionsFile))
	require.NoError(t, err)
	assert.Empty(t, missing)

	path := filepath.Join(dir, LocalOptionsFile)
	content := "tests.seed: DEADBEEF\ntests.verbose: true\ntests.iters: 3\ntests.filter:\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	local, err := LoadLocalOptions(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"tests.seed":    "DEADBEEF",
		"tests.verbose": "true",
		"tests.iters":   "3",
	}, local)

	require.NoError(t, os.WriteFile(path, []byte("tests.args: [a, b]\n"), 0o600))
	_, err = LoadLocalOptions(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("tests.seed: [unclosed"), 0o600))
	_, err = LoadLocalOptions(path)
	assert.Error(t, err)
}
