package buildopts

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LocalOptionsFile is the per-checkout override file, kept out of version control.
const LocalOptionsFile = ".local-options.yaml"

// LoadLocalOptions reads name: value overrides from path. A missing file yields no overrides.
func LoadLocalOptions(path string) (map[string]string, error) {
	// #nosec G304 - path is the well-known local options file
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("can't read the local %s file: %w", LocalOptionsFile, err)
	}

	raw := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("can't parse the local %s file: %w", LocalOptionsFile, err)
	}

	options := make(map[string]string, len(raw))
	for name, value := range raw {
		switch v := value.(type) {
		case nil:
			continue
		case string:
			options[name] = v
		case bool, int, int64, float64:
			options[name] = fmt.Sprint(v)
		default:
			return nil, fmt.Errorf("local option %q must be a scalar value", name)
		}
	}
	return options, nil
}
