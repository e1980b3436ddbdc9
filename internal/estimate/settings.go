package estimate

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v2"
)

// LoadSettings reads engine setting overrides from a flat YAML mapping, e.g.
//
//	layer_height: 0.2
//	infill_sparse_density: 20
//	support_enable: true
//
// Values are passed to the engine verbatim as "-s key=value".
func LoadSettings(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading slicer settings: %w", err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("error parsing slicer settings %s: %w", path, err)
	}

	settings := make(map[string]string, len(raw))
	for key, value := range raw {
		if key == "" || strings.ContainsAny(key, "= \t\n") {
			return nil, fmt.Errorf("invalid slicer setting name %q", key)
		}
		switch value.(type) {
		case map[interface{}]interface{}, []interface{}:
			return nil, fmt.Errorf("slicer setting %q must be a scalar", key)
		case nil:
			return nil, fmt.Errorf("slicer setting %q has no value", key)
		}
		settings[key] = fmt.Sprint(value)
	}
	return settings, nil
}

func settingArgs(settings map[string]string) []string {
	keys := make([]string, 0, len(settings))
	for key := range settings {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	args := make([]string, 0, 2*len(keys))
	for _, key := range keys {
		args = append(args, "-s", key+"="+settings[key])
	}
	return args
}
