package flagext

import (
	"strings"
)

// ConfigFiles collects every -config.file occurrence in order; later files
// override earlier ones.
type ConfigFiles []string

// String implements flag.Value
// Format: file1.yaml,file2.yaml
func (cfgFiles *ConfigFiles) String() string {
	return strings.Join(*cfgFiles, ",")
}

// Set implements flag.Value
func (cfgFiles *ConfigFiles) Set(value string) error {
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			*cfgFiles = append(*cfgFiles, v)
		}
	}
	return nil
}
