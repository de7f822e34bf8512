package connreg

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ConnectionTemplate is a suggested connection shipped with the binary.
type ConnectionTemplate struct {
	Name        string `json:"name" yaml:"name"`
	Host        string `json:"host" yaml:"host"`
	Port        int    `json:"port" yaml:"port"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

type defaultSet struct {
	templates []ConnectionTemplate
	json      string
}

// loadDefaults parses the embedded set once. A malformed file is a build
// defect, so it panics rather than returning an error.
var loadDefaults = sync.OnceValue(func() defaultSet {
	set, err := parseDefaults(defaultsYAML)
	if err != nil {
		panic(err)
	}
	return set
})

func parseDefaults(data []byte) (defaultSet, error) {
	var templates []ConnectionTemplate
	if err := yaml.Unmarshal(data, &templates); err != nil {
		return defaultSet{}, fmt.Errorf("parse default connections: %w", err)
	}
	for i, t := range templates {
		if t.Name == "" || t.Host == "" || !PortInRange(t.Port) {
			return defaultSet{}, fmt.Errorf("default connection %d is invalid", i)
		}
	}
	if templates == nil {
		templates = []ConnectionTemplate{}
	}
	b, err := json.Marshal(templates)
	if err != nil {
		return defaultSet{}, fmt.Errorf("encode default connections: %w", err)
	}
	return defaultSet{templates: templates, json: string(b)}, nil
}

// DefaultConnectionsJSON returns the default connection set as JSON text.
func DefaultConnectionsJSON() string {
	return loadDefaults().json
}

// DefaultConnections returns a copy of the default connection set.
func DefaultConnections() []ConnectionTemplate {
	src := loadDefaults().templates
	out := make([]ConnectionTemplate, len(src))
	copy(out, src)
	return out
}
