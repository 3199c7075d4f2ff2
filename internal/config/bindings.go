package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_bindings.yaml
var defaultBindings []byte

// YamlHeaderNames is the per-service header table as written in the bindings file.
type YamlHeaderNames struct {
	EstablishmentSelect  string `yaml:"establishment_select"`
	RoleSelect           string `yaml:"role_select"`
	EstablishmentConfirm string `yaml:"establishment_confirm"`
	RoleConfirm          string `yaml:"role_confirm"`
}

type YamlServiceBinding struct {
	BaseURL                string           `yaml:"base_url"`
	HeaderProfile          string           `yaml:"header_profile"`
	Headers                *YamlHeaderNames `yaml:"headers"` // Overrides the profile when set
	DefaultEstablishmentID string           `yaml:"default_establishment_id"`
}

// YamlBindings mirrors the raw bindings file.
type YamlBindings struct {
	HeaderProfiles map[string]YamlHeaderNames    `yaml:"header_profiles"`
	Services       map[string]YamlServiceBinding `yaml:"services"`
}

// ServiceBinding is a resolved binding: base URL plus the concrete header table.
type ServiceBinding struct {
	Name                   string
	BaseURL                string
	Headers                YamlHeaderNames
	DefaultEstablishmentID string
}

// LoadBindings reads the bindings file at path, or the embedded defaults when path is empty.
// A service base URL can be overridden with EDC_<SERVICE>_BASE_URL.
func LoadBindings(path string) ([]ServiceBinding, error) {
	raw := defaultBindings
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("[config LoadBindings] read %s: %w", path, err)
		}
		raw = data
	}
	return ParseBindings(raw)
}

func ParseBindings(raw []byte) ([]ServiceBinding, error) {
	var yb YamlBindings
	if err := yaml.Unmarshal(raw, &yb); err != nil {
		return nil, fmt.Errorf("[config ParseBindings] invalid yaml: %w", err)
	}

	names := make([]string, 0, len(yb.Services))
	for name := range yb.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	bindings := make([]ServiceBinding, 0, len(names))
	for _, name := range names {
		svc := yb.Services[name]

		var headers YamlHeaderNames
		switch {
		case svc.Headers != nil:
			headers = *svc.Headers
		case svc.HeaderProfile != "":
			profile, ok := yb.HeaderProfiles[svc.HeaderProfile]
			if !ok {
				return nil, fmt.Errorf("[config ParseBindings] service %q references unknown header profile %q", name, svc.HeaderProfile)
			}
			headers = profile
		default:
			return nil, fmt.Errorf("[config ParseBindings] service %q has no header table", name)
		}

		baseURL := GetEnv(baseURLEnvVar(name), svc.BaseURL)
		if baseURL == "" {
			return nil, fmt.Errorf("[config ParseBindings] service %q has no base_url", name)
		}

		bindings = append(bindings, ServiceBinding{
			Name:                   name,
			BaseURL:                baseURL,
			Headers:                headers,
			DefaultEstablishmentID: svc.DefaultEstablishmentID,
		})
	}
	return bindings, nil
}

func baseURLEnvVar(service string) string {
	return "EDC_" + strings.ToUpper(strings.ReplaceAll(service, "-", "_")) + "_BASE_URL"
}
