package httpapi

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Choice is one selectable option on the consultation form. Leads store the
// label, not the id.
type Choice struct {
	ID    string `yaml:"id" json:"id"`
	Label string `yaml:"label" json:"label"`
	Icon  string `yaml:"icon" json:"icon,omitempty"`
}

type Catalog struct {
	PhoneOptions   []Choice `yaml:"phone_options" json:"phoneOptions"`
	CarrierOptions []Choice `yaml:"carrier_options" json:"carrierOptions"`
}

func DefaultCatalog() *Catalog {
	return &Catalog{
		PhoneOptions: []Choice{
			{ID: "galaxy-zfold7", Label: "갤럭시 Z폴드 7", Icon: "📱"},
			{ID: "galaxy-zflip7", Label: "갤럭시 Z플립 7", Icon: "📲"},
		},
		CarrierOptions: []Choice{
			{ID: "kt-device", Label: "KT 기기변경", Icon: "📱"},
			{ID: "kt-number", Label: "KT 번호이동", Icon: "🔄"},
			{ID: "skt-device", Label: "SKT 기기변경", Icon: "📱"},
			{ID: "skt-number", Label: "SKT 번호이동", Icon: "🔄"},
			{ID: "no-preference", Label: "상관없음", Icon: "✨"},
		},
	}
}

// LoadCatalog reads the form options from a YAML file. An empty path
// returns the built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read options file: %w", err)
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse options file: %w", err)
	}
	if err := normalizeChoices("phone_options", c.PhoneOptions); err != nil {
		return nil, err
	}
	if err := normalizeChoices("carrier_options", c.CarrierOptions); err != nil {
		return nil, err
	}
	return &c, nil
}

func normalizeChoices(section string, choices []Choice) error {
	if len(choices) == 0 {
		return fmt.Errorf("%s is empty", section)
	}
	ids := make(map[string]struct{}, len(choices))
	labels := make(map[string]struct{}, len(choices))
	for i := range choices {
		c := &choices[i]
		c.ID = strings.TrimSpace(c.ID)
		c.Label = strings.TrimSpace(c.Label)
		if c.ID == "" {
			return fmt.Errorf("%s entry at index %d has empty id", section, i)
		}
		if c.Label == "" {
			return fmt.Errorf("%s entry %q has empty label", section, c.ID)
		}
		if _, exists := ids[c.ID]; exists {
			return fmt.Errorf("duplicate %s id %q", section, c.ID)
		}
		if _, exists := labels[c.Label]; exists {
			return fmt.Errorf("duplicate %s label %q", section, c.Label)
		}
		ids[c.ID] = struct{}{}
		labels[c.Label] = struct{}{}
	}
	return nil
}
