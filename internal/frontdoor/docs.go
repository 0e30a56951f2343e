package frontdoor

import (
	_ "embed"
	"fmt"
	"net/http"

	"gopkg.in/yaml.v3"
)

//go:embed docs.yaml
var docsYAML []byte

// Catalogue describes the gateway's routes for GET /docs.
type Catalogue struct {
	Service     string          `yaml:"service" json:"service"`
	Description string          `yaml:"description" json:"description"`
	Routes      []RouteCategory `yaml:"routes" json:"routes"`
}

type RouteCategory struct {
	Category  string     `yaml:"category" json:"category"`
	Endpoints []Endpoint `yaml:"endpoints" json:"endpoints"`
}

type Endpoint struct {
	Method      string `yaml:"method" json:"method"`
	Path        string `yaml:"path" json:"path"`
	Description string `yaml:"description" json:"description"`
	Body        any    `yaml:"body,omitempty" json:"body,omitempty"`
	Example     string `yaml:"example,omitempty" json:"example,omitempty"`
}

// LoadCatalogue parses the embedded route catalogue.
func LoadCatalogue(serviceName string) (*Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(docsYAML, &c); err != nil {
		return nil, fmt.Errorf("parse route catalogue: %w", err)
	}
	c.Service = serviceName
	return &c, nil
}

// HandleDocs handles GET /docs.
func (h *Handler) HandleDocs(w http.ResponseWriter, r *http.Request) {
	c, err := LoadCatalogue(h.serviceName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
