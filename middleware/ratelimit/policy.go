package ratelimit

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy é o limite de uma rota: MaxRequests por Window, por cliente.
// Method vazio vale para qualquer método.
type Policy struct {
	Method      string        `yaml:"method"`
	Pattern     string        `yaml:"pattern"`
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// PolicySet é o conjunto de políticas do gateway. Default cobre tudo o que
// nenhuma rota de Routes atender.
type PolicySet struct {
	Default Policy   `yaml:"default"`
	Routes  []Policy `yaml:"routes"`
}

const DefaultMaxRequests = 30

// DefaultPolicies é o limite único de 30 requests por minuto.
func DefaultPolicies() PolicySet {
	return PolicySet{Default: Policy{MaxRequests: DefaultMaxRequests, Window: time.Minute}}
}

// DirectoryPolicies reproduz os limites por rota da API de diretório:
// leitura mais folgada que escrita, health check mais folgado que tudo.
func DirectoryPolicies() PolicySet {
	set := DefaultPolicies()
	set.Routes = []Policy{
		{Method: http.MethodGet, Pattern: "/", MaxRequests: 100, Window: time.Minute},
		{Method: http.MethodGet, Pattern: "/employees/", MaxRequests: 50, Window: time.Minute},
		{Method: http.MethodPost, Pattern: "/employees/", MaxRequests: 20, Window: time.Minute},
		{Method: http.MethodGet, Pattern: "/employees/{id}", MaxRequests: 50, Window: time.Minute},
		{Method: http.MethodPut, Pattern: "/employees/{id}", MaxRequests: 20, Window: time.Minute},
		{Method: http.MethodDelete, Pattern: "/employees/{id}", MaxRequests: 20, Window: time.Minute},
	}
	return set
}

// Label identifica a política em logs e stats.
func (p Policy) Label() string {
	if p.Pattern == "" {
		return "default"
	}
	if p.Method == "" {
		return p.Pattern
	}
	return p.Method + " " + p.Pattern
}

func (p Policy) validate(route bool) error {
	if p.MaxRequests <= 0 {
		return fmt.Errorf("%s: max_requests must be > 0", p.Label())
	}
	if p.Window < 0 {
		return fmt.Errorf("%s: window must be >= 0", p.Label())
	}
	if route && !strings.HasPrefix(p.Pattern, "/") {
		return fmt.Errorf("%s: pattern must start with /", p.Label())
	}
	return nil
}

// Validate confere o conjunto e preenche Window = 1 minuto onde faltar.
func (s *PolicySet) Validate() error {
	if s.Default.MaxRequests == 0 {
		s.Default.MaxRequests = DefaultMaxRequests
	}
	s.Default.Pattern = ""
	s.Default.Method = ""

	var errs []error
	if err := s.Default.validate(false); err != nil {
		errs = append(errs, err)
	}
	if s.Default.Window == 0 {
		s.Default.Window = time.Minute
	}

	seen := make(map[string]bool, len(s.Routes))
	for i := range s.Routes {
		p := &s.Routes[i]
		p.Method = strings.ToUpper(strings.TrimSpace(p.Method))
		p.Pattern = strings.TrimSpace(p.Pattern)
		if err := p.validate(true); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[p.Label()] {
			errs = append(errs, fmt.Errorf("%s: duplicated route", p.Label()))
			continue
		}
		seen[p.Label()] = true
		if p.Window == 0 {
			p.Window = s.Default.Window
		}
	}
	return errors.Join(errs...)
}

// ParsePolicies lê um PolicySet em YAML, ex:
//
//	default:
//	  max_requests: 30
//	routes:
//	  - method: POST
//	    pattern: /employees/
//	    max_requests: 20
//	    window: 1m
func ParsePolicies(data []byte) (PolicySet, error) {
	var set PolicySet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return PolicySet{}, fmt.Errorf("parse policies: %w", err)
	}
	if err := set.Validate(); err != nil {
		return PolicySet{}, fmt.Errorf("invalid policies: %w", err)
	}
	return set, nil
}

func LoadPolicies(path string) (PolicySet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PolicySet{}, fmt.Errorf("read policies %s: %w", path, err)
	}
	return ParsePolicies(data)
}
