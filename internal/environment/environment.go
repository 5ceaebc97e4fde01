package environment

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

const (
	Prod  = "prod"
	Dev   = "dev"
	Local = "local"

	// Default is used for empty and unknown environment names.
	Default = Prod
)

// ErrOrganizationRequired is returned when an origin depends on the
// organization and none is known.
var ErrOrganizationRequired = errors.New("origin requires an organization, log in first")

// legacyOrgPlaceholder is accepted in overrides for compatibility with
// values written for older clients.
const legacyOrgPlaceholder = "{organization_id}"

// Profile describes where a deployment's API and MCP proxy live.
// Origins are text/template strings with sprig functions; the data has a
// single field, .Organization.
type Profile struct {
	Name        string `json:"name" yaml:"name"`
	APIOrigin   string `json:"api_origin" yaml:"api_origin"`
	ProxyOrigin string `json:"proxy_origin" yaml:"proxy_origin"`
	AuthDomain  string `json:"auth_domain" yaml:"auth_domain"`
	Audience    string `json:"audience" yaml:"audience"`
	// ValidatesTokens reports whether the API offers token validation.
	ValidatesTokens bool `json:"validates_tokens" yaml:"validates_tokens"`
}

// Overrides replace the origins derived from the environment name.
// Empty fields are ignored.
type Overrides struct {
	APIOrigin   string
	ProxyOrigin string
}

var profiles = map[string]Profile{
	Prod: {
		Name:            Prod,
		APIOrigin:       "https://{{ .Organization }}.mcp.barndoor.ai",
		ProxyOrigin:     "https://{{ .Organization }}.mcp.barndoor.ai",
		AuthDomain:      "auth.barndoor.ai",
		Audience:        "https://barndoor.ai/",
		ValidatesTokens: true,
	},
	Dev: {
		Name:        Dev,
		APIOrigin:   "https://{{ .Organization }}.mcp.barndoordev.com",
		ProxyOrigin: "https://{{ .Organization }}.mcp.barndoordev.com",
		AuthDomain:  "auth.barndoor.ai",
		Audience:    "https://barndoor.ai/",
	},
	Local: {
		Name:        Local,
		APIOrigin:   "http://localhost:8000",
		ProxyOrigin: "http://proxy-ingress:8080",
		AuthDomain:  "localhost:3001",
		Audience:    "https://barndoor.api/",
	},
}

// aliases map the MODE values used by older tooling onto profiles.
var aliases = map[string]string{
	"production":  Prod,
	"development": Dev,
	"localdev":    Local,
}

// Names returns the canonical environment names, sorted.
func Names() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the profile for name and whether name was known.
// Matching ignores case and surrounding whitespace.
func Lookup(name string) (Profile, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := aliases[key]; ok {
		key = alias
	}
	p, ok := profiles[key]
	return p, ok
}

// Resolve returns the profile for name with overrides applied. Unknown
// or empty names resolve to the prod profile.
func Resolve(name string, ov Overrides) Profile {
	p, ok := Lookup(name)
	if !ok {
		p = profiles[Default]
	}
	if ov.APIOrigin != "" {
		p.APIOrigin = ov.APIOrigin
	}
	if ov.ProxyOrigin != "" {
		p.ProxyOrigin = ov.ProxyOrigin
	}
	return p
}

// RenderAPIOrigin renders the API origin for organization.
func (p Profile) RenderAPIOrigin(organization string) (string, error) {
	return renderOrigin("api", p.APIOrigin, organization)
}

// RenderProxyOrigin renders the MCP proxy origin for organization.
func (p Profile) RenderProxyOrigin(organization string) (string, error) {
	return renderOrigin("proxy", p.ProxyOrigin, organization)
}

// NeedsOrganization reports whether either origin depends on the organization.
func (p Profile) NeedsOrganization() bool {
	return referencesOrganization(p.APIOrigin) || referencesOrganization(p.ProxyOrigin)
}

func referencesOrganization(tmpl string) bool {
	return strings.Contains(tmpl, "Organization") || strings.Contains(tmpl, legacyOrgPlaceholder)
}

func renderOrigin(name, tmpl, organization string) (string, error) {
	if organization == "" && referencesOrganization(tmpl) {
		return "", ErrOrganizationRequired
	}

	tmpl = strings.ReplaceAll(tmpl, legacyOrgPlaceholder, "{{ .Organization }}")
	t, err := template.New(name).Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("invalid %s origin template: %w", name, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, struct{ Organization string }{Organization: organization}); err != nil {
		return "", fmt.Errorf("failed to render %s origin: %w", name, err)
	}
	return strings.TrimRight(strings.TrimSpace(buf.String()), "/"), nil
}
