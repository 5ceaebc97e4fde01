package environment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		env       string
		wantName  string
		wantProxy string
	}{
		{name: "prod", env: "prod", wantName: Prod, wantProxy: "https://acme.mcp.barndoor.ai"},
		{name: "dev", env: "dev", wantName: Dev, wantProxy: "https://acme.mcp.barndoordev.com"},
		{name: "local", env: "local", wantName: Local, wantProxy: "http://proxy-ingress:8080"},
		{name: "case and whitespace", env: "  DEV ", wantName: Dev, wantProxy: "https://acme.mcp.barndoordev.com"},
		{name: "legacy mode alias", env: "development", wantName: Dev, wantProxy: "https://acme.mcp.barndoordev.com"},
		{name: "localdev alias", env: "localdev", wantName: Local, wantProxy: "http://proxy-ingress:8080"},
		{name: "empty falls back to prod", env: "", wantName: Prod, wantProxy: "https://acme.mcp.barndoor.ai"},
		{name: "unknown falls back to prod", env: "staging-eu", wantName: Prod, wantProxy: "https://acme.mcp.barndoor.ai"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Resolve(tt.env, Overrides{})
			assert.Equal(t, tt.wantName, p.Name)

			proxy, err := p.RenderProxyOrigin("acme")
			require.NoError(t, err)
			assert.Equal(t, tt.wantProxy, proxy)
		})
	}
}

func TestResolve_UnknownEqualsProd(t *testing.T) {
	assert.Equal(t, Resolve("prod", Overrides{}), Resolve("does-not-exist", Overrides{}))
}

func TestResolve_Overrides(t *testing.T) {
	p := Resolve("prod", Overrides{
		APIOrigin:   "http://localhost:9000/",
		ProxyOrigin: "http://proxy-ingress:8080",
	})

	api, err := p.RenderAPIOrigin("")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000", api)

	proxy, err := p.RenderProxyOrigin("")
	require.NoError(t, err)
	assert.Equal(t, "http://proxy-ingress:8080", proxy)

	// the rest of the profile still comes from the name
	assert.Equal(t, Prod, p.Name)
	assert.Equal(t, "auth.barndoor.ai", p.AuthDomain)
}

func TestRenderOrigin_LegacyPlaceholder(t *testing.T) {
	p := Resolve("dev", Overrides{APIOrigin: "https://{organization_id}.api.example.com"})

	api, err := p.RenderAPIOrigin("acme")
	require.NoError(t, err)
	assert.Equal(t, "https://acme.api.example.com", api)
}

func TestRenderOrigin_SprigFunctions(t *testing.T) {
	p := Resolve("prod", Overrides{ProxyOrigin: "https://{{ .Organization | lower }}.mcp.example.com"})

	proxy, err := p.RenderProxyOrigin("ACME")
	require.NoError(t, err)
	assert.Equal(t, "https://acme.mcp.example.com", proxy)
}

func TestRenderOrigin_OrganizationRequired(t *testing.T) {
	p := Resolve("prod", Overrides{})
	assert.True(t, p.NeedsOrganization())

	_, err := p.RenderProxyOrigin("")
	assert.ErrorIs(t, err, ErrOrganizationRequired)

	local := Resolve("local", Overrides{})
	assert.False(t, local.NeedsOrganization())
}

func TestRenderOrigin_InvalidTemplate(t *testing.T) {
	p := Resolve("prod", Overrides{ProxyOrigin: "https://{{ .Organization "})

	_, err := p.RenderProxyOrigin("acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid proxy origin template")
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"dev", "local", "prod"}, Names())
}
