// Package environment maps a deployment name (prod, dev, local) to the
// origins of the barndoor API and MCP proxy.
//
// The mapping is a lookup table. Unknown names resolve to prod, and
// explicit origin overrides take precedence over the table.
package environment
