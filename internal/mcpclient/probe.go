// Package mcpclient checks that a set of connection parameters actually
// reaches an MCP server through the barndoor proxy.
package mcpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/barndoor/barndoor-cli/internal/connection"
	"github.com/barndoor/barndoor-cli/pkg/logging"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// ProtocolVersion is the MCP protocol version offered during initialize.
const ProtocolVersion = "2024-11-05"

// DefaultProbeTimeout bounds a whole probe.
const DefaultProbeTimeout = 30 * time.Second

// ErrUnsupportedTransport is returned for parameters whose transport the
// probe cannot speak.
var ErrUnsupportedTransport = errors.New("unsupported transport")

// ErrUnauthorized is returned when the proxy rejects the access token.
var ErrUnauthorized = errors.New("the MCP proxy rejected the access token; run 'barndoor auth login'")

// ProbeResult describes the server that answered a probe.
type ProbeResult struct {
	ServerName      string   `json:"serverName" yaml:"serverName"`
	ServerVersion   string   `json:"serverVersion,omitempty" yaml:"serverVersion,omitempty"`
	ProtocolVersion string   `json:"protocolVersion" yaml:"protocolVersion"`
	Tools           []string `json:"tools" yaml:"tools"`
}

// ProbeOption configures Probe.
type ProbeOption func(*probeOptions)

type probeOptions struct {
	name       string
	version    string
	timeout    time.Duration
	httpClient *http.Client
}

// WithClientInfo sets the client name and version sent during initialize.
func WithClientInfo(name, version string) ProbeOption {
	return func(o *probeOptions) {
		o.name = name
		o.version = version
	}
}

// WithTimeout overrides DefaultProbeTimeout.
func WithTimeout(d time.Duration) ProbeOption {
	return func(o *probeOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithHTTPClient sets the HTTP client the transport uses.
func WithHTTPClient(c *http.Client) ProbeOption {
	return func(o *probeOptions) { o.httpClient = c }
}

// Probe connects to the MCP server described by params, performs the
// initialize handshake and lists its tools. The connection is closed
// before Probe returns.
func Probe(ctx context.Context, params *connection.Parameters, opts ...ProbeOption) (*ProbeResult, error) {
	if params == nil {
		return nil, errors.New("connection parameters are required")
	}
	if params.Transport != "" && params.Transport != connection.TransportStreamableHTTP {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTransport, params.Transport)
	}

	o := probeOptions{
		name:    "barndoor-cli",
		version: "dev",
		timeout: DefaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	var transportOpts []transport.StreamableHTTPCOption
	if len(params.Headers) > 0 {
		transportOpts = append(transportOpts, transport.WithHTTPHeaders(params.Headers))
	}
	if o.httpClient != nil {
		transportOpts = append(transportOpts, transport.WithHTTPBasicClient(o.httpClient))
	}

	logging.Debug("MCPClient", "Probing %s", params.URL)

	mcpClient, err := client.NewStreamableHttpClient(params.URL, transportOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create streamable HTTP client: %w", err)
	}
	defer mcpClient.Close()

	if err := mcpClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start streamable HTTP client: %w", err)
	}

	initResult, err := mcpClient.Initialize(ctx, mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: ProtocolVersion,
			ClientInfo: mcp.Implementation{
				Name:    o.name,
				Version: o.version,
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	})
	if err != nil {
		if isUnauthorized(err) {
			return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}
		return nil, fmt.Errorf("failed to initialize MCP protocol: %w", err)
	}

	result := &ProbeResult{
		ServerName:      initResult.ServerInfo.Name,
		ServerVersion:   initResult.ServerInfo.Version,
		ProtocolVersion: initResult.ProtocolVersion,
		Tools:           []string{},
	}

	if initResult.Capabilities.Tools != nil {
		tools, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			return nil, fmt.Errorf("failed to list tools: %w", err)
		}
		for _, tool := range tools.Tools {
			result.Tools = append(result.Tools, tool.Name)
		}
		sort.Strings(result.Tools)
	}

	logging.Debug("MCPClient", "Server %s %s answered with %d tools",
		result.ServerName, result.ServerVersion, len(result.Tools))

	return result, nil
}

// isUnauthorized reports whether err is the transport's rendering of a 401.
func isUnauthorized(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "401") || strings.Contains(strings.ToLower(msg), "unauthorized")
}
