package registry

// Connection status values reported by the registry.
const (
	StatusAvailable = "available"
	StatusPending   = "pending"
	StatusConnected = "connected"
)

// ServerSummary is a server entry as returned by the list endpoint.
type ServerSummary struct {
	ID               string `json:"id" yaml:"id"`
	Name             string `json:"name" yaml:"name"`
	Slug             string `json:"slug" yaml:"slug"`
	Provider         string `json:"provider,omitempty" yaml:"provider,omitempty"`
	ConnectionStatus string `json:"connection_status" yaml:"connectionStatus"`
}

// IsConnected reports whether the user has completed the server's OAuth flow.
func (s ServerSummary) IsConnected() bool {
	return s.ConnectionStatus == StatusConnected
}

// ServerDetail is the full record for a single server.
type ServerDetail struct {
	ServerSummary `yaml:",inline"`

	URL         string `json:"url,omitempty" yaml:"url,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	CreatedAt   string `json:"created_at,omitempty" yaml:"createdAt,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty" yaml:"updatedAt,omitempty"`
}

// ConnectionInit is returned when a server connection is initiated. The
// user completes the connection by visiting AuthURL.
type ConnectionInit struct {
	ConnectionID string `json:"connection_id,omitempty" yaml:"connectionId,omitempty"`
	AuthURL      string `json:"auth_url" yaml:"authUrl"`
	State        string `json:"state,omitempty" yaml:"state,omitempty"`
}

type connectionStatusResponse struct {
	Status string `json:"status"`
}

type tokenValidationResponse struct {
	Valid bool `json:"valid"`
}
