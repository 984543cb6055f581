// Package config loads and validates connection profiles. Validation is
// eager: a profile that reaches the bridge has already been defaulted and
// checked.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultConnectTimeout bounds the socket dial and handshake.
	DefaultConnectTimeout = 120 * time.Second
	// DefaultCloseTimeout bounds the closing handshake.
	DefaultCloseTimeout = 120 * time.Second
)

// Profile is the external configuration for one connection: endpoint,
// credentials, timeouts and retry policy. Nothing here is process-wide;
// every connection carries its own copy.
type Profile struct {
	// Host is the control-plane base URL used for token retrieval.
	Host string `mapstructure:"host"`

	// Endpoint is the websocket connect URL of the execution session.
	Endpoint string `mapstructure:"endpoint"`

	// Schema is the target schema. The engine treats database and schema
	// as the same thing, so Database must be empty or equal to Schema.
	Schema   string `mapstructure:"schema"`
	Database string `mapstructure:"database"`

	Instance string `mapstructure:"instance"`
	User     string `mapstructure:"user"`
	APIKey   string `mapstructure:"apikey"`

	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	CloseTimeout   time.Duration `mapstructure:"close_timeout"`

	// QueryTimeout bounds each remote execution. Zero leaves the bound to
	// the remote engine's own query timeout.
	QueryTimeout time.Duration `mapstructure:"query_timeout"`

	// ConnectRetries is the number of additional open attempts after the
	// first failure.
	ConnectRetries int `mapstructure:"connect_retries"`

	// RetryAll retries every open failure, not only ones classified as
	// retryable.
	RetryAll bool `mapstructure:"retry_all"`

	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify"`

	// ServerSideParameters are forwarded to the session verbatim; keys and
	// values are always strings regardless of how the profile spells them.
	ServerSideParameters map[string]string `mapstructure:"server_side_parameters"`
}

// Load reads a profile file (any format viper understands), applies
// defaults and validates it.
func Load(path string) (*Profile, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read profile %s: %w", path, err)
	}

	var p Profile
	if err := v.Unmarshal(&p); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}

	// Stringify server-side parameters whatever their source type.
	if raw := v.GetStringMap("server_side_parameters"); len(raw) > 0 {
		p.ServerSideParameters = make(map[string]string, len(raw))
		for key, value := range raw {
			p.ServerSideParameters[key] = fmt.Sprintf("%v", value)
		}
	}

	p.ApplyDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ApplyDefaults fills unset fields.
func (p *Profile) ApplyDefaults() {
	if p.ConnectTimeout == 0 {
		p.ConnectTimeout = DefaultConnectTimeout
	}
	if p.CloseTimeout == 0 {
		p.CloseTimeout = DefaultCloseTimeout
	}
	if p.ServerSideParameters == nil {
		p.ServerSideParameters = map[string]string{}
	}
}

// Validate checks required fields and normalizes the host.
func (p *Profile) Validate() error {
	if p.Endpoint == "" {
		return fmt.Errorf("profile must specify endpoint")
	}
	if p.Schema == "" {
		return fmt.Errorf("profile must specify schema")
	}
	if p.Database != "" && p.Database != p.Schema {
		return fmt.Errorf("database must be omitted or equal to schema (schema: %s, database: %s)", p.Schema, p.Database)
	}
	p.Database = ""
	p.Host = strings.TrimRight(p.Host, "/")
	if p.ConnectRetries < 0 {
		return fmt.Errorf("connect_retries must not be negative")
	}
	return nil
}
