package tinode

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	jcr "github.com/tinode/jsonco"
	"github.com/tinode/tinodesdk/store"
	"golang.org/x/text/language"
)

const (
	// Protocol version sent in {hi}.
	protocolVersion = "0.22"
	// Library version sent in the user agent.
	libVersion = "0.22.1"
	libName    = "tinodesdk-go"

	defaultHost          = "localhost:6060"
	defaultKeyPressDelay = 3 * time.Second
)

// Config is the client configuration. It's usually loaded from a JSON file with comments.
type Config struct {
	// Server host and port, or a full URL.
	Host string `json:"host"`
	// API key sent with every connection.
	APIKey string `json:"api_key"`
	// Use TLS.
	Secure bool `json:"secure"`
	// Application name reported in the user agent.
	AppName string `json:"app_name"`
	// Platform code: ios, android, web, cli.
	Platform string `json:"platform"`
	// BCP 47 language tag of the user interface, i.e. "en-US".
	Lang string `json:"lang"`
	// Log in with the saved token after reconnecting.
	AutoLogin bool `json:"auto_login"`
	// Local storage configuration. Nil means in-memory store.
	Store *store.Config `json:"store"`
	// Reconnect automatically when the connection is lost.
	Reconnect bool `json:"reconnect"`
	// Interval between websocket pings in seconds. Zero means default, negative disables pings.
	PingInterval int `json:"ping_interval"`
	// Minimum interval between key press notifications in milliseconds.
	KeyPressDelay int `json:"key_press_delay"`
	// Prefix of the exported metrics names.
	MetricsNamespace string `json:"metrics_namespace"`
}

// LoadConfig reads the configuration from a JSON file which may contain comments.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ParseConfig(file)
}

// ParseConfig reads the configuration from JSON with comments.
func ParseConfig(r io.Reader) (*Config, error) {
	var config Config
	jr := jcr.New(r)
	if err := json.NewDecoder(jr).Decode(&config); err != nil {
		var typeErr *json.UnmarshalTypeError
		var syntaxErr *json.SyntaxError
		switch {
		case errors.As(err, &typeErr):
			lnum, cnum, _ := jr.LineAndChar(typeErr.Offset)
			return nil, fmt.Errorf("config: unmarshal error in %s at %d:%d (offset %d bytes): %w",
				typeErr.Field, lnum, cnum, typeErr.Offset, err)
		case errors.As(err, &syntaxErr):
			lnum, cnum, _ := jr.LineAndChar(syntaxErr.Offset)
			return nil, fmt.Errorf("config: syntax error at %d:%d (offset %d bytes): %w",
				lnum, cnum, syntaxErr.Offset, err)
		default:
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	if c.Lang != "" {
		tag, err := language.Parse(c.Lang)
		if err != nil {
			return fmt.Errorf("config: invalid lang %q: %w", c.Lang, err)
		}
		c.Lang = tag.String()
	}
	if c.Host == "" {
		c.Host = defaultHost
	}
	return nil
}

func (c *Config) keyPressDelay() time.Duration {
	if c.KeyPressDelay > 0 {
		return time.Duration(c.KeyPressDelay) * time.Millisecond
	}
	return defaultKeyPressDelay
}

func (c *Config) pingPeriod() time.Duration {
	if c.PingInterval < 0 {
		return -1
	}
	return time.Duration(c.PingInterval) * time.Second
}

func (c *Config) userAgent() string {
	app := c.AppName
	if app == "" {
		app = "tn-go"
	}
	return app + " (" + libName + "/" + libVersion + ")"
}
