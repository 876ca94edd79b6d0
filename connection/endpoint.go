package connection

import (
	"errors"
	"net"
	"net/url"
	"strings"
)

// Path of the websocket endpoint relative to the API root.
const channelsPath = "channels"

var errUnsupportedScheme = errors.New("unsupported endpoint scheme")

// NormalizeEndpoint converts the server address into the websocket URL: the scheme http is replaced
// with ws, https with wss, the path is forced to end with /channels and the default port is added
// if missing. An address without a scheme is treated as ws://, or wss:// if secure is set.
func NormalizeEndpoint(endpoint string, secure bool) (*url.URL, error) {
	if !strings.Contains(endpoint, "://") {
		if secure {
			endpoint = "wss://" + endpoint
		} else {
			endpoint = "ws://" + endpoint
		}
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}

	var port string
	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
		port = "80"
	case "https", "wss":
		u.Scheme = "wss"
		port = "443"
	default:
		return nil, errUnsupportedScheme
	}
	if u.Host == "" {
		return nil, errors.New("endpoint host is missing")
	}
	if u.Port() == "" {
		u.Host = net.JoinHostPort(u.Hostname(), port)
	}

	if !strings.HasSuffix(strings.TrimSuffix(u.Path, "/"), "/"+channelsPath) {
		path := u.Path
		if !strings.HasSuffix(path, "/") {
			path += "/"
		}
		u.Path = path + channelsPath
	} else {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	u.RawPath = ""
	return u, nil
}
