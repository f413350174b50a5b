package connect

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type WebsocketSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Path string `json:"path"`
	Tls  bool   `json:"tls"`
}

// in seconds. Zero keeps the default.
type TimeoutSettings struct {
	Call      float64 `json:"call"`
	Handshake float64 `json:"handshake"`
	Write     float64 `json:"write"`
	Read      float64 `json:"read"`
	Ping      float64 `json:"ping"`
}

type ClientSettings struct {
	Websocket WebsocketSettings `json:"websocket"`
	// overrides `Websocket` when set
	RawUrl        string          `json:"url"`
	Token         string          `json:"token"`
	CallKeyPolicy CallKeyPolicy   `json:"callKeyPolicy"`
	Timeouts      TimeoutSettings `json:"timeouts"`
}

func DefaultClientSettings() *ClientSettings {
	return &ClientSettings{
		Websocket: WebsocketSettings{
			Host: "localhost",
			Port: 8080,
			Path: "/",
		},
		CallKeyPolicy: CallKeyQueue,
		Timeouts: TimeoutSettings{
			Call: 15,
		},
	}
}

// overlays the json file at `path` on the defaults
func LoadClientSettings(path string) (*ClientSettings, error) {
	settings := DefaultClientSettings()
	configBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(configBytes, settings); err != nil {
		return nil, fmt.Errorf("Bad config %s: %w", path, err)
	}
	return settings, nil
}

func (self *ClientSettings) Url() (string, error) {
	if self.RawUrl != "" {
		u, err := url.Parse(self.RawUrl)
		if err != nil {
			return "", err
		}
		switch u.Scheme {
		case "ws", "wss":
		default:
			return "", fmt.Errorf("Url scheme must be ws or wss: %s", self.RawUrl)
		}
		return u.String(), nil
	}

	if self.Websocket.Host == "" {
		return "", fmt.Errorf("Websocket host is required.")
	}
	scheme := "ws"
	if self.Websocket.Tls {
		scheme = "wss"
	}
	path := self.Websocket.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	host := self.Websocket.Host
	if 0 < self.Websocket.Port {
		host = host + ":" + strconv.Itoa(self.Websocket.Port)
	}
	u := &url.URL{
		Scheme: scheme,
		Host:   host,
		Path:   path,
	}
	return u.String(), nil
}

func seconds(s float64, defaultTimeout time.Duration) time.Duration {
	if s <= 0 {
		return defaultTimeout
	}
	return time.Duration(s * float64(time.Second))
}

// zero means no timeout
func (self *ClientSettings) CallTimeout() time.Duration {
	return seconds(self.Timeouts.Call, 0)
}

func (self *ClientSettings) WsTransportSettings() *WsTransportSettings {
	transportSettings := DefaultWsTransportSettings()
	transportSettings.HandshakeTimeout = seconds(self.Timeouts.Handshake, transportSettings.HandshakeTimeout)
	transportSettings.WriteTimeout = seconds(self.Timeouts.Write, transportSettings.WriteTimeout)
	transportSettings.ReadTimeout = seconds(self.Timeouts.Read, transportSettings.ReadTimeout)
	transportSettings.PingTimeout = seconds(self.Timeouts.Ping, transportSettings.PingTimeout)
	return transportSettings
}

func (self *ClientSettings) SessionSettings() *SessionSettings {
	sessionSettings := DefaultSessionSettings()
	sessionSettings.CallKeyPolicy = self.CallKeyPolicy
	return sessionSettings
}
