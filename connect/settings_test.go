package connect

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestDefaultClientSettingsUrl(t *testing.T) {
	settings := DefaultClientSettings()
	url, err := settings.Url()
	assert.Equal(t, err, nil)
	assert.Equal(t, url, "ws://localhost:8080/")
	assert.Equal(t, settings.CallTimeout(), 15*time.Second)
	assert.Equal(t, settings.SessionSettings().CallKeyPolicy, CallKeyQueue)
}

func TestLoadClientSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	config := `{
		"websocket": {"host": "controller.local", "port": 8443, "path": "ws", "tls": true},
		"callKeyPolicy": "reject",
		"timeouts": {"call": 2.5, "ping": 1}
	}`
	err := os.WriteFile(path, []byte(config), 0600)
	assert.Equal(t, err, nil)

	settings, err := LoadClientSettings(path)
	assert.Equal(t, err, nil)

	url, err := settings.Url()
	assert.Equal(t, err, nil)
	assert.Equal(t, url, "wss://controller.local:8443/ws")
	assert.Equal(t, settings.CallKeyPolicy, CallKeyReject)
	assert.Equal(t, settings.CallTimeout(), 2500*time.Millisecond)

	transportSettings := settings.WsTransportSettings()
	assert.Equal(t, transportSettings.PingTimeout, time.Second)
	// unset timeouts keep the defaults
	assert.Equal(t, transportSettings.WriteTimeout, DefaultWsTransportSettings().WriteTimeout)

	settings.RawUrl = "ws://10.0.0.2:9000/"
	url, err = settings.Url()
	assert.Equal(t, err, nil)
	assert.Equal(t, url, "ws://10.0.0.2:9000/")

	settings.RawUrl = "http://10.0.0.2:9000/"
	_, err = settings.Url()
	assert.NotEqual(t, err, nil)
}

func TestLoadClientSettingsErrors(t *testing.T) {
	_, err := LoadClientSettings(filepath.Join(t.TempDir(), "missing.json"))
	assert.NotEqual(t, err, nil)

	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte(`{"callKeyPolicy": "newest"}`), 0600)
	_, err = LoadClientSettings(path)
	assert.NotEqual(t, err, nil)
}
