package connect

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/go-playground/assert/v2"

	"bringyour.com/railway/protocol"
)

// a minimal controller. `handle` returns the frames to write back for each message.
type testController struct {
	server *httptest.Server

	mutex         sync.Mutex
	authorization []string
	connections   int
}

func newTestController(t *testing.T, handle func(message string) []string) *testController {
	controller := &testController{}
	upgrader := websocket.Upgrader{}
	controller.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		func() {
			controller.mutex.Lock()
			defer controller.mutex.Unlock()
			controller.connections += 1
			controller.authorization = append(controller.authorization, r.Header.Get("Authorization"))
		}()

		// authentication ready
		ws.WriteMessage(websocket.TextMessage, []byte("true"))
		ws.WriteMessage(websocket.BinaryMessage, []byte("GET:TRAIN$binary"))

		for {
			messageType, message, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			for _, out := range handle(string(message)) {
				if out == "" {
					return
				}
				if err := ws.WriteMessage(websocket.TextMessage, []byte(out)); err != nil {
					return
				}
			}
		}
	}))
	return controller
}

func (self *testController) Url() string {
	return "ws" + strings.TrimPrefix(self.server.URL, "http")
}

func (self *testController) Close() {
	self.server.Close()
}

func (self *testController) Connections() int {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.connections
}

func (self *testController) Authorization() []string {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return append([]string{}, self.authorization...)
}

func TestWsTransportCall(t *testing.T) {
	controller := newTestController(t, func(message string) []string {
		switch message {
		case "GET:TRAIN$":
			return []string{`GET:TRAIN$[{"id":2,"name":"b"}]`}
		case "GET:STRETCH$":
			// hang up
			return []string{""}
		default:
			return nil
		}
	})
	defer controller.Close()

	ctx, cancel := contextWithTestTimeout()
	defer cancel()

	tokenStr := testToken(t, gojwt.MapClaims{
		"sub": "operator",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	transport, err := DialWsTransport(ctx, controller.Url(), tokenStr, DefaultWsTransportSettings())
	assert.Equal(t, err, nil)
	session := NewSessionWithDefaults(ctx, transport)
	defer session.Close()

	reply, err := session.Call(ctx, protocol.VerbGet, protocol.ResourceTrain, nil)
	assert.Equal(t, err, nil)
	assert.Equal(t, string(reply), `[{"id":2,"name":"b"}]`)
	assert.Equal(t, controller.Authorization(), []string{"Bearer " + tokenStr})

	// the controller hangs up with the call in flight
	_, err = session.Call(ctx, protocol.VerbGet, protocol.ResourceStretch, nil)
	assert.Equal(t, errors.Is(err, ErrSessionClosed), true)

	select {
	case <-transport.Done():
	case <-time.After(testTimeout):
		t.Fatal("Transport did not close.")
	}
}

func TestWsTransportExpiredToken(t *testing.T) {
	controller := newTestController(t, func(message string) []string {
		return nil
	})
	defer controller.Close()

	ctx, cancel := contextWithTestTimeout()
	defer cancel()

	tokenStr := testToken(t, gojwt.MapClaims{
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	_, err := DialWsTransport(ctx, controller.Url(), tokenStr, DefaultWsTransportSettings())
	assert.Equal(t, errors.Is(err, ErrTokenExpired), true)
	assert.Equal(t, controller.Connections(), 0)
}

func TestWsTransportPing(t *testing.T) {
	controller := newTestController(t, func(message string) []string {
		return nil
	})
	defer controller.Close()

	ctx, cancel := contextWithTestTimeout()
	defer cancel()

	settings := DefaultWsTransportSettings()
	settings.PingTimeout = 20 * time.Millisecond
	settings.ReadTimeout = 200 * time.Millisecond

	transport, err := DialWsTransport(ctx, controller.Url(), "", settings)
	assert.Equal(t, err, nil)
	defer transport.Close()

	// the connect message, the binary message is not delivered
	select {
	case message := <-transport.Receive():
		assert.Equal(t, string(message), "true")
	case <-time.After(testTimeout):
		t.Fatal("No connect message.")
	}

	// pongs keep the connection past the read timeout
	select {
	case <-transport.Done():
		t.Fatal("Transport closed.")
	case message := <-transport.Receive():
		t.Fatalf("Unexpected message: %s", message)
	case <-time.After(4 * settings.ReadTimeout):
	}

	transport.Close()
	select {
	case _, ok := <-transport.Receive():
		assert.Equal(t, ok, false)
	case <-time.After(testTimeout):
		t.Fatal("Receive not closed.")
	}
	assert.Equal(t, errors.Is(transport.Send(ctx, []byte("GET:TRAIN$")), ErrTransportClosed), true)
}

func TestConnect(t *testing.T) {
	controller := newTestController(t, func(message string) []string {
		switch {
		case message == "GET:TRAIN$":
			return []string{`GET:TRAIN$[]`}
		case message == "GET:STRETCH$":
			return []string{`GET:STRETCH$[{"id":1,"name":"a","type":1}]`}
		case message == "GET:SIGNAL$":
			return []string{`GET:SIGNAL$[]`}
		case strings.HasPrefix(message, "INSERT:STRETCH$"):
			return []string{
				`INSERT:STRETCH${"ok":true,"errorCode":0,"extraData":null,"errorMessage":""}`,
				`SERVER_INSERT:STRETCH${"id":2,"name":"b","type":1}`,
			}
		default:
			return nil
		}
	})
	defer controller.Close()

	ctx, cancel := contextWithTestTimeout()
	defer cancel()

	settings := DefaultClientSettings()
	settings.RawUrl = controller.Url()

	client, err := Connect(ctx, settings)
	assert.Equal(t, err, nil)
	defer client.Close()

	assert.Equal(t, client.Load(ctx), nil)
	assert.Equal(t, client.Store().Stretches.Keys(), []int{1})

	notify := client.Store().Stretches.NotifyChannel()
	result, err := client.InsertStretch(ctx, &protocol.Stretch{Name: "b", Type: protocol.StretchTypeOneWaySingleTrack})
	assert.Equal(t, err, nil)
	assert.Equal(t, result.Ok, true)

	// the record arrives with the push
	for client.Store().Stretches.Len() < 2 {
		select {
		case <-notify:
			notify = client.Store().Stretches.NotifyChannel()
		case <-time.After(testTimeout):
			t.Fatal("Push not applied.")
		}
	}
	assert.Equal(t, client.Store().Stretches.Keys(), []int{1, 2})
}
