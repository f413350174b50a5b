package connect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/golang/glog"
)

var ErrTransportClosed = errors.New("Transport closed.")

// a duplex text connection to the controller.
// `Receive` is closed once the connection ends.
type Transport interface {
	Send(ctx context.Context, message []byte) error
	Receive() <-chan []byte
	Close()
}

type WsTransportSettings struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// the connection ends when nothing, including a pong, is read in this time
	ReadTimeout       time.Duration
	PingTimeout       time.Duration
	SendBufferSize    int
	ReceiveBufferSize int
	MaxMessageSize    int64
}

func DefaultWsTransportSettings() *WsTransportSettings {
	return &WsTransportSettings{
		HandshakeTimeout:  5 * time.Second,
		WriteTimeout:      5 * time.Second,
		ReadTimeout:       30 * time.Second,
		PingTimeout:       10 * time.Second,
		SendBufferSize:    16,
		ReceiveBufferSize: 16,
		MaxMessageSize:    4 * 1024 * 1024,
	}
}

type WsTransport struct {
	ctx    context.Context
	cancel context.CancelFunc

	transportId Id
	ws          *websocket.Conn

	send    chan []byte
	receive chan []byte

	settings *WsTransportSettings
}

// `ctx` bounds the lifetime of the transport. The handshake is bounded by the settings.
// A non-empty `token` is sent as a bearer token on the upgrade request.
func DialWsTransport(ctx context.Context, url string, token string, settings *WsTransportSettings) (*WsTransport, error) {
	header := http.Header{}
	if token != "" {
		if err := CheckBearerToken(token, time.Now()); err != nil {
			return nil, err
		}
		header.Set("Authorization", "Bearer "+token)
	}

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: settings.HandshakeTimeout,
	}
	ws, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("Could not connect to %s: %w", url, err)
	}
	return NewWsTransport(ctx, ws, settings), nil
}

func NewWsTransport(ctx context.Context, ws *websocket.Conn, settings *WsTransportSettings) *WsTransport {
	cancelCtx, cancel := context.WithCancel(ctx)
	transport := &WsTransport{
		ctx:         cancelCtx,
		cancel:      cancel,
		transportId: NewId(),
		ws:          ws,
		send:        make(chan []byte, settings.SendBufferSize),
		receive:     make(chan []byte, settings.ReceiveBufferSize),
		settings:    settings,
	}
	go transport.run()
	return transport
}

func (self *WsTransport) run() {
	go func() {
		defer self.cancel()

		pingTicker := time.NewTicker(self.settings.PingTimeout)
		defer pingTicker.Stop()

		for {
			select {
			case <-self.ctx.Done():
				return
			case message := <-self.send:
				self.ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
				if err := self.ws.WriteMessage(websocket.TextMessage, message); err != nil {
					// note that for websocket a deadline timeout cannot be recovered
					glog.Infof("[ts]%s-> error = %s\n", self.transportId, err)
					return
				}
				glog.V(2).Infof("[ts]%s-> %d\n", self.transportId, len(message))
			case <-pingTicker.C:
				// a control frame. An empty text message is not a valid frame for the controller
				deadline := time.Now().Add(self.settings.WriteTimeout)
				if err := self.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					glog.Infof("[ts]%s ping error = %s\n", self.transportId, err)
					return
				}
			}
		}
	}()

	go func() {
		defer func() {
			self.cancel()
			close(self.receive)
		}()

		self.ws.SetReadLimit(self.settings.MaxMessageSize)
		self.ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
		self.ws.SetPongHandler(func(string) error {
			glog.V(2).Infof("[tr]pong %s<-\n", self.transportId)
			return self.ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
		})

		for {
			messageType, message, err := self.ws.ReadMessage()
			if err != nil {
				select {
				case <-self.ctx.Done():
				default:
					glog.Infof("[tr]%s<- error = %s\n", self.transportId, err)
				}
				return
			}
			self.ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))

			switch messageType {
			case websocket.TextMessage:
				if len(message) == 0 {
					continue
				}
				select {
				case <-self.ctx.Done():
					return
				case self.receive <- message:
					glog.V(2).Infof("[tr]%s<- %d\n", self.transportId, len(message))
				}
			default:
				glog.V(2).Infof("[tr]other=%d %s<-\n", messageType, self.transportId)
			}
		}
	}()

	<-self.ctx.Done()
	self.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(self.settings.WriteTimeout),
	)
	self.ws.Close()
}

func (self *WsTransport) Send(ctx context.Context, message []byte) error {
	select {
	case <-self.ctx.Done():
		return ErrTransportClosed
	default:
	}
	select {
	case <-self.ctx.Done():
		return ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	case self.send <- message:
		return nil
	}
}

func (self *WsTransport) Receive() <-chan []byte {
	return self.receive
}

func (self *WsTransport) Done() <-chan struct{} {
	return self.ctx.Done()
}

func (self *WsTransport) Close() {
	self.cancel()
}
