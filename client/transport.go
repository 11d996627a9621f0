package client

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/yamux"
)

// MessageKind distinguishes protocol frames from chat lines.
type MessageKind uint8

const (
	BinaryMessage MessageKind = iota + 1
	TextMessage
)

const (
	writeWait = 10 * time.Second

	// maxFrameLen bounds a single frame on the mux transport.
	maxFrameLen = 1 << 20
)

var ErrFrameTooLarge = errors.New("client: frame too large")

// Transport carries whole messages. ReadMessage is called from a single
// goroutine; WriteMessage may be called concurrently.
type Transport interface {
	ReadMessage() (MessageKind, []byte, error)
	WriteMessage(kind MessageKind, data []byte) error
	Close() error
}

// pinger is implemented by transports that surface keepalive pings.
type pinger interface {
	OnPing(func())
}

type wsTransport struct {
	conn *websocket.Conn
	mu   sync.Mutex // serializes writers
}

// DialWebsocket connects to a canvas server over a websocket.
func DialWebsocket(ctx context.Context, url string) (Transport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", url, err)
	}
	return &wsTransport{conn: conn}, nil
}

func (t *wsTransport) ReadMessage() (MessageKind, []byte, error) {
	for {
		mt, data, err := t.conn.ReadMessage()
		if err != nil {
			return 0, nil, err
		}
		switch mt {
		case websocket.BinaryMessage:
			return BinaryMessage, data, nil
		case websocket.TextMessage:
			return TextMessage, data, nil
		}
	}
}

func (t *wsTransport) WriteMessage(kind MessageKind, data []byte) error {
	mt := websocket.BinaryMessage
	if kind == TextMessage {
		mt = websocket.TextMessage
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return t.conn.WriteMessage(mt, data)
}

// OnPing answers pings as usual and then calls f.
func (t *wsTransport) OnPing(f func()) {
	t.conn.SetPingHandler(func(appData string) error {
		err := t.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			return err
		}
		f()
		return nil
	})
}

func (t *wsTransport) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return t.conn.Close()
}

// muxTransport frames messages on a yamux stream as
// [u8 kind][u32 big-endian length][payload].
type muxTransport struct {
	sess   *yamux.Session
	stream net.Conn
	r      *bufio.Reader

	mu sync.Mutex
}

// NewMuxTransport opens a message stream on conn, for canvas relays that
// multiplex several clients over one connection.
func NewMuxTransport(conn net.Conn) (Transport, error) {
	sess, err := yamux.Client(conn, nil)
	if err != nil {
		return nil, err
	}
	stream, err := sess.Open()
	if err != nil {
		sess.Close()
		return nil, err
	}
	return newMuxTransport(sess, stream), nil
}

// AcceptMuxTransport is the relay side of NewMuxTransport.
func AcceptMuxTransport(conn net.Conn) (Transport, error) {
	sess, err := yamux.Server(conn, nil)
	if err != nil {
		return nil, err
	}
	stream, err := sess.Accept()
	if err != nil {
		sess.Close()
		return nil, err
	}
	return newMuxTransport(sess, stream), nil
}

func newMuxTransport(sess *yamux.Session, stream net.Conn) *muxTransport {
	return &muxTransport{
		sess:   sess,
		stream: stream,
		r:      bufio.NewReader(stream),
	}
}

func (t *muxTransport) ReadMessage() (MessageKind, []byte, error) {
	var hdr [5]byte
	if _, err := io.ReadFull(t.r, hdr[:]); err != nil {
		return 0, nil, err
	}
	n := binary.BigEndian.Uint32(hdr[1:])
	if n > maxFrameLen {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(t.r, data); err != nil {
		return 0, nil, err
	}
	return MessageKind(hdr[0]), data, nil
}

func (t *muxTransport) WriteMessage(kind MessageKind, data []byte) error {
	if len(data) > maxFrameLen {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(data))
	}
	buf := make([]byte, 5+len(data))
	buf[0] = byte(kind)
	binary.BigEndian.PutUint32(buf[1:], uint32(len(data)))
	copy(buf[5:], data)

	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := t.stream.Write(buf)
	return err
}

func (t *muxTransport) Close() error {
	t.stream.Close()
	return t.sess.Close()
}
