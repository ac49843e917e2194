package statuspage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/sync/errgroup"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 1 * time.Second

	// The rate at which updates are pushed to a client, so as not to overburden it.
	pubResolution  = time.Millisecond * 100
	pingResolution = time.Millisecond * 200
	// Encompasses the number of pings to tolerate losing before concluding
	// the peer is gone.
	pongWait = pingResolution * 4

	readDeadline  = time.Second
	writeDeadline = time.Second
)

var upgrader = websocket.Upgrader{}

// ErrPongDeadlineExceeded signals a client disconnect detected by the
// liveness check rather than a read/write error.
var ErrPongDeadlineExceeded = errors.New("client disconnect, pong deadline exceeded")

// ErrSockCongestion indicates too many waiters on the socket for a given op.
var ErrSockCongestion = errors.New("sock op failed due to congestion")

// wsClient publishes Update snapshots to one connected browser over a
// websocket connection. An update arriving within pubResolution of the
// previous send is dropped, not queued; the next update to arrive after
// that window is sent. Since an Update is always a complete snapshot of
// current state rather than a delta, a dropped one carries nothing a later
// one lacks.
type wsClient struct {
	updates <-chan Update
	ws      *websock
	rootCtx context.Context
}

// newWSClient upgrades the request to a websocket and returns a client
// publishing from updates.
func newWSClient(updates <-chan Update, w http.ResponseWriter, r *http.Request) (*wsClient, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, err
	}
	return &wsClient{
		updates: updates,
		ws:      newWebsock(conn),
		rootCtx: r.Context(),
	}, nil
}

// sync runs the read loop, ping/pong liveness check, and publish loop
// concurrently until the client disconnects or one of them errors.
func (cli *wsClient) sync() error {
	group, groupCtx := errgroup.WithContext(cli.rootCtx)
	group.Go(func() error { return cli.readMessages(groupCtx) })
	group.Go(func() error { return cli.pingPong(groupCtx) })
	group.Go(func() error { return cli.publish(groupCtx) })
	return group.Wait()
}

// pingPong pings the peer on pingResolution and watches for pong replies,
// closing the connection if none arrive within pongWait. Requires
// readMessages to be running concurrently so the pong handler fires.
func (cli *wsClient) pingPong(ctx context.Context) error {
	pong := make(chan struct{})
	defer close(pong)
	cli.ws.conn.SetPongHandler(func(_ string) error {
		pong <- struct{}{}
		return nil
	})

	pinger := channerics.NewTicker(ctx.Done(), pingResolution)
	lastPong := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pinger:
			if time.Since(lastPong) > pongWait {
				return ErrPongDeadlineExceeded
			}
			if err := cli.ping(ctx); err != nil {
				return err
			}
		case <-pong:
			lastPong = time.Now()
		}
	}
}

func (cli *wsClient) ping(ctx context.Context) error {
	return cli.ws.write(ctx, func(ws *websocket.Conn) error {
		return ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
	})
}

// readMessages drains (and discards) any client-sent frames; this page is
// push-only, but the read pump must run for control frames (pongs, close)
// to be processed. Any read error is terminal.
func (cli *wsClient) readMessages(ctx context.Context) error {
	for {
		err := cli.ws.read(ctx, func(ws *websocket.Conn) error {
			_, _, readErr := ws.ReadMessage()
			return readErr
		})
		if err != nil {
			return err
		}
	}
}

func (cli *wsClient) publish(ctx context.Context) error {
	lastSync := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-cli.updates:
			if !ok {
				return nil
			}
			if time.Since(lastSync) < pubResolution {
				break
			}
			lastSync = time.Now()
			err := cli.ws.write(ctx, func(ws *websocket.Conn) error {
				if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
					return fmt.Errorf("failed to set deadline: %w", err)
				}
				return ws.WriteJSON(update)
			})
			if err != nil {
				return err
			}
		}
	}
}

// websock serializes reads and writes to the underlying connection, which
// gorilla/websocket requires have at most one concurrent reader and one
// concurrent writer.
type websock struct {
	readSem  chan struct{}
	writeSem chan struct{}
	conn     *websocket.Conn
}

func newWebsock(conn *websocket.Conn) *websock {
	return &websock{
		readSem:  make(chan struct{}, 1),
		writeSem: make(chan struct{}, 1),
		conn:     conn,
	}
}

func (sock *websock) read(ctx context.Context, fn func(*websocket.Conn) error) error {
	select {
	case <-ctx.Done():
		return nil
	case sock.readSem <- struct{}{}:
		defer func() { <-sock.readSem }()
		return fn(sock.conn)
	case <-time.After(readDeadline):
		return ErrSockCongestion
	}
}

func (sock *websock) write(ctx context.Context, fn func(*websocket.Conn) error) error {
	select {
	case <-ctx.Done():
		return nil
	case sock.writeSem <- struct{}{}:
		defer func() { <-sock.writeSem }()
		return fn(sock.conn)
	case <-time.After(writeDeadline):
		return ErrSockCongestion
	}
}
