package discord

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"nesbot/log"
)

var modGateway = log.ModGateway

const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatAck   = 11
)

// interactionQueueLen bounds the number of decoded interactions waiting for
// the dispatch loop. When full, the read pump blocks, which pushes
// backpressure down to the websocket rather than dropping or reordering
// events.
const interactionQueueLen = 64

var (
	gatewayURL       = "wss://gateway.discord.gg/?v=10&encoding=json"
	handshakeTimeout = 30 * time.Second
)

// Gateway is a live connection to the Discord gateway, yielding component
// interactions in arrival order.
type Gateway struct {
	conn   *websocket.Conn
	events chan *Interaction

	wmu    sync.Mutex
	seq    atomic.Int64
	cancel context.CancelFunc
	grp    *errgroup.Group
}

// ConnectGateway dials the gateway, performs the hello/identify handshake
// and starts the heartbeat and read pumps.
func ConnectGateway(ctx context.Context, token string) (*Gateway, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, gatewayURL, nil)
	if err != nil {
		return nil, fmt.Errorf("gateway dial failed: %w", err)
	}

	gw := &Gateway{
		conn:   conn,
		events: make(chan *Interaction, interactionQueueLen),
	}

	interval, err := gw.readHello()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := gw.identify(token); err != nil {
		conn.Close()
		return nil, err
	}

	gctx, cancel := context.WithCancel(ctx)
	gw.cancel = cancel
	gw.grp, gctx = errgroup.WithContext(gctx)
	gw.grp.Go(func() error { return gw.heartbeats(gctx, interval) })
	gw.grp.Go(func() error { return gw.readPump(gctx) })

	modGateway.InfoZ("gateway connected").Duration("heartbeat", interval).End()
	return gw, nil
}

// Events returns the interaction stream. The channel is closed when the
// gateway disconnects.
func (gw *Gateway) Events() <-chan *Interaction {
	return gw.events
}

// Close tears the connection down and waits for the pumps to exit.
func (gw *Gateway) Close() error {
	gw.cancel()
	gw.conn.Close()
	err := gw.grp.Wait()
	if err == context.Canceled {
		err = nil
	}
	return err
}

func (gw *Gateway) readHello() (time.Duration, error) {
	// A peer that accepts the dial but never speaks must not hang the
	// connect path.
	gw.conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer gw.conn.SetReadDeadline(time.Time{})

	_, data, err := gw.conn.ReadMessage()
	if err != nil {
		return 0, fmt.Errorf("gateway hello read failed: %w", err)
	}
	op, _, d, _, err := decodeGatewayPayload(data)
	if err != nil {
		return 0, err
	}
	if op != opHello {
		return 0, fmt.Errorf("gateway: expected hello, got op %d", op)
	}

	var intervalMs int64
	dec := jx.DecodeBytes(d)
	if err := dec.Obj(func(dec *jx.Decoder, key string) error {
		if key == "heartbeat_interval" {
			v, err := dec.Int64()
			intervalMs = v
			return err
		}
		return dec.Skip()
	}); err != nil {
		return 0, fmt.Errorf("malformed hello payload: %w", err)
	}
	return time.Duration(intervalMs) * time.Millisecond, nil
}

func (gw *Gateway) identify(token string) error {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("op")
	e.Int(opIdentify)
	e.FieldStart("d")
	e.ObjStart()
	e.FieldStart("token")
	e.Str(token)
	e.FieldStart("intents")
	e.Int(0)
	e.FieldStart("properties")
	e.ObjStart()
	e.FieldStart("os")
	e.Str("linux")
	e.FieldStart("browser")
	e.Str("nesbot")
	e.FieldStart("device")
	e.Str("nesbot")
	e.ObjEnd()
	e.ObjEnd()
	e.ObjEnd()
	return gw.write(e.Bytes())
}

func (gw *Gateway) write(data []byte) error {
	gw.wmu.Lock()
	defer gw.wmu.Unlock()
	return gw.conn.WriteMessage(websocket.TextMessage, data)
}

func (gw *Gateway) sendHeartbeat() error {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("op")
	e.Int(opHeartbeat)
	e.FieldStart("d")
	if seq := gw.seq.Load(); seq > 0 {
		e.Int64(seq)
	} else {
		e.Null()
	}
	e.ObjEnd()
	return gw.write(e.Bytes())
}

func (gw *Gateway) heartbeats(ctx context.Context, interval time.Duration) error {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			if err := gw.sendHeartbeat(); err != nil {
				return fmt.Errorf("heartbeat send failed: %w", err)
			}
			modGateway.DebugZ("heartbeat sent").End()
		}
	}
}

func (gw *Gateway) readPump(ctx context.Context) error {
	defer close(gw.events)
	for {
		_, data, err := gw.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("gateway read failed: %w", err)
		}

		op, typ, d, seq, err := decodeGatewayPayload(data)
		if err != nil {
			modGateway.WarnZ("undecodable gateway payload").Error("err", err).End()
			continue
		}
		if seq > 0 {
			gw.seq.Store(seq)
		}

		switch op {
		case opDispatch:
			if typ != "INTERACTION_CREATE" {
				modGateway.DebugZ("dispatch ignored").String("type", typ).End()
				continue
			}
			i, err := decodeInteraction(jx.DecodeBytes(d))
			if err != nil {
				modGateway.WarnZ("undecodable interaction").Error("err", err).End()
				continue
			}
			if i == nil {
				// Not a component interaction.
				continue
			}
			select {
			case gw.events <- i:
			case <-ctx.Done():
				return ctx.Err()
			}
		case opHeartbeat:
			if err := gw.sendHeartbeat(); err != nil {
				return fmt.Errorf("requested heartbeat send failed: %w", err)
			}
		case opHeartbeatAck:
			// Nothing to do.
		case opReconnect, opInvalidSession:
			return fmt.Errorf("gateway requested reconnect (op %d)", op)
		default:
			modGateway.DebugZ("gateway op ignored").Int("op", op).End()
		}
	}
}

// decodeGatewayPayload splits a gateway frame into its op code, dispatch
// type, inner data and sequence number.
func decodeGatewayPayload(data []byte) (op int, typ string, d jx.Raw, seq int64, err error) {
	dec := jx.DecodeBytes(data)
	err = dec.Obj(func(dec *jx.Decoder, key string) error {
		switch key {
		case "op":
			v, err := dec.Int()
			op = v
			return err
		case "t":
			if dec.Next() == jx.Null {
				return dec.Null()
			}
			s, err := dec.Str()
			typ = s
			return err
		case "s":
			if dec.Next() == jx.Null {
				return dec.Null()
			}
			v, err := dec.Int64()
			seq = v
			return err
		case "d":
			raw, err := dec.Raw()
			d = raw
			return err
		default:
			return dec.Skip()
		}
	})
	return op, typ, d, seq, err
}
