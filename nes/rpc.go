package nes

import (
	"fmt"
	"net"
	"net/http"
	"net/rpc"
	"time"

	"nesbot/log"
)

var modRPC = log.ModRPC

// consoleProxy adapts a Console to the net/rpc method shape.
type consoleProxy struct {
	console Console
}

type Pads struct {
	P1, P2 uint8
}

func (cp *consoleProxy) StepFrame(_ struct{}, _ *struct{}) error { return cp.console.StepFrame() }
func (cp *consoleProxy) Reset(_ struct{}, _ *struct{}) error     { return cp.console.Reset() }

func (cp *consoleProxy) Frame(_ struct{}, reply *[]byte) error {
	f, err := cp.console.Frame()
	if err != nil {
		return err
	}
	*reply = f
	return nil
}

func (cp *consoleProxy) Peek(addr uint16, reply *byte) error {
	v, err := cp.console.Peek(addr)
	if err != nil {
		return err
	}
	*reply = v
	return nil
}

func (cp *consoleProxy) SetPads(pads Pads, _ *struct{}) error {
	return cp.console.SetPads(pads.P1, pads.P2)
}

// IsReady reports whether the console can be driven. Registration happens
// after the console is fully constructed, so a reachable server is ready.
func (cp *consoleProxy) IsReady(_ struct{}, reply *bool) error {
	*reply = cp.console != nil
	return nil
}

type Server struct {
	ln net.Listener
}

// NewServer exposes console over HTTP/RPC on the given address. Emulator
// processes call this to make themselves drivable by the bot.
func NewServer(addr string, console Console) (*Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName("console", &consoleProxy{console: console}); err != nil {
		return nil, fmt.Errorf("failed to register console RPC: %w", err)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle(rpc.DefaultRPCPath, srv)

	modRPC.InfoZ("console rpc server listening").String("addr", ln.Addr().String()).End()
	go http.Serve(ln, mux)
	return &Server{ln: ln}, nil
}

func (s *Server) Addr() string { return s.ln.Addr().String() }
func (s *Server) Close() error { return s.ln.Close() }

// Client drives a remote console over RPC. It implements Console.
type Client struct {
	client *rpc.Client
}

var _ Console = (*Client)(nil)

// Dial connects to a console RPC server, retrying for a short while to let
// a freshly launched emulator process come up.
func Dial(addr string) (*Client, error) {
	var (
		client *rpc.Client
		err    error
	)
	const maxretries = 5
	for i := 0; i < maxretries; i++ {
		if client, err = rpc.DialHTTP("tcp", addr); err == nil {
			break
		}
		client = nil
		modRPC.WarnZ("console dial failed").Error("err", err).Int("retry", i).End()
		time.Sleep(250 * time.Millisecond)
	}

	if client == nil {
		return nil, fmt.Errorf("console dial failed after max retries: %w", err)
	}

	// The server may accept connections before the console finished loading.
	for i := 0; i < maxretries; i++ {
		var ready bool
		if err = client.Call("console.IsReady", struct{}{}, &ready); err != nil {
			client.Close()
			return nil, fmt.Errorf("console readiness check failed: %w", err)
		}
		if ready {
			return &Client{client: client}, nil
		}
		modRPC.WarnZ("console not ready").Int("retry", i).End()
		time.Sleep(250 * time.Millisecond)
	}

	client.Close()
	return nil, fmt.Errorf("console not ready after max retries")
}

func (c *Client) Close() error {
	modRPC.DebugZ("closing console rpc client").End()
	return c.client.Close()
}

func (c *Client) StepFrame() error {
	return c.client.Call("console.StepFrame", struct{}{}, &struct{}{})
}

func (c *Client) Frame() (Frame, error) {
	var buf []byte
	if err := c.client.Call("console.Frame", struct{}{}, &buf); err != nil {
		return nil, err
	}
	return Frame(buf), nil
}

func (c *Client) Reset() error {
	return c.client.Call("console.Reset", struct{}{}, &struct{}{})
}

func (c *Client) Peek(addr uint16) (byte, error) {
	var v byte
	if err := c.client.Call("console.Peek", addr, &v); err != nil {
		return 0, err
	}
	return v, nil
}

func (c *Client) SetPads(pad1, pad2 uint8) error {
	return c.client.Call("console.SetPads", Pads{P1: pad1, P2: pad2}, &struct{}{})
}

// UnusedPort returns a free TCP port on localhost.
func UnusedPort() int {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		panic("pickUnusedPort failed: " + err.Error())
	}
	port := l.Addr().(*net.TCPAddr).Port
	if err := l.Close(); err != nil {
		panic("pickUnusedPort failed: " + err.Error())
	}
	return port
}
