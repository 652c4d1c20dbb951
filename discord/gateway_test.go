package discord

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"nesbot/log"
)

func init() {
	log.Disable()
}

// fakeGatewayServer upgrades one connection, performs the hello/identify
// handshake and then hands the connection to serve. It stays up until the
// returned stop function is called.
func fakeGatewayServer(t *testing.T, serve func(conn *websocket.Conn)) (url string, stop func()) {
	t.Helper()

	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Error(err)
			return
		}
		defer conn.Close()

		hello := `{"op":10,"d":{"heartbeat_interval":60000}}`
		if err := conn.WriteMessage(websocket.TextMessage, []byte(hello)); err != nil {
			t.Error(err)
			return
		}
		_, identify, err := conn.ReadMessage()
		if err != nil {
			t.Error(err)
			return
		}
		op, _, _, _, err := decodeGatewayPayload(identify)
		if err != nil {
			t.Error(err)
			return
		}
		if op != opIdentify {
			t.Errorf("first client frame op = %d, want %d", op, opIdentify)
			return
		}

		serve(conn)
		<-done
	}))

	url = "ws://" + strings.TrimPrefix(srv.URL, "http://")
	return url, func() {
		close(done)
		srv.Close()
	}
}

func connectTestGateway(t *testing.T, url string) *Gateway {
	t.Helper()

	old := gatewayURL
	gatewayURL = url
	t.Cleanup(func() { gatewayURL = old })

	gw, err := ConnectGateway(context.Background(), "test-token")
	if err != nil {
		t.Fatal(err)
	}
	return gw
}

func interactionFrame(n int) []byte {
	return fmt.Appendf(nil,
		`{"op":0,"t":"INTERACTION_CREATE","s":%d,"d":{"id":"i-%d","type":3,"token":"tok-%d","data":{"custom_id":"btn-%d"}}}`,
		n+1, n, n, n)
}

// The interaction queue is bounded; when the consumer lags, the read pump
// must block on the full queue rather than drop or reorder events. Feeding
// well over a queue's worth before draining must still yield every
// interaction in arrival order.
func TestGatewayQueueBackpressure(t *testing.T) {
	const total = interactionQueueLen + 36

	url, stop := fakeGatewayServer(t, func(conn *websocket.Conn) {
		for i := 0; i < total; i++ {
			if err := conn.WriteMessage(websocket.TextMessage, interactionFrame(i)); err != nil {
				t.Error(err)
				return
			}
		}
	})
	defer stop()

	gw := connectTestGateway(t, url)
	defer gw.Close()

	// Give the read pump time to fill the queue and block before draining.
	time.Sleep(100 * time.Millisecond)

	var got []string
	timeout := time.After(5 * time.Second)
	for len(got) < total {
		select {
		case i, ok := <-gw.Events():
			if !ok {
				t.Fatalf("event stream closed after %d of %d interactions", len(got), total)
			}
			got = append(got, i.CustomID)
		case <-timeout:
			t.Fatalf("timed out after %d of %d interactions", len(got), total)
		}
	}

	for n, id := range got {
		if want := fmt.Sprintf("btn-%d", n); id != want {
			t.Fatalf("interaction %d = %q, want %q", n, id, want)
		}
	}
}

// Non-component dispatches and unrelated events must be filtered out by the
// read pump, not surface on the interaction stream.
func TestGatewayFiltersNonComponentDispatches(t *testing.T) {
	url, stop := fakeGatewayServer(t, func(conn *websocket.Conn) {
		frames := []string{
			`{"op":0,"t":"READY","s":1,"d":{}}`,
			`{"op":0,"t":"INTERACTION_CREATE","s":2,"d":{"id":"i-0","type":2,"token":"t","data":{}}}`,
			`{"op":11,"d":null}`,
			string(interactionFrame(7)),
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				t.Error(err)
				return
			}
		}
	})
	defer stop()

	gw := connectTestGateway(t, url)
	defer gw.Close()

	select {
	case i := <-gw.Events():
		if i.CustomID != "btn-7" {
			t.Errorf("interaction custom id = %q, want btn-7", i.CustomID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the component interaction")
	}

	select {
	case i := <-gw.Events():
		t.Errorf("unexpected extra interaction %q", i.CustomID)
	case <-time.After(50 * time.Millisecond):
	}
}

// A peer that accepts the dial but never sends hello must not hang the
// connect path.
func TestConnectGatewaySilentPeer(t *testing.T) {
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Error(err)
			return
		}
		defer conn.Close()
		<-done
	}))
	defer srv.Close()
	defer close(done)

	oldURL, oldTimeout := gatewayURL, handshakeTimeout
	gatewayURL = "ws://" + strings.TrimPrefix(srv.URL, "http://")
	handshakeTimeout = 100 * time.Millisecond
	defer func() { gatewayURL, handshakeTimeout = oldURL, oldTimeout }()

	if _, err := ConnectGateway(context.Background(), "test-token"); err == nil {
		t.Fatal("ConnectGateway succeeded against a peer that never sent hello")
	}
}
