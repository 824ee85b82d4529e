package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/errors"
)

type eventType int

const (
	eventTypeConnOpened eventType = iota
	eventTypeMsg
)

// websocketEvent represents an event like new opened connection or new
// received websocket message
type websocketEvent struct {
	eventType eventType

	// The fields below are only relevant if eventType is eventTypeMsg
	messageType int
	data        []byte
	err         error
}

// serverTx is an instruction to the test server: send a text frame, send a
// close frame, or drop the connection on the floor.
type serverTx struct {
	data      []byte
	closeCode int
	drop      bool
}

type testServerParams struct {
	rx  <-chan websocketEvent
	tx  chan<- serverTx
	url string
}

func withTestServer(t *testing.T, cb func(tp *testServerParams) error) error {
	// tx and rx are channels to communicate raw websocket messages with the
	// test server: everything received by the server will be delivered to rx,
	// and everything sent to tx will be sent by the server to the client.
	rx := make(chan websocketEvent, 128)
	tx := make(chan serverTx, 128)

	// connLimiter ensures no more than one connection is open at a time, so
	// that a reconnecting client cannot interleave the closure of the old
	// conn with the opening of the new one from the server's point of view.
	connLimiter := make(chan struct{}, 1)

	ts := httptest.NewServer(http.HandlerFunc(getStreamHandler(t, rx, tx, connLimiter)))
	defer ts.Close()

	// Replace the scheme in url to "ws"
	u, err := url.Parse(ts.URL)
	if err != nil {
		return errors.Trace(err)
	}
	u.Scheme = "ws"

	if err := cb(&testServerParams{
		rx:  rx,
		tx:  tx,
		url: u.String(),
	}); err != nil {
		return errors.Trace(err)
	}

	return nil
}

// getStreamHandler returns an http handler which upgrades the connection to
// websocket, forwards events (opened connections and received messages) to
// the rx channel, and performs instructions from the tx channel.
//
// NOTE that only one connection should be opened at a time, since currently
// there's no way to address a particular connection in case there are many.
func getStreamHandler(
	t *testing.T,
	rx chan<- websocketEvent,
	tx <-chan serverTx,
	connLimiter chan struct{},
) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		connLimiter <- struct{}{}
		defer func() {
			<-connLimiter
		}()

		upgrader := websocket.Upgrader{}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Error(err)
			return
		}
		defer ws.Close()

		t.Logf("new websocket conn is opened")

		rx <- websocketEvent{
			eventType: eventTypeConnOpened,
		}

		readerDone := make(chan struct{})
		go func() {
			defer close(readerDone)
			for {
				mt, message, err := ws.ReadMessage()
				t.Logf("websocket rx: type=%d, data=%s, err=%v", mt, message, err)

				rx <- websocketEvent{
					eventType: eventTypeMsg,

					messageType: mt,
					data:        message,
					err:         err,
				}

				if err != nil {
					t.Logf("breaking out of rx loop")
					return
				}
			}
		}()

	txLoop:
		for {
			select {
			case msg := <-tx:
				switch {
				case msg.drop:
					t.Logf("dropping websocket conn")
					// Closing the underlying conn without a close frame
					// makes the client see an abnormal closure.
					ws.UnderlyingConn().Close()
					break txLoop

				case msg.closeCode != 0:
					t.Logf("closing websocket conn with code %d", msg.closeCode)
					ws.WriteControl(
						websocket.CloseMessage,
						websocket.FormatCloseMessage(msg.closeCode, ""),
						time.Now().Add(time.Second),
					)
					break txLoop

				default:
					t.Logf("websocket tx: %s", msg.data)
					if err := ws.WriteMessage(websocket.TextMessage, msg.data); err != nil {
						t.Logf("error writing to websocket: %s", err)
						break txLoop
					}
				}
			case <-readerDone:
				t.Logf("breaking out of tx loop")
				break txLoop
			}
		}

		<-readerDone
	}
}

// waitConnOpen waits till the websocket connection is opened. Read-error
// events left over from a previous conn's teardown are skipped.
func waitConnOpen(t *testing.T, tp *testServerParams) error {
	for {
		select {
		case event := <-tp.rx:
			if event.eventType == eventTypeMsg && event.err != nil {
				continue
			}
			if event.eventType != eventTypeConnOpened {
				return errors.Errorf("expected new conn to be opened, but got %+v", event)
			}
			return nil

		case <-time.After(1 * time.Second):
			return errors.Errorf("new conn wasn't opened")
		}
	}
}

// waitRequest waits for the next text frame from the client and returns it
// parsed as a wsRequest.
func waitRequest(t *testing.T, tp *testServerParams) (wsRequest, error) {
	for {
		select {
		case event := <-tp.rx:
			if event.eventType == eventTypeMsg && event.err != nil {
				continue
			}
			if event.eventType != eventTypeMsg {
				return wsRequest{}, errors.Errorf("expected message, but got %+v", event)
			}

			var req wsRequest
			if err := json.Unmarshal(event.data, &req); err != nil {
				return wsRequest{}, errors.Annotatef(err, "parsing %s", event.data)
			}
			return req, nil

		case <-time.After(1 * time.Second):
			return wsRequest{}, errors.Errorf("no message from the client")
		}
	}
}

// waitSubscribeMsg waits for a subscribe request for the given channel, and
// acks it.
func waitSubscribeMsg(t *testing.T, tp *testServerParams, channel string) error {
	req, err := waitRequest(t, tp)
	if err != nil {
		return errors.Trace(err)
	}

	if req.Type != msgTypeSubscribe || req.Channel != channel {
		return errors.Errorf("want subscribe to %q, got %+v", channel, req)
	}

	tp.tx <- serverTx{data: jsonFrame(t, wsResponse{Type: msgTypeSubscribed, Channel: channel})}
	return nil
}

// sendEvent sends an event frame for the channel with the given payload.
func sendEvent(t *testing.T, tp *testServerParams, channel string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}

	tp.tx <- serverTx{data: jsonFrame(t, wsResponse{
		Type:    msgTypeEvent,
		Channel: channel,
		Data:    data,
	})}
}

func jsonFrame(t *testing.T, v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

// waitStatus waits till the client reaches the given status.
func waitStatus(t *testing.T, client *WSClient, want ConnStatus) error {
	deadline := time.After(1 * time.Second)

	for {
		changed := client.statusChanged()

		if got := client.ConnStatus(); got == want {
			return nil
		}

		select {
		case <-changed:
		case <-deadline:
			return errors.Errorf("want status %s, still %s", want, client.ConnStatus())
		}
	}
}
