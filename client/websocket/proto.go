package websocket

import (
	"encoding/json"

	"ekiden-sdk-go/common"
)

// Wire message types. Requests flow client to server, responses the other
// way; both carry the type in a "type" field.
const (
	msgTypePing        = "ping"
	msgTypeSubscribe   = "subscribe"
	msgTypeUnsubscribe = "unsubscribe"

	msgTypePong         = "pong"
	msgTypeSubscribed   = "subscribed"
	msgTypeUnsubscribed = "unsubscribed"
	msgTypeEvent        = "event"
	msgTypeError        = "error"
)

// wsRequest is any client-to-server frame. Channel is set for subscribe and
// unsubscribe, empty for ping.
type wsRequest struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
}

// wsResponse is any server-to-client frame. Which fields are set depends on
// Type: Channel and Data for "event", Channel for "subscribed" and
// "unsubscribed", Message for "error".
type wsResponse struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

func pingRequest() wsRequest {
	return wsRequest{Type: msgTypePing}
}

func subscribeRequest(channel string) wsRequest {
	return wsRequest{Type: msgTypeSubscribe, Channel: channel}
}

func unsubscribeRequest(channel string) wsRequest {
	return wsRequest{Type: msgTypeUnsubscribe, Channel: channel}
}

// decodeEvent parses the data payload of an "event" frame.
func decodeEvent(data json.RawMessage) (common.Event, error) {
	var ev common.Event
	err := json.Unmarshal(data, &ev)
	return ev, err
}
