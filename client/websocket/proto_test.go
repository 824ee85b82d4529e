package websocket

import (
	"encoding/json"
	"testing"
)

func TestRequestWireFormat(t *testing.T) {
	cases := []struct {
		req  wsRequest
		want string
	}{
		{pingRequest(), `{"type":"ping"}`},
		{subscribeRequest("trades/0xabc"), `{"type":"subscribe","channel":"trades/0xabc"}`},
		{unsubscribeRequest("user/0xdef"), `{"type":"unsubscribe","channel":"user/0xdef"}`},
	}

	for _, c := range cases {
		data, err := json.Marshal(c.req)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != c.want {
			t.Errorf("want %s, got %s", c.want, data)
		}
	}
}

func TestResponseParsing(t *testing.T) {
	var resp wsResponse
	frame := `{"type":"event","channel":"trades/0xabc","data":{"type":"trade","market_addr":"0xabc","price":10,"size":2,"side":"sell","timestamp":5}}`
	if err := json.Unmarshal([]byte(frame), &resp); err != nil {
		t.Fatal(err)
	}

	if resp.Type != msgTypeEvent || resp.Channel != "trades/0xabc" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	ev, err := decodeEvent(resp.Data)
	if err != nil {
		t.Fatal(err)
	}
	if ev.Trade == nil || ev.Trade.Price != 10 || ev.Trade.Size != 2 {
		t.Fatalf("unexpected event: %s", ev)
	}

	var errResp wsResponse
	if err := json.Unmarshal([]byte(`{"type":"error","message":"unauthorized"}`), &errResp); err != nil {
		t.Fatal(err)
	}
	if errResp.Type != msgTypeError || errResp.Message != "unauthorized" {
		t.Fatalf("unexpected response: %+v", errResp)
	}
}
