package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/errors"

	"ekiden-sdk-go/common"
)

func recvCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 1*time.Second)
}

func TestConnStatusLifecycle(t *testing.T) {
	err := withTestServer(t, func(tp *testServerParams) error {
		client, err := NewWSClient(&WSParams{URL: tp.url})
		if err != nil {
			return errors.Trace(err)
		}

		ctx := context.Background()

		if got := client.ConnStatus(); got != StatusDisconnected {
			return errors.Errorf("want status disconnected, got %s", got)
		}

		if err := client.Connect(ctx); err != nil {
			return errors.Trace(err)
		}

		if err := waitConnOpen(t, tp); err != nil {
			return errors.Errorf("waiting for new conn to be opened: %s", err)
		}

		if err := waitStatus(t, client, StatusConnected); err != nil {
			return errors.Trace(err)
		}

		if !client.IsConnected() {
			return errors.Errorf("IsConnected should be true")
		}

		// Second Connect on an established connection must be rejected.
		if err := client.Connect(ctx); errors.Cause(err) != ErrConnLoopActive {
			return errors.Errorf("want ErrConnLoopActive, got %v", err)
		}

		if err := client.Disconnect(); err != nil {
			return errors.Trace(err)
		}

		if got := client.ConnStatus(); got != StatusDisconnected {
			return errors.Errorf("want status disconnected after Disconnect, got %s", got)
		}

		if err := client.Disconnect(); errors.Cause(err) != ErrNotConnected {
			return errors.Errorf("want ErrNotConnected on second Disconnect, got %v", err)
		}

		if err := client.Ping(ctx); errors.Cause(err) != ErrNotConnected {
			return errors.Errorf("want ErrNotConnected from Ping, got %v", err)
		}

		if _, err := client.Subscribe(ctx, TradesChannel("0xm")); errors.Cause(err) != ErrNotConnected {
			return errors.Errorf("want ErrNotConnected from Subscribe, got %v", err)
		}

		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestConnectDialFailure(t *testing.T) {
	client, err := NewWSClient(&WSParams{URL: "ws://127.0.0.1:1"})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err == nil {
		t.Fatal("Connect to a dead endpoint should fail")
	}

	// Failed dial rolls the status back.
	if got := client.ConnStatus(); got != StatusDisconnected {
		t.Fatalf("want status disconnected after failed dial, got %s", got)
	}
}

func TestSubscribeReceive(t *testing.T) {
	err := withTestServer(t, func(tp *testServerParams) error {
		client, ctx, err := connectedClient(t, tp, 0)
		if err != nil {
			return errors.Trace(err)
		}
		defer client.Disconnect()

		channel := TradesChannel("0xmarket")

		stream, err := client.Subscribe(ctx, channel)
		if err != nil {
			return errors.Trace(err)
		}

		if err := waitSubscribeMsg(t, tp, channel); err != nil {
			return errors.Trace(err)
		}

		if !client.IsSubscribed(channel) {
			return errors.Errorf("should be subscribed to %s", channel)
		}
		if got := client.ActiveSubscriptions(); len(got) != 1 || got[0] != channel {
			return errors.Errorf("want active subscriptions [%s], got %v", channel, got)
		}

		sendEvent(t, tp, channel, common.Event{Trade: &common.TradeEvent{
			MarketAddr: "0xmarket",
			Price:      50000,
			Size:       10,
			Side:       "buy",
			Timestamp:  1700000000,
		}})

		rctx, cancel := recvCtx()
		defer cancel()

		ev, err := stream.Recv(rctx)
		if err != nil {
			return errors.Trace(err)
		}
		if ev.Trade == nil {
			return errors.Errorf("want trade event, got %s", ev)
		}
		if ev.Trade.Price != 50000 || ev.Trade.Side != "buy" {
			return errors.Errorf("unexpected trade: %+v", ev.Trade)
		}

		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestFanOutStreams(t *testing.T) {
	err := withTestServer(t, func(tp *testServerParams) error {
		client, ctx, err := connectedClient(t, tp, 0)
		if err != nil {
			return errors.Trace(err)
		}
		defer client.Disconnect()

		channel := TradesChannel("0xmarket")

		s1, err := client.Subscribe(ctx, channel)
		if err != nil {
			return errors.Trace(err)
		}
		if err := waitSubscribeMsg(t, tp, channel); err != nil {
			return errors.Trace(err)
		}

		s2, err := client.Listen(channel)
		if err != nil {
			return errors.Trace(err)
		}

		for i := 1; i <= 3; i++ {
			sendEvent(t, tp, channel, common.Event{Trade: &common.TradeEvent{
				MarketAddr: "0xmarket",
				Price:      uint64(i),
				Size:       1,
				Side:       "sell",
				Timestamp:  uint64(i),
			}})
		}

		// Both streams must see all events, in order.
		for _, s := range []*EventStream{s1, s2} {
			for i := 1; i <= 3; i++ {
				rctx, cancel := recvCtx()
				ev, err := s.Recv(rctx)
				cancel()
				if err != nil {
					return errors.Trace(err)
				}
				if ev.Trade == nil || ev.Trade.Price != uint64(i) {
					return errors.Errorf("want trade with price %d, got %s", i, ev)
				}
			}
		}

		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestStreamLag(t *testing.T) {
	err := withTestServer(t, func(tp *testServerParams) error {
		client, ctx, err := connectedClient(t, tp, 2)
		if err != nil {
			return errors.Trace(err)
		}
		defer client.Disconnect()

		slow := TradesChannel("0xslow")
		marker := TradesChannel("0xmarker")

		slowStream, err := client.Subscribe(ctx, slow)
		if err != nil {
			return errors.Trace(err)
		}
		if err := waitSubscribeMsg(t, tp, slow); err != nil {
			return errors.Trace(err)
		}

		markerStream, err := client.Subscribe(ctx, marker)
		if err != nil {
			return errors.Trace(err)
		}
		if err := waitSubscribeMsg(t, tp, marker); err != nil {
			return errors.Trace(err)
		}

		// Overflow the slow channel's 2-slot buffer without reading it.
		for i := 1; i <= 4; i++ {
			sendEvent(t, tp, slow, common.Event{Trade: &common.TradeEvent{
				MarketAddr: "0xslow",
				Price:      uint64(i),
				Size:       1,
				Side:       "buy",
				Timestamp:  uint64(i),
			}})
		}
		sendEvent(t, tp, marker, common.Event{Trade: &common.TradeEvent{
			MarketAddr: "0xmarker", Price: 1, Size: 1, Side: "buy", Timestamp: 1,
		}})

		// Frames are dispatched in order, so once the marker arrives, all
		// slow-channel events are in its buffer.
		rctx, cancel := recvCtx()
		defer cancel()
		if _, err := markerStream.Recv(rctx); err != nil {
			return errors.Trace(err)
		}

		if _, err := slowStream.Recv(rctx); errors.Cause(err) != ErrStreamLagged {
			return errors.Errorf("want ErrStreamLagged, got %v", err)
		}

		// After the lag notice, delivery resumes from the oldest retained.
		for i := 3; i <= 4; i++ {
			ev, err := slowStream.Recv(rctx)
			if err != nil {
				return errors.Trace(err)
			}
			if ev.Trade == nil || ev.Trade.Price != uint64(i) {
				return errors.Errorf("want trade with price %d, got %s", i, ev)
			}
		}

		if _, err := slowStream.TryRecv(); errors.Cause(err) != ErrStreamEmpty {
			return errors.Errorf("want ErrStreamEmpty, got %v", err)
		}

		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestResubscribeResetsChannel(t *testing.T) {
	err := withTestServer(t, func(tp *testServerParams) error {
		client, ctx, err := connectedClient(t, tp, 0)
		if err != nil {
			return errors.Trace(err)
		}
		defer client.Disconnect()

		channel := OrderbookChannel("0xmarket")

		s1, err := client.Subscribe(ctx, channel)
		if err != nil {
			return errors.Trace(err)
		}
		if err := waitSubscribeMsg(t, tp, channel); err != nil {
			return errors.Trace(err)
		}

		// Subscribing again resends the request and replaces the fan-out.
		s2, err := client.Subscribe(ctx, channel)
		if err != nil {
			return errors.Trace(err)
		}
		if err := waitSubscribeMsg(t, tp, channel); err != nil {
			return errors.Trace(err)
		}

		rctx, cancel := recvCtx()
		defer cancel()

		if _, err := s1.Recv(rctx); errors.Cause(err) != ErrConnClosed {
			return errors.Errorf("want ErrConnClosed from the old stream, got %v", err)
		}

		sendEvent(t, tp, channel, common.Event{OrderbookUpdate: &common.OrderbookUpdate{
			MarketAddr: "0xmarket",
			Bids:       []common.OrderbookLevel{{Price: 100, Size: 5}},
			Timestamp:  1,
		}})

		ev, err := s2.Recv(rctx)
		if err != nil {
			return errors.Trace(err)
		}
		if ev.OrderbookUpdate == nil {
			return errors.Errorf("want orderbook update, got %s", ev)
		}

		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestUnsubscribe(t *testing.T) {
	err := withTestServer(t, func(tp *testServerParams) error {
		client, ctx, err := connectedClient(t, tp, 0)
		if err != nil {
			return errors.Trace(err)
		}
		defer client.Disconnect()

		channel := UserChannel("0xuser")

		stream, err := client.Subscribe(ctx, channel)
		if err != nil {
			return errors.Trace(err)
		}
		if err := waitSubscribeMsg(t, tp, channel); err != nil {
			return errors.Trace(err)
		}

		if err := client.Unsubscribe(ctx, channel); err != nil {
			return errors.Trace(err)
		}

		req, err := waitRequest(t, tp)
		if err != nil {
			return errors.Trace(err)
		}
		if req.Type != msgTypeUnsubscribe || req.Channel != channel {
			return errors.Errorf("want unsubscribe from %s, got %+v", channel, req)
		}

		if client.IsSubscribed(channel) {
			return errors.Errorf("should not be subscribed anymore")
		}

		rctx, cancel := recvCtx()
		defer cancel()
		if _, err := stream.Recv(rctx); errors.Cause(err) != ErrConnClosed {
			return errors.Errorf("want ErrConnClosed, got %v", err)
		}

		// Unsubscribing from a channel we're not subscribed to is a no-op.
		if err := client.Unsubscribe(ctx, channel); err != nil {
			return errors.Trace(err)
		}

		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestDisconnectClosesStreams(t *testing.T) {
	err := withTestServer(t, func(tp *testServerParams) error {
		client, ctx, err := connectedClient(t, tp, 0)
		if err != nil {
			return errors.Trace(err)
		}

		channel := TradesChannel("0xmarket")

		s1, err := client.Subscribe(ctx, channel)
		if err != nil {
			return errors.Trace(err)
		}
		if err := waitSubscribeMsg(t, tp, channel); err != nil {
			return errors.Trace(err)
		}

		s2, err := client.Listen(channel)
		if err != nil {
			return errors.Trace(err)
		}

		sendEvent(t, tp, channel, common.Event{Trade: &common.TradeEvent{
			MarketAddr: "0xmarket", Price: 7, Size: 1, Side: "buy", Timestamp: 1,
		}})

		// Receive on s1 first so we know the event reached the fan-out.
		rctx, cancel := recvCtx()
		defer cancel()
		if _, err := s1.Recv(rctx); err != nil {
			return errors.Trace(err)
		}

		if err := client.Disconnect(); err != nil {
			return errors.Trace(err)
		}

		// s2 drains the buffered event, then reports closure.
		ev, err := s2.Recv(rctx)
		if err != nil {
			return errors.Trace(err)
		}
		if ev.Trade == nil || ev.Trade.Price != 7 {
			return errors.Errorf("want the buffered trade, got %s", ev)
		}
		if _, err := s2.Recv(rctx); errors.Cause(err) != ErrConnClosed {
			return errors.Errorf("want ErrConnClosed, got %v", err)
		}

		if _, err := s1.Recv(rctx); errors.Cause(err) != ErrConnClosed {
			return errors.Errorf("want ErrConnClosed, got %v", err)
		}

		if got := client.ActiveSubscriptions(); len(got) != 0 {
			return errors.Errorf("want no active subscriptions, got %v", got)
		}

		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestMalformedFrameIgnored(t *testing.T) {
	err := withTestServer(t, func(tp *testServerParams) error {
		client, ctx, err := connectedClient(t, tp, 0)
		if err != nil {
			return errors.Trace(err)
		}
		defer client.Disconnect()

		channel := TradesChannel("0xmarket")

		stream, err := client.Subscribe(ctx, channel)
		if err != nil {
			return errors.Trace(err)
		}
		if err := waitSubscribeMsg(t, tp, channel); err != nil {
			return errors.Trace(err)
		}

		// Garbage, then a frame with an undecodable event payload, then a
		// good one. Only the good one must come out of the stream.
		tp.tx <- serverTx{data: []byte("{this is not json")}
		tp.tx <- serverTx{data: []byte(`{"type":"event","channel":"` + channel + `","data":{"type":"bogus"}}`)}
		sendEvent(t, tp, channel, common.Event{Trade: &common.TradeEvent{
			MarketAddr: "0xmarket", Price: 42, Size: 1, Side: "sell", Timestamp: 1,
		}})

		rctx, cancel := recvCtx()
		defer cancel()

		ev, err := stream.Recv(rctx)
		if err != nil {
			return errors.Trace(err)
		}
		if ev.Trade == nil || ev.Trade.Price != 42 {
			return errors.Errorf("want the valid trade, got %s", ev)
		}

		if !client.IsConnected() {
			return errors.Errorf("malformed frames should not kill the connection")
		}

		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestUnknownChannelEventDropped(t *testing.T) {
	err := withTestServer(t, func(tp *testServerParams) error {
		client, ctx, err := connectedClient(t, tp, 0)
		if err != nil {
			return errors.Trace(err)
		}
		defer client.Disconnect()

		channel := TradesChannel("0xmarket")

		stream, err := client.Subscribe(ctx, channel)
		if err != nil {
			return errors.Trace(err)
		}
		if err := waitSubscribeMsg(t, tp, channel); err != nil {
			return errors.Trace(err)
		}

		sendEvent(t, tp, TradesChannel("0xother"), common.Event{Trade: &common.TradeEvent{
			MarketAddr: "0xother", Price: 1, Size: 1, Side: "buy", Timestamp: 1,
		}})
		sendEvent(t, tp, channel, common.Event{Trade: &common.TradeEvent{
			MarketAddr: "0xmarket", Price: 2, Size: 1, Side: "buy", Timestamp: 2,
		}})

		rctx, cancel := recvCtx()
		defer cancel()

		ev, err := stream.Recv(rctx)
		if err != nil {
			return errors.Trace(err)
		}
		if ev.Trade == nil || ev.Trade.MarketAddr != "0xmarket" {
			return errors.Errorf("want event for the subscribed channel only, got %s", ev)
		}

		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestServerCloseDisconnects(t *testing.T) {
	err := withTestServer(t, func(tp *testServerParams) error {
		client, ctx, err := connectedClient(t, tp, 0)
		if err != nil {
			return errors.Trace(err)
		}

		channel := TradesChannel("0xmarket")
		stream, err := client.Subscribe(ctx, channel)
		if err != nil {
			return errors.Trace(err)
		}
		if err := waitSubscribeMsg(t, tp, channel); err != nil {
			return errors.Trace(err)
		}

		tp.tx <- serverTx{closeCode: websocket.CloseNormalClosure}

		if err := waitStatus(t, client, StatusDisconnected); err != nil {
			return errors.Trace(err)
		}
		if cause := client.StatusCause(); cause != nil {
			return errors.Errorf("clean close should have no cause, got %v", cause)
		}

		rctx, cancel := recvCtx()
		defer cancel()
		if _, err := stream.Recv(rctx); errors.Cause(err) != ErrConnClosed {
			return errors.Errorf("want ErrConnClosed, got %v", err)
		}

		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestAbruptCloseFails(t *testing.T) {
	err := withTestServer(t, func(tp *testServerParams) error {
		client, ctx, err := connectedClient(t, tp, 0)
		if err != nil {
			return errors.Trace(err)
		}

		channel := TradesChannel("0xmarket")
		if _, err := client.Subscribe(ctx, channel); err != nil {
			return errors.Trace(err)
		}
		if err := waitSubscribeMsg(t, tp, channel); err != nil {
			return errors.Trace(err)
		}

		tp.tx <- serverTx{drop: true}

		if err := waitStatus(t, client, StatusFailed); err != nil {
			return errors.Trace(err)
		}
		if client.StatusCause() == nil {
			return errors.Errorf("abnormal close should carry a cause")
		}
		if client.IsSubscribed(channel) {
			return errors.Errorf("subscriptions should be torn down on failure")
		}

		// From StatusFailed, a fresh Connect is allowed.
		if err := client.Connect(ctx); err != nil {
			return errors.Trace(err)
		}
		if err := waitConnOpen(t, tp); err != nil {
			return errors.Trace(err)
		}
		if err := waitStatus(t, client, StatusConnected); err != nil {
			return errors.Trace(err)
		}

		return client.Disconnect()
	})
	if err != nil {
		t.Fatal(err)
	}
}

// connectedClient makes a client with the given stream capacity, connects it
// and waits till the test server sees the connection.
func connectedClient(t *testing.T, tp *testServerParams, capacity int) (*WSClient, context.Context, error) {
	client, err := NewWSClient(&WSParams{URL: tp.url, StreamCapacity: capacity})
	if err != nil {
		return nil, nil, errors.Trace(err)
	}

	ctx := context.Background()

	if err := client.Connect(ctx); err != nil {
		return nil, nil, errors.Trace(err)
	}
	if err := waitConnOpen(t, tp); err != nil {
		return nil, nil, errors.Trace(err)
	}
	if err := waitStatus(t, client, StatusConnected); err != nil {
		return nil, nil, errors.Trace(err)
	}

	return client, ctx, nil
}

func TestConnectGuardWhileReconnecting(t *testing.T) {
	err := withTestServer(t, func(tp *testServerParams) error {
		client, err := NewWSClient(&WSParams{URL: tp.url})
		if err != nil {
			return errors.Trace(err)
		}

		// A dial in flight must reject overlapping Connect calls even when
		// the displayed status is reconnecting.
		client.mtx.Lock()
		client.setStatusLocked(StatusReconnecting, nil)
		client.dialing = true
		client.mtx.Unlock()

		if err := client.Connect(context.Background()); errors.Cause(err) != ErrConnLoopActive {
			return errors.Errorf("want ErrConnLoopActive, got %v", err)
		}

		client.mtx.Lock()
		client.dialing = false
		client.mtx.Unlock()

		if err := client.Connect(context.Background()); err != nil {
			return errors.Trace(err)
		}
		if err := waitConnOpen(t, tp); err != nil {
			return errors.Trace(err)
		}

		// With a live connection the reconnector must not stamp
		// reconnecting over it.
		if client.beginReconnect() {
			return errors.Errorf("beginReconnect accepted a connected client")
		}
		if got := client.ConnStatus(); got != StatusConnected {
			return errors.Errorf("want status connected, got %s", got)
		}

		return client.Disconnect()
	})
	if err != nil {
		t.Fatal(err)
	}
}
