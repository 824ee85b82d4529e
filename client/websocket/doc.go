/*
Package websocket provides the streaming client for the Ekiden websocket API.

The client maintains a single websocket connection to the venue and
multiplexes any number of channel subscriptions over it. Each subscription is
a named channel like "orderbook/<market_addr>" or "user/<user_addr>"; events
arriving for a channel are fanned out to every EventStream opened on it.

Basic usage:

	client, err := websocket.NewWSClient(&websocket.WSParams{
		URL: "wss://api.ekiden.fi/ws",
	})
	if err != nil {
		log.Fatal(err)
	}

	if err := client.Connect(ctx); err != nil {
		log.Fatal(err)
	}
	defer client.Disconnect()

	stream, err := client.SubscribeOrderbook(ctx, marketAddr)
	if err != nil {
		log.Fatal(err)
	}

	for {
		ev, err := stream.Recv(ctx)
		if err != nil {
			break
		}
		fmt.Println(ev)
	}

Streams are buffered: a slow consumer does not block the connection, but may
lose old events and receive ErrStreamLagged once before resuming with the
newest data.

Reconnection is not automatic. Wrap the client in a Reconnector to keep the
connection alive across failures and replay subscriptions.
*/
package websocket
