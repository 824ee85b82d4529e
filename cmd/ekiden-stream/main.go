// Command ekiden-stream subscribes to Ekiden websocket channels and prints
// the events to stdout.
//
// Examples:
//
//	ekiden-stream --env production --market 0xabc... --market 0xdef...
//	ekiden-stream --url ws://localhost:3010/ws --market 0xabc... --candles 1m
//	EKIDEN_PRIVATE_KEY=0x... ekiden-stream --env staging --user
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"

	"github.com/fatih/color"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"ekiden-sdk-go/auth"
	"ekiden-sdk-go/client/websocket"
	"ekiden-sdk-go/common"
	"ekiden-sdk-go/config"
	"ekiden-sdk-go/logger"
)

var (
	env     = flag.String("env", "", "Environment preset: production, staging, testnet or local")
	wsURL   = flag.String("url", "", "Websocket URL; overrides the environment preset")
	markets = flag.StringArray("market", nil, "Market address to stream orderbook and trades for. May be given multiple times")
	candles = flag.String("candles", "", "Also stream candles at this interval (1m, 5m, 15m, 1h, 4h, 1d)")
	user    = flag.Bool("user", false, "Stream the account channel; needs EKIDEN_PRIVATE_KEY")
	verbose = flag.Bool("verbose", false, "Print debug logs to stderr")
)

var (
	buyColor    = color.New(color.FgGreen)
	sellColor   = color.New(color.FgRed)
	bookColor   = color.New(color.FgCyan)
	userColor   = color.New(color.FgYellow)
	statusColor = color.New(color.FgWhite, color.Bold)
)

func main() {
	flag.Parse()

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	url, userAddr, err := resolveTarget()
	if err != nil {
		log.Fatal(err)
	}

	if len(*markets) == 0 && userAddr == "" {
		log.Fatal("nothing to stream: give --market and/or --user")
	}

	client, err := websocket.NewWSClient(&websocket.WSParams{URL: url})
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()

	if err := client.Connect(ctx); err != nil {
		log.Fatalf("connecting to %s: %s", url, err)
	}
	statusColor.Printf("connected to %s\n", url)

	r := websocket.NewReconnector(client, nil)
	r.Start()

	var wg sync.WaitGroup

	subscribe := func(channel string) {
		stream, err := client.Subscribe(ctx, channel)
		if err != nil {
			log.Fatalf("subscribing to %s: %s", channel, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			printLoop(ctx, stream)
		}()
	}

	for _, market := range *markets {
		subscribe(websocket.OrderbookChannel(market))
		subscribe(websocket.TradesChannel(market))
		if *candles != "" {
			subscribe(websocket.CandlesChannel(market, *candles))
		}
	}
	if userAddr != "" {
		subscribe(websocket.UserChannel(userAddr))
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	<-interrupt

	statusColor.Println("shutting down")
	r.Stop()
	if err := client.Disconnect(); err != nil {
		log.Printf("disconnect: %s", err)
	}
	wg.Wait()
}

// resolveTarget picks the websocket URL from the flags and the environment,
// and derives the user address when --user is given.
func resolveTarget() (url, userAddr string, err error) {
	var cfg *config.Config

	if *env != "" {
		if cfg, err = config.ForEnvironment(*env); err != nil {
			return "", "", err
		}
	} else if cfg, err = config.FromEnv(); err != nil {
		return "", "", err
	}

	url = cfg.WSURL
	if *wsURL != "" {
		url = *wsURL
	}

	if *user {
		if cfg.PrivateKey == "" {
			return "", "", fmt.Errorf("--user needs EKIDEN_PRIVATE_KEY")
		}
		kp, err := auth.NewKeyPairFromHex(cfg.PrivateKey)
		if err != nil {
			return "", "", err
		}
		userAddr = kp.Address()
	}

	return url, userAddr, nil
}

func printLoop(ctx context.Context, stream *websocket.EventStream) {
	for {
		ev, err := stream.Recv(ctx)
		switch errors.Cause(err) {
		case nil:
		case websocket.ErrStreamLagged:
			statusColor.Printf("%s: lagged, some events dropped\n", stream.Channel())
			continue
		default:
			return
		}

		printEvent(stream.Channel(), ev)
	}
}

func printEvent(channel string, ev common.Event) {
	switch {
	case ev.Trade != nil:
		c := buyColor
		if ev.Trade.Side == "sell" {
			c = sellColor
		}
		c.Printf("%s  %s %d @ %d\n", channel, ev.Trade.Side, ev.Trade.Size, ev.Trade.Price)

	case ev.OrderbookSnapshot != nil:
		bookColor.Printf("%s  snapshot: %d bids / %d asks\n",
			channel, len(ev.OrderbookSnapshot.Bids), len(ev.OrderbookSnapshot.Asks))

	case ev.OrderbookUpdate != nil:
		bookColor.Printf("%s  update: %d bids / %d asks\n",
			channel, len(ev.OrderbookUpdate.Bids), len(ev.OrderbookUpdate.Asks))

	case ev.OrderUpdate != nil, ev.PositionUpdate != nil, ev.BalanceUpdate != nil:
		userColor.Printf("%s  %s\n", channel, ev)

	default:
		fmt.Printf("%s  %s\n", channel, ev)
	}
}
