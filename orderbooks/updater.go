package orderbooks

import (
	"context"
	"sync"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"ekiden-sdk-go/client/websocket"
	"ekiden-sdk-go/common"
	"ekiden-sdk-go/logger"
)

// OnUpdateCB is called after every applied snapshot or update, with the
// resulting book state.
type OnUpdateCB func(snapshot common.OrderbookSnapshot)

// Updater feeds orderbook events from a stream into an OrderBook. Stale
// updates are dropped; updates arriving before the first snapshot are
// dropped too, since the venue always sends a snapshot on subscribe.
//
// All methods are safe for concurrent use.
type Updater struct {
	mtx  sync.Mutex
	book *OrderBook
	cbs  []OnUpdateCB

	log *logrus.Entry
}

func NewUpdater(marketAddr string) *Updater {
	return &Updater{
		book: NewOrderBook(marketAddr),
		log:  logger.WithComponent("orderbook-updater").WithField("market", marketAddr),
	}
}

// OnUpdate registers a callback for applied snapshots and updates.
func (u *Updater) OnUpdate(cb OnUpdateCB) {
	u.mtx.Lock()
	defer u.mtx.Unlock()
	u.cbs = append(u.cbs, cb)
}

// Snapshot returns the current book state.
func (u *Updater) Snapshot() common.OrderbookSnapshot {
	u.mtx.Lock()
	defer u.mtx.Unlock()
	return u.book.Snapshot()
}

// Apply feeds one event into the book. Events other than orderbook
// snapshots and updates are ignored.
func (u *Updater) Apply(ev common.Event) error {
	u.mtx.Lock()

	var applied bool
	var err error

	switch {
	case ev.OrderbookSnapshot != nil:
		u.book.ApplySnapshot(*ev.OrderbookSnapshot)
		applied = true

	case ev.OrderbookUpdate != nil:
		if err = u.book.ApplyUpdate(*ev.OrderbookUpdate); err == nil {
			applied = true
		}
	}

	var snapshot common.OrderbookSnapshot
	var cbs []OnUpdateCB
	if applied {
		snapshot = u.book.Snapshot()
		cbs = append(cbs, u.cbs...)
	}
	u.mtx.Unlock()

	for _, cb := range cbs {
		cb(snapshot)
	}

	return errors.Trace(err)
}

// Run receives events from the stream and applies them until the stream is
// closed or ctx is done. Stale updates and pre-snapshot updates are logged
// and skipped; a lagged stream resets nothing, the next snapshot or update
// simply catches the book up.
func (u *Updater) Run(ctx context.Context, stream *websocket.EventStream) error {
	for {
		ev, err := stream.Recv(ctx)
		switch errors.Cause(err) {
		case nil:

		case websocket.ErrStreamLagged:
			u.log.Warn("stream lagged, book may briefly trail the venue")
			continue

		case websocket.ErrConnClosed:
			return nil

		default:
			return errors.Trace(err)
		}

		if err := u.Apply(ev); err != nil {
			u.log.WithError(err).Debug("skipping orderbook event")
		}
	}
}
