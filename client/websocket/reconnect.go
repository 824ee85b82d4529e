package websocket

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"ekiden-sdk-go/logger"
)

// ReconnectOpts are settings used to reconnect after the connection fails.
// By default the reconnector retries with backoff starting at 0 seconds and
// growing linearly up to 30 seconds. These are the most aggressive options
// permitted: with Backoff off a minimum timeout of 1 second is enforced.
type ReconnectOpts struct {
	// Backoff: if true, the reconnection timeout starts at ReconnectTimeout
	// and grows by 500ms on each unsuccessful attempt, capped at
	// MaxReconnectTimeout.
	Backoff bool

	// Initial reconnection timeout: defaults to 0 seconds. If Backoff is
	// false, a minimum of 1 second is used.
	ReconnectTimeout time.Duration

	// Max reconnect timeout. If zero, 30 seconds is used.
	MaxReconnectTimeout time.Duration
}

var defaultReconnectOpts = &ReconnectOpts{
	Backoff:             true,
	ReconnectTimeout:    0,
	MaxReconnectTimeout: 30 * time.Second,
}

// Reconnector watches a WSClient and dials again whenever the connection
// fails, replaying the channel subscriptions that were active at the time of
// the failure. It is a policy layer on top of WSClient: the client itself
// never reconnects on its own.
//
// Streams opened before the failure still end with ErrConnClosed; consumers
// re-subscribe to pick the replayed channels up again.
type Reconnector struct {
	client *WSClient
	opts   ReconnectOpts

	cancel context.CancelFunc
	done   chan struct{}

	log *logrus.Entry
}

// NewReconnector creates a reconnector for the client. Pass nil opts for
// defaults. Call Start to begin watching.
func NewReconnector(client *WSClient, opts *ReconnectOpts) *Reconnector {
	if opts == nil {
		opts = defaultReconnectOpts
	}

	o := *opts
	if o.MaxReconnectTimeout == 0 {
		o.MaxReconnectTimeout = defaultReconnectOpts.MaxReconnectTimeout
	}
	if !o.Backoff && o.ReconnectTimeout < time.Second {
		o.ReconnectTimeout = time.Second
	}

	return &Reconnector{
		client: client,
		opts:   o,
		log:    logger.WithComponent("reconnector"),
	}
}

// Start begins watching the client in a background goroutine. Calling Start
// on a running reconnector is a no-op.
func (r *Reconnector) Start() {
	if r.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.watch(ctx)
}

// Stop stops watching. Any reconnection attempt in flight is abandoned. The
// current connection, if established, is left open.
func (r *Reconnector) Stop() {
	if r.cancel == nil {
		return
	}

	r.cancel()
	<-r.done
	r.cancel = nil
}

func (r *Reconnector) watch(ctx context.Context) {
	defer close(r.done)

	for {
		changed := r.client.statusChanged()

		if r.client.ConnStatus() == StatusFailed {
			if !r.reconnect(ctx) {
				return
			}
			continue
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return
		}
	}
}

// reconnect dials until the connection is established or ctx is done. It
// returns false when the watch loop should stop.
func (r *Reconnector) reconnect(ctx context.Context) bool {
	cause := r.client.StatusCause()
	channels := r.client.failedChannels()

	if !r.client.beginReconnect() {
		// Someone connected the client underneath us.
		return true
	}
	r.log.WithError(cause).WithField("channels", channels).Info("connection failed, reconnecting")

	timeout := r.opts.ReconnectTimeout

	for {
		if timeout > 0 {
			select {
			case <-time.After(timeout):
			case <-ctx.Done():
				return false
			}
		}

		err := r.client.Connect(ctx)
		switch {
		case err == nil:
			r.replay(ctx, channels)
			return true

		case errors.Cause(err) == ErrConnLoopActive:
			// Someone connected the client underneath us.
			return true
		}

		r.log.WithError(err).Debug("reconnect attempt failed")

		if ctx.Err() != nil {
			return false
		}

		if r.opts.Backoff {
			timeout += 500 * time.Millisecond
			if timeout > r.opts.MaxReconnectTimeout {
				timeout = r.opts.MaxReconnectTimeout
			}
		}
	}
}

func (r *Reconnector) replay(ctx context.Context, channels []string) {
	for _, ch := range channels {
		if _, err := r.client.Subscribe(ctx, ch); err != nil {
			r.log.WithError(err).WithField("channel", ch).Warn("failed to replay subscription")
		}
	}
}
