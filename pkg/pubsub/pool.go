package pubsub

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	errPoolClosed = errors.New("channel pool closed")
	errConnClosed = errors.New("amqp connection closed")
)

// channelPool keeps a bounded number of publish channels alive on one
// connection. Invariant: idle + borrowed channels <= capacity.
type channelPool struct {
	conn     *amqp.Connection
	idle     chan *amqp.Channel
	permits  chan struct{}
	capacity int

	closed atomic.Bool
	mu     sync.Mutex
}

func newChannelPool(conn *amqp.Connection, capacity int) *channelPool {
	if capacity <= 0 {
		capacity = 8
	}
	return &channelPool{
		conn:     conn,
		idle:     make(chan *amqp.Channel, capacity),
		permits:  make(chan struct{}, capacity),
		capacity: capacity,
	}
}

func (p *channelPool) borrow(ctx context.Context) (*amqp.Channel, error) {
	if p.closed.Load() {
		return nil, errPoolClosed
	}
	const retryDelay = 50 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case ch, ok := <-p.idle:
			if !ok {
				return nil, errPoolClosed
			}
			if p.conn.IsClosed() || ch.IsClosed() {
				_ = safeClose(ch)
				nch, err := p.open()
				if err != nil {
					time.Sleep(retryDelay)
					continue
				}
				return nch, nil
			}
			return ch, nil

		default:
			if p.conn.IsClosed() {
				return nil, errConnClosed
			}
			select {
			case p.permits <- struct{}{}:
				nch, err := p.open()
				if err != nil {
					<-p.permits
					time.Sleep(retryDelay)
					continue
				}
				return nch, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
				// a channel may have been returned meanwhile
			}
		}
	}
}

func (p *channelPool) giveBack(ch *amqp.Channel) {
	if ch == nil {
		return
	}
	if p.closed.Load() || p.conn.IsClosed() || ch.IsClosed() {
		_ = safeClose(ch)
		p.releasePermit()
		return
	}
	select {
	case p.idle <- ch:
	default:
		_ = safeClose(ch)
		p.releasePermit()
	}
}

func (p *channelPool) releasePermit() {
	select {
	case <-p.permits:
	default:
	}
}

func (p *channelPool) open() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn.IsClosed() {
		return nil, errConnClosed
	}
	return p.conn.Channel()
}

func (p *channelPool) close() {
	if p.closed.Swap(true) {
		return
	}
	close(p.idle)
	for ch := range p.idle {
		_ = safeClose(ch)
		p.releasePermit()
	}
}
