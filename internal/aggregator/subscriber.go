package aggregator

// subscriberQueueCap is the bounded capacity for a subscriber's snapshot
// queue (§4.3 "Subscription"): cap 100, drop-oldest on full.
const subscriberQueueCap = 100

// Subscriber is a bounded, single-producer/single-consumer snapshot queue.
// On a full queue, push drops the oldest buffered snapshot before enqueuing
// the newest one, so the consumer always sees latest-wins (§5
// "Backpressure").
type Subscriber struct {
	ch chan []byte
}

func newSubscriber() *Subscriber {
	return &Subscriber{ch: make(chan []byte, subscriberQueueCap)}
}

// C returns the channel to read snapshots from.
func (s *Subscriber) C() <-chan []byte { return s.ch }

// push enqueues payload, dropping the oldest buffered element if full.
func (s *Subscriber) push(payload []byte) {
	for {
		select {
		case s.ch <- payload:
			return
		default:
			select {
			case <-s.ch:
			default:
			}
		}
	}
}

// Subscribe registers a new bounded subscriber queue (§4.3 "Subscription").
func (a *Aggregator) Subscribe() *Subscriber {
	sub := newSubscriber()
	a.subsMu.Lock()
	a.subscribers[sub] = struct{}{}
	a.subsMu.Unlock()
	return sub
}

// Unsubscribe removes a subscriber. Safe to call more than once.
func (a *Aggregator) Unsubscribe(sub *Subscriber) {
	a.subsMu.Lock()
	delete(a.subscribers, sub)
	a.subsMu.Unlock()
}

// SubscriberCount reports the current number of live subscribers.
func (a *Aggregator) SubscriberCount() int {
	a.subsMu.Lock()
	defer a.subsMu.Unlock()
	return len(a.subscribers)
}
