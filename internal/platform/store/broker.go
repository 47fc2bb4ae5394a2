package store

import "sync"

// Broker is the publish-subscribe registry behind live queries. Writers
// publish the set of tables a committed batch touched; subscribers
// interested in any of those tables receive a notification and requery.
type Broker struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// Subscription receives change notifications on C. The channel carries the
// touched table names; a subscriber re-evaluates its query on receipt.
type Subscription struct {
	C      chan []string
	tables map[string]struct{}
	broker *Broker
}

// NewBroker creates an empty registry.
func NewBroker() *Broker {
	return &Broker{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers interest in the given tables. With no tables the
// subscription matches every publish.
func (b *Broker) Subscribe(tables ...string) *Subscription {
	sub := &Subscription{
		// Capacity one: a publish arriving while one is already queued is
		// dropped, because the pending notification already forces a
		// requery that will observe both writes.
		C:      make(chan []string, 1),
		broker: b,
	}
	if len(tables) > 0 {
		sub.tables = make(map[string]struct{}, len(tables))
		for _, table := range tables {
			sub.tables[table] = struct{}{}
		}
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Close removes the subscription from the registry.
func (s *Subscription) Close() {
	s.broker.mu.Lock()
	delete(s.broker.subs, s)
	s.broker.mu.Unlock()
}

func (s *Subscription) matches(tables []string) bool {
	if s.tables == nil {
		return true
	}
	for _, table := range tables {
		if _, ok := s.tables[table]; ok {
			return true
		}
	}
	return false
}

// Publish notifies matching subscribers. Sends never block a commit.
func (b *Broker) Publish(tables []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		if !sub.matches(tables) {
			continue
		}
		select {
		case sub.C <- tables:
		default:
		}
	}
}
