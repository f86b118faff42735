package infrastructure

import "github.com/ktg0215/Management-sub000/internal/modules/realtime/domain"

// subscriptionIndex maps topic -> connection ids. It is the inverse of each
// client's own topic set and is only touched while Hub.mu is held.
type subscriptionIndex struct {
	topics map[domain.Topic]map[string]struct{}
}

func newSubscriptionIndex() *subscriptionIndex {
	return &subscriptionIndex{topics: make(map[domain.Topic]map[string]struct{})}
}

func (i *subscriptionIndex) subscribe(topic domain.Topic, connID string) bool {
	subs := i.topics[topic]
	if subs == nil {
		subs = make(map[string]struct{})
		i.topics[topic] = subs
	}
	if _, exists := subs[connID]; exists {
		return false
	}
	subs[connID] = struct{}{}
	return true
}

// unsubscribe is a no-op when the pair is absent. Empty topics are pruned.
func (i *subscriptionIndex) unsubscribe(topic domain.Topic, connID string) bool {
	subs, ok := i.topics[topic]
	if !ok {
		return false
	}
	if _, exists := subs[connID]; !exists {
		return false
	}
	delete(subs, connID)
	if len(subs) == 0 {
		delete(i.topics, topic)
	}
	return true
}

func (i *subscriptionIndex) subscribersOf(topic domain.Topic) []string {
	subs := i.topics[topic]
	ids := make([]string, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	return ids
}

func (i *subscriptionIndex) has(topic domain.Topic, connID string) bool {
	_, ok := i.topics[topic][connID]
	return ok
}

func (i *subscriptionIndex) dropAllForConnection(connID string) int {
	dropped := 0
	for topic, subs := range i.topics {
		if _, ok := subs[connID]; !ok {
			continue
		}
		delete(subs, connID)
		dropped++
		if len(subs) == 0 {
			delete(i.topics, topic)
		}
	}
	return dropped
}

func (i *subscriptionIndex) counts() map[string]int {
	out := make(map[string]int, len(i.topics))
	for topic, subs := range i.topics {
		out[topic.String()] = len(subs)
	}
	return out
}

func (i *subscriptionIndex) topicCount() int {
	return len(i.topics)
}
