package infrastructure

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/ktg0215/Management-sub000/internal/modules/realtime/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type receivedMessage struct {
	Type      domain.MessageType `json:"type"`
	Event     string             `json:"event"`
	Topic     string             `json:"topic"`
	Payload   map[string]any     `json:"payload"`
	Timestamp time.Time          `json:"timestamp"`
}

func newTestHub(clock *fakeClock) *Hub {
	return NewHub(WithClock(clock.Now), WithHeartbeatTimeout(30*time.Second))
}

func connect(h *Hub, userID string, role domain.Role, storeID int64) *Client {
	c := NewClient(h, nil, domain.Identity{UserID: userID, Role: role, StoreID: storeID}, ClientConfig{SendBuffer: 64})
	h.Register(c)
	return c
}

func drain(t *testing.T, c *Client) []receivedMessage {
	t.Helper()
	var out []receivedMessage
	for {
		select {
		case data := <-c.send:
			var msg receivedMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Fatalf("decode outbound frame: %v", err)
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

func discard(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func assertIndexInverse(t *testing.T, h *Hub) {
	t.Helper()
	h.mu.RLock()
	defer h.mu.RUnlock()
	for topic, subs := range h.index.topics {
		if len(subs) == 0 {
			t.Fatalf("topic %s left empty in index", topic)
		}
		for id := range subs {
			c, ok := h.registry.get(id)
			if !ok {
				t.Fatalf("index references unknown connection %s on %s", id, topic)
			}
			if _, ok := c.topics[topic]; !ok {
				t.Fatalf("index has %s on %s but client does not", id, topic)
			}
		}
	}
	for id, c := range h.registry.clients {
		for topic := range c.topics {
			if !h.index.has(topic, id) {
				t.Fatalf("client %s has %s but index does not", id, topic)
			}
		}
	}
}

func TestHubIndexMatchesMembershipsAfterInterleavings(t *testing.T) {
	h := newTestHub(newFakeClock())
	topics := []domain.Topic{
		domain.GlobalTopic(domain.TopicSystemAnnouncements),
		domain.GlobalTopic(domain.TopicUserNotifications),
		domain.StoreUpdatesTopic(7),
		domain.SalesTopic(7),
	}
	rng := rand.New(rand.NewPCG(7, 11))
	clients := make([]*Client, 0, 8)
	for i := 0; i < 8; i++ {
		clients = append(clients, connect(h, fmt.Sprintf("u-%d", i), domain.RoleUser, 7))
	}

	for step := 0; step < 2000; step++ {
		c := clients[rng.IntN(len(clients))]
		topic := topics[rng.IntN(len(topics))]
		switch rng.IntN(10) {
		case 0:
			h.Remove(c.ID(), CloseReasonClientClosed)
			clients[indexOf(clients, c)] = connect(h, c.Identity().UserID, domain.RoleUser, 7)
		case 1, 2, 3:
			h.Unsubscribe(c, topic)
		default:
			if err := h.Subscribe(c, topic); err != nil {
				t.Fatalf("subscribe step %d: %v", step, err)
			}
		}
		if step%50 == 0 {
			assertIndexInverse(t, h)
		}
	}
	assertIndexInverse(t, h)
}

func indexOf(clients []*Client, target *Client) int {
	for i, c := range clients {
		if c == target {
			return i
		}
	}
	return -1
}

func TestHubConcurrentMutationsKeepIndexInverse(t *testing.T) {
	h := newTestHub(newFakeClock())
	topics := []domain.Topic{
		domain.GlobalTopic(domain.TopicSystemAnnouncements),
		domain.StoreUpdatesTopic(3),
		domain.SalesTopic(3),
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(uint64(worker), 42))
			c := connect(h, fmt.Sprintf("w-%d", worker), domain.RoleAdmin, 3)
			for i := 0; i < 300; i++ {
				topic := topics[rng.IntN(len(topics))]
				switch rng.IntN(8) {
				case 0:
					h.Remove(c.ID(), CloseReasonClientClosed)
					c = connect(h, fmt.Sprintf("w-%d", worker), domain.RoleAdmin, 3)
				case 1, 2:
					h.Unsubscribe(c, topic)
				case 3:
					h.PublishToTopic(topic, domain.NewDataMessage(domain.EventStoreUpdate, map[string]int{"i": i}))
					discard(c)
				default:
					_ = h.Subscribe(c, topic)
				}
			}
		}(w)
	}
	wg.Wait()
	assertIndexInverse(t, h)
}

func TestHubRemoveLeavesNoSubscriptions(t *testing.T) {
	h := newTestHub(newFakeClock())
	c := connect(h, "u-1", domain.RoleSuperAdmin, 1)
	for _, topic := range []domain.Topic{
		domain.GlobalTopic(domain.TopicSystemAnnouncements),
		domain.StoreUpdatesTopic(1),
		domain.SalesTopic(2),
		domain.BusinessTypeTopic(4),
	} {
		if err := h.Subscribe(c, topic); err != nil {
			t.Fatalf("subscribe %s: %v", topic, err)
		}
	}

	if !h.Remove(c.ID(), CloseReasonClientClosed) {
		t.Fatal("expected first removal to succeed")
	}
	if h.Remove(c.ID(), CloseReasonClientClosed) {
		t.Fatal("second removal must be a no-op")
	}
	if c.Status() != StatusClosed {
		t.Fatalf("expected closed status got %s", c.Status())
	}
	if n := h.index.topicCount(); n != 0 {
		t.Fatalf("expected pruned index got %d topics", n)
	}
	if len(h.Topics(c)) != 0 {
		t.Fatal("removed client still lists topics")
	}
	if err := h.Subscribe(c, domain.StoreUpdatesTopic(1)); !errors.Is(err, ErrClientClosing) {
		t.Fatalf("expected ErrClientClosing after removal got %v", err)
	}
}

func TestHubSubscribeDeniedByPolicy(t *testing.T) {
	h := newTestHub(newFakeClock())
	c := connect(h, "u-9", domain.RoleUser, 9)
	if err := h.Subscribe(c, domain.SalesTopic(7)); !errors.Is(err, ErrSubscriptionDenied) {
		t.Fatalf("expected ErrSubscriptionDenied got %v", err)
	}
	if len(h.Topics(c)) != 0 || h.index.topicCount() != 0 {
		t.Fatal("denied subscribe must not change state")
	}
}

func TestHubUnsubscribeIsIdempotent(t *testing.T) {
	h := newTestHub(newFakeClock())
	c := connect(h, "u-1", domain.RoleUser, 7)
	other := connect(h, "u-2", domain.RoleUser, 7)
	topic := domain.StoreUpdatesTopic(7)
	if err := h.Subscribe(other, topic); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	before := h.Stats()
	if h.Unsubscribe(c, topic) {
		t.Fatal("unsubscribe of unknown membership reported a change")
	}
	if h.Unsubscribe(c, domain.SalesTopic(7)) {
		t.Fatal("unsubscribe of absent topic reported a change")
	}
	after := h.Stats()
	if before.ActiveTopics != after.ActiveTopics || before.TopicSubscribers[topic.String()] != after.TopicSubscribers[topic.String()] {
		t.Fatalf("state changed: before=%v after=%v", before.TopicSubscribers, after.TopicSubscribers)
	}
	assertIndexInverse(t, h)
}

func TestPublishToTopicReachesEverySubscriber(t *testing.T) {
	clock := newFakeClock()
	h := newTestHub(clock)
	topic := domain.SalesTopic(5)
	const n = 5
	subscribers := make([]*Client, 0, n)
	for i := 0; i < n; i++ {
		c := connect(h, fmt.Sprintf("u-%d", i), domain.RoleUser, 5)
		if err := h.Subscribe(c, topic); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		subscribers = append(subscribers, c)
	}
	bystander := connect(h, "u-x", domain.RoleUser, 6)

	payload := map[string]any{"storeId": float64(5), "netSales": float64(1200), "note": "closing count"}
	reached := h.PublishToTopic(topic, domain.NewDataMessage(domain.EventSalesDataUpdated, payload))
	if reached != n {
		t.Fatalf("expected %d deliveries got %d", n, reached)
	}

	for _, c := range subscribers {
		msgs := drain(t, c)
		if len(msgs) != 1 {
			t.Fatalf("expected one message for %s got %d", c.ID(), len(msgs))
		}
		msg := msgs[0]
		if msg.Type != domain.MessageData || msg.Event != domain.EventSalesDataUpdated || msg.Topic != topic.String() {
			t.Fatalf("unexpected envelope %#v", msg)
		}
		for k, v := range payload {
			if msg.Payload[k] != v {
				t.Fatalf("payload %s changed: expected %v got %v", k, v, msg.Payload[k])
			}
		}
		if !msg.Timestamp.Equal(clock.Now()) {
			t.Fatalf("expected server timestamp %v got %v", clock.Now(), msg.Timestamp)
		}
	}
	if len(drain(t, bystander)) != 0 {
		t.Fatal("non-subscriber received a topic message")
	}
	if got := h.Stats().LastReach[topic.String()]; got != n {
		t.Fatalf("expected recorded reach %d got %d", n, got)
	}
}

func TestPublishToTopicSkipsBrokenConnection(t *testing.T) {
	h := newTestHub(newFakeClock())
	topic := domain.StoreUpdatesTopic(2)
	clients := make([]*Client, 0, 4)
	for i := 0; i < 4; i++ {
		c := connect(h, fmt.Sprintf("u-%d", i), domain.RoleUser, 2)
		if err := h.Subscribe(c, topic); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		clients = append(clients, c)
	}
	broken := clients[1]
	broken.beginClose()
	broken.close(1006, "socket reset")

	reached := h.PublishToTopic(topic, domain.NewDataMessage(domain.EventStoreUpdate, map[string]string{"status": "open"}))
	if reached != len(clients)-1 {
		t.Fatalf("expected %d deliveries got %d", len(clients)-1, reached)
	}
	for _, c := range clients {
		got := len(drain(t, c))
		if c == broken && got != 0 {
			t.Fatal("broken connection received a message")
		}
		if c != broken && got != 1 {
			t.Fatalf("healthy connection %s got %d messages", c.ID(), got)
		}
	}
	if h.Stats().DeliveryFailures != 1 {
		t.Fatalf("expected one recorded failure got %d", h.Stats().DeliveryFailures)
	}
}

func TestPublishToTopicEvictsFullBuffer(t *testing.T) {
	h := newTestHub(newFakeClock())
	topic := domain.StoreUpdatesTopic(4)
	slow := NewClient(h, nil, domain.Identity{UserID: "slow", Role: domain.RoleUser, StoreID: 4}, ClientConfig{SendBuffer: 1})
	h.Register(slow)
	if err := h.Subscribe(slow, topic); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if reached := h.PublishToTopic(topic, domain.NewDataMessage(domain.EventStoreUpdate, nil)); reached != 1 {
		t.Fatalf("expected first delivery got %d", reached)
	}
	if reached := h.PublishToTopic(topic, domain.NewDataMessage(domain.EventStoreUpdate, nil)); reached != 0 {
		t.Fatalf("expected full buffer to refuse delivery got %d", reached)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := h.Get(slow.ID()); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("slow client was not evicted")
		}
		time.Sleep(5 * time.Millisecond)
	}
	assertIndexInverse(t, h)
}

func TestPublishToUserReachesEveryTab(t *testing.T) {
	h := newTestHub(newFakeClock())
	tab1 := connect(h, "u-1", domain.RoleUser, 1)
	tab2 := connect(h, "u-1", domain.RoleUser, 1)
	other := connect(h, "u-2", domain.RoleUser, 1)

	reached := h.PublishToUser("u-1", domain.NewDataMessage(domain.EventUserNotification, map[string]string{"title": "Export ready"}))
	if reached != 2 {
		t.Fatalf("expected both tabs got %d", reached)
	}
	if len(drain(t, tab1)) != 1 || len(drain(t, tab2)) != 1 {
		t.Fatal("every tab must receive the notification")
	}
	if len(drain(t, other)) != 0 {
		t.Fatal("other user received the notification")
	}
}

func TestPublishToAllReachesEveryOpenConnection(t *testing.T) {
	h := newTestHub(newFakeClock())
	a := connect(h, "a", domain.RoleUser, 1)
	b := connect(h, "b", domain.RoleAdmin, 2)
	gone := connect(h, "c", domain.RoleUser, 3)
	h.Remove(gone.ID(), CloseReasonClientClosed)

	if reached := h.PublishToAll(domain.NewDataMessage(domain.EventSystemAnnouncement, map[string]string{"message": "hello"})); reached != 2 {
		t.Fatalf("expected 2 deliveries got %d", reached)
	}
	if len(drain(t, a)) != 1 || len(drain(t, b)) != 1 {
		t.Fatal("open connections must receive the announcement")
	}
}

func TestPublishPreservesOrderWithinTopic(t *testing.T) {
	h := newTestHub(newFakeClock())
	topic := domain.SalesTopic(1)
	c := connect(h, "u-1", domain.RoleUser, 1)
	if err := h.Subscribe(c, topic); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	for i := 0; i < 20; i++ {
		h.PublishToTopic(topic, domain.NewDataMessage(domain.EventSalesDataUpdated, map[string]int{"seq": i}))
	}
	msgs := drain(t, c)
	if len(msgs) != 20 {
		t.Fatalf("expected 20 messages got %d", len(msgs))
	}
	for i, msg := range msgs {
		if int(msg.Payload["seq"].(float64)) != i {
			t.Fatalf("message %d out of order: %v", i, msg.Payload["seq"])
		}
	}
}

func TestSweepEvictsSilentConnections(t *testing.T) {
	clock := newFakeClock()
	h := newTestHub(clock)
	silent := connect(h, "silent", domain.RoleUser, 1)
	steady := connect(h, "steady", domain.RoleUser, 1)
	if err := h.Subscribe(silent, domain.StoreUpdatesTopic(1)); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// The timeout is 30s; silence must exceed it, so eviction lands on the fourth tick.
	for i := 0; i < 6; i++ {
		clock.Advance(10 * time.Second)
		h.Heartbeat(steady)
		evicted := h.Sweep()
		switch {
		case i < 3 && evicted != 0:
			t.Fatalf("tick %d: evicted too early", i)
		case i == 3 && evicted != 1:
			t.Fatalf("tick %d: expected silent connection evicted got %d", i, evicted)
		case i > 3 && evicted != 0:
			t.Fatalf("tick %d: heartbeating connection evicted", i)
		}
	}

	if _, ok := h.Get(silent.ID()); ok {
		t.Fatal("silent connection still registered")
	}
	if silent.Status() != StatusClosed {
		t.Fatalf("expected silent connection closed got %s", silent.Status())
	}
	if _, ok := h.Get(steady.ID()); !ok {
		t.Fatal("steady connection was evicted")
	}
	assertIndexInverse(t, h)
	if h.index.topicCount() != 0 {
		t.Fatal("evicted connection left subscriptions behind")
	}
}

func TestShutdownClosesEverything(t *testing.T) {
	h := newTestHub(newFakeClock())
	a := connect(h, "a", domain.RoleUser, 1)
	if err := h.Subscribe(a, domain.GlobalTopic(domain.TopicSystemAnnouncements)); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	h.Shutdown()
	if a.Status() != StatusClosed {
		t.Fatal("shutdown left a connection open")
	}
	if h.PublishToAll(domain.NewDataMessage(domain.EventSystemAnnouncement, nil)) != 0 {
		t.Fatal("publish after shutdown reached a connection")
	}
	if err := a.SendEnvelope(domain.NewPong()); !errors.Is(err, ErrClientClosing) {
		t.Fatalf("expected ErrClientClosing got %v", err)
	}
}

func TestRegisterAfterShutdownClosesClient(t *testing.T) {
	h := newTestHub(newFakeClock())
	h.Shutdown()

	late := NewClient(h, nil, domain.Identity{UserID: "late", Role: domain.RoleUser, StoreID: 1}, ClientConfig{})
	if h.Register(late) {
		t.Fatal("register after shutdown must be refused")
	}
	if late.Status() != StatusClosed {
		t.Fatalf("late client left %s", late.Status())
	}
	if _, ok := h.Get(late.ID()); ok || h.Stats().TotalConnections != 0 {
		t.Fatal("late client must not enter the registry")
	}
}

func TestStatsCountsByRoleAndTopic(t *testing.T) {
	h := newTestHub(newFakeClock())
	a := connect(h, "a", domain.RoleUser, 7)
	b := connect(h, "b", domain.RoleAdmin, 7)
	connect(h, "c", domain.RoleSuperAdmin, 1)
	for _, c := range []*Client{a, b} {
		if err := h.Subscribe(c, domain.StoreUpdatesTopic(7)); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
	}
	if err := h.Subscribe(b, domain.BusinessTypeTopic(2)); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	stats := h.Stats()
	if stats.TotalConnections != 3 {
		t.Fatalf("expected 3 connections got %d", stats.TotalConnections)
	}
	if stats.ConnectionsByRole["user"] != 1 || stats.ConnectionsByRole["admin"] != 1 || stats.ConnectionsByRole["super_admin"] != 1 {
		t.Fatalf("unexpected role counts %v", stats.ConnectionsByRole)
	}
	if stats.TopicSubscribers["store-7-updates"] != 2 || stats.TopicSubscribers["business-type-2"] != 1 || stats.ActiveTopics != 2 {
		t.Fatalf("unexpected topic counts %v", stats.TopicSubscribers)
	}
}

func TestSalesTopicIsolationBetweenStores(t *testing.T) {
	h := newTestHub(newFakeClock())
	a := connect(h, "a", domain.RoleUser, 7)
	b := connect(h, "b", domain.RoleUser, 9)

	if err := h.Subscribe(a, domain.SalesTopic(7)); err != nil {
		t.Fatalf("A subscribe sales-data-7: %v", err)
	}
	if err := h.Subscribe(b, domain.SalesTopic(7)); !errors.Is(err, ErrSubscriptionDenied) {
		t.Fatalf("B subscribe sales-data-7 expected denial got %v", err)
	}
	if err := h.Subscribe(a, domain.StoreUpdatesTopic(7)); err != nil {
		t.Fatalf("A subscribe store-7-updates: %v", err)
	}
	if err := h.Subscribe(b, domain.StoreUpdatesTopic(9)); err != nil {
		t.Fatalf("B subscribe store-9-updates: %v", err)
	}

	h.PublishToTopic(domain.SalesTopic(7), domain.NewDataMessage(domain.EventSalesDataUpdated, map[string]int{"storeId": 7}))
	h.PublishToTopic(domain.StoreUpdatesTopic(7), domain.NewDataMessage(domain.EventStoreUpdate, map[string]int{"storeId": 7}))
	h.PublishToTopic(domain.StoreUpdatesTopic(9), domain.NewDataMessage(domain.EventStoreUpdate, map[string]int{"storeId": 9}))

	gotA := drain(t, a)
	if len(gotA) != 2 || gotA[0].Event != domain.EventSalesDataUpdated || gotA[1].Topic != "store-7-updates" {
		t.Fatalf("unexpected messages for A: %#v", gotA)
	}
	gotB := drain(t, b)
	if len(gotB) != 1 || gotB[0].Topic != "store-9-updates" {
		t.Fatalf("unexpected messages for B: %#v", gotB)
	}
}
