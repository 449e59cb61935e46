package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/firstserv/chat-platform/internal/model"
	"github.com/firstserv/chat-platform/internal/store"
	"github.com/firstserv/chat-platform/pkg/logger"
)

// fakeGateway records appended messages per conversation, mimicking the
// store's append-only log. IncrementReaction does a plain read-modify-write
// the way the real gateway does, relying on the dispatcher to serialize.
type fakeGateway struct {
	mu      sync.Mutex
	logs    map[string][]*model.Message
	failAll bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{logs: make(map[string][]*model.Message)}
}

func (g *fakeGateway) AppendMessage(conversationID string, msg *model.Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failAll {
		return store.ErrUnavailable
	}
	g.logs[conversationID] = append(g.logs[conversationID], msg)
	return nil
}

func (g *fakeGateway) IncrementReaction(conversationID, messageID, symbol string) (*model.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, msg := range g.logs[conversationID] {
		if msg.ID == messageID {
			if msg.Reactions == nil {
				msg.Reactions = map[string]int{}
			}
			msg.Reactions[symbol]++
			return msg, nil
		}
	}
	return nil, store.ErrNotFound
}

func (g *fakeGateway) log(conversationID string) []*model.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*model.Message(nil), g.logs[conversationID]...)
}

// recordingBroadcaster records every broadcast event in order.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []*model.ServerEvent
}

func (b *recordingBroadcaster) Broadcast(conversationID string, ev *model.ServerEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *recordingBroadcaster) all() []*model.ServerEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*model.ServerEvent(nil), b.events...)
}

func TestSubmitFinalizesMessage(t *testing.T) {
	gw := newFakeGateway()
	bc := &recordingBroadcaster{}
	d := New(gw, bc, logger.NewNop())

	before := time.Now().UTC()
	msg, err := d.Submit(context.Background(), "c1", "alice", "hello", "")
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	if msg.ID == "" {
		t.Error("message has no server-assigned identifier")
	}
	if msg.Timestamp.Before(before) {
		t.Error("message timestamp precedes submission")
	}
	if msg.Reactions == nil {
		t.Error("message reactions map is nil")
	}

	events := bc.all()
	if len(events) != 1 {
		t.Fatalf("broadcast %d events, want 1", len(events))
	}
	if events[0].Type != model.EventTypeMessage || events[0].ID != msg.ID {
		t.Errorf("broadcast event does not match the persisted message")
	}
}

func TestConcurrentSubmitOrderMatchesBroadcastOrder(t *testing.T) {
	gw := newFakeGateway()
	bc := &recordingBroadcaster{}
	d := New(gw, bc, logger.NewNop())

	const workers = 8
	const perWorker = 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				content := fmt.Sprintf("w%d-%d", w, i)
				if _, err := d.Submit(context.Background(), "c1", "alice", content, ""); err != nil {
					t.Errorf("Submit returned error: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	persisted := gw.log("c1")
	events := bc.all()
	if len(persisted) != workers*perWorker {
		t.Fatalf("persisted %d messages, want %d", len(persisted), workers*perWorker)
	}
	if len(events) != len(persisted) {
		t.Fatalf("broadcast %d events for %d persisted messages", len(events), len(persisted))
	}

	for i := range persisted {
		if events[i].ID != persisted[i].ID {
			t.Fatalf("broadcast order diverges from persisted order at index %d", i)
		}
	}
	for i := 1; i < len(persisted); i++ {
		if persisted[i].Timestamp.Before(persisted[i-1].Timestamp) {
			t.Fatalf("timestamps go backwards at index %d", i)
		}
	}
}

func TestIndependentConversationsDoNotInterleaveState(t *testing.T) {
	gw := newFakeGateway()
	bc := &recordingBroadcaster{}
	d := New(gw, bc, logger.NewNop())

	var wg sync.WaitGroup
	for _, conv := range []string{"c1", "c2"} {
		wg.Add(1)
		go func(conv string) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if _, err := d.Submit(context.Background(), conv, "alice", "x", ""); err != nil {
					t.Errorf("Submit(%s) returned error: %v", conv, err)
					return
				}
			}
		}(conv)
	}
	wg.Wait()

	if n := len(gw.log("c1")); n != 20 {
		t.Errorf("c1 has %d messages, want 20", n)
	}
	if n := len(gw.log("c2")); n != 20 {
		t.Errorf("c2 has %d messages, want 20", n)
	}
}

func TestSubmitStoreFailureBroadcastsNothing(t *testing.T) {
	gw := newFakeGateway()
	gw.failAll = true
	bc := &recordingBroadcaster{}
	d := New(gw, bc, logger.NewNop())

	if _, err := d.Submit(context.Background(), "c1", "alice", "hello", ""); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("Submit = %v, want store.ErrUnavailable", err)
	}
	if events := bc.all(); len(events) != 0 {
		t.Errorf("broadcast %d events after store failure, want 0", len(events))
	}
}

func TestSubmitCancelledContext(t *testing.T) {
	gw := newFakeGateway()
	bc := &recordingBroadcaster{}
	d := New(gw, bc, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := d.Submit(ctx, "c1", "alice", "hello", ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("Submit = %v, want context.Canceled", err)
	}
	if len(gw.log("c1")) != 0 {
		t.Error("cancelled submission was persisted")
	}
}

func TestTypingIsNotPersisted(t *testing.T) {
	gw := newFakeGateway()
	bc := &recordingBroadcaster{}
	d := New(gw, bc, logger.NewNop())

	d.Typing("c1", "alice")

	if len(gw.log("c1")) != 0 {
		t.Error("typing indicator was persisted")
	}
	events := bc.all()
	if len(events) != 1 {
		t.Fatalf("broadcast %d events, want 1", len(events))
	}
	if events[0].Type != model.EventTypeTyping || events[0].User != "alice" {
		t.Errorf("typing event = %+v", events[0])
	}
}

func TestConcurrentReactionsNeverLoseUpdates(t *testing.T) {
	gw := newFakeGateway()
	bc := &recordingBroadcaster{}
	d := New(gw, bc, logger.NewNop())

	msg, err := d.Submit(context.Background(), "c1", "alice", "hello", "")
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	const reactions = 50
	var wg sync.WaitGroup
	for i := 0; i < reactions; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := d.AddReaction(context.Background(), "c1", msg.ID, "thumbs_up"); err != nil {
				t.Errorf("AddReaction returned error: %v", err)
			}
		}()
	}
	wg.Wait()

	updated, err := gw.IncrementReaction("c1", msg.ID, "probe")
	if err != nil {
		t.Fatalf("reading back message: %v", err)
	}
	if updated.Reactions["thumbs_up"] != reactions {
		t.Errorf("reaction count = %d, want %d", updated.Reactions["thumbs_up"], reactions)
	}
}

func TestAddReactionUnknownMessage(t *testing.T) {
	gw := newFakeGateway()
	bc := &recordingBroadcaster{}
	d := New(gw, bc, logger.NewNop())

	if _, err := d.AddReaction(context.Background(), "c1", "missing", "thumbs_up"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("AddReaction = %v, want store.ErrNotFound", err)
	}
	if events := bc.all(); len(events) != 0 {
		t.Errorf("broadcast %d events after failed reaction, want 0", len(events))
	}
}

func TestForgetReleasesConversationState(t *testing.T) {
	gw := newFakeGateway()
	bc := &recordingBroadcaster{}
	d := New(gw, bc, logger.NewNop())

	if _, err := d.Submit(context.Background(), "c1", "alice", "hello", ""); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	d.mu.Lock()
	before := len(d.states)
	d.mu.Unlock()
	if before != 1 {
		t.Fatalf("dispatcher holds %d conversation states, want 1", before)
	}

	d.Forget("c1")

	d.mu.Lock()
	after := len(d.states)
	d.mu.Unlock()
	if after != 0 {
		t.Errorf("dispatcher holds %d conversation states after Forget, want 0", after)
	}
}

func TestMultiBroadcasterFansOutInOrder(t *testing.T) {
	first := &recordingBroadcaster{}
	second := &recordingBroadcaster{}
	mb := MultiBroadcaster(first, second)

	ev := model.NewTypingEvent("alice")
	mb.Broadcast("c1", ev)

	for i, bc := range []*recordingBroadcaster{first, second} {
		events := bc.all()
		if len(events) != 1 || events[0] != ev {
			t.Errorf("broadcaster %d did not receive the event", i)
		}
	}
}
