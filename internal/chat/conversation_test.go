package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeGateway struct {
	mu sync.Mutex

	histories  map[int64][]Message
	historyErr error
	// gates block ConversationHistory for a given id until closed,
	// letting tests force completion order. started, when set, receives
	// the id as soon as a fetch begins.
	gates   map[int64]chan struct{}
	started chan int64

	sendResult SendResult
	sendErr    error
	sentIDs    []*int64
	sentKeys   []string
}

func (f *fakeGateway) ConversationHistory(ctx context.Context, id int64) ([]Message, error) {
	f.mu.Lock()
	gate := f.gates[id]
	started := f.started
	f.mu.Unlock()
	if started != nil {
		started <- id
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.histories[id], nil
}

func (f *fakeGateway) SendMessage(ctx context.Context, id *int64, message, key string) (SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var idCopy *int64
	if id != nil {
		v := *id
		idCopy = &v
	}
	f.sentIDs = append(f.sentIDs, idCopy)
	f.sentKeys = append(f.sentKeys, key)
	if f.sendErr != nil {
		return SendResult{}, f.sendErr
	}
	return f.sendResult, nil
}

func TestSendNewChatAdoptsMintedID(t *testing.T) {
	gw := &fakeGateway{sendResult: SendResult{ConversationID: 42, Reply: "Hi there"}}

	var created []int64
	conv := NewConversation(gw, func(id int64) { created = append(created, id) }, nil)

	if err := conv.Send(context.Background(), "Hello"); err != nil {
		t.Fatalf("send: %v", err)
	}

	v := conv.View()
	if v.ConversationID == nil || *v.ConversationID != 42 {
		t.Fatalf("expected adopted id 42, got %v", v.ConversationID)
	}
	if len(v.Transcript) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(v.Transcript))
	}
	if v.Transcript[0].Role != RoleUser || v.Transcript[0].Content != "Hello" {
		t.Fatalf("unexpected user entry: %+v", v.Transcript[0])
	}
	if v.Transcript[1].Role != RoleAssistant || v.Transcript[1].Content != "Hi there" {
		t.Fatalf("unexpected assistant entry: %+v", v.Transcript[1])
	}
	if len(created) != 1 || created[0] != 42 {
		t.Fatalf("expected one onCreated(42) notification, got %v", created)
	}
	if len(gw.sentIDs) != 1 || gw.sentIDs[0] != nil {
		t.Fatalf("expected send without conversation id")
	}
	if gw.sentKeys[0] == "" {
		t.Fatalf("expected an idempotency key on the send")
	}
}

func TestSendAdoptsIDOnlyOnce(t *testing.T) {
	gw := &fakeGateway{sendResult: SendResult{ConversationID: 42, Reply: "first"}}

	var created []int64
	conv := NewConversation(gw, func(id int64) { created = append(created, id) }, nil)

	if err := conv.Send(context.Background(), "one"); err != nil {
		t.Fatalf("send one: %v", err)
	}
	gw.mu.Lock()
	gw.sendResult = SendResult{ConversationID: 42, Reply: "second"}
	gw.mu.Unlock()
	if err := conv.Send(context.Background(), "two"); err != nil {
		t.Fatalf("send two: %v", err)
	}

	if len(created) != 1 {
		t.Fatalf("expected a single onCreated call, got %d", len(created))
	}
	if gw.sentIDs[1] == nil || *gw.sentIDs[1] != 42 {
		t.Fatalf("second send should carry the adopted id, got %v", gw.sentIDs[1])
	}
}

func TestSendFailureKeepsOptimisticEntry(t *testing.T) {
	gw := &fakeGateway{sendErr: errors.New("boom")}
	conv := NewConversation(gw, nil, nil)

	err := conv.Send(context.Background(), "Hello")
	if err == nil {
		t.Fatalf("expected send error")
	}

	v := conv.View()
	if len(v.Transcript) != 1 {
		t.Fatalf("expected optimistic entry to survive, got %d messages", len(v.Transcript))
	}
	if v.Transcript[0].Role != RoleUser || v.Transcript[0].Content != "Hello" {
		t.Fatalf("unexpected surviving entry: %+v", v.Transcript[0])
	}
	if v.ConversationID != nil {
		t.Fatalf("conversation id must remain unset after a failed create")
	}
	if v.Err == nil {
		t.Fatalf("expected error flag to be set")
	}
	if v.Sending {
		t.Fatalf("send must not stay in flight after failure")
	}
}

func TestSendBlankIsNoOp(t *testing.T) {
	gw := &fakeGateway{}
	conv := NewConversation(gw, nil, nil)

	if err := conv.Send(context.Background(), "   \t\n"); err != nil {
		t.Fatalf("blank send: %v", err)
	}
	if len(gw.sentKeys) != 0 {
		t.Fatalf("blank send must not reach the gateway")
	}
	if len(conv.View().Transcript) != 0 {
		t.Fatalf("blank send must not touch the transcript")
	}
}

func TestSendSingleFlight(t *testing.T) {
	gw := &fakeGateway{sendResult: SendResult{ConversationID: 1, Reply: "ok"}}
	conv := NewConversation(gw, nil, nil)

	// Simulate an unresolved send by flipping the flag the way Send does.
	conv.mu.Lock()
	conv.sending = true
	conv.mu.Unlock()

	if err := conv.Send(context.Background(), "again"); !errors.Is(err, ErrSendInFlight) {
		t.Fatalf("expected ErrSendInFlight, got %v", err)
	}
	if len(gw.sentKeys) != 0 {
		t.Fatalf("overlapping send must not reach the gateway")
	}
}

func TestSendWhileHistoryLoadingIsRefused(t *testing.T) {
	gate := make(chan struct{})
	gw := &fakeGateway{
		histories: map[int64][]Message{
			7: {
				{Role: RoleUser, Content: "old q"},
				{Role: RoleAssistant, Content: "old a"},
			},
		},
		gates:      map[int64]chan struct{}{7: gate},
		started:    make(chan int64, 1),
		sendResult: SendResult{ConversationID: 7, Reply: "late"},
	}
	conv := NewConversation(gw, nil, nil)

	done := make(chan error, 1)
	go func() { done <- conv.Select(context.Background(), 7) }()
	<-gw.started

	// Mid-fetch the composer must be refused: an accepted send would be
	// wiped when the fetch resolves and replaces the transcript.
	if err := conv.Send(context.Background(), "fresh question"); !errors.Is(err, ErrFetchInFlight) {
		t.Fatalf("expected ErrFetchInFlight during a loading fetch, got %v", err)
	}
	if len(gw.sentKeys) != 0 {
		t.Fatalf("refused send must not reach the gateway")
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("select: %v", err)
	}

	v := conv.View()
	if len(v.Transcript) != 2 || v.Transcript[0].Content != "old q" {
		t.Fatalf("unexpected transcript after fetch: %+v", v.Transcript)
	}

	// Once the fetch has resolved, sends go through and append in order.
	if err := conv.Send(context.Background(), "fresh question"); err != nil {
		t.Fatalf("send after load: %v", err)
	}
	v = conv.View()
	if len(v.Transcript) != 4 ||
		v.Transcript[2].Content != "fresh question" ||
		v.Transcript[3].Content != "late" {
		t.Fatalf("send after load must append, got %+v", v.Transcript)
	}
}

func TestSelectReplacesTranscript(t *testing.T) {
	gw := &fakeGateway{histories: map[int64][]Message{
		7: {
			{Role: RoleUser, Content: "q", CreatedAt: time.Now()},
			{Role: RoleAssistant, Content: "a", CreatedAt: time.Now()},
		},
	}}
	conv := NewConversation(gw, nil, nil)

	if err := conv.Select(context.Background(), 7); err != nil {
		t.Fatalf("select: %v", err)
	}
	v := conv.View()
	if v.ConversationID == nil || *v.ConversationID != 7 {
		t.Fatalf("expected id 7, got %v", v.ConversationID)
	}
	if len(v.Transcript) != 2 || v.Loading {
		t.Fatalf("expected loaded transcript, got %+v", v)
	}
}

func TestSelectLastIssuedWins(t *testing.T) {
	gateA := make(chan struct{})
	gw := &fakeGateway{
		histories: map[int64][]Message{
			1: {{Role: RoleUser, Content: "from A"}},
			2: {{Role: RoleUser, Content: "from B"}},
		},
		gates:   map[int64]chan struct{}{1: gateA},
		started: make(chan int64, 2),
	}
	conv := NewConversation(gw, nil, nil)

	done := make(chan error, 1)
	go func() { done <- conv.Select(context.Background(), 1) }()
	if id := <-gw.started; id != 1 {
		t.Fatalf("expected fetch for 1 to start first, got %d", id)
	}

	// B is issued after A and resolves immediately.
	if err := conv.Select(context.Background(), 2); err != nil {
		t.Fatalf("select B: %v", err)
	}
	<-gw.started

	// Now let A's slower fetch come back.
	close(gateA)
	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected A to be superseded, got %v", err)
	}

	v := conv.View()
	if v.ConversationID == nil || *v.ConversationID != 2 {
		t.Fatalf("expected selected id 2, got %v", v.ConversationID)
	}
	if len(v.Transcript) != 1 || v.Transcript[0].Content != "from B" {
		t.Fatalf("late fetch for A clobbered B's transcript: %+v", v.Transcript)
	}
}

func TestSelectFailureSetsError(t *testing.T) {
	gw := &fakeGateway{historyErr: errors.New("offline")}
	conv := NewConversation(gw, nil, nil)

	if err := conv.Select(context.Background(), 3); err == nil {
		t.Fatalf("expected fetch error")
	}
	v := conv.View()
	if v.Err == nil || v.Loading {
		t.Fatalf("expected error state, got %+v", v)
	}
	if len(v.Transcript) != 0 {
		t.Fatalf("transcript must stay empty on fetch failure")
	}
}

func TestResetDiscardsInFlightSend(t *testing.T) {
	gw := &fakeGateway{sendResult: SendResult{ConversationID: 9, Reply: "late"}}
	conv := NewConversation(gw, nil, nil)

	conv.mu.Lock()
	conv.transcript = append(conv.transcript, Message{Role: RoleUser, Content: "old"})
	token := conv.epoch
	conv.mu.Unlock()

	conv.Reset()

	// A completion carrying the pre-Reset token must be discarded; drive
	// the same check Send performs.
	conv.mu.Lock()
	stale := token != conv.epoch
	conv.mu.Unlock()
	if !stale {
		t.Fatalf("reset must invalidate outstanding work")
	}

	v := conv.View()
	if v.ConversationID != nil || len(v.Transcript) != 0 || v.Err != nil {
		t.Fatalf("reset must yield a fresh anonymous session, got %+v", v)
	}
}
