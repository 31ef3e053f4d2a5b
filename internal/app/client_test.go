package app

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/straychat/straychat/internal/chat"
	"github.com/straychat/straychat/internal/config"
	"github.com/straychat/straychat/internal/moderation"
	"github.com/straychat/straychat/internal/protocol"
	"github.com/straychat/straychat/internal/session"
	"github.com/straychat/straychat/internal/signaling"
	"github.com/straychat/straychat/internal/util"
)

// fakeTransport is both halves of the transport: it records emits and lets
// tests inject inbound events by name.
type fakeTransport struct {
	mu       sync.Mutex
	up       bool
	events   []string
	payloads []any

	handlers     map[string]signaling.Handler
	onConnect    func()
	onDisconnect func(error)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{up: true, handlers: map[string]signaling.Handler{}}
}

func (f *fakeTransport) Emit(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.up {
		return errors.New("not connected")
	}
	f.events = append(f.events, event)
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeTransport) setUp(up bool) {
	f.mu.Lock()
	f.up = up
	f.mu.Unlock()
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.up
}

func (f *fakeTransport) On(event string, fn signaling.Handler) { f.handlers[event] = fn }
func (f *fakeTransport) OnConnect(fn func())                   { f.onConnect = fn }
func (f *fakeTransport) OnDisconnect(fn func(error))           { f.onDisconnect = fn }

func (f *fakeTransport) push(t *testing.T, event string, payload any) {
	t.Helper()
	fn, ok := f.handlers[event]
	require.True(t, ok, "no handler registered for %s", event)
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	fn(data)
}

func (f *fakeTransport) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	copy(out, f.events)
	return out
}

func (f *fakeTransport) count(event string) int {
	n := 0
	for _, e := range f.sent() {
		if e == event {
			n++
		}
	}
	return n
}

// fakeRenderer records render calls.
type fakeRenderer struct {
	mu       sync.Mutex
	statuses []string
	lines    []chat.Line
	notices  []string
	input    bool
	confirm  bool
	online   int
	typing   bool
}

func (f *fakeRenderer) Status(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, text)
}

func (f *fakeRenderer) Append(line chat.Line) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, line)
}

func (f *fakeRenderer) Typing(active bool)      { f.mu.Lock(); f.typing = active; f.mu.Unlock() }
func (f *fakeRenderer) Online(count int)        { f.mu.Lock(); f.online = count; f.mu.Unlock() }
func (f *fakeRenderer) ConfirmExit(v bool)      { f.mu.Lock(); f.confirm = v; f.mu.Unlock() }
func (f *fakeRenderer) InputEnabled(v bool)     { f.mu.Lock(); f.input = v; f.mu.Unlock() }
func (f *fakeRenderer) Notice(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, text)
}

// fakeNegotiator records negotiation calls for video-mode tests.
type fakeNegotiator struct {
	began    []string
	signals  []protocol.SignalData
	teardown int
	notice   func(string)
}

func (f *fakeNegotiator) AcquireLocal() error { return nil }
func (f *fakeNegotiator) Begin(token string, _ session.Role) error {
	f.began = append(f.began, token)
	return nil
}
func (f *fakeNegotiator) HandleSignal(_ string, data protocol.SignalData) error {
	f.signals = append(f.signals, data)
	return nil
}
func (f *fakeNegotiator) Teardown()               { f.teardown++ }
func (f *fakeNegotiator) Close()                  {}
func (f *fakeNegotiator) OnNotice(fn func(string)) { f.notice = fn }

func testConfig(mode string) *config.Config {
	return &config.Config{
		ServerURL:    "wss://example.net/ws",
		Mode:         mode,
		TypingIdleMS: config.DefaultTypingIdleMS,
	}
}

func newTextClient(t *testing.T) (*Client, *fakeTransport, *fakeRenderer) {
	t.Helper()
	transport := newFakeTransport()
	renderer := &fakeRenderer{}
	store, err := moderation.OpenStore(filepath.Join(t.TempDir(), "mod.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	client := New(testConfig("text"), transport, transport, renderer, nil, store)
	return client, transport, renderer
}

func newVideoClient(t *testing.T) (*Client, *fakeTransport, *fakeRenderer, *fakeNegotiator) {
	t.Helper()
	transport := newFakeTransport()
	renderer := &fakeRenderer{}
	neg := &fakeNegotiator{}
	client := New(testConfig("video"), transport, transport, renderer, neg, nil)
	return client, transport, renderer, neg
}

func TestTextFlowStartMatchChat(t *testing.T) {
	client, transport, renderer := newTextClient(t)

	client.Start()
	client.pump()
	assert.Equal(t, session.Searching, client.machine.State())
	require.Equal(t, []string{protocol.EventStart}, transport.sent())
	assert.Equal(t, client.SelfID(), transport.payloads[0])

	// A second start while searching must not re-enter the queue.
	client.Start()
	client.pump()
	assert.Equal(t, 1, transport.count(protocol.EventStart))

	transport.push(t, protocol.EventChatStart, "You are now chatting with a random stranger. Say hi!")
	client.pump()
	assert.Equal(t, session.Active, client.machine.State())
	assert.True(t, renderer.input)

	client.Send("hi there")
	client.pump()
	assert.Equal(t, 1, transport.count(protocol.EventMessageToServer))
	require.Len(t, client.relay.Lines(), 1, "own line waits for the server echo")

	// The partner's message reached the server first; the echo follows.
	transport.push(t, protocol.EventMessageToClient, protocol.MessagePayload{ID: "them", Msg: "hello"})
	transport.push(t, protocol.EventMessageToClient, protocol.MessagePayload{ID: client.SelfID(), Msg: "hi there"})
	client.pump()
	lines := client.relay.Lines()
	require.Len(t, lines, 3) // banner, partner line, echoed own line
	assert.Equal(t, chat.Partner, lines[1].Sender)
	assert.Equal(t, chat.Self, lines[2].Sender)
	assert.Equal(t, "them", client.relay.PartnerID())
}

func TestPartnerDisconnectEndsAndResets(t *testing.T) {
	client, transport, renderer := newTextClient(t)
	client.Start()
	transport.push(t, protocol.EventChatStart, "connected")
	client.pump()
	require.Equal(t, session.Active, client.machine.State())

	transport.push(t, protocol.EventStrangerDisconnected, nil)
	client.pump()

	// Terminated sessions clean straight through to Idle.
	assert.Equal(t, session.Idle, client.machine.State())
	assert.False(t, renderer.input)
	assert.Empty(t, client.relay.PartnerID())

	// A duplicate disconnect for the dead session is inert.
	transport.push(t, protocol.EventStrangerDisconnected, nil)
	client.pump()
	assert.Equal(t, session.Idle, client.machine.State())

	// And the user can search again.
	client.Start()
	client.pump()
	assert.Equal(t, session.Searching, client.machine.State())
}

func TestStopWhileActiveNeedsConfirmation(t *testing.T) {
	client, transport, renderer := newTextClient(t)
	client.Start()
	transport.push(t, protocol.EventChatStart, "connected")
	client.pump()

	client.Stop()
	client.pump()
	assert.True(t, renderer.confirm)
	assert.Equal(t, session.Ending, client.machine.State())
	assert.Zero(t, transport.count(protocol.EventStop))

	client.CancelExit()
	client.pump()
	assert.False(t, renderer.confirm)
	assert.Equal(t, session.Active, client.machine.State())

	client.Stop()
	client.ConfirmExit()
	client.pump()
	assert.Equal(t, session.Idle, client.machine.State())
	assert.Equal(t, 1, transport.count(protocol.EventStop))
}

func TestNextSkipsConfirmationAndRequeues(t *testing.T) {
	client, transport, _ := newTextClient(t)
	client.Start()
	transport.push(t, protocol.EventChatStart, "connected")
	client.pump()

	client.Next()
	client.pump()

	assert.Equal(t, session.Searching, client.machine.State())
	assert.Equal(t, 1, transport.count(protocol.EventStop))
	assert.Equal(t, 2, transport.count(protocol.EventStart))
}

func TestSendOutsideChatIsNotice(t *testing.T) {
	client, transport, renderer := newTextClient(t)

	client.Send("anyone there?")
	client.pump()
	assert.Zero(t, transport.count(protocol.EventMessageToServer))
	require.Len(t, renderer.notices, 1)
}

func TestVideoMatchInitiatorBeginsMedia(t *testing.T) {
	client, transport, _, neg := newVideoClient(t)

	client.Start()
	client.pump()
	assert.Equal(t, 1, transport.count(protocol.EventFind))

	transport.push(t, protocol.EventMatched, protocol.MatchedPayload{Room: "r1", Initiator: true})
	client.pump()

	require.Equal(t, []string{"r1"}, neg.began)
	// The initiator's own offer activates the session.
	assert.Equal(t, session.Active, client.machine.State())
}

func TestVideoResponderActivatesOnOffer(t *testing.T) {
	client, transport, _, neg := newVideoClient(t)
	client.Start()
	transport.push(t, protocol.EventMatched, protocol.MatchedPayload{Room: "r1", Initiator: false})
	client.pump()
	assert.Equal(t, session.Matched, client.machine.State())

	transport.push(t, protocol.EventSignal, protocol.SignalPayload{
		Room: "r1",
		Data: protocol.SignalData{Type: protocol.SignalOffer, SDP: "sdp"},
	})
	client.pump()
	require.Len(t, neg.signals, 1)
	assert.Equal(t, session.Active, client.machine.State())
}

func TestStaleRoomSignalDropped(t *testing.T) {
	client, transport, _, neg := newVideoClient(t)
	client.Start()
	transport.push(t, protocol.EventMatched, protocol.MatchedPayload{Room: "r2", Initiator: false})
	client.pump()

	transport.push(t, protocol.EventSignal, protocol.SignalPayload{
		Room: "r1",
		Data: protocol.SignalData{Type: protocol.SignalOffer, SDP: "old"},
	})
	client.pump()
	assert.Empty(t, neg.signals)
	assert.Equal(t, session.Matched, client.machine.State())
}

func TestTransportLossEndsSessionAndSearch(t *testing.T) {
	client, transport, _ := newTextClient(t)
	client.Start()
	transport.push(t, protocol.EventChatStart, "connected")
	client.pump()

	transport.onDisconnect(assert.AnError)
	client.pump()
	assert.Equal(t, session.Idle, client.machine.State())

	// A drop mid-search terminates too; the reconnect must not requeue.
	client.Start()
	client.pump()
	transport.onDisconnect(assert.AnError)
	client.pump()
	assert.Equal(t, session.Idle, client.machine.State())

	before := transport.count(protocol.EventStart)
	transport.onConnect()
	client.pump()
	assert.Equal(t, before, transport.count(protocol.EventStart))
}

func TestStartWhileDisconnectedReplaysOnce(t *testing.T) {
	client, transport, renderer := newTextClient(t)
	transport.setUp(false)

	client.Start()
	client.pump()
	assert.Equal(t, session.Searching, client.machine.State())
	assert.Zero(t, transport.count(protocol.EventStart))
	assert.Contains(t, renderer.statuses, "Connecting to server...")

	transport.setUp(true)
	transport.onConnect()
	client.pump()
	assert.Equal(t, 1, transport.count(protocol.EventStart))

	// A later reconnect has nothing pending to replay.
	transport.onConnect()
	client.pump()
	assert.Equal(t, 1, transport.count(protocol.EventStart))
}

func TestShutdownEndsSessionWithoutRequeue(t *testing.T) {
	client, transport, _ := newTextClient(t)
	client.Start()
	transport.push(t, protocol.EventChatStart, "connected")
	client.pump()
	require.Equal(t, session.Active, client.machine.State())

	client.shutdown()

	assert.Equal(t, session.Idle, client.machine.State())
	assert.Equal(t, 1, transport.count(protocol.EventStop))
	assert.Equal(t, 1, transport.count(protocol.EventStart), "an exiting client must not rejoin the queue")
}

func TestBlockPersistsAndSkips(t *testing.T) {
	client, transport, _ := newTextClient(t)
	client.Start()
	transport.push(t, protocol.EventChatStart, "connected")
	transport.push(t, protocol.EventMessageToClient, protocol.MessagePayload{ID: "them", Msg: "hi"})
	client.pump()

	client.Block()
	client.pump()

	assert.Equal(t, 1, transport.count(protocol.EventBlock))
	assert.Equal(t, session.Searching, client.machine.State(), "block skips to the next stranger")
}

func TestReportEndsChatAndRequeues(t *testing.T) {
	client, transport, _ := newTextClient(t)
	client.Start()
	transport.push(t, protocol.EventChatStart, "connected")
	transport.push(t, protocol.EventMessageToClient, protocol.MessagePayload{ID: "them", Msg: "hi"})
	client.pump()

	client.Report("spam")
	client.pump()

	assert.Equal(t, 1, transport.count(protocol.EventReport))
	assert.Equal(t, 1, transport.count(protocol.EventStop))
	assert.Equal(t, session.Searching, client.machine.State(), "report skips to the next stranger")
}

func TestModerationBeforePartnerKnown(t *testing.T) {
	client, transport, renderer := newTextClient(t)
	client.Start()
	transport.push(t, protocol.EventChatStart, "connected")
	client.pump()

	client.Block()
	client.pump()
	assert.Zero(t, transport.count(protocol.EventBlock))
	require.NotEmpty(t, renderer.notices)
}

func TestDuplicateMatchNotCountedTwice(t *testing.T) {
	client, transport, _, _ := newVideoClient(t)
	client.Start()
	client.pump()

	before := util.Stats.Sessions.Load()
	transport.push(t, protocol.EventMatched, protocol.MatchedPayload{Room: "r1", Initiator: true})
	client.pump()
	assert.Equal(t, before+1, util.Stats.Sessions.Load())

	// A duplicate announcement for the live session is a no-op transition
	// and must not inflate the counter.
	transport.push(t, protocol.EventMatched, protocol.MatchedPayload{Room: "r1", Initiator: true})
	client.pump()
	assert.Equal(t, before+1, util.Stats.Sessions.Load())
}

func TestOnlineCountRendered(t *testing.T) {
	client, transport, renderer := newTextClient(t)
	transport.push(t, protocol.EventOnlineCount, 4213)
	client.pump()
	assert.Equal(t, 4213, renderer.online)
}

func TestRemoteTypingIndicator(t *testing.T) {
	client, transport, renderer := newTextClient(t)
	client.Start()
	transport.push(t, protocol.EventChatStart, "connected")
	client.pump()

	transport.push(t, protocol.EventStrangerTyping, nil)
	client.pump()
	assert.True(t, renderer.typing)

	transport.push(t, protocol.EventStrangerDoneTyping, nil)
	client.pump()
	assert.False(t, renderer.typing)
}
