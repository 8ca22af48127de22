package router

import (
	"context"
	"sync"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bera-tech-ai/gramX/internal/auth"
	"github.com/bera-tech-ai/gramX/internal/completion"
	"github.com/bera-tech-ai/gramX/internal/directory"
	"github.com/bera-tech-ai/gramX/internal/domain"
	"github.com/bera-tech-ai/gramX/internal/store"
	"github.com/bera-tech-ai/gramX/internal/summary"
)

type fakeConn struct {
	session *domain.Session
	mu      sync.Mutex
	events  []interface{}
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{session: domain.NewSession(id)}
}

func (c *fakeConn) SendMessage(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, v)
	return nil
}

func (c *fakeConn) GetSession() *domain.Session { return c.session }

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

func eventsOf[T any](c *fakeConn) []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []T
	for _, e := range c.events {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []interface{}
}

func (b *fakeBroadcaster) Broadcast(v interface{}, exclude string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, v)
	return nil
}

type fakeVerifier struct {
	users map[string]*auth.Identity
}

func (f *fakeVerifier) Verify(_ context.Context, token string) (*auth.Identity, error) {
	id, ok := f.users[token]
	if !ok {
		return nil, domain.ErrAuth
	}
	return id, nil
}

type env struct {
	router *Router
	store  *store.MessageStore
	dir    *directory.Directory
	bcast  *fakeBroadcaster
}

func newTestEnv(t *testing.T) *env {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(store.Models()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	st := store.New(db)
	dir := directory.New(nil)
	bcast := &fakeBroadcaster{}

	verifier := &fakeVerifier{users: map[string]*auth.Identity{
		"tok-alice": {UserID: "alice", DisplayName: "Alice"},
		"tok-bob":   {UserID: "bob", DisplayName: "Bob"},
	}}

	r := New(Config{
		Directory:   dir,
		Broadcaster: bcast,
		Store:       st,
		Summaries:   summary.NewBuilder(st),
		Verifier:    verifier,
	})
	return &env{router: r, store: st, dir: dir, bcast: bcast}
}

func login(t *testing.T, e *env, conn *fakeConn, token string) {
	t.Helper()
	if err := e.router.HandleLogin(context.Background(), conn, token); err != nil {
		t.Fatalf("login with %s failed: %v", token, err)
	}
	conn.reset()
}

func sendMessage(t *testing.T, e *env, conn *fakeConn, target, body string) *domain.Message {
	t.Helper()
	if err := e.router.HandleSendMessage(context.Background(), conn, &domain.SendMessageEvent{
		TargetUserID: target,
		Body:         body,
	}); err != nil {
		t.Fatalf("send to %s failed: %v", target, err)
	}
	echoes := eventsOf[*domain.NewMessageEvent](conn)
	if len(echoes) == 0 {
		t.Fatalf("no echo after send to %s", target)
	}
	return echoes[len(echoes)-1].Message
}

func TestLoginEmitsSnapshotAndSummaries(t *testing.T) {
	e := newTestEnv(t)
	alice := newFakeConn("conn-alice")

	if err := e.router.HandleLogin(context.Background(), alice, "tok-alice"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	results := eventsOf[*domain.LoginResultEvent](alice)
	if len(results) != 1 || !results[0].Success || results[0].UserID != "alice" {
		t.Fatalf("unexpected login result: %+v", results)
	}
	online := eventsOf[*domain.OnlineUsersEvent](alice)
	if len(online) != 1 || len(online[0].UserIDs) != 1 || online[0].UserIDs[0] != "alice" {
		t.Fatalf("unexpected online snapshot: %+v", online)
	}
	if convs := eventsOf[*domain.UserConversationsEvent](alice); len(convs) != 1 {
		t.Fatalf("expected one conversation list, got %d", len(convs))
	}

	presence := []*domain.PresenceEvent{}
	for _, ev := range e.bcast.events {
		if p, ok := ev.(*domain.PresenceEvent); ok {
			presence = append(presence, p)
		}
	}
	if len(presence) != 1 || presence[0].Type != domain.EventUserOnline || presence[0].UserID != "alice" {
		t.Fatalf("expected one user-online broadcast, got %+v", presence)
	}
}

func TestLoginRejectedKeepsConnectionUnauthenticated(t *testing.T) {
	e := newTestEnv(t)
	alice := newFakeConn("conn-alice")

	if err := e.router.HandleLogin(context.Background(), alice, "bad-token"); err == nil {
		t.Fatal("expected login error")
	}
	results := eventsOf[*domain.LoginResultEvent](alice)
	if len(results) != 1 || results[0].Success {
		t.Fatalf("expected failed login result, got %+v", results)
	}
	if alice.session.IsAuthenticated() {
		t.Fatal("session must stay unauthenticated after rejected login")
	}

	alice.reset()
	e.router.HandleSendMessage(context.Background(), alice, &domain.SendMessageEvent{
		TargetUserID: "bob", Body: "hi",
	})
	errs := eventsOf[*domain.ErrorEvent](alice)
	if len(errs) != 1 || errs[0].Code != domain.ErrCodeUnauthorized {
		t.Fatalf("expected UNAUTHORIZED error, got %+v", errs)
	}
	if echoes := eventsOf[*domain.NewMessageEvent](alice); len(echoes) != 0 {
		t.Fatal("unauthenticated send must not produce an echo")
	}
}

func TestReloginOnAuthenticatedConnectionRejected(t *testing.T) {
	e := newTestEnv(t)
	alice := newFakeConn("conn-alice")
	login(t, e, alice, "tok-alice")

	if err := e.router.HandleLogin(context.Background(), alice, "tok-bob"); err == nil {
		t.Fatal("expected re-login to be rejected")
	}
	errs := eventsOf[*domain.ErrorEvent](alice)
	if len(errs) != 1 || errs[0].Code != domain.ErrCodeValidation {
		t.Fatalf("expected validation error, got %+v", errs)
	}

	// The original binding survives and the new identity never came online.
	if alice.session.GetUserID() != "alice" {
		t.Fatalf("session switched identity to %q", alice.session.GetUserID())
	}
	if conn, online := e.dir.Resolve("alice"); !online || conn != directory.Conn(alice) {
		t.Fatal("alice's binding was disturbed by the rejected re-login")
	}
	if _, online := e.dir.Resolve("bob"); online {
		t.Fatal("rejected re-login bound the new identity")
	}
}

func TestSendToOfflineTargetThenJoin(t *testing.T) {
	e := newTestEnv(t)
	alice := newFakeConn("conn-alice")
	login(t, e, alice, "tok-alice")

	msg := sendMessage(t, e, alice, "bob", "are you there?")
	if msg.Status != domain.StatusSent {
		t.Fatalf("offline send must stay 'sent', got %q", msg.Status)
	}
	if delivered := eventsOf[*domain.MessageDeliveredEvent](alice); len(delivered) != 0 {
		t.Fatal("no delivery receipt expected while target is offline")
	}

	// Bob connects and sees one unread conversation.
	bob := newFakeConn("conn-bob")
	if err := e.router.HandleLogin(context.Background(), bob, "tok-bob"); err != nil {
		t.Fatalf("bob login failed: %v", err)
	}
	convs := eventsOf[*domain.UserConversationsEvent](bob)
	if len(convs) != 1 || len(convs[0].Conversations) != 1 {
		t.Fatalf("expected one summary, got %+v", convs)
	}
	if got := convs[0].Conversations[0]; got.UnreadCount != 1 || got.PartnerID != "alice" {
		t.Fatalf("unexpected summary: %+v", got)
	}

	// Joining replays history, zeroes the unread count and notifies alice.
	bob.reset()
	alice.reset()
	if err := e.router.HandleJoinConversation(context.Background(), bob, "alice"); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	hist := eventsOf[*domain.ConversationHistoryEvent](bob)
	if len(hist) != 1 || len(hist[0].Messages) != 1 || hist[0].Messages[0].ID != msg.ID {
		t.Fatalf("unexpected history: %+v", hist)
	}
	reads := eventsOf[*domain.MessagesReadEvent](alice)
	if len(reads) != 1 || reads[0].ReaderID != "bob" || len(reads[0].MessageIDs) != 1 {
		t.Fatalf("expected read receipt on alice's connection, got %+v", reads)
	}
	after := eventsOf[*domain.UserConversationsEvent](bob)
	if len(after) != 1 || after[0].Conversations[0].UnreadCount != 0 {
		t.Fatalf("unread count must reset after join, got %+v", after)
	}

	stored, err := e.store.Get(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Status != domain.StatusRead {
		t.Fatalf("status = %q, want read", stored.Status)
	}
}

func TestSendToOnlineTargetMarksDelivered(t *testing.T) {
	e := newTestEnv(t)
	alice := newFakeConn("conn-alice")
	bob := newFakeConn("conn-bob")
	login(t, e, alice, "tok-alice")
	login(t, e, bob, "tok-bob")

	msg := sendMessage(t, e, alice, "bob", "ping")

	pushed := eventsOf[*domain.NewMessageEvent](bob)
	if len(pushed) != 1 || pushed[0].Message.ID != msg.ID {
		t.Fatalf("target did not receive the message: %+v", pushed)
	}
	receipts := eventsOf[*domain.MessageDeliveredEvent](alice)
	if len(receipts) != 1 || receipts[0].MessageID != msg.ID {
		t.Fatalf("sender did not receive delivery receipt: %+v", receipts)
	}

	stored, err := e.store.Get(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Status != domain.StatusDelivered {
		t.Fatalf("status = %q, want delivered", stored.Status)
	}
}

type appendFailStore struct {
	MessageStore
}

func (appendFailStore) Append(context.Context, *domain.Message) (*domain.Message, error) {
	return nil, domain.ErrPersistence
}

func TestNoEchoWhenAppendFails(t *testing.T) {
	e := newTestEnv(t)
	alice := newFakeConn("conn-alice")
	login(t, e, alice, "tok-alice")
	e.router.store = appendFailStore{e.router.store}

	err := e.router.HandleSendMessage(context.Background(), alice, &domain.SendMessageEvent{
		TargetUserID: "bob", Body: "lost", ClientTempID: "tmp-1",
	})
	if err == nil {
		t.Fatal("expected append failure")
	}
	errs := eventsOf[*domain.ErrorEvent](alice)
	if len(errs) != 1 || errs[0].Code != domain.ErrCodePersistence {
		t.Fatalf("expected persistence error event, got %+v", errs)
	}
	if echoes := eventsOf[*domain.NewMessageEvent](alice); len(echoes) != 0 {
		t.Fatal("failed append must not echo")
	}
}

func TestReactionReplaceFansOutToBothParticipants(t *testing.T) {
	e := newTestEnv(t)
	alice := newFakeConn("conn-alice")
	bob := newFakeConn("conn-bob")
	login(t, e, alice, "tok-alice")
	login(t, e, bob, "tok-bob")

	msg := sendMessage(t, e, alice, "bob", "react to this")
	alice.reset()
	bob.reset()

	thumbs, heart := "👍", "❤️"
	for _, emoji := range []string{thumbs, heart} {
		em := emoji
		if err := e.router.HandleReact(context.Background(), bob, &domain.ReactEvent{
			MessageID: msg.ID, Emoji: &em,
		}); err != nil {
			t.Fatalf("react %s failed: %v", emoji, err)
		}
	}

	for name, conn := range map[string]*fakeConn{"alice": alice, "bob": bob} {
		updates := eventsOf[*domain.ReactionUpdateEvent](conn)
		if len(updates) != 2 {
			t.Fatalf("%s: expected 2 reaction updates, got %d", name, len(updates))
		}
		last := updates[1]
		if len(last.Reactions) != 1 || last.Reactions["bob"] != heart {
			t.Fatalf("%s: reaction not replaced: %+v", name, last.Reactions)
		}
	}
}

func TestDeleteForMeIsViewerLocal(t *testing.T) {
	e := newTestEnv(t)
	alice := newFakeConn("conn-alice")
	bob := newFakeConn("conn-bob")
	login(t, e, alice, "tok-alice")
	login(t, e, bob, "tok-bob")

	msg := sendMessage(t, e, alice, "bob", "only I will hide this")
	alice.reset()
	bob.reset()

	if err := e.router.HandleDelete(context.Background(), alice, &domain.DeleteMessageEvent{
		MessageID: msg.ID, Scope: domain.DeleteScopeMine,
	}); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if dels := eventsOf[*domain.MessageDeletedEvent](alice); len(dels) != 1 {
		t.Fatalf("requester must see the deletion, got %+v", dels)
	}
	if dels := eventsOf[*domain.MessageDeletedEvent](bob); len(dels) != 0 {
		t.Fatalf("counterpart must not see a mine-scope deletion, got %+v", dels)
	}

	aliceView, err := e.store.History(context.Background(), msg.ConversationID, "alice")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(aliceView) != 0 {
		t.Fatalf("alice still sees %d messages", len(aliceView))
	}
	bobView, err := e.store.History(context.Background(), msg.ConversationID, "bob")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(bobView) != 1 {
		t.Fatalf("bob's view changed: %d messages", len(bobView))
	}
}

func TestDeleteForEveryoneRequiresSender(t *testing.T) {
	e := newTestEnv(t)
	alice := newFakeConn("conn-alice")
	bob := newFakeConn("conn-bob")
	login(t, e, alice, "tok-alice")
	login(t, e, bob, "tok-bob")

	msg := sendMessage(t, e, alice, "bob", "mine to retract")
	bob.reset()

	if err := e.router.HandleDelete(context.Background(), bob, &domain.DeleteMessageEvent{
		MessageID: msg.ID, Scope: domain.DeleteScopeEveryone,
	}); err == nil {
		t.Fatal("non-sender everyone-delete must fail")
	}
	errs := eventsOf[*domain.ErrorEvent](bob)
	if len(errs) != 1 || errs[0].Code != domain.ErrCodeNotOwner {
		t.Fatalf("expected NOT_OWNER, got %+v", errs)
	}

	alice.reset()
	bob.reset()
	if err := e.router.HandleDelete(context.Background(), alice, &domain.DeleteMessageEvent{
		MessageID: msg.ID, Scope: domain.DeleteScopeEveryone,
	}); err != nil {
		t.Fatalf("sender everyone-delete failed: %v", err)
	}
	for name, conn := range map[string]*fakeConn{"alice": alice, "bob": bob} {
		if dels := eventsOf[*domain.MessageDeletedEvent](conn); len(dels) != 1 {
			t.Fatalf("%s: expected deletion event, got %+v", name, dels)
		}
	}
}

func TestEditFansOutEditedRecord(t *testing.T) {
	e := newTestEnv(t)
	alice := newFakeConn("conn-alice")
	bob := newFakeConn("conn-bob")
	login(t, e, alice, "tok-alice")
	login(t, e, bob, "tok-bob")

	msg := sendMessage(t, e, alice, "bob", "tpyo")
	alice.reset()
	bob.reset()

	if err := e.router.HandleEdit(context.Background(), alice, &domain.EditMessageEvent{
		MessageID: msg.ID, Body: "typo",
	}); err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	for name, conn := range map[string]*fakeConn{"alice": alice, "bob": bob} {
		edits := eventsOf[*domain.MessageEditedEvent](conn)
		if len(edits) != 1 || edits[0].Message.Body != "typo" || !edits[0].Message.Edited {
			t.Fatalf("%s: unexpected edit fan-out: %+v", name, edits)
		}
	}
}

func TestTypingForwardedOnlyWhenTargetOnline(t *testing.T) {
	e := newTestEnv(t)
	alice := newFakeConn("conn-alice")
	bob := newFakeConn("conn-bob")
	login(t, e, alice, "tok-alice")
	login(t, e, bob, "tok-bob")

	if err := e.router.HandleTyping(context.Background(), alice, domain.EventTypingStart, "bob"); err != nil {
		t.Fatalf("typing failed: %v", err)
	}
	notices := eventsOf[*domain.TypingNoticeEvent](bob)
	if len(notices) != 1 || notices[0].SenderID != "alice" || notices[0].Type != domain.EventTypingStart {
		t.Fatalf("unexpected typing notice: %+v", notices)
	}

	// Offline target: silently dropped.
	if err := e.router.HandleTyping(context.Background(), alice, domain.EventTypingStop, "nobody"); err != nil {
		t.Fatalf("typing to offline target must not error: %v", err)
	}
	if errs := eventsOf[*domain.ErrorEvent](alice); len(errs) != 0 {
		t.Fatalf("typing to offline target produced errors: %+v", errs)
	}
}

func TestDisconnectBroadcastsOffline(t *testing.T) {
	e := newTestEnv(t)
	alice := newFakeConn("conn-alice")
	login(t, e, alice, "tok-alice")

	e.router.HandleDisconnect(context.Background(), alice)

	if _, online := e.dir.Resolve("alice"); online {
		t.Fatal("alice still resolvable after disconnect")
	}
	var offline []*domain.PresenceEvent
	for _, ev := range e.bcast.events {
		if p, ok := ev.(*domain.PresenceEvent); ok && p.Type == domain.EventUserOffline {
			offline = append(offline, p)
		}
	}
	if len(offline) != 1 || offline[0].UserID != "alice" || offline[0].LastSeen == nil {
		t.Fatalf("unexpected offline broadcast: %+v", offline)
	}

	// A second disconnect of the same handle is a no-op.
	e.router.HandleDisconnect(context.Background(), alice)
	count := 0
	for _, ev := range e.bcast.events {
		if p, ok := ev.(*domain.PresenceEvent); ok && p.Type == domain.EventUserOffline {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("stale disconnect rebroadcast offline, count=%d", count)
	}
}

type scriptedCompletion struct {
	reply string
	calls int
}

func (s *scriptedCompletion) Complete(_ context.Context, _ []completion.Turn, _ string) (string, error) {
	s.calls++
	return s.reply, nil
}

func TestAssistantAutoReply(t *testing.T) {
	e := newTestEnv(t)
	comp := &scriptedCompletion{reply: "42"}
	e.router.completions = comp
	e.router.assistantID = "assistant"
	alice := newFakeConn("conn-alice")
	login(t, e, alice, "tok-alice")

	if err := e.router.HandleSendMessage(context.Background(), alice, &domain.SendMessageEvent{
		TargetUserID: "assistant", Body: "what is the answer?",
	}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if comp.calls != 1 {
		t.Fatalf("completion called %d times, want 1", comp.calls)
	}

	msgs := eventsOf[*domain.NewMessageEvent](alice)
	if len(msgs) != 2 {
		t.Fatalf("expected echo plus reply, got %d new-message events", len(msgs))
	}
	reply := msgs[1].Message
	if reply.SenderID != "assistant" || reply.Body != "42" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if reply.ConversationID != msgs[0].Message.ConversationID {
		t.Fatal("reply landed in a different conversation")
	}
}
