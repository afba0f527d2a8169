package slackbot

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/haasonsaas/demogate/internal/approval"
	"github.com/haasonsaas/demogate/internal/observability"
	"github.com/haasonsaas/demogate/internal/scope"
)

func quietLogger() *observability.Logger {
	return observability.NewLogger(observability.LogConfig{Level: "error", Output: io.Discard})
}

func testMetrics() *observability.Metrics {
	return observability.NewMetrics(prometheus.NewRegistry())
}

func newTestBot(mock *MockSlackClient, cfg Config, relay Answerer) (*Bot, *approval.MemoryRegistry) {
	registry := approval.NewMemoryRegistry()
	bot := NewWithClient(mock, cfg, registry, relay, quietLogger(), testMetrics())
	return bot, registry
}

// renderOptions expands MsgOptions into the form values the Slack API would
// receive, so tests can assert on text, blocks and thread_ts.
func renderOptions(t *testing.T, channelID string, options []slack.MsgOption) url.Values {
	t.Helper()
	_, values, err := slack.UnsafeApplyMsgOptions("", channelID, "", options...)
	if err != nil {
		t.Fatalf("UnsafeApplyMsgOptions: %v", err)
	}
	return values
}

func mention(channel, user, ts, text string) *slackevents.AppMentionEvent {
	return &slackevents.AppMentionEvent{
		Channel:   channel,
		User:      user,
		TimeStamp: ts,
		Text:      text,
	}
}

func blockActionCallback(userID, channelID, messageTS, value string) slack.InteractionCallback {
	cb := slack.InteractionCallback{
		Type: slack.InteractionTypeBlockActions,
		User: slack.User{ID: userID},
	}
	cb.Container = slack.Container{ChannelID: channelID, MessageTs: messageTS}
	cb.ActionCallback = slack.ActionCallbacks{
		BlockActions: []*slack.BlockAction{{ActionID: "demo_button", Value: value}},
	}
	return cb
}

func requestPayload() approval.Payload {
	return approval.Payload{
		Version:   approval.PayloadVersion,
		Action:    approval.ActionRequestApproval,
		Channel:   "C1",
		Thread:    "111.222",
		Item:      "vanity",
		Requester: "UREQ",
		RequestID: "req-1",
	}
}

type stubAnswerer struct {
	answer string
	asked  []string
}

func (s *stubAnswerer) Enabled() bool { return true }

func (s *stubAnswerer) Answer(_ context.Context, question string) string {
	s.asked = append(s.asked, question)
	return s.answer
}

func TestHandleMention_RemovalRequestPostsPrompt(t *testing.T) {
	mock := &MockSlackClient{}
	bot, _ := newTestBot(mock, Config{CrewName: "Crew 7"}, nil)

	ev := mention("C1", "U1", "111.222", "<@UBOT> please remove the vanity in the master bath")
	if err := bot.HandleMention(context.Background(), ev); err != nil {
		t.Fatalf("HandleMention failed: %v", err)
	}

	posts := mock.Posts()
	if len(posts) != 1 {
		t.Fatalf("expected 1 post, got %d", len(posts))
	}
	values := renderOptions(t, posts[0].ChannelID, posts[0].Options)
	if got := values.Get("thread_ts"); got != "111.222" {
		t.Errorf("prompt not threaded under mention: thread_ts = %q", got)
	}
	blocks := values.Get("blocks")
	if !strings.Contains(blocks, "Request approval") {
		t.Error("prompt missing the request button")
	}
	if !strings.Contains(blocks, "vanity") {
		t.Error("prompt payload missing the classified item")
	}
}

func TestHandleMention_OutOfScopeIsIgnored(t *testing.T) {
	mock := &MockSlackClient{}
	bot, _ := newTestBot(mock, Config{Scope: scope.New([]string{"C9"}, "")}, nil)

	ev := mention("C1", "U1", "111.222", "<@UBOT> remove the cabinet")
	if err := bot.HandleMention(context.Background(), ev); err != nil {
		t.Fatalf("HandleMention failed: %v", err)
	}
	if got := len(mock.Posts()); got != 0 {
		t.Errorf("out-of-scope mention produced %d posts", got)
	}
}

func TestHandleMention_NoIntentNoRelayIsSilent(t *testing.T) {
	mock := &MockSlackClient{}
	bot, _ := newTestBot(mock, Config{}, nil)

	ev := mention("C1", "U1", "111.222", "<@UBOT> thanks for the help yesterday")
	if err := bot.HandleMention(context.Background(), ev); err != nil {
		t.Fatalf("HandleMention failed: %v", err)
	}
	if got := len(mock.Posts()); got != 0 {
		t.Errorf("non-request mention produced %d posts", got)
	}
}

func TestHandleMention_RelayAnswerComesFirst(t *testing.T) {
	mock := &MockSlackClient{}
	relay := &stubAnswerer{answer: "Per the program guidelines, document before removal."}
	bot, _ := newTestBot(mock, Config{}, relay)

	ev := mention("C1", "U1", "111.222", "<@UBOT> can we remove the vanity or does the carrier need to sign off?")
	if err := bot.HandleMention(context.Background(), ev); err != nil {
		t.Fatalf("HandleMention failed: %v", err)
	}

	posts := mock.Posts()
	if len(posts) != 2 {
		t.Fatalf("expected answer then prompt, got %d posts", len(posts))
	}
	first := renderOptions(t, posts[0].ChannelID, posts[0].Options)
	if got := first.Get("text"); got != relay.answer {
		t.Errorf("first post = %q, want relay answer", got)
	}
	second := renderOptions(t, posts[1].ChannelID, posts[1].Options)
	if !strings.Contains(second.Get("blocks"), "Request approval") {
		t.Error("second post should be the approval prompt")
	}
	if len(relay.asked) != 1 {
		t.Errorf("relay asked %d times, want 1", len(relay.asked))
	}
}

func TestHandleMention_RelayAnswersNonRequestQuestions(t *testing.T) {
	mock := &MockSlackClient{}
	relay := &stubAnswerer{answer: "Drying equipment is billable per the program schedule."}
	bot, _ := newTestBot(mock, Config{}, relay)

	ev := mention("C1", "U1", "111.222", "<@UBOT> can we bill for drying equipment?")
	if err := bot.HandleMention(context.Background(), ev); err != nil {
		t.Fatalf("HandleMention failed: %v", err)
	}

	posts := mock.Posts()
	if len(posts) != 1 {
		t.Fatalf("expected only the relay answer, got %d posts", len(posts))
	}
	values := renderOptions(t, posts[0].ChannelID, posts[0].Options)
	if got := values.Get("text"); got != relay.answer {
		t.Errorf("post = %q, want relay answer", got)
	}
}

func TestHandleMention_StripsBotMentionFromRelayQuestion(t *testing.T) {
	mock := &MockSlackClient{}
	relay := &stubAnswerer{answer: "Drying equipment is billable per the program schedule."}
	bot, _ := newTestBot(mock, Config{}, relay)
	bot.botUserID = "UBOT"

	ev := mention("C1", "U1", "111.222", "<@UBOT> can we bill for drying equipment?")
	if err := bot.HandleMention(context.Background(), ev); err != nil {
		t.Fatalf("HandleMention failed: %v", err)
	}

	if len(relay.asked) != 1 {
		t.Fatalf("relay asked %d times, want 1", len(relay.asked))
	}
	if got := relay.asked[0]; got != "can we bill for drying equipment?" {
		t.Errorf("relay question = %q, want the mention stripped", got)
	}
}

func TestRequestApproval_NoPhotoGetsEphemeralOnly(t *testing.T) {
	mock := &MockSlackClient{
		GetConversationRepliesContextFunc: func(_ context.Context, _ *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error) {
			msg := slack.Message{}
			msg.Text = "here is the situation"
			return []slack.Message{msg}, false, "", nil
		},
	}
	bot, registry := newTestBot(mock, Config{}, nil)

	cb := blockActionCallback("UREQ", "C1", "111.222", requestPayload().Encode())
	if err := bot.HandleInteraction(context.Background(), cb); err != nil {
		t.Fatalf("HandleInteraction failed: %v", err)
	}

	if got := len(mock.Posts()); got != 0 {
		t.Errorf("photo-less request produced %d posts", got)
	}
	ephemerals := mock.Ephemerals()
	if len(ephemerals) != 1 {
		t.Fatalf("expected 1 ephemeral, got %d", len(ephemerals))
	}
	values := renderOptions(t, ephemerals[0].ChannelID, ephemerals[0].Options)
	if got := values.Get("text"); got != approval.PhotoRequiredText {
		t.Errorf("ephemeral text = %q", got)
	}
	if registry.Len() != 0 {
		t.Error("no card should be registered without a photo")
	}
}

func TestRequestApproval_WithPhotoPostsCard(t *testing.T) {
	mock := &MockSlackClient{
		GetConversationRepliesContextFunc: func(_ context.Context, params *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error) {
			if params.Limit != defaultReplyScanLimit {
				t.Errorf("reply scan limit = %d, want %d", params.Limit, defaultReplyScanLimit)
			}
			msg := slack.Message{}
			msg.Files = []slack.File{{Name: "before.JPG", Mimetype: "image/jpeg"}}
			return []slack.Message{msg}, false, "", nil
		},
	}
	bot, registry := newTestBot(mock, Config{CrewName: "Crew 7", ApprovalChannel: "CAPPROVALS"}, nil)

	cb := blockActionCallback("UREQ", "C1", "111.222", requestPayload().Encode())
	if err := bot.HandleInteraction(context.Background(), cb); err != nil {
		t.Fatalf("HandleInteraction failed: %v", err)
	}

	posts := mock.Posts()
	if len(posts) != 2 {
		t.Fatalf("expected card plus confirmation, got %d posts", len(posts))
	}
	if posts[0].ChannelID != "CAPPROVALS" {
		t.Errorf("card posted to %q, want CAPPROVALS", posts[0].ChannelID)
	}
	card := renderOptions(t, posts[0].ChannelID, posts[0].Options)
	blocks := card.Get("blocks")
	for _, want := range []string{"Demo approval needed", "Approve", "Decline", "View thread and photos"} {
		if !strings.Contains(blocks, want) {
			t.Errorf("card missing %q", want)
		}
	}

	confirm := renderOptions(t, posts[1].ChannelID, posts[1].Options)
	if posts[1].ChannelID != "C1" || confirm.Get("thread_ts") != "111.222" {
		t.Error("confirmation did not go to the origin thread")
	}
	if got := confirm.Get("text"); got != approval.RequestSentText("vanity") {
		t.Errorf("confirmation text = %q", got)
	}

	rec, ok := registry.Get(posts[0].Timestamp)
	if !ok {
		t.Fatal("card not registered under its timestamp")
	}
	if rec.CardChannel != "CAPPROVALS" || rec.OriginChannel != "C1" || rec.Item != "vanity" {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestRequestApproval_NoApprovalChannelUsesOrigin(t *testing.T) {
	mock := &MockSlackClient{
		GetConversationRepliesContextFunc: func(_ context.Context, _ *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error) {
			msg := slack.Message{}
			msg.Files = []slack.File{{Name: "area.png"}}
			return []slack.Message{msg}, false, "", nil
		},
	}
	bot, _ := newTestBot(mock, Config{}, nil)

	cb := blockActionCallback("UREQ", "C1", "111.222", requestPayload().Encode())
	if err := bot.HandleInteraction(context.Background(), cb); err != nil {
		t.Fatalf("HandleInteraction failed: %v", err)
	}

	posts := mock.Posts()
	if len(posts) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(posts))
	}
	if posts[0].ChannelID != "C1" {
		t.Errorf("card posted to %q, want origin channel C1", posts[0].ChannelID)
	}
}

func TestRequestApproval_RepeatedRequestsMakeIndependentCards(t *testing.T) {
	mock := &MockSlackClient{
		GetConversationRepliesContextFunc: func(_ context.Context, _ *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error) {
			msg := slack.Message{}
			msg.Files = []slack.File{{Mimetype: "image/jpeg"}}
			return []slack.Message{msg}, false, "", nil
		},
	}
	bot, registry := newTestBot(mock, Config{ApprovalChannel: "CAPPROVALS"}, nil)

	cb := blockActionCallback("UREQ", "C1", "111.222", requestPayload().Encode())
	for i := 0; i < 2; i++ {
		if err := bot.HandleInteraction(context.Background(), cb); err != nil {
			t.Fatalf("HandleInteraction %d failed: %v", i, err)
		}
	}

	if registry.Len() != 2 {
		t.Fatalf("expected 2 independent registry entries, got %d", registry.Len())
	}
}

func TestRequestApproval_CardPostFailureReportedToThread(t *testing.T) {
	var originTexts []string
	mock := &MockSlackClient{
		GetConversationRepliesContextFunc: func(_ context.Context, _ *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error) {
			msg := slack.Message{}
			msg.Files = []slack.File{{Mimetype: "image/png"}}
			return []slack.Message{msg}, false, "", nil
		},
	}
	mock.PostMessageContextFunc = func(_ context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
		if channelID == "CAPPROVALS" {
			return "", "", errors.New("channel_not_found")
		}
		values := renderOptions(t, channelID, options)
		originTexts = append(originTexts, values.Get("text"))
		return channelID, "1.2", nil
	}
	bot, registry := newTestBot(mock, Config{ApprovalChannel: "CAPPROVALS"}, nil)

	cb := blockActionCallback("UREQ", "C1", "111.222", requestPayload().Encode())
	err := bot.HandleInteraction(context.Background(), cb)
	if err == nil {
		t.Fatal("expected an error when the card post fails")
	}
	if ErrorCode(err) != ErrCodeUpstream {
		t.Errorf("error code = %q, want %q", ErrorCode(err), ErrCodeUpstream)
	}

	if len(originTexts) != 1 || !strings.Contains(originTexts[0], "channel_not_found") {
		t.Errorf("provider error not surfaced to the origin thread: %v", originTexts)
	}
	if len(mock.Ephemerals()) != 1 {
		t.Errorf("expected an ephemeral apology, got %d", len(mock.Ephemerals()))
	}
	if registry.Len() != 0 {
		t.Error("failed card should not be registered")
	}
}

func decisionCallback(userID string, action approval.Action) slack.InteractionCallback {
	value := requestPayload().WithAction(action).Encode()
	return blockActionCallback(userID, "CAPPROVALS", "999.888", value)
}

func TestDecision_DeclineRewritesCardAndNotifies(t *testing.T) {
	mock := &MockSlackClient{}
	bot, registry := newTestBot(mock, Config{CrewName: "Crew 7", Approvers: []string{"UAPP"}}, nil)
	registry.Put("999.888", approval.Record{OriginChannel: "C1", OriginThread: "111.222", Item: "vanity"})

	if err := bot.HandleInteraction(context.Background(), decisionCallback("UAPP", approval.ActionDecline)); err != nil {
		t.Fatalf("HandleInteraction failed: %v", err)
	}

	updates := mock.Updates()
	if len(updates) != 1 {
		t.Fatalf("expected 1 card rewrite, got %d", len(updates))
	}
	if updates[0].ChannelID != "CAPPROVALS" || updates[0].Timestamp != "999.888" {
		t.Errorf("rewrote wrong message: %+v", updates[0])
	}
	rewritten := renderOptions(t, updates[0].ChannelID, updates[0].Options)
	blocks := rewritten.Get("blocks")
	// The JSON encoder HTML-escapes angle brackets, so match the mention
	// without them.
	if !strings.Contains(blocks, "⛔ Declined") || !strings.Contains(blocks, "@UAPP") {
		t.Error("rewritten card missing the decision annotation")
	}
	if strings.Contains(blocks, "Approve") {
		t.Error("decided card still carries action buttons")
	}

	posts := mock.Posts()
	if len(posts) != 1 {
		t.Fatalf("expected 1 verdict post, got %d", len(posts))
	}
	verdict := renderOptions(t, posts[0].ChannelID, posts[0].Options)
	if posts[0].ChannelID != "C1" || verdict.Get("thread_ts") != "111.222" {
		t.Error("verdict did not go to the origin thread")
	}
	if got := verdict.Get("text"); got != "Declined—hold demo on vanity." {
		t.Errorf("verdict text = %q", got)
	}

	ephemerals := mock.Ephemerals()
	if len(ephemerals) != 1 || ephemerals[0].UserID != "UREQ" {
		t.Fatalf("requester notice missing: %+v", ephemerals)
	}
	notice := renderOptions(t, ephemerals[0].ChannelID, ephemerals[0].Options)
	if got := notice.Get("text"); got != approval.DecisionNoticeText(false, "vanity") {
		t.Errorf("requester notice = %q", got)
	}

	if registry.Len() != 0 {
		t.Error("decided card should leave the registry")
	}
}

func TestDecision_ApproveVerdictText(t *testing.T) {
	mock := &MockSlackClient{}
	bot, _ := newTestBot(mock, Config{Approvers: []string{"UAPP"}}, nil)

	if err := bot.HandleInteraction(context.Background(), decisionCallback("UAPP", approval.ActionApprove)); err != nil {
		t.Fatalf("HandleInteraction failed: %v", err)
	}

	posts := mock.Posts()
	if len(posts) != 1 {
		t.Fatalf("expected 1 verdict post, got %d", len(posts))
	}
	verdict := renderOptions(t, posts[0].ChannelID, posts[0].Options)
	want := "Approved—proceed with minimal demo and full documentation on vanity."
	if got := verdict.Get("text"); got != want {
		t.Errorf("verdict text = %q, want %q", got, want)
	}
}

func TestDecision_UnauthorizedUserIsRejected(t *testing.T) {
	mock := &MockSlackClient{}
	bot, registry := newTestBot(mock, Config{Approvers: []string{"UAPP"}}, nil)
	registry.Put("999.888", approval.Record{})

	if err := bot.HandleInteraction(context.Background(), decisionCallback("UOTHER", approval.ActionApprove)); err != nil {
		t.Fatalf("HandleInteraction failed: %v", err)
	}

	if len(mock.Updates()) != 0 || len(mock.Posts()) != 0 {
		t.Error("unauthorized press must not touch the card or the thread")
	}
	ephemerals := mock.Ephemerals()
	if len(ephemerals) != 1 || ephemerals[0].UserID != "UOTHER" {
		t.Fatalf("expected rejection ephemeral to UOTHER, got %+v", ephemerals)
	}
	values := renderOptions(t, ephemerals[0].ChannelID, ephemerals[0].Options)
	if got := values.Get("text"); got != approval.NotAuthorizedText {
		t.Errorf("rejection text = %q", got)
	}
	if registry.Len() != 1 {
		t.Error("unauthorized press must not clear the registry")
	}
}

func TestDecision_EmptyApproverListAllowsAnyone(t *testing.T) {
	mock := &MockSlackClient{}
	bot, _ := newTestBot(mock, Config{}, nil)

	if err := bot.HandleInteraction(context.Background(), decisionCallback("UANY", approval.ActionApprove)); err != nil {
		t.Fatalf("HandleInteraction failed: %v", err)
	}
	if len(mock.Updates()) != 1 {
		t.Error("decision with no approver list configured should proceed")
	}
}

func TestMoreInfo_PostsChecklistToThread(t *testing.T) {
	mock := &MockSlackClient{}
	bot, _ := newTestBot(mock, Config{Approvers: []string{"UAPP"}}, nil)

	if err := bot.HandleInteraction(context.Background(), decisionCallback("UAPP", approval.ActionMoreInfo)); err != nil {
		t.Fatalf("HandleInteraction failed: %v", err)
	}

	posts := mock.Posts()
	if len(posts) != 1 {
		t.Fatalf("expected 1 post, got %d", len(posts))
	}
	values := renderOptions(t, posts[0].ChannelID, posts[0].Options)
	if posts[0].ChannelID != "C1" || values.Get("thread_ts") != "111.222" {
		t.Error("checklist did not go to the origin thread")
	}
	if got := values.Get("text"); got != approval.ChecklistText() {
		t.Errorf("checklist text = %q", got)
	}
}

func TestHandleInteraction_MalformedPayloadApologizes(t *testing.T) {
	mock := &MockSlackClient{}
	bot, _ := newTestBot(mock, Config{}, nil)

	cb := blockActionCallback("U1", "C1", "1.2", "not-json")
	err := bot.HandleInteraction(context.Background(), cb)
	if err == nil {
		t.Fatal("expected an error for a malformed payload")
	}
	if ErrorCode(err) != ErrCodePayload {
		t.Errorf("error code = %q, want %q", ErrorCode(err), ErrCodePayload)
	}

	ephemerals := mock.Ephemerals()
	if len(ephemerals) != 1 {
		t.Fatalf("expected 1 apology, got %d", len(ephemerals))
	}
	values := renderOptions(t, ephemerals[0].ChannelID, ephemerals[0].Options)
	if got := values.Get("text"); got != approval.ApologyText {
		t.Errorf("apology text = %q", got)
	}
}

func TestHandleInteraction_IgnoresNonBlockActions(t *testing.T) {
	mock := &MockSlackClient{}
	bot, _ := newTestBot(mock, Config{}, nil)

	cb := slack.InteractionCallback{Type: slack.InteractionTypeShortcut}
	if err := bot.HandleInteraction(context.Background(), cb); err != nil {
		t.Fatalf("HandleInteraction failed: %v", err)
	}
	if len(mock.Posts())+len(mock.Ephemerals()) != 0 {
		t.Error("non block-action callback should be a no-op")
	}
}
