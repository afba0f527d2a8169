package slackbot

import (
	"context"
	"fmt"
	"sync"

	"github.com/slack-go/slack"
)

// SlackAPIClient defines the Slack Web API operations the bot uses. The
// interface allows mock injection during testing.
type SlackAPIClient interface {
	// Authentication
	AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error)

	// Messaging
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)
	PostEphemeralContext(ctx context.Context, channelID, userID string, options ...slack.MsgOption) (string, error)

	// Threads and links
	GetConversationRepliesContext(ctx context.Context, params *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error)
	GetPermalinkContext(ctx context.Context, params *slack.PermalinkParameters) (string, error)

	// Channels
	GetConversationInfoContext(ctx context.Context, input *slack.GetConversationInfoInput) (*slack.Channel, error)
	JoinConversationContext(ctx context.Context, channelID string) (*slack.Channel, string, []string, error)
}

// Ensure slack.Client implements SlackAPIClient.
var _ SlackAPIClient = (*slack.Client)(nil)

// MockSlackClient is a test double for SlackAPIClient. It records posted
// messages so workflow tests can assert on destinations and content.
type MockSlackClient struct {
	AuthTestContextFunc               func(ctx context.Context) (*slack.AuthTestResponse, error)
	PostMessageContextFunc            func(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UpdateMessageContextFunc          func(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)
	PostEphemeralContextFunc          func(ctx context.Context, channelID, userID string, options ...slack.MsgOption) (string, error)
	GetConversationRepliesContextFunc func(ctx context.Context, params *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error)
	GetPermalinkContextFunc           func(ctx context.Context, params *slack.PermalinkParameters) (string, error)
	GetConversationInfoContextFunc    func(ctx context.Context, input *slack.GetConversationInfoInput) (*slack.Channel, error)
	JoinConversationContextFunc       func(ctx context.Context, channelID string) (*slack.Channel, string, []string, error)

	mu         sync.Mutex
	posts      []MockPost
	ephemerals []MockEphemeral
	updates    []MockUpdate
	postSeq    int
}

// MockPost records one PostMessageContext call.
type MockPost struct {
	ChannelID string
	Options   []slack.MsgOption
	Timestamp string
}

// MockEphemeral records one PostEphemeralContext call.
type MockEphemeral struct {
	ChannelID string
	UserID    string
	Options   []slack.MsgOption
}

// MockUpdate records one UpdateMessageContext call.
type MockUpdate struct {
	ChannelID string
	Timestamp string
	Options   []slack.MsgOption
}

func (m *MockSlackClient) AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error) {
	if m.AuthTestContextFunc != nil {
		return m.AuthTestContextFunc(ctx)
	}
	return &slack.AuthTestResponse{UserID: "UBOT", Team: "TestTeam"}, nil
}

func (m *MockSlackClient) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	if m.PostMessageContextFunc != nil {
		return m.PostMessageContextFunc(ctx, channelID, options...)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.postSeq++
	ts := timestampForSeq(m.postSeq)
	m.posts = append(m.posts, MockPost{ChannelID: channelID, Options: options, Timestamp: ts})
	return channelID, ts, nil
}

func (m *MockSlackClient) UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error) {
	if m.UpdateMessageContextFunc != nil {
		return m.UpdateMessageContextFunc(ctx, channelID, timestamp, options...)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, MockUpdate{ChannelID: channelID, Timestamp: timestamp, Options: options})
	return channelID, timestamp, "", nil
}

func (m *MockSlackClient) PostEphemeralContext(ctx context.Context, channelID, userID string, options ...slack.MsgOption) (string, error) {
	if m.PostEphemeralContextFunc != nil {
		return m.PostEphemeralContextFunc(ctx, channelID, userID, options...)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ephemerals = append(m.ephemerals, MockEphemeral{ChannelID: channelID, UserID: userID, Options: options})
	return "ephemeral", nil
}

func (m *MockSlackClient) GetConversationRepliesContext(ctx context.Context, params *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error) {
	if m.GetConversationRepliesContextFunc != nil {
		return m.GetConversationRepliesContextFunc(ctx, params)
	}
	return nil, false, "", nil
}

func (m *MockSlackClient) GetPermalinkContext(ctx context.Context, params *slack.PermalinkParameters) (string, error) {
	if m.GetPermalinkContextFunc != nil {
		return m.GetPermalinkContextFunc(ctx, params)
	}
	return "https://example.slack.com/archives/" + params.Channel + "/p" + params.Ts, nil
}

func (m *MockSlackClient) GetConversationInfoContext(ctx context.Context, input *slack.GetConversationInfoInput) (*slack.Channel, error) {
	if m.GetConversationInfoContextFunc != nil {
		return m.GetConversationInfoContextFunc(ctx, input)
	}
	channel := &slack.Channel{}
	channel.ID = input.ChannelID
	channel.Name = "test-channel"
	return channel, nil
}

func (m *MockSlackClient) JoinConversationContext(ctx context.Context, channelID string) (*slack.Channel, string, []string, error) {
	if m.JoinConversationContextFunc != nil {
		return m.JoinConversationContextFunc(ctx, channelID)
	}
	return &slack.Channel{}, "", nil, nil
}

// Posts returns a copy of recorded PostMessageContext calls.
func (m *MockSlackClient) Posts() []MockPost {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockPost(nil), m.posts...)
}

// Ephemerals returns a copy of recorded PostEphemeralContext calls.
func (m *MockSlackClient) Ephemerals() []MockEphemeral {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockEphemeral(nil), m.ephemerals...)
}

// Updates returns a copy of recorded UpdateMessageContext calls.
func (m *MockSlackClient) Updates() []MockUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockUpdate(nil), m.updates...)
}

func timestampForSeq(n int) string {
	// Unique, Slack-shaped timestamps for successive posts.
	return fmt.Sprintf("1700000000.%06d", n)
}
