package qa

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient defines the provider operations the relay uses. The interface
// allows mock injection during testing.
type OpenAIClient interface {
	// Vector stores
	RetrieveVectorStore(ctx context.Context, vectorStoreID string) (openai.VectorStore, error)

	// Assistants
	CreateAssistant(ctx context.Context, request openai.AssistantRequest) (openai.Assistant, error)

	// Threads and runs
	CreateThread(ctx context.Context, request openai.ThreadRequest) (openai.Thread, error)
	CreateRun(ctx context.Context, threadID string, request openai.RunRequest) (openai.Run, error)
	RetrieveRun(ctx context.Context, threadID, runID string) (openai.Run, error)

	// Responses
	ListMessage(ctx context.Context, threadID string, limit *int, order *string, after *string, before *string, runID *string) (openai.MessagesList, error)
}

// Ensure openai.Client implements OpenAIClient.
var _ OpenAIClient = (*openai.Client)(nil)

// MockOpenAIClient is a test double for OpenAIClient.
type MockOpenAIClient struct {
	RetrieveVectorStoreFunc func(ctx context.Context, vectorStoreID string) (openai.VectorStore, error)
	CreateAssistantFunc     func(ctx context.Context, request openai.AssistantRequest) (openai.Assistant, error)
	CreateThreadFunc        func(ctx context.Context, request openai.ThreadRequest) (openai.Thread, error)
	CreateRunFunc           func(ctx context.Context, threadID string, request openai.RunRequest) (openai.Run, error)
	RetrieveRunFunc         func(ctx context.Context, threadID, runID string) (openai.Run, error)
	ListMessageFunc         func(ctx context.Context, threadID string, limit *int, order *string, after *string, before *string, runID *string) (openai.MessagesList, error)
}

func (m *MockOpenAIClient) RetrieveVectorStore(ctx context.Context, vectorStoreID string) (openai.VectorStore, error) {
	if m.RetrieveVectorStoreFunc != nil {
		return m.RetrieveVectorStoreFunc(ctx, vectorStoreID)
	}
	return openai.VectorStore{ID: vectorStoreID}, nil
}

func (m *MockOpenAIClient) CreateAssistant(ctx context.Context, request openai.AssistantRequest) (openai.Assistant, error) {
	if m.CreateAssistantFunc != nil {
		return m.CreateAssistantFunc(ctx, request)
	}
	return openai.Assistant{ID: "asst_mock"}, nil
}

func (m *MockOpenAIClient) CreateThread(ctx context.Context, request openai.ThreadRequest) (openai.Thread, error) {
	if m.CreateThreadFunc != nil {
		return m.CreateThreadFunc(ctx, request)
	}
	return openai.Thread{ID: "thread_mock"}, nil
}

func (m *MockOpenAIClient) CreateRun(ctx context.Context, threadID string, request openai.RunRequest) (openai.Run, error) {
	if m.CreateRunFunc != nil {
		return m.CreateRunFunc(ctx, threadID, request)
	}
	return openai.Run{ID: "run_mock", ThreadID: threadID, Status: openai.RunStatusQueued}, nil
}

func (m *MockOpenAIClient) RetrieveRun(ctx context.Context, threadID, runID string) (openai.Run, error) {
	if m.RetrieveRunFunc != nil {
		return m.RetrieveRunFunc(ctx, threadID, runID)
	}
	return openai.Run{ID: runID, ThreadID: threadID, Status: openai.RunStatusCompleted}, nil
}

func (m *MockOpenAIClient) ListMessage(ctx context.Context, threadID string, limit *int, order *string, after *string, before *string, runID *string) (openai.MessagesList, error) {
	if m.ListMessageFunc != nil {
		return m.ListMessageFunc(ctx, threadID, limit, order, after, before, runID)
	}
	return openai.MessagesList{}, nil
}
