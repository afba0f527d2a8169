// Package qa answers carrier and SLA policy questions by relaying them to an
// OpenAI assistant doing file search over a pre-uploaded document vector
// store. Every provider failure is folded into one of a small set of
// user-postable texts; raw provider errors only reach the logs.
package qa

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/demogate/internal/backoff"
	"github.com/haasonsaas/demogate/internal/observability"
)

// User-facing fallback texts. The three failure texts are deliberately
// distinct so crews (and tests) can tell configuration gaps, slow lookups,
// and provider trouble apart.
const (
	NotConfiguredText = "Policy lookup isn't set up yet. Ask an admin to configure the provider credential and the document collection."
	TimeoutText       = "Policy lookup timed out before the documents came back. Give it a minute and ask again."
	SnagText          = "Policy lookup hit a snag. Try again shortly, or check with your coordinator."
	NoClauseText      = "No clear clause found for that one. Post a photo and the job number and I'll flag it for review."
)

// instructions is the fixed system prompt for the policy assistant.
const instructions = `You answer SLA and carrier policy questions for restoration field crews.
Keep answers to 3-5 lines in checklist style. Reference clause or section
numbers from the documents when you can, and name the carrier program the
clause belongs to. If the documents don't settle it, say you are unsure and
ask for a photo of the area plus the job number. Never speculate beyond the
documents.`

// defaultModel backs the assistant when none is configured.
const defaultModel = "gpt-4o"

// Config holds the relay settings.
type Config struct {
	APIKey        string
	VectorStoreID string
	Carrier       string
	Model         string
	PollInterval  time.Duration
	Timeout       time.Duration
}

// Relay forwards questions to the provider. Safe for concurrent use: the
// cached assistant is guarded, and each question runs on its own thread/run.
type Relay struct {
	client  OpenAIClient
	cfg     Config
	logger  *observability.Logger
	metrics *observability.Metrics

	session session
}

// New creates a relay. With no API key the relay still works — every question
// gets the "not configured" text — so the caller never has to branch.
func New(cfg Config, logger *observability.Logger, metrics *observability.Metrics) *Relay {
	var client OpenAIClient
	if cfg.APIKey != "" {
		client = openai.NewClient(cfg.APIKey)
	}
	return NewWithClient(client, cfg, logger, metrics)
}

// NewWithClient creates a relay with an injected provider client.
func NewWithClient(client OpenAIClient, cfg Config, logger *observability.Logger, metrics *observability.Metrics) *Relay {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Carrier == "" {
		cfg.Carrier = "Contractor Connection"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 800 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	return &Relay{
		client:  client,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// Enabled reports whether the relay has a provider client and a document
// collection to search.
func (r *Relay) Enabled() bool {
	return r.client != nil && r.vectorStoreID() != ""
}

// vectorStoreID reads the configured store under the session lock, since
// SetVectorStore may change it concurrently with in-flight questions.
func (r *Relay) vectorStoreID() string {
	r.session.mu.Lock()
	defer r.session.mu.Unlock()
	return r.cfg.VectorStoreID
}

// SetVectorStore points the relay at a different document collection. The
// cached assistant is rebuilt lazily on the next question.
func (r *Relay) SetVectorStore(id string) {
	r.session.mu.Lock()
	defer r.session.mu.Unlock()
	r.cfg.VectorStoreID = id
}

// Answer returns user-postable text for the question. It never returns an
// error and never an empty string.
func (r *Relay) Answer(ctx context.Context, question string) string {
	start := time.Now()
	outcome, text := r.answer(ctx, question)
	if r.metrics != nil {
		r.metrics.ObserveQA(outcome, time.Since(start))
	}
	return text
}

func (r *Relay) answer(ctx context.Context, question string) (outcome, text string) {
	if !r.Enabled() {
		return "not_configured", NotConfiguredText
	}

	assistantID, err := r.ensureAssistant(ctx)
	if err != nil {
		r.logger.Error(ctx, "qa: assistant setup failed", "error", err)
		return "error", SnagText
	}

	thread, err := r.client.CreateThread(ctx, openai.ThreadRequest{
		Messages: []openai.ThreadMessage{{
			Role:    openai.ThreadMessageRoleUser,
			Content: r.userTurn(question),
		}},
	})
	if err != nil {
		r.logger.Error(ctx, "qa: thread creation failed", "error", err)
		return "error", SnagText
	}

	run, err := r.client.CreateRun(ctx, thread.ID, openai.RunRequest{AssistantID: assistantID})
	if err != nil {
		r.logger.Error(ctx, "qa: run creation failed", "error", err)
		return "error", SnagText
	}

	final, err := backoff.Poll(ctx, r.cfg.PollInterval, r.cfg.Timeout,
		func(ctx context.Context) (openai.Run, bool, error) {
			current, err := r.client.RetrieveRun(ctx, thread.ID, run.ID)
			if err != nil {
				return openai.Run{}, false, err
			}
			return current, isTerminal(current.Status), nil
		})
	if errors.Is(err, backoff.ErrPollTimeout) {
		r.logger.Warn(ctx, "qa: run did not finish in time",
			"run_id", run.ID, "timeout", r.cfg.Timeout)
		return "timeout", TimeoutText
	}
	if err != nil {
		r.logger.Error(ctx, "qa: run polling failed", "run_id", run.ID, "error", err)
		return "error", SnagText
	}
	if final.Status != openai.RunStatusCompleted {
		args := []any{"run_id", run.ID, "status", string(final.Status)}
		if final.LastError != nil {
			args = append(args, "code", final.LastError.Code, "detail", final.LastError.Message)
		}
		r.logger.Error(ctx, "qa: run ended unsuccessfully", args...)
		return "error", SnagText
	}

	answer, err := r.latestAnswer(ctx, thread.ID)
	if err != nil {
		r.logger.Error(ctx, "qa: reading response failed", "error", err)
		return "error", SnagText
	}
	if answer == "" {
		return "empty", NoClauseText
	}
	return "answered", answer
}

// session caches the assistant bound to a vector store. Recreated only when
// the configured store changes.
type sessionState struct {
	assistantID   string
	vectorStoreID string
}

type session struct {
	mu    sync.Mutex
	state sessionState
}

// ensureAssistant returns the cached assistant for the configured vector
// store, creating it on first use and whenever the store ID changed. The
// vector store is retrieved first so a bad collection ID fails here, before
// an assistant is created against it.
func (r *Relay) ensureAssistant(ctx context.Context) (string, error) {
	r.session.mu.Lock()
	defer r.session.mu.Unlock()

	storeID := r.cfg.VectorStoreID
	if r.session.state.assistantID != "" && r.session.state.vectorStoreID == storeID {
		return r.session.state.assistantID, nil
	}

	if _, err := r.client.RetrieveVectorStore(ctx, storeID); err != nil {
		return "", err
	}

	name := "demogate-policy"
	prompt := instructions
	assistant, err := r.client.CreateAssistant(ctx, openai.AssistantRequest{
		Model:        r.cfg.Model,
		Name:         &name,
		Instructions: &prompt,
		Tools:        []openai.AssistantTool{{Type: openai.AssistantToolTypeFileSearch}},
		ToolResources: &openai.AssistantToolResource{
			FileSearch: &openai.AssistantToolFileSearch{
				VectorStoreIDs: []string{storeID},
			},
		},
	})
	if err != nil {
		return "", err
	}

	r.session.state = sessionState{assistantID: assistant.ID, vectorStoreID: storeID}
	r.logger.Info(ctx, "qa: assistant created",
		"assistant_id", assistant.ID, "vector_store_id", storeID)
	return assistant.ID, nil
}

func (r *Relay) userTurn(question string) string {
	var b strings.Builder
	b.WriteString("Audience: restoration field crew and their coordinators.\n")
	b.WriteString("Carrier/program: ")
	b.WriteString(r.cfg.Carrier)
	b.WriteString(".\nQuestion: ")
	b.WriteString(question)
	return b.String()
}

// latestAnswer concatenates the text content of the newest assistant message.
func (r *Relay) latestAnswer(ctx context.Context, threadID string) (string, error) {
	limit := 10
	order := "desc"
	list, err := r.client.ListMessage(ctx, threadID, &limit, &order, nil, nil, nil)
	if err != nil {
		return "", err
	}

	for _, msg := range list.Messages {
		if msg.Role != "assistant" {
			continue
		}
		var parts []string
		for _, content := range msg.Content {
			if content.Type == "text" && content.Text != nil {
				parts = append(parts, content.Text.Value)
			}
		}
		return strings.TrimSpace(strings.Join(parts, "\n")), nil
	}
	return "", nil
}

func isTerminal(status openai.RunStatus) bool {
	switch status {
	case openai.RunStatusQueued, openai.RunStatusInProgress, openai.RunStatusCancelling:
		return false
	default:
		// completed, failed, cancelled, expired, incomplete and
		// requires_action (no function tools are attached) all end the wait.
		return true
	}
}
