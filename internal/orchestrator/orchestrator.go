// Package orchestrator implements C7, the Stream Orchestrator (spec.md
// §4.7): the per-request state machine that resolves a session, probes the
// QA cache, spawns the ReAct reasoner (C5) on a bounded worker pool, drains
// its Event Bus (C6) onto an SSE response, and persists the outcome. The
// worker-pool-plus-drain-loop shape is grounded on
// modelclient/chat/ollama.go's producer-goroutine idiom, generalised from
// one streaming HTTP call to the whole reasoning pipeline.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/weknora-chat/ragstream/internal/agent"
	"github.com/weknora-chat/ragstream/internal/agent/tools"
	"github.com/weknora-chat/ragstream/internal/common"
	"github.com/weknora-chat/ragstream/internal/customagent"
	rerr "github.com/weknora-chat/ragstream/internal/errors"
	"github.com/weknora-chat/ragstream/internal/eventbus"
	"github.com/weknora-chat/ragstream/internal/history"
	"github.com/weknora-chat/ragstream/internal/logger"
	"github.com/weknora-chat/ragstream/internal/modelclient/chat"
	"github.com/weknora-chat/ragstream/internal/qacache"
	"github.com/weknora-chat/ragstream/internal/sse"
	"github.com/weknora-chat/ragstream/internal/store"
	"github.com/weknora-chat/ragstream/internal/types"
)

// RegistryBuilder constructs a fresh, per-request Tool Registry whose
// knowledge_search tool is bound to this request's permission level and
// citation accumulator (spec.md §4.5 "Citation channel"). Supplied by
// cmd/server, which owns the shared retriever and built-in tool instances.
type RegistryBuilder func(level types.PermissionLevel, onCite func([]types.Passage)) *tools.Registry

// AutoNamer enqueues the session auto-naming job (spec.md §4.8); optional —
// a nil AutoNamer silently skips step 11/step 1's scheduling.
type AutoNamer interface {
	EnqueueAutoName(ctx context.Context, sessionID, userID, firstQuestion string) error
}

// Config carries the orchestrator's own tunables (spec.md §5 "Timeouts",
// §4.6's bus sizing, and §4.9's cache threshold).
type Config struct {
	RequestDeadline   time.Duration
	EventBusCapacity  int
	PublishTimeout    time.Duration
	ConsumePoll       time.Duration
	ReasonerPoolSize  int
	CacheHitThreshold float64
	HistoryExpiry     time.Duration
	SystemPrompt      string
}

func DefaultConfig() Config {
	return Config{
		RequestDeadline:   120 * time.Second,
		EventBusCapacity:  eventbus.MinCapacity,
		PublishTimeout:    200 * time.Millisecond,
		ConsumePoll:       50 * time.Millisecond,
		ReasonerPoolSize:  64,
		CacheHitThreshold: 0.95,
		HistoryExpiry:     24 * time.Hour,
		SystemPrompt:      "You are a careful, cited assistant. Use the available tools when the answer requires information you do not already know.",
	}
}

// Orchestrator is C7.
type Orchestrator struct {
	chat            chat.Chat
	registryBuilder RegistryBuilder
	agentCfg        agent.Config
	messages        store.MessageStore
	sessions        store.SessionStore
	history         *history.Manager
	qacache         *qacache.Cache
	pool            *ants.Pool
	autoNamer       AutoNamer
	customAgents    customagent.Repository // optional; nil disables req.AgentID lookups
	cfg             Config
}

func New(
	chatClient chat.Chat,
	registryBuilder RegistryBuilder,
	agentCfg agent.Config,
	messages store.MessageStore,
	sessions store.SessionStore,
	historyMgr *history.Manager,
	cache *qacache.Cache,
	pool *ants.Pool,
	autoNamer AutoNamer,
	customAgents customagent.Repository,
	cfg Config,
) *Orchestrator {
	return &Orchestrator{
		chat:            chatClient,
		registryBuilder: registryBuilder,
		agentCfg:        agentCfg,
		messages:        messages,
		sessions:        sessions,
		history:         historyMgr,
		qacache:         cache,
		pool:            pool,
		autoNamer:       autoNamer,
		customAgents:    customAgents,
		cfg:             cfg,
	}
}

// Request is the parsed form of spec.md §6.1's POST /messages fields.
type Request struct {
	Content             string
	UserID              string
	TenantID            uint64
	SessionID           string
	ShowThinking        bool
	File                *types.FileInfo
	Location            map[string]any
	SkipCache           bool
	RegenerateMessageID string
	PermissionLevel     types.PermissionLevel
	// AgentID, when set, selects a tenant's custom_agents row (SPEC_FULL.md
	// §C.7) whose system prompt replaces cfg.SystemPrompt's preamble for
	// this request.
	AgentID string
}

// EventSink is whatever renders an Event onto the wire; sse.Writer
// satisfies it, and tests can substitute a recording fake.
type EventSink interface {
	Write(types.Event) error
}

// Handle drives spec.md §4.7's eleven steps for one request. It returns an
// error for validation failures (step 0) and for persistence failures while
// creating the session or saving the user message (steps 1–2), the latter
// possibly after a `session_created` event was written; once the user
// message is saved, all failures are communicated as `error`/`done` events
// per spec.md §7's propagation policy, and Handle returns nil.
func (o *Orchestrator) Handle(ctx context.Context, req Request, sink EventSink) error {
	if strings.TrimSpace(req.Content) == "" {
		return rerr.NewBadRequestError("content must not be empty")
	}
	if req.UserID == "" {
		return rerr.NewBadRequestError("user_id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.RequestDeadline)
	defer cancel()
	ctx = types.WithContextIDs(ctx, req.TenantID, req.UserID)
	ctx = logger.CloneContext(ctx, "user_id", req.UserID, "session_id", req.SessionID)

	if req.RegenerateMessageID != "" {
		o.invalidateForRegenerate(ctx, req.RegenerateMessageID)
	}

	sessionID, isNewSession, err := o.resolveSession(ctx, req, sink)
	if err != nil {
		return err
	}

	userMsgID, err := o.persistUserMessage(ctx, sessionID, req)
	if err != nil {
		return err
	}
	if writeErr := sink.Write(types.Event{Kind: types.EventUserMessageSaved, MessageUUID: userMsgID, Content: req.Content}); writeErr != nil {
		return nil // client already gone; nothing more to do
	}

	if !req.SkipCache {
		if hit, cacheErr := o.qacache.Lookup(ctx, req.Content); cacheErr != nil {
			common.PipelineWarn(ctx, common.StageCacheProbe, "cache lookup failed, falling through to reasoning: %v", cacheErr)
		} else if hit != nil {
			o.serveCacheHit(ctx, sessionID, req, *hit, sink)
			return nil
		}
	}

	entries, err := o.history.Load(ctx, req.UserID, sessionID)
	if err != nil {
		common.PipelineWarn(ctx, common.StageLoadHistory, "history load failed, proceeding with empty history: %v", err)
		entries = nil
	}
	if entries != nil {
		if summarised, sumErr := o.history.MaybeSummarise(ctx, entries); sumErr != nil {
			common.PipelineWarn(ctx, common.StageLoadHistory, "summarisation failed, using unsummarised history: %v", sumErr)
		} else {
			entries = summarised
		}
	}

	o.runReasoningPipeline(ctx, sessionID, isNewSession, userMsgID, req, entries, sink)
	return nil
}

// resolveSession implements step 1.
func (o *Orchestrator) resolveSession(ctx context.Context, req Request, sink EventSink) (sessionID string, isNew bool, err error) {
	if req.SessionID != "" {
		return req.SessionID, false, nil
	}

	id := uuid.NewString()
	sess := types.NewPlaceholderSession(id, req.UserID, req.TenantID, time.Now())
	if err := o.sessions.Create(ctx, &sess); err != nil {
		return "", false, rerr.NewPersistenceError(err)
	}
	_ = sink.Write(types.Event{Kind: types.EventSessionCreated, SessionID: id, SessionName: sess.Name})
	return id, true, nil
}

// persistUserMessage implements step 2.
func (o *Orchestrator) persistUserMessage(ctx context.Context, sessionID string, req Request) (string, error) {
	id := uuid.NewString()
	content := req.Content
	extra := types.ExtraData{File: req.File, Location: req.Location}
	msg := types.Message{
		ID:        id,
		SessionID: sessionID,
		TenantID:  req.TenantID,
		Sender:    types.SenderUser,
		Content:   content,
		ExtraData: extra,
		CreatedAt: time.Now(),
	}
	if err := o.messages.Insert(ctx, &msg); err != nil {
		return "", rerr.NewPersistenceError(err)
	}
	return id, nil
}

// serveCacheHit implements step 3's cache-hit branch.
func (o *Orchestrator) serveCacheHit(ctx context.Context, sessionID string, req Request, hit types.QACacheEntry, sink EventSink) {
	const chunkRunes = 6
	runes := []rune(hit.Answer)
	for i := 0; i < len(runes); i += chunkRunes {
		end := i + chunkRunes
		if end > len(runes) {
			end = len(runes)
		}
		if err := sink.Write(types.Event{Kind: types.EventAnswerChunk, Content: string(runes[i:end])}); err != nil {
			return
		}
	}
	if err := sink.Write(types.Event{Kind: types.EventDocuments, Documents: hit.Citations}); err != nil {
		return
	}

	aiMsgID := uuid.NewString()
	msg := types.Message{
		ID:        aiMsgID,
		SessionID: sessionID,
		TenantID:  req.TenantID,
		Sender:    types.SenderAssistant,
		Content:   hit.Answer,
		ExtraData: types.ExtraData{Documents: hit.Citations, CacheSourced: true, ThoughtChainID: hit.ThoughtChainID},
		CreatedAt: time.Now(),
	}
	if err := o.messages.Insert(ctx, &msg); err != nil {
		common.PipelineError(ctx, common.StagePersist, err, "failed to persist cache-sourced assistant message")
		_ = sink.Write(types.Event{Kind: types.EventError, ErrorKind: string(rerr.KindPersistenceError), ErrorMessage: "failed to persist assistant message"})
		_ = sink.Write(types.Event{Kind: types.EventDone, SessionID: sessionID})
		return
	}
	_ = sink.Write(types.Event{Kind: types.EventAiMessageSaved, MessageUUID: aiMsgID, Content: hit.Answer})
	_ = sink.Write(types.Event{Kind: types.EventDone, SessionID: sessionID})

	if err := o.history.Append(ctx, req.UserID, sessionID, req.Content, hit.Answer); err != nil {
		logger.Warnf(ctx, "history append failed after cache hit: %v", err)
	}
}

// runReasoningPipeline implements steps 5–11.
func (o *Orchestrator) runReasoningPipeline(ctx context.Context, sessionID string, isNewSession bool, userMsgID string, req Request, history []types.HistoryEntry, sink EventSink) {
	bus := eventbus.New(o.cfg.EventBusCapacity, o.cfg.PublishTimeout, o.cfg.ConsumePoll)
	reasonerCtx, cancelReasoner := context.WithCancel(ctx)
	defer cancelReasoner()

	acc := newAccumulator()
	onCite := func(passages []types.Passage) { acc.addCitations(passages) }
	registry := o.registryBuilder(req.PermissionLevel, onCite)

	systemPrompt := o.systemPreamble(ctx, req) + "\n\n" + registry.DescribeAll()
	question := inlineAttachment(req.Content, req.File)

	done := make(chan struct{})
	runReasoner := func() {
		defer close(done)
		defer bus.Close()
		engine := agent.New(o.chat, registry, o.agentCfg)
		answer, err := engine.Run(reasonerCtx, systemPrompt, history, question, func(ev types.Event) {
			acc.observe(ev)
			bus.Publish(ev)
		})
		if err != nil {
			bus.Publish(types.Event{Kind: types.EventError, ErrorKind: string(rerr.KindBackendUnavailable), ErrorMessage: err.Error()})
		}
		acc.setFinalAnswer(answer)
	}

	if submitErr := o.pool.Submit(runReasoner); submitErr != nil {
		go runReasoner()
	}

	o.drain(ctx, bus, cancelReasoner, req.ShowThinking, sink)
	<-done

	if bus.CancelReason() == clientGoneReason {
		// spec.md §5: no assistant persistence, no cache write. The user turn
		// is already in the message store from step 2; the history cache is
		// not appended for this turn.
		return
	}

	o.finalize(ctx, sessionID, isNewSession, req, acc, sink)
}

const clientGoneReason = "client disconnected"

// drain implements step 7.
func (o *Orchestrator) drain(ctx context.Context, bus *eventbus.Bus, cancelReasoner context.CancelFunc, showThinking bool, sink EventSink) {
	for {
		ev, ok := bus.Consume(ctx)
		if !ok {
			return
		}
		if !showThinking && ev.IsIntermediate() {
			continue
		}
		if err := sink.Write(ev); err != nil {
			bus.Cancel(clientGoneReason)
			cancelReasoner()
			continue
		}
	}
}

// finalize implements steps 8–11.
func (o *Orchestrator) finalize(ctx context.Context, sessionID string, isNewSession bool, req Request, acc *accumulator, sink EventSink) {
	answer := acc.finalAnswer()

	if len(acc.documents) > 0 {
		_ = sink.Write(types.Event{Kind: types.EventDocuments, Documents: acc.documents})
	}

	aiMsgID := uuid.NewString()
	msg := types.Message{
		ID:        aiMsgID,
		SessionID: sessionID,
		TenantID:  req.TenantID,
		Sender:    types.SenderAssistant,
		Content:   answer,
		ExtraData: types.ExtraData{
			Thoughts:     acc.thoughts,
			Actions:      acc.actions,
			Observations: acc.observations,
			Documents:    acc.documents,
		},
		CreatedAt: time.Now(),
	}

	if err := o.messages.Insert(ctx, &msg); err != nil {
		common.PipelineError(ctx, common.StagePersist, err, "failed to persist assistant message")
		_ = sink.Write(types.Event{Kind: types.EventError, ErrorKind: string(rerr.KindPersistenceError), ErrorMessage: "failed to persist assistant message"})
		_ = sink.Write(types.Event{Kind: types.EventDone, SessionID: sessionID})
		return
	}
	_ = sink.Write(types.Event{Kind: types.EventAiMessageSaved, MessageUUID: aiMsgID, Content: answer})
	_ = sink.Write(types.Event{Kind: types.EventDone, SessionID: sessionID})

	if answer != "" && !acc.hadError {
		if err := o.qacache.Upsert(ctx, req.Content, answer, acc.documents); err != nil {
			logger.Warnf(ctx, "qa cache upsert failed: %v", err)
		}
	}

	if err := o.history.Append(ctx, req.UserID, sessionID, req.Content, answer); err != nil {
		logger.Warnf(ctx, "history append failed: %v", err)
	}

	if isNewSession && o.autoNamer != nil {
		if err := o.autoNamer.EnqueueAutoName(ctx, sessionID, req.UserID, req.Content); err != nil {
			logger.Warnf(ctx, "failed to enqueue auto-name job: %v", err)
		}
	}
}

// invalidateForRegenerate implements the regenerate_message_id pre-step
// (spec.md §6.1): delete the targeted message, and its QA-cache entry if it
// was cache-sourced.
func (o *Orchestrator) invalidateForRegenerate(ctx context.Context, messageID string) {
	msg, err := o.messages.Get(ctx, messageID)
	if err != nil {
		if err != store.ErrNotFound {
			logger.Warnf(ctx, "regenerate: failed to load message %s: %v", messageID, err)
		}
		return
	}
	if msg.ExtraData.CacheSourced && msg.ExtraData.ThoughtChainID != "" {
		if err := o.qacache.Delete(ctx, msg.ExtraData.ThoughtChainID); err != nil {
			logger.Warnf(ctx, "regenerate: failed to invalidate cache entry %s: %v", msg.ExtraData.ThoughtChainID, err)
		}
	}
	if err := o.messages.Delete(ctx, messageID); err != nil {
		logger.Warnf(ctx, "regenerate: failed to delete message %s: %v", messageID, err)
	}
}

// systemPreamble resolves the base system prompt text for this request:
// the configured default, or a tenant's custom agent's prompt when
// req.AgentID names one (SPEC_FULL.md §C.7). A lookup failure falls back
// to the default rather than failing the request.
func (o *Orchestrator) systemPreamble(ctx context.Context, req Request) string {
	if req.AgentID == "" || o.customAgents == nil {
		return o.cfg.SystemPrompt
	}
	agent, err := o.customAgents.Get(ctx, req.TenantID, req.AgentID)
	if err != nil {
		logger.Warnf(ctx, "custom agent %s lookup failed, using default system prompt: %v", req.AgentID, err)
		return o.cfg.SystemPrompt
	}
	return agent.SystemPrompt
}

// inlineAttachment implements step 5's attachment handling: parsed document
// text or a vision-derived description is appended to the question.
func inlineAttachment(question string, file *types.FileInfo) string {
	if file == nil {
		return question
	}
	switch {
	case file.VisionDescr != "":
		return fmt.Sprintf("%s\n\n[Attached image description: %s]", question, file.VisionDescr)
	case file.ParsedText != "":
		return fmt.Sprintf("%s\n\n[Attached file content]\n%s", question, file.ParsedText)
	default:
		return question
	}
}
