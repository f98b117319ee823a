package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"chatsync/internal/domain"
	"chatsync/internal/usecase/protocol"
)

// ClientDeps holds the collaborators of a Client. Store, Bus and Codec are
// optional.
type ClientDeps struct {
	Transport domain.Transport
	API       domain.SessionAPI
	Store     domain.SnapshotStore
	Bus       domain.EventBus
	Codec     *protocol.Codec
	Logger    *slog.Logger
	Now       func() time.Time
	NewID     func() string
}

// ClientOptions tunes a Client. Zero values take defaults.
type ClientOptions struct {
	CacheTTL    time.Duration
	MaxSessions int
	History     HistoryOptions
	SendRate    float64 // chat sends per second; 0 disables the limit
	SendBurst   int
}

// ClientState is a point-in-time copy of everything a UI renders.
type ClientState struct {
	SessionID   string
	Status      domain.ConnectionStatus
	Streaming   bool
	Thinking    bool
	Loading     bool
	Messages    []domain.Message
	Partial     *domain.Message
	Tools       []domain.ToolExecution
	Question    *domain.PendingQuestion
	Resume      ResumeState
	HistoryErr  error
	LastTurn    *domain.TurnSummary
	Draft       string
	CachedCount int
}

// Client ties the transport, codec and conversation state together. Frames
// and user calls are applied one at a time under a single lock; observer
// events are published after the lock is released, in the order produced.
type Client struct {
	transport domain.Transport
	store     domain.SnapshotStore
	bus       domain.EventBus
	codec     *protocol.Codec
	loader    *HistoryLoader
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
	limiter   *rate.Limiter

	mu         sync.Mutex
	conv       *Conversation
	asm        *StreamAssembler
	tools      *ToolTracker
	resume     *ResumeCoordinator
	gate       *QuestionGate
	status     domain.ConnectionStatus
	streaming  bool
	thinking   bool
	loading    bool
	historyErr error
	lastTurn   *domain.TurnSummary
	sessionGen uint64
	outbox     []domain.Event
}

// NewClient creates a Client and installs it as the transport's listener.
func NewClient(deps ClientDeps, opts ClientOptions) (*Client, error) {
	if deps.Transport == nil || deps.API == nil {
		return nil, fmt.Errorf("new client: transport and api are required: %w", domain.ErrInvalidInput)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = NewID
	}
	if deps.Codec == nil {
		codec, err := protocol.NewCodec()
		if err != nil {
			return nil, fmt.Errorf("new client: %w", err)
		}
		codec.SetLogger(deps.Logger)
		deps.Codec = codec
	}

	c := &Client{
		transport: deps.Transport,
		store:     deps.Store,
		bus:       deps.Bus,
		codec:     deps.Codec,
		loader:    NewHistoryLoader(deps.API, opts.History, deps.NewID, deps.Logger),
		logger:    deps.Logger,
		now:       deps.Now,
		newID:     deps.NewID,
		conv:      NewConversation(opts.CacheTTL, opts.MaxSessions, deps.Now),
		tools:     NewToolTracker(deps.Now, deps.NewID),
		resume:    NewResumeCoordinator(),
		gate:      NewQuestionGate(),
		status:    domain.StatusDisconnected,
	}
	if opts.SendRate > 0 {
		burst := opts.SendBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.SendRate), burst)
	}
	c.asm = NewStreamAssembler(MessageSinkFunc(c.appendLocked), deps.NewID, deps.Now)
	c.transport.SetListener(c)
	return c, nil
}

// lock/unlock bracket every state change. unlock publishes the events
// queued while the lock was held.
func (c *Client) lock() { c.mu.Lock() }

func (c *Client) unlock() {
	events := c.outbox
	c.outbox = nil
	c.mu.Unlock()
	if c.bus == nil {
		return
	}
	for _, ev := range events {
		c.bus.Publish(context.Background(), ev)
	}
}

func (c *Client) emit(t domain.EventType, payload any) {
	c.outbox = append(c.outbox, domain.Event{
		Type:      t,
		Timestamp: c.now(),
		SessionID: c.conv.SessionID(),
		Payload:   payload,
	})
}

func (c *Client) emitStream() {
	c.emit(domain.EventStreamUpdated, domain.StreamPayload{
		StreamID:  c.asm.StreamID(),
		Streaming: c.streaming,
		Thinking:  c.thinking,
		Partial:   c.asm.PendingText(),
	})
}

// appendLocked is the assembler's sink and the path for every transcript
// append.
func (c *Client) appendLocked(msg domain.Message) {
	c.conv.AppendMessage(msg)
	c.emit(domain.EventTranscriptChanged, domain.TranscriptPayload{Appended: &msg, Count: c.conv.Len()})
}

// Restore loads the persisted snapshot, if a store is configured.
func (c *Client) Restore(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	snap, err := c.store.Load(ctx)
	if err != nil {
		return domain.WrapOp("Client.Restore", err)
	}
	c.lock()
	c.conv.Restore(snap)
	c.unlock()
	return nil
}

// SwitchSession attaches to sessionID. A fresh cache entry is shown at
// once; otherwise history is fetched. Session metadata is looked up in
// parallel to decide whether to resume. The returned error is the history
// load failure, if any; it is also reflected in State.
func (c *Client) SwitchSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return domain.NewDomainError("Client.SwitchSession", domain.ErrInvalidInput, "empty session id")
	}

	c.lock()
	if sessionID == c.conv.SessionID() {
		c.unlock()
		return c.transport.Connect(sessionID)
	}

	c.stashPartialLocked()
	c.sessionGen++
	gen := c.sessionGen
	c.conv.SetSession(sessionID)
	c.asm.Reset()
	c.tools.Reset()
	c.gate.Clear()
	c.resume.Attach(sessionID)
	c.streaming, c.thinking = false, false
	c.historyErr = nil
	c.lastTurn = nil
	c.status = domain.StatusDisconnected

	cached, fromCache := c.conv.Cache().Get(sessionID)
	if fromCache {
		c.conv.ReplaceMessages(cached.Messages)
		c.loading = false
		c.emit(domain.EventHistoryLoaded, domain.HistoryPayload{FromCache: true, Count: len(cached.Messages)})
	} else {
		c.loading = true
	}
	c.emit(domain.EventTranscriptChanged, domain.TranscriptPayload{Count: c.conv.Len()})
	c.emitStream()
	c.unlock()

	if err := c.transport.Connect(sessionID); err != nil {
		return domain.WrapOp("Client.SwitchSession", err)
	}

	var g errgroup.Group
	var loadErr error
	if !fromCache {
		g.Go(func() error {
			loadErr = c.loadHistory(ctx, sessionID, gen)
			return nil
		})
	}
	g.Go(func() error {
		c.lookupSession(ctx, sessionID, gen)
		return nil
	})
	_ = g.Wait()
	return loadErr
}

func (c *Client) loadHistory(ctx context.Context, sessionID string, gen uint64) error {
	msgs, err := c.loader.Load(ctx, sessionID)

	c.lock()
	defer c.unlock()
	if gen != c.sessionGen {
		return nil
	}
	c.loading = false

	if err != nil {
		c.historyErr = err
		c.logger.Warn("history load failed", "session", sessionID, "error", err)
		if stale, ok := c.conv.Cache().GetStale(sessionID); ok {
			c.conv.MergeHistory(stale.Messages)
			c.emit(domain.EventTranscriptChanged, domain.TranscriptPayload{Count: c.conv.Len()})
			c.emit(domain.EventHistoryLoaded, domain.HistoryPayload{FromCache: true, Stale: true, Count: len(stale.Messages), Err: err})
		} else {
			c.emit(domain.EventHistoryFailed, domain.HistoryPayload{Err: err})
		}
		return err
	}

	c.historyErr = nil
	c.conv.MergeHistory(msgs)
	c.conv.CacheTranscript()
	c.emit(domain.EventTranscriptChanged, domain.TranscriptPayload{Count: c.conv.Len()})
	c.emit(domain.EventHistoryLoaded, domain.HistoryPayload{Count: len(msgs)})
	return nil
}

func (c *Client) lookupSession(ctx context.Context, sessionID string, gen uint64) {
	info, err := c.loader.LookupSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			c.HandleSessionNotFound(sessionID)
			return
		}
		c.logger.Warn("session lookup failed, not resuming", "session", sessionID, "error", err)
		return
	}

	c.lock()
	defer c.unlock()
	if gen != c.sessionGen {
		return
	}
	c.resume.Arm(sessionID, info.IsProcessing)
	if c.status == domain.StatusConnected {
		c.maybeResumeLocked(sessionID)
	}
}

func (c *Client) maybeResumeLocked(sessionID string) {
	if !c.resume.OnConnected(sessionID) {
		return
	}
	if err := c.sendLocked(protocol.Resume{}); err != nil {
		c.logger.Warn("resume request not sent", "session", sessionID, "error", err)
		c.resume.SendFailed()
		return
	}
	c.logger.Info("resume requested", "session", sessionID)
}

func (c *Client) sendLocked(cmd protocol.Command) error {
	data, err := protocol.Encode(cmd)
	if err != nil {
		return err
	}
	return c.transport.Send(data)
}

// SendChat sends a user message. The message is appended to the transcript
// and the draft cleared only once the frame is queued.
func (c *Client) SendChat(content string, files []domain.FileRef) (domain.Message, error) {
	c.lock()
	defer c.unlock()

	sessionID := c.conv.SessionID()
	switch {
	case sessionID == "":
		return domain.Message{}, domain.NewDomainError("Client.SendChat", domain.ErrNoActiveSession, "")
	case c.gate.Blocked():
		return domain.Message{}, domain.NewDomainError("Client.SendChat", domain.ErrQuestionPending, "")
	case strings.TrimSpace(content) == "" && len(files) == 0:
		return domain.Message{}, domain.NewDomainError("Client.SendChat", domain.ErrInvalidInput, "empty message")
	case c.limiter != nil && !c.limiter.Allow():
		return domain.Message{}, domain.NewDomainError("Client.SendChat", domain.ErrRateLimit, "")
	}

	if err := c.sendLocked(protocol.Chat{Content: content, Files: files}); err != nil {
		return domain.Message{}, domain.WrapOp("Client.SendChat", err)
	}

	// A new turn drops whatever the previous one left unfinalized.
	c.asm.Reset()
	msg := domain.Message{
		ID:        c.newID(),
		Role:      domain.RoleUser,
		Content:   []domain.ContentBlock{domain.TextBlock{Text: content}},
		Timestamp: c.now(),
	}
	c.appendLocked(msg)
	c.conv.Drafts().Clear(sessionID)
	c.tools.Reset()
	c.asm.Begin()
	c.streaming, c.thinking = true, true
	c.emitStream()
	return msg, nil
}

// Interrupt asks the server to cancel the running turn. Streaming flags are
// cleared when the server answers with interrupted or result.
func (c *Client) Interrupt() error {
	c.lock()
	defer c.unlock()
	if c.conv.SessionID() == "" {
		return domain.NewDomainError("Client.Interrupt", domain.ErrNoActiveSession, "")
	}
	return domain.WrapOp("Client.Interrupt", c.sendLocked(protocol.Interrupt{}))
}

// AnswerQuestion answers the pending question and clears it. If the answer
// cannot be queued the question is re-armed and the error returned; once
// queued there is no rollback.
func (c *Client) AnswerQuestion(answers map[string]string) error {
	c.lock()
	defer c.unlock()

	q, err := c.gate.Take()
	if err != nil {
		return domain.NewDomainError("Client.AnswerQuestion", err, "")
	}
	if err := c.sendLocked(protocol.QuestionAnswer{ToolUseID: q.ToolUseID, Answers: answers}); err != nil {
		c.gate.Rearm(q)
		return domain.WrapOp("Client.AnswerQuestion", err)
	}
	c.emit(domain.EventQuestionCleared, nil)
	c.streaming, c.thinking = true, true
	c.emitStream()
	return nil
}

// Reconnect dials immediately, bypassing backoff.
func (c *Client) Reconnect() error {
	return domain.WrapOp("Client.Reconnect", c.transport.Reconnect())
}

// SetDraft stores unsent input for the active session.
func (c *Client) SetDraft(text string) {
	c.lock()
	defer c.unlock()
	if id := c.conv.SessionID(); id != "" {
		c.conv.Drafts().Set(id, text)
	}
}

// Draft returns the unsent input of sessionID.
func (c *Client) Draft(sessionID string) string {
	c.lock()
	defer c.unlock()
	return c.conv.Drafts().Get(sessionID)
}

// FlushPartial writes the in-flight partial message into the session cache
// and persists the snapshot, so an abrupt exit does not lose a long reply.
func (c *Client) FlushPartial(ctx context.Context) error {
	c.lock()
	c.stashPartialLocked()
	snap := c.conv.Snapshot()
	c.unlock()

	if c.store == nil {
		return nil
	}
	return domain.WrapOp("Client.FlushPartial", c.store.Save(ctx, snap))
}

func (c *Client) stashPartialLocked() {
	if msg, ok := c.asm.Partial(); ok {
		c.conv.CachePartial(msg)
	}
}

// PruneCache drops expired history cache entries.
func (c *Client) PruneCache() int {
	c.lock()
	defer c.unlock()
	return c.conv.Cache().Prune()
}

// State returns a copy of the client state.
func (c *Client) State() ClientState {
	c.lock()
	defer c.unlock()

	st := ClientState{
		SessionID:   c.conv.SessionID(),
		Status:      c.status,
		Streaming:   c.streaming,
		Thinking:    c.thinking,
		Loading:     c.loading,
		Messages:    c.conv.Messages(),
		Tools:       c.tools.All(),
		Resume:      c.resume.State(),
		HistoryErr:  c.historyErr,
		Draft:       c.conv.Drafts().Get(c.conv.SessionID()),
		CachedCount: c.conv.Cache().Len(),
	}
	if p, ok := c.asm.Partial(); ok {
		st.Partial = &p
	}
	if q, ok := c.gate.Pending(); ok {
		st.Question = &q
	}
	if c.lastTurn != nil {
		lt := *c.lastTurn
		st.LastTurn = &lt
	}
	return st
}

// Close persists the snapshot and closes the transport.
func (c *Client) Close(ctx context.Context) error {
	flushErr := c.FlushPartial(ctx)
	return errors.Join(flushErr, c.transport.Close())
}

// HandleStatus implements domain.FrameListener.
func (c *Client) HandleStatus(sessionID string, status domain.ConnectionStatus) {
	c.lock()
	defer c.unlock()
	if sessionID != c.conv.SessionID() {
		return
	}
	c.status = status
	c.emit(domain.EventStatusChanged, domain.StatusPayload{Status: status})
	if status == domain.StatusConnected {
		c.maybeResumeLocked(sessionID)
	}
}

// HandleSessionNotFound implements domain.FrameListener. The session is
// dropped and the active session reference cleared.
func (c *Client) HandleSessionNotFound(sessionID string) {
	c.lock()
	defer c.unlock()
	c.sessionLostLocked(sessionID)
}

func (c *Client) sessionLostLocked(sessionID string) {
	if sessionID == "" || sessionID != c.conv.SessionID() {
		return
	}
	c.logger.Warn("session not found on server", "session", sessionID)
	c.transport.MarkSessionNotFound(sessionID)

	c.emit(domain.EventSessionLost, nil)
	c.sessionGen++
	c.conv.Forget(sessionID)
	c.asm.Reset()
	c.tools.Reset()
	c.gate.Clear()
	c.resume.Attach("")
	c.streaming, c.thinking, c.loading = false, false, false
	c.status = domain.StatusDisconnected
}

// HandleFrame implements domain.FrameListener.
func (c *Client) HandleFrame(sessionID string, data []byte) {
	ev, err := c.codec.Decode(data)
	if err != nil {
		c.logger.Warn("dropping frame", "session", sessionID, "error", err)
		if c.bus != nil {
			c.bus.Publish(context.Background(), domain.Event{
				Type:      domain.EventFrameDropped,
				Timestamp: c.now(),
				SessionID: sessionID,
				Payload:   domain.FrameDroppedPayload{Err: err},
			})
		}
		return
	}

	c.lock()
	defer c.unlock()
	if sessionID != c.conv.SessionID() {
		c.logger.Debug("dropping frame for inactive session", "session", sessionID, "kind", string(ev.Kind()))
		return
	}
	c.apply(ev)
}

// apply mutates state for one decoded event. Caller holds the lock.
func (c *Client) apply(ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.Thinking:
		if !c.asm.Active() {
			c.asm.Begin()
		}
		c.streaming, c.thinking = true, true
		c.emitStream()

	case protocol.Text:
		c.asm.AppendText(e.Content)
		c.streaming, c.thinking = true, false
		c.emitStream()

	case protocol.ToolUseStart:
		c.asm.AppendToolUse(domain.ToolUseBlock{ID: e.ToolUseID, Name: e.Name, Input: e.Input})
		te := c.tools.Start(e.ToolUseID, e.Name, e.Input)
		c.streaming, c.thinking = true, false
		c.emit(domain.EventToolUpdated, te)
		c.emitStream()

	case protocol.ToolExecuting:
		te := c.tools.Executing(e.ToolUseID, e.Input)
		c.emit(domain.EventToolUpdated, te)

	case protocol.ToolResult:
		c.asm.AppendToolResult(domain.ToolResultBlock{ToolUseID: e.ToolUseID, Content: e.Output, IsError: !e.Success})
		te := c.tools.Finish(e.ToolUseID, e.Success, e.Output)
		c.emit(domain.EventToolUpdated, te)
		c.emitStream()

	case protocol.Result:
		streamID := c.asm.StreamID()
		c.asm.Finalize()
		c.lastTurn = &domain.TurnSummary{StreamID: streamID, Usage: e.Usage, Cost: e.Cost}
		c.endStream()

	case protocol.Error:
		if e.IsSessionNotFound() {
			c.sessionLostLocked(c.conv.SessionID())
			return
		}
		c.asm.Finalize()
		msg := e.Message
		if msg == "" {
			msg = "An unknown error occurred"
		}
		c.appendSystemText("Error: " + msg)
		c.endStream()

	case protocol.Interrupted:
		c.asm.Finalize()
		c.endStream()

	case protocol.ResumeStarted:
		c.resume.Resolve()
		c.tools.Reset()
		c.asm.Begin()
		c.streaming, c.thinking = true, true
		c.emitStream()

	case protocol.ResumeNotNeeded:
		c.resume.Resolve()
		c.endStream()

	case protocol.ResumeFailed:
		c.resume.Resolve()
		c.asm.Finalize()
		reason := e.Error
		if reason == "" {
			reason = "unknown error"
		}
		c.appendSystemText("Failed to resume: " + reason)
		c.endStream()

	case protocol.UserQuestion:
		q := domain.PendingQuestion{ToolUseID: e.ToolUseID, Questions: e.Questions}
		c.gate.Set(q)
		c.thinking = false
		c.emit(domain.EventQuestionPending, q)
		c.emitStream()
	}
}

func (c *Client) endStream() {
	c.streaming, c.thinking = false, false
	c.emitStream()
}

// appendSystemText appends a synthesized assistant message so failures
// show up in the transcript.
func (c *Client) appendSystemText(text string) {
	c.appendLocked(domain.Message{
		ID:        c.newID(),
		Role:      domain.RoleAssistant,
		Content:   []domain.ContentBlock{domain.TextBlock{Text: text}},
		Timestamp: c.now(),
	})
}

var _ domain.FrameListener = (*Client)(nil)
