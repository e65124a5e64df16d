package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"autoelite.com/storefront/internal/metrics"
	"autoelite.com/storefront/internal/store"
)

// ConversationStore is the persistence the chat controller depends on.
type ConversationStore interface {
	CreateConversation(ctx context.Context, in store.NewConversation) (*store.Conversation, error)
	AppendMessage(ctx context.Context, conversationID string, sender store.SenderRole, content string) (*store.Message, error)
	SetConversationStatus(ctx context.Context, conversationID string, status store.ConversationStatus) error
	MarkMessageUnanswered(ctx context.Context, messageID string) error
}

type SessionState string

const (
	StateCollectingIdentity SessionState = "collecting_identity"
	StateActive             SessionState = "active_session"
	StateClosed             SessionState = "widget_closed"
)

var sessionTransitions = map[SessionState][]SessionState{
	StateCollectingIdentity: {StateActive, StateClosed},
	StateActive:             {StateClosed},
	StateClosed:             nil,
}

func (s SessionState) canTransitionTo(next SessionState) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

const compensationTimeout = 10 * time.Second

type Identity struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

func (id Identity) normalized() Identity {
	return Identity{
		Name:  strings.TrimSpace(id.Name),
		Phone: strings.TrimSpace(id.Phone),
		Email: strings.TrimSpace(id.Email),
	}
}

func (id Identity) validate() error {
	if id.Name == "" {
		return &ValidationError{Field: "name", Message: "Nome e telefone são obrigatórios."}
	}
	if id.Phone == "" {
		return &ValidationError{Field: "phone", Message: "Nome e telefone são obrigatórios."}
	}
	return nil
}

// TranscriptEntry is one line of the widget transcript. ID is local to the
// session; MessageID is set once the entry is stored. Local entries (the
// welcome and technical-difficulty fallback) are never stored.
type TranscriptEntry struct {
	ID        string           `json:"id"`
	MessageID string           `json:"message_id,omitempty"`
	Sender    store.SenderRole `json:"sender"`
	Content   string           `json:"content"`
	Timestamp time.Time        `json:"timestamp"`
	Local     bool             `json:"local"`
}

type SendResult struct {
	// Ignored is set for blank input or when there is no active conversation.
	Ignored bool
	// Discarded is set when the session closed while the reply was pending.
	Discarded bool
	Fallback  bool
	Escalated bool
	Customer  *TranscriptEntry
	Reply     *TranscriptEntry
}

type SessionView struct {
	ID             string                   `json:"session_id"`
	State          SessionState             `json:"state"`
	VehicleID      string                   `json:"vehicle_id"`
	VehicleName    string                   `json:"vehicle_name"`
	ConversationID string                   `json:"conversation_id,omitempty"`
	Status         store.ConversationStatus `json:"status,omitempty"`
	Busy           bool                     `json:"busy"`
	Transcript     []TranscriptEntry        `json:"transcript"`
}

// Session is one chat widget: it collects the customer's identity, opens a
// conversation and relays messages between the customer, the store and the
// assistant. Begin is single-flight and only one send runs at a time; no
// lock is held across store or assistant calls.
type Session struct {
	id          string
	vehicleID   string
	vehicleName string
	store       ConversationStore
	assistant   AssistantInvoker
	metrics     *metrics.Metrics
	log         zerolog.Logger
	now         func() time.Time

	begin singleflight.Group

	mu           sync.Mutex
	state        SessionState
	identity     Identity
	conversation *store.Conversation
	transcript   []TranscriptEntry
	busy         bool
}

type SessionConfig struct {
	VehicleID   string
	VehicleName string
	Store       ConversationStore
	Assistant   AssistantInvoker
	Metrics     *metrics.Metrics
	Logger      zerolog.Logger
}

func NewSession(cfg SessionConfig) *Session {
	id := uuid.NewString()
	return &Session{
		id:          id,
		vehicleID:   cfg.VehicleID,
		vehicleName: cfg.VehicleName,
		store:       cfg.Store,
		assistant:   cfg.Assistant,
		metrics:     cfg.Metrics,
		log:         cfg.Logger.With().Str("session_id", id).Logger(),
		now:         time.Now,
		state:       StateCollectingIdentity,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Busy reports whether a send is waiting on the assistant.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// transition must be called with s.mu held.
func (s *Session) transition(next SessionState) bool {
	if !s.state.canTransitionTo(next) {
		return false
	}
	s.state = next
	return true
}

// Begin validates the customer's identity and opens a conversation in
// ai_handling. Concurrent calls share one creation.
func (s *Session) Begin(ctx context.Context, identity Identity) (*store.Conversation, error) {
	identity = identity.normalized()
	if err := identity.validate(); err != nil {
		return nil, err
	}
	if err := s.checkCanBegin(); err != nil {
		return nil, err
	}

	v, err, _ := s.begin.Do("begin", func() (any, error) {
		return s.beginOnce(ctx, identity)
	})
	if err != nil {
		return nil, err
	}
	conv := *v.(*store.Conversation)
	return &conv, nil // each caller gets its own copy
}

func (s *Session) checkCanBegin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateActive:
		return ErrSessionActive
	case StateClosed:
		return ErrSessionClosed
	}
	return nil
}

func (s *Session) beginOnce(ctx context.Context, identity Identity) (*store.Conversation, error) {
	// A call that lost the race to an already finished flight lands here.
	if err := s.checkCanBegin(); err != nil {
		return nil, err
	}

	in := store.NewConversation{
		VehicleID:     s.vehicleID,
		CustomerName:  identity.Name,
		CustomerPhone: identity.Phone,
	}
	if identity.Email != "" {
		email := identity.Email
		in.CustomerEmail = &email
	}

	conv, err := s.store.CreateConversation(ctx, in)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to create conversation")
		return nil, &PersistenceError{Op: "create conversation", Notice: beginFailureNotice, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.transition(StateActive) {
		// Closed while the conversation was being created.
		s.log.Warn().Str("conversation_id", conv.ID).Msg("session closed before the conversation opened")
		return nil, ErrSessionClosed
	}
	s.identity = identity
	s.conversation = conv
	s.transcript = []TranscriptEntry{s.newEntry(store.SenderAI, welcomeMessage(identity.Name, s.vehicleName), true)}

	if s.metrics != nil {
		s.metrics.ConversationsStarted.WithLabelValues(string(conv.Status)).Inc()
	}
	s.log.Info().Str("conversation_id", conv.ID).Str("vehicle_id", s.vehicleID).Msg("conversation started")
	out := *conv
	return &out, nil
}

// Send relays one customer message. Blank input and sends without an active
// conversation are ignored; a send while another is in flight fails with
// ErrBusy. Upstream and store failures never surface as errors: the
// customer sees a local fallback message instead.
func (s *Session) Send(ctx context.Context, content string) (SendResult, error) {
	if strings.TrimSpace(content) == "" {
		return SendResult{Ignored: true}, nil
	}

	s.mu.Lock()
	if s.state != StateActive || s.conversation == nil {
		s.mu.Unlock()
		return SendResult{Ignored: true}, nil
	}
	if s.busy {
		s.mu.Unlock()
		return SendResult{}, ErrBusy
	}
	s.busy = true
	customer := s.appendLocked(s.newEntry(store.SenderCustomer, content, false))
	convID := s.conversation.ID
	customerName := s.identity.Name
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	result := SendResult{Customer: &customer}

	customerMsg, err := s.store.AppendMessage(ctx, convID, store.SenderCustomer, content)
	if err != nil {
		s.log.Error().Err(err).Str("conversation_id", convID).Msg("failed to store customer message")
		return s.fail(ctx, result, ""), nil
	}
	s.recordMessage(store.SenderCustomer)
	s.setMessageID(customer.ID, customerMsg.ID)
	result.Customer.MessageID = customerMsg.ID

	reply, err := s.assistant.Invoke(ctx, AssistantRequest{
		ConversationID: convID,
		Message:        content,
		VehicleID:      s.vehicleID,
		CustomerName:   customerName,
	})
	if err != nil {
		s.log.Error().Err(err).Str("conversation_id", convID).Msg("assistant invocation failed")
		return s.fail(ctx, result, customerMsg.ID), nil
	}

	if s.State() == StateClosed {
		s.log.Info().Str("conversation_id", convID).Msg("session closed before the reply arrived, discarding it")
		s.compensate(ctx, customerMsg.ID)
		result.Discarded = true
		return result, nil
	}

	// Store the reply before showing it so every non-local transcript
	// entry has a stored counterpart.
	replyMsg, err := s.store.AppendMessage(ctx, convID, store.SenderAI, reply.Message)
	if err != nil {
		s.log.Error().Err(err).Str("conversation_id", convID).Msg("failed to store assistant reply")
		return s.fail(ctx, result, customerMsg.ID), nil
	}
	s.recordMessage(store.SenderAI)

	entry := s.newEntry(store.SenderAI, reply.Message, false)
	entry.MessageID = replyMsg.ID
	s.mu.Lock()
	entry = s.appendLocked(entry)
	s.mu.Unlock()
	result.Reply = &entry

	if reply.TransferToSeller {
		result.Escalated = s.escalate(ctx, convID)
	}
	return result, nil
}

// escalate hands the conversation to a seller. It is one-way: the local
// status only ever moves forward through the store's transition table.
func (s *Session) escalate(ctx context.Context, convID string) bool {
	s.mu.Lock()
	current := s.conversation.Status
	s.mu.Unlock()
	if current == store.StatusWaitingSeller {
		return true
	}
	if !current.CanTransitionTo(store.StatusWaitingSeller) {
		return false
	}

	err := s.store.SetConversationStatus(ctx, convID, store.StatusWaitingSeller)
	if err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			s.log.Warn().Err(err).Str("conversation_id", convID).Msg("conversation no longer escalatable")
		} else {
			s.log.Error().Err(err).Str("conversation_id", convID).Msg("failed to escalate conversation")
		}
		return false
	}

	s.mu.Lock()
	s.conversation.Status = store.StatusWaitingSeller
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.EscalationsTotal.Inc()
	}
	s.log.Info().Str("conversation_id", convID).Msg("conversation handed to a seller")
	return true
}

// fail shows the local fallback and flags the stored customer message, if
// any, as unanswered.
func (s *Session) fail(ctx context.Context, result SendResult, customerMessageID string) SendResult {
	result.Fallback = true
	s.mu.Lock()
	if s.state != StateClosed {
		entry := s.appendLocked(s.newEntry(store.SenderAI, sendFallbackReply, true))
		result.Reply = &entry
	}
	s.mu.Unlock()
	s.compensate(ctx, customerMessageID)
	return result
}

func (s *Session) compensate(ctx context.Context, customerMessageID string) {
	if customerMessageID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()
	if err := s.store.MarkMessageUnanswered(ctx, customerMessageID); err != nil {
		s.log.Error().Err(err).Str("message_id", customerMessageID).Msg("failed to mark customer message unanswered")
	}
}

// Close ends the session. It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.transition(StateClosed)
	s.log.Debug().Msg("chat session closed")
}

func (s *Session) Transcript() []TranscriptEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TranscriptEntry, len(s.transcript))
	copy(out, s.transcript)
	return out
}

func (s *Session) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	view := SessionView{
		ID:          s.id,
		State:       s.state,
		VehicleID:   s.vehicleID,
		VehicleName: s.vehicleName,
		Busy:        s.busy,
		Transcript:  make([]TranscriptEntry, len(s.transcript)),
	}
	copy(view.Transcript, s.transcript)
	if s.conversation != nil {
		view.ConversationID = s.conversation.ID
		view.Status = s.conversation.Status
	}
	return view
}

func (s *Session) newEntry(sender store.SenderRole, content string, local bool) TranscriptEntry {
	return TranscriptEntry{
		ID:        uuid.NewString(),
		Sender:    sender,
		Content:   content,
		Timestamp: s.now(),
		Local:     local,
	}
}

// appendLocked must be called with s.mu held.
func (s *Session) appendLocked(e TranscriptEntry) TranscriptEntry {
	s.transcript = append(s.transcript, e)
	return e
}

func (s *Session) setMessageID(entryID, messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.transcript {
		if s.transcript[i].ID == entryID {
			s.transcript[i].MessageID = messageID
			return
		}
	}
}

func (s *Session) recordMessage(sender store.SenderRole) {
	if s.metrics != nil {
		s.metrics.MessagesTotal.WithLabelValues(string(sender)).Inc()
	}
}
