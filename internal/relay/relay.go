// Package relay carries short two-way conversations between a client and the
// clinic: a question to a provider (consultation) or a message to support.
// The recipient answers through a button on the forwarded message.
package relay

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ykvlv/booking-bot/internal/booking"
	"github.com/ykvlv/booking-bot/internal/domain"
)

// Kind is the channel a conversation goes through.
type Kind int

const (
	KindConsultation Kind = iota + 1
	KindSupport
)

func (k Kind) String() string {
	switch k {
	case KindConsultation:
		return "consultation"
	case KindSupport:
		return "support"
	default:
		return "unknown"
	}
}

// State is the step a conversation is waiting on.
type State int

const (
	StateIdle State = iota
	StateAwaitingProvider
	StateAwaitingName
	StateAwaitingMessage
	// StateAwaitingAnswer belongs to the recipient writing a reply.
	StateAwaitingAnswer
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingProvider:
		return "awaiting_provider"
	case StateAwaitingName:
		return "awaiting_name"
	case StateAwaitingMessage:
		return "awaiting_message"
	case StateAwaitingAnswer:
		return "awaiting_answer"
	default:
		return "unknown"
	}
}

type Notice int

const (
	NoticeNone            Notice = iota
	NoticeNoConversation         // event for a chat without a conversation
	NoticeUnexpected             // event does not fit the current step
	NoticeInvalidName            // name is not exactly two tokens
	NoticeUnknownProvider        // provider has no chat to relay to
	NoticeEmptyMessage           // nothing to forward
	NoticeUnavailable            // no recipient configured for this kind
	NoticeForbidden              // answer button pressed by someone else
	NoticeSent                   // client message delivered
	NoticeAnswered               // answer delivered to the client
	NoticeFailed                 // delivery failed, conversation closed
	NoticeCancelled
)

// Conversation is the in-flight state of one chat.
type Conversation struct {
	ClientID  int64
	Kind      Kind
	State     State
	Provider  domain.Provider
	FirstName string
	LastName  string
	// To is the client an answer goes to; set in StateAwaitingAnswer.
	To        int64
	UpdatedAt time.Time
}

// Ticket is a client message forwarded to a recipient.
type Ticket struct {
	Kind     Kind
	To       int64
	From     int64
	Name     string
	Provider domain.Provider
	Text     string
}

// Answer is a recipient's reply forwarded back to the client.
type Answer struct {
	Kind     Kind
	To       int64
	Provider domain.Provider
	Text     string
}

// Sender delivers relayed messages.
type Sender interface {
	SendTicket(t Ticket) error
	SendAnswer(a Answer) error
}

// Recipients maps conversations to chats. Zero ids are not configured.
type Recipients struct {
	Providers map[domain.Provider]int64
	Support   int64
}

// Reply is the outcome of one event for the chat that sent it.
type Reply struct {
	ClientID  int64
	Kind      Kind
	State     State
	Notice    Notice
	Providers []domain.Provider // StateAwaitingProvider
	Err       error
}

// Relay drives conversations. Like booking.Engine it relies on the dispatcher
// to never handle two events of one chat at once.
type Relay struct {
	providers []domain.Provider
	to        Recipients
	sender    Sender
	log       *zap.Logger
	now       func() time.Time

	mu    sync.Mutex
	convs map[int64]Conversation
}

// New creates a Relay. Only providers with a configured chat are offered.
func New(providers []domain.Provider, to Recipients, sender Sender, log *zap.Logger) *Relay {
	offered := make([]domain.Provider, 0, len(providers))
	for _, p := range providers {
		if to.Providers[p] != 0 {
			offered = append(offered, p)
		}
	}
	return &Relay{
		providers: offered,
		to:        to,
		sender:    sender,
		log:       log.Named("relay"),
		now:       time.Now,
		convs:     make(map[int64]Conversation),
	}
}

// Active reports whether the chat is in a conversation.
func (r *Relay) Active(clientID int64) bool {
	_, ok := r.get(clientID)
	return ok
}

// Discard drops the chat's conversation, if any.
func (r *Relay) Discard(clientID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.convs, clientID)
}

// Len returns the number of open conversations.
func (r *Relay) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.convs)
}

// ExpireIdle drops conversations untouched for longer than ttl and returns how many.
func (r *Relay) ExpireIdle(ttl time.Duration) int {
	cutoff := r.now().Add(-ttl)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, c := range r.convs {
		if c.UpdatedAt.Before(cutoff) {
			delete(r.convs, id)
			n++
			r.log.Info("idle conversation expired", zap.Int64("client_id", id), zap.Stringer("kind", c.Kind))
		}
	}
	return n
}

// Handle applies one event to the chat's conversation.
func (r *Relay) Handle(_ context.Context, ev booking.Event) Reply {
	log := r.log.With(zap.Int64("client_id", ev.ClientID), zap.Stringer("event", ev.Kind))
	if ev.ID != "" {
		log = log.With(zap.String("event_id", ev.ID))
	}

	switch ev.Kind {
	case booking.EventConsult:
		if len(r.providers) == 0 {
			return Reply{ClientID: ev.ClientID, Kind: KindConsultation, Notice: NoticeUnavailable}
		}
		return r.keep(Conversation{ClientID: ev.ClientID, Kind: KindConsultation, State: StateAwaitingProvider}, NoticeNone, nil)
	case booking.EventSupport:
		if r.to.Support == 0 {
			return Reply{ClientID: ev.ClientID, Kind: KindSupport, Notice: NoticeUnavailable}
		}
		return r.keep(Conversation{ClientID: ev.ClientID, Kind: KindSupport, State: StateAwaitingName}, NoticeNone, nil)
	case booking.EventAnswer:
		return r.onAnswerButton(log, ev)
	}

	c, ok := r.get(ev.ClientID)
	if !ok {
		return Reply{ClientID: ev.ClientID, Notice: NoticeNoConversation}
	}

	switch ev.Kind {
	case booking.EventCancel:
		r.Discard(ev.ClientID)
		log.Info("conversation cancelled", zap.Stringer("kind", c.Kind), zap.Stringer("state", c.State))
		return Reply{ClientID: ev.ClientID, Kind: c.Kind, Notice: NoticeCancelled}
	case booking.EventBack:
		if !c.back() {
			return r.reject(c, NoticeUnexpected, &domain.ValidationError{Field: "event", Reason: "no previous step"})
		}
		return r.keep(c, NoticeNone, nil)
	}

	switch c.State {
	case StateAwaitingProvider:
		return r.onProvider(c, ev)
	case StateAwaitingName:
		return r.onName(c, ev)
	case StateAwaitingMessage:
		return r.onMessage(log, c, ev)
	case StateAwaitingAnswer:
		return r.onAnswer(log, c, ev)
	default:
		r.Discard(ev.ClientID)
		return Reply{ClientID: ev.ClientID, Kind: c.Kind, Notice: NoticeFailed, Err: fmt.Errorf("conversation in state %s", c.State)}
	}
}

func (r *Relay) onProvider(c Conversation, ev booking.Event) Reply {
	if ev.Kind != booking.EventProvider {
		return r.reject(c, NoticeUnexpected, unexpected(ev, c.State))
	}
	p := domain.Provider(ev.Value)
	if r.to.Providers[p] == 0 {
		return r.reject(c, NoticeUnknownProvider, &domain.ValidationError{Field: "provider", Reason: fmt.Sprintf("no chat for %q", ev.Value)})
	}
	c.Provider = p
	c.State = StateAwaitingName
	return r.keep(c, NoticeNone, nil)
}

func (r *Relay) onName(c Conversation, ev booking.Event) Reply {
	if ev.Kind != booking.EventText {
		return r.reject(c, NoticeUnexpected, unexpected(ev, c.State))
	}
	first, last, err := domain.ParseFullName(ev.Value)
	if err != nil {
		return r.reject(c, NoticeInvalidName, err)
	}
	c.FirstName, c.LastName = first, last
	c.State = StateAwaitingMessage
	return r.keep(c, NoticeNone, nil)
}

func (r *Relay) onMessage(log *zap.Logger, c Conversation, ev booking.Event) Reply {
	if ev.Kind != booking.EventText {
		return r.reject(c, NoticeUnexpected, unexpected(ev, c.State))
	}
	text := strings.TrimSpace(ev.Value)
	if text == "" {
		return r.reject(c, NoticeEmptyMessage, &domain.ValidationError{Field: "message", Reason: "empty"})
	}
	to, ok := r.recipient(c.Kind, c.Provider)
	if !ok {
		r.Discard(c.ClientID)
		return Reply{ClientID: c.ClientID, Kind: c.Kind, Notice: NoticeUnavailable}
	}

	r.Discard(c.ClientID)
	err := r.sender.SendTicket(Ticket{
		Kind:     c.Kind,
		To:       to,
		From:     c.ClientID,
		Name:     c.FirstName + " " + c.LastName,
		Provider: c.Provider,
		Text:     text,
	})
	if err != nil {
		log.Error("relay message failed",
			zap.Stringer("kind", c.Kind),
			zap.String("provider", string(c.Provider)),
			zap.Int64("to", to),
			zap.Error(err))
		return Reply{ClientID: c.ClientID, Kind: c.Kind, Notice: NoticeFailed, Err: err}
	}
	log.Info("message relayed", zap.Stringer("kind", c.Kind), zap.String("provider", string(c.Provider)))
	return Reply{ClientID: c.ClientID, Kind: c.Kind, Notice: NoticeSent}
}

// onAnswerButton opens an answer conversation for the recipient who pressed
// the button on a forwarded message.
func (r *Relay) onAnswerButton(log *zap.Logger, ev booking.Event) Reply {
	kind, clientID, provider, err := ParseRef(ev.Value)
	if err != nil {
		return Reply{ClientID: ev.ClientID, Notice: NoticeUnexpected, Err: err}
	}
	to, ok := r.recipient(kind, provider)
	if !ok || to != ev.ClientID {
		log.Warn("answer from a chat that is not the recipient",
			zap.Stringer("kind", kind), zap.String("provider", string(provider)))
		return Reply{ClientID: ev.ClientID, Kind: kind, Notice: NoticeForbidden}
	}
	return r.keep(Conversation{
		ClientID: ev.ClientID,
		Kind:     kind,
		State:    StateAwaitingAnswer,
		Provider: provider,
		To:       clientID,
	}, NoticeNone, nil)
}

func (r *Relay) onAnswer(log *zap.Logger, c Conversation, ev booking.Event) Reply {
	if ev.Kind != booking.EventText {
		return r.reject(c, NoticeUnexpected, unexpected(ev, c.State))
	}
	text := strings.TrimSpace(ev.Value)
	if text == "" {
		return r.reject(c, NoticeEmptyMessage, &domain.ValidationError{Field: "answer", Reason: "empty"})
	}

	r.Discard(c.ClientID)
	if err := r.sender.SendAnswer(Answer{Kind: c.Kind, To: c.To, Provider: c.Provider, Text: text}); err != nil {
		log.Error("relay answer failed", zap.Stringer("kind", c.Kind), zap.Int64("to", c.To), zap.Error(err))
		return Reply{ClientID: c.ClientID, Kind: c.Kind, Notice: NoticeFailed, Err: err}
	}
	log.Info("answer relayed", zap.Stringer("kind", c.Kind), zap.Int64("to", c.To))
	return Reply{ClientID: c.ClientID, Kind: c.Kind, Notice: NoticeAnswered}
}

func (r *Relay) recipient(kind Kind, p domain.Provider) (int64, bool) {
	var id int64
	switch kind {
	case KindConsultation:
		id = r.to.Providers[p]
	case KindSupport:
		id = r.to.Support
	}
	return id, id != 0
}

func (r *Relay) get(clientID int64) (Conversation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[clientID]
	return c, ok
}

func (r *Relay) keep(c Conversation, n Notice, err error) Reply {
	c.UpdatedAt = r.now()
	r.mu.Lock()
	r.convs[c.ClientID] = c
	r.mu.Unlock()
	return r.reply(c, n, err)
}

// reject keeps the conversation and restarts its idle clock.
func (r *Relay) reject(c Conversation, n Notice, err error) Reply {
	return r.keep(c, n, err)
}

func (r *Relay) reply(c Conversation, n Notice, err error) Reply {
	rep := Reply{ClientID: c.ClientID, Kind: c.Kind, State: c.State, Notice: n, Err: err}
	if c.State == StateAwaitingProvider {
		rep.Providers = append([]domain.Provider(nil), r.providers...)
	}
	return rep
}

// back moves the conversation one step back, discarding what that step collected.
func (c *Conversation) back() bool {
	switch {
	case c.State == StateAwaitingMessage:
		c.State = StateAwaitingName
		c.FirstName, c.LastName = "", ""
	case c.State == StateAwaitingName && c.Kind == KindConsultation:
		c.State = StateAwaitingProvider
		c.Provider = ""
	default:
		return false
	}
	return true
}

func unexpected(ev booking.Event, s State) error {
	return &domain.ValidationError{Field: "event", Reason: fmt.Sprintf("%s not expected in %s", ev.Kind, s)}
}

// Ref encodes the conversation an answer button belongs to:
// "c:<client>:<provider>" for consultations, "s:<client>" for support.
func Ref(kind Kind, clientID int64, p domain.Provider) string {
	id := strconv.FormatInt(clientID, 10)
	if kind == KindConsultation {
		return "c:" + id + ":" + string(p)
	}
	return "s:" + id
}

// ParseRef is the inverse of Ref.
func ParseRef(ref string) (Kind, int64, domain.Provider, error) {
	parts := strings.Split(ref, ":")
	bad := &domain.ValidationError{Field: "reference", Reason: fmt.Sprintf("malformed %q", ref)}
	var kind Kind
	switch {
	case len(parts) == 3 && parts[0] == "c" && parts[2] != "":
		kind = KindConsultation
	case len(parts) == 2 && parts[0] == "s":
		kind = KindSupport
	default:
		return 0, 0, "", bad
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, "", bad
	}
	var p domain.Provider
	if kind == KindConsultation {
		p = domain.Provider(parts[2])
	}
	return kind, id, p, nil
}
