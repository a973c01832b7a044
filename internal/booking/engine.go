package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ykvlv/booking-bot/internal/availability"
	"github.com/ykvlv/booking-bot/internal/domain"
)

// EventKind classifies client input.
type EventKind int

const (
	EventBook     EventKind = iota + 1 // booking intent: starts (or restarts) a session
	EventText                          // free-form text, used for the name step
	EventDay                           // Value: day label
	EventProvider                      // Value: provider tag
	EventTime                          // Value: slot label
	EventConfirm
	EventCancel
	EventBack

	// Relay events; the booking engine does not handle them.
	EventConsult // starts a question to a provider
	EventSupport // starts a message to support
	EventAnswer  // Value: reference of the conversation being answered
)

func (k EventKind) String() string {
	switch k {
	case EventBook:
		return "book"
	case EventText:
		return "text"
	case EventDay:
		return "day"
	case EventProvider:
		return "provider"
	case EventTime:
		return "time"
	case EventConfirm:
		return "confirm"
	case EventCancel:
		return "cancel"
	case EventBack:
		return "back"
	case EventConsult:
		return "consult"
	case EventSupport:
		return "support"
	case EventAnswer:
		return "answer"
	default:
		return "unknown"
	}
}

// Event is one client action routed to that client's session.
type Event struct {
	ClientID int64
	Kind     EventKind
	Value    string
	// Typed marks events that came from a typed message; only those are throttled.
	Typed bool
	// ID correlates log lines of one event; set by the Dispatcher.
	ID string
}

// Notice tells the renderer what happened besides the resulting state.
type Notice int

const (
	NoticeNone          Notice = iota
	NoticeNoSession            // event for a client without a session
	NoticeUnexpected           // event does not fit the current step
	NoticeInvalidName          // name is not exactly two tokens
	NoticeUnknownDay           // not a working day
	NoticeDayUnavailable       // day already passed in this cycle
	NoticeUnknownProvider      // not in the provider enumeration
	NoticeUnknownTime          // not in the shown grid
	NoticeSlotTaken            // chosen slot is busy; view refreshed
	NoticeSlotLost             // another client committed first; back to time selection
	NoticeBooked               // booking committed, session closed
	NoticeCancelled            // session cancelled by the client
	NoticeFailed               // storage or internal fault, session aborted
)

// DayOption is a working day with its availability at render time.
type DayOption struct {
	Label     string
	Weekday   time.Weekday
	Available bool
}

// Reply is the outcome of one event: the state the client is now in and what
// to show. Exactly the fields relevant to State are set.
type Reply struct {
	ClientID  int64
	State     State
	Notice    Notice
	Session   Session
	Days      []DayOption       // StateAwaitingDay
	Providers []domain.Provider // StateAwaitingProvider
	View      *availability.View
	Booking   *domain.Booking // NoticeBooked
	// Err is the classified cause for rejected or aborted events:
	// *domain.ValidationError, *domain.ConflictError or *domain.StorageError.
	Err error
}

// ClientStore upserts the client record on name capture.
type ClientStore interface {
	UpsertClient(ctx context.Context, id int64, firstName, lastName string) (*domain.Client, error)
}

// BookingStore commits bookings.
type BookingStore interface {
	CreateBooking(ctx context.Context, clientID int64, day, slot string, provider domain.Provider) (*domain.Booking, error)
}

// Oracle is the availability view the engine renders and re-checks against.
type Oracle interface {
	Available(ctx context.Context, day string, provider domain.Provider) availability.View
	IsFree(ctx context.Context, day string, provider domain.Provider, slot string) (bool, error)
}

// Engine drives booking sessions. Handle must not be called concurrently for
// the same client; the Dispatcher guarantees that. Different clients are independent.
type Engine struct {
	window   domain.ScheduleWindow
	clients  ClientStore
	bookings BookingStore
	oracle   Oracle
	sessions *Sessions
	log      *zap.Logger
	now      func() time.Time
}

// NewEngine creates an Engine with an empty session table.
func NewEngine(window domain.ScheduleWindow, clients ClientStore, bookings BookingStore, oracle Oracle, log *zap.Logger) *Engine {
	return &Engine{
		window:   window,
		clients:  clients,
		bookings: bookings,
		oracle:   oracle,
		sessions: NewSessions(),
		log:      log.Named("booking"),
		now:      time.Now,
	}
}

// Sessions exposes the live session table.
func (e *Engine) Sessions() *Sessions { return e.sessions }

// Handle applies one event to the client's session and returns what to show.
func (e *Engine) Handle(ctx context.Context, ev Event) (reply Reply) {
	log := e.log.With(
		zap.Int64("client_id", ev.ClientID),
		zap.Stringer("event", ev.Kind),
	)
	if ev.ID != "" {
		log = log.With(zap.String("event_id", ev.ID))
	}

	defer func() {
		if p := recover(); p != nil {
			sess, _ := e.sessions.get(ev.ClientID)
			sess.ClientID = ev.ClientID
			reply = e.abort(log, sess, "handle "+ev.Kind.String(), fmt.Errorf("panic: %v", p))
		}
	}()

	if ev.Kind == EventBook {
		return e.start(log, ev.ClientID)
	}

	sess, ok := e.sessions.get(ev.ClientID)
	if !ok {
		return Reply{ClientID: ev.ClientID, State: StateIdle, Notice: NoticeNoSession}
	}

	if ev.Kind == EventCancel {
		e.sessions.delete(ev.ClientID)
		log.Info("booking cancelled", zap.Stringer("state", sess.State))
		return Reply{ClientID: ev.ClientID, State: StateIdle, Notice: NoticeCancelled, Session: sess}
	}

	if ev.Kind == EventBack {
		if !sess.back() {
			return e.reject(sess, NoticeUnexpected, &domain.ValidationError{Field: "event", Reason: "no previous step"})
		}
		if sess.State == StateAwaitingTime {
			sess.View = e.oracle.Available(ctx, sess.Day, sess.Provider)
		}
		return e.keep(sess, NoticeNone, nil)
	}

	switch sess.State {
	case StateAwaitingName:
		return e.onName(ctx, log, sess, ev)
	case StateAwaitingDay:
		return e.onDay(sess, ev)
	case StateAwaitingProvider:
		return e.onProvider(ctx, sess, ev)
	case StateAwaitingTime:
		return e.onTime(ctx, log, sess, ev)
	case StateAwaitingConfirmation:
		return e.onConfirm(ctx, log, sess, ev)
	default:
		return e.abort(log, sess, "dispatch", fmt.Errorf("session in state %s", sess.State))
	}
}

// Discard drops the client's session, if any, without a reply.
func (e *Engine) Discard(clientID int64) {
	if _, ok := e.sessions.get(clientID); !ok {
		return
	}
	e.sessions.delete(clientID)
	e.log.Debug("session discarded", zap.Int64("client_id", clientID))
}

// ExpireIdle drops sessions untouched for longer than ttl and returns how many.
func (e *Engine) ExpireIdle(ttl time.Duration) int {
	ids := e.sessions.expire(e.now().Add(-ttl))
	for _, id := range ids {
		e.log.Info("idle session expired", zap.Int64("client_id", id), zap.Duration("ttl", ttl))
	}
	return len(ids)
}

func (e *Engine) start(log *zap.Logger, clientID int64) Reply {
	if prev, ok := e.sessions.get(clientID); ok {
		log.Debug("restarting session", zap.Stringer("state", prev.State))
	}
	now := e.now()
	sess := Session{
		ClientID:  clientID,
		State:     StateAwaitingName,
		StartedAt: now,
	}
	return e.keep(sess, NoticeNone, nil)
}

func (e *Engine) onName(ctx context.Context, log *zap.Logger, sess Session, ev Event) Reply {
	if ev.Kind != EventText {
		return e.reject(sess, NoticeUnexpected, unexpected(ev, sess.State))
	}
	first, last, err := domain.ParseFullName(ev.Value)
	if err != nil {
		return e.reject(sess, NoticeInvalidName, err)
	}
	if _, err := e.clients.UpsertClient(ctx, sess.ClientID, first, last); err != nil &&
		!errors.Is(err, domain.ErrDuplicateClient) {
		return e.abort(log, sess, "upsert client", err)
	}
	sess.FirstName, sess.LastName = first, last
	sess.State = StateAwaitingDay
	return e.keep(sess, NoticeNone, nil)
}

func (e *Engine) onDay(sess Session, ev Event) Reply {
	if ev.Kind != EventDay {
		return e.reject(sess, NoticeUnexpected, unexpected(ev, sess.State))
	}
	wd, ok := e.window.DayByLabel(ev.Value)
	if !ok {
		return e.reject(sess, NoticeUnknownDay, &domain.ValidationError{Field: "day", Reason: fmt.Sprintf("%q is not a working day", ev.Value)})
	}
	if !e.window.DayAvailable(wd, e.now()) {
		return e.reject(sess, NoticeDayUnavailable, &domain.ValidationError{Field: "day", Reason: fmt.Sprintf("%s has passed", ev.Value)})
	}
	sess.Day = ev.Value
	sess.State = StateAwaitingProvider
	return e.keep(sess, NoticeNone, nil)
}

func (e *Engine) onProvider(ctx context.Context, sess Session, ev Event) Reply {
	if ev.Kind != EventProvider {
		return e.reject(sess, NoticeUnexpected, unexpected(ev, sess.State))
	}
	p := domain.Provider(ev.Value)
	if !e.window.HasProvider(p) {
		return e.reject(sess, NoticeUnknownProvider, &domain.ValidationError{Field: "provider", Reason: fmt.Sprintf("unknown provider %q", ev.Value)})
	}
	sess.Provider = p
	sess.View = e.oracle.Available(ctx, sess.Day, p)
	sess.State = StateAwaitingTime
	return e.keep(sess, NoticeNone, nil)
}

func (e *Engine) onTime(ctx context.Context, log *zap.Logger, sess Session, ev Event) Reply {
	if ev.Kind != EventTime {
		return e.reject(sess, NoticeUnexpected, unexpected(ev, sess.State))
	}
	slot, ok := sess.View.Lookup(ev.Value)
	if !ok || !e.window.HasSlot(ev.Value) {
		return e.reject(sess, NoticeUnknownTime, &domain.ValidationError{Field: "time", Reason: fmt.Sprintf("%q is not offered", ev.Value)})
	}
	conflict := &domain.ConflictError{Day: sess.Day, Time: ev.Value, Provider: sess.Provider}
	if slot.Busy {
		sess.View = e.oracle.Available(ctx, sess.Day, sess.Provider)
		return e.keep(sess, NoticeSlotTaken, conflict)
	}

	free, err := e.oracle.IsFree(ctx, sess.Day, sess.Provider, ev.Value)
	if err != nil {
		return e.abort(log, sess, "recheck slot", err)
	}
	if !free {
		sess.View = e.oracle.Available(ctx, sess.Day, sess.Provider)
		return e.keep(sess, NoticeSlotTaken, conflict)
	}
	sess.Time = ev.Value
	sess.State = StateAwaitingConfirmation
	return e.keep(sess, NoticeNone, nil)
}

func (e *Engine) onConfirm(ctx context.Context, log *zap.Logger, sess Session, ev Event) Reply {
	if ev.Kind != EventConfirm {
		return e.reject(sess, NoticeUnexpected, unexpected(ev, sess.State))
	}
	b, err := e.bookings.CreateBooking(ctx, sess.ClientID, sess.Day, sess.Time, sess.Provider)
	switch {
	case err == nil:
		e.sessions.delete(sess.ClientID)
		b.ClientName = sess.FirstName + " " + sess.LastName
		log.Info("booking committed",
			zap.Int64("booking_id", b.ID),
			zap.String("day", b.Day),
			zap.String("time", b.Time),
			zap.String("provider", string(b.Provider)),
		)
		return Reply{ClientID: sess.ClientID, State: StateIdle, Notice: NoticeBooked, Session: sess, Booking: b}
	case domain.IsConflict(err):
		log.Info("slot lost at commit",
			zap.String("day", sess.Day),
			zap.String("time", sess.Time),
			zap.String("provider", string(sess.Provider)),
		)
		sess.Time = ""
		sess.State = StateAwaitingTime
		sess.View = e.oracle.Available(ctx, sess.Day, sess.Provider)
		return e.keep(sess, NoticeSlotLost, err)
	default:
		return e.abort(log, sess, "create booking", err)
	}
}

// keep stores the session and renders the prompt of its state.
func (e *Engine) keep(sess Session, n Notice, err error) Reply {
	sess.UpdatedAt = e.now()
	e.sessions.put(sess)
	return e.render(sess, n, err)
}

// reject keeps the stored session's data and re-renders its prompt.
// The client is still active, so the idle clock restarts.
func (e *Engine) reject(sess Session, n Notice, err error) Reply {
	e.sessions.touch(sess.ClientID, e.now())
	return e.render(sess, n, err)
}

func (e *Engine) render(sess Session, n Notice, err error) Reply {
	r := Reply{ClientID: sess.ClientID, State: sess.State, Notice: n, Session: sess, Err: err}
	switch sess.State {
	case StateAwaitingDay:
		r.Days = e.dayOptions()
	case StateAwaitingProvider:
		r.Providers = append([]domain.Provider(nil), e.window.Providers...)
	case StateAwaitingTime:
		v := sess.View
		r.View = &v
	}
	return r
}

func (e *Engine) dayOptions() []DayOption {
	now := e.now()
	out := make([]DayOption, 0, len(e.window.Days))
	for _, d := range e.window.Days {
		out = append(out, DayOption{
			Label:     domain.DayLabel(d),
			Weekday:   d,
			Available: e.window.DayAvailable(d, now),
		})
	}
	return out
}

// abort destroys the session after an unrecoverable fault. Errors that are not
// already storage errors are wrapped as such.
func (e *Engine) abort(log *zap.Logger, sess Session, op string, err error) Reply {
	if !domain.IsStorage(err) {
		err = &domain.StorageError{Op: op, Err: err}
	}
	e.sessions.delete(sess.ClientID)
	log.Error("booking session aborted",
		zap.String("op", op),
		zap.Stringer("state", sess.State),
		zap.String("day", sess.Day),
		zap.String("time", sess.Time),
		zap.String("provider", string(sess.Provider)),
		zap.Error(err),
	)
	return Reply{ClientID: sess.ClientID, State: StateIdle, Notice: NoticeFailed, Session: sess, Err: err}
}

func unexpected(ev Event, s State) error {
	return &domain.ValidationError{Field: "event", Reason: fmt.Sprintf("%s while %s", ev.Kind, s)}
}
