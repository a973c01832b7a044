package telegram

import (
	"context"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ykvlv/booking-bot/internal/booking"
	"github.com/ykvlv/booking-bot/internal/domain"
)

// BotAPI is the part of *tgbotapi.BotAPI the router uses.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Engine applies booking events.
type Engine interface {
	Handle(ctx context.Context, ev booking.Event) booking.Reply
	Discard(clientID int64)
}

// Submitter queues events for per-client processing.
type Submitter interface {
	Submit(ev booking.Event) bool
}

// Records is the read side of the store used for greetings and operator commands.
type Records interface {
	GetClient(ctx context.Context, id int64) (*domain.Client, error)
	ListBookings(ctx context.Context) ([]domain.Booking, error)
}

// Options configures the operator side of the router.
type Options struct {
	// AdminChatID may use operator commands; 0 disables them.
	AdminChatID int64
	Records     Records
	// Shutdown stops the process; the supervisor restarts it.
	Shutdown func()
}

// Router wires Telegram updates to the booking engine and renders its replies.
type Router struct {
	bot    BotAPI
	log    *zap.Logger
	engine Engine
	queue  Submitter
	relay  Relay
	opts   Options

	mu        sync.Mutex
	callbacks map[string]string // event id -> callback query id
}

// NewRouter creates a new Telegram router. Bind must be called before HandleUpdate.
func NewRouter(bot BotAPI, log *zap.Logger, engine Engine, opts Options) *Router {
	return &Router{
		bot:       bot,
		log:       log.Named("telegram"),
		engine:    engine,
		opts:      opts,
		callbacks: make(map[string]string),
	}
}

// Bind sets the queue events are submitted to. The queue calls back into
// Process and Throttled.
func (r *Router) Bind(q Submitter) {
	r.queue = q
}

// HandleUpdate routes a single update to the booking flow.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	// Text messages
	if upd.Message != nil {
		msg := upd.Message
		chatID := msg.Chat.ID
		text := strings.TrimSpace(msg.Text)

		switch {
		case strings.HasPrefix(text, "/start"):
			r.handleStart(ctx, chatID)
		case isCommand(text, cmdBookings...):
			r.handleBookings(ctx, chatID)
		case isCommand(text, cmdStop...):
			r.handleStop(chatID, stoppingText)
		case isCommand(text, cmdRestart...):
			r.handleStop(chatID, restartingText)
		case text == consultButton || strings.HasPrefix(text, "/consult"):
			r.submit(booking.Event{ClientID: chatID, Kind: booking.EventConsult, Typed: true}, "")
		case strings.EqualFold(text, supportButton) || strings.HasPrefix(text, "/support"):
			r.submit(booking.Event{ClientID: chatID, Kind: booking.EventSupport, Typed: true}, "")
		case text == bookButton || strings.HasPrefix(text, "/book"):
			r.submit(booking.Event{ClientID: chatID, Kind: booking.EventBook, Typed: true}, "")
		case strings.HasPrefix(text, "/cancel"):
			r.submit(booking.Event{ClientID: chatID, Kind: booking.EventCancel, Typed: true}, "")
		default:
			r.submit(booking.Event{ClientID: chatID, Kind: booking.EventText, Value: text, Typed: true}, "")
		}
		return
	}

	// Callback queries (inline buttons)
	if upd.CallbackQuery != nil {
		cb := upd.CallbackQuery
		var chatID int64
		switch {
		case cb.Message != nil && cb.Message.Chat != nil:
			chatID = cb.Message.Chat.ID
		case cb.From != nil:
			chatID = cb.From.ID
		default:
			return
		}

		ev, ok := parseCallback(cb.Data)
		if !ok {
			// Unknown callback: stop the spinner and ignore
			_ = r.answerCallback(cb.ID, "", false)
			return
		}
		ev.ClientID = chatID
		r.submit(ev, cb.ID)
	}
}

func parseCallback(data string) (booking.Event, bool) {
	switch {
	case data == cbBook:
		return booking.Event{Kind: booking.EventBook}, true
	case data == cbConfirm:
		return booking.Event{Kind: booking.EventConfirm}, true
	case data == cbCancel:
		return booking.Event{Kind: booking.EventCancel}, true
	case data == cbBack:
		return booking.Event{Kind: booking.EventBack}, true
	case strings.HasPrefix(data, prefixDay):
		return booking.Event{Kind: booking.EventDay, Value: strings.TrimPrefix(data, prefixDay)}, true
	case strings.HasPrefix(data, prefixProvider):
		return booking.Event{Kind: booking.EventProvider, Value: strings.TrimPrefix(data, prefixProvider)}, true
	case strings.HasPrefix(data, prefixTime):
		return booking.Event{Kind: booking.EventTime, Value: strings.TrimPrefix(data, prefixTime)}, true
	case strings.HasPrefix(data, prefixAnswer):
		return booking.Event{Kind: booking.EventAnswer, Value: strings.TrimPrefix(data, prefixAnswer)}, true
	default:
		return booking.Event{}, false
	}
}

// submit queues ev, remembering the callback query to answer once it is handled.
func (r *Router) submit(ev booking.Event, callbackID string) {
	ev.ID = uuid.NewString()
	if callbackID != "" {
		r.mu.Lock()
		r.callbacks[ev.ID] = callbackID
		r.mu.Unlock()
	}
	if !r.queue.Submit(ev) {
		if id := r.popCallback(ev.ID); id != "" {
			_ = r.answerCallback(id, "", false)
		}
	}
}

func (r *Router) popCallback(eventID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.callbacks[eventID]
	delete(r.callbacks, eventID)
	return id
}

// Process handles one queued event and renders the reply.
func (r *Router) Process(ctx context.Context, ev booking.Event) {
	callbackID := r.popCallback(ev.ID)
	if r.toRelay(ev) {
		r.renderRelay(r.relay.Handle(ctx, ev), callbackID)
		return
	}
	r.render(r.engine.Handle(ctx, ev), callbackID)
}

// Throttled tells the client to slow down.
func (r *Router) Throttled(_ context.Context, ev booking.Event) {
	r.log.Debug("event throttled", zap.Int64("client_id", ev.ClientID), zap.Stringer("event", ev.Kind))
	r.sendText(ev.ClientID, throttledText)
}

// SendMessage sends a plain text message to the given chat.
// This makes Router satisfy scheduler.Sender.
func (r *Router) SendMessage(chatID int64, text string) error {
	_, err := r.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}
