package telegram

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap/zaptest"

	"github.com/ykvlv/booking-bot/internal/availability"
	"github.com/ykvlv/booking-bot/internal/booking"
	"github.com/ykvlv/booking-bot/internal/domain"
	"github.com/ykvlv/booking-bot/internal/relay"
	"github.com/ykvlv/booking-bot/internal/store"
)

type fakeBot struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	failTo   int64 // messages to this chat fail
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok && f.failTo != 0 && m.ChatID == f.failTo {
		return tgbotapi.Message{}, errors.New("Forbidden: bot was blocked by the user")
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeBot) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.MessageConfig
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeBot) lastText(t *testing.T) string {
	t.Helper()
	ms := f.messages()
	if len(ms) == 0 {
		t.Fatalf("nothing sent")
	}
	return ms[len(ms)-1].Text
}

func (f *fakeBot) callbacks() []tgbotapi.CallbackConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.CallbackConfig
	for _, c := range f.requests {
		if cb, ok := c.(tgbotapi.CallbackConfig); ok {
			out = append(out, cb)
		}
	}
	return out
}

type fixture struct {
	bot     *fakeBot
	router  *Router
	queue   *booking.Dispatcher
	repo    *store.SQLiteRepo
	stopped bool
}

const (
	adminChat   = 1000
	surgeonChat = 501
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	repo, err := store.OpenSQLite(ctx, filepath.Join(t.TempDir(), "clinic.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	w, err := domain.NewScheduleWindow(
		[]time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		[]int{9, 10, 11, 12, 13, 14, 15, 16, 17},
		[]int{0, 30},
		[]string{"13:30", "17:30"},
		[]domain.Provider{"pediatrician", "surgeon", "gynecologist"},
	)
	if err != nil {
		t.Fatalf("window: %v", err)
	}

	log := zaptest.NewLogger(t)
	bot := &fakeBot{}
	engine := booking.NewEngine(w, repo, repo, availability.New(w, repo, log), log)
	f := &fixture{bot: bot, repo: repo}
	f.router = NewRouter(bot, log, engine, Options{
		AdminChatID: adminChat,
		Records:     repo,
		Shutdown:    func() { f.stopped = true },
	})
	f.router.UseRelay(relay.New(w.Providers, relay.Recipients{
		Providers: map[domain.Provider]int64{"surgeon": surgeonChat},
		Support:   adminChat,
	}, f.router, log))
	f.queue = booking.NewDispatcher(ctx, log, nil, f.router.Process, f.router.Throttled)
	f.router.Bind(f.queue)
	return f
}

func textUpdate(chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}, Text: text}}
}

func callbackUpdate(chatID int64, id, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      id,
		From:    &tgbotapi.User{ID: chatID},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}},
		Data:    data,
	}}
}

func (f *fixture) do(upd tgbotapi.Update) {
	f.router.HandleUpdate(context.Background(), upd)
	f.queue.Wait()
}

func TestRouter_FullBookingFlow(t *testing.T) {
	f := newFixture(t)
	const chat = 77

	f.do(textUpdate(chat, "/start"))
	if got := f.bot.lastText(t); got != startText {
		t.Fatalf("want start text, got %q", got)
	}

	f.do(textUpdate(chat, bookButton))
	if got := f.bot.lastText(t); got != askNameText {
		t.Fatalf("want name prompt, got %q", got)
	}

	f.do(textUpdate(chat, "Иван Иванов"))
	if got := f.bot.lastText(t); got != askDayText {
		t.Fatalf("want day prompt, got %q", got)
	}

	// friday is bookable on every day of the week
	f.do(callbackUpdate(chat, "cb1", prefixDay+"friday"))
	if got := f.bot.lastText(t); got != askProviderText {
		t.Fatalf("want provider prompt, got %q", got)
	}

	f.do(callbackUpdate(chat, "cb2", prefixProvider+"surgeon"))
	if got := f.bot.lastText(t); !strings.HasPrefix(got, "Пятница, Хирург") {
		t.Fatalf("want time prompt, got %q", got)
	}

	f.do(callbackUpdate(chat, "cb3", prefixTime+"10:00"))
	if got := f.bot.lastText(t); !strings.Contains(got, "Иван Иванов") || !strings.Contains(got, "10:00") {
		t.Fatalf("want confirmation summary, got %q", got)
	}

	f.do(callbackUpdate(chat, "cb4", cbConfirm))
	if got := f.bot.lastText(t); !strings.HasPrefix(got, "✅ Вы записаны!") {
		t.Fatalf("want booked text, got %q", got)
	}

	if n, _ := f.repo.CountBookings(context.Background()); n != 1 {
		t.Fatalf("want 1 booking, got %d", n)
	}
	if cbs := f.bot.callbacks(); len(cbs) != 4 {
		t.Fatalf("every callback must be answered once, got %d", len(cbs))
	}
}

func TestRouter_RejectionAsAlert(t *testing.T) {
	f := newFixture(t)
	const chat = 5
	f.do(textUpdate(chat, bookButton))
	f.do(textUpdate(chat, "Иван Иванов"))
	sent := len(f.bot.messages())

	f.do(callbackUpdate(chat, "cb-sat", prefixDay+"saturday"))
	cbs := f.bot.callbacks()
	if len(cbs) != 1 || !cbs[0].ShowAlert || cbs[0].Text != noticeText(booking.NoticeUnknownDay) {
		t.Fatalf("want alert for unknown day, got %+v", cbs)
	}
	if len(f.bot.messages()) != sent {
		t.Fatalf("rejection must not send a new message")
	}
}

func TestRouter_InvalidNameTyped(t *testing.T) {
	f := newFixture(t)
	f.do(textUpdate(9, bookButton))
	f.do(textUpdate(9, "Иван"))
	if got := f.bot.lastText(t); got != noticeText(booking.NoticeInvalidName) {
		t.Fatalf("want invalid name notice, got %q", got)
	}
}

func TestRouter_NoSessionAndCancel(t *testing.T) {
	f := newFixture(t)
	f.do(callbackUpdate(3, "cb", cbConfirm))
	if got := f.bot.lastText(t); got != noSessionText {
		t.Fatalf("want no-session text, got %q", got)
	}

	f.do(textUpdate(3, bookButton))
	f.do(textUpdate(3, "/cancel"))
	if got := f.bot.lastText(t); got != cancelledText {
		t.Fatalf("want cancelled text, got %q", got)
	}
}

func TestRouter_UnknownCallbackAnswered(t *testing.T) {
	f := newFixture(t)
	f.do(callbackUpdate(3, "cb-x", "send_examples"))
	if cbs := f.bot.callbacks(); len(cbs) != 1 || cbs[0].ShowAlert {
		t.Fatalf("want silent answer, got %+v", cbs)
	}
	if len(f.bot.messages()) != 0 {
		t.Fatalf("unknown callback must not send messages")
	}
}

func TestSendMessage(t *testing.T) {
	f := newFixture(t)
	if err := f.router.SendMessage(100, "🔄 База очищена"); err != nil {
		t.Fatalf("send: %v", err)
	}
	ms := f.bot.messages()
	if len(ms) != 1 || ms[0].ChatID != 100 {
		t.Fatalf("unexpected messages: %+v", ms)
	}
}

func TestParseCallback(t *testing.T) {
	cases := map[string]booking.Event{
		"book":             {Kind: booking.EventBook},
		"day:monday":       {Kind: booking.EventDay, Value: "monday"},
		"provider:surgeon": {Kind: booking.EventProvider, Value: "surgeon"},
		"time:13:00":       {Kind: booking.EventTime, Value: "13:00"},
		"confirm":          {Kind: booking.EventConfirm},
		"cancel":           {Kind: booking.EventCancel},
		"back":             {Kind: booking.EventBack},
		"answer:s:42":      {Kind: booking.EventAnswer, Value: "s:42"},
	}
	for data, want := range cases {
		got, ok := parseCallback(data)
		if !ok || got.Kind != want.Kind || got.Value != want.Value {
			t.Fatalf("%s: want %+v, got %+v (%v)", data, want, got, ok)
		}
	}
	if _, ok := parseCallback("interval:30m"); ok {
		t.Fatalf("unknown data must not parse")
	}
}

func TestRouter_StartGreetsKnownClient(t *testing.T) {
	f := newFixture(t)
	if _, err := f.repo.UpsertClient(context.Background(), 11, "Анна", "Смирнова"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	f.do(textUpdate(11, "/start"))
	if got := f.bot.lastText(t); !strings.HasPrefix(got, "С возвращением, Анна!") {
		t.Fatalf("want greeting, got %q", got)
	}
}

func TestRouter_AdminBookings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.do(textUpdate(42, "/занятые_записи"))
	if got := f.bot.lastText(t); got != forbiddenText {
		t.Fatalf("non-admin must be refused, got %q", got)
	}

	f.do(textUpdate(adminChat, "/bookings"))
	if got := f.bot.lastText(t); got != noBookingsText {
		t.Fatalf("want empty listing, got %q", got)
	}

	if _, err := f.repo.UpsertClient(ctx, 1, "Иван", "Иванов"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := f.repo.CreateBooking(ctx, 1, "monday", "9:30", "pediatrician"); err != nil {
		t.Fatalf("create: %v", err)
	}
	f.do(textUpdate(adminChat, "/занятые_записи"))
	got := f.bot.lastText(t)
	for _, want := range []string{"Иван Иванов", "Педиатр", "Понедельник 9:30"} {
		if !strings.Contains(got, want) {
			t.Fatalf("listing misses %q: %q", want, got)
		}
	}
}

func TestRouter_AdminStop(t *testing.T) {
	f := newFixture(t)
	f.do(textUpdate(42, "/stop"))
	if f.stopped {
		t.Fatalf("non-admin must not stop the bot")
	}
	f.do(textUpdate(adminChat, "/перезапуск"))
	if !f.stopped || f.bot.lastText(t) != restartingText {
		t.Fatalf("admin restart must acknowledge and shut down")
	}
}

func TestBookingsMessages_Split(t *testing.T) {
	list := make([]domain.Booking, 60)
	for i := range list {
		list[i] = domain.Booking{ID: int64(i + 1), ClientName: "Иван Иванов", Day: "friday", Time: "9:00", Provider: "surgeon"}
	}
	parts := bookingsMessages(list)
	if len(parts) < 2 {
		t.Fatalf("want the listing split, got %d part(s)", len(parts))
	}
	total := 0
	for _, p := range parts {
		if n := len([]rune(p)); n > maxMessageRunes {
			t.Fatalf("part has %d runes", n)
		}
		total += strings.Count(p, "🆔")
	}
	if total != len(list) {
		t.Fatalf("want %d entries, got %d", len(list), total)
	}
}
