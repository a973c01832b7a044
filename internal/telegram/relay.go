package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/ykvlv/booking-bot/internal/booking"
	"github.com/ykvlv/booking-bot/internal/relay"
)

const (
	consultButton = "Консультация"
	supportButton = "Поддержка"
	answerButton  = "Ответить"

	prefixAnswer = "answer:"

	askConsultProviderText = "Выберите врача для консультации:"
	askQuestionText        = "✍️ Теперь введите ваш вопрос врачу:"
	askSupportMessageText  = "✍️ Теперь, пожалуйста, введите ваше сообщение для поддержки:"
	askConsultAnswerText   = "Напишите ответ пациенту:"
	askSupportAnswerText   = "✍️ Введите сообщение для ответа пользователю:"

	questionFmt      = "❓ Новый вопрос от %s:\n\n%s"
	supportFmt       = "📩 Сообщение в поддержку от %s:\n\n%s"
	consultAnswerFmt = "%s ответил(а):\n\n%s"
	supportAnswerFmt = "💬 Ответ от поддержки:\n\n%s"

	questionSentText     = "✅ Ваш вопрос отправлен врачу. Ожидайте ответа."
	supportSentText      = "✅ Ваше сообщение отправлено в поддержку. Ожидайте ответа."
	answerSentText       = "✅ Ответ отправлен."
	relayFailedText      = "⚠️ Не удалось отправить сообщение. Попробуйте позже."
	relayUnavailableText = "Сейчас эта функция недоступна."
	relayCancelledText   = "Отменено."
)

// Relay carries consultation and support conversations.
type Relay interface {
	Handle(ctx context.Context, ev booking.Event) relay.Reply
	Active(clientID int64) bool
	Discard(clientID int64)
}

// UseRelay enables consultation and support. The relay usually sends through
// this router, so it is attached after construction.
func (r *Router) UseRelay(rl Relay) {
	r.relay = rl
}

// toRelay decides which flow owns ev. A chat is in at most one flow:
// starting one drops the other.
func (r *Router) toRelay(ev booking.Event) bool {
	if r.relay == nil {
		return false
	}
	switch ev.Kind {
	case booking.EventConsult, booking.EventSupport, booking.EventAnswer:
		r.engine.Discard(ev.ClientID)
		return true
	case booking.EventBook:
		r.relay.Discard(ev.ClientID)
		return false
	default:
		return r.relay.Active(ev.ClientID)
	}
}

func relayNoticeText(n relay.Notice) string {
	switch n {
	case relay.NoticeUnexpected:
		return "Сейчас это действие недоступно."
	case relay.NoticeInvalidName:
		return "Нужно ввести имя и фамилию через пробел, например: Иван Иванов"
	case relay.NoticeUnknownProvider:
		return "Этот специалист сейчас не консультирует."
	case relay.NoticeEmptyMessage:
		return "Сообщение пустое, напишите текст."
	case relay.NoticeForbidden:
		return "Ответить может только адресат сообщения."
	default:
		return ""
	}
}

func (r *Router) renderRelay(reply relay.Reply, callbackID string) {
	chatID := reply.ClientID
	answered := false
	answer := func(text string, alert bool) {
		if callbackID == "" || answered {
			return
		}
		answered = true
		if err := r.answerCallback(callbackID, text, alert); err != nil {
			r.log.Warn("answer callback failed", zap.Error(err))
		}
	}
	defer answer("", false)

	switch reply.Notice {
	case relay.NoticeNoConversation:
		r.sendWithMenu(chatID, noSessionText)
		return
	case relay.NoticeUnavailable:
		r.sendWithMenu(chatID, relayUnavailableText)
		return
	case relay.NoticeCancelled:
		r.sendWithMenu(chatID, relayCancelledText)
		return
	case relay.NoticeFailed:
		r.sendWithMenu(chatID, relayFailedText)
		return
	case relay.NoticeAnswered:
		r.sendWithMenu(chatID, answerSentText)
		return
	case relay.NoticeSent:
		text := supportSentText
		if reply.Kind == relay.KindConsultation {
			text = questionSentText
		}
		r.sendWithMenu(chatID, text)
		return
	}

	if text := relayNoticeText(reply.Notice); text != "" {
		if callbackID != "" {
			answer(text, true)
		} else {
			r.sendText(chatID, text)
		}
		return
	}

	text, kb, ok := relayPrompt(reply)
	if !ok {
		return
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = kb
	r.send(msg)
}

func relayPrompt(rep relay.Reply) (string, tgbotapi.InlineKeyboardMarkup, bool) {
	consult := rep.Kind == relay.KindConsultation
	switch rep.State {
	case relay.StateAwaitingProvider:
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rep.Providers)+1)
		for _, p := range rep.Providers {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(providerName(p), prefixProvider+string(p)),
			))
		}
		rows = append(rows, navRow(false))
		return askConsultProviderText, tgbotapi.NewInlineKeyboardMarkup(rows...), true
	case relay.StateAwaitingName:
		return askNameText, tgbotapi.NewInlineKeyboardMarkup(navRow(consult)), true
	case relay.StateAwaitingMessage:
		if consult {
			return askQuestionText, tgbotapi.NewInlineKeyboardMarkup(navRow(true)), true
		}
		return askSupportMessageText, tgbotapi.NewInlineKeyboardMarkup(navRow(true)), true
	case relay.StateAwaitingAnswer:
		if consult {
			return askConsultAnswerText, tgbotapi.NewInlineKeyboardMarkup(navRow(false)), true
		}
		return askSupportAnswerText, tgbotapi.NewInlineKeyboardMarkup(navRow(false)), true
	default:
		return "", tgbotapi.InlineKeyboardMarkup{}, false
	}
}

// SendTicket forwards a client message with an answer button.
// This makes Router satisfy relay.Sender.
func (r *Router) SendTicket(t relay.Ticket) error {
	format := supportFmt
	if t.Kind == relay.KindConsultation {
		format = questionFmt
	}
	msg := tgbotapi.NewMessage(t.To, fmt.Sprintf(format, t.Name, t.Text))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(answerButton, prefixAnswer+relay.Ref(t.Kind, t.From, t.Provider)),
		),
	)
	_, err := r.bot.Send(msg)
	return err
}

// SendAnswer delivers a recipient's reply to the client.
func (r *Router) SendAnswer(a relay.Answer) error {
	text := fmt.Sprintf(supportAnswerFmt, a.Text)
	if a.Kind == relay.KindConsultation {
		text = fmt.Sprintf(consultAnswerFmt, providerName(a.Provider), a.Text)
	}
	_, err := r.bot.Send(tgbotapi.NewMessage(a.To, text))
	return err
}
