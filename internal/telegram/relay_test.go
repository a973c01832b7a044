package telegram

import (
	"fmt"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ykvlv/booking-bot/internal/relay"
)

func (f *fakeBot) messagesTo(chatID int64) []tgbotapi.MessageConfig {
	var out []tgbotapi.MessageConfig
	for _, m := range f.messages() {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeBot) lastTextTo(t *testing.T, chatID int64) string {
	t.Helper()
	ms := f.messagesTo(chatID)
	if len(ms) == 0 {
		t.Fatalf("nothing sent to %d", chatID)
	}
	return ms[len(ms)-1].Text
}

func TestRouter_ConsultationRoundTrip(t *testing.T) {
	f := newFixture(t)
	const patient = 42

	f.do(textUpdate(patient, consultButton))
	ms := f.bot.messagesTo(patient)
	if len(ms) != 1 || ms[0].Text != askConsultProviderText {
		t.Fatalf("want provider prompt, got %+v", ms)
	}
	kb := ms[0].ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if len(kb.InlineKeyboard) != 2 || *kb.InlineKeyboard[0][0].CallbackData != prefixProvider+"surgeon" {
		t.Fatalf("only providers with a chat are offered: %+v", kb.InlineKeyboard)
	}

	f.do(callbackUpdate(patient, "cb-1", prefixProvider+"surgeon"))
	if got := f.bot.lastTextTo(t, patient); got != askNameText {
		t.Fatalf("want name prompt, got %q", got)
	}
	f.do(textUpdate(patient, "Иван Иванов"))
	if got := f.bot.lastTextTo(t, patient); got != askQuestionText {
		t.Fatalf("want question prompt, got %q", got)
	}
	f.do(textUpdate(patient, "Болит колено"))
	if got := f.bot.lastTextTo(t, patient); got != questionSentText {
		t.Fatalf("want confirmation, got %q", got)
	}

	toDoctor := f.bot.messagesTo(surgeonChat)
	if len(toDoctor) != 1 || toDoctor[0].Text != fmt.Sprintf(questionFmt, "Иван Иванов", "Болит колено") {
		t.Fatalf("question must reach the surgeon: %+v", toDoctor)
	}
	btn := toDoctor[0].ReplyMarkup.(tgbotapi.InlineKeyboardMarkup).InlineKeyboard[0][0]
	data := *btn.CallbackData
	if btn.Text != answerButton || data != prefixAnswer+relay.Ref(relay.KindConsultation, patient, "surgeon") {
		t.Fatalf("unexpected answer button: %+v", btn)
	}

	f.do(callbackUpdate(surgeonChat, "cb-2", data))
	if got := f.bot.lastTextTo(t, surgeonChat); got != askConsultAnswerText {
		t.Fatalf("want answer prompt, got %q", got)
	}
	f.do(textUpdate(surgeonChat, "Приходите в пятницу"))
	if got := f.bot.lastTextTo(t, patient); got != fmt.Sprintf(consultAnswerFmt, "Хирург", "Приходите в пятницу") {
		t.Fatalf("answer must reach the patient, got %q", got)
	}
	if got := f.bot.lastTextTo(t, surgeonChat); got != answerSentText {
		t.Fatalf("want delivery confirmation for the surgeon, got %q", got)
	}
}

func TestRouter_SupportRoundTrip(t *testing.T) {
	f := newFixture(t)
	const user = 43

	f.do(textUpdate(user, "поддержка"))
	if got := f.bot.lastTextTo(t, user); got != askNameText {
		t.Fatalf("want name prompt, got %q", got)
	}
	f.do(textUpdate(user, "Анна Смирнова"))
	f.do(textUpdate(user, "Не могу записаться"))
	if got := f.bot.lastTextTo(t, adminChat); got != fmt.Sprintf(supportFmt, "Анна Смирнова", "Не могу записаться") {
		t.Fatalf("message must reach support, got %q", got)
	}

	f.do(callbackUpdate(adminChat, "cb-1", prefixAnswer+relay.Ref(relay.KindSupport, user, "")))
	f.do(textUpdate(adminChat, "Попробуйте ещё раз"))
	if got := f.bot.lastTextTo(t, user); got != fmt.Sprintf(supportAnswerFmt, "Попробуйте ещё раз") {
		t.Fatalf("answer must reach the user, got %q", got)
	}
}

func TestRouter_FlowsReplaceEachOther(t *testing.T) {
	f := newFixture(t)
	const chat = 44

	f.do(textUpdate(chat, bookButton))
	f.do(textUpdate(chat, supportButton))
	f.do(textUpdate(chat, "Иван Иванов"))
	if got := f.bot.lastTextTo(t, chat); got != askSupportMessageText {
		t.Fatalf("support must own the chat after it starts, got %q", got)
	}

	f.do(textUpdate(chat, bookButton))
	f.do(textUpdate(chat, "Иван Иванов"))
	if got := f.bot.lastTextTo(t, chat); got != askDayText {
		t.Fatalf("booking must own the chat after it starts, got %q", got)
	}
	if len(f.bot.messagesTo(adminChat)) != 0 {
		t.Fatalf("dropped support conversation must not send anything")
	}
}

func TestRouter_RelayDeliveryFailure(t *testing.T) {
	f := newFixture(t)
	f.bot.failTo = surgeonChat
	const patient = 45

	f.do(textUpdate(patient, "/consult"))
	f.do(callbackUpdate(patient, "cb-1", prefixProvider+"surgeon"))
	f.do(textUpdate(patient, "Иван Иванов"))
	f.do(textUpdate(patient, "Вопрос"))
	if got := f.bot.lastTextTo(t, patient); got != relayFailedText {
		t.Fatalf("want failure text, got %q", got)
	}
}

func TestRouter_AnswerByStrangerAlerted(t *testing.T) {
	f := newFixture(t)
	f.do(callbackUpdate(7, "cb-x", prefixAnswer+relay.Ref(relay.KindSupport, 42, "")))

	cbs := f.bot.callbacks()
	if len(cbs) != 1 || !cbs[0].ShowAlert || cbs[0].Text != relayNoticeText(relay.NoticeForbidden) {
		t.Fatalf("want forbidden alert, got %+v", cbs)
	}
	if len(f.bot.messages()) != 0 {
		t.Fatalf("forbidden answer must not send messages")
	}
}
