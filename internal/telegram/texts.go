package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ykvlv/booking-bot/internal/availability"
	"github.com/ykvlv/booking-bot/internal/booking"
	"github.com/ykvlv/booking-bot/internal/domain"
)

// UI texts in Russian
const (
	bookButton = "Записаться на прием"

	greetingFmt = "С возвращением, %s!\n\n"

	startText = "👋 Здравствуйте! Я помогу записаться на прием к врачу.\n\n" +
		"Нажмите «" + bookButton + "», чтобы выбрать день, специалиста и время.\n" +
		"«" + consultButton + "» отправит вопрос врачу, «" + supportButton + "» напишет администратору."
	askNameText     = "Введите ваши имя и фамилию через пробел (например: Иван Иванов)"
	askDayText      = "Выберите день приема:"
	askProviderText = "Выберите специалиста:"
	askTimeFmt      = "%s, %s. Выберите время:"
	degradedNote    = "\n\n⚠️ Не удалось проверить занятость, время будет уточнено при подтверждении."
	noFreeSlotsNote = "\n\nСвободного времени нет, выберите другой день или специалиста."
	confirmFmt      = "Проверьте запись:\n\n• Пациент: %s %s\n• День: %s\n• Врач: %s\n• Время: %s"
	bookedFmt       = "✅ Вы записаны!\n\n• Пациент: %s\n• День: %s\n• Врач: %s\n• Время: %s"
	cancelledText   = "Запись отменена."
	failedText      = "⚠️ Произошла ошибка. Пожалуйста, начните запись заново."
	noSessionText   = "Начните запись с кнопки «" + bookButton + "»."
	throttledText   = "⏳ Слишком часто. Подождите пару секунд."

	cbBook    = "book"
	cbConfirm = "confirm"
	cbCancel  = "cancel"
	cbBack    = "back"

	prefixDay      = "day:"
	prefixProvider = "provider:"
	prefixTime     = "time:"

	slotsPerRow = 4
)

var dayNames = map[string]string{
	"monday":    "Понедельник",
	"tuesday":   "Вторник",
	"wednesday": "Среда",
	"thursday":  "Четверг",
	"friday":    "Пятница",
	"saturday":  "Суббота",
	"sunday":    "Воскресенье",
}

var providerNames = map[domain.Provider]string{
	"pediatrician": "Педиатр",
	"surgeon":      "Хирург",
	"gynecologist": "Гинеколог",
}

func dayName(label string) string {
	if n, ok := dayNames[label]; ok {
		return n
	}
	return label
}

func providerName(p domain.Provider) string {
	if n, ok := providerNames[p]; ok {
		return n
	}
	return string(p)
}

// noticeText returns the short text for notices that reject an event without
// changing the step. Empty for everything else.
func noticeText(n booking.Notice) string {
	switch n {
	case booking.NoticeUnexpected:
		return "Сейчас это действие недоступно."
	case booking.NoticeInvalidName:
		return "Нужно ввести имя и фамилию через пробел, например: Иван Иванов"
	case booking.NoticeUnknownDay:
		return "Такого дня нет в расписании."
	case booking.NoticeDayUnavailable:
		return "❌ Этот день уже прошел, выберите другой."
	case booking.NoticeUnknownProvider:
		return "Такого специалиста нет."
	case booking.NoticeUnknownTime:
		return "Такого времени нет в расписании."
	case booking.NoticeSlotTaken:
		return "⛔ Это время уже занято, выберите другое."
	case booking.NoticeSlotLost:
		return "⛔ Пока вы подтверждали, это время заняли. Выберите другое."
	default:
		return ""
	}
}

// mainMenuKeyboard builds the reply keyboard with the entry buttons.
func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(bookButton),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(consultButton),
			tgbotapi.NewKeyboardButton(supportButton),
		),
	)
}

func navRow(back bool) []tgbotapi.InlineKeyboardButton {
	row := tgbotapi.NewInlineKeyboardRow()
	if back {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", cbBack))
	}
	return append(row, tgbotapi.NewInlineKeyboardButtonData("✖️ Отмена", cbCancel))
}

func nameKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(navRow(false))
}

// daysKeyboard lists working days; days that already passed are marked ❌.
func daysKeyboard(days []booking.DayOption) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(days)+1)
	for _, d := range days {
		text := dayName(d.Label)
		if !d.Available {
			text += " ❌"
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(text, prefixDay+d.Label),
		))
	}
	rows = append(rows, navRow(true))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func providersKeyboard(providers []domain.Provider) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(providers)+1)
	for _, p := range providers {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(providerName(p), prefixProvider+string(p)),
		))
	}
	rows = append(rows, navRow(true))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// slotsKeyboard lays the grid out slotsPerRow per row; busy slots are marked ⛔.
func slotsKeyboard(v availability.View) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, s := range v.Slots {
		text := s.Time
		if s.Busy {
			text = "⛔ " + s.Time
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(text, prefixTime+s.Time))
		if len(row) == slotsPerRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, navRow(true))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func confirmKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Подтвердить", cbConfirm),
		),
		navRow(true),
	)
}

// prompt renders the question of the reply's state. ok is false for StateIdle.
func prompt(r booking.Reply) (text string, kb tgbotapi.InlineKeyboardMarkup, ok bool) {
	s := r.Session
	switch r.State {
	case booking.StateAwaitingName:
		return askNameText, nameKeyboard(), true
	case booking.StateAwaitingDay:
		return askDayText, daysKeyboard(r.Days), true
	case booking.StateAwaitingProvider:
		return askProviderText, providersKeyboard(r.Providers), true
	case booking.StateAwaitingTime:
		v := s.View
		if r.View != nil {
			v = *r.View
		}
		var b strings.Builder
		fmt.Fprintf(&b, askTimeFmt, dayName(s.Day), providerName(s.Provider))
		if v.Degraded {
			b.WriteString(degradedNote)
		} else if len(v.Free()) == 0 {
			b.WriteString(noFreeSlotsNote)
		}
		return b.String(), slotsKeyboard(v), true
	case booking.StateAwaitingConfirmation:
		text = fmt.Sprintf(confirmFmt, s.FirstName, s.LastName, dayName(s.Day), providerName(s.Provider), s.Time)
		return text, confirmKeyboard(), true
	default:
		return "", tgbotapi.InlineKeyboardMarkup{}, false
	}
}

func bookedText(b *domain.Booking) string {
	return fmt.Sprintf(bookedFmt, b.ClientName, dayName(b.Day), providerName(b.Provider), b.Time)
}
