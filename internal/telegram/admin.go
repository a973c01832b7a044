package telegram

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ykvlv/booking-bot/internal/domain"
)

// Operator command aliases, Russian first.
var (
	cmdBookings = []string{"/занятые_записи", "/bookings"}
	cmdStop     = []string{"/остановка", "/stop"}
	cmdRestart  = []string{"/перезапуск", "/restart"}
)

const (
	forbiddenText    = "❌ У вас нет прав для использования этой команды."
	noBookingsText   = "📅 Нет занятых записей."
	bookingsTitle    = "📋 Занятые записи:\n\n"
	bookingEntryFmt  = "🆔 ID: %d\n👤 Пациент: %s\n👨‍⚕️ Врач: %s\n🕒 Время: %s %s\n────────────────────\n"
	bookingsFailText = "⚠️ Произошла ошибка при получении занятых записей.\nПодробности в логах."
	stoppingText     = "🛑 Бот останавливается..."
	restartingText   = "🔄 Бот перезапускается..."

	// Telegram rejects messages above 4096 characters.
	maxMessageRunes = 4000
)

func isCommand(text string, aliases ...string) bool {
	cmd, _, _ := strings.Cut(text, " ")
	for _, a := range aliases {
		if cmd == a {
			return true
		}
	}
	return false
}

func (r *Router) isAdmin(chatID int64) bool {
	return r.opts.AdminChatID != 0 && chatID == r.opts.AdminChatID
}

// handleBookings lists every committed booking to the operator.
func (r *Router) handleBookings(ctx context.Context, chatID int64) {
	if !r.isAdmin(chatID) {
		r.sendText(chatID, forbiddenText)
		return
	}
	if r.opts.Records == nil {
		r.sendText(chatID, bookingsFailText)
		return
	}
	list, err := r.opts.Records.ListBookings(ctx)
	if err != nil {
		r.log.Error("list bookings failed", zap.String("op", "list bookings"), zap.Error(err))
		r.sendText(chatID, bookingsFailText)
		return
	}
	if len(list) == 0 {
		r.sendText(chatID, noBookingsText)
		return
	}
	for _, part := range bookingsMessages(list) {
		r.sendText(chatID, part)
	}
}

// bookingsMessages renders the listing split into messages Telegram accepts.
// Entries are never split across messages.
func bookingsMessages(list []domain.Booking) []string {
	var parts []string
	var b strings.Builder
	b.WriteString(bookingsTitle)
	for _, bk := range list {
		entry := fmt.Sprintf(bookingEntryFmt, bk.ID, bk.ClientName, providerName(bk.Provider), dayName(bk.Day), bk.Time)
		if utf8.RuneCountInString(b.String())+utf8.RuneCountInString(entry) > maxMessageRunes {
			parts = append(parts, b.String())
			b.Reset()
		}
		b.WriteString(entry)
	}
	return append(parts, b.String())
}

// handleStop acknowledges and stops the process. A restart is the supervisor's job.
func (r *Router) handleStop(chatID int64, text string) {
	if !r.isAdmin(chatID) {
		r.sendText(chatID, forbiddenText)
		return
	}
	r.sendText(chatID, text)
	r.log.Info("shutdown requested by operator", zap.Int64("chat_id", chatID))
	if r.opts.Shutdown != nil {
		r.opts.Shutdown()
	}
}
