package telegram

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/ykvlv/booking-bot/internal/booking"
	"github.com/ykvlv/booking-bot/internal/domain"
)

// --- Generic helpers ---

func (r *Router) send(c tgbotapi.Chattable) {
	if _, err := r.bot.Send(c); err != nil {
		r.log.Warn("send failed", zap.Error(err))
	}
}

func (r *Router) sendText(chatID int64, text string) {
	r.send(tgbotapi.NewMessage(chatID, text))
}

func (r *Router) sendWithMenu(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = mainMenuKeyboard()
	r.send(msg)
}

func (r *Router) answerCallback(id, text string, alert bool) error {
	cfg := tgbotapi.NewCallback(id, text)
	if alert {
		cfg = tgbotapi.NewCallbackWithAlert(id, text)
	}
	_, err := r.bot.Request(cfg)
	return err
}

// --- Core commands ---

func (r *Router) handleStart(ctx context.Context, chatID int64) {
	text := startText
	if r.opts.Records != nil {
		c, err := r.opts.Records.GetClient(ctx, chatID)
		switch {
		case err == nil:
			text = fmt.Sprintf(greetingFmt, c.FirstName) + startText
		case !errors.Is(err, domain.ErrNotFound):
			r.log.Warn("get client failed", zap.Int64("client_id", chatID), zap.Error(err))
		}
	}
	r.sendWithMenu(chatID, text)
}

// --- Reply rendering ---

// render shows the outcome of one event. Rejections that came from a button
// are shown as a callback alert, the rest as messages.
func (r *Router) render(reply booking.Reply, callbackID string) {
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
	case booking.NoticeNoSession:
		answer("", false)
		r.sendWithMenu(chatID, noSessionText)
		return
	case booking.NoticeFailed:
		answer("", false)
		r.sendWithMenu(chatID, failedText)
		return
	case booking.NoticeCancelled:
		answer("", false)
		r.sendWithMenu(chatID, cancelledText)
		return
	case booking.NoticeBooked:
		answer("", false)
		r.sendWithMenu(chatID, bookedText(reply.Booking))
		return
	}

	if text := noticeText(reply.Notice); text != "" {
		if callbackID != "" {
			answer(text, true)
		} else {
			r.sendText(chatID, text)
		}
		// the stored view changed, show it again
		if reply.Notice != booking.NoticeSlotTaken && reply.Notice != booking.NoticeSlotLost {
			return
		}
	}

	text, kb, ok := prompt(reply)
	if !ok {
		return
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = kb
	r.send(msg)
}
