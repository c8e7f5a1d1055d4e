package telegram

import (
	"bytes"
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	chart "github.com/wcharczuk/go-chart/v2"
	"golang.org/x/sync/errgroup"

	"autolead-telegram-bot/internal/domain"
	"autolead-telegram-bot/internal/usecase"
)

const (
	deliveryTimeout = 15 * time.Second
	shardBuffer     = 64
)

// botAPI — подмножество *tgbotapi.BotAPI, которым пользуется адаптер.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Handler struct {
	bot        botAPI
	dialog     *usecase.Dialog
	funnel     *usecase.FunnelUsecase
	delivery   usecase.LeadDelivery
	deliveries sync.WaitGroup
	workers    int
	logger     *slog.Logger
}

func NewHandler(bot botAPI, dialog *usecase.Dialog, funnel *usecase.FunnelUsecase, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		bot:     bot,
		dialog:  dialog,
		funnel:  funnel,
		workers: 8,
		logger:  logger.With("component", "telegram"),
	}
}

func (h *Handler) SetLeadDelivery(d usecase.LeadDelivery) { h.delivery = d }

func (h *Handler) SetWorkers(n int) {
	if n > 0 {
		h.workers = n
	}
}

// Run читает long polling до отмены ctx. Апдейты раскладываются по воркерам по chat id:
// разные чаты обрабатываются параллельно, события одного чата — строго по очереди.
func (h *Handler) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := h.bot.GetUpdatesChan(u)

	shards := make([]chan tgbotapi.Update, h.workers)
	var g errgroup.Group
	for i := range shards {
		ch := make(chan tgbotapi.Update, shardBuffer)
		shards[i] = ch
		g.Go(func() error {
			for update := range ch {
				h.HandleUpdate(ctx, update)
			}
			return nil
		})
	}
	// принятые апдейты и отправки в CRM дорабатывают после остановки поллинга
	drain := func() error {
		for _, ch := range shards {
			close(ch)
		}
		err := g.Wait()
		h.deliveries.Wait()
		return err
	}

	for {
		select {
		case <-ctx.Done():
			h.bot.StopReceivingUpdates()
			return drain()
		case update, ok := <-updates:
			if !ok {
				return drain()
			}
			select {
			case shards[shardOf(update, len(shards))] <- update:
			case <-ctx.Done():
				h.bot.StopReceivingUpdates()
				return drain()
			}
		}
	}
}

func shardOf(update tgbotapi.Update, n int) int {
	chatID, _, _ := EventFromUpdate(update)
	return int(uint64(chatID) % uint64(n))
}

// EventFromUpdate достаёт из апдейта чат и событие для диалога.
func EventFromUpdate(update tgbotapi.Update) (int64, usecase.Event, bool) {
	switch {
	case update.Message != nil:
		m := update.Message
		ev := usecase.Event{Kind: usecase.EventText, Text: m.Text, Requester: requesterOf(m.From)}
		if m.IsCommand() {
			ev.Kind = usecase.EventCommand
			ev.Text = m.Command()
		}
		return m.Chat.ID, ev, true
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil:
		cb := update.CallbackQuery
		ev := usecase.Event{Kind: usecase.EventAction, Text: cb.Data, Requester: requesterOf(cb.From)}
		return cb.Message.Chat.ID, ev, true
	}
	return 0, usecase.Event{}, false
}

func requesterOf(u *tgbotapi.User) domain.Requester {
	if u == nil {
		return domain.Requester{}
	}
	return domain.Requester{ID: u.ID, Handle: u.UserName}
}

func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	chatID, ev, ok := EventFromUpdate(update)
	if !ok {
		if cb := update.CallbackQuery; cb != nil {
			h.answerCallback(0, cb.ID, "")
		}
		return
	}
	// начатый переход доводим до конца даже при остановке бота, иначе заявка не сохранится
	ctx = context.WithoutCancel(ctx)

	if ev.Kind == usecase.EventCommand && ev.Text == usecase.CommandFunnel {
		h.handleFunnel(chatID, ev.Requester)
		return
	}

	out := h.dialog.Handle(ctx, chatID, ev)

	if cb := update.CallbackQuery; cb != nil {
		h.answerCallback(chatID, cb.ID, out.Notice)
	}
	for _, r := range out.Replies {
		if _, err := h.bot.Send(h.buildMessage(chatID, r)); err != nil {
			h.logger.Error("send reply failed", "chat_id", chatID, "error", err)
		}
	}
	h.trackFunnel(chatID, usecase.StageOf(out))

	if out.Lead != nil && h.delivery != nil {
		lead := *out.Lead
		h.deliveries.Add(1)
		go func() {
			defer h.deliveries.Done()
			h.deliver(chatID, lead)
		}()
	}
}

func (h *Handler) answerCallback(chatID int64, callbackID, notice string) {
	if _, err := h.bot.Request(tgbotapi.NewCallback(callbackID, notice)); err != nil {
		h.logger.Warn("callback answer failed", "chat_id", chatID, "error", err)
	}
}

// trackFunnel — небольшой хелпер, чтобы не дублировать проверку на nil
func (h *Handler) trackFunnel(chatID int64, stage usecase.Stage) {
	if h.funnel == nil {
		return
	}
	if err := h.funnel.Reach(chatID, stage); err != nil {
		h.logger.Warn("funnel hit failed", "chat_id", chatID, "stage", stage, "error", err)
	}
}

func (h *Handler) deliver(chatID int64, lead domain.Lead) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()
	h.logger.Info("crm send start", "chat_id", chatID)
	if err := h.delivery.SendLead(ctx, lead); err != nil {
		h.logger.Error("crm send failed", "chat_id", chatID, "error", err)
		return
	}
	h.logger.Info("crm send success", "chat_id", chatID)
}

func (h *Handler) handleFunnel(chatID int64, requester domain.Requester) {
	if !h.dialog.IsOperator(requester) {
		h.sendText(chatID, usecase.OperatorOnlyText)
		h.logger.Warn("funnel denied", "chat_id", chatID)
		return
	}
	if h.funnel == nil {
		h.sendText(chatID, "Воронка недоступна")
		return
	}
	labels, values := h.funnel.GraphData()
	if err := h.sendFunnelChart(chatID, labels, values); err != nil {
		h.logger.Error("funnel chart failed", "error", err)
		h.sendText(chatID, h.funnel.Chart())
	}
}

func (h *Handler) buildMessage(chatID int64, r usecase.Reply) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, r.Text)
	msg.ParseMode = tgbotapi.ModeHTML
	switch r.Keyboard {
	case usecase.KeyboardServices:
		msg.ReplyMarkup = serviceKeyboard(h.dialog.Catalog())
	case usecase.KeyboardNavigation:
		msg.ReplyMarkup = navigationKeyboard()
	case usecase.KeyboardRemove:
		msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	}
	return msg
}

func (h *Handler) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := h.bot.Send(msg); err != nil {
		h.logger.Error("send text failed", "chat_id", chatID, "error", err)
	}
}

func serviceKeyboard(catalog domain.Catalog) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(catalog))
	for i, s := range catalog {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(s.Label, usecase.ServiceAction(i)),
		))
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func navigationKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("« К услугам", usecase.ActionBackToServices),
			tgbotapi.NewInlineKeyboardButtonData("✖ Отменить", usecase.ActionCancel),
		),
	)
}

// Реализация отправителя для юзкейсов
type Sender struct{ bot botAPI }

func NewSender(bot botAPI) *Sender { return &Sender{bot: bot} }

func (s *Sender) SendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := s.bot.Send(msg)
	return err
}

func (h *Handler) sendFunnelChart(chatID int64, labels []string, values []int) error {
	bars := make([]chart.Value, 0, len(labels))
	maxVal := 0
	for i := range labels {
		v := values[i]
		if v > maxVal {
			maxVal = v
		}
		bars = append(bars, chart.Value{Value: float64(v), Label: labels[i]})
	}
	// Избежать ошибки invalid data range при нулевых значениях
	yMax := float64(maxVal)
	if yMax <= 0 {
		yMax = 1
	}
	graph := chart.BarChart{
		Width:    1100,
		Height:   600,
		BarWidth: 56,
		Background: chart.Style{Padding: chart.Box{
			Top:    50,
			Left:   16,
			Right:  16,
			Bottom: 0,
		}},
		YAxis: chart.YAxis{Range: &chart.ContinuousRange{Min: 0, Max: yMax}},
		Bars:  bars,
	}
	buf := bytes.NewBuffer(nil)
	if err := graph.Render(chart.PNG, buf); err != nil {
		return err
	}
	fname := "funnel_" + strconv.FormatInt(time.Now().UnixNano(), 10) + ".png"
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: fname, Bytes: buf.Bytes()})
	_, err := h.bot.Send(photo)
	return err
}
