package telegram

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autolead-telegram-bot/internal/domain"
	"autolead-telegram-bot/internal/infra/jsonl"
	"autolead-telegram-bot/internal/infra/memory"
	"autolead-telegram-bot/internal/usecase"
)

const (
	userChat     int64 = 500
	operatorChat int64 = 900
)

type fakeBot struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	updates  chan tgbotapi.Update
	stopped  bool
}

func newFakeBot() *fakeBot {
	return &fakeBot{updates: make(chan tgbotapi.Update, 16)}
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, c)
	return tgbotapi.Message{}, nil
}

func (b *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (b *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel { return b.updates }

func (b *fakeBot) StopReceivingUpdates() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
}

func (b *fakeBot) messages() []tgbotapi.MessageConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []tgbotapi.MessageConfig
	for _, c := range b.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m)
		}
	}
	return out
}

func (b *fakeBot) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = nil
	b.requests = nil
}

type fakeDelivery struct {
	leads chan domain.Lead
}

func (d *fakeDelivery) SendLead(_ context.Context, lead domain.Lead) error {
	d.leads <- lead
	return nil
}

type slowDelivery struct {
	mu    sync.Mutex
	leads []domain.Lead
}

func (d *slowDelivery) SendLead(_ context.Context, lead domain.Lead) error {
	time.Sleep(100 * time.Millisecond)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.leads = append(d.leads, lead)
	return nil
}

func (d *slowDelivery) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.leads)
}

var catalog = domain.Catalog{{Label: "Import", DetailsPrompt: "Which car?"}, {Label: "Tuning"}}

func newTestHandler(t *testing.T) (*Handler, *fakeBot, *jsonl.LeadStore) {
	t.Helper()
	bot := newFakeBot()
	store := jsonl.NewLeadStore(filepath.Join(t.TempDir(), "leads.jsonl"), nil)
	dialog := usecase.NewDialog(catalog, memory.NewSessionRepo(0), store,
		usecase.WithOperator(operatorChat, NewSender(bot)))
	h := NewHandler(bot, dialog, usecase.NewFunnelUsecase(memory.NewFunnelRepo()), nil)
	return h, bot, store
}

func textUpdate(chat int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text: text,
		Chat: &tgbotapi.Chat{ID: chat},
		From: &tgbotapi.User{ID: chat, UserName: "alex"},
	}}
}

func commandUpdate(chat int64, command string) tgbotapi.Update {
	u := textUpdate(chat, "/"+command)
	u.Message.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(command) + 1}}
	return u
}

func callbackUpdate(chat int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		Data:    data,
		From:    &tgbotapi.User{ID: chat, UserName: "alex"},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chat}},
	}}
}

func TestEventFromUpdate(t *testing.T) {
	chat, ev, ok := EventFromUpdate(textUpdate(userChat, "hello"))
	require.True(t, ok)
	assert.Equal(t, userChat, chat)
	assert.Equal(t, usecase.Event{Kind: usecase.EventText, Text: "hello", Requester: domain.Requester{ID: userChat, Handle: "alex"}}, ev)

	u := textUpdate(userChat, "/start@autolead_bot")
	u.Message.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 19}}
	_, ev, ok = EventFromUpdate(u)
	require.True(t, ok)
	assert.Equal(t, usecase.EventCommand, ev.Kind)
	assert.Equal(t, usecase.CommandStart, ev.Text)

	chat, ev, ok = EventFromUpdate(callbackUpdate(userChat, "svc:1"))
	require.True(t, ok)
	assert.Equal(t, userChat, chat)
	assert.Equal(t, usecase.EventAction, ev.Kind)
	assert.Equal(t, "svc:1", ev.Text)

	_, _, ok = EventFromUpdate(tgbotapi.Update{})
	assert.False(t, ok)

	_, _, ok = EventFromUpdate(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{ID: "inline", Data: "svc:0"}})
	assert.False(t, ok)
}

func TestHandleUpdate_FullConversation(t *testing.T) {
	h, bot, store := newTestHandler(t)
	ctx := context.Background()

	h.HandleUpdate(ctx, commandUpdate(userChat, "start"))
	msgs := bot.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, tgbotapi.ModeHTML, msgs[0].ParseMode)
	kb, ok := msgs[0].ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, kb.InlineKeyboard, 2)
	assert.Equal(t, "Import", kb.InlineKeyboard[0][0].Text)
	require.NotNil(t, kb.InlineKeyboard[1][0].CallbackData)
	assert.Equal(t, "svc:1", *kb.InlineKeyboard[1][0].CallbackData)

	bot.reset()
	h.HandleUpdate(ctx, callbackUpdate(userChat, "svc:0"))
	require.Len(t, bot.requests, 1)
	msgs = bot.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "<b>Import</b>")
	nav, ok := msgs[0].ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	assert.Equal(t, usecase.ActionBackToServices, *nav.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, usecase.ActionCancel, *nav.InlineKeyboard[0][1].CallbackData)

	for _, in := range []string{"Alex", "Metropolis", "@alex", "need a sedan"} {
		h.HandleUpdate(ctx, textUpdate(userChat, in))
	}

	leads, err := store.LastN(ctx, 10)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "need a sedan", leads[0].Details)

	var toOperator, toUser int
	for _, m := range bot.messages() {
		switch m.ChatID {
		case operatorChat:
			toOperator++
			assert.Equal(t, usecase.FormatLeadSummary(leads[0], true), m.Text)
		case userChat:
			toUser++
		}
	}
	assert.Equal(t, 1, toOperator)
	// выбор услуги, три вопроса, карточка заявки и подсказка про /start
	assert.Equal(t, 1+3+2, toUser)

	_, values := h.funnel.GraphData()
	assert.Equal(t, []int{1, 1, 1, 1, 1, 1}, values)
}

func TestHandleUpdate_OperatorCommands(t *testing.T) {
	h, bot, _ := newTestHandler(t)
	ctx := context.Background()

	h.HandleUpdate(ctx, commandUpdate(userChat, "leads"))
	h.HandleUpdate(ctx, commandUpdate(userChat, "funnel"))
	msgs := bot.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, usecase.OperatorOnlyText, msgs[0].Text)
	assert.Equal(t, usecase.OperatorOnlyText, msgs[1].Text)

	bot.reset()
	h.HandleUpdate(ctx, commandUpdate(operatorChat, "leads"))
	msgs = bot.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, usecase.NoLeadsText, msgs[0].Text)

	require.NoError(t, h.funnel.Reach(userChat, usecase.Stage(usecase.PhaseChoosingService)))
	require.NoError(t, h.funnel.Reach(userChat, usecase.StageLeadSaved))
	bot.reset()
	h.HandleUpdate(ctx, commandUpdate(operatorChat, "funnel"))
	require.Len(t, bot.sent, 1)
	assert.IsType(t, tgbotapi.PhotoConfig{}, bot.sent[0])
}

func TestHandleUpdate_DeliversLeadToCRM(t *testing.T) {
	h, _, _ := newTestHandler(t)
	delivery := &fakeDelivery{leads: make(chan domain.Lead, 1)}
	h.SetLeadDelivery(delivery)
	ctx := context.Background()

	h.HandleUpdate(ctx, callbackUpdate(userChat, "svc:1"))
	for _, in := range []string{"Alex", "Metropolis", "+79000000000", "winter tyres"} {
		h.HandleUpdate(ctx, textUpdate(userChat, in))
	}

	select {
	case lead := <-delivery.leads:
		assert.Equal(t, "Tuning", lead.Service)
		assert.Equal(t, "+79000000000", lead.Contact)
	case <-time.After(2 * time.Second):
		t.Fatal("lead was not delivered")
	}
}

func TestBuildMessage_Keyboards(t *testing.T) {
	h, _, _ := newTestHandler(t)

	msg := h.buildMessage(userChat, usecase.Reply{Text: "bye", Keyboard: usecase.KeyboardRemove})
	assert.IsType(t, tgbotapi.ReplyKeyboardRemove{}, msg.ReplyMarkup)

	msg = h.buildMessage(userChat, usecase.Reply{Text: "plain"})
	assert.Nil(t, msg.ReplyMarkup)
}

func TestRun_StopsOnCancel(t *testing.T) {
	h, bot, _ := newTestHandler(t)
	h.SetWorkers(2)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	bot.updates <- textUpdate(userChat, "hello")
	bot.updates <- textUpdate(userChat+1, "hello")

	require.Eventually(t, func() bool { return len(bot.messages()) == 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	bot.mu.Lock()
	assert.True(t, bot.stopped)
	bot.mu.Unlock()
}

func TestRun_KeepsChatOrder(t *testing.T) {
	h, bot, store := newTestHandler(t)
	h.SetWorkers(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	chats := []int64{userChat, userChat + 1, userChat + 2}
	for _, chat := range chats {
		bot.updates <- callbackUpdate(chat, "svc:0")
	}
	for _, field := range []string{"name", "city", "contact", "details"} {
		for _, chat := range chats {
			bot.updates <- textUpdate(chat, fmt.Sprintf("%s-%d", field, chat))
		}
	}

	require.Eventually(t, func() bool {
		leads, err := store.LastN(context.Background(), 10)
		return err == nil && len(leads) == len(chats)
	}, 3*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	leads, err := store.LastN(context.Background(), 10)
	require.NoError(t, err)
	for _, lead := range leads {
		require.NotNil(t, lead.RequesterID)
		chat := *lead.RequesterID
		assert.Equal(t, "Import", lead.Service)
		assert.Equal(t, fmt.Sprintf("name-%d", chat), lead.Name)
		assert.Equal(t, fmt.Sprintf("city-%d", chat), lead.City)
		assert.Equal(t, fmt.Sprintf("contact-%d", chat), lead.Contact)
		assert.Equal(t, fmt.Sprintf("details-%d", chat), lead.Details)
	}
}

func TestRun_WaitsForDeliveryOnShutdown(t *testing.T) {
	h, bot, store := newTestHandler(t)
	delivery := &slowDelivery{}
	h.SetLeadDelivery(delivery)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	bot.updates <- callbackUpdate(userChat, "svc:1")
	for _, in := range []string{"Alex", "Metropolis", "+79000000000", "winter tyres"} {
		bot.updates <- textUpdate(userChat, in)
	}
	require.Eventually(t, func() bool {
		leads, err := store.LastN(context.Background(), 10)
		return err == nil && len(leads) == 1
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	require.NoError(t, <-done)
	assert.Equal(t, 1, delivery.count())
}

func TestHandleUpdate_SavesLeadWithCancelledContext(t *testing.T) {
	h, _, store := newTestHandler(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h.HandleUpdate(ctx, callbackUpdate(userChat, "svc:0"))
	for _, in := range []string{"Alex", "Metropolis", "@alex", "need a sedan"} {
		h.HandleUpdate(ctx, textUpdate(userChat, in))
	}

	leads, err := store.LastN(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "need a sedan", leads[0].Details)
}

func TestHandleUpdate_AnswersCallbackWithoutMessage(t *testing.T) {
	h, bot, _ := newTestHandler(t)

	h.HandleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{ID: "inline", Data: "svc:0"}})

	require.Len(t, bot.requests, 1)
	cb, ok := bot.requests[0].(tgbotapi.CallbackConfig)
	require.True(t, ok)
	assert.Equal(t, "inline", cb.CallbackQueryID)
	assert.Empty(t, cb.Text)
	assert.Empty(t, bot.messages())
}
