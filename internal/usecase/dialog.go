package usecase

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"autolead-telegram-bot/internal/domain"
)

// Логические состояния и ответы, независимые от Telegram

type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseChoosingService   Phase = "choosing_service"
	PhaseCollectingName    Phase = "collecting_name"
	PhaseCollectingCity    Phase = "collecting_city"
	PhaseCollectingContact Phase = "collecting_contact"
	PhaseCollectingDetails Phase = "collecting_details"
)

const (
	serviceActionPrefix  = "svc:"
	ActionBackToServices = "nav:back"
	ActionCancel         = "nav:cancel"

	RecentLeadsLimit = 10
)

const (
	CommandStart  = "start"
	CommandCancel = "cancel"
	CommandLeads  = "leads"
	CommandFunnel = "funnel"
)

type EventKind int

const (
	EventText EventKind = iota
	EventCommand
	EventAction
)

// Event — входящее событие от транспорта. Для команд Text содержит имя команды без "/".
type Event struct {
	Kind      EventKind
	Text      string
	Requester domain.Requester
}

type Keyboard int

const (
	KeyboardNone Keyboard = iota
	KeyboardServices
	KeyboardNavigation
	KeyboardRemove
)

type Reply struct {
	Text     string
	Keyboard Keyboard
}

// Outcome — результат обработки одного события.
type Outcome struct {
	Replies []Reply
	// Notice — короткое уведомление в ответ на нажатие кнопки
	Notice string
	Phase  Phase
	Lead   *domain.Lead
}

func (o *Outcome) say(text string, kb Keyboard) {
	o.Replies = append(o.Replies, Reply{Text: text, Keyboard: kb})
}

// ServiceAction возвращает payload кнопки выбора услуги.
func ServiceAction(index int) string {
	return serviceActionPrefix + strconv.Itoa(index)
}

// Draft — собранные на текущий момент ответы.
type Draft struct {
	Service *domain.Service
	Name    string
	City    string
	Contact string
}

type Session struct {
	Phase Phase
	Draft Draft
}

func (s *Session) reset(phase Phase) {
	s.Phase = phase
	s.Draft = Draft{}
}

// SessionStore владеет состоянием диалогов и сериализует fn для одной сессии.
type SessionStore interface {
	Update(sessionID int64, fn func(s *Session))
}

type Dialog struct {
	catalog    domain.Catalog
	sessions   SessionStore
	leads      domain.LeadRepository
	operatorID int64
	operator   domain.MessageSender
	now        func() time.Time
	logger     *slog.Logger
}

type Option func(*Dialog)

// WithOperator включает пересылку заявок и команду /leads для operatorID.
func WithOperator(operatorID int64, sender domain.MessageSender) Option {
	return func(d *Dialog) {
		d.operatorID = operatorID
		d.operator = sender
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dialog) {
		if now != nil {
			d.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dialog) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func NewDialog(catalog domain.Catalog, sessions SessionStore, leads domain.LeadRepository, opts ...Option) *Dialog {
	d := &Dialog{
		catalog:  catalog,
		sessions: sessions,
		leads:    leads,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "dialog")
	return d
}

func (d *Dialog) Catalog() domain.Catalog { return d.catalog }

func (d *Dialog) IsOperator(r domain.Requester) bool {
	return d.operatorID != 0 && r.ID == d.operatorID
}

// Handle — единственная точка входа для транспорта.
func (d *Dialog) Handle(ctx context.Context, sessionID int64, ev Event) Outcome {
	if ev.Kind == EventCommand && ev.Text == CommandLeads {
		return d.recentLeads(ctx, ev.Requester)
	}
	var out Outcome
	d.sessions.Update(sessionID, func(s *Session) {
		if s.Phase == "" {
			s.Phase = PhaseIdle
		}
		out = d.step(ctx, s, ev)
		out.Phase = s.Phase
	})
	return out
}

func (d *Dialog) step(ctx context.Context, s *Session, ev Event) Outcome {
	switch ev.Kind {
	case EventCommand:
		switch ev.Text {
		case CommandStart:
			s.reset(PhaseChoosingService)
			var out Outcome
			out.say(GreetingText, KeyboardServices)
			return out
		case CommandCancel:
			s.reset(PhaseIdle)
			var out Outcome
			out.say(CancelCommandText, KeyboardRemove)
			return out
		}
		// прочие команды в середине анкеты считаем обычным текстом
		return d.text(ctx, s, "/"+ev.Text, ev.Requester)
	case EventAction:
		return d.action(s, ev.Text)
	default:
		return d.text(ctx, s, ev.Text, ev.Requester)
	}
}

func (d *Dialog) action(s *Session, data string) Outcome {
	var out Outcome
	switch {
	case data == ActionBackToServices:
		s.reset(PhaseChoosingService)
		out.Notice = NoticeServicesMenu
		out.say(BackToServicesText, KeyboardServices)
	case data == ActionCancel:
		s.reset(PhaseIdle)
		out.Notice = NoticeDialogStopped
		out.say(CancelActionText, KeyboardRemove)
	case strings.HasPrefix(data, serviceActionPrefix):
		idx, err := strconv.Atoi(strings.TrimPrefix(data, serviceActionPrefix))
		if err != nil {
			idx = -1
		}
		service, ok := d.catalog.Lookup(idx)
		if !ok {
			out.say(UnknownServiceText, KeyboardServices)
			return out
		}
		s.reset(PhaseCollectingName)
		s.Draft.Service = &service
		out.say(fmt.Sprintf(ServiceConfirmedText, html.EscapeString(service.Label)), KeyboardNavigation)
	default:
		d.logger.Debug("unknown action", "data", data)
	}
	return out
}

func (d *Dialog) text(ctx context.Context, s *Session, raw string, requester domain.Requester) Outcome {
	var out Outcome
	value := strings.TrimSpace(raw)

	switch s.Phase {
	case PhaseCollectingName:
		if value == "" {
			out.say(BlankNameText, KeyboardNavigation)
			return out
		}
		s.Draft.Name = value
		s.Phase = PhaseCollectingCity
		out.say(AskCityText, KeyboardNavigation)

	case PhaseCollectingCity:
		if value == "" {
			out.say(BlankCityText, KeyboardNavigation)
			return out
		}
		s.Draft.City = value
		s.Phase = PhaseCollectingContact
		out.say(AskContactText, KeyboardNavigation)

	case PhaseCollectingContact:
		if value == "" {
			out.say(BlankContactText, KeyboardNavigation)
			return out
		}
		s.Draft.Contact = value
		s.Phase = PhaseCollectingDetails
		out.say(detailsPrompt(s.Draft.Service), KeyboardNavigation)

	case PhaseCollectingDetails:
		if value == "" {
			out.say(BlankDetailsText, KeyboardNavigation)
			return out
		}
		return d.finalize(ctx, s, value, requester)

	default:
		// Idle и выбор услуги: текст вместо кнопки
		out.say(RemindServiceText, KeyboardServices)
	}
	return out
}

func detailsPrompt(service *domain.Service) string {
	if service == nil || strings.TrimSpace(service.DetailsPrompt) == "" {
		return GenericDetailsText
	}
	return service.DetailsPrompt
}

func (d *Dialog) finalize(ctx context.Context, s *Session, details string, requester domain.Requester) Outcome {
	var out Outcome
	if s.Draft.Service == nil {
		// сессия потеряла выбранную услугу — начинаем заново
		s.reset(PhaseChoosingService)
		out.say(RemindServiceText, KeyboardServices)
		return out
	}

	lead, err := domain.NewLead(d.now(), *s.Draft.Service, s.Draft.Name, s.Draft.City, s.Draft.Contact, details, requester)
	if err != nil {
		d.logger.Error("lead build failed", "error", err)
		s.reset(PhaseChoosingService)
		out.say(RemindServiceText, KeyboardServices)
		return out
	}

	if err := d.leads.Append(ctx, lead); err != nil {
		d.logger.Error("lead save failed", "requester_id", requester.ID, "error", err)
	} else {
		d.logger.Info("lead saved", "requester_id", requester.ID, "service", lead.Service)
	}

	summary := FormatLeadSummary(lead, true)
	out.say(summary+"\n\n"+ThankYouText, KeyboardNone)

	if d.operatorID != 0 && d.operator != nil {
		if err := d.operator.SendText(d.operatorID, summary); err != nil {
			d.logger.Error("forward lead to operator failed", "operator_id", d.operatorID, "error", err)
		}
	}

	s.reset(PhaseIdle)
	out.say(StartAgainText, KeyboardNone)
	out.Lead = &lead
	return out
}

func (d *Dialog) recentLeads(ctx context.Context, requester domain.Requester) Outcome {
	var out Outcome
	if !d.IsOperator(requester) {
		out.say(OperatorOnlyText, KeyboardNone)
		return out
	}

	leads, err := d.leads.LastN(ctx, RecentLeadsLimit)
	if err != nil {
		d.logger.Error("load leads failed", "error", err)
		leads = nil
	}
	if len(leads) == 0 {
		out.say(NoLeadsText, KeyboardNone)
		return out
	}

	out.say(RecentLeadsText, KeyboardNone)
	for _, chunk := range FormatLeadsForAdmin(leads) {
		out.say(chunk, KeyboardNone)
	}
	return out
}
