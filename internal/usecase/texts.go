package usecase

import "autolead-telegram-bot/internal/domain"

// Тексты диалога. HTML-разметка рассчитана на ParseMode HTML в Telegram.

const (
	GreetingText = "<b>Привет!</b> Я помогу оформить заявку на: \n" +
		"• привоз авто из Азии под ключ 🚗\n" +
		"• тюнинг и доработку 🛠\n" +
		"• резину и расходники 🛞\n" +
		"• детейлинг и подготовку ✨\n\n" +
		"Выберите подходящую услугу кнопкой ниже. Это займёт 1–2 минуты, и мы сразу приступим к расчёту."

	ServiceConfirmedText = "Отлично, фиксирую услугу: <b>%s</b>.\n" +
		"Сейчас спрошу пару деталей, чтобы передать вашу задачу специалисту.\n\n" +
		"Как к вам обращаться?"

	ThankYouText = "<b>Спасибо!</b> Заявка отправлена нашему специалисту.\n" +
		"Обычно отвечаем в рабочие часы в течение <b>10–30 минут</b>."

	RemindServiceText   = "Пожалуйста, выберите услугу кнопкой ниже, чтобы я понял ваш запрос."
	UnknownServiceText  = "Не удалось определить услугу. Пожалуйста, выберите вариант из списка."
	BackToServicesText  = "Давайте подберём услугу заново. Что вас интересует?"
	CancelCommandText   = "Сценарий сброшен. Когда будете готовы начать заново — нажмите /start."
	CancelActionText    = "Сценарий остановлен. Когда захотите — нажмите /start, чтобы начать заново."
	AskCityText         = "Из какого вы города?"
	AskContactText      = "Оставьте контакт для связи: телефон или @ник в Telegram."
	GenericDetailsText  = "Опишите ваш запрос подробнее, чтобы мы подготовили точный ответ."
	StartAgainText      = "Если захотите оформить ещё одну заявку — нажмите /start."
	BlankNameText       = "Пожалуйста, укажите, как к вам обращаться."
	BlankCityText       = "Напишите, пожалуйста, ваш город — это важно для логистики."
	BlankContactText    = "Нужен контакт, чтобы связаться: номер телефона или @ник в Telegram."
	BlankDetailsText    = "Добавьте, пожалуйста, детали запроса, чтобы мы быстро помогли."
	OperatorOnlyText    = "Команда доступна только администратору."
	NoLeadsText         = "Заявок пока нет."
	RecentLeadsText     = "Последние заявки:"
	NoticeServicesMenu  = "Меню услуг"
	NoticeDialogStopped = "Диалог остановлен"
)

// DefaultCatalog — каталог услуг автосервиса по умолчанию.
var DefaultCatalog = domain.Catalog{
	{
		Label: "🚗 Привезти авто под заказ",
		DetailsPrompt: "Опишите, что ищем: <b>марка/модель</b> или класс авто, <b>год</b>,\n" +
			"<b>ориентировочный бюджет</b> и приоритеты (надёжность, комфорт, свежий год и т.п.).",
	},
	{
		Label: "🛠 Тюнинг / доработка авто",
		DetailsPrompt: "Расскажите о машине (марка/модель/год) и что доработать: <b>диски</b>, <b>обвес</b>," +
			" <b>оптика</b>, <b>салон</b>, техника, ориентировочный бюджет и сроки.",
	},
	{
		Label: "🛞 Резина и расходники",
		DetailsPrompt: "Укажите авто (марка/модель/год) и что нужно: резина (лето/зима/всесезон)," +
			" колодки, фильтры и т.п. Нужна установка или только поставка?",
	},
	{
		Label: "✨ Детейлинг / подготовка авто",
		DetailsPrompt: "Опишите авто (марка/модель/цвет/год) и задачи: мойка, химчистка, полировка," +
			" защитные покрытия, подготовка к продаже. Когда желательно выполнить?",
	},
	{
		Label:         "💬 Просто консультация",
		DetailsPrompt: "Напишите ваш вопрос или ситуацию в свободной форме, мы подскажем, как лучше поступить.",
	},
}
