package usecase

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"unicode/utf8"

	"autolead-telegram-bot/internal/domain"
)

// MaxChunkLen — лимит символов на одно сообщение админу (Telegram режет на 4096).
const MaxChunkLen = 3900

const chunkSeparator = "\n\n"

// FormatLeadSummary собирает карточку заявки для клиента или админа.
func FormatLeadSummary(lead domain.Lead, includeMeta bool) string {
	lines := []string{
		"<b>📍 Заявка оформлена</b>",
		"<b>Услуга:</b> " + orDash(lead.Service),
		"<b>Имя:</b> " + orDash(lead.Name),
		"<b>Город:</b> " + orDash(lead.City),
		"<b>Контакт:</b> " + orDash(lead.Contact),
		"",
		"<b>Детали запроса:</b>",
		orDash(lead.Details),
	}

	if includeMeta {
		lines = append(lines, "", "<i>Создано:</i> "+lead.CreatedAt.String())
		if lead.RequesterID != nil && *lead.RequesterID != 0 {
			lines = append(lines, "<i>Telegram ID:</i> "+strconv.FormatInt(*lead.RequesterID, 10))
		}
		if lead.RequesterHandle != "" {
			lines = append(lines, "<i>Username:</i> @"+html.EscapeString(lead.RequesterHandle))
		}
	}
	return strings.Join(lines, "\n")
}

// FormatLeadBlock — пронумерованный блок заявки для списка /leads.
func FormatLeadBlock(index int, lead domain.Lead) string {
	title := lead.Service
	if title == "" {
		title = "Заявка"
	}
	parts := []string{fmt.Sprintf("<b>%d. %s</b>", index, html.EscapeString(title))}
	if created := lead.CreatedAt.String(); created != "" {
		parts = append(parts, "<i>Создано:</i> "+created)
	}
	parts = append(parts, FormatLeadSummary(lead, false))
	return strings.Join(parts, "\n")
}

// FormatLeadsForAdmin раскладывает заявки по сообщениям не длиннее MaxChunkLen символов.
// Порядок сохраняется; один блок длиннее лимита не режется.
func FormatLeadsForAdmin(leads []domain.Lead) []string {
	blocks := make([]string, 0, len(leads))
	for i, lead := range leads {
		blocks = append(blocks, FormatLeadBlock(i+1, lead))
	}
	return PackChunks(blocks, MaxChunkLen)
}

// PackChunks жадно склеивает блоки через пустую строку, пока влезает в limit.
func PackChunks(blocks []string, limit int) []string {
	var (
		chunks  []string
		current strings.Builder
		size    int
	)
	sepLen := utf8.RuneCountInString(chunkSeparator)
	for _, block := range blocks {
		n := utf8.RuneCountInString(block)
		if size == 0 {
			current.WriteString(block)
			size = n
			continue
		}
		if size+sepLen+n > limit {
			chunks = append(chunks, current.String())
			current.Reset()
			current.WriteString(block)
			size = n
			continue
		}
		current.WriteString(chunkSeparator)
		current.WriteString(block)
		size += sepLen + n
	}
	if size > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "—"
	}
	return html.EscapeString(s)
}
