package macrocrm

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"autolead-telegram-bot/internal/domain"
)

// Client отправляет лиды в MacroCRM (SberCRM)
type Client struct {
	// Базовый хост API, по умолчанию https://api.macro.sbercrm.com
	BaseURL    string
	Domain     string
	AppSecret  string
	Action     string
	HTTPClient *http.Client
	now        func() time.Time
}

func NewClient(domain, appSecret string, opts ...func(*Client)) *Client {
	c := &Client{
		BaseURL:    "https://api.macro.sbercrm.com",
		Domain:     domain,
		AppSecret:  appSecret,
		Action:     "question",
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func WithBaseURL(baseURL string) func(*Client) {
	return func(c *Client) {
		if strings.TrimSpace(baseURL) != "" {
			c.BaseURL = baseURL
		}
	}
}

func WithAction(action string) func(*Client) {
	return func(c *Client) {
		if strings.TrimSpace(action) != "" {
			c.Action = action
		}
	}
}

func WithHTTPClient(hc *http.Client) func(*Client) {
	return func(c *Client) {
		if hc != nil {
			c.HTTPClient = hc
		}
	}
}

// SendLead формирует запрос на создание заявки в MacroCRM.
// Контакт уходит в поле phone как есть: клиент мог оставить и телефон, и @ник.
func (c *Client) SendLead(ctx context.Context, lead domain.Lead) error {
	if c == nil {
		return errors.New("macrocrm client is nil")
	}
	if strings.TrimSpace(c.Domain) == "" || strings.TrimSpace(c.AppSecret) == "" {
		return errors.New("macrocrm domain/app_secret are not set")
	}
	if strings.TrimSpace(lead.Contact) == "" {
		return errors.New("lead contact is empty")
	}

	tsStr := strconv.FormatInt(c.now().Unix(), 10)
	token := md5Hex(c.Domain + tsStr + c.AppSecret)

	form := url.Values{}
	form.Set("domain", c.Domain)
	form.Set("time", tsStr)
	form.Set("token", token)
	form.Set("action", c.Action)

	form.Set("phone", lead.Contact)
	form.Set("name", lead.Name)
	form.Set("message", Message(lead))

	endpoint := strings.TrimRight(c.BaseURL, "/") + "/estate/request/"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// считаем успешным любой 2xx
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("macrocrm non-2xx: %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Message — текст заявки для CRM без HTML-разметки.
func Message(lead domain.Lead) string {
	return fmt.Sprintf("Заявка из Telegram\nУслуга: %s\nГород: %s\nДетали: %s", lead.Service, lead.City, lead.Details)
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
