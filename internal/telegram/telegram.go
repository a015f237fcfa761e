package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"estatehub/server/config"
	"estatehub/server/internal/models"
)

// maxDigestLines caps the number of leads listed in one digest message
const maxDigestLines = 20

type Service struct {
	logger  *logrus.Logger
	client  *http.Client
	config  config.TelegramConfig
	filters *models.NotificationFilters
}

func NewService(cfg config.TelegramConfig, logger *logrus.Logger) (*Service, error) {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Service{
		logger: logger,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		config: cfg,
	}
	if cfg.FiltersFile != "" {
		filters, err := LoadFilters(cfg.FiltersFile)
		if err != nil {
			return nil, err
		}
		s.filters = filters
	}
	return s, nil
}

// LoadFilters reads lead notification filters from a YAML file
func LoadFilters(path string) (*models.NotificationFilters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read notification filters: %w", err)
	}
	var filters models.NotificationFilters
	if err := yaml.Unmarshal(data, &filters); err != nil {
		return nil, fmt.Errorf("failed to parse notification filters: %w", err)
	}
	for _, src := range filters.Sources {
		if !src.Valid() {
			return nil, fmt.Errorf("unknown lead source %q in notification filters", src)
		}
	}
	if filters.MinPrice != nil && filters.MaxPrice != nil && *filters.MinPrice > *filters.MaxPrice {
		return nil, errors.New("notification filters: min_price is above max_price")
	}
	return &filters, nil
}

func (s *Service) SetFilters(filters *models.NotificationFilters) {
	s.filters = filters
}

func (s *Service) Enabled() bool {
	return s.config.Enabled
}

// SendMessage sends an HTML message to chatID, or to the configured chat when empty
func (s *Service) SendMessage(ctx context.Context, chatID, message string) error {
	if !s.config.Enabled {
		return nil
	}

	if s.config.BotToken == "" {
		return errors.New("telegram bot token is not configured")
	}
	if chatID == "" {
		chatID = s.config.ChatID
	}
	if chatID == "" {
		return errors.New("telegram chat ID is not configured")
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(s.config.APIBase, "/"), s.config.BotToken)
	payload := map[string]any{
		"chat_id":    chatID,
		"text":       message,
		"parse_mode": "HTML",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message to Telegram API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return errors.New("invalid bot token - please check your token from @BotFather")
		case http.StatusBadRequest:
			return fmt.Errorf("invalid chat ID or message format: %s", string(body))
		case http.StatusForbidden:
			return errors.New("bot was blocked by the user or chat")
		case http.StatusNotFound:
			return errors.New("bot not found - please check your token from @BotFather")
		default:
			return fmt.Errorf("telegram API error (status %d): %s", resp.StatusCode, string(body))
		}
	}

	return nil
}

// NotifyNewLead announces an inquiry. Leads rejected by the filters are
// silently ignored. The agency chat wins over the configured default.
func (s *Service) NotifyNewLead(ctx context.Context, lead *models.Lead, property *models.Property, agency *models.Agency) error {
	if !s.config.Enabled {
		return nil
	}
	if !s.filters.IsLeadAllowed(lead, property) {
		s.logger.WithField("lead_id", lead.ID).Debug("Lead filtered out of Telegram notifications")
		return nil
	}

	chatID := ""
	if agency != nil {
		chatID = agency.TelegramChatID
	}
	return s.SendMessage(ctx, chatID, formatLead(lead, property))
}

func formatLead(lead *models.Lead, property *models.Property) string {
	var b strings.Builder
	b.WriteString("<b>New lead!</b>\n\n")
	fmt.Fprintf(&b, "👤 %s\n", html.EscapeString(lead.Name))
	if lead.Email != "" {
		fmt.Fprintf(&b, "📧 %s\n", html.EscapeString(lead.Email))
	}
	if lead.Phone != "" {
		fmt.Fprintf(&b, "📞 %s\n", html.EscapeString(lead.Phone))
	}
	fmt.Fprintf(&b, "📣 %s\n", lead.Source)
	if lead.Budget != nil {
		fmt.Fprintf(&b, "💶 Budget €%.0f\n", *lead.Budget)
	}

	if property != nil {
		fmt.Fprintf(&b, "\n🏠 %s\n", html.EscapeString(property.Title))
		if property.City != "" {
			fmt.Fprintf(&b, "📍 %s\n", html.EscapeString(property.City))
		}
		fmt.Fprintf(&b, "💰 €%.0f\n", property.Price)
		if ppsqm := property.PricePerSqm(); ppsqm > 0 {
			fmt.Fprintf(&b, "📐 €%.0f/m²\n", ppsqm)
		}
	}
	if lead.Notes != "" {
		fmt.Fprintf(&b, "\n💬 %s", html.EscapeString(lead.Notes))
	}
	return strings.TrimRight(b.String(), "\n")
}

// NotifyStaleLeads sends one digest of leads still waiting for a first contact.
func (s *Service) NotifyStaleLeads(ctx context.Context, leads []models.Lead, now time.Time) error {
	if !s.config.Enabled || len(leads) == 0 {
		return nil
	}
	return s.SendMessage(ctx, "", formatDigest(leads, now))
}

func formatDigest(leads []models.Lead, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>⏰ %d leads waiting for follow-up</b>\n", len(leads))
	for i, lead := range leads {
		if i == maxDigestLines {
			fmt.Fprintf(&b, "\n… and %d more", len(leads)-maxDigestLines)
			break
		}
		hours := int(now.Sub(lead.CreatedAt).Hours())
		fmt.Fprintf(&b, "\n• %s (%s, %dh)", html.EscapeString(lead.Name), lead.Source, hours)
	}
	return b.String()
}
