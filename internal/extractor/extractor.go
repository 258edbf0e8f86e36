// Package extractor turns free-text bank notification emails into
// webhook-shaped records using a Gemini model.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/punchamoorthee/bankfeed/internal/domain"
	"github.com/punchamoorthee/bankfeed/internal/logging"
	"github.com/punchamoorthee/bankfeed/internal/models"
	"github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

const (
	DefaultModel   = "gemini-2.0-flash"
	DefaultTimeout = 30 * time.Second

	// descriptionLimit bounds the email excerpt kept when the model gives no description.
	descriptionLimit = 500
)

// Extractor pulls structured transaction fields out of an email.
type Extractor interface {
	Extract(ctx context.Context, msg models.EmailMessage) (models.WebhookPayload, error)
}

// generator is the slice of the genai client the extractor needs.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type GeminiExtractor struct {
	models  generator
	model   string
	timeout time.Duration
	log     logrus.FieldLogger
}

// NewGeminiExtractor creates a Gemini API client for apiKey.
func NewGeminiExtractor(ctx context.Context, apiKey, model string, timeout time.Duration, log logrus.FieldLogger) (*GeminiExtractor, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newGeminiExtractor(client.Models, model, timeout, log), nil
}

func newGeminiExtractor(g generator, model string, timeout time.Duration, log logrus.FieldLogger) *GeminiExtractor {
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &GeminiExtractor{
		models:  g,
		model:   model,
		timeout: timeout,
		log:     log.WithField(logging.FieldComponent, "extractor"),
	}
}

func (e *GeminiExtractor) Extract(ctx context.Context, msg models.EmailMessage) (models.WebhookPayload, error) {
	body := FixMojibake(msg.Body)
	subject := FixMojibake(msg.Subject)
	if strings.TrimSpace(body) == "" {
		return models.WebhookPayload{}, fmt.Errorf("%w: empty email body", domain.ErrExtraction)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	resp, err := e.models.GenerateContent(ctx, e.model, genai.Text(buildPrompt(subject, body)),
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			Temperature:      genai.Ptr[float32](0),
		})
	if err != nil {
		return models.WebhookPayload{}, fmt.Errorf("%w: generate content: %v", domain.ErrExtraction, err)
	}

	record, err := ParseResponse(resp.Text(), body)
	if err != nil {
		e.log.WithError(err).WithField("from", msg.From).Warn("Email could not be extracted")
		return models.WebhookPayload{}, err
	}

	e.log.WithFields(logrus.Fields{
		"from":                msg.From,
		logging.FieldDuration: time.Since(start).Milliseconds(),
	}).Info("Email extracted")
	return record, nil
}

// ParseResponse decodes the model output into a record. body supplies the
// default description when the model returns none.
func ParseResponse(text, body string) (models.WebhookPayload, error) {
	clean := cleanModelJSON(text)
	if clean == "" {
		return models.WebhookPayload{}, fmt.Errorf("%w: empty model response", domain.ErrExtraction)
	}

	var probe struct {
		Error *string `json:"error"`
	}
	if err := json.Unmarshal([]byte(clean), &probe); err != nil {
		return models.WebhookPayload{}, fmt.Errorf("%w: response is not a JSON object: %v", domain.ErrExtraction, err)
	}
	if probe.Error != nil {
		return models.WebhookPayload{}, fmt.Errorf("%w: %s", domain.ErrExtraction, *probe.Error)
	}

	var record models.WebhookPayload
	if err := json.Unmarshal([]byte(clean), &record); err != nil {
		return models.WebhookPayload{}, fmt.Errorf("%w: decode record: %v", domain.ErrExtraction, err)
	}
	if record.Description == nil {
		excerpt := truncateRunes(strings.TrimSpace(body), descriptionLimit)
		record.Description = &excerpt
	}
	return record, nil
}

// cleanModelJSON strips Markdown fences and any text around the outer object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	return s
}

func buildPrompt(subject, body string) string {
	return "You extract bank transaction data from notification emails.\n" +
		"Return ONLY a JSON object with these fields:\n" +
		"- gateway: bank name (Vietcombank, MB, BIDV, Techcombank, VPBank, ACB, Cake, ...)\n" +
		"- transactionDate: \"YYYY-MM-DD HH:MM:SS\"\n" +
		"- accountNumber: the account the email is about, or null\n" +
		"- content: the transaction description\n" +
		"- transferType: \"in\" for money received, \"out\" for money spent\n" +
		"- transferAmount: a number without currency symbols or separators\n" +
		"- accumulated: balance after the transaction, or null\n" +
		"- receiver: receiver name or account for outgoing transfers, or null\n" +
		"If the email is not a bank transaction, return {\"error\": \"<reason>\"}.\n\n" +
		"Subject: " + subject + "\n\n" +
		"Email:\n" + body + "\n"
}
