package extract

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the vision-model extraction engine.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Temperature float32
}

// OpenAIEngine implements Engine using a vision-capable chat model. The model
// is asked for a single JSON document matching RawExtraction; the typed
// boundary still revalidates everything it returns.
type OpenAIEngine struct {
	client *openai.Client
	config OpenAIConfig
}

func NewOpenAIEngine(config OpenAIConfig) (*OpenAIEngine, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	return &OpenAIEngine{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

const extractionPrompt = `You are reading a scanned insurance claim receipt.
Return ONE JSON object, nothing else, with this exact shape:
{
  "text_blocks": [{"text": "...", "confidence": 0.0}],
  "fields": {
    "member_id": "string",
    "total_amount": 0.0,
    "service_date": "YYYY-MM-DD",
    "receipt_number": "string",
    "policy_number": "string",
    "provider_name": "string",
    "sst_amount": 0.0,
    "items": [{"description": "string", "amount": 0.0}]
  },
  "confidence": 0.0,
  "field_confidence": {"member_id": 0.0}
}
Omit any field you cannot read. confidence values are between 0 and 1 and
reflect how certain you are of each reading. Amounts are plain numbers.`

func (e *OpenAIEngine) Extract(ctx context.Context, file []byte, hint string) (RawExtraction, error) {
	mime := http.DetectContentType(file)
	if !strings.HasPrefix(mime, "image/") {
		return RawExtraction{}, &ExtractionError{
			Cause: fmt.Errorf("unsupported file type %s", mime),
		}
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(file))

	userText := extractionPrompt
	if hint != "" {
		userText += "\nSource hint: " + hint
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	resp, err := e.client.CreateChatCompletion(reqCtx, openai.ChatCompletionRequest{
		Model: e.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: userText},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: dataURL},
					},
				},
			},
		},
		Temperature: e.config.Temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return RawExtraction{}, &ExtractionError{Cause: fmt.Errorf("OpenAI API error: %w", err)}
	}
	if len(resp.Choices) == 0 {
		return RawExtraction{}, &ExtractionError{Cause: fmt.Errorf("no response from model")}
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	raw := RawExtraction{}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return RawExtraction{}, &ExtractionError{Cause: fmt.Errorf("decode model output: %w", err)}
	}
	return raw, nil
}
