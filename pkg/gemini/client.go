package gemini

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/menta2k/spatial-understanding/pkg/client"
)

// BackendName is persisted as the backend of Gemini predictions
const BackendName = "gemini"

// Client wraps the Gemini generative AI client
type Client struct {
	client  *genai.Client
	timeout time.Duration
}

// NewClient creates a Gemini client authenticated with apiKey
func NewClient(ctx context.Context, apiKey string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	c, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{client: c, timeout: 120 * time.Second}, nil
}

// Close releases the underlying connection
func (c *Client) Close() error {
	return c.client.Close()
}

// Name implements client.VisionClient
func (c *Client) Name() string {
	return BackendName
}

func (c *Client) model(name string, temperature float64) *genai.GenerativeModel {
	m := c.client.GenerativeModel(name)
	m.SetTemperature(float32(temperature))
	return m
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func parts(req client.QueryRequest) []genai.Part {
	return []genai.Part{
		genai.Blob{MIMEType: req.Image.MIMEType, Data: req.Image.Data},
		genai.Text(req.Prompt),
	}
}

// Query sends the image and prompt and returns the concatenated text parts
func (c *Client) Query(ctx context.Context, req client.QueryRequest) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.model(req.Model, req.Temperature).GenerateContent(ctx, parts(req)...)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	text := ResponseText(resp)
	if text == "" {
		return "", client.ErrEmptyResponse
	}
	return text, nil
}

// CallTool forces a call of the detection tool and returns its detections argument
func (c *Client) CallTool(ctx context.Context, req client.ToolRequest) ([]map[string]any, error) {
	tool, err := ToolFor(req.DetectType)
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	m := c.model(req.Model, req.Temperature)
	m.Tools = []*genai.Tool{tool}
	m.ToolConfig = &genai.ToolConfig{
		FunctionCallingConfig: &genai.FunctionCallingConfig{
			Mode:                 genai.FunctionCallingAny,
			AllowedFunctionNames: []string{tool.FunctionDeclarations[0].Name},
		},
	}

	resp, err := m.GenerateContent(ctx, parts(req.QueryRequest)...)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}
	return DetectionsFromResponse(resp)
}

// ResponseText joins the text parts of the first candidate
func ResponseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		if t, ok := p.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String()
}

// DetectionsFromResponse extracts the "detections" list of the first function call
func DetectionsFromResponse(resp *genai.GenerateContentResponse) ([]map[string]any, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, client.ErrNoFunctionCall
	}
	cand := resp.Candidates[0]
	log.Printf("gemini: candidate finish_reason=%v", cand.FinishReason)
	if cand.Content == nil {
		return nil, client.ErrNoFunctionCall
	}

	for i, p := range cand.Content.Parts {
		var call *genai.FunctionCall
		switch v := p.(type) {
		case genai.FunctionCall:
			call = &v
		case *genai.FunctionCall:
			call = v
		case genai.Text:
			log.Printf("gemini: part %d is text: %.100s", i, string(v))
			continue
		default:
			continue
		}
		log.Printf("gemini: function call %s", call.Name)
		return detectionsArg(call.Args)
	}
	return nil, client.ErrNoFunctionCall
}

func detectionsArg(args map[string]any) ([]map[string]any, error) {
	raw, ok := args["detections"]
	if !ok {
		return []map[string]any{}, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("detections argument has type %T, want list", raw)
	}
	out := make([]map[string]any, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("detection %d has type %T, want object", i, item)
		}
		out = append(out, m)
	}
	return out, nil
}
