package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"

	"github.com/Alyfish/spacestest-v0-mvp/internal/capabilities"
)

const (
	defaultBaseURL = "https://api.openai.com"

	// TextTimeout bounds structured completions.
	TextTimeout = 60 * time.Second
	// ImageTimeout bounds image generation, which routinely takes tens of
	// seconds.
	ImageTimeout = 3 * time.Minute

	systemDesigner = "You are an expert interior designer. Respond only with JSON matching the provided schema."
)

type Config struct {
	BaseURL     string
	APIKey      string
	TextModel   string
	VisionModel string
	ImageModel  string
	ImageSize   string
}

// Client talks to an OpenAI-compatible API. It implements TextReasoner,
// VisionAnalyzer and ImageGenerator.
type Client struct {
	cfg         Config
	textClient  *http.Client
	imageClient *http.Client
}

func New(cfg Config) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.TextModel
	}
	return &Client{
		cfg:         cfg,
		textClient:  &http.Client{Timeout: TextTimeout},
		imageClient: &http.Client{Timeout: ImageTimeout},
	}
}

type responsesRequest struct {
	Model string         `json:"model"`
	Input []inputMessage `json:"input"`
	Text  *responsesText `json:"text,omitempty"`
}

type inputMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type responsesText struct {
	Format map[string]any `json:"format"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Refusal string `json:"refusal,omitempty"`
}

func (r responsesResponse) outputText() string {
	var out strings.Builder
	for _, item := range r.Output {
		if item.Type != "message" || item.Role != "assistant" {
			continue
		}
		for _, c := range item.Content {
			if c.Type == "output_text" {
				out.WriteString(c.Text)
			}
		}
	}
	return out.String()
}

// Complete implements capabilities.TextReasoner.
func (c *Client) Complete(ctx context.Context, prompt string, schema capabilities.Schema) (capabilities.StructuredResult, error) {
	return c.structured(ctx, c.cfg.TextModel, prompt, schema, nil)
}

// Analyze implements capabilities.VisionAnalyzer.
func (c *Client) Analyze(ctx context.Context, image []byte, prompt string, schema capabilities.Schema, extra ...[]byte) (capabilities.StructuredResult, error) {
	images := make([][]byte, 0, 1+len(extra))
	images = append(images, image)
	images = append(images, extra...)
	return c.structured(ctx, c.cfg.VisionModel, prompt, schema, images)
}

func (c *Client) structured(ctx context.Context, model, prompt string, schema capabilities.Schema, images [][]byte) (capabilities.StructuredResult, error) {
	if c.cfg.APIKey == "" {
		return capabilities.StructuredResult{}, capabilities.Unconfigured("")
	}
	var content any = prompt
	if len(images) > 0 {
		parts := make([]map[string]any, 0, 1+len(images))
		parts = append(parts, map[string]any{"type": "input_text", "text": prompt})
		for _, img := range images {
			if len(img) == 0 {
				continue
			}
			parts = append(parts, map[string]any{"type": "input_image", "image_url": dataURL(img)})
		}
		content = parts
	}
	req := responsesRequest{
		Model: model,
		Input: []inputMessage{
			{Role: "system", Content: systemDesigner},
			{Role: "user", Content: content},
		},
		Text: &responsesText{Format: map[string]any{
			"type":   "json_schema",
			"name":   schema.Name,
			"schema": schema.Definition,
			"strict": true,
		}},
	}

	var resp responsesResponse
	if err := c.doJSON(ctx, c.textClient, "/v1/responses", req, &resp); err != nil {
		return capabilities.StructuredResult{}, err
	}
	if resp.Refusal != "" {
		return capabilities.StructuredResult{}, &capabilities.CapabilityError{Kind: capabilities.KindMalformedResponse, Message: "model refused: " + resp.Refusal}
	}
	raw, err := decodeObject(resp.outputText())
	if err != nil {
		return capabilities.StructuredResult{}, err
	}
	return capabilities.StructuredResult{Raw: raw}, nil
}

// decodeObject returns the model text as a JSON object, repairing the usual
// model slips (code fences, trailing commas, single quotes) when needed.
func decodeObject(text string) (json.RawMessage, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &capabilities.CapabilityError{Kind: capabilities.KindMalformedResponse, Message: "no output_text in response"}
	}
	if json.Valid([]byte(text)) {
		return json.RawMessage(text), nil
	}
	fixed, err := jsonrepair.JSONRepair(text)
	if err != nil || !json.Valid([]byte(fixed)) {
		return nil, &capabilities.CapabilityError{Kind: capabilities.KindMalformedResponse, Message: "model output is not JSON", Err: err}
	}
	return json.RawMessage(fixed), nil
}

type imagesResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// Generate implements capabilities.ImageGenerator. With reference images it
// uses the edits endpoint so the output keeps the room's geometry.
func (c *Client) Generate(ctx context.Context, prompt string, refs [][]byte) ([]byte, error) {
	if c.cfg.APIKey == "" {
		return nil, capabilities.Unconfigured("")
	}
	var resp imagesResponse
	if len(refs) == 0 {
		req := map[string]any{"model": c.cfg.ImageModel, "prompt": prompt, "n": 1}
		if c.cfg.ImageSize != "" {
			req["size"] = c.cfg.ImageSize
		}
		if err := c.doJSON(ctx, c.imageClient, "/v1/images/generations", req, &resp); err != nil {
			return nil, err
		}
	} else {
		body, contentType, err := editsForm(c.cfg.ImageModel, c.cfg.ImageSize, prompt, refs)
		if err != nil {
			return nil, err
		}
		if err := c.do(ctx, c.imageClient, "/v1/images/edits", body, contentType, &resp); err != nil {
			return nil, err
		}
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, &capabilities.CapabilityError{Kind: capabilities.KindMalformedResponse, Message: "no image returned"}
	}
	img, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, &capabilities.CapabilityError{Kind: capabilities.KindMalformedResponse, Message: "decode image base64", Err: err}
	}
	return img, nil
}

func editsForm(model, size, prompt string, refs [][]byte) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("model", model)
	_ = w.WriteField("prompt", prompt)
	if size != "" {
		_ = w.WriteField("size", size)
	}
	for i, ref := range refs {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image[]"; filename="ref-%d.png"`, i))
		h.Set("Content-Type", http.DetectContentType(ref))
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(ref); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func (c *Client) doJSON(ctx context.Context, hc *http.Client, path string, body, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.do(ctx, hc, path, &buf, "application/json", out)
}

func (c *Client) do(ctx context.Context, hc *http.Client, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := hc.Do(req)
	if err != nil {
		return capabilities.Wrap("", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return capabilities.Wrap("", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return capabilities.FromStatus("", resp.StatusCode, string(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &capabilities.CapabilityError{Kind: capabilities.KindMalformedResponse, Message: "decode response", Err: err}
	}
	return nil
}

func dataURL(img []byte) string {
	return "data:" + http.DetectContentType(img) + ";base64," + base64.StdEncoding.EncodeToString(img)
}
