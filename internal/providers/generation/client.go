package generation

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pipeline/internal/domain"
	"pipeline/internal/infra"
)

// Options controls how the generation client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client is a lightweight facade over the generation provider's HTTP API.
// Without an API key it produces deterministic synthetic assets so the rest
// of the pipeline (persistence, uploads, events) stays fully exercisable in
// local and CI environments.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

// NewClient constructs a generation client with sane defaults. A nil HTTP
// client is replaced with a reusable one with a sensible timeout.
func NewClient(opts Options) (*Client, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.generation.local/v1"
	}

	model := opts.Model
	if model == "" {
		model = "studio-image-2"
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: client,
		logger:     logger,
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

type moderationRequest struct {
	Text string `json:"text"`
}

type moderationResponse struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// Moderate screens prompt text. Without an API key a small deny-list keeps
// the rejection path exercisable offline.
func (c *Client) Moderate(ctx context.Context, text string) (domain.Moderation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Moderation{}, err
	}
	if c.apiKey == "" {
		return syntheticModeration(text), nil
	}
	var resp moderationResponse
	if err := c.invoke(ctx, "/moderations", moderationRequest{Text: text}, &resp); err != nil {
		return domain.Moderation{}, domain.Transient("moderate prompt", err)
	}
	return domain.Moderation{Approved: resp.Approved, Reason: resp.Reason}, nil
}

type generateAPIRequest struct {
	Model    string   `json:"model"`
	Prompt   string   `json:"prompt"`
	Width    int      `json:"width,omitempty"`
	Height   int      `json:"height,omitempty"`
	Variants int      `json:"variants,omitempty"`
	Stage    string   `json:"stage,omitempty"`
	Quality  string   `json:"quality,omitempty"`
	BrandID  string   `json:"brandId,omitempty"`
	Effects  []string `json:"effects,omitempty"`
}

type generateAPIResponse struct {
	Images []struct {
		Data   string `json:"data"`
		Format string `json:"format,omitempty"`
		Width  int    `json:"width,omitempty"`
		Height int    `json:"height,omitempty"`
	} `json:"images"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Credits  float64           `json:"credits,omitempty"`
}

type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// Generate produces imagery per the given strategy. Provider and network
// failures surface as transient errors so the queue's retry policy applies.
func (c *Client) Generate(ctx context.Context, req GenerateRequest, strategy Strategy, brandID string) (*GenerateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.apiKey == "" {
		return c.syntheticResult(req, strategy), nil
	}

	payload := generateAPIRequest{
		Model:    c.modelFor(strategy),
		Prompt:   req.Prompt,
		Width:    req.Width,
		Height:   req.Height,
		Variants: strategy.Variants,
		Stage:    string(strategy.Stage),
		Quality:  string(strategy.Quality),
		BrandID:  brandID,
		Effects:  req.Effects,
	}
	var resp generateAPIResponse
	if err := c.invoke(ctx, "/images/generations", payload, &resp); err != nil {
		return nil, domain.Transient("generate image", err)
	}

	result := &GenerateResult{
		Metadata: resp.Metadata,
		Costs:    domain.GenerationCosts{Credits: resp.Credits, Provider: payload.Model},
	}
	for _, img := range resp.Images {
		data, err := base64.StdEncoding.DecodeString(img.Data)
		if err != nil || len(data) == 0 {
			continue
		}
		format := img.Format
		if format == "" {
			format = "image/png"
		}
		result.Images = append(result.Images, domain.GeneratedImage{
			Data:   data,
			Format: format,
			Width:  img.Width,
			Height: img.Height,
		})
	}
	if len(result.Images) == 0 {
		return nil, domain.Transient("generate image", fmt.Errorf("provider returned no images"))
	}
	return result, nil
}

func (c *Client) modelFor(strategy Strategy) string {
	if strategy.Provider != "" {
		return strategy.Provider
	}
	if strategy.Stage == StagePreview {
		return c.model + "-fast"
	}
	return c.model
}

func (c *Client) invoke(ctx context.Context, path string, payload any, out any) error {
	endpoint := c.baseURL + path
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("provider status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		data, _ := io.ReadAll(resp.Body)
		if len(data) > 0 {
			return fmt.Errorf("provider status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return fmt.Errorf("provider status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}

func (c *Client) syntheticResult(req GenerateRequest, strategy Strategy) *GenerateResult {
	variants := strategy.Variants
	if variants <= 0 {
		variants = 1
	}
	width, height := req.Width, req.Height
	if width <= 0 {
		width = 1024
	}
	if height <= 0 {
		height = 1024
	}

	result := &GenerateResult{
		Metadata: map[string]string{
			"model": c.modelFor(strategy),
			"stage": string(strategy.Stage),
			"mode":  "synthetic",
		},
		Costs: domain.GenerationCosts{Credits: 0, Provider: c.modelFor(strategy)},
	}
	for i := 0; i < variants; i++ {
		seed := deterministicSeed(req.RequestID, req.Prompt, string(strategy.Stage), i)
		result.Images = append(result.Images, domain.GeneratedImage{
			Data:   renderSyntheticImage(width, height, seed),
			Format: "image/png",
			Width:  width,
			Height: height,
		})
	}

	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("model", c.modelFor(strategy)).
		Int("variants", variants).
		Msg("generation: produced synthetic assets")

	return result
}

var deniedTerms = []string{"counterfeit", "weapon", "gore"}

func syntheticModeration(text string) domain.Moderation {
	lowered := strings.ToLower(text)
	for _, term := range deniedTerms {
		if strings.Contains(lowered, term) {
			return domain.Moderation{Approved: false, Reason: fmt.Sprintf("prompt contains disallowed term %q", term)}
		}
	}
	return domain.Moderation{Approved: true}
}

func renderSyntheticImage(width, height int, seed string) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	base := colorFromSeed(seed, 0)
	accent := colorFromSeed(seed, 1)
	draw.Draw(img, img.Bounds(), &image.Uniform{base}, image.Point{}, draw.Src)

	stripeHeight := height / 12
	if stripeHeight < 32 {
		stripeHeight = 32
	}
	for y := 0; y < height; y += stripeHeight * 2 {
		bottom := y + stripeHeight
		if bottom > height {
			bottom = height
		}
		stripe := image.Rect(0, y, width, bottom)
		draw.Draw(img, stripe, &image.Uniform{accent}, image.Point{}, draw.Over)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

func colorFromSeed(seed string, shift int) color.RGBA {
	if len(seed) < 6 {
		seed = seed + "000000"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{R: hexByte(segment[0:2]), G: hexByte(segment[2:4]), B: hexByte(segment[4:6]), A: 255}
}

func hexByte(s string) uint8 {
	var v uint8
	for i := 0; i < len(s); i++ {
		v <<= 4
		switch {
		case s[i] >= '0' && s[i] <= '9':
			v |= s[i] - '0'
		case s[i] >= 'a' && s[i] <= 'f':
			v |= s[i] - 'a' + 10
		}
	}
	return v
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		fmt.Fprintf(hasher, "%v|", part)
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

var (
	_ Moderator = (*Client)(nil)
	_ Generator = (*Client)(nil)
)
