package serp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Alyfish/spacestest-v0-mvp/internal/capabilities"
	"github.com/Alyfish/spacestest-v0-mvp/internal/projects/domain"
)

const (
	defaultBaseURL = "https://serpapi.com"
	DefaultTimeout = 30 * time.Second
	maxResults     = 10
)

// Client searches Google Shopping through SerpAPI. It implements
// capabilities.ProductSearcher.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func New(baseURL, apiKey string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
}

type shoppingResult struct {
	Title          string   `json:"title"`
	Link           string   `json:"link"`
	ProductLink    string   `json:"product_link"`
	Source         string   `json:"source"`
	Price          string   `json:"price"`
	ExtractedPrice *float64 `json:"extracted_price"`
	Thumbnail      string   `json:"thumbnail"`
}

type organicResult struct {
	Title         string `json:"title"`
	Link          string `json:"link"`
	DisplayedLink string `json:"displayed_link"`
}

type searchResponse struct {
	Error           string           `json:"error"`
	ShoppingResults []shoppingResult `json:"shopping_results"`
	OrganicResults  []organicResult  `json:"organic_results"`
}

// Search implements capabilities.ProductSearcher. Organic results stand in
// when the shopping vertical is empty and are marked as non-product pages.
func (c *Client) Search(ctx context.Context, query string) ([]domain.Product, error) {
	if c.apiKey == "" {
		return nil, capabilities.Unconfigured(capabilities.PortProducts)
	}
	q := url.Values{}
	q.Set("engine", "google")
	q.Set("tbm", "shop")
	q.Set("q", query)
	q.Set("num", fmt.Sprint(maxResults))
	q.Set("hl", "en")
	q.Set("gl", "us")
	q.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search.json?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, capabilities.Wrap(capabilities.PortProducts, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, capabilities.Wrap(capabilities.PortProducts, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, capabilities.FromStatus(capabilities.PortProducts, resp.StatusCode, string(raw))
	}

	var sr searchResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return nil, &capabilities.CapabilityError{Kind: capabilities.KindMalformedResponse, Port: capabilities.PortProducts, Message: "decode search response", Err: err}
	}
	if sr.Error != "" {
		// SerpAPI reports "no results" as an error string.
		if strings.Contains(strings.ToLower(sr.Error), "hasn't returned any results") {
			return []domain.Product{}, nil
		}
		return nil, &capabilities.CapabilityError{Kind: capabilities.KindUpstream, Port: capabilities.PortProducts, Message: sr.Error}
	}

	out := make([]domain.Product, 0, len(sr.ShoppingResults))
	for _, r := range sr.ShoppingResults {
		link := retailerURL(r)
		if link == "" {
			continue
		}
		out = append(out, domain.Product{
			Title:         r.Title,
			URL:           link,
			ImageURL:      r.Thumbnail,
			Store:         r.Source,
			Price:         r.ExtractedPrice,
			PriceText:     r.Price,
			Source:        "serpapi",
			IsProductPage: true,
		})
	}
	if len(out) == 0 {
		for _, r := range sr.OrganicResults {
			if r.Link == "" {
				continue
			}
			out = append(out, domain.Product{
				Title:  r.Title,
				URL:    r.Link,
				Store:  r.DisplayedLink,
				Source: "serpapi",
			})
		}
	}
	return out, nil
}

// retailerURL prefers the direct merchant link over the Google Shopping page.
func retailerURL(r shoppingResult) string {
	if r.Link != "" && !strings.HasPrefix(r.Link, "https://www.google.com/shopping") {
		return r.Link
	}
	return r.ProductLink
}
