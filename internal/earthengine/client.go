// Package earthengine is a minimal client for the Earth Engine REST API,
// covering dataset lookup and region reductions.
package earthengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/google"

	"github.com/forest-guardian/sundarbans-extraction/internal/extraction"
)

const (
	DefaultBaseURL = "https://earthengine.googleapis.com"
	Scope          = "https://www.googleapis.com/auth/earthengine.readonly"

	// publicProject hosts the public data catalog.
	publicProject = "earthengine-public"
)

type Config struct {
	BaseURL string
	// Project is the Cloud project billed for computations.
	Project string
	// CredentialsFile is a service account JSON key. When empty, and no
	// client credentials are set, application default credentials are used.
	CredentialsFile string
	// TokenURL, ClientID and ClientSecret switch to the OAuth2 client
	// credentials flow, for gateways that front the API.
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("earth engine returned %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("earth engine returned %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	project    string
	log        zerolog.Logger
}

var _ extraction.Service = (*Client)(nil)

// NewClient builds an authenticated client from cfg.
func NewClient(ctx context.Context, cfg Config, log zerolog.Logger) (*Client, error) {
	if cfg.Project == "" {
		return nil, fmt.Errorf("earth engine project is required")
	}

	httpClient, err := authenticatedClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout > 0 {
		httpClient.Timeout = cfg.Timeout
	}

	return NewClientWithHTTP(httpClient, cfg.BaseURL, cfg.Project, log), nil
}

// NewClientWithHTTP uses httpClient as is, which must already add
// credentials to requests.
func NewClientWithHTTP(httpClient *http.Client, baseURL, project string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		project:    project,
		log:        log.With().Str("component", "earthengine").Logger(),
	}
}

func authenticatedClient(ctx context.Context, cfg Config) (*http.Client, error) {
	if cfg.ClientID != "" || cfg.ClientSecret != "" {
		if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.TokenURL == "" {
			return nil, fmt.Errorf("client credentials need a client id, a client secret and a token url")
		}
		ccfg := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       []string{Scope},
		}
		return ccfg.Client(ctx), nil
	}

	if cfg.CredentialsFile != "" {
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, Scope)
		if err != nil {
			return nil, fmt.Errorf("failed to parse credentials file: %w", err)
		}
		return oauth2.NewClient(ctx, creds.TokenSource), nil
	}

	httpClient, err := google.DefaultClient(ctx, Scope)
	if err != nil {
		return nil, fmt.Errorf("failed to find default credentials: %w", err)
	}
	return httpClient, nil
}

// assetPath maps a catalog id such as MODIS/006/MOD13A2 to its REST name.
// Ids already starting with projects/ are used unchanged.
func assetPath(dataset string) string {
	if strings.HasPrefix(dataset, "projects/") {
		return dataset
	}
	return "projects/" + publicProject + "/assets/" + dataset
}

// Describe fetches the asset metadata of dataset.
func (c *Client) Describe(ctx context.Context, dataset string) error {
	endpoint := c.baseURL + "/v1/" + escapePath(assetPath(dataset))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	var asset struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}
	if err := c.do(req, &asset); err != nil {
		return err
	}
	c.log.Debug().Str("dataset", dataset).Str("type", asset.Type).Msg("dataset found")
	return nil
}

// Reduce evaluates the window composite reduction of req.
func (c *Client) Reduce(ctx context.Context, req extraction.ReduceRequest) (map[string]*float64, error) {
	expr, err := ReductionExpression(req)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]any{"expression": expr})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal expression: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/projects/%s/value:compute", c.baseURL, url.PathEscape(c.project))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	var out struct {
		Result map[string]*float64 `json:"result"`
	}
	if err := c.do(httpReq, &out); err != nil {
		return nil, err
	}
	c.log.Debug().
		Str("dataset", req.Dataset).
		Stringer("window", req.Window).
		Dur("elapsed", time.Since(start)).
		Msg("window reduced")

	if out.Result == nil {
		out.Result = map[string]*float64{}
	}
	return out.Result, nil
}

// ReductionExpression builds the graph: load, collection filters, window
// filter, mean composite, optional band selection, mean over the region.
func ReductionExpression(req extraction.ReduceRequest) (Expression, error) {
	reg, err := Geometry(req.Region)
	if err != nil {
		return Expression{}, fmt.Errorf("invalid reduction region: %w", err)
	}

	collection := FilterDate(LoadCollection(req.Dataset), req.Collection.Start, req.Collection.End)
	if req.CollectionRegion != nil {
		bounds, err := Geometry(req.CollectionRegion)
		if err != nil {
			return Expression{}, fmt.Errorf("invalid collection region: %w", err)
		}
		collection = FilterBounds(collection, bounds)
	}
	collection = FilterDate(collection, req.Window.Start, req.Window.End)

	image := Mean(collection)
	if req.Band != "" {
		image = Select(image, req.Band)
	}

	return NewExpression(ReduceRegionMean(image, reg, req.Scale, req.MaxPixels)), nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseAPIError(resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func parseAPIError(statusCode int, body []byte) error {
	apiErr := &APIError{StatusCode: statusCode}

	var payload struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		apiErr.Message = payload.Error.Message
		apiErr.Status = payload.Error.Status
		return apiErr
	}

	apiErr.Message = strings.TrimSpace(string(body))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(statusCode)
	}
	return apiErr
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
