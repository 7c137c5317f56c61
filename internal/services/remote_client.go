package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/config"
	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/models"
	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/observability"
)

const maxResponseBytes = 10 << 20

// RemoteService is the hosted data service the gateway and the sync engine write to
type RemoteService interface {
	Insert(ctx context.Context, table string, row models.Row) (models.Row, error)
	Update(ctx context.Context, table string, row models.Row, conditions models.Conditions) ([]models.Row, error)
	Delete(ctx context.Context, table string, conditions models.Conditions) ([]models.Row, error)
	Select(ctx context.Context, table, columns string, conditions models.Conditions) ([]models.Row, error)
}

// RemoteError is an error response from the remote service
type RemoteError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *RemoteError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("remote %d (%s): %s", e.Status, e.Code, msg)
	}
	return fmt.Sprintf("remote %d: %s", e.Status, msg)
}

// RemoteClient talks to a PostgREST endpoint such as Supabase's /rest/v1
type RemoteClient struct {
	baseURL    string
	apiKey     string
	schema     string
	httpClient *http.Client
}

// NewRemoteClient creates a client authenticated with the configured credentials.
// Client credentials take precedence over a static access token; without either
// the API key doubles as the bearer token, as anonymous Supabase clients do.
func NewRemoteClient(ctx context.Context, cfg config.Remote) (*RemoteClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("remote.url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid remote.url: %w", err)
	}

	baseClient := &http.Client{Timeout: cfg.Timeout()}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, baseClient)

	var httpClient *http.Client
	switch {
	case cfg.UsesClientCredentials():
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		httpClient = cc.Client(ctx)
	case cfg.AccessToken != "":
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken}))
	case cfg.APIKey != "":
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey}))
	default:
		httpClient = baseClient
	}
	httpClient.Timeout = cfg.Timeout()

	return &RemoteClient{
		baseURL:    base.String(),
		apiKey:     cfg.APIKey,
		schema:     cfg.Schema,
		httpClient: httpClient,
	}, nil
}

// Insert creates one row and returns it as stored by the remote service
func (c *RemoteClient) Insert(ctx context.Context, table string, row models.Row) (models.Row, error) {
	var out models.Row
	err := c.do(ctx, http.MethodPost, table, nil, row, "application/vnd.pgrst.object+json", &out)
	return out, err
}

// Update changes the rows matching conditions and returns them
func (c *RemoteClient) Update(ctx context.Context, table string, row models.Row, conditions models.Conditions) ([]models.Row, error) {
	out := []models.Row{}
	err := c.do(ctx, http.MethodPatch, table, filterQuery(conditions), row, "application/json", &out)
	return out, err
}

// Delete removes the rows matching conditions and returns them
func (c *RemoteClient) Delete(ctx context.Context, table string, conditions models.Conditions) ([]models.Row, error) {
	out := []models.Row{}
	err := c.do(ctx, http.MethodDelete, table, filterQuery(conditions), nil, "application/json", &out)
	return out, err
}

// Select reads rows. An empty columns list selects every column.
func (c *RemoteClient) Select(ctx context.Context, table, columns string, conditions models.Conditions) ([]models.Row, error) {
	q := filterQuery(conditions)
	if columns == "" {
		columns = "*"
	}
	q.Set("select", columns)

	out := []models.Row{}
	err := c.do(ctx, http.MethodGet, table, q, nil, "application/json", &out)
	return out, err
}

// Ping reports whether the remote endpoint answers at all. Any HTTP response counts.
func (c *RemoteClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rest/v1/", nil)
	if err != nil {
		return err
	}
	c.setHeaders(req, http.MethodGet, "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	resp.Body.Close()
	return nil
}

func (c *RemoteClient) do(ctx context.Context, method, table string, query url.Values, body interface{}, accept string, out interface{}) error {
	ctx, span := observability.StartRemoteSpan(ctx, method, table)
	defer span.End()

	endpoint := c.baseURL + "/rest/v1/" + url.PathEscape(table)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			observability.RecordError(span, err)
			return fmt.Errorf("failed to encode %s body: %w", table, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		observability.RecordError(span, err)
		return err
	}
	c.setHeaders(req, method, accept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.RecordError(span, err)
		return fmt.Errorf("%s %s: %w", method, table, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		observability.RecordError(span, err)
		return fmt.Errorf("failed to read %s response: %w", table, err)
	}

	if resp.StatusCode >= 400 {
		remoteErr := parseRemoteError(resp.StatusCode, data)
		observability.RecordError(span, remoteErr)
		return remoteErr
	}

	observability.SetSuccess(span)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", table, err)
	}
	return nil
}

func (c *RemoteClient) setHeaders(req *http.Request, method, accept string) {
	req.Header.Set("Accept", accept)
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if method == http.MethodGet {
		if c.schema != "" {
			req.Header.Set("Accept-Profile", c.schema)
		}
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")
	if c.schema != "" {
		req.Header.Set("Content-Profile", c.schema)
	}
}

func parseRemoteError(status int, body []byte) *RemoteError {
	remoteErr := &RemoteError{}
	if err := json.Unmarshal(body, remoteErr); err != nil || remoteErr.Message == "" {
		remoteErr = &RemoteError{Message: strings.TrimSpace(string(body))}
	}
	remoteErr.Status = status
	return remoteErr
}

// filterQuery renders equality conditions as PostgREST filters: col=eq.value, col=is.null
func filterQuery(conditions models.Conditions) url.Values {
	q := url.Values{}
	keys := make([]string, 0, len(conditions))
	for k := range conditions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := conditions[k]
		if v == nil {
			q.Add(k, "is.null")
			continue
		}
		q.Add(k, "eq."+formatFilterValue(v))
	}
	return q
}

func formatFilterValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
