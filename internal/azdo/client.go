// Package azdo implements the authenticated, retrying REST client for the
// work-item tracking API consumed by the WorkBridge tools.
package azdo

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	"github.com/workbridge/workbridge/internal/telemetry"
)

const (
	// Resource scope for the work-tracking service when authenticating
	// through an Azure credential chain.
	tokenScope = "499b84ac-1321-427f-aa17-267ca6975798/.default"

	contentTypeJSON      = "application/json"
	contentTypeJSONPatch = "application/json-patch+json"

	// Hard cap on the number of items fetched by ListWorkItems. Bounds
	// batch-read request size and response latency.
	maxListItems = 50

	defaultMaxAttempts    = 3
	defaultInitialDelay   = time.Second
	defaultAttemptTimeout = 30 * time.Second
	defaultAPIVersion     = "7.1"
)

// Options configures a Client.
type Options struct {
	// OrganizationURL is the service root, e.g. https://dev.azure.com/acme.
	OrganizationURL string
	Project         string

	// PersonalAccessToken, when set, wins over the credential chain.
	PersonalAccessToken string
	// Credential overrides the default federated chain (managed identity,
	// then CLI, then developer CLI). Ignored when a PAT is configured.
	Credential azcore.TokenCredential

	APIVersion     string
	MaxAttempts    int
	InitialDelay   time.Duration
	AttemptTimeout time.Duration

	// HTTPClient is shared across all calls; pass one pooled client per
	// process. Defaults to a client without its own timeout (the
	// per-attempt timeout governs).
	HTTPClient *http.Client
}

// Client is safe for concurrent use. The cached auth header and the token
// refresh are serialized through a single mutex.
type Client struct {
	baseURL        string
	apiVersion     string
	pat            string
	cred           azcore.TokenCredential
	httpClient     *http.Client
	maxAttempts    int
	initialDelay   time.Duration
	attemptTimeout time.Duration

	mu         sync.Mutex
	authHeader string
	expiresOn  time.Time
}

func NewClient(opts Options) (*Client, error) {
	org := strings.TrimRight(strings.TrimSpace(opts.OrganizationURL), "/")
	if org == "" {
		return nil, fmt.Errorf("organization URL is required")
	}
	if _, err := url.ParseRequestURI(org); err != nil {
		return nil, fmt.Errorf("invalid organization URL %q: %w", opts.OrganizationURL, err)
	}
	project := strings.TrimSpace(opts.Project)
	if project == "" {
		return nil, fmt.Errorf("project is required")
	}

	c := &Client{
		baseURL:        org + "/" + url.PathEscape(project) + "/_apis/wit",
		apiVersion:     opts.APIVersion,
		pat:            strings.TrimSpace(opts.PersonalAccessToken),
		cred:           opts.Credential,
		httpClient:     opts.HTTPClient,
		maxAttempts:    opts.MaxAttempts,
		initialDelay:   opts.InitialDelay,
		attemptTimeout: opts.AttemptTimeout,
	}
	if c.apiVersion == "" {
		c.apiVersion = defaultAPIVersion
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxAttempts
	}
	if c.initialDelay <= 0 {
		c.initialDelay = defaultInitialDelay
	}
	if c.attemptTimeout <= 0 {
		c.attemptTimeout = defaultAttemptTimeout
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}

	if c.pat == "" && c.cred == nil {
		cred, err := defaultCredentialChain()
		if err != nil {
			return nil, fmt.Errorf("build credential chain: %w", err)
		}
		c.cred = cred
	}
	return c, nil
}

// defaultCredentialChain tries, in order: host-managed identity, the
// Azure CLI login, and the Azure Developer CLI login.
func defaultCredentialChain() (azcore.TokenCredential, error) {
	managed, err := azidentity.NewManagedIdentityCredential(nil)
	if err != nil {
		return nil, err
	}
	cli, err := azidentity.NewAzureCLICredential(nil)
	if err != nil {
		return nil, err
	}
	dev, err := azidentity.NewAzureDeveloperCLICredential(nil)
	if err != nil {
		return nil, err
	}
	return azidentity.NewChainedTokenCredential([]azcore.TokenCredential{managed, cli, dev}, nil)
}

// authorization returns the cached auth header, refreshing the federated
// token when it is within a minute of expiry. PAT headers never expire.
func (c *Client) authorization(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pat != "" {
		if c.authHeader == "" {
			c.authHeader = "Basic " + base64.StdEncoding.EncodeToString([]byte(":"+c.pat))
		}
		return c.authHeader, nil
	}

	if c.authHeader != "" && time.Now().Before(c.expiresOn.Add(-time.Minute)) {
		return c.authHeader, nil
	}

	tok, err := c.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{tokenScope}})
	if err != nil {
		return "", fmt.Errorf("acquire token: %w", err)
	}
	c.authHeader = "Bearer " + tok.Token
	c.expiresOn = tok.ExpiresOn
	return c.authHeader, nil
}

// InvalidateAuth drops the cached header so the next call re-acquires.
func (c *Client) InvalidateAuth() {
	c.mu.Lock()
	c.authHeader = ""
	c.expiresOn = time.Time{}
	c.mu.Unlock()
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		http.StatusTooManyRequests:
		return true
	}
	return false
}

func retryAfterDuration(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// attempt runs one HTTP exchange under the per-attempt timeout and
// returns the fully read response.
func (c *Client) attempt(ctx context.Context, method, rawURL, contentType string, body []byte) (int, http.Header, []byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, rawURL, reader)
	if err != nil {
		return 0, nil, nil, err
	}

	header, err := c.authorization(attemptCtx)
	if err != nil {
		return 0, nil, nil, err
	}
	req.Header.Set("Authorization", header)
	req.Header.Set("Accept", contentTypeJSON)
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp.StatusCode, resp.Header, respBody, nil
}

// send wraps attempt in the bounded retry loop. Transient statuses
// (429/5xx) and network or attempt-timeout faults retry with the delay
// doubling each attempt; the final status and body are returned unmapped
// when the budget runs out. A cancelled parent context never retries.
func (c *Client) send(ctx context.Context, method, rawURL, contentType string, body []byte) (int, []byte, error) {
	delay := c.initialDelay
	for attempt := 1; ; attempt++ {
		status, header, respBody, err := c.attempt(ctx, method, rawURL, contentType, body)

		var wait time.Duration
		switch {
		case err != nil:
			if attempt >= c.maxAttempts || ctx.Err() != nil {
				return 0, nil, err
			}
			wait = delay
		case isRetryableStatus(status) && attempt < c.maxAttempts:
			wait = delay
			if ra := retryAfterDuration(header); ra > wait {
				wait = ra
			}
		default:
			return status, respBody, nil
		}

		if !sleepCtx(ctx, wait) {
			return 0, nil, ctx.Err()
		}
		delay *= 2
	}
}

// statusError maps a terminal non-2xx response to the error taxonomy.
func statusError(operation string, status int, body []byte) error {
	msg := http.StatusText(status)
	var wire wireError
	if err := json.Unmarshal(body, &wire); err == nil && wire.Message != "" {
		msg = wire.Message
	}
	telemetry.IncAPIError(operation, status)

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthorizationError{StatusCode: status, Message: msg}
	case http.StatusBadRequest, http.StatusNotFound:
		return &ValidationError{StatusCode: status, Message: msg}
	default:
		return &APIError{Operation: operation, StatusCode: status, Message: msg}
	}
}

func (c *Client) endpoint(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return c.baseURL + path + sep + "api-version=" + c.apiVersion
}

// CreateWorkItem creates a work item of the request's type. The type is
// carried in the URL path segment; all other fields travel as JSON-Patch
// add operations.
func (c *Client) CreateWorkItem(ctx context.Context, req WorkItemRequest) (*WorkItem, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, &ValidationError{Message: "title is required"}
	}
	if strings.TrimSpace(req.Type) == "" {
		return nil, &ValidationError{Message: "workItemType is required"}
	}

	doc, err := createPatchDocument(req)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal patch document: %w", err)
	}

	rawURL := c.endpoint("/workitems/$" + url.PathEscape(req.Type))
	status, respBody, err := c.send(ctx, http.MethodPost, rawURL, contentTypeJSONPatch, body)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, statusError("create work item", status, respBody)
	}

	var wire wireWorkItem
	if err := json.Unmarshal(respBody, &wire); err != nil {
		return nil, fmt.Errorf("decode work item: %w", err)
	}
	return mapWorkItem(&wire), nil
}

func (c *Client) GetWorkItem(ctx context.Context, id int) (*WorkItem, error) {
	rawURL := c.endpoint("/workitems/" + strconv.Itoa(id))
	status, respBody, err := c.send(ctx, http.MethodGet, rawURL, "", nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, statusError("get work item", status, respBody)
	}

	var wire wireWorkItem
	if err := json.Unmarshal(respBody, &wire); err != nil {
		return nil, fmt.Errorf("decode work item: %w", err)
	}
	return mapWorkItem(&wire), nil
}

// UpdateWorkItem applies a partial JSON-Patch update. An update with no
// fields set fails before any network call.
func (c *Client) UpdateWorkItem(ctx context.Context, id int, upd WorkItemUpdate) (*WorkItem, error) {
	doc, err := updatePatchDocument(upd)
	if err != nil {
		return nil, err
	}
	if len(doc) == 0 {
		return nil, &ValidationError{Message: "no fields to update"}
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal patch document: %w", err)
	}

	rawURL := c.endpoint("/workitems/" + strconv.Itoa(id))
	status, respBody, err := c.send(ctx, http.MethodPatch, rawURL, contentTypeJSONPatch, body)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, statusError("update work item", status, respBody)
	}

	var wire wireWorkItem
	if err := json.Unmarshal(respBody, &wire); err != nil {
		return nil, fmt.Errorf("decode work item: %w", err)
	}
	return mapWorkItem(&wire), nil
}

type wiqlRequest struct {
	Query string `json:"query"`
}

type wiqlResponse struct {
	WorkItems []struct {
		ID int `json:"id"`
	} `json:"workItems"`
}

type workItemListResponse struct {
	Count int            `json:"count"`
	Value []wireWorkItem `json:"value"`
}

// DefaultQuery selects the project's work items ordered newest first.
const DefaultQuery = "SELECT [System.Id] FROM WorkItems WHERE [System.TeamProject] = @project ORDER BY [System.Id] DESC"

// ListWorkItems runs a WIQL query (DefaultQuery when empty), truncates
// the matched ids to maxListItems, and fetches them in one batched read.
func (c *Client) ListWorkItems(ctx context.Context, query string) ([]*WorkItem, error) {
	if strings.TrimSpace(query) == "" {
		query = DefaultQuery
	}

	body, err := json.Marshal(wiqlRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("marshal wiql query: %w", err)
	}
	status, respBody, err := c.send(ctx, http.MethodPost, c.endpoint("/wiql"), contentTypeJSON, body)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, statusError("query work items", status, respBody)
	}

	var queryResult wiqlResponse
	if err := json.Unmarshal(respBody, &queryResult); err != nil {
		return nil, fmt.Errorf("decode wiql response: %w", err)
	}
	if len(queryResult.WorkItems) == 0 {
		return []*WorkItem{}, nil
	}

	refs := queryResult.WorkItems
	if len(refs) > maxListItems {
		refs = refs[:maxListItems]
	}
	ids := make([]string, len(refs))
	for i, ref := range refs {
		ids[i] = strconv.Itoa(ref.ID)
	}

	rawURL := c.endpoint("/workitems?ids=" + strings.Join(ids, ","))
	status, respBody, err = c.send(ctx, http.MethodGet, rawURL, "", nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, statusError("list work items", status, respBody)
	}

	var list workItemListResponse
	if err := json.Unmarshal(respBody, &list); err != nil {
		return nil, fmt.Errorf("decode work item list: %w", err)
	}
	items := make([]*WorkItem, 0, len(list.Value))
	for i := range list.Value {
		items = append(items, mapWorkItem(&list.Value[i]))
	}
	return items, nil
}
