// ABOUTME: HTTP client for the chat backend: identity checks, customer and conversation CRUD.
// ABOUTME: Thin JSON wrapper; error fatality is decided by callers per the engine's error policy.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/driftchat/widgetsync/internal/model"
)

const defaultTimeout = 15 * time.Second

// Backend is the request collaborator the engine depends on. Production code
// uses Client; tests substitute fakes.
type Backend interface {
	// CheckCustomerExists probes whether a cached customer id is still valid.
	CheckCustomerExists(ctx context.Context, customerID string) (bool, error)

	// FindCustomerByExternalID looks up a customer by external id with
	// optional email/host filters. Returns (nil, nil) when no match exists.
	FindCustomerByExternalID(ctx context.Context, externalID string, filters LookupFilters) (*model.Customer, error)

	// FetchCustomerConversations returns the customer's conversations,
	// most-recent-first, with nested messages.
	FetchCustomerConversations(ctx context.Context, customerID string) ([]model.Conversation, error)

	// CreateCustomer registers a new customer under the account.
	CreateCustomer(ctx context.Context, meta model.CustomerMetadata) (*model.Customer, error)

	// UpdateCustomer replaces the customer's metadata.
	UpdateCustomer(ctx context.Context, customerID string, meta model.CustomerMetadata) (*model.Customer, error)

	// CreateConversation opens a new conversation for the customer.
	CreateConversation(ctx context.Context, customerID string) (*model.Conversation, error)
}

// LookupFilters narrow an external-id customer lookup.
type LookupFilters struct {
	Email string
	Host  string
}

// Client is the production Backend over the chat HTTP API.
type Client struct {
	baseURL   string
	accountID string
	http      *http.Client
}

// NewClient creates a backend client for the given base URL and account.
// Pass nil httpClient to use a default with a request timeout.
func NewClient(baseURL, accountID string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:   baseURL,
		accountID: accountID,
		http:      httpClient,
	}
}

// dataEnvelope is the {"data": ...} wrapper the backend puts around responses.
type dataEnvelope struct {
	Data json.RawMessage `json:"data"`
}

func (c *Client) CheckCustomerExists(ctx context.Context, customerID string) (bool, error) {
	q := url.Values{"account_id": {c.accountID}}
	var exists bool
	err := c.get(ctx, "/api/customers/"+url.PathEscape(customerID)+"/exists", q, &exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (c *Client) FindCustomerByExternalID(ctx context.Context, externalID string, filters LookupFilters) (*model.Customer, error) {
	q := url.Values{
		"account_id":  {c.accountID},
		"external_id": {externalID},
	}
	if filters.Email != "" {
		q.Set("email", filters.Email)
	}
	if filters.Host != "" {
		q.Set("host", filters.Host)
	}

	var result struct {
		CustomerID *string `json:"customer_id"`
	}
	if err := c.get(ctx, "/api/customers/identify", q, &result); err != nil {
		return nil, err
	}
	if result.CustomerID == nil || *result.CustomerID == "" {
		return nil, nil
	}
	return &model.Customer{ID: *result.CustomerID, ExternalID: externalID}, nil
}

func (c *Client) FetchCustomerConversations(ctx context.Context, customerID string) ([]model.Conversation, error) {
	q := url.Values{
		"account_id":  {c.accountID},
		"customer_id": {customerID},
	}
	var conversations []model.Conversation
	if err := c.get(ctx, "/api/conversations/customer", q, &conversations); err != nil {
		return nil, err
	}
	return conversations, nil
}

func (c *Client) CreateCustomer(ctx context.Context, meta model.CustomerMetadata) (*model.Customer, error) {
	body := map[string]any{
		"customer": customerParams(c.accountID, meta),
	}
	var customer model.Customer
	if err := c.post(ctx, "/api/customers", body, &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

func (c *Client) UpdateCustomer(ctx context.Context, customerID string, meta model.CustomerMetadata) (*model.Customer, error) {
	body := map[string]any{
		"customer": customerParams(c.accountID, meta),
	}
	var customer model.Customer
	if err := c.put(ctx, "/api/customers/"+url.PathEscape(customerID), body, &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

func (c *Client) CreateConversation(ctx context.Context, customerID string) (*model.Conversation, error) {
	body := map[string]any{
		"conversation": map[string]any{
			"account_id":  c.accountID,
			"customer_id": customerID,
		},
	}
	var conversation model.Conversation
	if err := c.post(ctx, "/api/conversations", body, &conversation); err != nil {
		return nil, err
	}
	return &conversation, nil
}

// customerParams builds the customer request body shared by create and update.
func customerParams(accountID string, meta model.CustomerMetadata) map[string]any {
	params := map[string]any{
		"account_id": accountID,
		"first_seen": time.Now().UTC().Format("2006-01-02"),
		"last_seen":  time.Now().UTC().Format(time.RFC3339),
	}
	if meta.Name != "" {
		params["name"] = meta.Name
	}
	if meta.Email != "" {
		params["email"] = meta.Email
	}
	if meta.ExternalID != "" {
		params["external_id"] = meta.ExternalID
	}
	if meta.Host != "" {
		params["host"] = meta.Host
	}
	if len(meta.Metadata) > 0 {
		params["metadata"] = meta.Metadata
	}
	return params
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) put(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPut, path, nil, body, out)
}

// do issues one JSON request and decodes the {"data": ...} envelope into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}

	var env dataEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s %s: decoding response: %w", method, path, err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s %s: decoding payload: %w", method, path, err)
	}
	return nil
}

// UpdateOrCreateCustomer pushes metadata for an existing customer, retrying
// via unconditional creation when the update fails. A second failure
// propagates to the caller: an optimistic message may then remain permanently
// unconfirmed, which is an accepted degraded state.
func UpdateOrCreateCustomer(ctx context.Context, backend Backend, customerID string, meta model.CustomerMetadata) (*model.Customer, error) {
	if customerID != "" {
		customer, err := backend.UpdateCustomer(ctx, customerID, meta)
		if err == nil {
			return customer, nil
		}
	}
	customer, err := backend.CreateCustomer(ctx, meta)
	if err != nil {
		return nil, fmt.Errorf("creating customer: %w", err)
	}
	return customer, nil
}
