// Package sfrest implements the C2 REST client contract against a
// Salesforce-like record store: OAuth 2.0 JWT bearer-grant authentication,
// query/read/write/upload/link/patch operations, and correlation-ID
// propagation. No ecosystem Salesforce or generic-object-store client
// exists anywhere in the retrieved reference corpus, so this is built on
// stdlib net/http the way the teacher's own internal/infra/config
// discovery client reaches outbound services — see DESIGN.md.
package sfrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/docgen/docgen-sub000/internal/core/entity"
	"github.com/docgen/docgen-sub000/internal/core/errkind"
	"github.com/docgen/docgen-sub000/internal/infra/config"
	"github.com/docgen/docgen-sub000/internal/infra/logging"
)

// Client is the C2 REST client. One Client is shared by the interactive
// HTTP surface and the worker; its token cache is a process-wide
// singleton refreshed under a critical section, per spec §5.
type Client struct {
	httpClient *http.Client
	domain     string
	clientID   string
	username   string
	privateKey []byte

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// New builds a Client instrumented with otelhttp for distributed tracing
// of every outbound call (SPEC_FULL.md §1.1/§4.2).
func New(cfg config.SFConfig) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		domain:     cfg.Domain,
		clientID:   cfg.ClientID,
		username:   cfg.Username,
		privateKey: []byte(cfg.PrivateKeyPEM),
	}
}

// token returns a valid bearer token, minting a fresh one via the JWT
// bearer-grant flow when the cached one is absent or near expiry. Guarded
// by a mutex so concurrent callers refresh at most once.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.expiresAt.Add(-30*time.Second)) {
		return c.accessToken, nil
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(c.privateKey)
	if err != nil {
		return "", errkind.Wrap(errkind.Internal, err, "parse salesforce private key")
	}

	now := time.Now()
	assertion := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Issuer:    c.clientID,
		Subject:   c.username,
		Audience:  jwt.ClaimStrings{c.domain},
		ExpiresAt: jwt.NewNumericDate(now.Add(3 * time.Minute)),
		IssuedAt:  jwt.NewNumericDate(now),
	})
	signed, err := assertion.SignedString(key)
	if err != nil {
		return "", errkind.Wrap(errkind.Internal, err, "sign bearer assertion")
	}

	form := url.Values{}
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:jwt-bearer")
	form.Set("assertion", signed)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.domain+"/services/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", errkind.Wrap(errkind.Internal, err, "build token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errkind.Wrap(errkind.RecordStoreUnavailable, err, "token request failed")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", errkind.New(errkind.RecordStoreUnavailable, fmt.Sprintf("token endpoint status %d: %s", resp.StatusCode, string(body)))
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", errkind.Wrap(errkind.Internal, err, "decode token response")
	}

	c.accessToken = tok.AccessToken
	c.expiresAt = now.Add(15 * time.Minute) // bearer-grant tokens have no fixed TTL in the response; refresh conservatively
	return c.accessToken, nil
}

// CheckAuth probes outbound auth reachability for the /readyz check.
func (c *Client) CheckAuth(ctx context.Context) error {
	_, err := c.token(ctx)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.domain+path, body)
	if err != nil {
		return nil, errkind.Wrap(errkind.Internal, err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if cid := logging.CorrelationID(ctx); cid != "" {
		req.Header.Set("X-Correlation-Id", cid)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errkind.Wrap(errkind.RecordStoreUnavailable, err, "request failed")
	}
	return resp, nil
}

// classify maps a response status to the §7 error kind.
func classify(status int, body []byte) error {
	switch {
	case status == http.StatusNotFound:
		return errkind.New(errkind.TemplateNotFound, "record not found")
	case status == http.StatusConflict:
		return errkind.New(errkind.RecordStoreConflict, "conditional patch lost")
	case status >= 500:
		return errkind.New(errkind.RecordStoreUnavailable, fmt.Sprintf("status %d: %s", status, string(body)))
	case status >= 400:
		return errkind.New(errkind.ValidationError, fmt.Sprintf("status %d: %s", status, string(body)))
	default:
		return nil
	}
}

// Query retrieves records with a templated parameter bound to the
// caller's record id. soql is expected to contain named :bind markers
// substituted from binds before submission.
func (c *Client) Query(ctx context.Context, soql string, binds map[string]string) ([]entity.Value, error) {
	for k, v := range binds {
		soql = strings.ReplaceAll(soql, ":"+k, v)
	}
	resp, err := c.do(ctx, http.MethodGet, "/services/data/v60.0/query/?q="+url.QueryEscape(soql), nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if err := classify(resp.StatusCode, body); err != nil {
		return nil, err
	}

	var result struct {
		Records []json.RawMessage `json:"records"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, errkind.Wrap(errkind.Internal, err, "decode query response")
	}
	out := make([]entity.Value, 0, len(result.Records))
	for _, raw := range result.Records {
		v, err := entity.UnmarshalJSONValue(raw)
		if err != nil {
			return nil, errkind.Wrap(errkind.Internal, err, "decode record")
		}
		out = append(out, v)
	}
	return out, nil
}

func (c *Client) ReadRecord(ctx context.Context, objectType, id string, fields []string) (entity.Value, error) {
	path := fmt.Sprintf("/services/data/v60.0/sobjects/%s/%s?fields=%s", objectType, id, url.QueryEscape(strings.Join(fields, ",")))
	resp, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return entity.Null(), err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if err := classify(resp.StatusCode, body); err != nil {
		return entity.Null(), err
	}
	return entity.UnmarshalJSONValue(body)
}

func (c *Client) WriteRecord(ctx context.Context, objectType, id string, fields map[string]any) error {
	return c.patch(ctx, objectType, id, fields)
}

func (c *Client) PatchRecord(ctx context.Context, objectType, id string, fields map[string]any) error {
	return c.patch(ctx, objectType, id, fields)
}

func (c *Client) CreateRecord(ctx context.Context, objectType string, fields map[string]any) (string, error) {
	payload, err := json.Marshal(fields)
	if err != nil {
		return "", errkind.Wrap(errkind.Internal, err, "encode create payload")
	}
	path := fmt.Sprintf("/services/data/v60.0/sobjects/%s", objectType)
	resp, err := c.do(ctx, http.MethodPost, path, bytes.NewReader(payload), "application/json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if err := classify(resp.StatusCode, body); err != nil {
		return "", err
	}
	created, err := entity.UnmarshalJSONValue(body)
	if err != nil {
		return "", errkind.Wrap(errkind.Internal, err, "decode create response")
	}
	id, _ := created.Get("id")
	idStr, _ := id.AsString()
	return idStr, nil
}

// DownloadURL builds the direct VersionData download link for an
// uploaded content version, used by the interactive /generate response.
func (c *Client) DownloadURL(contentVersionID string) string {
	return c.domain + fmt.Sprintf("/services/data/v60.0/sobjects/ContentVersion/%s/VersionData", contentVersionID)
}

func (c *Client) patch(ctx context.Context, objectType, id string, fields map[string]any) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return errkind.Wrap(errkind.Internal, err, "encode patch payload")
	}
	path := fmt.Sprintf("/services/data/v60.0/sobjects/%s/%s", objectType, id)
	resp, err := c.do(ctx, http.MethodPatch, path, bytes.NewReader(payload), "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return classify(resp.StatusCode, body)
}

func (c *Client) DownloadBinary(ctx context.Context, contentVersionID string) ([]byte, error) {
	path := fmt.Sprintf("/services/data/v60.0/sobjects/ContentVersion/%s/VersionData", contentVersionID)
	resp, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if err := classify(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) UploadContentVersion(ctx context.Context, filename string, data []byte) (string, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	entityPart, _ := mw.CreateFormField("entity_content")
	meta, _ := json.Marshal(map[string]string{
		"Title":    filename,
		"PathOnClient": filename,
	})
	entityPart.Write(meta)

	dataPart, _ := mw.CreateFormFile("VersionData", filename)
	dataPart.Write(data)
	mw.Close()

	resp, err := c.do(ctx, http.MethodPost, "/services/data/v60.0/sobjects/ContentVersion", &buf, mw.FormDataContentType())
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return "", "", errkind.New(errkind.UploadFailed, fmt.Sprintf("upload status %d: %s", resp.StatusCode, string(body)))
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", "", errkind.Wrap(errkind.Internal, err, "decode upload response")
	}

	// ContentDocumentId is assigned by the record store after upload; a
	// follow-up read of the created ContentVersion resolves it.
	cv, err := c.ReadRecord(ctx, "ContentVersion", created.ID, []string{"ContentDocumentId"})
	if err != nil {
		return created.ID, "", err
	}
	docID, _ := cv.Get("ContentDocumentId")
	docIDStr, _ := docID.AsString()
	return created.ID, docIDStr, nil
}

func (c *Client) CreateLink(ctx context.Context, contentDocumentID, parentID string) (string, error) {
	payload, _ := json.Marshal(map[string]string{
		"ContentDocumentId": contentDocumentID,
		"LinkedEntityId":    parentID,
		"ShareType":         "V",
		"Visibility":        "AllUsers",
	})
	resp, err := c.do(ctx, http.MethodPost, "/services/data/v60.0/sobjects/ContentDocumentLink", bytes.NewReader(payload), "application/json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return "", errkind.New(errkind.LinkFailed, fmt.Sprintf("link status %d: %s", resp.StatusCode, string(body)))
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", errkind.Wrap(errkind.Internal, err, "decode link response")
	}
	return created.ID, nil
}
