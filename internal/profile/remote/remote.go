// Package remote talks to an external ProfileApi over HTTP/JSON.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"nasiya/internal/auth"
	"nasiya/internal/core"
	"nasiya/internal/profile"
)

const maxErrorBody = 64 << 10

// Client is a profile.API backed by a remote service.
type Client struct {
	base *url.URL
	http *http.Client
}

var _ profile.API = (*Client)(nil)

// New creates a client for baseURL. A zero timeout means 10s.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid profile api url %q", baseURL)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{base: u, http: &http.Client{Timeout: timeout}}, nil
}

func (c *Client) ListDebtors(ctx context.Context) ([]core.Debtor, error) {
	var out []core.Debtor
	if err := c.do(ctx, http.MethodGet, "/debtors", nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetDebtor(ctx context.Context, id string) (core.Debtor, error) {
	var out core.Debtor
	err := c.do(ctx, http.MethodGet, "/debtors/"+url.PathEscape(id), nil, "", &out)
	return out, err
}

func (c *Client) GetDebtorDetails(ctx context.Context, id string) (core.DebtorDetails, error) {
	var out core.DebtorDetails
	err := c.do(ctx, http.MethodGet, "/debtors/"+url.PathEscape(id)+"/details", nil, "", &out)
	return out, err
}

func (c *Client) SetStarred(ctx context.Context, id string, starred bool) error {
	body, err := json.Marshal(map[string]bool{"is_starred": starred})
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, "/debtors/"+url.PathEscape(id)+"/star",
		bytes.NewReader(body), "application/json", nil)
}

func (c *Client) SubmitPayment(ctx context.Context, p core.Payment) (string, error) {
	body, contentType, err := encodePayment(p)
	if err != nil {
		return "", err
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/debtors/"+url.PathEscape(p.DebtorID)+"/payments",
		body, contentType, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func encodePayment(p core.Payment) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"date", p.Date},
		{"time", p.Time},
		{"duration", strconv.Itoa(p.DurationMonths)},
		{"amount", strconv.FormatInt(p.Amount, 10)},
		{"note", p.Note},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f[0], err)
		}
	}
	for _, img := range p.Images {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="images"; filename=%q`, img.Name))
		h.Set("Content-Type", img.ContentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create image part: %w", err)
		}
		if _, err := part.Write(img.Data); err != nil {
			return nil, "", fmt.Errorf("write image part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token := auth.TokenFromContext(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &profile.APIError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return &profile.APIError{Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &profile.APIError{Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		apiErr.Message = payload.Message
	}
	if resp.StatusCode == http.StatusNotFound {
		apiErr.Err = core.ErrNotFound
	}
	return apiErr
}
