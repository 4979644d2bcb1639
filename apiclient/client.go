package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"yamato/inout"
	"yamato/model"
)

var ErrStatus = errors.New("unexpected response status")

// StatusError はサーバーが 2xx 以外を返したときのエラーです。
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %d %s", ErrStatus, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %d", ErrStatus, e.Code)
}

func (e *StatusError) Is(target error) bool { return target == ErrStatus }

// Client は YAMATO サーバーの API クライアントです。inout.Backend を満たします。
type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ inout.Backend = (*Client)(nil)

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
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
		return &StatusError{Code: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// errorMessage は {"message": ...} 形式ならその文言を、そうでなければ本文をそのまま返します。
func errorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Message != "" {
		return body.Message
	}
	return strings.TrimSpace(string(raw))
}

func (c *Client) UnitMap(ctx context.Context) (map[string]string, error) {
	m := map[string]string{}
	if err := c.do(ctx, http.MethodGet, "/api/units/map", nil, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *Client) SearchDrugs(ctx context.Context, name, spec string) ([]model.DrugCandidate, error) {
	q := url.Values{}
	q.Set("name", name)
	q.Set("spec", spec)
	var out []model.DrugCandidate
	if err := c.do(ctx, http.MethodGet, "/api/inout/search?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DrugByJan は JAN コードで品目を1件取得します。見つからなければ 404 の *StatusError です。
func (c *Client) DrugByJan(ctx context.Context, jan string) (model.DrugCandidate, error) {
	var out model.DrugCandidate
	if err := c.do(ctx, http.MethodGet, "/api/inout/drug/"+url.PathEscape(jan), nil, &out); err != nil {
		return model.DrugCandidate{}, err
	}
	return out, nil
}

func (c *Client) ListClients(ctx context.Context) ([]model.Client, error) {
	var out []model.Client
	if err := c.do(ctx, http.MethodGet, "/api/clients", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RegisterClient(ctx context.Context, in model.ClientInput) (model.Client, error) {
	var out model.Client
	if err := c.do(ctx, http.MethodPost, "/api/clients", in, &out); err != nil {
		return model.Client{}, err
	}
	return out, nil
}

func (c *Client) Save(ctx context.Context, records []model.InOutRecord) (inout.SaveResponse, error) {
	var out inout.SaveResponse
	if err := c.do(ctx, http.MethodPost, "/api/inout/save", records, &out); err != nil {
		return inout.SaveResponse{}, err
	}
	return out, nil
}

// NextSlipNumber は date (YYYYMMDD) の次の伝票番号をサーバーに発行してもらいます。
func (c *Client) NextSlipNumber(ctx context.Context, date string) (string, error) {
	var out struct {
		SlipNumber string `json:"slipNumber"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/inout/next-slip?date="+url.QueryEscape(date), nil, &out); err != nil {
		return "", err
	}
	return out.SlipNumber, nil
}

func (c *Client) Receipts(ctx context.Context, date, vendor string) ([]string, error) {
	q := url.Values{}
	q.Set("date", date)
	if vendor != "" {
		q.Set("vendor", vendor)
	}
	var out []string
	if err := c.do(ctx, http.MethodGet, "/api/inout/receipts?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Slip(ctx context.Context, number string) ([]model.InOutRecord, error) {
	var out []model.InOutRecord
	if err := c.do(ctx, http.MethodGet, "/api/inout/slip/"+url.PathEscape(number), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeleteSlip(ctx context.Context, number string) error {
	return c.do(ctx, http.MethodDelete, "/api/inout/slip/"+url.PathEscape(number), nil, nil)
}
