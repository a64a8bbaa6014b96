package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// graphError is the error envelope returned by the Facebook Graph API.
type graphError struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
		IsTransient  bool   `json:"is_transient"`
	} `json:"error"`
}

var graphTransientCodes = map[int]bool{
	1: true, 2: true, 4: true, 17: true, 32: true, 341: true, 368: true, 613: true,
}

// classifyGraph maps a Graph API failure onto an outcome kind.
func classifyGraph(status int, body []byte) Outcome {
	var ge graphError
	_ = json.Unmarshal(body, &ge)
	code := ge.Error.Code
	msg := ge.Error.Message
	if msg == "" {
		msg = fmt.Sprintf("graph api returned HTTP %d", status)
	} else {
		msg = fmt.Sprintf("%s (code %d)", msg, code)
	}

	switch {
	case code == 190 || code == 102 || code == 10 || (code >= 200 && code <= 299):
		return authError(msg)
	case ge.Error.IsTransient || graphTransientCodes[code] || status >= 500 || status == http.StatusTooManyRequests:
		return transientError(msg)
	case code == 0 && status == http.StatusUnauthorized:
		return authError(msg)
	default:
		return permanentError(msg)
	}
}

// graphPost sends a form-encoded POST and decodes the JSON reply into out.
func (b base) graphPost(ctx context.Context, client *http.Client, endpoint string, form url.Values, out any) *Outcome {
	if o := b.wait(ctx); o != nil {
		return o
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		o := permanentError(fmt.Sprintf("build request: %v", err))
		return &o
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.graphDo(client, req, out)
}

func (b base) graphGet(ctx context.Context, client *http.Client, endpoint string, query url.Values, out any) *Outcome {
	if o := b.wait(ctx); o != nil {
		return o
	}
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		o := permanentError(fmt.Sprintf("build request: %v", err))
		return &o
	}
	return b.graphDo(client, req, out)
}

func (b base) graphDo(client *http.Client, req *http.Request, out any) *Outcome {
	resp, o := b.do(client, req)
	if o != nil {
		return o
	}
	if resp.status < 200 || resp.status >= 300 {
		o := classifyGraph(resp.status, resp.body)
		return &o
	}
	if out != nil {
		if err := json.Unmarshal(resp.body, out); err != nil {
			o := transientError(fmt.Sprintf("decode graph response: %v", err))
			return &o
		}
	}
	return nil
}
