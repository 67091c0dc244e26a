// Copyright 2025 MakeMCP Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package httpexec implements the HTTP Execution Engine (C6): it builds,
// sends, classifies, and formats the outbound call one MCP tool
// invocation translates to.
package httpexec

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/oas2mcp/makemcp/pkg/authzpolicy"
	"github.com/oas2mcp/makemcp/pkg/mcperrors"
	"github.com/oas2mcp/makemcp/pkg/paramengine"
)

// Response is the request-scope HttpResponse entity from the data model.
type Response struct {
	StatusCode    int
	StatusText    string
	Headers       map[string]string
	BodyBytes     []byte
	BodyText      string
	ContentType   string
	IsSuccess     bool
	IsImage       bool
	RequestMethod string
	RequestURL    string
	RequestBody   string
}

// Client executes tool calls against an upstream API. One Client is
// shared across every tool and every call; it holds no per-call state.
type Client struct {
	HTTPClient     *http.Client
	BaseURL        string
	DefaultHeaders map[string]string
	AuthPolicy     *authzpolicy.Policy
}

// New builds a Client with the given base URL and shared default
// headers (cloned once here; never mutated again, per the design's
// "default header map is never mutated" rule).
func New(baseURL string, defaultHeaders map[string]string, authPolicy *authzpolicy.Policy) *Client {
	cloned := make(map[string]string, len(defaultHeaders))
	for k, v := range defaultHeaders {
		cloned[k] = v
	}
	return &Client{
		HTTPClient:     &http.Client{Timeout: 30 * time.Second},
		BaseURL:        baseURL,
		DefaultHeaders: cloned,
		AuthPolicy:     authPolicy,
	}
}

// Execute builds, sends, and shapes one outbound request for method/path
// given the parameters the Parameter Engine extracted, and a caller
// Authorization header value (if any) subject to the active policy.
func (c *Client) Execute(ctx context.Context, method, path string, params *paramengine.ExtractedParameters, callerAuthorization string, requiresAuth bool, operationID string, buildBody func(map[string]any) (io.Reader, error), contentType string) (*Response, *mcperrors.NetworkError) {
	targetURL := c.buildURL(path, params.Path)

	if len(params.Query) > 0 {
		targetURL = appendQuery(targetURL, params.Query)
	}

	timeout := time.Duration(params.Config.TimeoutSeconds) * time.Second
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bodyReader io.Reader
	var err error
	if buildBody != nil {
		bodyReader, err = buildBody(params.Body)
		if err != nil {
			return nil, &mcperrors.NetworkError{Category: mcperrors.NetworkRequest, Message: err.Error()}
		}
	}

	req, err := http.NewRequestWithContext(reqCtx, method, targetURL, bodyReader)
	if err != nil {
		return nil, &mcperrors.NetworkError{Category: mcperrors.NetworkRequest, Message: fmt.Sprintf("building request: %s", err)}
	}

	for k, v := range c.DefaultHeaders {
		req.Header.Set(k, v)
	}
	for k, v := range params.Header {
		req.Header.Set(k, fmt.Sprint(v))
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}
	if len(params.Cookie) > 0 {
		req.Header.Set("Cookie", buildCookieHeader(params.Cookie))
	}

	hasAuth := req.Header.Get("Authorization") != ""
	if callerAuthorization != "" {
		hasAuth = true
	}
	c.AuthPolicy.Apply(req, callerAuthorization, operationID, requiresAuth, hasAuth)

	// timeout_seconds shadows the shared client's default timeout for this
	// call; the shallow copy shares the client's pooled Transport.
	httpClient := *c.HTTPClient
	httpClient.Timeout = timeout
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, classifyError(err, method, targetURL, timeout)
	}
	defer resp.Body.Close()

	bodyBytes, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, &mcperrors.NetworkError{Category: mcperrors.NetworkBody, Message: fmt.Sprintf("reading response body: %s", readErr)}
	}

	return shapeResponse(resp, bodyBytes, method, targetURL), nil
}

func (c *Client) buildURL(path string, pathParams map[string]any) string {
	substituted := substitutePath(path, pathParams)
	if strings.HasPrefix(substituted, "http") {
		return substituted
	}
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(substituted, "/")
}

func substitutePath(path string, pathParams map[string]any) string {
	out := path
	for name, value := range pathParams {
		out = strings.ReplaceAll(out, "{"+name+"}", stringifyPathValue(value))
	}
	return out
}

func stringifyPathValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	default:
		if b, err := json.Marshal(val); err == nil {
			var s string
			if err := json.Unmarshal(b, &s); err == nil {
				return s
			}
			return string(b)
		}
		return fmt.Sprint(v)
	}
}

func appendQuery(targetURL string, query map[string]paramengine.QueryValue) string {
	u, err := url.Parse(targetURL)
	if err != nil {
		return targetURL
	}
	q := u.Query()
	names := make([]string, 0, len(query))
	for name := range query {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		qv := query[name]
		if arr, ok := qv.Value.([]any); ok {
			if qv.Explode {
				for _, item := range arr {
					q.Add(name, fmt.Sprint(item))
				}
			} else {
				parts := make([]string, len(arr))
				for i, item := range arr {
					parts[i] = fmt.Sprint(item)
				}
				q.Add(name, strings.Join(parts, ","))
			}
			continue
		}
		q.Add(name, fmt.Sprint(qv.Value))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func buildCookieHeader(cookies map[string]any) string {
	names := make([]string, 0, len(cookies))
	for name := range cookies {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%s", name, fmt.Sprint(cookies[name])))
	}
	return strings.Join(parts, "; ")
}

func classifyError(err error, method, targetURL string, timeout time.Duration) *mcperrors.NetworkError {
	category := mcperrors.NetworkOther
	message := err.Error()
	var netErr interface{ Timeout() bool }
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		category = mcperrors.NetworkTimeout
		message = fmt.Sprintf("Request timeout after %.0f seconds", timeout.Seconds())
	case strings.Contains(message, "connection refused"), strings.Contains(message, "no such host"):
		category = mcperrors.NetworkConnect
	default:
		category = mcperrors.NetworkRequest
	}
	return &mcperrors.NetworkError{
		Category: category,
		Message:  fmt.Sprintf("%s (method=%s url=%s)", message, method, targetURL),
	}
}

var statusHints = map[int]string{
	400: "Bad Request: the request could not be understood",
	401: "Unauthorized: authentication is required",
	403: "Forbidden: access to this resource is denied",
	404: "Not Found: Endpoint or resource does not exist",
	405: "Method Not Allowed",
	422: "Unprocessable Entity: semantic validation failed",
	429: "Too Many Requests: rate limited",
	500: "Internal Server Error",
	502: "Bad Gateway",
	503: "Service Unavailable",
	504: "Gateway Timeout",
}

func shapeResponse(resp *http.Response, bodyBytes []byte, method, targetURL string) *Response {
	headers := map[string]string{}
	for k := range resp.Header {
		headers[strings.ToLower(k)] = resp.Header.Get(k)
	}
	contentType := resp.Header.Get("Content-Type")

	statusText := resp.Status
	if hint, ok := statusHints[resp.StatusCode]; ok {
		statusText = fmt.Sprintf("%s - %s", resp.Status, hint)
	}

	bodyText := ""
	if utf8Valid(bodyBytes) {
		bodyText = string(bodyBytes)
	}

	return &Response{
		StatusCode:    resp.StatusCode,
		StatusText:    statusText,
		Headers:       headers,
		BodyBytes:     bodyBytes,
		BodyText:      bodyText,
		ContentType:   contentType,
		IsSuccess:     resp.StatusCode >= 200 && resp.StatusCode < 300,
		IsImage:       strings.HasPrefix(contentType, "image/"),
		RequestMethod: method,
		RequestURL:    targetURL,
	}
}

func utf8Valid(b []byte) bool {
	return json.Valid(quoteIfNeeded(b)) || strings.ToValidUTF8(string(b), "") == string(b)
}

func quoteIfNeeded(b []byte) []byte {
	return b
}

const maxTextBodyChars = 2000

// FormatText renders a non-structured, non-image response into the
// single text block the spec's rendering rule describes: an emoji
// success/failure marker, request details, and a pretty body, truncated
// past maxTextBodyChars.
func FormatText(resp *Response) string {
	marker := "✅"
	if !resp.IsSuccess {
		marker = "❌"
	}
	body := resp.BodyText
	pretty := prettyJSON(body)
	truncated, more := truncate(pretty, maxTextBodyChars)

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s\n", marker, resp.RequestMethod, resp.RequestURL)
	fmt.Fprintf(&b, "Status: %d %s\n\n", resp.StatusCode, resp.StatusText)
	b.WriteString(truncated)
	if more > 0 {
		fmt.Fprintf(&b, "\n(%d more characters)", more)
	}
	return b.String()
}

func prettyJSON(body string) string {
	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return body
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return body
	}
	return string(pretty)
}

func truncate(s string, max int) (string, int) {
	if len(s) <= max {
		return s, 0
	}
	return s[:max], len(s) - max
}

// ImageContent returns the base64-encoded body and content type for an
// image response, erroring if no Content-Type was supplied.
func ImageContent(resp *Response) (base64Data, contentType string, err error) {
	if resp.ContentType == "" {
		return "", "", fmt.Errorf("image response missing Content-Type header")
	}
	return base64.StdEncoding.EncodeToString(resp.BodyBytes), resp.ContentType, nil
}

// StatusAsInt parses a "status" string with strconv.Atoi. It does not
// check the 100..599 range the wrapped output schema declares.
func StatusAsInt(s string) (int, error) {
	return strconv.Atoi(s)
}
