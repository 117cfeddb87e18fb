package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/form3tech-oss/pact-engine/internal/app/contract"
	"github.com/form3tech-oss/pact-engine/internal/app/matching"
	"github.com/pkg/errors"
)

const mediaTypeJSON = "application/json"

// newRequest builds the literal request an interaction declares, addressed to baseURL.
func newRequest(ctx context.Context, baseURL string, declared contract.Request) (*http.Request, error) {
	headers := make(map[string]string, len(declared.Headers)+1)
	for name, value := range declared.Headers {
		headers[name] = value
	}

	body, err := encodeBody(declared.Body, headers)
	if err != nil {
		return nil, errors.Wrap(err, "unable to encode request body")
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, declared.Method, strings.TrimSuffix(baseURL, "/")+declared.URL(), reader)
	if err != nil {
		return nil, err
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	return req, nil
}

func encodeBody(body interface{}, headers map[string]string) ([]byte, error) {
	if body == nil {
		return nil, nil
	}

	contentType := headerValue(headers, "Content-Type")
	if s, ok := body.(string); ok && contentType != "" && !isJSON(contentType) {
		return []byte(s), nil
	}
	if contentType == "" {
		headers["Content-Type"] = mediaTypeJSON
	}
	return json.Marshal(body)
}

// readResponse turns a live response into the shape the matching engine compares.
// Bodies are decoded as JSON unless the provider says they are something else.
func readResponse(res *http.Response) (matching.Response, error) {
	response := matching.Response{
		Status:  res.StatusCode,
		Headers: make(map[string]string, len(res.Header)),
	}
	for name, values := range res.Header {
		response.Headers[name] = strings.Join(values, ", ")
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return response, errors.Wrap(err, "unable to read provider response")
	}
	if len(data) == 0 {
		return response, nil
	}

	contentType := res.Header.Get("Content-Type")
	if contentType == "" || isJSON(contentType) {
		var body interface{}
		if err := json.Unmarshal(data, &body); err == nil {
			response.Body = body
			return response, nil
		} else if contentType != "" {
			return response, errors.Wrap(err, "provider response is not valid JSON")
		}
	}
	response.Body = string(data)
	return response, nil
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == mediaTypeJSON || strings.HasSuffix(mediaType, "+json")
}
