package mockserver

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/form3tech-oss/pact-engine/internal/app/matching"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// RecordedRequest is an inbound request as the server saw it.
type RecordedRequest struct {
	Method  string              `json:"method"`
	Path    string              `json:"path"`
	Query   map[string][]string `json:"query,omitempty"`
	Headers map[string]string   `json:"headers,omitempty"`
	Body    interface{}         `json:"body,omitempty"`
}

func (r RecordedRequest) Message() matching.Request {
	return matching.Request{
		Method:  r.Method,
		Path:    r.Path,
		Query:   r.Query,
		Headers: r.Headers,
		Body:    r.Body,
	}
}

var supportedMediaTypes = map[string]func([]byte) (interface{}, error){
	mediaTypeJSON: parseJSONBody,
	mediaTypeText: parsePlainTextBody,
}

func readRequest(req *http.Request) (RecordedRequest, error) {
	recorded := RecordedRequest{
		Method:  strings.ToUpper(req.Method),
		Path:    req.URL.Path,
		Headers: flattenHeaders(req.Header),
	}
	if query := req.URL.Query(); len(query) > 0 {
		recorded.Query = query
	}

	data, err := io.ReadAll(req.Body)
	if err != nil {
		return recorded, errors.Wrap(err, "unable to read request body")
	}
	if len(data) == 0 {
		return recorded, nil
	}

	mediaType, err := parseMediaTypeHeader(req.Header)
	if err != nil {
		return recorded, errors.Wrap(err, "failed to parse Content-Type header")
	}
	parseBody, ok := supportedMediaTypes[mediaType]
	if !ok {
		if strings.HasSuffix(mediaType, "+json") {
			parseBody = parseJSONBody
		} else {
			parseBody = parsePlainTextBody
		}
	}

	recorded.Body, err = parseBody(data)
	if err != nil {
		return recorded, err
	}
	return recorded, nil
}

func parseJSONBody(data []byte) (interface{}, error) {
	var body interface{}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, errors.Wrap(err, "unable to parse JSON body")
	}
	return body, nil
}

func parsePlainTextBody(data []byte) (interface{}, error) {
	return string(data), nil
}

// parseMediaTypeHeader treats a body sent without Content-Type as JSON.
func parseMediaTypeHeader(header http.Header) (string, error) {
	contentType := header.Get("Content-Type")
	if contentType == "" {
		log.Debug("request does not have Content-Type header, defaulting to application/json")
		return mediaTypeJSON, nil
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", err
	}
	return mediaType, nil
}

func flattenHeaders(header http.Header) map[string]string {
	if len(header) == 0 {
		return nil
	}
	headers := make(map[string]string, len(header))
	for name, values := range header {
		headers[name] = strings.Join(values, ", ")
	}
	return headers
}
