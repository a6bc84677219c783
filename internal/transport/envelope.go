package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/beevik/etree"

	"github.com/cloudrift-io/cloudstack-client/pkg/cloudstack"
)

// decode interprets a completed exchange as an envelope in the requested
// format. Non-200 statuses become an APIError carrying the decoded error
// payload; an uninterpretable body becomes a ProtocolError.
func (c *Client) decode(resp *http.Response, body []byte, format cloudstack.Format) (*Response, error) {
	if format == cloudstack.FormatXML {
		return c.decodeXML(resp, body)
	}

	return c.decodeJSON(resp, body)
}

func (c *Client) decodeJSON(resp *http.Response, body []byte) (*Response, error) {
	contentType := resp.Header.Get("Content-Type")
	if !jsonContentType(contentType) {
		if resp.StatusCode == 200 {
			return nil, &cloudstack.ProtocolError{
				Endpoint:    c.endpoint,
				StatusCode:  resp.StatusCode,
				ContentType: contentType,
				Reason:      fmt.Sprintf("JSON (application/json) was expected, got %q", contentType),
				Body:        body,
			}
		}

		return nil, &cloudstack.ProtocolError{
			Endpoint:    c.endpoint,
			StatusCode:  resp.StatusCode,
			ContentType: contentType,
			Reason:      "unexpected content type " + contentType,
			Body:        body,
		}
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &cloudstack.ProtocolError{
			Endpoint:    c.endpoint,
			StatusCode:  resp.StatusCode,
			ContentType: contentType,
			Reason:      fmt.Sprintf("malformed JSON document: %v", err),
			Body:        body,
		}
	}

	if len(envelope) != 1 {
		return nil, &cloudstack.ProtocolError{
			Endpoint:    c.endpoint,
			StatusCode:  resp.StatusCode,
			ContentType: contentType,
			Reason:      fmt.Sprintf("expected a single-key response envelope, got %d keys", len(envelope)),
			Body:        body,
		}
	}

	var payload map[string]any

	for _, raw := range envelope {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, &cloudstack.ProtocolError{
				Endpoint:    c.endpoint,
				StatusCode:  resp.StatusCode,
				ContentType: contentType,
				Reason:      fmt.Sprintf("envelope value is not an object: %v", err),
				Body:        body,
			}
		}
	}

	if resp.StatusCode != 200 {
		return nil, apiError(resp.StatusCode, payload, body)
	}

	return &Response{
		Status:  resp.StatusCode,
		Header:  resp.Header,
		Body:    body,
		Payload: payload,
	}, nil
}

func (c *Client) decodeXML(resp *http.Response, body []byte) (*Response, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, &cloudstack.ProtocolError{
			Endpoint:    c.endpoint,
			StatusCode:  resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Reason:      fmt.Sprintf("malformed XML document: %v", err),
			Body:        body,
		}
	}

	root := doc.Root()
	if root == nil {
		return nil, &cloudstack.ProtocolError{
			Endpoint:    c.endpoint,
			StatusCode:  resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Reason:      "XML document has no root element",
			Body:        body,
		}
	}

	if resp.StatusCode != 200 {
		apiErr := &cloudstack.APIError{StatusCode: resp.StatusCode, Body: body}
		if errortext := root.SelectElement("errortext"); errortext != nil {
			apiErr.ErrorText = errortext.Text()
		}

		return nil, apiErr
	}

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   body,
		XML:    root,
	}, nil
}

// apiError builds an APIError from an unwrapped error payload, pulling out
// the conventional errorcode and errortext fields when present.
func apiError(status int, payload map[string]any, body []byte) *cloudstack.APIError {
	apiErr := &cloudstack.APIError{
		StatusCode: status,
		Detail:     payload,
		Body:       body,
	}

	if code, ok := payload["errorcode"].(float64); ok {
		apiErr.ErrorCode = int(code)
	}

	if text, ok := payload["errortext"].(string); ok {
		apiErr.ErrorText = text
	}

	return apiErr
}

func jsonContentType(contentType string) bool {
	return strings.HasPrefix(contentType, "application/json") ||
		strings.HasPrefix(contentType, "text/javascript")
}
