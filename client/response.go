package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Envelope is the backend's {"data": ..., ...} wrapper. Every key other than
// data ends up in Meta.
type Envelope struct {
	Data json.RawMessage
	Meta map[string]json.RawMessage
}

// ErrNoData is returned when the envelope has no data field.
var ErrNoData = errors.New("response has no data field")

// Decode unmarshals the whole body into v.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("Response.Decode: empty body")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("Response.Decode: %w", err)
	}
	return nil
}

// Envelope splits the body into data and metadata.
func (r *Response) Envelope() (*Envelope, error) {
	var fields map[string]json.RawMessage
	if err := r.Decode(&fields); err != nil {
		return nil, err
	}
	data, ok := fields["data"]
	if !ok {
		return nil, ErrNoData
	}
	delete(fields, "data")
	return &Envelope{Data: data, Meta: fields}, nil
}

// DecodeData unmarshals the envelope's data field into v.
func (r *Response) DecodeData(v any) error {
	env, err := r.Envelope()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("Response.DecodeData: %w", err)
	}
	return nil
}

// DecodeData is the generic form of Response.DecodeData.
func DecodeData[T any](r *Response) (T, error) {
	var v T
	err := r.DecodeData(&v)
	return v, err
}

// errorDetail pulls "detail" out of an error body, if there is one.
func errorDetail(body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if len(body) == 0 || json.Unmarshal(body, &payload) != nil {
		return ""
	}
	return payload.Detail
}
