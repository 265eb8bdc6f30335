package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// RequestBodySource hands out the raw request body.
type RequestBodySource interface {
	GetBodyStream() (io.ReadCloser, error)
}

// HTTPRequest reads the body of a net/http request.
type HTTPRequest struct{ *http.Request }

// GetBodyStream returns r.Body.
func (r HTTPRequest) GetBodyStream() (io.ReadCloser, error) {
	if r.Request == nil || r.Body == nil {
		return nil, errors.New("get body stream from request fail")
	}
	return r.Body, nil
}

// RawBody serves an in-memory body.
type RawBody []byte

// GetBodyStream returns a reader over b.
func (b RawBody) GetBodyStream() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

// ReadBody reads src fully. A string T receives the text as is; any other
// T is decoded from JSON. On failure it returns the zero T and a non-empty
// message.
func ReadBody[T any](src RequestBodySource) (result T, msg string) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			result, msg = zero, "read request body panic"
		}
	}()

	stream, err := src.GetBodyStream()
	if err != nil {
		return result, err.Error()
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return result, err.Error()
	}
	if s, ok := any(&result).(*string); ok {
		*s = string(data)
		return result, ""
	}
	if err := json.Unmarshal(data, &result); err != nil {
		var zero T
		return zero, err.Error()
	}
	return result, ""
}
