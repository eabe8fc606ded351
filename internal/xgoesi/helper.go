package xgoesi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// StatusTooManyErrors is the status code ESI returns when the error limit has been exceeded.
const StatusTooManyErrors = 420

// newBlockedResponse returns a synthetic response for a request,
// which was not sent because a limit is active.
func newBlockedResponse(req *http.Request, statusCode int, message string) (*http.Response, error) {
	if statusCode < 400 {
		return nil, fmt.Errorf("blocked response: invalid status code %d", statusCode)
	}
	data, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return nil, err
	}
	statusText := http.StatusText(statusCode)
	if statusCode == StatusTooManyErrors {
		statusText = "Too Many Errors"
	}
	resp := &http.Response{
		Status:        fmt.Sprintf("%d %s", statusCode, statusText),
		StatusCode:    statusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Body:          io.NopCloser(bytes.NewReader(data)),
		Header:        make(http.Header),
		ContentLength: int64(len(data)),
		Request:       req,
	}
	resp.Header.Set("Content-Type", "application/json")
	resp.Header.Set("X-Origin-Server", "localhost")
	return resp, nil
}
