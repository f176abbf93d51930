package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
)

// maxSSELineSize caps a single SSE line at 1 MB. The bufio.Scanner default
// of 64 KiB is too small for long completion deltas.
const maxSSELineSize = 1 * 1024 * 1024

// header is an extra request header for providers that do not use
// Authorization: Bearer.
type header struct {
	key, value string
}

// doPostStream sends a JSON POST and returns the response with the body left
// open for SSE reading. The caller owns closing the body. Non-2xx responses
// are drained, closed and returned as an error.
func doPostStream(ctx context.Context, client *http.Client, url, bearer string, body any, headers ...header) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for _, h := range headers {
		req.Header.Set(h.key, h.value)
	}

	httpClient := client
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer closeWithLog(resp.Body)
		errorBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		if readErr != nil {
			return resp, fmt.Errorf("status %d (failed to read body: %v)", resp.StatusCode, readErr)
		}
		return resp, fmt.Errorf("status %d: %s", resp.StatusCode, errorBody)
	}

	return resp, nil
}

func closeWithLog(c io.Closer) {
	if err := c.Close(); err != nil {
		log.Printf("close response body: %v", err)
	}
}

// sseScanner reads Server-Sent Events from a stream. It joins multi-line
// data fields, skips comments and blank lines, and treats the OpenAI-style
// [DONE] sentinel as end of stream.
type sseScanner struct {
	scanner *bufio.Scanner
}

func newSSEScanner(r io.Reader) *sseScanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELineSize)
	return &sseScanner{scanner: scanner}
}

// Next returns the next SSE data payload. io.EOF signals a finished stream.
func (s *sseScanner) Next() (string, error) {
	var dataLines []string

	for s.scanner.Scan() {
		line := s.scanner.Text()

		// Blank line terminates the current event.
		if line == "" {
			if len(dataLines) > 0 {
				break
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if data, ok := strings.CutPrefix(line, "data:"); ok {
			data = strings.TrimPrefix(data, " ")
			if data == "[DONE]" {
				return "", io.EOF
			}
			dataLines = append(dataLines, data)
		}
		// Other fields (event:, id:, retry:) carry no payload we need; the
		// JSON payloads are self-describing for all three providers.
	}

	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	if len(dataLines) == 0 {
		return "", io.EOF
	}
	return strings.Join(dataLines, "\n"), nil
}
