package llm

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEScannerBasic(t *testing.T) {
	s := newSSEScanner(strings.NewReader("data: one\n\ndata: two\n\n"))

	payload, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "one", payload)

	payload, err = s.Next()
	require.NoError(t, err)
	assert.Equal(t, "two", payload)

	_, err = s.Next()
	assert.Equal(t, io.EOF, err)
}

func TestSSEScannerJoinsMultiLineData(t *testing.T) {
	s := newSSEScanner(strings.NewReader("data: line1\ndata: line2\n\n"))

	payload, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2", payload)
}

func TestSSEScannerSkipsCommentsAndOtherFields(t *testing.T) {
	s := newSSEScanner(strings.NewReader(": keep-alive\nevent: message\nid: 3\ndata: payload\n\n"))

	payload, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "payload", payload)
}

func TestSSEScannerDoneSentinel(t *testing.T) {
	s := newSSEScanner(strings.NewReader("data: [DONE]\n\ndata: never\n\n"))

	_, err := s.Next()
	assert.Equal(t, io.EOF, err)
}

func TestSSEScannerNoSpaceAfterColon(t *testing.T) {
	s := newSSEScanner(strings.NewReader("data:tight\n\n"))

	payload, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "tight", payload)
}

func TestSSEScannerUnterminatedFinalEvent(t *testing.T) {
	s := newSSEScanner(strings.NewReader("data: tail"))

	payload, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "tail", payload)
}
