package llm

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEScanner(t *testing.T) {
	input := ": keep-alive\n" +
		"event: message\n" +
		"data: {\"a\":1}\n\n" +
		"data: line1\n" +
		"data: line2\n\n" +
		"data: [DONE]\n\n"
	s := newSSEScanner(strings.NewReader(input))

	p, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, p)

	p, err = s.Next()
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2", p)

	_, err = s.Next()
	assert.ErrorIs(t, err, errStreamDone)
}

func TestSSEScanner_EOFWithoutTerminator(t *testing.T) {
	s := newSSEScanner(strings.NewReader("data: tail"))

	p, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "tail", p)

	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)
}
