package bwire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPartialSuffix(t *testing.T) {
	delim := []byte("\r\n--abc")

	for _, tt := range []struct {
		window string
		expect int
	}{
		{"", 0},
		{"data", 0},
		{"data\r", 1},
		{"data\r\n", 2},
		{"data\r\n--ab", 6},
		{"data\r\n-x", 0},
		{"\r\n\r\n-", 3},
	} {
		require.Equal(t, tt.expect, partialSuffix([]byte(tt.window), delim), tt.window)
	}
}

func TestMatchDelimiter(t *testing.T) {
	mr := NewMultipartReader(nil, "abc", DefaultConfig())

	for _, tt := range []struct {
		window string
		match  delimMatch
		n      int
	}{
		{"\r\n--abc", delimMore, 0},
		{"\r\n--abc-", delimMore, 0},
		{"\r\n--abc--", delimLast, 9},
		{"\r\n--abc\r\n", delimPart, 9},
		{"\r\n--abc \t\r\nX", delimPart, 11},
		{"\r\n--abc  ", delimMore, 0},
		{"\r\n--abcd\r\n", delimNone, 0},
		{"\r\n--abc\rx", delimNone, 0},
	} {
		match, n := mr.matchDelimiter([]byte(tt.window))
		require.Equal(t, tt.match, match, "%q", tt.window)
		require.Equal(t, tt.n, n, "%q", tt.window)
	}
}
