package ytdlp

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResults(t *testing.T) {
	input := strings.Join([]string{
		`{"id":"abc12345678","title":"Song One","webpage_url":"https://www.youtube.com/watch?v=abc12345678","channel":"Artist","channel_id":"UC1","channel_is_verified":true,"view_count":1500000,"duration":213.5,"thumbnail":"https://i.ytimg.com/1.jpg"}`,
		``,
		`{"id":"def12345678","title":"Song Two","url":"https://www.youtube.com/watch?v=def12345678","uploader":"Uploader Name","duration":180}`,
	}, "\n")

	results, err := ParseResults(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, results, 2)

	first := results[0]
	assert.Equal(t, "abc12345678", first.ID)
	assert.Equal(t, "https://www.youtube.com/watch?v=abc12345678", first.URL)
	assert.Equal(t, "Artist", first.Channel)
	assert.True(t, first.Verified)
	assert.Equal(t, int64(1500000), first.Views)
	assert.Equal(t, 213*time.Second+500*time.Millisecond, first.Duration)

	second := results[1]
	assert.Equal(t, "https://www.youtube.com/watch?v=def12345678", second.URL, "url field backfills missing webpage_url")
	assert.Equal(t, "Uploader Name", second.Channel, "uploader backfills missing channel")
}

func TestParseResultsEmptyInput(t *testing.T) {
	results, err := ParseResults(strings.NewReader("\n\n"))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestParseResultsMalformedLine(t *testing.T) {
	_, err := ParseResults(strings.NewReader(`{"id":"abc"` + "\n"))
	assert.Error(t, err)
}

func TestFirstLine(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"single line", "ERROR: blocked", "ERROR: blocked"},
		{"multi line keeps first", "ERROR: blocked\nWARNING: other", "ERROR: blocked"},
		{"surrounding whitespace trimmed", "  oops \n", "oops"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, firstLine(tt.in))
		})
	}
}

func TestNewRunnerDefaultsBinary(t *testing.T) {
	r := NewRunner("", nil)
	assert.Equal(t, DefaultBinary, r.binary)

	r = NewRunner("/opt/yt-dlp", nil)
	assert.Equal(t, "/opt/yt-dlp", r.binary)
}
