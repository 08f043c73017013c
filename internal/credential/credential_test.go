package credential

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		want  string
		found bool
	}{
		{"embedded in sentence", "here is my bot 123456:ABC-defGHI", "123456:ABC-defGHI", true},
		{"bare token", "987:xyz_1", "987:xyz_1", true},
		{"first match wins", "11:aaa then 22:bbb", "11:aaa", true},
		{"stops at punctuation", "token=42:abc.def", "42:abc", true},
		{"no digits", "abc:def", "", false},
		{"no body", "123456:", "", false},
		{"empty", "", "", false},
		{"plain text", "hello, please clone my bot", "", false},
		{"digits glued to letters", "x123:abc", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Extract(tt.text)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	text := "forwarded: 555:Secret-Token_9 and more"
	first, _ := Extract(text)
	for i := 0; i < 10; i++ {
		got, _ := Extract(text)
		assert.Equal(t, first, got)
	}
}

func TestSessionName(t *testing.T) {
	assert.Equal(t, "123456ABCdefGHI", SessionName("123456:ABC-defGHI"))
	assert.Equal(t, "1ab", SessionName("1:a_b"))
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "123456:***", Redact("123456:ABC-defGHI"))
	assert.Equal(t, "***", Redact("garbage"))
}
