package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLikePattern(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"deploy", `%deploy%`},
		{"%", `%\%%`},
		{"a_b", `%a\_b%`},
		{`c:\tmp`, `%c:\\tmp%`},
		{`50%_\`, `%50\%\_\\%`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, likePattern(tt.query), "query %q", tt.query)
	}
}
