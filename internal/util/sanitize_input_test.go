package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainsMarkup(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"plain reason", false},
		{"a < b and c > d", false},
		{"<script>alert(1)</script>", true},
		{"hello <b>world</b>", true},
		{"<img src=x onerror=alert(1)>", true},
		{"click javascript:void(0)", true},
		{`x" onload="steal()`, true},
		{"<!-- comment -->", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ContainsMarkup(tt.in))
		})
	}
}
