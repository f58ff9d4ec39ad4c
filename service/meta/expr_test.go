package meta

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("STEPFLOW_REGISTRY", "registry.example.com")

	testCases := []struct {
		name   string
		input  string
		expect string
	}{
		{name: "no expression", input: "plain value", expect: "plain value"},
		{name: "single expression", input: "host: ${env.STEPFLOW_REGISTRY}", expect: "host: registry.example.com"},
		{name: "unset variable", input: "${env.STEPFLOW_UNSET_XYZ}", expect: ""},
		{name: "unterminated", input: "${env.STEPFLOW_REGISTRY", expect: "${env.STEPFLOW_REGISTRY"},
		{name: "invalid key", input: "${env.a-b}", expect: "${env.a-b}"},
		{
			name:   "multiple expressions",
			input:  "${env.STEPFLOW_REGISTRY}/${env.STEPFLOW_REGISTRY}",
			expect: "registry.example.com/registry.example.com",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, ExpandEnv(tc.input))
		})
	}
}
