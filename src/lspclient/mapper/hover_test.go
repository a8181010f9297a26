package mapper

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawToHoverText(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{
			name: "null result",
			raw:  `null`,
			want: "",
		},
		{
			name: "empty body",
			raw:  ``,
			want: "",
		},
		{
			name: "markup content",
			raw:  `{"contents":{"kind":"markdown","value":"**func** main()"}}`,
			want: "**func** main()",
		},
		{
			name: "plain marked string",
			raw:  `{"contents":"just text"}`,
			want: "just text",
		},
		{
			name: "language marked string",
			raw:  `{"contents":{"language":"go","value":"func main()"}}`,
			want: "```go\nfunc main()\n```",
		},
		{
			name: "array of marked strings",
			raw:  `{"contents":[{"language":"go","value":"var x int"},"","x counts things"]}`,
			want: "```go\nvar x int\n```\n\nx counts things",
		},
		{
			name: "null contents",
			raw:  `{"contents":null}`,
			want: "",
		},
		{
			name:    "malformed",
			raw:     `{"contents":[1,2]}`,
			wantErr: true,
		},
		{
			name:    "not an object",
			raw:     `42`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RawToHoverText(json.RawMessage(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
