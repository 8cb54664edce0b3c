package engine

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

var tagShape = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*[a-z0-9]$|^[a-z0-9]$`)

func TestSanitizeTag(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"MyApp", "myapp"},
		{"order service", "order_service"},
		{"  spaced  out  ", "spaced_out"},
		{"weird!!chars##", "weirdchars"},
		{"trailing---", "trailing"},
		{"__leading", "leading"},
		{"dots..and--dashes", "dots.and-dashes"},
		{"", "fn"},
		{"!!!", "fn"},
	}
	for _, tc := range cases {
		got := SanitizeTag(tc.in)
		require.Equal(t, tc.want, got, "input %q", tc.in)
		require.Regexp(t, tagShape, got, "input %q", tc.in)
	}
}

func TestSanitizeTagDeterministic(t *testing.T) {
	for i := 0; i < 3; i++ {
		require.Equal(t, SanitizeTag("Mixed CASE app"), SanitizeTag("Mixed CASE app"))
	}
}

func TestImageTag(t *testing.T) {
	tag := ImageTag("splinter", "user-1", "Shop App", "get_orders", "GET")
	require.Equal(t, "splinter-user-1-shop_app-get_orders_get", tag)
	require.Regexp(t, tagShape, tag)
}
