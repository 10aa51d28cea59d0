package domain

import "testing"

func TestVideoIDFromURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"/watch?v=dQw4w9WgXcQ&list=RDdQw4w9WgXcQ&start_radio=1", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/shorts/abc_DEF-123", "abc_DEF-123"},
		{"/shorts/abc_DEF-123/", "abc_DEF-123"},
		{"https://youtu.be/dQw4w9WgXcQ?t=10", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/@channel/about", ""},
		{"", ""},
		{"abc", ""},
		{"https://www.youtube.com/watch?v=", ""},
	}
	for _, tc := range cases {
		if got := VideoIDFromURL(tc.in); got != tc.want {
			t.Errorf("VideoIDFromURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
