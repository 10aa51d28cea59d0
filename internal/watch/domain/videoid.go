package domain

import (
	"net/url"
	"regexp"
	"strings"
)

var bareID = regexp.MustCompile(`^[A-Za-z0-9_-]{5,}$`)

// VideoIDFromURL returns the video id carried by s, which may be a bare id,
// a watch URL (v= query parameter), a /shorts/<id> path or a youtu.be/<id>
// short link. It returns "" when no id can be derived.
func VideoIDFromURL(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if bareID.MatchString(s) {
		return s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	if v := u.Query().Get("v"); bareID.MatchString(v) {
		return v
	}
	path := strings.Trim(u.EscapedPath(), "/")
	if rest, ok := strings.CutPrefix(path, "shorts/"); ok {
		return firstSegment(rest)
	}
	if strings.HasSuffix(strings.ToLower(u.Hostname()), "youtu.be") {
		return firstSegment(path)
	}
	return ""
}

func firstSegment(path string) string {
	seg, _, _ := strings.Cut(path, "/")
	if bareID.MatchString(seg) {
		return seg
	}
	return ""
}
