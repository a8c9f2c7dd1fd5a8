package crawler

import (
	"net/url"
	"regexp"
	"strings"
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{6,}$`)

// pathPrefixes lists the URL path forms that carry the id as the next segment.
var pathPrefixes = []string{"embed", "shorts", "live", "v", "e"}

// VideoID extracts the item id from a watch URL. It understands
// /watch?v=ID, youtu.be/ID and the /embed, /shorts, /live and /v path forms.
// ok is false when no plausible id is present.
func VideoID(rawURL string) (string, bool) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", false
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	segments := splitPath(u.Path)

	switch {
	case host == "youtu.be":
		if len(segments) > 0 {
			return validID(segments[0])
		}
	case host == "youtube.com" || host == "music.youtube.com" || host == "youtube-nocookie.com":
		if v := u.Query().Get("v"); v != "" {
			return validID(v)
		}
		if len(segments) >= 2 {
			for _, prefix := range pathPrefixes {
				if segments[0] == prefix {
					return validID(segments[1])
				}
			}
		}
	}
	return "", false
}

func splitPath(p string) []string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	out := parts[:0]
	for _, s := range parts {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func validID(candidate string) (string, bool) {
	if !videoIDPattern.MatchString(candidate) {
		return "", false
	}
	return candidate, true
}
