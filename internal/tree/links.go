package tree

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/fclairamb/ntlsync/internal/apperrors"
)

// DefaultBaseURL is the portal the links are relative to.
const DefaultBaseURL = "https://ntulearn.ntu.edu.sg"

const downloadPathPrefix = "/bbcswebdav/"

var (
	// e.g. /bbcswebdav/pid-1875199-dt-content-rid-9478986_1/xid-9478986_1
	downloadLinkPattern = regexp.MustCompile(`bbcswebdav/pid-\d+-dt-content-rid-\d+`)

	listContentPattern = regexp.MustCompile(
		`/webapps/blackboard/content/listContent\.jsp\?course_id=(_\d+_\d+)&content_id=(_\d+_\d+)`)
)

// IsDownloadLink reports whether link points at a stored course document.
func IsDownloadLink(link string) bool {
	return downloadLinkPattern.MatchString(link)
}

// NormalizeFileLink turns a relative document link into an absolute predownload link on baseURL.
func NormalizeFileLink(baseURL, link string) (string, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.HasPrefix(link, baseURL+downloadPathPrefix) && strings.HasPrefix(link, downloadPathPrefix) {
		link = baseURL + link
	}
	if !IsDownloadLink(link) {
		return "", &apperrors.InvalidLinkError{Link: link}
	}
	return link, nil
}

// ParseListContentURL extracts the course and content ids of a content listing link.
func ParseListContentURL(link string) (string, string, bool) {
	m := listContentPattern.FindStringSubmatch(link)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// FilenameFromURL returns the unescaped last path segment of link.
func FilenameFromURL(link string) (string, bool) {
	idx := strings.LastIndex(link, "/")
	if idx < 0 {
		return "", false
	}
	name := link[idx+1:]
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	return name, true
}
