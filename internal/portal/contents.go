package portal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/fclairamb/ntlsync/internal/tree"
)

const (
	coursesPath     = "/webapps/blackboard/execute/globalCourseNavMenuSection"
	courseMenuPath  = "/webapps/blackboard/execute/announcement"
	listContentPath = "/webapps/blackboard/content/listContent.jsp"
)

// Courses lists the courses the user is enrolled in.
func (c *Client) Courses(ctx context.Context) ([]tree.Course, error) {
	if err := c.requireSession(); err != nil {
		return nil, err
	}

	resp, err := c.page(ctx, coursesPath, url.Values{
		"cmd":          {"view"},
		"serviceLevel": {"blackboard.data.course.Course$ServiceLevel:FULL"},
	})
	if err != nil {
		return nil, fmt.Errorf("get courses: %w", err)
	}

	courses, unparsed, err := parseCourses(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse courses: %w", err)
	}
	for _, link := range unparsed {
		c.logger.DebugContext(ctx, "unable to parse course link", "link", link)
	}
	return courses, nil
}

// CourseTree returns the root folder of course with one unloaded folder per content area.
func (c *Client) CourseTree(ctx context.Context, course tree.Course) (*tree.Folder, error) {
	if err := c.requireSession(); err != nil {
		return nil, err
	}

	resp, err := c.page(ctx, courseMenuPath, url.Values{
		"method":    {"search"},
		"context":   {"course_entry"},
		"course_id": {course.ID},
	})
	if err != nil {
		return nil, fmt.Errorf("get course menu: %w", err)
	}

	areas, err := parseContentAreas(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse course menu: %w", err)
	}

	children := make([]tree.Node, 0, len(areas))
	for _, area := range areas {
		children = append(children, &tree.Folder{
			Name:    area.Name,
			Link:    area.Link,
			Details: area.Name + " folder. Generated by ntlsync",
		})
	}

	return &tree.Folder{
		Name:     course.Name,
		Details:  "Top level folder for " + course.Name + ". Generated by ntlsync",
		Children: children,
	}, nil
}

// ListContents implements tree.Lister.
func (c *Client) ListContents(ctx context.Context, courseID, contentID string) ([]tree.Node, error) {
	if err := c.requireSession(); err != nil {
		return nil, err
	}

	resp, err := c.page(ctx, listContentPath, url.Values{
		"course_id":  {courseID},
		"content_id": {contentID},
	})
	if err != nil {
		return nil, fmt.Errorf("get contents: %w", err)
	}

	nodes, err := parseContentPage(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse contents: %w", err)
	}
	c.logger.DebugContext(ctx, "listed contents", "course_id", courseID, "content_id", contentID, "count", len(nodes))
	return nodes, nil
}

// ResolveFileLink follows the redirects of a document link. The final URL carries the file name.
func (c *Client) ResolveFileLink(ctx context.Context, predownloadLink string) (string, error) {
	resp, err := c.do(ctx, request{method: http.MethodHead, url: c.absolute(predownloadLink)})
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", predownloadLink, err)
	}
	return resp.URL.String(), nil
}

// ResolveLectureLink scrapes the AcuStudio player page of a recorded lecture for its mp4 link.
func (c *Client) ResolveLectureLink(ctx context.Context, predownloadLink string) (string, error) {
	resp, err := c.do(ctx, request{
		method:  http.MethodGet,
		url:     c.absolute(predownloadLink),
		headers: map[string]string{"X-Requested-With": "XMLHttpRequest"},
	})
	if err != nil {
		return "", fmt.Errorf("get lecture page: %w", err)
	}

	link, err := parseLecturePage(resp.Body)
	if err != nil {
		return "", fmt.Errorf("lecture %s: %w", predownloadLink, err)
	}
	return link, nil
}

// ContentLength returns the advertised size of link, -1 when the server does not say.
func (c *Client) ContentLength(ctx context.Context, link string) (int64, error) {
	resp, err := c.do(ctx, request{method: http.MethodHead, url: c.absolute(link)})
	if err != nil {
		return -1, fmt.Errorf("head %s: %w", link, err)
	}
	return resp.ContentLength, nil
}

// Download opens the body of link. The caller closes it.
func (c *Client) Download(ctx context.Context, link string) (io.ReadCloser, error) {
	resp, err := c.send(ctx, request{method: http.MethodGet, url: c.absolute(link)})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// absolute prefixes portal-relative links with the base URL.
func (c *Client) absolute(link string) string {
	if strings.HasPrefix(link, "/") {
		return c.baseURL + link
	}
	return link
}
