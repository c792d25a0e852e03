package portal

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/fclairamb/ntlsync/internal/apperrors"
	"github.com/fclairamb/ntlsync/internal/tree"
)

// Icon alt texts identifying content entries.
const (
	altContentFolder = "Content Folder"
	altItem          = "Item"
	altAcuStudio     = "AcuStudio"
	altFile          = "File"
)

var (
	// e.g. javascript:globalNavMenu.goToUrl('/webapps/blackboard/execute/launcher?type=Course&id=_302242_1&url=');
	courseIDPattern = regexp.MustCompile(`type=Course&id=_(\S+)&url=`)

	lectureUserPattern   = regexp.MustCompile(`var gsUserId\s+= "(\S+)";`)
	lectureModulePattern = regexp.MustCompile(`var gsModuleId\s+= "(\S+)";`)
	lectureStreamPattern = regexp.MustCompile(`addStreamInfo\("NTU-ME\d+", "(.*)", "", "", "", "as"\)`)
)

func newDocument(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// parseCourses reads the global course menu. Links without a course id are skipped.
func parseCourses(body []byte) ([]tree.Course, []string, error) {
	doc, err := newDocument(body)
	if err != nil {
		return nil, nil, err
	}

	var courses []tree.Course
	var unparsed []string
	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		onclick, _ := a.Attr("onclick")
		m := courseIDPattern.FindStringSubmatch(onclick)
		if m == nil {
			unparsed = append(unparsed, onclick)
			return
		}
		courses = append(courses, tree.Course{
			Name: strings.TrimSpace(a.Contents().First().Text()),
			ID:   "_" + m[1],
		})
	})
	return courses, unparsed, nil
}

// contentArea is an entry of the course menu.
type contentArea struct {
	Name string
	Link string
}

// parseContentAreas reads the content links of a course menu palette.
func parseContentAreas(body []byte) ([]contentArea, error) {
	doc, err := newDocument(body)
	if err != nil {
		return nil, err
	}

	var areas []contentArea
	doc.Find("ul#courseMenuPalette_contents").Children().Each(func(_ int, li *goquery.Selection) {
		a := li.Find("a").First()
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		if _, _, ok := tree.ParseListContentURL(href); !ok {
			return
		}
		areas = append(areas, contentArea{Name: strings.TrimSpace(a.Text()), Link: href})
	})
	return areas, nil
}

// parseContentPage converts a content listing into nodes. Sub-folders are left unloaded.
func parseContentPage(body []byte) ([]tree.Node, error) {
	doc, err := newDocument(body)
	if err != nil {
		return nil, err
	}

	nodes := []tree.Node{}
	doc.Find("ul#content_listContainer").Children().Each(func(_ int, li *goquery.Selection) {
		img := li.Find("img").First()
		if img.Length() == 0 {
			return
		}
		alt, _ := img.Attr("alt")
		a := li.Find("a").First()
		name := strings.TrimSpace(a.Text())
		href, _ := a.Attr("href")

		switch {
		case alt == altContentFolder:
			nodes = append(nodes, &tree.Folder{
				Name:    name,
				Link:    strings.TrimSpace(href),
				Details: strings.TrimSpace(li.Find("div.details").First().Text()),
			})
		case alt == altItem || (alt == "" && li.Find("div.item.clearfix").Length() > 0):
			// Some items have no icon.
			if folder := itemToFolder(li); folder != nil {
				nodes = append(nodes, folder)
			}
		case alt == altAcuStudio:
			nodes = append(nodes, &tree.RecordedLecture{Name: name, PredownloadLink: href})
		case alt == altFile:
			nodes = append(nodes, &tree.File{Name: name, Link: href})
		}
	})
	return nodes, nil
}

// itemToFolder turns an item with attached documents into a folder of files.
// Items without documents return nil.
func itemToFolder(li *goquery.Selection) *tree.Folder {
	var files []tree.Node
	li.Find("div.details").First().Find("a").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if tree.IsDownloadLink(href) {
			files = append(files, &tree.File{Name: strings.TrimSpace(a.Text()), Link: href})
		}
	})
	if len(files) == 0 {
		return nil
	}
	return &tree.Folder{Name: strings.TrimSpace(li.Find("h3").First().Text()), Children: files}
}

// parseLecturePage finds the mp4 location of an AcuStudio player page.
func parseLecturePage(body []byte) (string, error) {
	html := string(body)
	user := lectureUserPattern.FindStringSubmatch(html)
	module := lectureModulePattern.FindStringSubmatch(html)
	stream := lectureStreamPattern.FindStringSubmatch(html)
	if user == nil || module == nil || stream == nil {
		return "", apperrors.ErrLectureLinkNotFound
	}
	return "https://" + stream[1] + "/content/" + user[1] + "/" + module[1] + "/media/1.mp4", nil
}
