package extract

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Sentinel titles used when a page could not be processed. Records carrying
// them still flow through aggregation so callers can see which URLs failed.
const (
	TitleFetchFailed      = "Error - Fetch Failed"
	TitleExtractionFailed = "Error - Extraction Failed"
	TitleMissing          = "No title found"
)

// Heading is a single h1-h6 element with markup stripped.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// PageRecord is the structured content of one crawled page.
type PageRecord struct {
	URL             string    `json:"url"`
	Title           string    `json:"title"`
	MetaDescription string    `json:"meta_description"`
	MetaKeywords    string    `json:"meta_keywords"`
	Headings        []Heading `json:"headings"`
	InternalLinks   []string  `json:"internal_links"`
	ExternalLinks   []string  `json:"external_links"`
	ImageAlts       []string  `json:"image_alts"`
	ButtonTexts     []string  `json:"button_texts"`
	Content         string    `json:"content"`
}

// Failed reports whether this record is an error sentinel rather than
// extracted content.
func (r PageRecord) Failed() bool {
	return r.Title == TitleFetchFailed || r.Title == TitleExtractionFailed
}

// FailedRecord builds an error-sentinel record for a URL.
func FailedRecord(pageURL, title string) PageRecord {
	return PageRecord{URL: pageURL, Title: title, Content: ""}
}

// MaxContentChars caps the free-text content of a single page.
const MaxContentChars = 15000

// Containers whose text never contributes to page content.
var skippedContainers = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"head":     true,
	"nav":      true,
	"header":   true,
	"footer":   true,
	"aside":    true,
	"form":     true,
	"iframe":   true,
	"svg":      true,
}

// Generic containers are also dropped when their class or id marks them as
// review or testimonial blocks, which would skew the extracted voice.
var excludedClassPattern = regexp.MustCompile(`(?i)review|testimonial|rating`)

var whitespacePattern = regexp.MustCompile(`\s+`)

// Extract parses an HTML document and returns its structured content.
// It never fetches anything; pageURL is only used to resolve relative links
// and classify them as internal or external.
func Extract(pageURL string, body []byte) PageRecord {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return FailedRecord(pageURL, TitleExtractionFailed)
	}

	base, baseErr := url.Parse(pageURL)
	record := PageRecord{
		URL:   pageURL,
		Title: TitleMissing,
	}

	ex := &extractor{
		record:    &record,
		base:      base,
		baseValid: baseErr == nil && base.Host != "",
		seenLinks: make(map[string]bool),
	}
	ex.walk(doc)

	content := ex.contentBuilder.String()
	if ex.mainBuilder.Len() > 0 {
		content = ex.mainBuilder.String()
	}
	content = strings.TrimSpace(whitespacePattern.ReplaceAllString(content, " "))
	// The cap is in characters, not bytes, so multi-byte pages keep the
	// full budget and truncation never splits a rune.
	if runes := []rune(content); len(runes) > MaxContentChars {
		content = string(runes[:MaxContentChars])
	}
	record.Content = content

	return record
}

type extractor struct {
	record    *PageRecord
	base      *url.URL
	baseValid bool
	seenLinks map[string]bool

	contentBuilder strings.Builder
	mainBuilder    strings.Builder
	inMain         bool
}

func (ex *extractor) walk(n *html.Node) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "title":
			if title := strings.TrimSpace(textContent(n)); title != "" && ex.record.Title == TitleMissing {
				ex.record.Title = title
			}
		case "meta":
			ex.handleMeta(n)
		case "h1", "h2", "h3", "h4", "h5", "h6":
			if text := strings.TrimSpace(collapseSpace(textContent(n))); text != "" {
				ex.record.Headings = append(ex.record.Headings, Heading{
					Level: int(n.Data[1] - '0'),
					Text:  text,
				})
			}
		case "a":
			ex.handleLink(n)
		case "img":
			if alt := strings.TrimSpace(attr(n, "alt")); alt != "" {
				ex.record.ImageAlts = append(ex.record.ImageAlts, alt)
			}
		case "button":
			if text := strings.TrimSpace(collapseSpace(textContent(n))); text != "" {
				ex.record.ButtonTexts = append(ex.record.ButtonTexts, text)
			}
		case "input":
			typ := strings.ToLower(attr(n, "type"))
			if typ == "submit" || typ == "button" {
				if value := strings.TrimSpace(attr(n, "value")); value != "" {
					ex.record.ButtonTexts = append(ex.record.ButtonTexts, value)
				}
			}
		}

		if skippedContainers[n.Data] {
			// Still collect links and alts below chrome elements like nav,
			// but never their text.
			ex.walkMetadataOnly(n)
			return
		}
		if (n.Data == "div" || n.Data == "section") && ex.isExcludedBlock(n) {
			ex.walkMetadataOnly(n)
			return
		}
		if n.Data == "main" && !ex.inMain {
			ex.inMain = true
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				ex.walk(c)
			}
			ex.inMain = false
			return
		}
	}

	if n.Type == html.TextNode {
		if text := strings.TrimSpace(n.Data); text != "" {
			ex.appendText(text)
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		ex.walk(c)
	}
}

// walkMetadataOnly descends into excluded containers collecting headings,
// links, image alts and button labels without accumulating text content.
func (ex *extractor) walkMetadataOnly(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			switch c.Data {
			case "title":
				if title := strings.TrimSpace(textContent(c)); title != "" && ex.record.Title == TitleMissing {
					ex.record.Title = title
				}
			case "meta":
				ex.handleMeta(c)
			case "h1", "h2", "h3", "h4", "h5", "h6":
				if text := strings.TrimSpace(collapseSpace(textContent(c))); text != "" {
					ex.record.Headings = append(ex.record.Headings, Heading{
						Level: int(c.Data[1] - '0'),
						Text:  text,
					})
				}
			case "a":
				ex.handleLink(c)
			case "img":
				if alt := strings.TrimSpace(attr(c, "alt")); alt != "" {
					ex.record.ImageAlts = append(ex.record.ImageAlts, alt)
				}
			case "button":
				if text := strings.TrimSpace(collapseSpace(textContent(c))); text != "" {
					ex.record.ButtonTexts = append(ex.record.ButtonTexts, text)
				}
			case "script", "style", "noscript", "template":
				continue
			}
		}
		ex.walkMetadataOnly(c)
	}
}

func (ex *extractor) appendText(text string) {
	builder := &ex.contentBuilder
	if ex.inMain {
		builder = &ex.mainBuilder
	}
	if builder.Len() > 0 {
		builder.WriteByte(' ')
	}
	builder.WriteString(text)
}

func (ex *extractor) handleMeta(n *html.Node) {
	name := strings.ToLower(attr(n, "name"))
	content := strings.TrimSpace(attr(n, "content"))
	if content == "" {
		return
	}
	switch name {
	case "description":
		if ex.record.MetaDescription == "" {
			ex.record.MetaDescription = content
		}
	case "keywords":
		if ex.record.MetaKeywords == "" {
			ex.record.MetaKeywords = content
		}
	}
}

func (ex *extractor) handleLink(n *html.Node) {
	href := strings.TrimSpace(attr(n, "href"))
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") ||
		strings.HasPrefix(href, "javascript:") {
		return
	}

	resolved := href
	if ex.baseValid {
		if u, err := ex.base.Parse(href); err == nil {
			resolved = u.String()
		}
	}

	u, err := url.Parse(resolved)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return
	}

	link := u.String()
	if ex.seenLinks[link] {
		return
	}
	ex.seenLinks[link] = true

	if ex.baseValid && sameSite(ex.base.Host, u.Host) {
		ex.record.InternalLinks = append(ex.record.InternalLinks, link)
	} else {
		ex.record.ExternalLinks = append(ex.record.ExternalLinks, link)
	}
}

func (ex *extractor) isExcludedBlock(n *html.Node) bool {
	class := attr(n, "class")
	id := attr(n, "id")
	return excludedClassPattern.MatchString(class) || excludedClassPattern.MatchString(id)
}

// sameSite treats subdomains as in-domain, so a link to blog.example.com
// from example.com counts as internal.
func sameSite(baseHost, linkHost string) bool {
	base := stripWWW(baseHost)
	link := stripWWW(linkHost)
	return link == base || strings.HasSuffix(link, "."+base)
}

func stripWWW(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return b.String()
}

func collapseSpace(s string) string {
	return whitespacePattern.ReplaceAllString(s, " ")
}
