// Package sanitizer cleans HTML mail bodies before they are handed to
// the admin UI: scripts and event handlers are stripped and external
// images are blocked to neutralize tracking pixels.
package sanitizer

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// HTMLSanitizer cleans HTML content from stored messages.
type HTMLSanitizer interface {
	// Sanitize applies all sanitization rules to HTML content
	Sanitize(html string) string
	// RemoveScripts removes all script tags and their content
	RemoveScripts(html string) string
	// RemoveEventHandlers removes all inline event handlers (onclick, onload, etc.)
	RemoveEventHandlers(html string) string
	// BlockExternalImages replaces external image sources with a placeholder
	BlockExternalImages(html string) string
}

// DefaultHTMLSanitizer implements HTMLSanitizer using bluemonday
type DefaultHTMLSanitizer struct {
	policy *bluemonday.Policy
}

// NewHTMLSanitizer creates an HTML sanitizer with secure defaults
func NewHTMLSanitizer() *DefaultHTMLSanitizer {
	policy := bluemonday.UGCPolicy()

	policy.AllowElements("html", "head", "body", "title", "meta")

	// Formatting elements commonly produced by mail clients
	policy.AllowElements(
		"p", "br", "hr", "div", "span",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"strong", "b", "em", "i", "u", "s", "strike",
		"blockquote", "pre", "code",
		"ul", "ol", "li", "dl", "dt", "dd",
		"table", "thead", "tbody", "tfoot", "tr", "th", "td",
		"a", "img",
		"font", "center",
	)

	policy.AllowAttrs("href").OnElements("a")
	policy.AllowAttrs("src", "alt", "width", "height").OnElements("img")
	policy.AllowAttrs("style", "class", "id").Globally()
	policy.AllowAttrs("align", "valign", "bgcolor", "color", "size", "face").Globally()
	policy.AllowAttrs("colspan", "rowspan", "border", "cellpadding", "cellspacing").OnElements("table", "td", "th")

	// Inline base64 images stay intact
	policy.AllowDataURIImages()

	return &DefaultHTMLSanitizer{
		policy: policy,
	}
}

// dataURIPlaceholderPrefix temporarily replaces data URIs during sanitization
const dataURIPlaceholderPrefix = "___DATA_URI_PLACEHOLDER_"

// Sanitize applies all sanitization rules to HTML content
func (s *DefaultHTMLSanitizer) Sanitize(html string) string {
	if html == "" {
		return ""
	}

	result := s.RemoveScripts(html)
	result = s.RemoveEventHandlers(result)
	result = s.BlockExternalImages(result)

	// bluemonday can be strict with data URIs containing special
	// characters, so they are preserved around its pass
	dataURIs := make(map[string]string)
	result = s.preserveDataURIs(result, dataURIs)
	result = s.policy.Sanitize(result)
	result = s.restoreDataURIs(result, dataURIs)

	return result
}

func (s *DefaultHTMLSanitizer) preserveDataURIs(html string, store map[string]string) string {
	dataURIRegex := regexp.MustCompile(`(?i)(src\s*=\s*["'])(data:[^"']+)(["'])`)

	counter := 0
	return dataURIRegex.ReplaceAllStringFunc(html, func(match string) string {
		submatches := dataURIRegex.FindStringSubmatch(match)
		if len(submatches) < 4 {
			return match
		}

		placeholder := dataURIPlaceholderPrefix + string(rune('A'+counter))
		store[placeholder] = submatches[2]
		counter++

		return submatches[1] + placeholder + submatches[3]
	})
}

func (s *DefaultHTMLSanitizer) restoreDataURIs(html string, store map[string]string) string {
	result := html
	for placeholder, dataURI := range store {
		result = strings.ReplaceAll(result, placeholder, dataURI)
	}
	return result
}

// RemoveScripts removes all script tags and their content
func (s *DefaultHTMLSanitizer) RemoveScripts(html string) string {
	if html == "" {
		return ""
	}

	scriptRegex := regexp.MustCompile(`(?i)<script[^>]*>[\s\S]*?</script>`)
	result := scriptRegex.ReplaceAllString(html, "")

	selfClosingScript := regexp.MustCompile(`(?i)<script[^>]*/?>`)
	result = selfClosingScript.ReplaceAllString(result, "")

	noscriptRegex := regexp.MustCompile(`(?i)<noscript[^>]*>[\s\S]*?</noscript>`)
	return noscriptRegex.ReplaceAllString(result, "")
}

// RemoveEventHandlers removes all inline event handlers (onclick,
// onload, onerror, onmouseover and friends)
func (s *DefaultHTMLSanitizer) RemoveEventHandlers(html string) string {
	if html == "" {
		return ""
	}

	eventHandlerRegex := regexp.MustCompile(`(?i)\s+on[a-z]+\s*=\s*(?:"[^"]*"|'[^']*'|[^\s>]+)`)
	return eventHandlerRegex.ReplaceAllString(html, "")
}

// BlockExternalImages replaces external image sources with a
// placeholder, which stops tracking pixels from loading
func (s *DefaultHTMLSanitizer) BlockExternalImages(html string) string {
	if html == "" {
		return ""
	}

	const blockedImagePlaceholder = "data:image/svg+xml,%3Csvg xmlns='http://www.w3.org/2000/svg' width='100' height='100'%3E%3Crect fill='%23f0f0f0' width='100' height='100'/%3E%3Ctext x='50' y='55' text-anchor='middle' fill='%23999' font-size='12'%3EImage Blocked%3C/text%3E%3C/svg%3E"

	imgRegex := regexp.MustCompile(`(?i)(<img[^>]*\s+src\s*=\s*)("[^"]*"|'[^']*')([^>]*>)`)

	return imgRegex.ReplaceAllStringFunc(html, func(match string) string {
		srcRegex := regexp.MustCompile(`(?i)src\s*=\s*["']([^"']*)["']`)
		srcMatch := srcRegex.FindStringSubmatch(match)
		if len(srcMatch) < 2 {
			return match
		}

		srcValue := strings.ToLower(srcMatch[1])

		// Inline images and embedded cid: references stay
		if strings.HasPrefix(srcValue, "data:") || strings.HasPrefix(srcValue, "cid:") {
			return match
		}

		if isExternalURL(srcValue) {
			return srcRegex.ReplaceAllString(match, `src="`+blockedImagePlaceholder+`"`)
		}

		return match
	})
}

// isExternalURL checks if a URL is external (http, https, protocol-relative)
func isExternalURL(url string) bool {
	url = strings.TrimSpace(strings.ToLower(url))

	if strings.HasPrefix(url, "//") {
		return true
	}
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return true
	}
	if strings.HasPrefix(url, "ftp://") {
		return true
	}

	return false
}
