package source

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/kiesman99/dezoom/internal/logging"
)

// pagePattern finds a base directory in an HTML page. The first non-empty
// capture group is used, or the whole match when there are none.
type pagePattern struct {
	name string
	rx   *regexp.Regexp
}

var pagePatterns = []pagePattern{
	{"zoomifyImagePath", regexp.MustCompile(`zoomifyImagePath=([^'"&]*)['"&]`)},
	{"ZoomifyCache", regexp.MustCompile(`ZoomifyCache/[^'"&.]+\.\d+x\d+`)},
	// HTML5 viewers reference the first tile group directly.
	{"TileGroup0", regexp.MustCompile(`"([^"']+)/TileGroup0[^"']*"|'([^"']+)/TileGroup0[^"']*'`)},
	// JavaScript viewer 1.8
	{"showImage", regexp.MustCompile(`showImage\([^,]+, *["']([^"']+)["']`)},
}

// Page discovers the base directory by scanning a web page that embeds a
// Zoomify viewer.
type Page struct {
	*Zoomify
}

// NewPage wraps z with page discovery.
func NewPage(z *Zoomify) *Page {
	return &Page{Zoomify: z}
}

// Resolve downloads pageURL and extracts the pyramid's base directory.
func (p *Page) Resolve(ctx context.Context, pageURL string) (string, error) {
	content, err := p.get(ctx, pageURL)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: page %s: %v", ErrNotFound, pageURL, err)
	}

	imagePath, ok := FindImagePath(string(content))
	if !ok {
		return "", fmt.Errorf("%w: no Zoomify base directory in %s", ErrNotFound, pageURL)
	}
	logging.Logger().Debug("found zoomify image path", "path", imagePath)

	if unquoted, err := url.PathUnescape(imagePath); err == nil {
		imagePath = unquoted
	}
	page, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("%w: invalid page URL %q", ErrNotFound, pageURL)
	}
	ref, err := url.Parse(imagePath)
	if err != nil {
		return "", fmt.Errorf("%w: invalid image path %q", ErrNotFound, imagePath)
	}
	return strings.TrimRight(page.ResolveReference(ref).String(), "/") + "/", nil
}

// FindImagePath returns the first base directory reference found in content.
func FindImagePath(content string) (string, bool) {
	for _, p := range pagePatterns {
		m := p.rx.FindStringSubmatch(content)
		if m == nil {
			continue
		}
		if len(m) == 1 {
			return m[0], true
		}
		for _, group := range m[1:] {
			if group != "" {
				return group, true
			}
		}
	}
	return "", false
}
