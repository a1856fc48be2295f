package crawler

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/markusmobius/go-trafilatura"
	"go.uber.org/zap"
)

// ContentExtractor turns raw HTML into plain article text. Trafilatura
// is tried first, readability second; the goquery walk is the last
// resort so pages too small for the article extractors still yield
// their visible text.
type ContentExtractor struct {
	logger *zap.Logger
}

func NewContentExtractor(logger *zap.Logger) *ContentExtractor {
	return &ContentExtractor{logger: logger}
}

func (ce *ContentExtractor) ExtractText(body []byte, pageURL *url.URL) string {
	if text := ce.extractWithTrafilatura(body, pageURL); text != "" {
		return text
	}
	if text := ce.extractWithReadability(body, pageURL); text != "" {
		return text
	}
	return ce.extractWithGoquery(body)
}

func (ce *ContentExtractor) extractWithTrafilatura(body []byte, pageURL *url.URL) string {
	opts := trafilatura.Options{
		OriginalURL: pageURL,
	}
	result, err := trafilatura.Extract(bytes.NewReader(body), opts)
	if err != nil {
		ce.logger.Debug("trafilatura: extraction failed",
			zap.String("url", pageURL.String()),
			zap.Error(err))
		return ""
	}
	return strings.TrimSpace(result.ContentText)
}

func (ce *ContentExtractor) extractWithReadability(body []byte, pageURL *url.URL) string {
	parser := readability.NewParser()
	article, err := parser.Parse(bytes.NewReader(body), pageURL)
	if err != nil {
		ce.logger.Debug("readability: extraction failed",
			zap.String("url", pageURL.String()),
			zap.Error(err))
		return ""
	}
	return strings.TrimSpace(article.TextContent)
}

func (ce *ContentExtractor) extractWithGoquery(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	doc.Find("script, style, nav, header, footer, aside").Remove()

	var texts []string
	doc.Find("main, article, section, p, h1, h2, h3, h4, h5, h6, li").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text != "" {
			texts = append(texts, text)
		}
	})
	if len(texts) == 0 {
		texts = append(texts, doc.Find("body").Text())
	}

	return strings.Join(strings.Fields(strings.Join(texts, " ")), " ")
}
