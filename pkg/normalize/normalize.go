// Package normalize reduces raw RFC 5322 messages to a single plain-text body.
package normalize

import (
	"bytes"
	"io"
	"regexp"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset" // registers non-UTF-8 charsets
	"golang.org/x/text/encoding/unicode"
)

var (
	tagPattern        = regexp.MustCompile(`<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Body extracts the plain-text body of a raw message. A single-part payload is
// decoded as text whatever its media type. In multipart messages all
// text/plain parts are concatenated in structural order; when there are none,
// text/html parts are used instead. HTML is reduced to text by replacing tags
// with spaces. It reports false when no payload could be extracted.
func Body(raw []byte) (string, bool) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !isRecoverable(err) {
		return fallbackBody(raw)
	}

	if entity.MultipartReader() == nil {
		return singlePart(entity)
	}

	var plain, html strings.Builder
	walkErr := entity.Walk(func(_ []int, part *message.Entity, err error) error {
		if err != nil && !isRecoverable(err) {
			return nil
		}

		mediaType, _, _ := part.Header.ContentType()
		switch mediaType {
		case "text/plain", "":
			if part.MultipartReader() != nil {
				return nil
			}
			plain.WriteString(readText(part.Body))
		case "text/html":
			html.WriteString(readText(part.Body))
		}
		return nil
	})
	if walkErr != nil && plain.Len() == 0 && html.Len() == 0 {
		return fallbackBody(raw)
	}

	if plain.Len() > 0 {
		return plain.String(), true
	}
	if html.Len() > 0 {
		if text := StripHTML(html.String()); text != "" {
			return text, true
		}
	}
	return "", false
}

func singlePart(entity *message.Entity) (string, bool) {
	text := readText(entity.Body)
	if mediaType, _, _ := entity.Header.ContentType(); mediaType == "text/html" {
		text = StripHTML(text)
	}
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	return text, true
}

// StripHTML replaces every tag with a single space and collapses whitespace.
// It is a lossy reduction, not an HTML parser.
func StripHTML(s string) string {
	s = tagPattern.ReplaceAllString(s, " ")
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// isRecoverable reports whether go-message still returned a readable entity.
func isRecoverable(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}

// readText reads r and replaces invalid UTF-8 sequences with U+FFFD.
// Read errors keep whatever was read before them.
func readText(r io.Reader) string {
	if r == nil {
		return ""
	}
	b, _ := io.ReadAll(r)
	return toValidUTF8(b)
}

func toValidUTF8(b []byte) string {
	out, err := unicode.UTF8.NewDecoder().Bytes(b)
	if err != nil {
		return string(bytes.ToValidUTF8(b, []byte("�")))
	}
	return string(out)
}

// fallbackBody treats an unparseable message as a bare single-part payload.
func fallbackBody(raw []byte) (string, bool) {
	text := strings.TrimSpace(toValidUTF8(raw))
	if text == "" {
		return "", false
	}
	return text, true
}
