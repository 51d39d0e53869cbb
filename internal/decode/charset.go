package decode

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

// at most this many leading bytes are searched for an in-document
// declaration.
const sniffLen = 1024

var (
	headerCharset = regexp.MustCompile(`(?i)charset=([^;]*)`)
	html5Meta     = regexp.MustCompile(`(?is)<meta.+?charset=(?:"(.+?)"|'(.+?)')`)
	html4Meta     = regexp.MustCompile(`(?is)<meta\s+?http-equiv=(?:"content-type"|'content-type')\s+?content=(?:"(.+?)"|'(.+?)')`)
	xmlProlog     = regexp.MustCompile(`(?is)<\?xml.+?encoding=(?:"(.+?)"|'(.+?)')`)
)

// DetectCharset resolves the charset of body. The Content-Type parameter
// wins, then an HTML5 meta tag, an HTML4 http-equiv meta tag and an XML
// prolog found in the first 1024 bytes. utf-8 is assumed otherwise.
func DetectCharset(contentType string, body []byte) string {
	label := fromHeader(contentType)
	if label == "" {
		label = fromDocument(body)
	}
	label = strings.ToLower(strings.TrimSpace(label))
	switch label {
	case "":
		return "utf-8"
	case "gb2312", "gbk":
		// both are routinely used for content that is really gb18030
		return "gb18030"
	}
	return label
}

func fromHeader(contentType string) string {
	if m := headerCharset.FindStringSubmatch(contentType); m != nil {
		return strings.Trim(strings.TrimSpace(m[1]), `"'`)
	}
	return ""
}

func fromDocument(body []byte) string {
	if len(body) > sniffLen {
		body = body[:sniffLen]
	}
	if len(body) == 0 {
		return ""
	}
	head := string(body)
	if v := quoted(html5Meta.FindStringSubmatch(head)); v != "" {
		return v
	}
	if v := quoted(html4Meta.FindStringSubmatch(head)); v != "" {
		if m := headerCharset.FindStringSubmatch(v); m != nil {
			return m[1]
		}
	}
	return quoted(xmlProlog.FindStringSubmatch(head))
}

// quoted picks whichever of the double/single quoted alternatives matched.
func quoted(m []string) string {
	if m == nil {
		return ""
	}
	for _, v := range m[1:] {
		if v != "" {
			return v
		}
	}
	return ""
}

// Text decodes body from its detected charset into UTF-8. Labels unknown
// to the WHATWG encoding registry are treated as utf-8 rather than failing
// the read.
func Text(contentType string, body []byte) (string, error) {
	label := DetectCharset(contentType, body)
	enc, _ := charset.Lookup(label)
	if enc == nil {
		return string(body), nil
	}
	out, _, err := transform.Bytes(enc.NewDecoder(), body)
	if err != nil {
		return "", fmt.Errorf("decoding body from %s: %w", label, err)
	}
	return string(out), nil
}
