package scanner

import "bytes"

// pragmaWindow bounds how far into a template the extends pragma may sit.
// The whole pragma comment must fit inside this window.
const pragmaWindow = 2048

var (
	commentOpen  = []byte("<!--")
	commentClose = []byte("-->")
	pragmaName   = []byte("vellum:")
	extendsKey   = []byte("extends")
)

// ParseExtends scans the head of a template for an extends pragma of the
// form
//
//	<!-- vellum: extends="app/name.html" -->
//
// and returns the quoted parent reference. Whitespace inside the comment is
// flexible; the value must be double-quoted and the comment must contain
// nothing else. The first well-formed pragma wins; other comments before it
// are skipped.
func ParseExtends(head []byte) (string, bool) {
	if len(head) > pragmaWindow {
		head = head[:pragmaWindow]
	}

	for {
		start := bytes.Index(head, commentOpen)
		if start < 0 {
			return "", false
		}
		rest := head[start+len(commentOpen):]

		end := bytes.Index(rest, commentClose)
		if end < 0 {
			return "", false
		}

		if parent, ok := parsePragmaBody(rest[:end]); ok {
			return parent, true
		}
		head = rest[end+len(commentClose):]
	}
}

// parsePragmaBody parses the inside of one comment. The accepted shape is
// `vellum: extends="<value>"` with arbitrary surrounding whitespace.
func parsePragmaBody(body []byte) (string, bool) {
	body = bytes.TrimSpace(body)
	if !bytes.HasPrefix(body, pragmaName) {
		return "", false
	}
	body = bytes.TrimSpace(body[len(pragmaName):])

	if !bytes.HasPrefix(body, extendsKey) {
		return "", false
	}
	body = bytes.TrimSpace(body[len(extendsKey):])

	if len(body) == 0 || body[0] != '=' {
		return "", false
	}
	body = bytes.TrimSpace(body[1:])

	if len(body) < 2 || body[0] != '"' {
		return "", false
	}
	closing := bytes.IndexByte(body[1:], '"')
	if closing < 0 {
		return "", false
	}

	value := string(body[1 : 1+closing])
	if value == "" {
		return "", false
	}

	// Trailing garbage inside the comment disqualifies the pragma.
	if len(bytes.TrimSpace(body[closing+2:])) != 0 {
		return "", false
	}
	return value, true
}
