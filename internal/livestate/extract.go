package livestate

import (
	"bytes"
	"encoding/json"
	"strings"

	"golang.org/x/net/html"
)

// Element ids of the script blocks that carry the page state, in the order
// they are tried.
const (
	StateMarker     = "SIGI_STATE"
	RehydrateMarker = "__UNIVERSAL_DATA_FOR_REHYDRATION__"
)

var stateMarkers = []string{StateMarker, RehydrateMarker}

// Document is a parsed state blob. Numbers are kept as json.Number so large
// identifiers survive untouched.
type Document map[string]any

// Extract locates the embedded state script in page markup and parses it.
// It reports false when no marker element exists or its content is not a
// JSON object.
func Extract(markup string) (Document, bool) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, false
	}
	for _, id := range stateMarkers {
		node := findScript(root, id)
		if node == nil {
			continue
		}
		return decodeObject(scriptText(node))
	}
	return nil, false
}

func findScript(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode && n.Data == "script" && attr(n, "id") == id {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findScript(c, id); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func scriptText(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}

// decodeObject parses text as a single JSON object.
func decodeObject(text string) (Document, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil || doc == nil {
		return nil, false
	}
	return Document(doc), true
}
