// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package threadtext

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	looksLikeHTML = regexp.MustCompile(`(?i)<(html|body|div|p|br|span|table|a|b|i|img|font|td)[\s/>]`)
	spaceRun      = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
)

// Elements whose contents are never user visible text.
var skipped = map[atom.Atom]bool{
	atom.Script: true,
	atom.Style:  true,
	atom.Head:   true,
	atom.Title:  true,
}

// Elements that start a new line of text.
var blocks = map[atom.Atom]bool{
	atom.Br: true, atom.P: true, atom.Div: true, atom.Li: true,
	atom.Tr: true, atom.Table: true, atom.Blockquote: true,
	atom.H1: true, atom.H2: true, atom.H3: true,
	atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Ul: true, atom.Ol: true, atom.Hr: true, atom.Pre: true,
}

// PlainText converts an HTML or plain text body to normalized plain
// text: tags and scripts removed, entities decoded, runs of blank
// space collapsed and trailing space trimmed from every line.
func PlainText(body string) string {
	if looksLikeHTML.MatchString(body) {
		body = stripHTML(body)
	}
	return normalize(body)
}

func stripHTML(s string) string {
	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	depth := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or a malformed document; either way we
			// keep what we have.
			return sb.String()
		case html.TextToken:
			if depth == 0 {
				sb.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			tt := z.Token()
			a := tt.DataAtom
			if skipped[a] && tt.Type == html.StartTagToken {
				depth++
			}
			if blocks[a] {
				sb.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if skipped[a] && depth > 0 {
				depth--
			}
			if blocks[a] {
				sb.WriteByte('\n')
			}
		}
	}
}

func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
