package render

import (
	"html"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

var codeFormatter = chromahtml.New(chromahtml.WithClasses(true))

// highlightCode renders a code block with server-side syntax
// highlighting. Languages chroma does not know fall back to a plain
// pre/code pair carrying the language class for client-side tooling.
func highlightCode(source, language string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		return plainCode(source, language)
	}
	lexer = chroma.Coalesce(lexer)
	iterator, err := lexer.Tokenise(nil, source)
	if err != nil {
		return plainCode(source, language)
	}
	style := styles.Get("github")
	if style == nil {
		style = styles.Fallback
	}
	var b strings.Builder
	if err := codeFormatter.Format(&b, style, iterator); err != nil {
		return plainCode(source, language)
	}
	return b.String()
}

func plainCode(source, language string) string {
	return `<pre><code class="language-` + html.EscapeString(language) + `">` + html.EscapeString(source) + "</code></pre>"
}
