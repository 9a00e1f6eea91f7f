// Package gate post-processes rendered markup for the two in-content
// visibility markers. Because the markers are authored inside page
// text, they arrive HTML-escaped and are matched in that form.
package gate

import (
	"html"
	"regexp"
	"strings"
)

var (
	hideRe = regexp.MustCompile(`(?is)&lt;hide&gt;(.*?)&lt;/hide&gt;`)
	passRe = regexp.MustCompile(`(?is)&lt;pass&gt;(.*?)&lt;/pass&gt;`)
)

// State is the per-session view the gate needs, owned by the session
// store and consumed read-only here.
type State struct {
	Unlocked  bool
	HadError  bool
	LockedOut bool
	CSRFToken string
}

// StripHidden removes every hide-marked span including the markers.
// Unterminated markers are left untouched.
func StripHidden(markup string) string {
	return hideRe.ReplaceAllString(markup, "")
}

// Gate replaces every pass-marked span. Unlocked sessions get the
// span's inner content decoded back to literal markup; this is the one
// place escaped content is intentionally re-admitted, so only page
// authors can place it. Locked sessions get a password form instead;
// the protected content never appears in that output.
func Gate(markup string, st State) string {
	return passRe.ReplaceAllStringFunc(markup, func(match string) string {
		if st.Unlocked {
			inner := passRe.FindStringSubmatch(match)[1]
			return html.UnescapeString(inner)
		}
		return passwordForm(st)
	})
}

func passwordForm(st State) string {
	var b strings.Builder
	b.WriteString(`<div class="password-protected"><h3>This content is password protected</h3><form method="post">`)
	if st.CSRFToken != "" {
		b.WriteString(`<input type="hidden" name="csrf_token" value="` + html.EscapeString(st.CSRFToken) + `">`)
	}
	disabled := ""
	if st.LockedOut {
		disabled = " disabled"
	}
	b.WriteString(`<input type="password" name="content_password" placeholder="Enter password" required` + disabled + `>`)
	b.WriteString(`<button type="submit"` + disabled + `>Unlock</button></form>`)
	switch {
	case st.LockedOut:
		b.WriteString(`<div class="password-error">Too many attempts. Try again in a few minutes.</div>`)
	case st.HadError:
		b.WriteString(`<div class="password-error">Wrong password</div>`)
	}
	b.WriteString(`</div>`)
	return b.String()
}
