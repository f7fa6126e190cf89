package sanitizer

import (
	"regexp"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

var (
	scriptTagRe    = regexp.MustCompile(`(?i)<script`)
	eventHandlerRe = regexp.MustCompile(`(?i)\s+on[a-z]+=`)
)

// A stored message body may contain anything a sender put on the wire.
// Whatever goes in, the sanitized output must be free of script tags
// and inline event handlers, with remote image loads blocked.
func TestSanitizeNeutralizesHostileBodies(t *testing.T) {
	s := NewHTMLSanitizer()

	rapid.Check(t, func(t *rapid.T) {
		payload := rapid.StringMatching(`[a-z]+\(['"][a-z0-9]+['"]\)`).Draw(t, "payload")
		tracker := rapid.StringMatching(`[a-z]{3,10}\.[a-z]{2,4}`).Draw(t, "tracker")
		filler := rapid.StringMatching(`[A-Za-z0-9 ]{0,40}`).Draw(t, "filler")

		body := `<div>` + filler + `</div>` +
			`<script>` + payload + `</script>` +
			`<img src="https://` + tracker + `/open.gif" onerror="` + payload + `">` +
			`<p>Your order has shipped.</p>`

		got := s.Sanitize(body)

		if scriptTagRe.MatchString(got) {
			t.Fatalf("script tag survived: %q", got)
		}
		if eventHandlerRe.MatchString(got) {
			t.Fatalf("event handler survived: %q", got)
		}
		if strings.Contains(got, tracker) {
			t.Fatalf("remote image host survived: %q", got)
		}
		if !strings.Contains(got, "Your order has shipped.") {
			t.Fatalf("legitimate text lost: %q", got)
		}
	})
}

func TestSanitizeKeepsDataURIs(t *testing.T) {
	s := NewHTMLSanitizer()

	rapid.Check(t, func(t *rapid.T) {
		b64 := rapid.StringMatching(`[A-Za-z0-9+/]{16,64}=?`).Draw(t, "b64")

		got := s.Sanitize(`<img src="data:image/png;base64,` + b64 + `" alt="logo">`)

		if !strings.Contains(got, "data:") {
			t.Fatalf("inline image stripped: %q", got)
		}
	})
}

func TestRemoveScripts(t *testing.T) {
	s := NewHTMLSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain tag", `<script>steal()</script>`, ""},
		{"typed tag", `<script type="text/javascript">steal()</script>`, ""},
		{"shouting tag", `<SCRIPT>steal()</SCRIPT>`, ""},
		{"mixed case", `<sCrIpT>steal()</sCrIpT>`, ""},
		{"multiline body", "<script>\nsteal()\n</script>", ""},
		{"noscript fallback", `<noscript>enable js</noscript>`, ""},
		{
			"surrounding markup kept",
			`<p>Invoice attached.</p><script>steal()</script><p>Regards</p>`,
			`<p>Invoice attached.</p><p>Regards</p>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.RemoveScripts(tt.input); got != tt.want {
				t.Errorf("RemoveScripts(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRemoveEventHandlers(t *testing.T) {
	s := NewHTMLSanitizer()

	tests := []struct {
		name    string
		input   string
		keeps   string
		handler string
	}{
		{"double quoted", `<div onclick="steal()">order #42</div>`, "<div", "onclick"},
		{"single quoted", `<div onclick='steal()'>order #42</div>`, "<div", "onclick"},
		{"image onload", `<img src="x" onload="ping()">`, "<img", "onload"},
		{"image onerror", `<img src="x" onerror="ping()">`, "<img", "onerror"},
		{"anchor hover", `<a onmouseover="ping()">track parcel</a>`, "<a", "onmouseover"},
		{"shouting handler", `<div ONCLICK="steal()">order #42</div>`, "<div", "onclick"},
		{"stacked handlers", `<div onclick="a()" onfocus="b()">order #42</div>`, "<div", "onclick"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.RemoveEventHandlers(tt.input)
			if !strings.Contains(got, tt.keeps) {
				t.Errorf("element dropped entirely: %q", got)
			}
			if strings.Contains(strings.ToLower(got), tt.handler) {
				t.Errorf("handler %q survived: %q", tt.handler, got)
			}
		})
	}
}

func TestBlockExternalImages(t *testing.T) {
	s := NewHTMLSanitizer()

	tests := []struct {
		name  string
		input string
		keeps string
	}{
		{"https source", `<img src="https://shop.example/pixel.gif">`, "Image Blocked"},
		{"http source", `<img src="http://shop.example/pixel.gif">`, "Image Blocked"},
		{"protocol relative", `<img src="//shop.example/pixel.gif">`, "Image Blocked"},
		{
			"inline data kept",
			`<img src="data:image/png;base64,iVBORw0K">`,
			"data:image/png;base64,iVBORw0K",
		},
		{
			"cid reference kept",
			`<img src="cid:logo@cmclass.io">`,
			"cid:logo@cmclass.io",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.BlockExternalImages(tt.input)
			if !strings.Contains(got, tt.keeps) {
				t.Errorf("BlockExternalImages(%q) = %q, want it to contain %q", tt.input, got, tt.keeps)
			}
		})
	}
}

func TestSanitizeEmptyInput(t *testing.T) {
	if got := NewHTMLSanitizer().Sanitize(""); got != "" {
		t.Errorf("Sanitize(\"\") = %q", got)
	}
}

func TestSanitizeKeepsBenignMarkup(t *testing.T) {
	s := NewHTMLSanitizer()

	body := `<p>Hi <strong>Alice</strong>,</p>` +
		`<p>Your order contains:</p>` +
		`<ul><li>2x mug</li><li>1x poster</li></ul>`
	got := s.Sanitize(body)

	for _, keep := range []string{"Alice", "Your order contains:", "2x mug", "1x poster"} {
		if !strings.Contains(got, keep) {
			t.Errorf("benign content %q removed: %q", keep, got)
		}
	}
}
