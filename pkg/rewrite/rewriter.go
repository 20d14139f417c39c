package rewrite

import (
	"fmt"
	"io"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// voidElements never carry inner content; a content rule matching one of
// these must not swallow the rest of the document looking for an end tag.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// optionalEndTags lists elements whose end tag may be omitted: a
// same-name sibling start closes the open element rather than nesting
// inside it, so a content skip must stop there.
var optionalEndTags = map[string]bool{
	"dd": true, "dt": true, "li": true, "optgroup": true, "option": true,
	"p": true, "rb": true, "rp": true, "rt": true, "rtc": true,
	"tbody": true, "td": true, "tfoot": true, "th": true, "thead": true,
	"tr": true,
}

// Rewriter applies a compiled RuleSet to an HTML token stream. Rules are
// indexed by selector for direct lookup; selectors are unique, so at most
// one tag rule and one id rule can match a given element.
type Rewriter struct {
	tags map[string]Rule
	ids  map[string]Rule
}

// New validates and compiles rules. Markup-valued content is sanitized
// here, once, keeping the sanitizer off the per-request path.
func New(rules RuleSet) (*Rewriter, error) {
	if err := rules.validate(); err != nil {
		return nil, err
	}
	policy := bluemonday.UGCPolicy()
	rw := &Rewriter{
		tags: make(map[string]Rule, len(rules)),
		ids:  make(map[string]Rule, len(rules)),
	}
	for _, r := range rules {
		if r.HTML {
			r.Content = policy.Sanitize(r.Content)
		}
		if r.Tag != "" {
			rw.tags[strings.ToLower(r.Tag)] = r
		} else {
			rw.ids[r.ID] = r
		}
	}
	return rw, nil
}

// Transform streams HTML from r to w, applying the rule set element by
// element. The pass is forward-only and never buffers the document:
// unmatched tokens are copied through as their original bytes, so markup
// outside the match set survives byte for byte.
func (rw *Rewriter) Transform(r io.Reader, w io.Writer) error {
	z := html.NewTokenizer(r)
	for {
		switch tt := z.Next(); tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return fmt.Errorf("tokenizing page: %w", err)
			}
			return nil
		case html.StartTagToken, html.SelfClosingTagToken:
			// Token and TagName rewrite the tokenizer's buffer in place;
			// the original bytes must be copied out before either runs.
			raw := append([]byte(nil), z.Raw()...)
			if err := rw.element(z, w, tt, raw); err != nil {
				return err
			}
		default:
			if _, err := w.Write(z.Raw()); err != nil {
				return err
			}
		}
	}
}

// element emits one start (or self-closing) tag and, when a content rule
// matches, replaces the element's inner tokens. raw holds the tag's
// original bytes, captured before Token unescaped them.
func (rw *Rewriter) element(z *html.Tokenizer, w io.Writer, tt html.TokenType, raw []byte) error {
	tok := z.Token()

	tagRule, hasTagRule := rw.tags[tok.Data]
	var idRule Rule
	var hasIDRule bool
	if id := attrValue(tok.Attr, "id"); id != "" {
		idRule, hasIDRule = rw.ids[id]
	}

	if !hasTagRule && !hasIDRule {
		_, err := w.Write(raw)
		return err
	}

	// Attribute replacements force a re-rendered start tag; without them
	// the original bytes pass through untouched.
	if len(tagRule.Attributes)+len(idRule.Attributes) > 0 {
		for _, kv := range tagRule.Attributes {
			tok.Attr = setAttr(tok.Attr, kv.Key, kv.Value)
		}
		for _, kv := range idRule.Attributes {
			tok.Attr = setAttr(tok.Attr, kv.Key, kv.Value)
		}
		if _, err := io.WriteString(w, tok.String()); err != nil {
			return err
		}
	} else {
		if _, err := w.Write(raw); err != nil {
			return err
		}
	}

	if tt == html.SelfClosingTagToken || voidElements[tok.Data] {
		return nil
	}

	// Prepends land ahead of whatever the inner content ends up being.
	// Reapplying the rule set prepends again: the title rule is
	// deliberately not idempotent.
	for _, text := range []string{tagRule.Prepend, idRule.Prepend} {
		if text != "" {
			if _, err := io.WriteString(w, html.EscapeString(text)); err != nil {
				return err
			}
		}
	}

	// The id rule wins over a tag rule when both replace content.
	content, contentIsHTML := idRule.Content, idRule.HTML
	if content == "" {
		content, contentIsHTML = tagRule.Content, tagRule.HTML
	}
	if content == "" {
		return nil
	}
	if !contentIsHTML {
		content = html.EscapeString(content)
	}
	if _, err := io.WriteString(w, content); err != nil {
		return err
	}
	return rw.skipInner(z, w, tok.Data)
}

// skipInner discards the original inner tokens of the element named name,
// tracking same-name nesting, then re-emits its end tag. When the end tag
// is optional, a same-name sibling start closes the element instead of
// nesting and is processed as the next element. A document that ends
// before the close simply truncates here.
func (rw *Rewriter) skipInner(z *html.Tokenizer, w io.Writer, name string) error {
	depth := 1
	for {
		switch tt := z.Next(); tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return fmt.Errorf("tokenizing page: %w", err)
			}
			return nil
		case html.StartTagToken, html.SelfClosingTagToken:
			raw := append([]byte(nil), z.Raw()...)
			if n, _ := z.TagName(); string(n) == name {
				if optionalEndTags[name] {
					return rw.element(z, w, tt, raw)
				}
				if tt == html.StartTagToken {
					depth++
				}
			}
		case html.EndTagToken:
			raw := append([]byte(nil), z.Raw()...)
			if n, _ := z.TagName(); string(n) == name {
				depth--
				if depth == 0 {
					_, err := w.Write(raw)
					return err
				}
			}
		}
	}
}

func attrValue(attrs []html.Attribute, key string) string {
	for _, a := range attrs {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// setAttr replaces key's value in place, preserving attribute order, or
// appends the attribute when absent.
func setAttr(attrs []html.Attribute, key, val string) []html.Attribute {
	for i := range attrs {
		if attrs[i].Key == key {
			attrs[i].Val = val
			return attrs
		}
	}
	return append(attrs, html.Attribute{Key: key, Val: val})
}
