package cdpdom

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/scalewob/wobbridge/pkg/wire"
)

// infoAttributes is the whitelist of attributes element descriptions carry.
var infoAttributes = []string{"data-testid", "aria-label", "role", "title"}

// element is a selector-backed handle; every operation re-resolves the
// selector in the page.
type element struct {
	doc      *Document
	selector string
}

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// with wraps body in an IIFE that resolves the selector first; a vanished
// element surfaces as an evaluation error.
func (e *element) with(body string) (gjson.Result, error) {
	expr := `(() => {
		const el = document.querySelector(` + jsString(e.selector) + `);
		if (!el) throw new Error('element not found: ' + ` + jsString(e.selector) + `);
		` + body + `
	})()`
	return e.doc.eval(expr)
}

func (e *element) Info() wire.ElementInfo {
	res, err := e.with(`
		const r = el.getBoundingClientRect();
		const attrs = {};
		for (const n of ` + attributeListJS() + `) {
			const v = el.getAttribute(n);
			if (v !== null) attrs[n] = v;
		}
		return {
			tagName: el.tagName,
			id: el.id || '',
			className: (typeof el.className === 'string' ? el.className : ''),
			text: el.textContent || '',
			value: (typeof el.value === 'string' ? el.value : ''),
			type: el.type || '',
			name: el.name || '',
			placeholder: el.placeholder || '',
			href: el.href || '',
			src: el.src || '',
			position: {x: Math.round(r.x), y: Math.round(r.y), width: Math.round(r.width), height: Math.round(r.height)},
			visible: !!(el.offsetWidth || el.offsetHeight || el.getClientRects().length),
			attributes: attrs
		};`)
	if err != nil {
		return wire.ElementInfo{}
	}
	info := wire.ElementInfo{
		TagName:     res.Get("tagName").String(),
		ID:          res.Get("id").String(),
		ClassName:   res.Get("className").String(),
		Text:        res.Get("text").String(),
		Value:       res.Get("value").String(),
		Type:        res.Get("type").String(),
		Name:        res.Get("name").String(),
		Placeholder: res.Get("placeholder").String(),
		Href:        res.Get("href").String(),
		Src:         res.Get("src").String(),
		Position: wire.Rect{
			X:      int(res.Get("position.x").Int()),
			Y:      int(res.Get("position.y").Int()),
			Width:  int(res.Get("position.width").Int()),
			Height: int(res.Get("position.height").Int()),
		},
		Visible:    res.Get("visible").Bool(),
		Attributes: map[string]string{},
	}
	res.Get("attributes").ForEach(func(k, v gjson.Result) bool {
		info.Attributes[k.String()] = v.String()
		return true
	})
	return info
}

func attributeListJS() string {
	b, _ := json.Marshal(infoAttributes)
	return string(b)
}

func (e *element) Click() error {
	_, err := e.with(`el.click(); return true;`)
	return err
}

func (e *element) Focus() error {
	_, err := e.with(`el.focus(); return true;`)
	return err
}

func (e *element) ScrollIntoView() error {
	_, err := e.with(`el.scrollIntoView({behavior: 'smooth', block: 'center'}); return true;`)
	return err
}

func (e *element) Value() string {
	res, err := e.with(`return (typeof el.value === 'string' ? el.value : '');`)
	if err != nil {
		return ""
	}
	return res.String()
}

func (e *element) SetValue(v string) error {
	_, err := e.with(`el.value = ` + jsString(v) + `; return true;`)
	return err
}

func (e *element) AppendValue(s string) error {
	_, err := e.with(`el.value = (el.value || '') + ` + jsString(s) + `; return true;`)
	return err
}

func (e *element) DispatchInput() error {
	_, err := e.with(`el.dispatchEvent(new Event('input', {bubbles: true})); return true;`)
	return err
}

func (e *element) DispatchChange() error {
	_, err := e.with(`el.dispatchEvent(new Event('change', {bubbles: true})); return true;`)
	return err
}
