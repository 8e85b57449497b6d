package controls

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"spotcrawl/internal/browser"
	crawlerrors "spotcrawl/internal/errors"
	"spotcrawl/internal/frames"
)

// helpersJS is in scope for every probe and action.
const helpersJS = `
const sleep = (ms) => new Promise(r => setTimeout(r, ms));
const visible = (el) => !!el && el.getClientRects().length > 0 && getComputedStyle(el).visibility !== 'hidden';
const all = (sel, root) => Array.from((root || document).querySelectorAll(sel));
const first = (sel, root) => all(sel, root).find(visible) || null;
const firstOf = (sels, root) => { for (const s of sels) { const el = first(s, root); if (el) return el; } return null; };
const textOf = (el) => (el.innerText || el.textContent || '').replace(/\s+/g, ' ').trim();
const withText = (sel, text, root) => all(sel, root).find(el => visible(el) && textOf(el).includes(text)) || null;
const exactText = (sel, text, root) => all(sel, root).find(el => visible(el) && textOf(el) === text) || null;
const near = (label, sels, depth) => {
	const lab = exactText('label, span, div, td', label);
	let node = lab;
	for (let i = 0; node && i < depth; i++) {
		node = node.parentElement;
		const el = node && firstOf(sels, node);
		if (el) return el;
	}
	return null;
};
const formItem = (label) => {
	const item = withText('.el-form-item', label);
	if (item) return item;
	const lab = exactText('label, span', label);
	return lab ? (lab.closest('.el-form-item') || lab.parentElement) : null;
};
const setValue = (el, v) => {
	const proto = el instanceof HTMLTextAreaElement ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
	const desc = Object.getOwnPropertyDescriptor(proto, 'value');
	if (desc && desc.set) { desc.set.call(el, v); } else { el.value = v; }
	el.dispatchEvent(new Event('input', {bubbles: true}));
	el.dispatchEvent(new Event('change', {bubbles: true}));
};
const press = (el, key) => {
	const codes = {Enter: 13, Escape: 27, Tab: 9};
	for (const t of ['keydown', 'keypress', 'keyup']) {
		el.dispatchEvent(new KeyboardEvent(t, {key: key, code: key, keyCode: codes[key] || 0, which: codes[key] || 0, bubbles: true}));
	}
};
const click = (el) => {
	el.scrollIntoView({block: 'center', inline: 'nearest'});
	for (const t of ['mousedown', 'mouseup']) el.dispatchEvent(new MouseEvent(t, {bubbles: true, view: window}));
	el.click();
};
const fr = () => { try { return typeof _g === 'function' ? _g() : null; } catch (e) { return null; } };
const frWidget = (name) => { const f = fr(); try { return f && f.parameterEl ? f.parameterEl.getWidgetByName(name) : null; } catch (e) { return null; } };
`

// Probe is one ranked way of locating a control.
type Probe struct {
	Name string
	// Locate is a JavaScript function returning the element or null. It may
	// be async.
	Locate string
}

type probeResult struct {
	Found bool            `json:"found"`
	Value json.RawMessage `json:"value"`
}

// probeScript composes a probe with an action into one expression. The
// action receives the located element and arg.
func probeScript(p Probe, action string, arg any) string {
	fn := `async (name, arg) => {` + helpersJS + `
	const el = await (` + p.Locate + `)();
	if (!el) return {found: false};
	const value = await (` + action + `)(el, arg);
	return {found: true, value: value === undefined ? null : value};
}`
	return browser.Script(fn, p.Name, arg)
}

// apply tries probes in rank order and runs action on the first element
// found, decoding the action's result into out. No match is a
// ControlNotFound error; a dead surface aborts immediately.
func apply(ctx context.Context, s frames.Surface, logger *slog.Logger, control string, probes []Probe, action string, arg any, out any) (string, error) {
	var lastErr error
	for _, p := range probes {
		var res probeResult
		if err := s.Eval(ctx, probeScript(p, action, arg), &res); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if crawlerrors.Is(err, crawlerrors.ErrContextStale) {
				return "", err
			}
			logger.DebugContext(ctx, "probe failed",
				slog.String("control", control),
				slog.String("probe", p.Name),
				slog.String("error", err.Error()))
			lastErr = err
			continue
		}
		if !res.Found {
			continue
		}
		if out != nil && len(res.Value) > 0 {
			if err := json.Unmarshal(res.Value, out); err != nil {
				return p.Name, fmt.Errorf("failed to decode %s result: %w", control, err)
			}
		}
		logger.DebugContext(ctx, "control located", slog.String("control", control), slog.String("probe", p.Name))
		return p.Name, nil
	}

	err := crawlerrors.ControlNotFound(control, control)
	if lastErr != nil {
		err.Cause = lastErr
	}
	return "", err
}

// eval runs a helper-enabled function with args and decodes its result.
func eval(ctx context.Context, s frames.Surface, fn string, out any, args ...any) error {
	body := strings.TrimSpace(fn)
	wrapped := `async (...args) => {` + helpersJS + `return await (` + body + `)(...args); }`
	return s.Eval(ctx, browser.Script(wrapped, args...), out)
}

// Actions shared by several controls.
const (
	actClick = `(el) => { click(el); return true; }`
	actText  = `(el) => textOf(el)`
)
