package controls

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	crawlerrors "spotcrawl/internal/errors"
	"spotcrawl/internal/frames"
)

const isFineReportJS = `() => all('.fr-trigger-editor, .fr-form-imgboard, .para-container').length > 0`

// Date input probes, most specific first.
var dateProbes = []Probe{
	{Name: "fr_widget", Locate: `() => firstOf([
		'div.fr-trigger-editor[widgetname="日期"] input.fr-trigger-texteditor',
		'div[widgetname="日期"] input.fr-trigger-texteditor',
		'div[widgetname="日期"] input',
		'input.fr-trigger-texteditor'])`},
	{Name: "el_form_item", Locate: `() => {
		const item = formItem('日期');
		return item ? firstOf(['.el-date-editor input', '.el-date-editor .el-input__inner',
			'input[placeholder*="日期"]', 'input[placeholder*="date"]', '.el-input__inner', 'input'], item) : null;
	}`},
	{Name: "el_global", Locate: `() => firstOf([
		'.el-date-editor input', '.el-date-editor .el-input__inner',
		'input[placeholder*="日期"]', 'input[placeholder*="date"]', 'input[type="date"]'])`},
	{Name: "label_nearby", Locate: `() => {
		for (const label of ['日期', '运行日期', '查询日期', '选择日期', '日']) {
			const el = near(label, ['input'], 5);
			if (el) return el;
		}
		return null;
	}`},
	{Name: "value_shape", Locate: `() => all('input').find(el => visible(el) && /^\d{4}-\d{2}-\d{2}$/.test((el.value || '').trim())) || null`},
}

// The value is typed, confirmed with Enter and Tab, then any open picker
// panel is dismissed.
const actSetDate = `async (el, v) => {
	click(el);
	el.focus();
	if (el.select) el.select();
	setValue(el, v);
	await sleep(300);
	press(el, 'Enter');
	press(el, 'Tab');
	el.blur();
	press(document.body, 'Escape');
	document.body.dispatchEvent(new MouseEvent('mousedown', {bubbles: true}));
	document.body.dispatchEvent(new MouseEvent('mouseup', {bubbles: true}));
	await sleep(300);
	return (el.value || '').trim();
}`

// Element UI select input probes for a labelled dropdown.
func selectProbes(label string) []Probe {
	q := strconv.Quote(label)
	return []Probe{
		{Name: "el_form_item", Locate: `() => {
			const item = formItem(` + q + `);
			return item ? firstOf(['.el-select .el-input__inner', '.el-select input', "input[role='combobox']", 'select', '.el-input__inner'], item) : null;
		}`},
		{Name: "label_ancestor", Locate: `() => near(` + q + `, ['.el-select .el-input__inner'], 4)`},
		{Name: "attribute", Locate: `() => firstOf(['[aria-label*=' + JSON.stringify(` + q + `) + ']', '[placeholder*=' + JSON.stringify(` + q + `) + ']', 'select[name*=' + JSON.stringify(` + q + `) + ']'])`},
		{Name: "label_parent", Locate: `() => near(` + q + `, ['select', '.el-select .el-input__inner', '.el-input__inner'], 1)`},
	}
}

// Opening an el-select mounts its panel on <body>; only the visible panel
// belongs to the control just clicked.
const openPanelJS = `
const activePanel = () => all('.el-select-dropdown.el-popper').find(p => visible(p) && p.querySelectorAll('.el-select-dropdown__item').length > 0) || null;
const openPanel = async (el) => {
	press(document.body, 'Escape');
	for (let i = 0; i < 5 && activePanel(); i++) await sleep(300);
	for (let attempt = 0; attempt < 3; attempt++) {
		click(el);
		await sleep(attempt === 0 ? 800 : 1500);
		const p = activePanel();
		if (p) return p;
		press(document.body, 'Escape');
		await sleep(300);
	}
	const sel = el.closest('.el-select');
	if (sel) { click(sel); await sleep(1500); }
	return activePanel();
};
const closePanel = async () => { press(document.body, 'Escape'); document.body.click(); await sleep(300); };
const itemText = (item) => { const span = item.querySelector('span'); return span ? textOf(span) : textOf(item); };
`

const actCollectOptions = `async (el) => {` + openPanelJS + `
	const panel = await openPanel(el);
	if (!panel) return null;
	const out = [];
	for (const item of all('.el-select-dropdown__item', panel)) {
		const t = itemText(item);
		if (t && t !== '全部' && !out.includes(t)) out.push(t);
	}
	await closePanel();
	return out;
}`

const actSelectOption = `async (el, want) => {` + openPanelJS + `
	const panel = await openPanel(el);
	if (!panel) return 'no_panel';
	const items = all('.el-select-dropdown__item', panel);
	const item = items.find(i => textOf(i) === want) || items.find(i => itemText(i) === want);
	if (!item) { await closePanel(); return 'missing'; }
	item.scrollIntoView({block: 'center'});
	await sleep(200);
	click(item);
	await sleep(500);
	return 'ok';
}`

// FineReport combo widgets are addressed by widgetname.
const frOptionsJS = `async (name) => {
	const w = frWidget(name);
	if (w && typeof w.getItems === 'function') {
		try {
			const items = w.getItems().map(i => String(i.text || i.value || '')).filter(Boolean);
			if (items.length) return items;
		} catch (e) {}
	}
	const combo = first('div.fr-trigger-editor[widgetname="' + name + '"]');
	if (!combo) return null;
	const trigger = first('.fr-trigger-btn-up, .fr-trigger-btn', combo) || first('input', combo);
	if (!trigger) return null;
	click(trigger);
	await sleep(1000);
	const out = [];
	for (const sel of ['.fr-combo-list-item', '.fr-trigger-list .fr-trigger-item', '.fr-list-item', '.x-combo-list-item']) {
		for (const item of all(sel)) {
			const t = textOf(item);
			if (t && !out.includes(t)) out.push(t);
		}
		if (out.length) break;
	}
	press(document.body, 'Escape');
	await sleep(300);
	return out;
}`

const frSelectJS = `async (name, value) => {
	const w = frWidget(name);
	if (w) {
		try { w.setValue(value); await sleep(500); return 'api'; } catch (e) {}
	}
	const input = first('div.fr-trigger-editor[widgetname="' + name + '"] input.fr-trigger-texteditor');
	if (input) {
		click(input);
		await sleep(300);
		setValue(input, value);
		await sleep(500);
		press(input, 'Enter');
		await sleep(300);
		return 'input';
	}
	const combo = first('div.fr-trigger-editor[widgetname="' + name + '"]');
	if (!combo) return '';
	const trigger = first('.fr-trigger-btn-up, .fr-trigger-btn', combo) || first('input', combo);
	if (trigger) { click(trigger); await sleep(1000); }
	for (const sel of ['.fr-combo-list-item', '.fr-trigger-list .fr-trigger-item', '.fr-list-item', '.x-combo-list-item']) {
		const item = all(sel).find(i => textOf(i) === value);
		if (item) { click(item); await sleep(500); return 'list'; }
	}
	press(document.body, 'Escape');
	return '';
}`

var pageSizeProbes = []Probe{
	{Name: "el_pagination_sizes", Locate: `() => firstOf(['.el-pagination__sizes .el-input__inner', '.el-pagination .el-select .el-input__inner'])`},
	{Name: "label_nearby", Locate: `() => near('每页条数', ['.el-input__inner', 'select'], 2) || near('每页展示', ['.el-input__inner', 'select'], 2)`},
}

const actPickPageSize = `async (el, n) => {
	if (el.tagName === 'SELECT') {
		const opt = Array.from(el.options).find(o => o.text.includes(String(n)) || o.value === String(n));
		if (!opt) return false;
		el.value = opt.value;
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	}` + openPanelJS + `
	const panel = await openPanel(el);
	if (!panel) return false;
	const item = all('.el-select-dropdown__item', panel).find(i => new RegExp('(^|\\D)' + n + '(\\D|$)').test(textOf(i)));
	if (!item) { await closePanel(); return false; }
	click(item);
	await sleep(1000);
	return true;
}`

const nativeSelectPageSizeJS = `(n) => {
	for (const sel of all('select')) {
		const opt = Array.from(sel.options).find(o => o.text.includes(String(n)));
		if (opt) {
			sel.value = opt.value;
			sel.dispatchEvent(new Event('change', {bubbles: true}));
			return true;
		}
	}
	return false;
}`

const frPageSizeJS = `async (n) => {
	const w = frWidget('PAGESIZE');
	if (w) { try { w.setValue(String(n)); return true; } catch (e) {} }
	const input = first('div.fr-trigger-editor[widgetname="PAGESIZE"] input.fr-trigger-texteditor, div[widgetname="PAGESIZE"] input');
	if (!input) return false;
	click(input);
	await sleep(300);
	setValue(input, String(n));
	await sleep(300);
	press(input, 'Enter');
	await sleep(500);
	return true;
}`

var queryProbes = []Probe{
	{Name: "fr_search_widget", Locate: `() => first('div[widgetname^="SEARCH"]')`},
	{Name: "fr_imgboard", Locate: `() => withText('div.fr-form-imgboard', '查询') || withText('div.fr-form-imgboard', '查 询')`},
	{Name: "button_text", Locate: `() => withText('button', '查询') || withText('button', '查 询')`},
	{Name: "exact_text", Locate: `() => exactText('a, span, div', '查询')`},
	{Name: "query_class", Locate: `() => first('.query-btn')`},
	{Name: "primary_button", Locate: `() => first('button.el-button--primary, button[type="primary"]')`},
}

// Filter sets the query form on one surface.
type Filter struct {
	surface frames.Surface
	logger  *slog.Logger
	timing  Timing
}

func (f *Filter) isFineReport(ctx context.Context) bool {
	var fr bool
	if err := eval(ctx, f.surface, isFineReportJS, &fr); err != nil {
		return false
	}
	return fr
}

// SetDate types date into the report's date control and checks it stuck.
func (f *Filter) SetDate(ctx context.Context, date string) error {
	var got string
	probe, err := apply(ctx, f.surface, f.logger, "date_input", dateProbes, actSetDate, date, &got)
	if err != nil {
		return err
	}
	if got != date {
		return crawlerrors.New(crawlerrors.KindControlNotFound, "set_date",
			fmt.Sprintf("date input kept %q after typing %q", got, date)).
			WithContext("probe", probe)
	}
	f.logger.DebugContext(ctx, "date set", slog.String("date", date), slog.String("probe", probe))
	return nil
}

// DropdownOptions lists the choices of the labelled dropdown, skipping the
// "all" entry.
func (f *Filter) DropdownOptions(ctx context.Context, label string) ([]string, error) {
	var options []string
	if f.isFineReport(ctx) {
		if err := eval(ctx, f.surface, frOptionsJS, &options); err != nil {
			return nil, err
		}
		if options == nil {
			return nil, crawlerrors.ControlNotFound("dropdown_options", label)
		}
		return options, nil
	}

	if _, err := apply(ctx, f.surface, f.logger, label, selectProbes(label), actCollectOptions, nil, &options); err != nil {
		return nil, err
	}
	if options == nil {
		return nil, crawlerrors.New(crawlerrors.KindControlNotFound, "dropdown_options", "dropdown panel did not open").
			WithContext("control", label)
	}
	return options, nil
}

// SelectDropdownOption picks value in the labelled dropdown.
func (f *Filter) SelectDropdownOption(ctx context.Context, label, value string) error {
	if f.isFineReport(ctx) {
		var how string
		if err := eval(ctx, f.surface, frSelectJS, &how, label, value); err != nil {
			return err
		}
		if how == "" {
			return crawlerrors.ControlNotFound("select_option", label+"="+value)
		}
		f.logger.DebugContext(ctx, "option selected", slog.String("label", label), slog.String("value", value), slog.String("via", how))
		return nil
	}

	var status string
	if _, err := apply(ctx, f.surface, f.logger, label, selectProbes(label), actSelectOption, value, &status); err != nil {
		return err
	}
	switch status {
	case "ok":
		return nil
	case "missing":
		return crawlerrors.ControlNotFound("select_option", label+"="+value)
	default:
		return crawlerrors.New(crawlerrors.KindControlNotFound, "select_option", "dropdown panel did not open").
			WithContext("control", label)
	}
}

// SetPageSize selects n rows per page.
func (f *Filter) SetPageSize(ctx context.Context, n int) error {
	var ok bool
	if f.isFineReport(ctx) {
		if err := eval(ctx, f.surface, frPageSizeJS, &ok, n); err != nil {
			return err
		}
		if !ok {
			return crawlerrors.ControlNotFound("page_size", "PAGESIZE")
		}
		return nil
	}

	_, err := apply(ctx, f.surface, f.logger, "page_size", pageSizeProbes, actPickPageSize, n, &ok)
	if err == nil && ok {
		return f.timing.sleep(ctx, f.timing.PageInterval)
	}
	if err != nil && !crawlerrors.Is(err, crawlerrors.ErrControlNotFound) {
		return err
	}
	if err := eval(ctx, f.surface, nativeSelectPageSizeJS, &ok, n); err != nil {
		return err
	}
	if !ok {
		return crawlerrors.ControlNotFound("page_size", fmt.Sprintf("page size %d", n))
	}
	return f.timing.sleep(ctx, f.timing.PageInterval)
}

// SubmitQuery clicks the query button and waits the configured interval.
func (f *Filter) SubmitQuery(ctx context.Context) error {
	probe, err := apply(ctx, f.surface, f.logger, "query_button", queryProbes, actClick, nil, nil)
	if err != nil {
		return err
	}
	f.logger.DebugContext(ctx, "query submitted", slog.String("probe", probe))
	return f.timing.sleep(ctx, f.timing.QueryInterval)
}
