package controls

import (
	"context"
	"log/slog"

	"spotcrawl/internal/frames"
)

// Maximum scroll rounds for tables that load rows lazily.
const maxScrollRounds = 50

const totalPagesJS = `() => {
	const f = fr();
	if (f && f.totalPage !== undefined && f.totalPage > 0) return f.totalPage;
	for (const el of all('.x-page-toolbar, .fr-toolbar')) {
		const m = textOf(el).match(/\/\s*(\d+)/);
		if (m) return parseInt(m[1], 10);
	}
	const pager = all('.el-pagination .el-pager li.number').map(li => parseInt(textOf(li), 10)).filter(n => !isNaN(n));
	if (pager.length) return Math.max(...pager);
	const jump = first('.el-pagination__jump');
	if (jump) {
		const m = textOf(jump.parentElement || jump).match(/\/\s*(\d+)/);
		if (m) return parseInt(m[1], 10);
	}
	return 1;
}`

// nextButtonJS locates the next-page control and reports whether it is
// usable. FineReport pages are driven through their report API when present.
const nextButtonJS = `
const disabled = (el) => el.disabled || el.hasAttribute('disabled') || /disabled|gray/.test(el.className || '') || !!el.querySelector('.is-disabled');
const nextButton = () => firstOf(['.el-pagination .btn-next', 'button.btn-next', '.x-page-next', '.fr-page-next']) || withText('button, a, span', '下一页');
`

const hasNextJS = `() => {` + nextButtonJS + `
	const f = fr();
	if (f && f.currentPage !== undefined && f.totalPage !== undefined) return f.currentPage < f.totalPage;
	const btn = nextButton();
	return !!btn && !disabled(btn);
}`

const nextPageJS = `() => {` + nextButtonJS + `
	const f = fr();
	if (f && typeof f.gotoPage === 'function' && f.currentPage !== undefined) {
		const current = f.currentPage || 1;
		const total = f.totalPage || 1;
		if (current >= total) return false;
		f.gotoPage(current + 1);
		return true;
	}
	const btn = nextButton();
	if (!btn || disabled(btn)) return false;
	click(btn);
	return true;
}`

const scrollJS = `() => {
	const target = first('.el-table__body-wrapper') || (first('table') || {}).parentElement;
	if (target) {
		target.scrollTop = target.scrollHeight;
		return target.scrollHeight;
	}
	window.scrollTo(0, document.documentElement.scrollHeight);
	return document.documentElement.scrollHeight;
}`

// Paginator walks the result pages of one surface.
type Paginator struct {
	surface frames.Surface
	logger  *slog.Logger
	timing  Timing
}

// TotalPages reads the page count, defaulting to 1.
func (p *Paginator) TotalPages(ctx context.Context) (int, error) {
	var n int
	if err := eval(ctx, p.surface, totalPagesJS, &n); err != nil {
		return 1, err
	}
	if n < 1 {
		n = 1
	}
	return n, nil
}

func (p *Paginator) HasNextPage(ctx context.Context) (bool, error) {
	var ok bool
	err := eval(ctx, p.surface, hasNextJS, &ok)
	return ok, err
}

// NextPage advances one page and waits the page interval. It reports false
// when there is no usable next control.
func (p *Paginator) NextPage(ctx context.Context) (bool, error) {
	var moved bool
	if err := eval(ctx, p.surface, nextPageJS, &moved); err != nil {
		return false, err
	}
	if !moved {
		return false, nil
	}
	return true, p.timing.sleep(ctx, p.timing.PageInterval)
}

// ScrollToLoadAll scrolls the table container until its height stops
// growing.
func (p *Paginator) ScrollToLoadAll(ctx context.Context) error {
	previous := -1
	rounds := 0
	for ; rounds < maxScrollRounds; rounds++ {
		var height int
		if err := eval(ctx, p.surface, scrollJS, &height); err != nil {
			return err
		}
		if height == previous {
			break
		}
		previous = height
		if err := p.timing.sleep(ctx, p.timing.ScrollPause); err != nil {
			return err
		}
	}
	p.logger.DebugContext(ctx, "scroll loading finished", slog.Int("rounds", rounds))
	return nil
}
