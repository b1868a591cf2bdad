// Package browser drives the external calendar page with headless Chromium
// and feeds observed network responses into the capture log.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"calharvest/internal/extract"
	"calharvest/internal/harvest"
	appLog "calharvest/internal/log"
	"calharvest/internal/navigate"
)

const (
	opTimeout     = 15 * time.Second
	settleDelay   = 750 * time.Millisecond
	postClickWait = 500 * time.Millisecond
)

// Selector strategies for the navigation controls, tried in order. Success
// here only means the click dispatched; the navigator decides whether the
// view actually moved.
var (
	backwardSelectors = []string{
		`[aria-label*="previous" i]`,
		`[aria-label*="prev" i]`,
		`[aria-label*="back" i]`,
		`[class*="prev" i]`,
		`[data-action*="prev" i]`,
	}
	forwardSelectors = []string{
		`[aria-label*="next" i]`,
		`[aria-label*="forward" i]`,
		`[class*="next" i]`,
		`[data-action*="next" i]`,
	}
	rangeLabelSelectors = []string{
		`[class*="range" i]`,
		`[class*="toolbar-title" i]`,
		`[class*="current" i][class*="date" i]`,
		`header h2`,
		`h2`,
	}
)

// fragmentJS pulls loosely structured event fragments out of the rendered
// markup for the text-heuristic fallback path.
const fragmentJS = `(() => {
	const out = [];
	const nodes = document.querySelectorAll('[class*="event" i], [class*="agenda" i] li, article');
	for (const n of nodes) {
		const pick = (sel) => {
			const el = n.querySelector(sel);
			return el ? el.textContent.trim() : '';
		};
		const title = pick('[class*="title" i], h1, h2, h3, h4');
		const when = pick('[class*="date" i], [class*="time" i], time');
		const loc = pick('[class*="location" i], [class*="venue" i]');
		const a = n.querySelector('a[href]');
		out.push({title: title, whenText: when, locationText: loc, href: a ? a.href : ''});
	}
	return out;
})()`

// Session owns one headless Chromium target pointed at the calendar view.
// It implements navigate.View.
type Session struct {
	ctx         context.Context
	cancelCtx   context.CancelFunc
	cancelAlloc context.CancelFunc
}

var _ navigate.View = (*Session)(nil)

// NewSession launches a headless browser, enables network observation and
// registers the response-capture subscription: responses whose URL matches
// the topical allow-list and whose content kind is structured-data-like are
// appended to log.
func NewSession(parent context.Context, log *harvest.CaptureLog, allowList []string) (*Session, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, chromedp.DefaultExecAllocatorOptions[:]...)
	ctx, cancelCtx := chromedp.NewContext(allocCtx)

	s := &Session{ctx: ctx, cancelCtx: cancelCtx, cancelAlloc: cancelAlloc}

	chromedp.ListenTarget(ctx, func(ev any) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok {
			return
		}
		url := resp.Response.URL
		kind := resp.Response.MimeType
		if !harvest.TopicalURL(url, allowList) || !harvest.StructuredKind(kind) {
			return
		}
		reqID := resp.RequestID
		// Body fetch must run outside the event handler.
		go func() {
			c := chromedp.FromContext(ctx)
			body, err := network.GetResponseBody(reqID).Do(cdp.WithExecutor(ctx, c.Target))
			if err != nil {
				appLog.Debug("response body fetch failed", "url", url, "err", err)
				return
			}
			log.Append(harvest.Capture{URL: url, ContentKind: kind, Payload: body})
			appLog.Debug("response captured", "url", url, "kind", kind, "bytes", len(body))
		}()
	})

	if err := chromedp.Run(ctx, network.Enable()); err != nil {
		s.Close()
		return nil, fmt.Errorf("browser: enable network capture: %w", err)
	}
	return s, nil
}

// Close tears the browser down.
func (s *Session) Close() {
	s.cancelCtx()
	s.cancelAlloc()
}

// Load navigates to the calendar view and settles the initial page.
func (s *Session) Load(ctx context.Context, url string) error {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	if err := chromedp.Run(opCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("browser: load %s: %w", url, err)
	}
	return s.Settle(ctx)
}

// Step clicks the first matching navigation control for the direction. The
// returned bool only reflects that a click dispatched.
func (s *Session) Step(ctx context.Context, dir navigate.Direction) (bool, error) {
	selectors := forwardSelectors
	if dir == navigate.Backward {
		selectors = backwardSelectors
	}

	for _, sel := range selectors {
		opCtx, cancel := context.WithTimeout(s.ctx, 3*time.Second)
		err := chromedp.Run(opCtx,
			chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible),
			chromedp.Sleep(postClickWait),
		)
		cancel()
		if err == nil {
			appLog.Debug("navigation click dispatched", "dir", dir.String(), "selector", sel)
			return true, ctx.Err()
		}
	}
	return false, ctx.Err()
}

// Settle scrolls through the page and waits, so lazily revealed items load
// and their requests are observed before coverage is recomputed.
func (s *Session) Settle(ctx context.Context) error {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	return chromedp.Run(opCtx,
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		chromedp.Sleep(settleDelay),
		chromedp.Evaluate(`window.scrollTo(0, 0)`, nil),
		chromedp.Sleep(settleDelay),
	)
}

// RangeLabel reads the view's current-range indicator text.
func (s *Session) RangeLabel(ctx context.Context) (string, error) {
	for _, sel := range rangeLabelSelectors {
		opCtx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
		var text string
		err := chromedp.Run(opCtx, chromedp.Text(sel, &text, chromedp.ByQuery))
		cancel()
		if err == nil && text != "" {
			return text, nil
		}
	}
	// No recognizable label; an empty snapshot makes every step look like a
	// no-op, which fails safe toward the budgets.
	return "", ctx.Err()
}

// Fragments queries the rendered markup for loosely structured event
// fragments (fallback extraction input).
func (s *Session) Fragments(ctx context.Context) ([]extract.Fragment, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	var frags []extract.Fragment
	if err := chromedp.Run(opCtx, chromedp.Evaluate(fragmentJS, &frags)); err != nil {
		return nil, fmt.Errorf("browser: query fragments: %w", err)
	}
	return frags, nil
}

// HTML returns the current page markup, used for debug dumps.
func (s *Session) HTML(ctx context.Context) (string, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	var html string
	if err := chromedp.Run(opCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("browser: read page html: %w", err)
	}
	return html, nil
}

// opContext bounds one browser operation and ties it to the caller's
// cancellation.
func (s *Session) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	opCtx, cancelTimeout := context.WithTimeout(s.ctx, opTimeout)
	stop := context.AfterFunc(ctx, cancelTimeout)
	return opCtx, func() {
		stop()
		cancelTimeout()
	}
}
