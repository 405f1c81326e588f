// Package browser drives real Chrome tabs over the DevTools protocol.
// Each session owns one tab; interaction is paced like a human operator
// so automation heuristics on the far side stay quiet.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// opTimeout bounds every page operation that does not carry its own
// deadline.
const opTimeout = 30 * time.Second

// contentLimit caps text returned to the model from a page.
const contentLimit = 16 * 1024

// stealthScript masks the most common automation tells before any page
// script runs.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
Object.defineProperty(navigator, 'plugins', {get: () => [1, 2, 3]});
Object.defineProperty(navigator, 'languages', {get: () => ['en-US', 'en']});
window.chrome = window.chrome || {runtime: {}};
`

type runFunc func(ctx context.Context, actions ...chromedp.Action) error

// Session is one live browser tab. All methods serialize on the
// session mutex; concurrent tool calls against the same session run
// one at a time.
type Session struct {
	id     string
	logger *slog.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	run    runFunc

	// pointer position carries across interactions within the tab
	pointerX float64
	pointerY float64
}

func newSession(allocCtx context.Context, id string, logger *slog.Logger) (*Session, error) {
	ctx, cancel := chromedp.NewContext(allocCtx)
	s := &Session{
		id:     id,
		logger: logger.With("session_id", id),
		ctx:    ctx,
		cancel: cancel,
		run:    chromedp.Run,
	}
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
		return err
	}))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("init tab for session %s: %w", id, err)
	}
	return s, nil
}

// do runs actions against the tab under the session mutex with the
// standard operation deadline. The tab context governs cancellation;
// closing the session aborts in-flight operations.
func (s *Session) do(_ context.Context, actions ...chromedp.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doLocked(actions...)
}

func (s *Session) doLocked(actions ...chromedp.Action) error {
	if s.ctx == nil {
		return ErrSessionNotStarted
	}
	opCtx, cancel := context.WithTimeout(s.ctx, opTimeout)
	defer cancel()

	err := s.run(opCtx, actions...)
	if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(opCtx.Err(), context.DeadlineExceeded)) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// close tears the tab down. Callers go through Manager.Close.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
		s.ctx = nil
	}
}

// Navigate loads url and settles like a human: a randomized pause and
// a small scroll after load.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if !strings.Contains(url, "://") {
		url = "https://" + url
	}
	s.logger.Debug("navigate", "url", url)
	return s.do(ctx,
		chromedp.Navigate(url),
		chromedp.Sleep(randDuration(settleMin, settleMax)),
		chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", randInt(settleScrollMin, settleScrollMax)), nil),
	)
}

func (s *Session) Back(ctx context.Context) error {
	return s.do(ctx, chromedp.NavigateBack(), chromedp.Sleep(randDuration(settleMin, settleMax)))
}

func (s *Session) Forward(ctx context.Context) error {
	return s.do(ctx, chromedp.NavigateForward(), chromedp.Sleep(randDuration(settleMin, settleMax)))
}

func (s *Session) Reload(ctx context.Context) error {
	return s.do(ctx, chromedp.Reload(), chromedp.Sleep(randDuration(settleMin, settleMax)))
}

// Content returns the visible text of the page, truncated to a size
// the model can digest.
func (s *Session) Content(ctx context.Context) (string, error) {
	var text string
	if err := s.do(ctx, chromedp.Text("body", &text, chromedp.ByQuery)); err != nil {
		return "", err
	}
	if len(text) > contentLimit {
		text = text[:contentLimit] + "\n[truncated]"
	}
	return text, nil
}

func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	err := s.do(ctx, chromedp.Title(&title))
	return title, err
}

func (s *Session) URL(ctx context.Context) (string, error) {
	var loc string
	err := s.do(ctx, chromedp.Location(&loc))
	return loc, err
}

// ElementText returns the text content of the first element matching
// selector.
func (s *Session) ElementText(ctx context.Context, selector string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkExists(selector); err != nil {
		return "", err
	}
	var text string
	err := s.doLocked(chromedp.Text(selector, &text, chromedp.ByQuery))
	return text, err
}

// InputValue returns the current value of an input or textarea.
func (s *Session) InputValue(ctx context.Context, selector string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkExists(selector); err != nil {
		return "", err
	}
	var value string
	err := s.doLocked(chromedp.Value(selector, &value, chromedp.ByQuery))
	return value, err
}

const selectorHintsJS = `
(() => {
  const hints = [];
  const describe = (el) => {
    let sel = el.tagName.toLowerCase();
    if (el.id) return sel + '#' + el.id;
    if (el.name) return sel + '[name="' + el.name + '"]';
    if (el.className && typeof el.className === 'string') {
      const cls = el.className.trim().split(/\s+/).slice(0, 2).join('.');
      if (cls) sel += '.' + cls;
    }
    return sel;
  };
  const label = (el) => (el.innerText || el.value || el.placeholder || el.getAttribute('aria-label') || '').trim().slice(0, 60);
  document.querySelectorAll('a, button, input, textarea, select, [role="button"], [onclick]').forEach((el) => {
    if (hints.length >= 40) return;
    const r = el.getBoundingClientRect();
    if (r.width === 0 || r.height === 0) return;
    hints.push(describe(el) + (label(el) ? ' - ' + label(el) : ''));
  });
  return hints.join('\n');
})()
`

// SelectorHints surveys the page for interactive elements and returns
// one selector suggestion per line. The model uses this before it
// clicks anything.
func (s *Session) SelectorHints(ctx context.Context) (string, error) {
	var hints string
	if err := s.do(ctx, chromedp.Evaluate(selectorHintsJS, &hints)); err != nil {
		return "", err
	}
	if hints == "" {
		return "no interactive elements visible", nil
	}
	return hints, nil
}

// checkExists distinguishes a missing element from a slow one. Callers
// hold the session mutex.
func (s *Session) checkExists(selector string) error {
	var count int
	err := s.doLocked(chromedp.Evaluate(
		fmt.Sprintf("document.querySelectorAll(%q).length", selector), &count))
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return nil
}

type elementCenter struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// center scrolls the element into view and returns its viewport-space
// midpoint. Callers hold the session mutex.
func (s *Session) center(selector string) (elementCenter, error) {
	if err := s.checkExists(selector); err != nil {
		return elementCenter{}, err
	}
	var c elementCenter
	js := fmt.Sprintf(`(() => {
  const el = document.querySelector(%q);
  el.scrollIntoView({block: 'center', behavior: 'instant'});
  const r = el.getBoundingClientRect();
  return {x: r.x + r.width / 2, y: r.y + r.height / 2};
})()`, selector)
	if err := s.doLocked(chromedp.Evaluate(js, &c)); err != nil {
		return elementCenter{}, err
	}
	return c, nil
}

// moveTo walks the pointer to (x, y) in jittered steps.
func (s *Session) moveTo(x, y float64) error {
	for _, step := range moveSteps(s.pointerX, s.pointerY, x, y) {
		err := s.doLocked(chromedp.ActionFunc(func(ctx context.Context) error {
			return input.DispatchMouseEvent(input.MouseMoved, step[0], step[1]).Do(ctx)
		}), chromedp.Sleep(randDuration(5*time.Millisecond, 25*time.Millisecond)))
		if err != nil {
			return err
		}
	}
	s.pointerX, s.pointerY = x, y
	return nil
}

func (s *Session) clickAt(ctx context.Context, selector string, button input.MouseButton, clicks int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.center(selector)
	if err != nil {
		return err
	}
	// hover first, pause, then approach and press
	if err := s.moveTo(c.X, c.Y); err != nil {
		return err
	}
	if err := s.doLocked(chromedp.Sleep(randDuration(hoverDelayMin, hoverDelayMax))); err != nil {
		return err
	}
	return s.doLocked(chromedp.ActionFunc(func(ctx context.Context) error {
		down := input.DispatchMouseEvent(input.MousePressed, c.X, c.Y).
			WithButton(button).WithClickCount(clicks)
		if err := down.Do(ctx); err != nil {
			return err
		}
		up := input.DispatchMouseEvent(input.MouseReleased, c.X, c.Y).
			WithButton(button).WithClickCount(clicks)
		return up.Do(ctx)
	}))
}

func (s *Session) Click(ctx context.Context, selector string) error {
	s.logger.Debug("click", "selector", selector)
	return s.clickAt(ctx, selector, input.Left, 1)
}

func (s *Session) DoubleClick(ctx context.Context, selector string) error {
	return s.clickAt(ctx, selector, input.Left, 2)
}

func (s *Session) RightClick(ctx context.Context, selector string) error {
	return s.clickAt(ctx, selector, input.Right, 1)
}

// Hover moves the pointer onto the element without clicking.
func (s *Session) Hover(ctx context.Context, selector string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.center(selector)
	if err != nil {
		return err
	}
	return s.moveTo(c.X, c.Y)
}

// typeChars emits one key event per character with human pacing.
// Callers hold the session mutex.
func (s *Session) typeChars(text string) error {
	for _, r := range text {
		err := s.doLocked(
			chromedp.KeyEvent(string(r)),
			chromedp.Sleep(randDuration(keyDelayMin, keyDelayMax)),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// Fill clears the element and types value into it character by
// character.
func (s *Session) Fill(ctx context.Context, selector, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Debug("fill", "selector", selector, "chars", len(value))
	if err := s.checkExists(selector); err != nil {
		return err
	}
	err := s.doLocked(
		chromedp.Focus(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
	)
	if err != nil {
		return err
	}
	return s.typeChars(value)
}

// TypeText types into whatever element currently has focus.
func (s *Session) TypeText(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typeChars(text)
}

func (s *Session) PressEnter(ctx context.Context) error {
	return s.do(ctx, chromedp.KeyEvent(kb.Enter))
}

// namedKeys maps tool-facing key names onto DevTools key codes.
var namedKeys = map[string]string{
	"enter":      kb.Enter,
	"tab":        kb.Tab,
	"escape":     kb.Escape,
	"backspace":  kb.Backspace,
	"delete":     kb.Delete,
	"arrowup":    kb.ArrowUp,
	"arrowdown":  kb.ArrowDown,
	"arrowleft":  kb.ArrowLeft,
	"arrowright": kb.ArrowRight,
	"pageup":     kb.PageUp,
	"pagedown":   kb.PageDown,
	"home":       kb.Home,
	"end":        kb.End,
}

func (s *Session) PressKey(ctx context.Context, key string) error {
	code, ok := namedKeys[strings.ToLower(key)]
	if !ok {
		if len([]rune(key)) == 1 {
			code = key
		} else {
			return fmt.Errorf("unsupported key %q", key)
		}
	}
	return s.do(ctx, chromedp.KeyEvent(code))
}

// setChecked clicks the checkbox only when its state differs from the
// target, so check/uncheck are idempotent.
func (s *Session) setChecked(ctx context.Context, selector string, want bool) error {
	s.mu.Lock()
	var checked bool
	if err := s.checkExists(selector); err != nil {
		s.mu.Unlock()
		return err
	}
	err := s.doLocked(chromedp.Evaluate(
		fmt.Sprintf("document.querySelector(%q).checked === true", selector), &checked))
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if checked == want {
		return nil
	}
	return s.Click(ctx, selector)
}

func (s *Session) Check(ctx context.Context, selector string) error {
	return s.setChecked(ctx, selector, true)
}

func (s *Session) Uncheck(ctx context.Context, selector string) error {
	return s.setChecked(ctx, selector, false)
}

// SelectOption picks an option by value (or visible label as a
// fallback) and fires the change event.
func (s *Session) SelectOption(ctx context.Context, selector, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkExists(selector); err != nil {
		return err
	}
	var ok bool
	js := fmt.Sprintf(`(() => {
  const el = document.querySelector(%q);
  for (const opt of el.options) {
    if (opt.value === %q || opt.label === %q) {
      el.value = opt.value;
      el.dispatchEvent(new Event('change', {bubbles: true}));
      return true;
    }
  }
  return false;
})()`, selector, value, value)
	if err := s.doLocked(chromedp.Evaluate(js, &ok)); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: option %q in %s", ErrElementNotFound, value, selector)
	}
	return nil
}

// Wait sleeps for the given number of seconds, clamped to
// maxWaitSeconds.
func (s *Session) Wait(ctx context.Context, seconds float64) error {
	if seconds <= 0 {
		return nil
	}
	if seconds > maxWaitSeconds {
		seconds = maxWaitSeconds
	}
	select {
	case <-time.After(time.Duration(seconds * float64(time.Second))):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitForSelector blocks until the selector is visible or the timeout
// elapses.
func (s *Session) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return ErrSessionNotStarted
	}
	if timeout <= 0 || timeout > opTimeout {
		timeout = opTimeout
	}
	opCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	err := s.run(opCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
	if err != nil && errors.Is(opCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: waiting for %s", ErrTimeout, selector)
	}
	return err
}

// Scroll moves the viewport by pixels vertically; negative scrolls up.
func (s *Session) Scroll(ctx context.Context, pixels int) error {
	return s.do(ctx, chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", pixels), nil))
}

func (s *Session) ScrollBottom(ctx context.Context) error {
	return s.do(ctx, chromedp.Evaluate("window.scrollTo(0, document.body.scrollHeight)", nil))
}

func (s *Session) ScrollTop(ctx context.Context) error {
	return s.do(ctx, chromedp.Evaluate("window.scrollTo(0, 0)", nil))
}

// Screenshot captures the visible viewport as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := s.do(ctx, chromedp.CaptureScreenshot(&buf))
	return buf, err
}
