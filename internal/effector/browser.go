package effector

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/vinayprograms/agentkit/logging"

	"github.com/vinayprograms/taskforce/internal/orchestrator"
	"github.com/vinayprograms/taskforce/internal/protocol"
)

// BrowserConfig controls how Chrome is found or launched.
type BrowserConfig struct {
	// ControlURL connects to a running Chrome instead of launching one.
	ControlURL string
	// Bin is the Chrome binary; empty lets the launcher find or fetch one.
	Bin               string
	Headless          bool
	NavigationTimeout time.Duration
	// SearchURL receives free-form TASK text as the q parameter.
	SearchURL string
}

const (
	elementTimeout = 10 * time.Second
	maxPageText    = 5000
	screenshotPath = "/workspace/screenshot.png"
)

// Supported BROWSER ACTION_TYPE values.
var browserActions = []string{"navigate", "click", "fill", "get_text", "get_content", "screenshot"}

// Browser drives Chrome. Chrome starts on first use. Each owning task,
// identified by orchestrator.ParentFrom, gets its own incognito page, so
// concurrent tasks never see each other's navigation or cookies.
type Browser struct {
	cfg    BrowserConfig
	ws     *Workspace
	logger *logging.Logger

	mu      sync.Mutex
	browser *rod.Browser
	tabs    *tabs[rodTab]
}

// rodTab is one owner's incognito context and its page.
type rodTab struct {
	context *rod.Browser
	page    *rod.Page
}

// NewBrowser returns a browser effector. Screenshots are saved into ws.
func NewBrowser(cfg BrowserConfig, ws *Workspace) *Browser {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}
	if cfg.SearchURL == "" {
		cfg.SearchURL = DefaultSearchURL
	}
	b := &Browser{cfg: cfg, ws: ws, logger: logging.New().WithComponent("browser")}
	b.tabs = newTabs(b.openTab, func(t rodTab) error { return t.context.Close() })
	return b
}

func (b *Browser) connect() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		return b.browser, nil
	}

	controlURL := b.cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(b.cfg.Headless)
		if b.cfg.Bin != "" {
			l = l.Bin(b.cfg.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	b.browser = browser
	b.logger.Info("browser started", map[string]interface{}{"headless": b.cfg.Headless})
	return browser, nil
}

func (b *Browser) openTab() (rodTab, error) {
	browser, err := b.connect()
	if err != nil {
		return rodTab{}, err
	}
	incognito, err := browser.Incognito()
	if err != nil {
		return rodTab{}, fmt.Errorf("open browser context: %w", err)
	}
	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = incognito.Close()
		return rodTab{}, fmt.Errorf("open page: %w", err)
	}
	return rodTab{context: incognito, page: page}, nil
}

// withPage runs fn on the page of the task that owns ctx. Commands of one
// owner run one at a time.
func (b *Browser) withPage(ctx context.Context, fn func(*rod.Page) Result) Result {
	owner, _ := orchestrator.ParentFrom(ctx)
	res, err := b.tabs.use(owner, func(t rodTab) Result {
		return fn(t.page.Context(ctx))
	})
	if err != nil {
		return Fail("%v", err)
	}
	return res
}

// Release closes the page of owner, if it has one. The worker loop calls
// it when a task ends.
func (b *Browser) Release(owner string) {
	if err := b.tabs.release(owner); err != nil {
		b.logger.Warn("close page failed", map[string]interface{}{"owner": owner, "error": err.Error()})
	}
}

// Close shuts Chrome down if it was started.
func (b *Browser) Close() error {
	b.tabs.closeAll()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.browser = nil
	return err
}

// Execute handles BROWSER. ACTION_TYPE selects a structured command;
// otherwise TASK is interpreted.
func (b *Browser) Execute(ctx context.Context, a protocol.Action) Result {
	if kind := a.Field("ACTION_TYPE"); kind != "" {
		return b.structured(ctx, kind, a)
	}
	return b.task(ctx, a.Field("TASK"))
}

func (b *Browser) structured(ctx context.Context, kind string, a protocol.Action) Result {
	if err := checkBrowserArgs(kind, a); err != nil {
		return Fail("%v", err)
	}
	return b.withPage(ctx, func(page *rod.Page) Result {
		return b.run(page, kind, a)
	})
}

func (b *Browser) run(page *rod.Page, kind string, a protocol.Action) Result {
	switch kind {
	case "navigate":
		return b.navigate(page, normalizeURL(a.Field("URL")))
	case "click":
		el, err := page.Timeout(elementTimeout).Element(a.Field("SELECTOR"))
		if err != nil {
			return Fail("element not found: %s", a.Field("SELECTOR"))
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return Fail("click %s: %v", a.Field("SELECTOR"), err)
		}
		return OK("Clicked " + a.Field("SELECTOR"))
	case "fill":
		el, err := page.Timeout(elementTimeout).Element(a.Field("SELECTOR"))
		if err != nil {
			return Fail("element not found: %s", a.Field("SELECTOR"))
		}
		if err := el.Input(a.Field("VALUE")); err != nil {
			return Fail("fill %s: %v", a.Field("SELECTOR"), err)
		}
		return OK("Filled " + a.Field("SELECTOR"))
	case "get_text":
		selector := a.Field("SELECTOR")
		if selector == "" {
			selector = "body"
		}
		el, err := page.Timeout(elementTimeout).Element(selector)
		if err != nil {
			return Fail("element not found: %s", selector)
		}
		text, err := el.Text()
		if err != nil {
			return Fail("read text of %s: %v", selector, err)
		}
		return OK(truncate(text, maxPageText))
	case "get_content":
		content, err := page.HTML()
		if err != nil {
			return Fail("read page: %v", err)
		}
		return OK(truncate(content, maxPageText))
	default: // screenshot
		return b.screenshot(page, a.Field("PATH"))
	}
}

// checkBrowserArgs validates a structured command before Chrome starts.
func checkBrowserArgs(kind string, a protocol.Action) error {
	switch kind {
	case "navigate":
		if a.Field("URL") == "" {
			return fmt.Errorf("navigate requires URL")
		}
	case "click", "fill":
		if a.Field("SELECTOR") == "" {
			return fmt.Errorf("%s requires SELECTOR", kind)
		}
	case "get_text", "get_content", "screenshot":
	default:
		return fmt.Errorf("unknown browser action %q (supported: %s)", kind, strings.Join(browserActions, ", "))
	}
	return nil
}

func (b *Browser) navigate(page *rod.Page, target string) Result {
	if err := page.Timeout(b.cfg.NavigationTimeout).Navigate(target); err != nil {
		return Fail("navigate to %s: %v", target, err)
	}
	if err := page.Timeout(b.cfg.NavigationTimeout).WaitLoad(); err != nil {
		return Fail("load %s: %v", target, err)
	}
	info, err := page.Info()
	if err != nil {
		return OK("Navigated to " + target)
	}
	return OK(fmt.Sprintf("Navigated to %s\nTitle: %s", info.URL, info.Title))
}

func (b *Browser) screenshot(page *rod.Page, path string) Result {
	if path == "" {
		path = screenshotPath
	}
	if b.ws == nil {
		return Fail("no workspace configured for screenshots")
	}
	data, err := page.Screenshot(true, nil)
	if err != nil {
		return Fail("screenshot: %v", err)
	}
	if _, err := b.ws.WriteFile(path, string(data)); err != nil {
		return Fail("save screenshot: %v", err)
	}
	return OK("Screenshot saved to " + path)
}

// task interprets a free-form instruction: a URL in the text is visited,
// anything else is searched for. The visible page text is returned.
func (b *Browser) task(ctx context.Context, task string) Result {
	target := TaskURL(task)
	if target == "" {
		target = b.cfg.SearchURL + "?q=" + url.QueryEscape(task)
	}
	return b.withPage(ctx, func(page *rod.Page) Result {
		res := b.navigate(page, target)
		if !res.Success {
			return res
		}
		el, err := page.Timeout(elementTimeout).Element("body")
		if err != nil {
			return res
		}
		text, err := el.Text()
		if err != nil {
			return res
		}
		res.Output += "\n\n" + truncate(text, maxPageText)
		return res
	})
}

var (
	urlPattern  = regexp.MustCompile(`https?://[^\s"'<>]+`)
	goToPattern = regexp.MustCompile(`(?i)\b(?:go to|navigate to|visit|open)\s+(\S+)`)
)

// TaskURL extracts the page a free-form browser task asks for, or "".
func TaskURL(task string) string {
	if u := urlPattern.FindString(task); u != "" {
		return strings.TrimRight(u, ".,;)")
	}
	if m := goToPattern.FindStringSubmatch(task); m != nil && strings.Contains(m[1], ".") {
		return normalizeURL(strings.TrimRight(m[1], ".,;)"))
	}
	return ""
}

func normalizeURL(u string) string {
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") || strings.HasPrefix(u, "about:") {
		return u
	}
	return "https://" + u
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return cutUTF8(s, n) + "..."
}
