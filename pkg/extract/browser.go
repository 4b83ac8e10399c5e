package extract

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/playwright-community/playwright-go"
)

// evaluateInBrowser loads chat.html in a headless browser and reads the
// jsonData and assetsJson globals after the page's own scripts have run. This
// covers exports that build the payloads dynamically instead of inlining
// them.
func evaluateInBrowser(htmlPath string) (convs, assets json.RawMessage, err error) {
	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if err := playwright.Install(opts); err != nil {
		return nil, nil, fmt.Errorf("extract: install playwright: %w", err)
	}
	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("extract: start playwright: %w", err)
	}
	defer pw.Stop()

	headless := true
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{Headless: &headless})
	if err != nil {
		return nil, nil, fmt.Errorf("extract: launch browser: %w", err)
	}
	defer browser.Close()

	page, err := browser.NewPage()
	if err != nil {
		return nil, nil, fmt.Errorf("extract: new page: %w", err)
	}

	abs, err := filepath.Abs(htmlPath)
	if err != nil {
		return nil, nil, fmt.Errorf("extract: resolve %s: %w", htmlPath, err)
	}
	if _, err := page.Goto("file://" + abs); err != nil {
		return nil, nil, fmt.Errorf("extract: load %s: %w", abs, err)
	}
	if err := page.WaitForLoadState(); err != nil {
		return nil, nil, fmt.Errorf("extract: wait for page load: %w", err)
	}

	convs, err = evaluateGlobal(page, "jsonData")
	if err != nil {
		return nil, nil, err
	}
	assets, err = evaluateGlobal(page, "assetsJson")
	if err != nil {
		return nil, nil, err
	}
	return convs, assets, nil
}

func evaluateGlobal(page playwright.Page, name string) (json.RawMessage, error) {
	v, err := page.Evaluate(fmt.Sprintf("() => JSON.stringify(%s)", name))
	if err != nil {
		return nil, fmt.Errorf("extract: evaluate %s: %w", name, err)
	}
	s, ok := v.(string)
	if !ok || s == "" || s == "undefined" {
		return nil, fmt.Errorf("extract: global %s not defined in page", name)
	}
	return json.RawMessage(s), nil
}
