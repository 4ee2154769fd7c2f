// Built-in action handlers.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/vinayprograms/companion/internal/directive"
)

const (
	maxRunOutput  = 50 * 1024
	maxReadOutput = 4000
	maxPageText   = 2000
)

// Commands whose first token reaches the network. Running one of
// these goes through the network gate in addition to the guard.
var networkTools = map[string]bool{
	"curl": true, "wget": true, "ping": true, "ssh": true,
	"scp": true, "nc": true, "ncat": true, "telnet": true,
	"dig": true, "nslookup": true, "ftp": true, "rsync": true,
}

var httpClient = &http.Client{Timeout: 20 * time.Second}

// BuiltinConfig tunes the stock handlers.
type BuiltinConfig struct {
	// RunTimeout caps one shell invocation. Zero selects 30s.
	RunTimeout time.Duration
	// MediaDir receives downloaded media files. Zero selects "media".
	MediaDir string
	// SearchURL is the HTML search endpoint queries are appended to.
	SearchURL string
	// MediaSearchURL is the image search API endpoint.
	MediaSearchURL string
}

func (c *BuiltinConfig) applyDefaults() {
	if c.RunTimeout <= 0 {
		c.RunTimeout = 30 * time.Second
	}
	if c.MediaDir == "" {
		c.MediaDir = "media"
	}
	if c.SearchURL == "" {
		c.SearchURL = "https://html.duckduckgo.com/html/?q="
	}
	if c.MediaSearchURL == "" {
		c.MediaSearchURL = "https://api.openverse.org/v1/images/?page_size=1&q="
	}
}

// RegisterBuiltins installs the stock conversational handlers. The
// builtin names are statically valid, so a registration error here is
// a programming mistake and panics.
func RegisterBuiltins(r *Registry, cfg BuiltinConfig) {
	cfg.applyDefaults()

	mustRegister(r, "write", writeHandler(false))
	mustRegister(r, "append", writeHandler(true))
	mustRegister(r, "read", readHandler)
	mustRegister(r, "list", listHandler)
	mustRegister(r, "run", runHandler(cfg.RunTimeout))
	mustRegister(r, "show", showHandler)
	mustRegister(r, "fetch_media", fetchMediaHandler(cfg.MediaSearchURL, cfg.MediaDir))
	mustRegister(r, "search", searchHandler(cfg.SearchURL))
	mustRegister(r, "browse", browseHandler)
}

func mustRegister(r *Registry, name string, h HandlerFunc) {
	if err := r.Register(name, h); err != nil {
		panic(err)
	}
}

func writeHandler(appendMode bool) HandlerFunc {
	return func(ctx context.Context, req *Request) (string, error) {
		target, content := directive.SplitArgument(req.Argument)
		if target == "" {
			return "", errors.New("missing target path")
		}
		content = directive.UnescapeContent(content)

		if dir := filepath.Dir(target); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return "", fmt.Errorf("failed to create directory: %w", err)
			}
		}

		if appendMode {
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return "", fmt.Errorf("failed to open file: %w", err)
			}
			defer f.Close()
			n, err := f.WriteString(content)
			if err != nil {
				return "", fmt.Errorf("failed to append: %w", err)
			}
			return fmt.Sprintf("appended %d bytes to %s", n, target), nil
		}

		if err := os.WriteFile(target, []byte(content), 0644); err != nil {
			return "", fmt.Errorf("failed to write: %w", err)
		}
		return fmt.Sprintf("wrote %d bytes to %s", len(content), target), nil
	}
}

func readHandler(ctx context.Context, req *Request) (string, error) {
	path := strings.TrimSpace(req.Argument)
	if path == "" {
		return "", errors.New("missing file path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read: %w", err)
	}
	content := string(data)
	if len(content) > maxReadOutput {
		content = content[:maxReadOutput] + "\n... (truncated)"
	}
	return fmt.Sprintf("contents of %s:\n%s", path, content), nil
}

func listHandler(ctx context.Context, req *Request) (string, error) {
	dir := strings.TrimSpace(req.Argument)
	if dir == "" {
		dir = "."
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to list: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return fmt.Sprintf("%s is empty", dir), nil
	}
	return fmt.Sprintf("%s:\n%s", dir, strings.Join(names, "\n")), nil
}

// runHandler executes a shell command with a wall-clock cap. On
// expiry the child is killed and a timeout result is reported instead
// of blocking the turn. A cancelled context kills only the in-flight
// subprocess; results collected earlier in the turn stay intact.
func runHandler(timeout time.Duration) HandlerFunc {
	return func(ctx context.Context, req *Request) (string, error) {
		command := strings.TrimSpace(req.Argument)
		if command == "" {
			return "", errors.New("missing command")
		}

		if fields := strings.Fields(command); len(fields) > 0 && networkTools[fields[0]] {
			if !req.Session.Caps.NetworkEnabled {
				return "", fmt.Errorf("%w: %s", ErrNetworkBlocked, fields[0])
			}
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, "sh", "-c", command)
		output, err := cmd.CombinedOutput()

		text := string(output)
		if len(text) > maxRunOutput {
			text = text[:maxRunOutput] + "\n... (output truncated)"
		}

		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("command timed out after %s", timeout)
		}
		if err != nil {
			if text != "" {
				return "", fmt.Errorf("command failed: %v\n%s", err, strings.TrimSpace(text))
			}
			return "", fmt.Errorf("command failed: %w", err)
		}

		text = strings.TrimSpace(text)
		if text == "" {
			return fmt.Sprintf("ran `%s` (no output)", command), nil
		}
		return fmt.Sprintf("ran `%s`:\n%s", command, text), nil
	}
}

// showHandler signals the presentation layer to open a file viewer.
func showHandler(ctx context.Context, req *Request) (string, error) {
	path := strings.TrimSpace(req.Argument)
	if path == "" {
		return "", errors.New("missing file path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("cannot show: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("cannot show a directory: %s", path)
	}
	return fmt.Sprintf("opened %s in the viewer (%d bytes)", path, info.Size()), nil
}

// fetchMediaHandler looks up an image for a keyword and saves it to
// the media directory.
func fetchMediaHandler(searchURL, mediaDir string) HandlerFunc {
	return func(ctx context.Context, req *Request) (string, error) {
		if !req.Session.Caps.NetworkEnabled {
			return "", fmt.Errorf("%w: media fetch", ErrNetworkBlocked)
		}
		keyword := strings.TrimSpace(req.Argument)
		if keyword == "" {
			return "", errors.New("missing media keyword")
		}

		var lookup struct {
			Results []struct {
				Title string `json:"title"`
				URL   string `json:"url"`
			} `json:"results"`
		}
		if err := getJSON(ctx, searchURL+url.QueryEscape(keyword), &lookup); err != nil {
			return "", fmt.Errorf("media lookup failed: %w", err)
		}
		if len(lookup.Results) == 0 {
			return fmt.Sprintf("no media found for %q", keyword), nil
		}

		if err := os.MkdirAll(mediaDir, 0755); err != nil {
			return "", fmt.Errorf("failed to create media directory: %w", err)
		}
		name := fmt.Sprintf("%s-%d%s", sanitizeFilename(keyword), time.Now().Unix(), extensionFor(lookup.Results[0].URL))
		path := filepath.Join(mediaDir, name)

		size, err := downloadTo(ctx, lookup.Results[0].URL, path)
		if err != nil {
			return "", fmt.Errorf("media download failed: %w", err)
		}
		return fmt.Sprintf("saved media for %q to %s (%d bytes)", keyword, path, size), nil
	}
}

// searchHandler runs a text web search and lists the top results.
func searchHandler(searchURL string) HandlerFunc {
	return func(ctx context.Context, req *Request) (string, error) {
		if !req.Session.Caps.NetworkEnabled {
			return "", fmt.Errorf("%w: web search", ErrNetworkBlocked)
		}
		query := strings.TrimSpace(req.Argument)
		if query == "" {
			return "", errors.New("missing search query")
		}

		doc, err := getHTML(ctx, searchURL+url.QueryEscape(query))
		if err != nil {
			return "", fmt.Errorf("search failed: %w", err)
		}

		results := extractSearchResults(doc, 5)
		if len(results) == 0 {
			return fmt.Sprintf("no results for %q", query), nil
		}
		return fmt.Sprintf("results for %q:\n%s", query, strings.Join(results, "\n")), nil
	}
}

// browseHandler fetches a page and extracts its title and readable
// text.
func browseHandler(ctx context.Context, req *Request) (string, error) {
	if !req.Session.Caps.NetworkEnabled {
		return "", fmt.Errorf("%w: browse", ErrNetworkBlocked)
	}
	pageURL := strings.TrimSpace(req.Argument)
	if pageURL == "" {
		return "", errors.New("missing URL")
	}

	doc, err := getHTML(ctx, pageURL)
	if err != nil {
		return "", fmt.Errorf("browse failed: %w", err)
	}

	title, text := extractPage(doc)
	if len(text) > maxPageText {
		text = text[:maxPageText] + "... (truncated)"
	}
	if title == "" {
		title = pageURL
	}
	return fmt.Sprintf("%s\n%s", title, text), nil
}

func getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func getHTML(ctx context.Context, rawURL string) (*html.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return html.Parse(io.LimitReader(resp.Body, 2*1024*1024))
}

func downloadTo(ctx context.Context, rawURL, path string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("status %d", resp.StatusCode)
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(f, resp.Body)
}

// extractSearchResults walks the parsed page collecting result links.
func extractSearchResults(doc *html.Node, limit int) []string {
	var results []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(results) >= limit {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" && hasClass(n, "result__a") {
			text := strings.TrimSpace(nodeText(n))
			href := attr(n, "href")
			if text != "" && href != "" {
				results = append(results, fmt.Sprintf("- %s (%s)", text, href))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results
}

// extractPage returns the page title and its visible text with
// scripts and styles skipped.
func extractPage(doc *html.Node) (title, text string) {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			case "title":
				if title == "" {
					title = strings.TrimSpace(nodeText(n))
				}
				return
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				b.WriteString(t)
				b.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title, strings.TrimSpace(b.String())
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" {
			for _, c := range strings.Fields(a.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func sanitizeFilename(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "media"
	}
	return b.String()
}

func extensionFor(rawURL string) string {
	ext := strings.ToLower(filepath.Ext(rawURL))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg":
		return ext
	}
	return ".jpg"
}
