package httpapi

import (
	"net/url"
	"strings"

	"pkt.systems/juno/schema"
)

// Pages builds the URLs of the embedded front-end pages.
type Pages struct {
	base string
}

// NewPages returns page URLs rooted at baseURL.
func NewPages(baseURL string) Pages {
	return Pages{base: strings.TrimSuffix(baseURL, "/")}
}

// ConnectDialog is the page that asks for a resource to open.
func (p Pages) ConnectDialog(window schema.WindowID, surface schema.SurfaceID) string {
	return p.page("connect.html", window, surface)
}

// ServerPane is the page that shows server output.
func (p Pages) ServerPane(window schema.WindowID, surface schema.SurfaceID) string {
	return p.page("server.html", window, surface)
}

// Dialog is the page that renders a message box.
func (p Pages) Dialog(surface schema.SurfaceID) string {
	return p.page("dialog.html", "", surface)
}

func (p Pages) page(name string, window schema.WindowID, surface schema.SurfaceID) string {
	q := url.Values{}
	if window != "" {
		q.Set("window", string(window))
	}
	q.Set("surface", string(surface))
	return p.base + "/" + name + "?" + q.Encode()
}
