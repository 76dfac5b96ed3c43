package downloader

import (
	"context"
	"net/url"
	"strings"
)

// Rewrites target so that it's fetched through a proxy worker, on the
// form <worker>?url=<escaped target>. A blank worker leaves target
// untouched.
func ProxyURL(worker, target string) string {
	if worker == "" {
		return target
	}

	sep := "?"
	if strings.Contains(worker, "?") {
		sep = "&"
	}
	return worker + sep + "url=" + url.QueryEscape(target)
}

// Routes all requests of another Downloader through a proxy
// worker. Headers are forwarded to the worker as is.
type Proxy struct {
	Worker     string
	Downloader Downloader
}

func NewProxy(worker string, d Downloader) *Proxy {
	return &Proxy{Worker: worker, Downloader: d}
}

func (p *Proxy) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {
	return p.Downloader.Get(ctx, ProxyURL(p.Worker, url), headers, options)
}
