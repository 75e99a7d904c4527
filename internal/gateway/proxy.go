package gateway

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"BookStore/pkg/kit"
)

// NewReverseProxy forwards requests to target unchanged, tagging them with
// the edge request ID. Unreachable upstreams answer 502.
func NewReverseProxy(target string, log *zap.Logger) (http.Handler, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("invalid upstream url %q", target)
	}

	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(u)
			pr.SetXForwarded()
			if id := chimw.GetReqID(pr.In.Context()); id != "" {
				pr.Out.Header.Set(chimw.RequestIDHeader, id)
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Warn("upstream failed", zap.String("upstream", u.Host), zap.Error(err))
			kit.WriteError(w, r, http.StatusBadGateway, "bad_gateway", "upstream unavailable", nil)
		},
	}
	return rp, nil
}
