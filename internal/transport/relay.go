package transport

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/dreamware/primus/internal/cluster"
)

// NewRelay returns the sidecar handler: every request is proxied to the
// host:port named in its Destination header, path and body unchanged.
func NewRelay(log logrus.FieldLogger) http.Handler {
	log = log.WithField("component", "relay")

	proxy := &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(&url.URL{Scheme: "http", Host: r.In.Header.Get(cluster.DestinationHeader)})
			r.Out.Header.Del(cluster.DestinationHeader)
			r.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.WithFields(logrus.Fields{
				"destination": r.Header.Get(cluster.DestinationHeader),
				"path":        r.URL.Path,
				"request_id":  r.Header.Get(cluster.RequestIDHeader),
			}).WithError(err).Warn("relay failed")
			http.Error(w, "destination unreachable", http.StatusBadGateway)
		},
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(cluster.DestinationHeader) == "" {
			http.Error(w, "missing "+cluster.DestinationHeader+" header", http.StatusBadRequest)
			return
		}
		proxy.ServeHTTP(w, r)
	})
}
