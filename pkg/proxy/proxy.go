package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DefaultRateLimit is the default number of requests per second to allow.
const DefaultRateLimit = 10

// KerberosProxy is a KDC Proxy: it accepts HTTP-wrapped KDC-PROXY-MESSAGE
// requests, classifies and forwards them, and wraps the reply the same way.
//
// KerberosProxy deliberately knows nothing about kdcproxy.conf, krb5.conf,
// or DNS SRV records — its resolver is built by the caller (see
// cmd/kdcproxy) from the internal/realmconfig, internal/mitprofile and
// internal/dnssrv packages and handed in via WithResolver, keeping this
// package importable without pulling in file or network I/O.
type KerberosProxy struct {
	logger  zerolog.Logger
	limiter *rate.Limiter

	resolver *MetaResolver
	memo     *WorkingServerMap
	engine   *Engine
}

// InitKdcProxy builds a KerberosProxy. A resolver must be supplied via
// WithResolver.
func InitKdcProxy(opts ...ProxyOption) (*KerberosProxy, error) {
	kp := &KerberosProxy{
		logger:  zerolog.Nop(),
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		memo:    NewWorkingServerMap(),
		engine:  NewEngine(),
	}

	for _, o := range opts {
		o(kp)
	}

	if kp.resolver == nil {
		return nil, fmt.Errorf("proxy: no resolver configured, use WithResolver")
	}

	return kp, nil
}

// Handler implements the MS-KKDCP HTTP endpoint.
func (k *KerberosProxy) Handler(w http.ResponseWriter, r *http.Request) {
	httpReqs.Inc()
	start := time.Now()
	defer func() {
		httpRespTimeHistogram.Observe(time.Since(start).Seconds())
	}()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if r.Method != http.MethodPost {
		k.fail(w, http.StatusMethodNotAllowed, fmt.Sprintf("Method not allowed (%s).", r.Method))
		return
	}

	if r.ContentLength < 0 {
		k.fail(w, http.StatusLengthRequired, "Content length required.")
		return
	}
	if r.ContentLength > maxMessageSize {
		k.fail(w, http.StatusRequestEntityTooLarge, "Request entity too large.")
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxMessageSize+1))
	defer r.Body.Close()
	if err != nil {
		k.fail(w, http.StatusBadRequest, "Error reading request body.")
		return
	}

	if !k.limiter.Allow() {
		k.fail(w, http.StatusTooManyRequests, "Rate limit exceeded.")
		return
	}

	req, err := DecodeRequest(data)
	if err != nil {
		k.fail(w, http.StatusBadRequest, decodeFailureMessage(err))
		return
	}
	if req.Realm == "" {
		k.fail(w, http.StatusBadRequest, "Request did not specify a target domain.")
		return
	}

	k.forward(w, r.Context(), req)
}

func decodeFailureMessage(err error) string {
	switch {
	case errors.Is(err, ErrMalformedEnvelope):
		return "Malformed KDC-PROXY-MESSAGE."
	case errors.Is(err, ErrMalformedFraming):
		return "Malformed kerberos message framing."
	case errors.Is(err, ErrUnknownRequestType):
		return "Unknown kerberos request type."
	default:
		return "Invalid request."
	}
}

func (k *KerberosProxy) forward(w http.ResponseWriter, ctx context.Context, req *ProxyRequest) {
	start := time.Now()
	defer func() {
		kerbRespTimeHistogram.Observe(time.Since(start).Seconds())
	}()

	servers := k.resolver.Lookup(req.Realm, req.Kpasswd())
	if len(servers) == 0 {
		kerbReqs.WithLabelValues(req.Variant.String()).Inc()
		k.logger.Warn().Str("realm", req.Realm).Str("variant", req.Variant.String()).Msg("no servers found for realm")
		k.fail(w, http.StatusServiceUnavailable, fmt.Sprintf("Can't find remote (%s).", req.Variant))
		return
	}
	servers = k.memo.Reorder(req.Realm, servers)

	kerbReqs.WithLabelValues(req.Variant.String()).Inc()
	reply, used, err := k.engine.Forward(ctx, req, servers, func(srv ServerURI) {
		k.memo.MarkBroken(req.Realm, srv)
		kerbCandidateFailures.Inc()
	})
	if err != nil {
		k.logger.Warn().Str("realm", req.Realm).Int("candidates", len(servers)).Msg("all candidate servers failed")
		k.fail(w, http.StatusServiceUnavailable, fmt.Sprintf("Remote unavailable (%s).", req.Variant))
		return
	}
	k.memo.MarkWorking(req.Realm, used)
	kerbResp.WithLabelValues(used.Transport().String()).Inc()

	envelope, err := EncodeEnvelope(reply)
	if err != nil {
		k.fail(w, http.StatusInternalServerError, "Error encoding response.")
		return
	}

	w.Header().Set("Content-Type", "application/kerberos")
	httpResp.WithLabelValues(http.StatusText(http.StatusOK)).Inc()
	w.Write(envelope)
}

func (k *KerberosProxy) fail(w http.ResponseWriter, status int, body string) {
	httpResp.WithLabelValues(http.StatusText(status)).Inc()
	http.Error(w, body, status)
}
