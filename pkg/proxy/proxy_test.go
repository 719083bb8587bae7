package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestInitKdcProxyRequiresResolver(t *testing.T) {
	if _, err := InitKdcProxy(); err == nil {
		t.Fatal("InitKdcProxy without WithResolver should fail")
	}
}

type stubSource struct {
	servers []ServerURI
}

func (s stubSource) Lookup(realm string, kpasswd bool) []ServerURI { return s.servers }
func (s stubSource) RealmConfigured(realm string) bool             { return len(s.servers) > 0 }
func (s stubSource) UseDNS(realm string) bool                      { return false }

func newTestProxy(t *testing.T, servers ...ServerURI) *KerberosProxy {
	t.Helper()
	kp, err := InitKdcProxy(WithResolver(NewMetaResolver(stubSource{servers: servers}, nil, nil, false)))
	if err != nil {
		t.Fatalf("InitKdcProxy: %s", err)
	}
	return kp
}

func TestHandlerRejectsNonPost(t *testing.T) {
	kp := newTestProxy(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	kp.Handler(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestHandlerRequiresContentLength(t *testing.T) {
	kp := newTestProxy(t)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("x"))
	req.ContentLength = -1
	rec := httptest.NewRecorder()
	kp.Handler(rec, req)

	if rec.Code != http.StatusLengthRequired {
		t.Fatalf("status = %d, want 411", rec.Code)
	}
}

func TestHandlerRejectsOversizedBody(t *testing.T) {
	kp := newTestProxy(t)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("x"))
	req.ContentLength = maxMessageSize + 1
	rec := httptest.NewRecorder()
	kp.Handler(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}

func TestHandlerRejectsMalformedEnvelope(t *testing.T) {
	kp := newTestProxy(t)

	body := []byte{0xff, 0xff, 0xff}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(string(body)))
	req.ContentLength = int64(len(body))
	rec := httptest.NewRecorder()
	kp.Handler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandlerNoServersForRealm(t *testing.T) {
	kp := newTestProxy(t)

	envelope, _ := buildASReqFixture(t, "FREEIPA.LOCAL")
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(string(envelope)))
	req.ContentLength = int64(len(envelope))
	rec := httptest.NewRecorder()
	kp.Handler(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	b, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(b), "Can't find remote") {
		t.Errorf("body = %q, want it to mention \"Can't find remote\"", b)
	}
}

func TestHandlerAllServersFailed(t *testing.T) {
	// Nothing listens on port 1 on loopback, so the TCP connect and the UDP
	// send are both refused and the engine reports every candidate as
	// failed without needing a live KDC.
	kp := newTestProxy(t, ServerURI{Scheme: "kerberos", Host: "127.0.0.1", Port: 1})

	envelope, _ := buildASReqFixture(t, "FREEIPA.LOCAL")
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(string(envelope)))
	req.ContentLength = int64(len(envelope))
	rec := httptest.NewRecorder()
	kp.Handler(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	b, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(b), "Remote unavailable") {
		t.Errorf("body = %q, want it to mention \"Remote unavailable\"", b)
	}
}

func TestHandlerMarksFailedServerBroken(t *testing.T) {
	// A dead first candidate must not get stuck at the front of the memo
	// forever: once it fails, MarkBroken should clear it so a later
	// request's Reorder doesn't keep retrying it first.
	dead := ServerURI{Scheme: "kerberos", Host: "127.0.0.1", Port: 1}
	kp := newTestProxy(t, dead)
	kp.memo.MarkWorking("FREEIPA.LOCAL", dead)

	envelope, _ := buildASReqFixture(t, "FREEIPA.LOCAL")
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(string(envelope)))
	req.ContentLength = int64(len(envelope))
	rec := httptest.NewRecorder()
	kp.Handler(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	kp.memo.mu.RLock()
	_, stillRemembered := kp.memo.working["FREEIPA.LOCAL"]
	kp.memo.mu.RUnlock()
	if stillRemembered {
		t.Error("failed server should have been cleared from the working-server memo")
	}
}
