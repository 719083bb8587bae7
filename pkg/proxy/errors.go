package proxy

import "errors"

// Sentinel errors used to map internal failures to HTTP status codes, per
// spec §7. Callers should use errors.Is to test for these.
var (
	// ErrMalformedEnvelope means the request body was not a well-formed
	// KDC-PROXY-MESSAGE.
	ErrMalformedEnvelope = errors.New("malformed KDC-PROXY-MESSAGE envelope")

	// ErrAsnParse means a structural DER decode of an inner message failed.
	ErrAsnParse = errors.New("asn1 structural parse error")

	// ErrMalformedFraming means the 4-byte length prefix (or, for
	// KPASSWD-REQ, the RFC 3244 sub-framing) did not agree with the
	// actual message length.
	ErrMalformedFraming = errors.New("malformed kerberos message framing")

	// ErrUnknownRequestType means none of AS-REQ, TGS-REQ or KPASSWD-REQ
	// could be classified from the wrapped message.
	ErrUnknownRequestType = errors.New("unknown kerberos request type")

	// ErrNoServersForRealm means no resolver produced a candidate server
	// for the request's realm.
	ErrNoServersForRealm = errors.New("no servers found for realm")

	// ErrAllServersFailed means every candidate server was tried and none
	// produced a reply.
	ErrAllServersFailed = errors.New("all candidate servers failed")

	// ErrSocketTransient marks a per-socket failure the engine tolerates
	// and continues past (connection refused, host unreachable, timeout).
	ErrSocketTransient = errors.New("transient socket error")

	// ErrSocketFatal marks an unexpected send/recv error on one socket;
	// the socket is dropped and the engine continues with others.
	ErrSocketFatal = errors.New("fatal socket error")
)
