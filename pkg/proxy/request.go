package proxy

import (
	"encoding/binary"
	"fmt"
)

// Variant identifies which Kerberos request the proxy is carrying.
type Variant int

const (
	VariantAS Variant = iota
	VariantTGS
	VariantKPASSWD
)

// String returns the diagnostic name used in log lines and HTTP error
// bodies, e.g. "Can't find remote (AS-REQ)."
func (v Variant) String() string {
	switch v {
	case VariantAS:
		return "AS-REQ"
	case VariantTGS:
		return "TGS-REQ"
	case VariantKPASSWD:
		return "KPASSWD-REQ"
	default:
		return "UNKNOWN-REQ"
	}
}

// ProxyRequest is a parsed, immutable KDC-PROXY-MESSAGE request.
type ProxyRequest struct {
	// Realm is the target-domain carried by the envelope.
	Realm string

	// Request is the inner Kerberos message including its 4-byte
	// big-endian length prefix.
	Request []byte

	Variant Variant

	// Version is only meaningful when Variant == VariantKPASSWD.
	Version uint16
}

// Kpasswd reports whether this request should be routed to a kpasswd
// server rather than a KDC.
func (r *ProxyRequest) Kpasswd() bool {
	return r.Variant == VariantKPASSWD
}

// DecodeRequest decodes the envelope and classifies the wrapped message,
// per spec §4.2.
func DecodeRequest(data []byte) (*ProxyRequest, error) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	msg := env.KerbMessage
	if len(msg) < 4 {
		return nil, fmt.Errorf("%w: message too short for a length prefix", ErrMalformedFraming)
	}

	declared := binary.BigEndian.Uint32(msg[0:4])
	if uint64(declared)+4 != uint64(len(msg)) {
		return nil, fmt.Errorf("%w: declared length %d does not match framed message of %d bytes", ErrMalformedFraming, declared, len(msg))
	}

	inner := msg[4:]

	if _, err := TryDecode(inner, tagASReq); err == nil {
		return &ProxyRequest{Realm: env.TargetDomain, Request: msg, Variant: VariantAS}, nil
	}

	if _, err := TryDecode(inner, tagTGSReq); err == nil {
		return &ProxyRequest{Realm: env.TargetDomain, Request: msg, Variant: VariantTGS}, nil
	}

	if pr, err := decodeKpasswd(env.TargetDomain, msg); err == nil {
		return pr, nil
	}

	return nil, ErrUnknownRequestType
}

// decodeKpasswd validates the RFC 3244 framing of a KPASSWD-REQ embedded in
// message[4:] and structurally decodes its AP-REQ and KRB-PRIV parts.
func decodeKpasswd(realm string, msg []byte) (*ProxyRequest, error) {
	body := msg[4:]
	if len(body) < 6 {
		return nil, fmt.Errorf("%w: kpasswd header truncated", ErrMalformedFraming)
	}

	totalLen := binary.BigEndian.Uint16(body[0:2])
	if int(totalLen) != len(body) {
		return nil, fmt.Errorf("%w: kpasswd total length %d does not match %d remaining bytes", ErrMalformedFraming, totalLen, len(body))
	}

	version := binary.BigEndian.Uint16(body[2:4])
	if version != 0x0001 && version != 0xff80 {
		return nil, fmt.Errorf("%w: unsupported kpasswd version 0x%04x", ErrMalformedFraming, version)
	}

	apLen := binary.BigEndian.Uint16(body[4:6])
	if int(apLen) > len(body)-6 {
		return nil, fmt.Errorf("%w: kpasswd ap-req length %d overruns message", ErrMalformedFraming, apLen)
	}

	apBytes := body[6 : 6+int(apLen)]
	privBytes := body[6+int(apLen):]

	if _, err := TryDecode(apBytes, tagAPReq); err != nil {
		return nil, fmt.Errorf("%w: kpasswd ap-req: %s", ErrMalformedFraming, err)
	}
	if _, err := TryDecode(privBytes, tagKRBPriv); err != nil {
		return nil, fmt.Errorf("%w: kpasswd krb-priv: %s", ErrMalformedFraming, err)
	}

	return &ProxyRequest{Realm: realm, Request: msg, Variant: VariantKPASSWD, Version: version}, nil
}
