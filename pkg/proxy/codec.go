package proxy

import (
	"fmt"

	"github.com/jcmturner/gofork/encoding/asn1"
)

// maxMessageSize is the largest inner Kerberos message (including its
// 4-byte length prefix) the proxy will accept or forward, per [MS-KKDCP].
const maxMessageSize = 128 * 1024

// Application-class tags used to classify the message wrapped inside a
// KDC-PROXY-MESSAGE, per RFC 4120 and RFC 3244.
const (
	tagASReq   = 10
	tagTGSReq  = 12
	tagAPReq   = 14
	tagKRBPriv = 21
)

var appTagNames = map[int]string{
	tagASReq:   "AS-REQ",
	tagTGSReq:  "TGS-REQ",
	tagAPReq:   "AP-REQ",
	tagKRBPriv: "KRB-PRIV",
}

// KDCProxyMessage represents a KDC-PROXY-MESSAGE as defined by
// https://learn.microsoft.com/en-us/openspecs/windows_protocols/ms-kkdcp/5778aff5-b182-4b97-a970-29c7f911eef2
//
//	KDC-PROXY-MESSAGE ::= SEQUENCE {
//	    kerb-message    [0] OCTET STRING,
//	    target-domain   [1] Realm OPTIONAL,
//	    dclocator-hint  [2] INTEGER OPTIONAL
//	}
type KDCProxyMessage struct {
	KerbMessage   []byte `asn1:"tag:0,explicit"`
	TargetDomain  string `asn1:"tag:1,explicit,optional,generalstring"`
	DCLocatorHint int    `asn1:"tag:2,explicit,optional"`
}

// DecodeEnvelope parses a DER-encoded KDC-PROXY-MESSAGE. It fails if the
// bytes are not a well-formed SEQUENCE or if trailing bytes remain after it.
func DecodeEnvelope(data []byte) (*KDCProxyMessage, error) {
	var m KDCProxyMessage

	rest, err := asn1.Unmarshal(data, &m)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedEnvelope, err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("%w: trailing data after KDC-PROXY-MESSAGE", ErrMalformedEnvelope)
	}

	return &m, nil
}

// EncodeEnvelope produces a KDC-PROXY-MESSAGE wrapping message, omitting
// the optional target-domain and dclocator-hint fields.
func EncodeEnvelope(message []byte) ([]byte, error) {
	m := KDCProxyMessage{KerbMessage: message}

	enc, err := asn1.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding KDC-PROXY-MESSAGE: %w", err)
	}

	return enc, nil
}

// TryDecode attempts a structural DER decode of data as a SEQUENCE bearing
// the APPLICATION-class explicit tag identified by expectedTag, returning
// the tag's pretty name on success. Only the outer shape is validated —
// the proxy is not a KDC and does not inspect message semantics.
func TryDecode(data []byte, expectedTag int) (string, error) {
	name, ok := appTagNames[expectedTag]
	if !ok {
		return "", fmt.Errorf("%w: unsupported application tag %d", ErrAsnParse, expectedTag)
	}

	var outer asn1.RawValue
	rest, err := asn1.Unmarshal(data, &outer)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrAsnParse, err)
	}
	if len(rest) > 0 {
		return "", fmt.Errorf("%w: trailing data after %s", ErrAsnParse, name)
	}
	if outer.Class != asn1.ClassApplication || outer.Tag != expectedTag {
		return "", fmt.Errorf("%w: not a %s (tag %d/%d)", ErrAsnParse, name, outer.Class, outer.Tag)
	}
	if !outer.IsCompound {
		return "", fmt.Errorf("%w: %s tag is not constructed", ErrAsnParse, name)
	}

	var body asn1.RawValue
	bodyRest, err := asn1.Unmarshal(outer.Bytes, &body)
	if err != nil {
		return "", fmt.Errorf("%w: invalid %s body: %s", ErrAsnParse, name, err)
	}
	if len(bodyRest) > 0 {
		return "", fmt.Errorf("%w: trailing data in %s body", ErrAsnParse, name)
	}
	if body.Class != asn1.ClassUniversal || body.Tag != asn1.TagSequence {
		return "", fmt.Errorf("%w: %s body is not a SEQUENCE", ErrAsnParse, name)
	}

	return name, nil
}
