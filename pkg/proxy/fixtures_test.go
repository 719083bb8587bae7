package proxy

import (
	"encoding/binary"
	"testing"

	"github.com/jcmturner/gofork/encoding/asn1"
)

// derLength encodes a DER length in short or long form.
func derLength(n int) []byte {
	if n < 128 {
		return []byte{byte(n)}
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte(n & 0xff)}, b...)
		n >>= 8
	}
	return append([]byte{0x80 | byte(len(b))}, b...)
}

// derTLV encodes one DER tag-length-value using the given identifier octet.
func derTLV(identifier byte, content []byte) []byte {
	out := append([]byte{identifier}, derLength(len(content))...)
	return append(out, content...)
}

const (
	identUniversalSequence = 0x30 // universal, constructed, tag 16

	identAppASReq   = 0x6a // application, constructed, tag 10
	identAppTGSReq  = 0x6c // application, constructed, tag 12
	identAppAPReq   = 0x6e // application, constructed, tag 14
	identAppKRBPriv = 0x75 // application, constructed, tag 21
)

// buildApplicationMessage builds a structurally-valid, semantically-empty
// [APPLICATION tag] SEQUENCE {} value of the kind try_decode checks for.
func buildApplicationMessage(ident byte) []byte {
	return derTLV(ident, derTLV(identUniversalSequence, nil))
}

// frame prepends a 4-byte big-endian length prefix to msg.
func frame(msg []byte) []byte {
	out := make([]byte, 4+len(msg))
	binary.BigEndian.PutUint32(out, uint32(len(msg)))
	copy(out[4:], msg)
	return out
}

// buildEnvelope DER-encodes a KDC-PROXY-MESSAGE carrying framedMessage and
// realm.
func buildEnvelope(t *testing.T, framedMessage []byte, realm string) []byte {
	t.Helper()
	enc, err := asn1.Marshal(KDCProxyMessage{KerbMessage: framedMessage, TargetDomain: realm})
	if err != nil {
		t.Fatalf("encoding test envelope: %s", err)
	}
	return enc
}

// buildASReqFixture returns a full KDC-PROXY-MESSAGE envelope wrapping a
// structurally-valid AS-REQ for realm, along with the framed inner message.
func buildASReqFixture(t *testing.T, realm string) (envelope, framedMessage []byte) {
	t.Helper()
	framedMessage = frame(buildApplicationMessage(identAppASReq))
	envelope = buildEnvelope(t, framedMessage, realm)
	return envelope, framedMessage
}

// buildTGSReqFixture is buildASReqFixture's TGS-REQ counterpart.
func buildTGSReqFixture(t *testing.T, realm string) (envelope, framedMessage []byte) {
	t.Helper()
	framedMessage = frame(buildApplicationMessage(identAppTGSReq))
	envelope = buildEnvelope(t, framedMessage, realm)
	return envelope, framedMessage
}

// buildKpasswdFixture returns a full KDC-PROXY-MESSAGE envelope wrapping an
// RFC 3244-framed KPASSWD-REQ for realm.
func buildKpasswdFixture(t *testing.T, realm string, version uint16) (envelope, framedMessage []byte) {
	t.Helper()

	apReq := buildApplicationMessage(identAppAPReq)
	krbPriv := buildApplicationMessage(identAppKRBPriv)

	body := make([]byte, 6)
	binary.BigEndian.PutUint16(body[2:4], version)
	binary.BigEndian.PutUint16(body[4:6], uint16(len(apReq)))
	body = append(body, apReq...)
	body = append(body, krbPriv...)
	binary.BigEndian.PutUint16(body[0:2], uint16(len(body)))

	framedMessage = frame(body)
	envelope = buildEnvelope(t, framedMessage, realm)
	return envelope, framedMessage
}
