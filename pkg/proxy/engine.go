package proxy

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	// addressAttemptTimeout bounds a single address's connect+reply
	// window before the engine moves on to the next candidate.
	addressAttemptTimeout = 2 * time.Second

	// writableExtension is added once a TCP socket's connect completes,
	// giving that KDC time to answer.
	writableExtension = 10 * time.Second

	// sentinelGrace is the final, longer wait for any in-flight attempt
	// once every address has been tried.
	sentinelGrace = 15 * time.Second
)

// Engine races UDP/TCP attempts across the resolved addresses of a server
// list, per spec §4.8. It is stateless; KerberosProxy owns the
// WorkingServerMap and the ordering of candidate servers.
type Engine struct{}

// NewEngine returns a ready-to-use forwarding engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Forward tries each server in order, returning the first reply obtained.
// onFailure, if non-nil, is invoked with every candidate that fails before
// the engine moves on to the next one, so a caller can evict it from a
// working-server memo (spec §4.8 step 4). Forward returns
// ErrAllServersFailed if none of them answer.
func (e *Engine) Forward(ctx context.Context, req *ProxyRequest, servers []ServerURI, onFailure func(ServerURI)) (reply []byte, used ServerURI, err error) {
	for _, srv := range servers {
		reply, err := e.tryServer(ctx, srv, req)
		if err == nil {
			return reply, srv, nil
		}
		if onFailure != nil {
			onFailure(srv)
		}
	}
	return nil, ServerURI{}, ErrAllServersFailed
}

type candidateAddr struct {
	network string // "tcp4", "tcp6", "udp4" or "udp6"
	addr    string // host:port
}

func (a candidateAddr) stream() bool {
	return strings.HasPrefix(a.network, "tcp")
}

// resolveAddrs resolves srv's host to concrete addresses and expands them
// across the transports its scheme allows, with STREAM addresses sorted
// ahead of DGRAM ones (TCP-first policy, spec §4.8 step 1).
func (e *Engine) resolveAddrs(ctx context.Context, srv ServerURI) ([]candidateAddr, error) {
	ips, err := net.DefaultResolver.LookupIPAddr(ctx, srv.Host)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving %s: %s", ErrSocketTransient, srv.Host, err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("%w: no addresses for %s", ErrSocketTransient, srv.Host)
	}

	transport := srv.Transport()
	port := fmt.Sprintf("%d", srv.Port)

	var tcp, udp []candidateAddr
	for _, ip := range ips {
		family := "4"
		if ip.IP.To4() == nil {
			family = "6"
		}
		addr := net.JoinHostPort(ip.IP.String(), port)

		if transport != TransportUDP {
			tcp = append(tcp, candidateAddr{network: "tcp" + family, addr: addr})
		}
		if transport != TransportTCP {
			udp = append(udp, candidateAddr{network: "udp" + family, addr: addr})
		}
	}

	return append(tcp, udp...), nil
}

type attemptResult struct {
	reply []byte
	err   error
}

// tryServer iterates srv's candidate addresses, racing each one under
// addressAttemptTimeout and finishing with a single sentinelGrace wait for
// whatever is still in flight, per spec §4.8 steps 2-4. Every UDP address
// dialed so far is re-sent the request on each new round (step 3: "UDP is
// retransmit-on-each-new-attempt") — its socket stays open and its
// background reader keeps waiting, so a reply to either the original or a
// retransmitted datagram is still caught.
func (e *Engine) tryServer(ctx context.Context, srv ServerURI, req *ProxyRequest) ([]byte, error) {
	addrs, err := e.resolveAddrs(ctx, srv)
	if err != nil {
		return nil, err
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	resCh := make(chan attemptResult, len(addrs)+1)
	var wg sync.WaitGroup
	var udpConns []net.Conn
	defer func() {
		cancel()
		wg.Wait()
		for _, c := range udpConns {
			c.Close()
		}
	}()

	launchTCP := func(a candidateAddr) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply, err := e.dialTCP(attemptCtx, a, req)
			select {
			case resCh <- attemptResult{reply, err}:
			case <-attemptCtx.Done():
			}
		}()
	}

	launchUDP := func(a candidateAddr) {
		conn, err := e.dialUDP(a, req)
		if err != nil {
			select {
			case resCh <- attemptResult{err: err}:
			case <-attemptCtx.Done():
			}
			return
		}
		udpConns = append(udpConns, conn)

		wg.Add(1)
		go func() {
			defer wg.Done()
			// Unblock the read once the engine gives up on this server,
			// since nothing else closes an in-flight UDP socket.
			go func() {
				<-attemptCtx.Done()
				conn.Close()
			}()
			reply, err := readDatagramReply(conn)
			select {
			case resCh <- attemptResult{reply, err}:
			case <-attemptCtx.Done():
			}
		}()
	}

	for _, a := range addrs {
		resendUDP(udpConns, req)

		if a.stream() {
			launchTCP(a)
		} else {
			launchUDP(a)
		}

		select {
		case res := <-resCh:
			if res.err == nil {
				return res.reply, nil
			}
		case <-time.After(addressAttemptTimeout):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// Sentinel: resend once more to every open UDP candidate, then one
	// final, longer wait for any attempt still in flight instead of
	// creating a new one.
	resendUDP(udpConns, req)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	sentinel := time.NewTimer(sentinelGrace)
	defer sentinel.Stop()

	for {
		select {
		case res := <-resCh:
			if res.err == nil {
				return res.reply, nil
			}
		case <-done:
			return nil, ErrAllServersFailed
		case <-sentinel.C:
			return nil, ErrAllServersFailed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// dialTCP connects to a single TCP address, sends the framed request, and
// waits for the framed reply. TCP gets no user-level retransmission — the
// kernel's own handling of an unacknowledged segment covers that.
func (e *Engine) dialTCP(ctx context.Context, a candidateAddr, req *ProxyRequest) ([]byte, error) {
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, a.network, a.addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s %s: %s", ErrSocketTransient, a.network, a.addr, err)
	}
	defer conn.Close()

	// A non-blocking connect completing is the moment spec §4.8's await
	// loop extends the deadline by writableExtension.
	if err := conn.SetDeadline(time.Now().Add(addressAttemptTimeout + writableExtension)); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSocketFatal, err)
	}

	if _, err := conn.Write(req.Request); err != nil {
		if isHostUnreachable(err) {
			return nil, fmt.Errorf("%w: %s", ErrSocketTransient, err)
		}
		return nil, fmt.Errorf("%w: %s", ErrSocketFatal, err)
	}

	return readFramedStream(conn)
}

// dialUDP connects a UDP socket to a and sends the initial datagram. The
// connection is handed back to tryServer so later rounds can retransmit
// the same payload on it instead of opening a new socket per resend.
func (e *Engine) dialUDP(a candidateAddr, req *ProxyRequest) (net.Conn, error) {
	conn, err := net.Dial(a.network, a.addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s %s: %s", ErrSocketTransient, a.network, a.addr, err)
	}

	// UDP carries the raw Kerberos message; strip the 4-byte prefix.
	if _, err := conn.Write(req.Request[4:]); err != nil {
		conn.Close()
		if isHostUnreachable(err) {
			return nil, fmt.Errorf("%w: %s", ErrSocketTransient, err)
		}
		return nil, fmt.Errorf("%w: %s", ErrSocketFatal, err)
	}

	return conn, nil
}

// resendUDP retransmits the Kerberos payload to every UDP socket still
// open, per spec §4.8 step 3. Write errors are ignored here; a socket that
// has gone bad will also fail its pending read and get reported that way.
func resendUDP(conns []net.Conn, req *ProxyRequest) {
	for _, c := range conns {
		c.Write(req.Request[4:])
		kerbUDPRetransmits.Inc()
	}
}

// readDatagramReply implements handle_recv's DGRAM path: one recv yields
// the whole datagram, which is re-framed with a synthesised length prefix.
func readDatagramReply(conn net.Conn) ([]byte, error) {
	buf := make([]byte, maxMessageSize)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSocketTransient, err)
	}

	framed := make([]byte, 4+n)
	binary.BigEndian.PutUint32(framed, uint32(n))
	copy(framed[4:], buf[:n])
	return framed, nil
}

// readFramedStream implements handle_recv's STREAM path: a fast path when
// the first chunk already contains the whole framed message, incremental
// buffering otherwise, EOF as the end-of-message signal, and a fatal error
// for any declared or accumulated length beyond maxMessageSize.
func readFramedStream(conn net.Conn) ([]byte, error) {
	chunk := make([]byte, 8192)
	var buf []byte

	for {
		n, readErr := conn.Read(chunk)
		if n > 0 {
			if buf == nil && n >= 4 {
				declared := binary.BigEndian.Uint32(chunk[:4])
				if declared > maxMessageSize {
					return nil, fmt.Errorf("%w: declared length %d exceeds maximum", ErrSocketFatal, declared)
				}
				if uint64(declared)+4 == uint64(n) {
					out := make([]byte, n)
					copy(out, chunk[:n])
					return out, nil
				}
			}

			buf = append(buf, chunk[:n]...)

			if len(buf) >= 4 {
				declared := binary.BigEndian.Uint32(buf[:4])
				if declared > maxMessageSize {
					return nil, fmt.Errorf("%w: declared length %d exceeds maximum", ErrSocketFatal, declared)
				}
				if uint64(len(buf)) > uint64(declared)+4 {
					return nil, fmt.Errorf("%w: payload of %d bytes overruns declared length %d", ErrSocketFatal, len(buf), declared)
				}
				if uint64(len(buf)) == uint64(declared)+4 {
					return buf, nil
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				if len(buf) == 0 {
					return nil, fmt.Errorf("%w: connection closed with no data", ErrSocketTransient)
				}
				return buf, nil
			}
			return nil, fmt.Errorf("%w: %s", ErrSocketTransient, readErr)
		}
	}
}

func isHostUnreachable(err error) bool {
	return errors.Is(err, syscall.EHOSTUNREACH)
}
