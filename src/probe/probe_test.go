package probe

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"

	"github.com/oxen-io/lokinet/src/util"
)

// fakeGetter answers from a fixed table and counts calls.
type fakeGetter struct {
	answers map[string]string
	calls   int32
}

func (g *fakeGetter) Get(_ context.Context, url string) ([]byte, error) {
	atomic.AddInt32(&g.calls, 1)
	if body, ok := g.answers[url]; ok {
		return []byte(body), nil
	}
	return nil, ErrNoAnswer
}

// fakeQuerier records the servers it was asked and replies from a table.
// A server missing from the table fails like a closed port.
type fakeQuerier struct {
	mutex   sync.Mutex
	replies map[string]*dns.Msg
	asked   []string
}

func (q *fakeQuerier) Query(_ context.Context, server, name string) (*dns.Msg, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	q.asked = append(q.asked, server)
	if reply, ok := q.replies[server]; ok {
		return reply, nil
	}
	return nil, errors.New("connection refused")
}

func answer(name string, ips ...string) *dns.Msg {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeA)
	reply := new(dns.Msg)
	reply.SetReply(msg)
	for _, ip := range ips {
		reply.Answer = append(reply.Answer, &dns.A{
			Hdr: dns.RR_Header{Name: dns.Fqdn(name), Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
			A:   net.ParseIP(ip),
		})
	}
	return reply
}

func nxdomain(name string) *dns.Msg {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeA)
	reply := new(dns.Msg)
	reply.SetRcode(msg, dns.RcodeNameError)
	return reply
}

// startDNS runs a miekg/dns server on a random local UDP port which answers
// names in records and NXDOMAIN for everything else.
func startDNS(t *testing.T, records map[string]string) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	started := make(chan struct{})
	server := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
			name := r.Question[0].Name
			reply := new(dns.Msg)
			if ip, ok := records[name]; ok {
				reply.SetReply(r)
				reply.Answer = answer(name, ip).Answer
			} else {
				reply.SetRcode(r, dns.RcodeNameError)
			}
			_ = w.WriteMsg(reply)
		}),
	}
	go func() { _ = server.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = server.Shutdown() })
	return pc.LocalAddr().String()
}

func TestHTTPGet(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ip", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("203.0.113.7\n"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	body, err := HTTPGet(context.Background(), srv.Client(), srv.URL+"/ip", nil)
	require.NoError(t, err)
	require.Equal(t, "203.0.113.7\n", string(body))

	_, err = HTTPGet(context.Background(), srv.Client(), srv.URL+"/gone", nil)
	require.True(t, errors.Is(err, ErrNoAnswer))
}

func TestHTTPGet_ShutdownWatchdog(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	shutdown := util.NewShutdown()
	time.AfterFunc(50*time.Millisecond, func() { shutdown.Request(nil) })

	start := time.Now()
	_, err := HTTPGet(context.Background(), srv.Client(), srv.URL, shutdown)
	require.True(t, errors.Is(err, ErrNoAnswer))
	require.Less(t, time.Since(start), Timeout)
}

func TestPublicIP_Agreement(t *testing.T) {
	getter := &fakeGetter{answers: map[string]string{
		"a": "198.51.100.4\n",
		"b": " 198.51.100.4",
		"c": "198.51.100.4",
	}}
	ip, err := PublicIP(context.Background(), getter, []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Equal(t, "198.51.100.4", ip.String())
	require.EqualValues(t, 2, atomic.LoadInt32(&getter.calls))
}

func TestPublicIP_NoConsensusAfterTenRounds(t *testing.T) {
	getter := &disagreeingGetter{}
	_, err := PublicIP(context.Background(), getter, []string{"a", "b"})
	require.True(t, errors.Is(err, ErrNoConsensus))
	require.EqualValues(t, 2*ConsensusRounds, atomic.LoadInt32(&getter.calls))
}

// disagreeingGetter never gives the same answer twice.
type disagreeingGetter struct {
	calls int32
}

func (g *disagreeingGetter) Get(context.Context, string) ([]byte, error) {
	n := atomic.AddInt32(&g.calls, 1)
	return []byte("192.0.2." + strconv.Itoa(int(n))), nil
}

func TestPublicIP_ServiceErrors(t *testing.T) {
	getter := &fakeGetter{answers: map[string]string{}}
	_, err := PublicIP(context.Background(), getter, []string{"a"})
	require.True(t, errors.Is(err, ErrNoConsensus))
}

func TestPublicIP_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("192.0.2.55"))
	}))
	defer srv.Close()
	getter := &HTTPGetter{Client: srv.Client(), Shutdown: util.NewShutdown()}
	ip, err := PublicIP(context.Background(), getter, []string{srv.URL + "/one", srv.URL + "/two"})
	require.NoError(t, err)
	require.Equal(t, "192.0.2.55", ip.String())
}

func TestFindFreeDNSPort_InOrder(t *testing.T) {
	q := &fakeQuerier{replies: map[string]*dns.Msg{
		"A": answer("www.imdb.com", "192.0.2.1"),
		"B": nxdomain("www.imdb.com"),
	}}
	free, err := FindFreeDNSPort(context.Background(), q, []string{"A", "B", "C"}, "www.imdb.com")
	require.NoError(t, err)
	require.Equal(t, "C", free)
	require.Equal(t, []string{"A", "B", "C"}, q.asked)
}

func TestFindFreeDNSPort_NoneFree(t *testing.T) {
	q := &fakeQuerier{replies: map[string]*dns.Msg{
		"A": answer("www.imdb.com", "192.0.2.1"),
	}}
	_, err := FindFreeDNSPort(context.Background(), q, []string{"A"}, "www.imdb.com")
	require.True(t, errors.Is(err, ErrNoFreeDNSPort))
}

func TestClassifyResolvers(t *testing.T) {
	q := &fakeQuerier{replies: map[string]*dns.Msg{
		"127.0.0.1": answer("localhost.loki", "10.1.0.1"),
		"10.0.0.5":  nxdomain("localhost.loki"),
	}}
	local := []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("10.0.0.5")}
	keep := ClassifyResolvers(context.Background(), q,
		[]string{"127.0.0.1", "8.8.8.8", "10.0.0.5"}, local, "", "localhost.loki")
	require.Equal(t, []string{"8.8.8.8", "10.0.0.5"}, keep)
	// remote resolvers are never queried
	require.NotContains(t, q.asked, "8.8.8.8")
}

func TestClassifyResolvers_SelfLoop(t *testing.T) {
	q := &fakeQuerier{}
	keep := ClassifyResolvers(context.Background(), q,
		[]string{"9.9.9.9", "127.3.2.1:53", "1.1.1.1"}, nil, "127.3.2.1", "localhost.loki")
	require.Equal(t, []string{"9.9.9.9", "1.1.1.1"}, keep)
}

func TestDNSClient_Lookup(t *testing.T) {
	addr := startDNS(t, map[string]string{"localhost.loki.": "10.200.0.1"})
	client := &DNSClient{}

	ips, err := Lookup(context.Background(), client, addr, "localhost.loki")
	require.NoError(t, err)
	require.Len(t, ips, 1)
	require.Equal(t, "10.200.0.1", ips[0].String())

	ips, err = Lookup(context.Background(), client, addr, "nothing.loki")
	require.NoError(t, err)
	require.Empty(t, ips)

	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	ip, ok := FindManagedDNS(context.Background(), &portQuerier{client, port},
		[]net.IP{net.ParseIP("192.0.2.200"), net.ParseIP(host)}, "localhost.loki")
	require.True(t, ok)
	require.Equal(t, host, ip.String())
}

// portQuerier redirects bare addresses to a test server port.
type portQuerier struct {
	q    Querier
	port string
}

func (p *portQuerier) Query(ctx context.Context, server, name string) (*dns.Msg, error) {
	if net.ParseIP(server).IsLoopback() {
		server = net.JoinHostPort(server, p.port)
	} else {
		return nil, errors.New("unreachable")
	}
	return p.q.Query(ctx, server, name)
}

func TestDNSClient_NoServer(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := pc.LocalAddr().String()
	require.NoError(t, pc.Close())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = (&DNSClient{}).Query(ctx, addr, "www.imdb.com")
	require.Error(t, err)
}

func TestSystemResolvers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resolv.conf")
	require.NoError(t, os.WriteFile(path, []byte(
		"# generated\nnameserver 127.0.0.53\nnameserver 9.9.9.9\nsearch example.org\n"), 0o644))
	servers, err := SystemResolvers(path)
	require.NoError(t, err)
	require.Equal(t, []string{"127.0.0.53", "9.9.9.9"}, servers)
}

func TestDetectOutbound(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	port := ln.Addr().(*net.TCPAddr).Port
	out, err := DetectOutbound(context.Background(), []string{"127.0.0.1"}, port)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", out.IP.String())
}

func TestDetectOutbound_Refused(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	_, err = DetectOutbound(context.Background(), []string{"127.0.0.1"}, port)
	require.Error(t, err)

	_, err = DetectOutbound(context.Background(), nil, port)
	require.True(t, errors.Is(err, ErrNoTargets))
}

func TestFetchBootstrap(t *testing.T) {
	payload := []byte{0x64, 0x00, 0xff, 0x65}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/empty" {
			return
		}
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	path, err := FetchBootstrap(context.Background(), srv.Client(), srv.URL+"/bootstrap.signed", nil, false)
	require.NoError(t, err)
	defer os.Remove(path)
	require.True(t, filepath.Ext(path) == ".lokinet_signed")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, payload, data)

	_, err = FetchBootstrap(context.Background(), srv.Client(), srv.URL+"/empty", nil, false)
	require.True(t, errors.Is(err, ErrEmptyBootstrap))
}

func TestCheckRPCPort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()
	addr := srv.Listener.Addr().(*net.TCPAddr)
	getter := &HTTPGetter{Client: srv.Client()}

	require.Equal(t, addr.Port+1, CheckRPCPort(context.Background(), getter, "127.0.0.1", addr.Port))

	srv.Close()
	require.Equal(t, addr.Port, CheckRPCPort(context.Background(), getter, "127.0.0.1", addr.Port))
}

func TestWaitForURL(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	getter := &HTTPGetter{Client: srv.Client()}

	require.NoError(t, WaitForURL(context.Background(), getter, srv.URL, 10*time.Millisecond))
	require.EqualValues(t, 3, atomic.LoadInt32(&hits))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WaitForURL(ctx, &fakeGetter{}, "http://unused", time.Hour)
	require.True(t, errors.Is(err, context.Canceled))
}

func TestBoundAddresses_Loopback(t *testing.T) {
	addrs, err := BoundAddresses()
	require.NoError(t, err)
	loopback := net.ParseIP("127.0.0.1")
	for _, ip := range addrs {
		require.NotNil(t, ip.To4())
		if ip.Equal(loopback) {
			name, err := InterfaceName(loopback)
			require.NoError(t, err)
			require.NotEmpty(t, name)
			return
		}
	}
	t.Skip("no IPv4 loopback address on this host")
}
