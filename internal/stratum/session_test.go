package stratum

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pdqminer/btcminer/internal/algorithm"
	"github.com/pdqminer/btcminer/internal/dispatch"
	"github.com/pdqminer/btcminer/internal/job"
	"github.com/pdqminer/btcminer/internal/ports"
)

// pipeConn is an in-memory io.ReadWriteCloser driven by the test: Feed
// queues bytes for the session to read, Written captures what the
// session wrote.
type pipeConn struct {
	mu      sync.Mutex
	toRead  *bytes.Buffer
	written bytes.Buffer
	closed  bool
}

func newPipeConn() *pipeConn {
	return &pipeConn{toRead: &bytes.Buffer{}}
}

func (p *pipeConn) Feed(lines ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, l := range lines {
		p.toRead.WriteString(l)
		p.toRead.WriteByte('\n')
	}
}

func (p *pipeConn) Read(b []byte) (int, error) {
	for {
		p.mu.Lock()
		if p.toRead.Len() > 0 {
			n, err := p.toRead.Read(b)
			p.mu.Unlock()
			return n, err
		}
		if p.closed {
			p.mu.Unlock()
			return 0, io.EOF
		}
		p.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
}

func (p *pipeConn) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

func (p *pipeConn) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *pipeConn) WrittenLines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	raw := strings.TrimRight(p.written.String(), "\n")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, "\n")
}

type fakeTransport struct {
	conn *pipeConn
}

func (f *fakeTransport) Connect(host string, port int) (io.ReadWriteCloser, error) {
	return f.conn, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(0, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func newTestSession(conn *pipeConn) (*Session, *dispatch.Dispatcher) {
	d := dispatch.New(1, 1024)
	creds := ports.Credentials{WorkerName: "alice.worker1", PoolPassword: "x", PoolHost: "pool.example", PoolPort: 3333}
	s := New(&fakeTransport{conn: conn}, newFakeClock(), creds, algorithm.SHA256d, d, "testminer/1.0")
	return s, d
}

func TestHandshakeSucceedsAndReachesAuthorized(t *testing.T) {
	conn := newPipeConn()
	s, _ := newTestSession(conn)

	conn.Feed(
		`{"id":1,"result":[[["mining.set_difficulty","deadbeef"],["mining.notify","deadbeef"]],"f000000f",4],"error":null}`,
		`{"id":2,"result":true,"error":null}`,
	)

	err := s.handshake()
	require.NoError(t, err)
	require.Equal(t, job.Authorized, s.State())
	require.Equal(t, []byte{0xf0, 0x00, 0x00, 0x0f}, s.extranonce1)
	require.Equal(t, 4, s.extranonce2Size)

	lines := conn.WrittenLines()
	require.Len(t, lines, 2)

	var sub Request
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &sub))
	require.Equal(t, MethodSubscribe, sub.Method)

	var auth Request
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &auth))
	require.Equal(t, MethodAuthorize, auth.Method)
	require.Equal(t, "alice.worker1", auth.Params[0])
}

func TestHandshakeSurfacesAuthRejection(t *testing.T) {
	conn := newPipeConn()
	s, _ := newTestSession(conn)

	conn.Feed(
		`{"id":1,"result":[[["mining.set_difficulty","deadbeef"]],"f000000f",4],"error":null}`,
		`{"id":2,"result":false,"error":null}`,
	)

	err := s.handshake()
	require.Error(t, err)
	require.True(t, isKind(err, "auth_rejected"))
}

func TestApplyNotifyInstallsJobOnDispatcherAndReachesReady(t *testing.T) {
	conn := newPipeConn()
	s, d := newTestSession(conn)
	s.extranonce1 = []byte{0xf0, 0x00, 0x00, 0x0f}
	s.extranonce2Size = 4

	req := &Request{
		Method: MethodNotify,
		Params: []interface{}{
			"job1",
			"1111111122222222333333334444444455555555666666667777777788888888",
			"01000000",
			"ffffffff",
			[]interface{}{},
			"20000000",
			"1d00ffff",
			"5f5e1000",
			true,
		},
	}
	np, err := ParseNotify(req)
	require.NoError(t, err)

	s.applyNotify(np)

	require.Equal(t, job.Ready, s.State())
	require.True(t, s.haveJob)
	require.Equal(t, "job1", s.sj.JobID)
	_ = d
}

func TestSubmitRequestShapeMatchesShareFields(t *testing.T) {
	req := SubmitRequest(100, "alice.worker1", "job1", 7, 4, 0x5f5e1000, 0xdeadbeef)

	require.Equal(t, MethodSubmit, req.Method)
	require.Equal(t, "job1", req.Params[1])
	require.Equal(t, "00000007", req.Params[2])
	require.Equal(t, "5f5e1000", req.Params[3])
	require.Equal(t, "deadbeef", req.Params[4])
}

func TestPendingSubmitIDTrackedUntilCleared(t *testing.T) {
	conn := newPipeConn()
	s, _ := newTestSession(conn)
	s.codec = NewCodec(conn)
	s.extranonce2Size = 4

	firstID := s.nextSubmitID
	req := SubmitRequest(firstID, s.creds.WorkerName, "job1", 1, s.extranonce2Size, 0x5f5e1000, 1)
	require.NoError(t, s.codec.WriteRequest(req))
	s.pending[firstID] = true

	require.True(t, s.isPendingSubmit(firstID))
	s.clearPendingSubmit(firstID)
	require.False(t, s.isPendingSubmit(firstID))
}

func TestHandleResponseCountsAcceptedAndRejectedSubmits(t *testing.T) {
	conn := newPipeConn()
	s, d := newTestSession(conn)
	s.pending[100] = true
	s.pending[101] = true

	s.handleResponse(&Response{ID: float64(100), Result: true})
	s.handleResponse(&Response{ID: float64(101), Result: false})

	stats := d.Stats()
	require.Equal(t, uint64(1), stats.SharesAccepted)
	require.Equal(t, uint64(1), stats.SharesRejected)
	require.False(t, s.isPendingSubmit(100))
	require.False(t, s.isPendingSubmit(101))
}

func TestHandleRequestAppliesSetDifficulty(t *testing.T) {
	conn := newPipeConn()
	s, _ := newTestSession(conn)

	s.handleRequest(&Request{Method: MethodSetDifficulty, Params: []interface{}{float64(512)}})

	require.Equal(t, float64(512), s.difficulty)
}

func isKind(err error, kind string) bool {
	return strings.Contains(err.Error(), kind)
}
