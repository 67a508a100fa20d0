package stratum

import (
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pdqminer/btcminer/internal/algorithm"
	"github.com/pdqminer/btcminer/internal/dispatch"
	"github.com/pdqminer/btcminer/internal/job"
	"github.com/pdqminer/btcminer/internal/minererr"
	"github.com/pdqminer/btcminer/internal/ports"
)

const (
	handshakeTimeout = 30 * time.Second
	pollInterval     = 100 * time.Millisecond
	submitIDBase     = 100
)

// Session drives the Stratum V1 connection lifecycle: connect,
// subscribe, authorize, then ingest notify/set_difficulty and publish
// mining jobs to a Dispatcher, draining its share queue back out as
// submits.
type Session struct {
	transport  ports.Transport
	clock      ports.Clock
	creds      ports.Credentials
	alg        algorithm.Algorithm
	dispatcher *dispatch.Dispatcher
	userAgent  string

	mu    sync.Mutex
	state job.SessionState

	conn  io.ReadWriteCloser
	codec *Codec

	extranonce1     []byte
	extranonce2Size int
	difficulty      float64
	sj              job.StratumJob
	haveJob         bool

	nextSubmitID int
	pending      map[int]bool

	stopCh chan struct{}
}

// New creates a Session in the Disconnected state.
func New(transport ports.Transport, clock ports.Clock, creds ports.Credentials, alg algorithm.Algorithm, dispatcher *dispatch.Dispatcher, userAgent string) *Session {
	return &Session{
		transport:    transport,
		clock:        clock,
		creds:        creds,
		alg:          alg,
		dispatcher:   dispatcher,
		userAgent:    userAgent,
		state:        job.Disconnected,
		difficulty:   1,
		nextSubmitID: submitIDBase,
		pending:      make(map[int]bool),
		stopCh:       make(chan struct{}),
	}
}

// State returns the current SessionState.
func (s *Session) State() job.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st job.SessionState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	logrus.WithField("state", st.String()).Info("stratum: state transition")
}

// Run connects, performs the subscribe/authorize handshake, then reads
// notify/set_difficulty/submit-responses until the connection fails or
// Stop is called. It blocks for the session's lifetime.
func (s *Session) Run() error {
	s.setState(job.Connecting)

	conn, err := s.transport.Connect(s.creds.PoolHost, s.creds.PoolPort)
	if err != nil {
		s.setState(job.Disconnected)
		return minererr.Wrap(minererr.Transport, "connect", err)
	}
	s.conn = conn
	s.codec = NewCodec(conn)
	s.setState(job.Connected)

	if err := s.handshake(); err != nil {
		s.conn.Close()
		s.setState(job.Disconnected)
		return err
	}

	return s.readLoop()
}

// Stop closes the underlying connection, unblocking Run.
func (s *Session) Stop() {
	close(s.stopCh)
	if s.conn != nil {
		s.conn.Close()
	}
}

func (s *Session) handshake() error {
	s.setState(job.Subscribing)
	if err := s.codec.WriteRequest(SubscribeRequest(s.userAgent)); err != nil {
		return err
	}
	res, err := s.awaitResponse(handshakeTimeout)
	if err != nil {
		return err
	}
	sub, err := ParseSubscribeResult(res)
	if err != nil {
		return err
	}
	s.extranonce1 = sub.Extranonce1
	s.extranonce2Size = sub.Extranonce2Size
	s.setState(job.Subscribed)

	s.setState(job.Authorizing)
	if err := s.codec.WriteRequest(AuthorizeRequest(s.creds.WorkerName, s.creds.PoolPassword)); err != nil {
		return err
	}
	res, err = s.awaitResponse(handshakeTimeout)
	if err != nil {
		return err
	}
	if ok, err := ParseAuthorizeResult(res); err != nil || !ok {
		if err == nil {
			err = minererr.New(minererr.AuthRejected, "authorize result was false")
		}
		return err
	}
	s.setState(job.Authorized)

	return nil
}

// awaitResponse reads lines until a non-nil Response is decoded or the
// deadline elapses. Requests arriving in the meantime (set_difficulty,
// notify) are handled inline so a pool that interleaves notifications
// with handshake replies still progresses.
func (s *Session) awaitResponse(timeout time.Duration) (*Response, error) {
	deadline := s.clock.Now().Add(timeout)
	for {
		if s.clock.Now().After(deadline) {
			return nil, minererr.New(minererr.Timeout, "handshake deadline exceeded")
		}
		line, err := s.codec.ReadLine()
		if err != nil {
			return nil, err
		}
		req, res, err := DecodeLine(line)
		if err != nil {
			logrus.WithError(err).Warn("stratum: discarding malformed line")
			continue
		}
		if res != nil {
			return res, nil
		}
		s.handleRequest(req)
	}
}

// readLoop is the steady-state message pump after the handshake.
func (s *Session) readLoop() error {
	for {
		select {
		case <-s.stopCh:
			return nil
		default:
		}

		line, err := s.codec.ReadLine()
		if err != nil {
			s.setState(job.Disconnected)
			return err
		}

		req, res, err := DecodeLine(line)
		if err != nil {
			logrus.WithError(err).Warn("stratum: discarding malformed line")
			continue
		}

		if req != nil {
			s.handleRequest(req)
		} else {
			s.handleResponse(res)
		}

		s.drainShares()
	}
}

func (s *Session) handleRequest(req *Request) {
	switch req.Method {
	case MethodSetDifficulty:
		d, err := ParseSetDifficulty(req)
		if err != nil {
			logrus.WithError(err).Warn("stratum: malformed set_difficulty")
			return
		}
		s.mu.Lock()
		s.difficulty = d
		s.mu.Unlock()
		logrus.WithField("difficulty", d).Info("stratum: difficulty updated")

	case MethodNotify:
		np, err := ParseNotify(req)
		if err != nil {
			logrus.WithError(err).Warn("stratum: malformed notify")
			return
		}
		s.applyNotify(np)

	default:
		logrus.WithField("method", req.Method).Debug("stratum: ignoring unsupported method")
	}
}

func (s *Session) applyNotify(np NotifyParams) {
	s.mu.Lock()
	sj := job.StratumJob{
		JobID:           np.JobID,
		PrevHash:        np.PrevHash,
		Coinb1:          np.Coinb1,
		Coinb2:          np.Coinb2,
		MerkleBranches:  np.MerkleBranches,
		Version:         np.Version,
		NBits:           np.NBits,
		NTime:           np.NTime,
		CleanJobs:       np.CleanJobs,
		Extranonce1:     s.extranonce1,
		Extranonce2Size: s.extranonce2Size,
		Extranonce2:     0,
		Difficulty:      s.difficulty,
	}
	s.sj = sj
	wasReady := s.haveJob
	s.haveJob = true
	s.mu.Unlock()

	s.dispatcher.SetJob(sj, s.alg, np.CleanJobs)

	if !wasReady {
		s.setState(job.Ready)
	}
}

func (s *Session) handleResponse(res *Response) {
	id, ok := idAsInt(res.ID)
	if !ok {
		return
	}
	if !s.isPendingSubmit(id) {
		return
	}
	s.clearPendingSubmit(id)

	accepted, _ := res.Result.(bool)
	if res.Error != nil || !accepted {
		s.dispatcher.NoteRejected()
		return
	}
	s.dispatcher.NoteAccepted()
}

func (s *Session) drainShares() {
	for s.dispatcher.HasShare() {
		share, ok := s.dispatcher.TakeShare()
		if !ok {
			return
		}

		s.mu.Lock()
		id := s.nextSubmitID
		s.nextSubmitID++
		s.pending[id] = true
		extranonce2Size := s.extranonce2Size
		s.mu.Unlock()

		req := SubmitRequest(id, s.creds.WorkerName, share.JobID, share.Extranonce2, extranonce2Size, share.NTime, share.Nonce)
		if err := s.codec.WriteRequest(req); err != nil {
			logrus.WithError(err).Error("stratum: failed to submit share")
		}
	}
}

func (s *Session) isPendingSubmit(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[id]
}

func (s *Session) clearPendingSubmit(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
}

func idAsInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}
