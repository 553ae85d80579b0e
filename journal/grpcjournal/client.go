package grpcjournal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/consent/consent"
	"xdao.co/consent/journal"
	"xdao.co/consent/keys"
)

// Client implements journal.Journal over the Journal gRPC service.
//
// The signer seals publish envelopes; the client can therefore only write to
// the signer's own journal, while reads and subscriptions are unrestricted.
type Client struct {
	cc     *grpc.ClientConn
	client JournalClient
	signer keys.Signer

	// Timeout applies per unary RPC when non-zero. Subscriptions ignore it.
	Timeout time.Duration
}

var _ journal.Journal = (*Client)(nil)

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int
}

func Dial(target string, signer keys.Signer, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}

	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cc, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc, client: NewJournalClient(cc), signer: signer, Timeout: 0}, nil
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) Publish(ctx context.Context, identity string, entries []consent.Entry) error {
	if c == nil || c.client == nil {
		return errors.New("grpcjournal: client is not connected")
	}
	if c.signer == nil {
		return errors.New("grpcjournal: publish requires a signer")
	}
	addr, err := consent.CanonicalAddress(identity)
	if err != nil {
		return journal.ErrInvalidIdentity
	}
	if !strings.EqualFold(addr, c.signer.Address()) {
		return journal.ErrNotOwner
	}
	if len(entries) == 0 {
		return nil
	}

	env, err := journal.Seal(c.signer, entries, time.Now().UnixMilli())
	if err != nil {
		return err
	}
	raw, err := journal.EncodeEnvelope(env)
	if err != nil {
		return err
	}
	want, err := journal.BytesCID(raw)
	if err != nil {
		return err
	}

	rctx, cancel := c.ctx(ctx)
	defer cancel()
	reply, err := c.client.Publish(rctx, wrapperspb.Bytes(raw))
	if err != nil {
		return mapRPC(err)
	}
	got, err := cid.Decode(reply.GetValue())
	if err != nil || !got.Defined() || got.String() != want.String() {
		return journal.ErrIntegrity
	}
	return nil
}

func (c *Client) FetchAll(ctx context.Context, identity string) ([]consent.Entry, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("grpcjournal: client is not connected")
	}
	addr, err := consent.CanonicalAddress(identity)
	if err != nil {
		return nil, journal.ErrInvalidIdentity
	}

	rctx, cancel := c.ctx(ctx)
	defer cancel()
	reply, err := c.client.FetchAll(rctx, wrapperspb.String(addr))
	if err != nil {
		return nil, mapRPC(err)
	}
	h, err := journal.DecodeHistory(reply.GetValue())
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(h.Identity, addr) {
		return nil, journal.ErrIntegrity
	}
	if err := h.CheckIntegrity(); err != nil {
		return nil, err
	}
	return h.Entries, nil
}

func (c *Client) Subscribe(ctx context.Context, identity string) (journal.Subscription, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("grpcjournal: client is not connected")
	}
	addr, err := consent.CanonicalAddress(identity)
	if err != nil {
		return nil, journal.ErrInvalidIdentity
	}

	if ctx == nil {
		ctx = context.Background()
	}
	sctx, cancel := context.WithCancel(ctx)
	stream, err := c.client.Subscribe(sctx, wrapperspb.String(addr))
	if err != nil {
		cancel()
		return nil, mapRPC(err)
	}
	// The server acknowledges a live feed with an empty first message.
	// Waiting for it here makes Subscribe-then-Publish race free.
	ack, err := stream.Recv()
	if err != nil {
		cancel()
		return nil, mapRPC(err)
	}
	if len(ack.GetValue()) != 0 {
		cancel()
		return nil, journal.ErrIntegrity
	}
	sub := &subscription{
		stream: stream,
		cancel: cancel,
		ch:     make(chan consent.Entry),
		done:   make(chan struct{}),
	}
	go sub.recvLoop()
	return sub, nil
}

func (c *Client) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if c.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.Timeout)
}

// subscription adapts a server stream to journal.Subscription. Close cancels
// the stream context, which unblocks Recv on the transport deterministically.
type subscription struct {
	stream Journal_SubscribeClient
	cancel context.CancelFunc
	ch     chan consent.Entry
	done   chan struct{}

	mu  sync.Mutex
	err error

	closeOnce sync.Once
}

var _ journal.Subscription = (*subscription)(nil)

func (s *subscription) C() <-chan consent.Entry { return s.ch }

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *subscription) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.cancel()
	})
	return nil
}

func (s *subscription) recvLoop() {
	defer close(s.ch)
	defer s.Close()
	for {
		m, err := s.stream.Recv()
		if err != nil {
			s.setErr(err)
			return
		}
		var e consent.Entry
		if err := json.Unmarshal(m.GetValue(), &e); err != nil {
			s.setErr(journal.ErrIntegrity)
			return
		}
		select {
		case s.ch <- e:
		case <-s.done:
			return
		}
	}
}

func (s *subscription) setErr(err error) {
	if err == nil || errors.Is(err, io.EOF) {
		return
	}
	if st, ok := status.FromError(err); ok && st.Code() == codes.Canceled {
		// A cancelled stream is a clean close, not a failure.
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = mapRPC(err)
	}
}
