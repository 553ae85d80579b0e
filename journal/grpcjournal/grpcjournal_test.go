package grpcjournal

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/consent/consent"
	"xdao.co/consent/journal"
	"xdao.co/consent/journal/memjournal"
	"xdao.co/consent/journal/testkit"
	"xdao.co/consent/keys"
)

const peerAddr = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func newBufconnClient(t *testing.T, signer keys.Signer) *Client {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	RegisterJournalServer(srv, &Server{Journal: memjournal.New()})

	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	cc := dialBufconn(t, lis)
	return &Client{cc: cc, client: NewJournalClient(cc), signer: signer, Timeout: 5 * time.Second}
}

func dialBufconn(t *testing.T, lis *bufconn.Listener) *grpc.ClientConn {
	t.Helper()
	dialer := func(ctx context.Context, s string) (net.Conn, error) { return lis.Dial() }
	cc, err := grpc.DialContext(
		context.Background(),
		"bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("DialContext: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close() })
	return cc
}

func TestGRPCJournal_MemJournal_RoundTrip(t *testing.T) {
	ctx := context.Background()
	signer := testkit.SignerA(t)
	client := newBufconnClient(t, signer)
	identity := signer.Address()

	sub, err := client.Subscribe(ctx, identity)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	want := []consent.Entry{
		consent.AllowEntry(peerAddr),
		consent.DenyEntry(peerAddr),
	}
	if err := client.Publish(ctx, identity, want); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got, err := client.FetchAll(ctx, identity)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("history length: got %d want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %d: got %+v want %+v", i, got[i], want[i])
		}
	}

	for i := range want {
		select {
		case e, ok := <-sub.C():
			if !ok {
				t.Fatalf("feed closed early (err=%v)", sub.Err())
			}
			if e != want[i] {
				t.Fatalf("delivery %d: got %+v want %+v", i, e, want[i])
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for delivery %d", i)
		}
	}
}

func TestGRPCJournal_PublishRejectsForeignIdentity(t *testing.T) {
	ctx := context.Background()
	client := newBufconnClient(t, testkit.SignerA(t))
	other := testkit.SignerB(t).Address()

	err := client.Publish(ctx, other, []consent.Entry{consent.AllowEntry(peerAddr)})
	if !journal.IsNotOwner(err) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}

func TestGRPCJournal_ServerRejectsForgedEnvelope(t *testing.T) {
	ctx := context.Background()
	client := newBufconnClient(t, testkit.SignerA(t))

	// Sealed by B, but claims A's identity. The signature recovers to B, so
	// the server must refuse to append to A's journal.
	env, err := journal.Seal(testkit.SignerB(t), []consent.Entry{consent.AllowEntry(peerAddr)}, time.Now().UnixMilli())
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	env.Identity = testkit.SignerA(t).Address()
	raw, err := journal.EncodeEnvelope(env)
	if err != nil {
		t.Fatalf("EncodeEnvelope: %v", err)
	}

	_, err = client.client.Publish(ctx, wrapperspb.Bytes(raw))
	if !journal.IsNotOwner(mapRPC(err)) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	got, err := client.FetchAll(ctx, env.Identity)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("forged publish must not append, got %d entries", len(got))
	}
}

func TestGRPCJournal_ServerRejectsGarbageEnvelope(t *testing.T) {
	ctx := context.Background()
	client := newBufconnClient(t, testkit.SignerA(t))

	_, err := client.client.Publish(ctx, wrapperspb.Bytes([]byte("{not json")))
	if !errors.Is(mapRPC(err), journal.ErrBadEnvelope) {
		t.Fatalf("expected ErrBadEnvelope, got %v", err)
	}
}

func TestSubscribeToleratesNilContext(t *testing.T) {
	signer := testkit.SignerA(t)
	client := newBufconnClient(t, signer)

	// Publish and FetchAll already tolerate a nil context; Subscribe must too.
	sub, err := client.Subscribe(nil, signer.Address())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case _, ok := <-sub.C():
		if ok {
			t.Fatalf("closed subscription must not deliver")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("feed channel must close after Close")
	}
}

// routedJournal fans publishes out to the client owning each identity so the
// conformance suite, which writes under two identities, can run against the
// signer-bound gRPC client.
type routedJournal struct {
	byIdentity map[string]*Client
	reader     *Client
}

func (r *routedJournal) Publish(ctx context.Context, identity string, entries []consent.Entry) error {
	if c, ok := r.byIdentity[strings.ToLower(identity)]; ok {
		return c.Publish(ctx, identity, entries)
	}
	return r.reader.Publish(ctx, identity, entries)
}

func (r *routedJournal) FetchAll(ctx context.Context, identity string) ([]consent.Entry, error) {
	return r.reader.FetchAll(ctx, identity)
}

func (r *routedJournal) Subscribe(ctx context.Context, identity string) (journal.Subscription, error) {
	return r.reader.Subscribe(ctx, identity)
}

func TestGRPCJournal_Conformance(t *testing.T) {
	testkit.RunJournalConformance(t, func(t *testing.T) journal.Journal {
		lis := bufconn.Listen(1024 * 1024)
		srv := grpc.NewServer()
		RegisterJournalServer(srv, &Server{Journal: memjournal.New()})

		go func() {
			_ = srv.Serve(lis)
		}()
		t.Cleanup(srv.Stop)

		cc := dialBufconn(t, lis)
		signerA := testkit.SignerA(t)
		signerB := testkit.SignerB(t)
		clientA := &Client{cc: cc, client: NewJournalClient(cc), signer: signerA, Timeout: 5 * time.Second}
		clientB := &Client{cc: cc, client: NewJournalClient(cc), signer: signerB, Timeout: 5 * time.Second}
		return &routedJournal{
			byIdentity: map[string]*Client{
				strings.ToLower(signerA.Address()): clientA,
				strings.ToLower(signerB.Address()): clientB,
			},
			reader: clientA,
		}
	})
}
