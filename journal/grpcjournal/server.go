package grpcjournal

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/consent/consent"
	"xdao.co/consent/journal"
)

// Server exposes a journal.Journal over the Journal gRPC service.
//
// Writes are authorized by envelope signature: a publish is accepted only
// when the recovered signer equals the identity whose log it appends to.
type Server struct {
	UnimplementedJournalServer
	Journal journal.Journal
}

func (s *Server) Publish(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if s == nil || s.Journal == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing journal")
	}
	raw := in.GetValue()
	env, err := journal.DecodeEnvelope(raw)
	if err != nil {
		return nil, mapErr(err)
	}
	if err := env.Verify(); err != nil {
		return nil, mapErr(err)
	}
	if err := s.Journal.Publish(ctx, env.Identity, env.Entries); err != nil {
		return nil, mapErr(err)
	}
	id, err := journal.BytesCID(raw)
	if err != nil {
		return nil, status.Error(codes.Internal, "cid computation failed")
	}
	return wrapperspb.String(id.String()), nil
}

func (s *Server) FetchAll(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Journal == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing journal")
	}
	addr, err := consent.CanonicalAddress(in.GetValue())
	if err != nil {
		return nil, mapErr(journal.ErrInvalidIdentity)
	}
	entries, err := s.Journal.FetchAll(ctx, addr)
	if err != nil {
		return nil, mapErr(err)
	}
	h, err := journal.NewHistory(addr, entries)
	if err != nil {
		return nil, status.Error(codes.Internal, "history encoding failed")
	}
	b, err := journal.EncodeHistory(h)
	if err != nil {
		return nil, status.Error(codes.Internal, "history encoding failed")
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Subscribe(in *wrapperspb.StringValue, stream Journal_SubscribeServer) error {
	if s == nil || s.Journal == nil {
		return status.Error(codes.FailedPrecondition, "missing journal")
	}
	addr, err := consent.CanonicalAddress(in.GetValue())
	if err != nil {
		return mapErr(journal.ErrInvalidIdentity)
	}
	sub, err := s.Journal.Subscribe(stream.Context(), addr)
	if err != nil {
		return mapErr(err)
	}
	defer sub.Close()

	// Empty first message acknowledges the feed is live. The client blocks on
	// it, so a publish issued after Subscribe returns cannot be missed.
	if err := stream.Send(wrapperspb.Bytes(nil)); err != nil {
		return err
	}

	for e := range sub.C() {
		b, err := json.Marshal(e)
		if err != nil {
			return status.Error(codes.Internal, "entry encoding failed")
		}
		if err := stream.Send(wrapperspb.Bytes(b)); err != nil {
			// Client went away; the deferred Close releases the feed.
			return err
		}
	}
	return mapErr(sub.Err())
}
