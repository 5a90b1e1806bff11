package api

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/editcheck/internal/core/config"
	"github.com/solatis/editcheck/internal/core/logging"
	"github.com/solatis/editcheck/internal/lookup"
	"github.com/solatis/editcheck/internal/types"
)

type stubBackend struct {
	exists bool
	err    error
	last   lookup.Query
}

func (s *stubBackend) Exists(_ context.Context, q lookup.Query) (bool, error) {
	s.last = q
	return s.exists, s.err
}

func newService(t *testing.T, backend lookup.Service) *LookupService {
	t.Helper()
	cfg := config.DefaultConfig().LookupAPI
	svc, err := NewLookupService(backend, &cfg, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func respondentRequest(t *testing.T) *structpb.Struct {
	t.Helper()
	req, err := lookup.EncodeQuery(lookup.Query{Kind: lookup.KindRespondent, Year: 2017, Keys: map[string]string{
		lookup.KeyAgencyCode: "9", lookup.KeyRespondentID: "0123456789",
	}})
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func TestLookupService_Exists(t *testing.T) {
	backend := &stubBackend{exists: true}
	svc := newService(t, backend)

	resp, err := svc.Exists(context.Background(), respondentRequest(t))
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if ok, err := lookup.DecodeAnswer(resp); err != nil || !ok {
		t.Errorf("answer = %v, %v, want true", ok, err)
	}
	if backend.last.Keys[lookup.KeyRespondentID] != "0123456789" {
		t.Errorf("backend saw %+v", backend.last)
	}
}

func TestLookupService_ErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{name: "connectivity", err: fmt.Errorf("%w: db down", types.ErrConnectivity), want: codes.Unavailable},
		{name: "deadline", err: context.DeadlineExceeded, want: codes.DeadlineExceeded},
		{name: "canceled", err: context.Canceled, want: codes.Canceled},
		{name: "other", err: errors.New("boom"), want: codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService(t, &stubBackend{err: tt.err})
			_, err := svc.Exists(context.Background(), respondentRequest(t))
			if got := status.Code(err); got != tt.want {
				t.Errorf("code = %v, want %v", got, tt.want)
			}
		})
	}

	svc := newService(t, &stubBackend{})
	bad, _ := structpb.NewStruct(map[string]any{"kind": "respondent", "year": 2017})
	if _, err := svc.Exists(context.Background(), bad); status.Code(err) != codes.InvalidArgument {
		t.Errorf("invalid request code = %v, want InvalidArgument", status.Code(err))
	}
}

func TestNewLookupService_RequiresDependencies(t *testing.T) {
	cfg := config.DefaultConfig().LookupAPI
	if _, err := NewLookupService(nil, &cfg, logging.Discard()); err == nil {
		t.Error("nil backend accepted")
	}
	if _, err := NewLookupService(&stubBackend{}, nil, logging.Discard()); err == nil {
		t.Error("nil cfg accepted")
	}
	if _, err := NewLookupService(&stubBackend{}, &cfg, nil); err == nil {
		t.Error("nil logger accepted")
	}
}
