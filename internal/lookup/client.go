package lookup

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/editcheck/internal/types"
)

// APIKeyHeader carries the client API key in gRPC metadata.
const APIKeyHeader = "x-api-key"

// DefaultTimeout bounds a single remote lookup.
const DefaultTimeout = 5 * time.Second

// Client asks a remote lookup server.
type Client struct {
	conn    *grpc.ClientConn
	apiKey  string
	timeout time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

type clientOptions struct {
	apiKey   string
	timeout  time.Duration
	dialOpts []grpc.DialOption
}

// WithAPIKey sets the key sent with every call.
func WithAPIKey(key string) ClientOption {
	return func(o *clientOptions) { o.apiKey = key }
}

// WithTimeout sets the per-call deadline.
func WithTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) { o.timeout = d }
}

// WithDialOptions appends gRPC dial options. Without it the connection uses
// insecure transport credentials.
func WithDialOptions(opts ...grpc.DialOption) ClientOption {
	return func(o *clientOptions) { o.dialOpts = append(o.dialOpts, opts...) }
}

// Dial creates a client for target. The connection is established lazily.
func Dial(target string, opts ...ClientOption) (*Client, error) {
	o := clientOptions{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	dialOpts := o.dialOpts
	if len(dialOpts) == 0 {
		dialOpts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create lookup client for %s: %w", target, err)
	}
	return &Client{conn: conn, apiKey: o.apiKey, timeout: o.timeout}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Exists implements Service. Transport failures wrap types.ErrConnectivity;
// a rejected query surfaces as ErrInvalidQuery.
func (c *Client) Exists(ctx context.Context, q Query) (bool, error) {
	req, err := EncodeQuery(q)
	if err != nil {
		return false, err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if c.apiKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, APIKeyHeader, c.apiKey)
	}

	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, ExistsMethod, req, resp); err != nil {
		return false, classifyRPCError(err)
	}
	return DecodeAnswer(resp)
}

func classifyRPCError(err error) error {
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Canceled:
		return context.Canceled
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrInvalidQuery, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted,
		codes.Unauthenticated, codes.PermissionDenied, codes.Internal, codes.Unknown:
		return fmt.Errorf("%w: lookup service: %s", types.ErrConnectivity, st.Message())
	default:
		return fmt.Errorf("lookup service: %w", err)
	}
}
