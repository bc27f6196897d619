package quotifygrpc

import (
	"context"
	"errors"
	"strconv"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/blockberries/quotify"
	"github.com/blockberries/quotify/types"
)

// Trailer keys describing a failed call.
const (
	keyClass   = "quotify-error-class"
	keyCause   = "quotify-error-cause"
	keyKind    = "quotify-tx-kind"
	keyHash    = "quotify-tx-hash"
	keyAccount = "quotify-account"
)

// Error classes for the typed errors.
const (
	classRejected   = "rejected"
	classProbe      = "probe"
	classFetch      = "fetch"
	classGeneration = "generation"
)

type wireError struct {
	tag  string
	err  error
	code codes.Code
}

// wireErrors lists the sentinels that survive the transport, most
// specific first.
var wireErrors = []wireError{
	{"not_bound", quotify.ErrNotBound, codes.FailedPrecondition},
	{"tx_in_flight", quotify.ErrTxInFlight, codes.Aborted},
	{"empty_quote", quotify.ErrEmptyQuote, codes.InvalidArgument},
	{"holder_missing", quotify.ErrHolderMissing, codes.FailedPrecondition},
	{"holder_exists", quotify.ErrHolderExists, codes.AlreadyExists},
	{"unknown_kind", quotify.ErrUnknownKind, codes.InvalidArgument},
	{"nothing_staged", quotify.ErrNothingStaged, codes.FailedPrecondition},
	{"no_generator", quotify.ErrNoGenerator, codes.Unimplemented},
	{"probing", quotify.ErrProbing, codes.Unavailable},
	{"holder_unknown", quotify.ErrHolderUnknown, codes.FailedPrecondition},
	{"generation_discarded", quotify.ErrGenerationDiscarded, codes.Canceled},
	{"no_events", quotify.ErrNoEvents, codes.NotFound},
	{"resource_not_found", quotify.ErrResourceNotFound, codes.NotFound},
	{"tx_aborted", quotify.ErrTxAborted, codes.Aborted},
	{"deadline", context.DeadlineExceeded, codes.DeadlineExceeded},
	{"canceled", context.Canceled, codes.Canceled},
}

func causeOf(err error) *wireError {
	for i := range wireErrors {
		if errors.Is(err, wireErrors[i].err) {
			return &wireErrors[i]
		}
	}
	return nil
}

func causeByTag(tag string) *wireError {
	for i := range wireErrors {
		if wireErrors[i].tag == tag {
			return &wireErrors[i]
		}
	}
	return nil
}

// remoteError carries a server-side message and, when known, the
// sentinel it wrapped.
type remoteError struct {
	msg   string
	cause error
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.cause }

// encodeError converts err into a status error plus trailer metadata
// from which decodeError can rebuild it.
func encodeError(err error) (metadata.MD, error) {
	md := metadata.MD{}
	cause := causeOf(err)
	if cause != nil {
		md.Set(keyCause, cause.tag)
	}

	var (
		rej   *quotify.RejectedError
		probe *quotify.ProbeError
		fetch *quotify.EventFetchError
		gen   *quotify.GenerationError
	)
	switch {
	case errors.As(err, &rej):
		md.Set(keyClass, classRejected)
		md.Set(keyKind, strconv.Itoa(int(rej.Kind)))
		md.Set(keyHash, string(rej.Hash))
		return md, status.Error(codes.Aborted, rej.Reason)
	case errors.As(err, &probe):
		md.Set(keyClass, classProbe)
		md.Set(keyAccount, probe.Account.String())
		return md, status.Error(codes.Unavailable, probe.Err.Error())
	case errors.As(err, &fetch):
		md.Set(keyClass, classFetch)
		md.Set(keyAccount, fetch.Account.String())
		return md, status.Error(codes.Unavailable, fetch.Err.Error())
	case errors.As(err, &gen):
		md.Set(keyClass, classGeneration)
		code := codes.Unavailable
		if cause != nil && cause.err == quotify.ErrNoGenerator {
			code = cause.code
		}
		return md, status.Error(code, gen.Err.Error())
	case cause != nil:
		return md, status.Error(cause.code, err.Error())
	}
	return md, status.Error(codes.Unknown, err.Error())
}

// decodeError rebuilds the typed error described by a status error
// and its trailer. Errors without quotify trailers pass through.
func decodeError(err error, md metadata.MD) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	var cause *wireError
	if tag := first(md, keyCause); tag != "" {
		cause = causeByTag(tag)
	}
	msg := st.Message()
	inner := &remoteError{msg: msg}
	if cause != nil {
		inner.cause = cause.err
	}

	switch first(md, keyClass) {
	case classRejected:
		kind, _ := strconv.Atoi(first(md, keyKind))
		return &quotify.RejectedError{
			Kind:   types.TxKind(kind),
			Hash:   types.TxHash(first(md, keyHash)),
			Reason: msg,
			Err:    inner,
		}
	case classProbe:
		return &quotify.ProbeError{Account: types.Account(first(md, keyAccount)), Err: inner}
	case classFetch:
		return &quotify.EventFetchError{Account: types.Account(first(md, keyAccount)), Err: inner}
	case classGeneration:
		return &quotify.GenerationError{Err: inner}
	}
	if cause != nil {
		if msg == cause.err.Error() {
			return cause.err
		}
		return inner
	}
	return err
}

func first(md metadata.MD, key string) string {
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}
