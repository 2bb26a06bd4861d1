package apperr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/keithlinneman/goals-api/internal/xerrors"
)

// From converts any raised value into an *Error. It is total: nil, panics
// with non-error values and foreign error types all produce a result.
func From(v any) *Error {
	switch x := v.(type) {
	case nil:
		return Unexpected(xerrors.New("nil error raised"))
	case *Error:
		return x
	case error:
		return fromError(x)
	case string:
		return Unexpected(xerrors.New(x))
	default:
		return Unexpected(xerrors.Newf("%v", x))
	}
}

func fromError(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}

	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return Wrap(err, http.StatusRequestEntityTooLarge, PayloadTooLarge(mbe.Limit).Message)
	}

	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		return Wrap(err, http.StatusBadRequest, fmt.Sprintf("invalid JSON body at offset %d", syn.Offset))
	}
	var typ *json.UnmarshalTypeError
	if errors.As(err, &typ) {
		return Wrap(err, http.StatusBadRequest, "invalid JSON body: unexpected "+typ.Value)
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return Wrap(err, http.StatusBadRequest, "invalid JSON body: unexpected end of input")
	}

	return Unexpected(err)
}

// ClientGone reports whether err, or the request context, says the client
// disconnected. Nothing should be written in that case.
func ClientGone(ctx context.Context, err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	return ctx != nil && errors.Is(ctx.Err(), context.Canceled)
}
