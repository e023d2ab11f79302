package prover

import (
	"errors"

	"golang.org/x/xerrors"
)

// ApiVersion selects proof engine behavior. It is fixed for the lifetime of
// a run and recorded in the cache marker so a reused cache directory cannot
// silently cross versions.
type ApiVersion uint

const (
	ApiV1_0_0 ApiVersion = iota
	ApiV1_1_0
	ApiV1_2_0
)

var ErrInvalidApiVersion = errors.New("invalid api version")

func ParseApiVersion(s string) (ApiVersion, error) {
	switch s {
	case "1.0.0":
		return ApiV1_0_0, nil
	case "1.1.0":
		return ApiV1_1_0, nil
	case "1.2.0":
		return ApiV1_2_0, nil
	default:
		return 0, xerrors.Errorf("%w: %q", ErrInvalidApiVersion, s)
	}
}

func (v ApiVersion) String() string {
	switch v {
	case ApiV1_0_0:
		return "1.0.0"
	case ApiV1_1_0:
		return "1.1.0"
	case ApiV1_2_0:
		return "1.2.0"
	default:
		return "unknown"
	}
}
