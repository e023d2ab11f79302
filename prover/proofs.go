package prover

import (
	"errors"

	"github.com/filecoin-project/go-state-types/abi"
	"golang.org/x/xerrors"
)

var ErrInvalidSize = errors.New("unsupported sector size")

// SealProofType maps a sector size and api version onto a registered seal
// proof. Sizes outside the supported classes fail here, before any phase
// runs.
func SealProofType(ssize abi.SectorSize, ver ApiVersion) (abi.RegisteredSealProof, error) {
	v1 := ver == ApiV1_0_0

	switch ssize {
	case 2 << 10:
		if v1 {
			return abi.RegisteredSealProof_StackedDrg2KiBV1, nil
		}
		return abi.RegisteredSealProof_StackedDrg2KiBV1_1, nil
	case 8 << 20:
		if v1 {
			return abi.RegisteredSealProof_StackedDrg8MiBV1, nil
		}
		return abi.RegisteredSealProof_StackedDrg8MiBV1_1, nil
	case 512 << 20:
		if v1 {
			return abi.RegisteredSealProof_StackedDrg512MiBV1, nil
		}
		return abi.RegisteredSealProof_StackedDrg512MiBV1_1, nil
	case 32 << 30:
		if v1 {
			return abi.RegisteredSealProof_StackedDrg32GiBV1, nil
		}
		return abi.RegisteredSealProof_StackedDrg32GiBV1_1, nil
	case 64 << 30:
		if v1 {
			return abi.RegisteredSealProof_StackedDrg64GiBV1, nil
		}
		return abi.RegisteredSealProof_StackedDrg64GiBV1_1, nil
	default:
		return 0, xerrors.Errorf("%w: %d bytes", ErrInvalidSize, ssize)
	}
}
