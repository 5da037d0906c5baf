package release

import "errors"

// Stage errors. Every failure surfaced by the pipeline wraps exactly one of them
// so the final diagnostic can name the stage that aborted the run.
var (
	// ErrResolution is returned when the newest version cannot be determined.
	ErrResolution = errors.New("resolution error")
	// ErrAcquisition is returned when the image or an auxiliary file cannot be obtained.
	ErrAcquisition = errors.New("acquisition error")
	// ErrIntegrity is returned on a missing or mismatching checksum.
	ErrIntegrity = errors.New("integrity error")
	// ErrSignature is returned when the signing key or the signature cannot be verified.
	ErrSignature = errors.New("signature error")
	// ErrPublication is returned when the image cannot be moved or cached.
	ErrPublication = errors.New("publication error")
	// ErrEnumeration is returned when removable drives cannot be listed or described.
	ErrEnumeration = errors.New("enumeration error")
	// ErrUnmount is returned when the target drive cannot be unmounted.
	ErrUnmount = errors.New("unmount error")
	// ErrWrite is returned when the image cannot be written to the target drive.
	ErrWrite = errors.New("write error")
)

//nolint:gochecknoglobals // Read-only lookup table.
var stageErrors = []error{
	ErrResolution,
	ErrAcquisition,
	ErrIntegrity,
	ErrSignature,
	ErrPublication,
	ErrEnumeration,
	ErrUnmount,
	ErrWrite,
}

// StageOf returns the stage error wrapped by err, or nil if there is none.
func StageOf(err error) error {
	for _, stageErr := range stageErrors {
		if errors.Is(err, stageErr) {
			return stageErr
		}
	}

	return nil
}
