package producer

import (
	"github.com/cuemby/burrow/pkg/blob"
	"github.com/cuemby/burrow/pkg/version"
)

// Status records the outcome of one cycle phase, or of the cycle itself.
type Status struct {
	Version version.Version
	Success bool
	Err     error
}

func statusSuccess(v version.Version) Status {
	return Status{Version: v, Success: true}
}

func statusFail(v version.Version, err error) Status {
	return Status{Version: v, Err: err}
}

func statusFor(v version.Version, err error) Status {
	if err != nil {
		return statusFail(v, err)
	}
	return statusSuccess(v)
}

// ArtifactStatus records one blob publication.
type ArtifactStatus struct {
	Kind    blob.Kind
	From    version.Version
	To      version.Version
	Size    int64
	Success bool
	Err     error
}

func artifactStatus(b blob.Blob, err error) ArtifactStatus {
	return ArtifactStatus{
		Kind:    b.Kind(),
		From:    b.FromVersion(),
		To:      b.ToVersion(),
		Size:    b.Size(),
		Success: err == nil,
		Err:     err,
	}
}

// RestoreStatus records the outcome of a restore.
type RestoreStatus struct {
	Desired version.Version
	Reached version.Version
	Success bool
	Err     error
}
