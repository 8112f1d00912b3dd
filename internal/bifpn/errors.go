package bifpn

import "errors"

// Sentinel errors returned by constructors and forward passes.
// Callers match them with errors.Is; the returned errors carry context.
var (
	// ErrConfig reports an invalid model or unit configuration.
	ErrConfig = errors.New("bifpn: invalid configuration")

	// ErrInputCount reports a fusion call whose input count differs from
	// the number of learned weights, or that passes a nil input.
	ErrInputCount = errors.New("bifpn: input count does not match fusion weights")

	// ErrPyramidLevels reports a pyramid that does not have exactly five
	// usable levels or whose levels do not halve in resolution.
	ErrPyramidLevels = errors.New("bifpn: invalid pyramid levels")

	// ErrChannels reports a channel count that differs from the expected one.
	ErrChannels = errors.New("bifpn: channel mismatch")

	// ErrSpatialMismatch reports feature maps that must share batch, height
	// and width but do not.
	ErrSpatialMismatch = errors.New("bifpn: spatial size mismatch")

	// ErrRank reports a feature map that is not 4-D [N,H,W,C].
	ErrRank = errors.New("bifpn: feature map must be 4-D [N,H,W,C]")
)
