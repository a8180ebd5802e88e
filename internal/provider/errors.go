package provider

import "errors"

// ErrProviderUnavailable is returned by providers that cannot answer right
// now. Callers count the contribution as zero.
var ErrProviderUnavailable = errors.New("provider: unavailable")
