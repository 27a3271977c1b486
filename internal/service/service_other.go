//go:build !linux && !darwin

package service

// New reports ErrUnsupported; run "lpa-bridge serve" under the platform's
// own service manager instead.
func New(opts Options) (Service, error) {
	return nil, ErrUnsupported
}
