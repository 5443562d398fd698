//go:build !linux

package rendersystem

func raiseThreadPriority() error {
	return nil
}
