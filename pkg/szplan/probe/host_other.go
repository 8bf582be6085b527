//go:build !linux && !darwin

package probe

import "errors"

var errUnsupportedPlatform = errors.New("unsupported platform")

func totalMemory() (uint64, error) { return 0, errUnsupportedPlatform }

func cpuModel() (string, error) { return "", errUnsupportedPlatform }
