//go:build !windows && !darwin && !linux

package backends

import "murmur/pkg/output"

func platformFactories(Config) []output.Factory { return nil }
