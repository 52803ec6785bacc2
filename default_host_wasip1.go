//go:build wasip1

package sdfhttp

import (
	"github.com/reglet-dev/sdf-http/domain/ports"
	"github.com/reglet-dev/sdf-http/infrastructure/wasm"
)

func defaultHost() (ports.Host, error) {
	return wasm.NewHost(), nil
}
