package config

import (
	"fmt"

	"github.com/docker/go-units"
)

// ByteSize is a byte count read from human sizes such as "8MiB" or "50mb".
// Units are binary: "1KB" and "1KiB" are both 1024 bytes.
type ByteSize int64

func (b *ByteSize) UnmarshalText(text []byte) error {
	n, err := units.RAMInBytes(string(text))
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", text, err)
	}
	if n < 0 {
		return fmt.Errorf("invalid size %q: must not be negative", text)
	}
	*b = ByteSize(n)
	return nil
}

func (b ByteSize) String() string { return units.BytesSize(float64(b)) }

func (b ByteSize) Int64() int64 { return int64(b) }
