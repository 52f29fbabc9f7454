// Package ulid generates the sortable identifiers used for engine events.
package ulid

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"io"
	mathrand "math/rand"
	"sync"
	"time"

	oklid "github.com/oklog/ulid/v2"
	"go.ntppool.org/common/logger"
)

var monotonicPool = sync.Pool{
	New: func() any {
		var seed int64
		err := binary.Read(cryptorand.Reader, binary.BigEndian, &seed)
		if err != nil {
			logger.Setup().Error("crypto/rand error, falling back to time seed", "err", err)
			seed = time.Now().UnixNano()
		}

		rand := mathrand.New(mathrand.NewSource(seed))
		inc := uint64(rand.Int63())

		return oklid.Monotonic(rand, inc)
	},
}

// MakeULID returns a new ULID for t. IDs made from the same pooled
// entropy source are strictly increasing within a millisecond.
func MakeULID(t time.Time) (oklid.ULID, error) {
	mono := monotonicPool.Get().(io.Reader)
	defer monotonicPool.Put(mono)

	return oklid.New(oklid.Timestamp(t), mono)
}

// Make returns the string form of a new ULID for t, or an empty string if
// the entropy source is exhausted.
func Make(t time.Time) string {
	id, err := MakeULID(t)
	if err != nil {
		return ""
	}
	return id.String()
}
