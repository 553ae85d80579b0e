package journal

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// BytesCID returns a CIDv1 (raw + sha2-256) derived from canonical bytes.
//
// Envelope and history bytes are canonical JSON, so equal content always
// yields equal CIDs; both ends of the wire recompute and compare them to
// detect corruption or drift.
func BytesCID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}
