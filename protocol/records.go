package protocol

// Records (a batch of) serialized records. An update is a batch of item
// and delete-set records; keeping them as a list of blobs lets the store
// and the REPL split, count and re-join them without decoding.
type Records [][]byte

func (recs Records) TotalLen() (total int64) {
	for _, r := range recs {
		total += int64(len(r))
	}
	return
}

// Join glues the records back into one contiguous payload.
func (recs Records) Join() []byte {
	return Concat(recs...)
}
