package blockchain

import "log"

// Handle panics on errors that indicate corrupted local state (a failed
// gob decode of our own data, a badger open failure) rather than a bad
// remote input. Anything that can legitimately happen because of a peer
// or a caller goes through the errs sentinel values instead.
func Handle(err error) {
	if err != nil {
		log.Panic(err)
	}
}
