// Package witness records when critical sections ran, so that mutual
// exclusion can be checked after the fact.
//
// Every holder of a lock appends one Interval to the locked file itself,
// encoded as a MessagePack record behind a 4-byte big-endian length prefix.
// Because the append happens inside the critical section, the journal is
// only well formed if the lock works; FindOverlaps then proves it.
//
//	lock.With(func(f *os.File) error {
//	    _, err := witness.Record(f, 2*time.Millisecond)
//	    return err
//	})
//
//	ivs, _ := witness.ReadAll(f)
//	if err := witness.Verify(ivs, n); err != nil { ... }
package witness
