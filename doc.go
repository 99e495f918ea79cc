// Package recstore is a client-side access layer for a remote key/value record
// store. Records are addressed by key, hold named fields of opaque bytes and
// carry a server-maintained generation (0 = absent, +1 per write).
//
// Components:
//   - transport.Transport: the record store boundary (memory, Redis, cached).
//   - codec.Codec[V]: (de)serializes field values V <-> []byte.
//   - batch.Fetch: ordered, chunked reads with bounded wave concurrency.
//   - retry.Policy: Fixed or Exponential backoff between conflicting attempts.
//
// Read-modify-write:
//
//	gen, err := st.ReadModifyWrite(ctx, recstore.RMWRequest[int64]{
//		Key:    "user:42",
//		Field:  "visits",
//		Add:    func() (int64, error) { return 1, nil },
//		Update: func(n int64) (int64, error) { return n + 1, nil },
//	})
//
// Each cycle reads the field and its generation, computes the next value, and
// writes it only if the generation is unchanged. A lost race restarts the whole
// cycle under the retry policy; any other failure is returned immediately.
package recstore
