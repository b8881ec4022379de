package session

import "testing"

// BenchmarkWriteRead measures one fill-and-drain cycle on a session.
func BenchmarkWriteRead(b *testing.B) {
	mgr := NewManager(Options{})
	e := NewEngine(DefaultLimits(), mgr, nil, nil)
	payload := make([]byte, 512)
	out := make([]byte, 512)

	b.SetBytes(int64(len(payload)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s, _ := mgr.Create()
		e.Write(s, payload) //nolint:errcheck
		e.Read(s, out)      //nolint:errcheck
		mgr.End(s)          //nolint:errcheck
	}
}
