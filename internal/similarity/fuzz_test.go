package similarity

import "testing"

func FuzzWRatio(f *testing.F) {
	f.Add("indya", "India")
	f.Add("jon smith", "john smith")
	f.Add("", "x")
	f.Add("İstanbul", "istanbul")
	f.Add(string([]byte{0xfe, 0xff}), "a")
	f.Add("a", "aaaaaaaaaaaaaaaaaaaa")

	f.Fuzz(func(t *testing.T, a, b string) {
		score := WRatio(a, b)
		if score < 0 || score > 100 {
			t.Fatalf("WRatio(%q, %q) = %v out of range", a, b, score)
		}
		if Process(a) != "" && WRatio(a, a) != 100 {
			t.Fatalf("WRatio(%q, %q) = %v, want 100", a, a, WRatio(a, a))
		}
	})
}
