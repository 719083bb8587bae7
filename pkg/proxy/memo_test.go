package proxy

import "testing"

func TestWorkingServerMapReorderMovesMatchToFront(t *testing.T) {
	w := NewWorkingServerMap()
	a := ServerURI{Scheme: "kerberos", Host: "a", Port: 88}
	b := ServerURI{Scheme: "kerberos", Host: "b", Port: 88}
	c := ServerURI{Scheme: "kerberos", Host: "c", Port: 88}

	w.MarkWorking("EXAMPLE.COM", c)

	got := w.Reorder("EXAMPLE.COM", []ServerURI{a, b, c})
	want := []ServerURI{c, a, b}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Reorder = %+v, want %+v", got, want)
		}
	}
}

func TestWorkingServerMapReorderNoMemoIsUnchanged(t *testing.T) {
	w := NewWorkingServerMap()
	a := ServerURI{Scheme: "kerberos", Host: "a", Port: 88}
	b := ServerURI{Scheme: "kerberos", Host: "b", Port: 88}

	got := w.Reorder("EXAMPLE.COM", []ServerURI{a, b})
	if got[0] != a || got[1] != b {
		t.Fatalf("Reorder with no memo should leave order unchanged, got %+v", got)
	}
}

func TestWorkingServerMapReorderAlreadyFirst(t *testing.T) {
	w := NewWorkingServerMap()
	a := ServerURI{Scheme: "kerberos", Host: "a", Port: 88}
	b := ServerURI{Scheme: "kerberos", Host: "b", Port: 88}

	w.MarkWorking("EXAMPLE.COM", a)
	got := w.Reorder("EXAMPLE.COM", []ServerURI{a, b})
	if got[0] != a || got[1] != b {
		t.Fatalf("Reorder = %+v, want unchanged order when memo already leads", got)
	}
}

func TestWorkingServerMapMarkBrokenOnlyClearsCurrent(t *testing.T) {
	w := NewWorkingServerMap()
	a := ServerURI{Scheme: "kerberos", Host: "a", Port: 88}
	b := ServerURI{Scheme: "kerberos", Host: "b", Port: 88}

	w.MarkWorking("EXAMPLE.COM", a)
	w.MarkWorking("EXAMPLE.COM", b) // b supersedes a

	w.MarkBroken("EXAMPLE.COM", a) // stale report for a must not evict b

	got := w.Reorder("EXAMPLE.COM", []ServerURI{a, b})
	if got[0] != b {
		t.Fatalf("Reorder = %+v, want b still remembered as working", got)
	}
}

func TestWorkingServerMapMarkBrokenClearsMatchingCurrent(t *testing.T) {
	w := NewWorkingServerMap()
	a := ServerURI{Scheme: "kerberos", Host: "a", Port: 88}
	b := ServerURI{Scheme: "kerberos", Host: "b", Port: 88}

	w.MarkWorking("EXAMPLE.COM", a)
	w.MarkBroken("EXAMPLE.COM", a)

	got := w.Reorder("EXAMPLE.COM", []ServerURI{a, b})
	if got[0] != a || got[1] != b {
		t.Fatalf("Reorder = %+v, want unchanged order once memo is cleared", got)
	}
}
