package world

import "testing"

func TestLeaseReleasedOnce(t *testing.T) {
	p := NewBufferPool()
	l := p.Field(BufGenerate, 27)
	if len(l.Field()) != 27 {
		t.Fatalf("len = %d", len(l.Field()))
	}
	m := p.Mesh(9)
	if m.Mesh() == nil || m.Field() != nil {
		t.Fatal("mesh lease should carry only mesh buffers")
	}
	if p.Outstanding() != 2 {
		t.Fatalf("outstanding = %d", p.Outstanding())
	}
	if !l.Release() || l.Release() {
		t.Fatal("release should succeed exactly once")
	}
	m.Release()
	if p.Outstanding() != 0 {
		t.Fatalf("outstanding = %d", p.Outstanding())
	}
	var nilLease *Lease
	if nilLease.Release() {
		t.Fatal("nil lease released")
	}
}

func TestSizeClassesSeparate(t *testing.T) {
	p := NewBufferPool()
	a := p.Field(BufChunk, 8)
	a.Release()
	b := p.Field(BufChunk, 27)
	if len(b.Field()) != 27 {
		t.Fatalf("got buffer of %d from a different class", len(b.Field()))
	}
	b.Release()
}
