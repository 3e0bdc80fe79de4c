package paramset

import (
	"errors"
	"testing"

	"github.com/zsiec/bitscope/internal/parseerr"
)

type record struct{ flag bool }

func TestLookup(t *testing.T) {
	t.Parallel()
	tbl := NewTable[*record]("PPS").Set(3, &record{flag: true}).Set(0, &record{})

	r, err := tbl.Lookup(3)
	if err != nil {
		t.Fatalf("Lookup(3): %v", err)
	}
	if !r.flag {
		t.Error("expected stored record")
	}
	if tbl.Len() != 2 {
		t.Errorf("Len = %d, want 2", tbl.Len())
	}
	ids := tbl.IDs()
	if len(ids) != 2 || ids[0] != 0 || ids[1] != 3 {
		t.Errorf("IDs = %v, want [0 3]", ids)
	}
}

func TestLookupMissing(t *testing.T) {
	t.Parallel()
	tbl := NewTable[*record]("SPS")
	r, err := tbl.Lookup(7)
	if !errors.Is(err, parseerr.ErrMissingParameterSet) {
		t.Fatalf("err = %v, want ErrMissingParameterSet", err)
	}
	if r != nil {
		t.Error("missing lookup must return the zero value")
	}
	var mps *parseerr.MissingParameterSetError
	if !errors.As(err, &mps) || mps.Class != "SPS" || mps.ID != 7 {
		t.Errorf("got %+v", mps)
	}
}

func TestNilTable(t *testing.T) {
	t.Parallel()
	var tbl *Table[int]
	if _, err := tbl.Lookup(0); !errors.Is(err, parseerr.ErrMissingParameterSet) {
		t.Errorf("nil table lookup: %v", err)
	}
	if tbl.Len() != 0 || tbl.IDs() != nil || tbl.Class() != "" {
		t.Error("nil table should be empty")
	}
}

func TestSetZeroTable(t *testing.T) {
	t.Parallel()
	var zero Table[int]
	zero.Set(4, 9)
	if v, err := zero.Lookup(4); err != nil || v != 9 {
		t.Errorf("zero table Lookup(4) = %d, %v", v, err)
	}

	var tbl *Table[int]
	tbl = tbl.Set(1, 2)
	if tbl == nil || tbl.Len() != 1 {
		t.Fatalf("Set on nil table returned %v", tbl)
	}
	if v, _ := tbl.Lookup(1); v != 2 {
		t.Errorf("Lookup(1) = %d, want 2", v)
	}
}
