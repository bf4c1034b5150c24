package xref

import "github.com/wudi/pdfstore/ir/raw"

// Trailer is a revision's metadata record: its declared object count, the
// root object and the links to earlier cross-reference sections. Prev and
// XRefStm are -1 when the revision has no such pointer.
type Trailer struct {
	Size    int
	Root    raw.ObjectRef
	HasRoot bool
	Prev    int64
	XRefStm int64
	Info    raw.ObjectRef
	HasInfo bool
	ID      [][]byte
	Encrypt raw.Object
}

func trailerFromDict(d *raw.DictObj) Trailer {
	t := Trailer{Prev: -1, XRefStm: -1}
	if v, ok := d.Int("Size"); ok {
		t.Size = int(v)
	}
	if ref, ok := d.Ref("Root"); ok {
		t.Root = ref
		t.HasRoot = true
	}
	if v, ok := d.Int("Prev"); ok {
		t.Prev = v
	}
	if v, ok := d.Int("XRefStm"); ok {
		t.XRefStm = v
	}
	if ref, ok := d.Ref("Info"); ok {
		t.Info = ref
		t.HasInfo = true
	}
	if arr, ok := d.Array("ID"); ok {
		for _, item := range arr.Items {
			if s, ok := item.(raw.StringObj); ok {
				t.ID = append(t.ID, s.Bytes)
			}
		}
	}
	if enc, ok := d.KV["Encrypt"]; ok {
		t.Encrypt = enc
	}
	return t
}
