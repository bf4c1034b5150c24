package filters

import "github.com/wudi/pdfstore/ir/raw"

// ExtractFilters reads the Filter and DecodeParms entries from a stream
// dictionary. A single name or dictionary is normalized to a one-element
// slice; a missing DecodeParms entry yields nil parameters.
func ExtractFilters(dict raw.Dictionary) ([]string, []raw.Dictionary) {
	var names []string
	var params []raw.Dictionary

	filterObj, ok := dict.Get(raw.NameObj{Val: "Filter"})
	if !ok {
		return names, params
	}

	switch f := filterObj.(type) {
	case raw.NameObj:
		names = append(names, f.Val)
	case *raw.ArrayObj:
		for _, item := range f.Items {
			if n, ok := item.(raw.NameObj); ok {
				names = append(names, n.Val)
			}
		}
	}

	if len(names) == 0 {
		return names, params
	}
	pObj, ok := dict.Get(raw.NameObj{Val: "DecodeParms"})
	if !ok {
		// Writers disagree on the spelling.
		pObj, ok = dict.Get(raw.NameObj{Val: "DP"})
	}
	if ok {
		switch p := pObj.(type) {
		case *raw.DictObj:
			params = append(params, p)
		case *raw.ArrayObj:
			for _, item := range p.Items {
				if d, ok := item.(*raw.DictObj); ok {
					params = append(params, d)
				} else {
					params = append(params, nil)
				}
			}
		}
	}

	return names, params
}
