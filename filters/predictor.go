package filters

import (
	"context"

	"github.com/pkg/errors"

	"github.com/wudi/pdfstore/ir/raw"
)

// Predictor modes from the decode parameter dictionary. 1 means no
// prediction and no row tagging; 10-14 are the PNG filter functions.
const (
	predictorUnused  = 1
	predictorNone    = 10
	predictorSub     = 11
	predictorUp      = 12
	predictorAverage = 13
	predictorPaeth   = 14
)

type predictorParams struct {
	mode             int
	columns          int
	colors           int
	bitsPerComponent int
}

func (p predictorParams) bytesPerPixel() int { return p.colors * p.bitsPerComponent / 8 }
func (p predictorParams) bytesPerRow() int   { return p.bytesPerPixel() * p.columns }

func predictorFromParams(ctx context.Context, params raw.Dictionary, resolve Resolver) (predictorParams, error) {
	p := predictorParams{mode: predictorUnused, columns: 1, colors: 1, bitsPerComponent: 8}
	if params == nil {
		return p, nil
	}
	for _, f := range []struct {
		key string
		dst *int
	}{
		{"Predictor", &p.mode},
		{"Columns", &p.columns},
		{"Colors", &p.colors},
		{"BitsPerComponent", &p.bitsPerComponent},
	} {
		v, err := paramInt(ctx, params, resolve, f.key, int64(*f.dst))
		if err != nil {
			return predictorParams{}, err
		}
		*f.dst = int(v)
	}
	return p, nil
}

// reconstruct undoes the per-row delta encoding in place. data is treated as
// consecutive rows of bytesPerRow bytes; the output length always equals the
// input length.
func (p predictorParams) reconstruct(data []byte) error {
	switch p.mode {
	case predictorUnused, predictorNone:
		return nil
	case predictorSub, predictorUp, predictorAverage, predictorPaeth:
	default:
		return errors.Errorf("predictor %d not supported", p.mode)
	}

	bpp := p.bytesPerPixel()
	bpr := p.bytesPerRow()
	if bpp <= 0 || bpr <= 0 {
		return errors.Errorf("invalid predictor geometry: %d colors, %d bits, %d columns",
			p.colors, p.bitsPerComponent, p.columns)
	}

	for rowStart := 0; rowStart < len(data); rowStart += bpr {
		rowEnd := rowStart + bpr
		if rowEnd > len(data) {
			rowEnd = len(data)
		}
		row := data[rowStart:rowEnd]
		var above []byte
		if rowStart > 0 {
			above = data[rowStart-bpr : rowStart]
		}

		switch p.mode {
		case predictorSub:
			for i := bpp; i < len(row); i++ {
				row[i] += row[i-bpp]
			}
		case predictorUp:
			for i := range row {
				if above != nil {
					row[i] += above[i]
				}
			}
		case predictorAverage:
			for i := range row {
				var left, up int
				if i >= bpp {
					left = int(row[i-bpp])
				}
				if above != nil {
					up = int(above[i])
				}
				row[i] += byte((left + up) / 2)
			}
		case predictorPaeth:
			for i := range row {
				var left, up, upLeft byte
				if i >= bpp {
					left = row[i-bpp]
				}
				if above != nil {
					up = above[i]
					if i >= bpp {
						upLeft = above[i-bpp]
					}
				}
				row[i] += paethPredict(left, up, upLeft)
			}
		}
	}
	return nil
}

// paethPredict picks whichever of a (left), b (above), c (upper left) is
// closest to a+b-c, breaking ties left first, then above, then upper left.
func paethPredict(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa := abs(p - int(a))
	pb := abs(p - int(b))
	pc := abs(p - int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
