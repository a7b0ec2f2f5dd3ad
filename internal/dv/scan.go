package dv

import "fmt"

const (
	difFiller        = 0x2F
	difManufacturer  = 0x0F
	difMoreRecords   = 0x1F
	difGlobalReadout = 0x7F

	// EN 13757-3 allows at most ten DIFE and ten VIFE per record.
	maxExtensions = 10
)

// Scan walks buf into its data records. Filler bytes are skipped and a
// manufacturer specific DIF (0x0F / 0x1F) ends the scan with a final entry of
// KindManufacturer holding the rest of the buffer. Any error discards the
// whole buffer.
func Scan(buf []byte) ([]Entry, error) {
	entries := make([]Entry, 0, 8)
	i := 0
	for i < len(buf) {
		start := i
		dif := buf[i]
		i++
		switch {
		case dif == difFiller, dif == difGlobalReadout:
			continue
		case dif == difManufacturer, dif == difMoreRecords:
			entries = append(entries, Entry{
				Offset:      start,
				DataOffset:  i,
				DIF:         dif,
				Measurement: AnyMeasurement,
				Encoding:    Encoding{Kind: KindManufacturer, Width: len(buf) - i},
				Scale:       Scale{Info: ManufacturerSpecific},
				Data:        buf[i:],
			})
			return entries, nil
		case dif&0x0F == 0x0F:
			return nil, unknownEncoding(start, fmt.Sprintf("special DIF 0x%02X", dif))
		}

		e := Entry{Offset: start, DIF: dif, Measurement: measurementOf(dif)}
		storage := int(dif>>6) & 0x01
		difeStart := i
		for n, ext := 0, dif&0x80 != 0; ext; n++ {
			if i >= len(buf) {
				return nil, truncated(i, "DIFE")
			}
			if n == maxExtensions {
				return nil, unknownEncoding(i, "DIFE chain too long")
			}
			dife := buf[i]
			i++
			storage |= int(dife&0x0F) << (1 + 4*n)
			e.Tariff |= int((dife>>4)&0x03) << (2 * n)
			e.Subunit |= int((dife>>6)&0x01) << n
			ext = dife&0x80 != 0
		}
		e.DIFE = buf[difeStart:i]
		e.Storage = storage

		if i >= len(buf) {
			return nil, truncated(i, "VIF")
		}
		e.VIF = buf[i]
		i++
		if e.VIF == 0xEF {
			return nil, unknownEncoding(i-1, "reserved VIF 0xEF")
		}
		vifeStart := i
		for n, ext := 0, e.VIF&0x80 != 0; ext; n++ {
			if i >= len(buf) {
				return nil, truncated(i, "VIFE")
			}
			if n == maxExtensions {
				return nil, unknownEncoding(i, "VIFE chain too long")
			}
			ext = buf[i]&0x80 != 0
			i++
		}
		e.VIFE = buf[vifeStart:i]
		if e.VIF&0x7F == 0x7C {
			if i >= len(buf) {
				return nil, truncated(i, "plain text VIF length")
			}
			length := int(buf[i])
			i++
			if i+length > len(buf) {
				return nil, truncated(i, "plain text VIF")
			}
			e.PlainUnit = buf[i : i+length]
			i += length
		}
		e.Scale = ScaleFor(e.VIF, e.VIFE)

		enc, ok := dataEncoding(dif & 0x0F)
		if !ok {
			if i >= len(buf) {
				return nil, truncated(i, "LVAR")
			}
			lvar := buf[i]
			i++
			if enc, ok = variableEncoding(lvar); !ok {
				return nil, unknownEncoding(i-1, fmt.Sprintf("LVAR 0x%02X", lvar))
			}
		}
		if enc.Kind == KindBinary {
			enc.Signed = e.Scale.Signed
		}
		e.Encoding = enc
		e.DataOffset = i
		if i+enc.Width > len(buf) {
			return nil, truncated(i, fmt.Sprintf("data of DIF 0x%02X (%d bytes, %d left)", dif, enc.Width, len(buf)-i))
		}
		e.Data = buf[i : i+enc.Width]
		i += enc.Width
		entries = append(entries, e)
	}
	return entries, nil
}

// dataEncoding maps the DIF data field onto its encoding. It returns false
// for the variable length field 0x0D, whose encoding follows in an LVAR byte.
func dataEncoding(field byte) (Encoding, bool) {
	switch field {
	case 0x00, 0x08:
		return Encoding{Kind: KindNone}, true
	case 0x01, 0x02, 0x03, 0x04:
		return Encoding{Kind: KindBinary, Width: int(field)}, true
	case 0x05:
		return Encoding{Kind: KindReal, Width: 4}, true
	case 0x06:
		return Encoding{Kind: KindBinary, Width: 6}, true
	case 0x07:
		return Encoding{Kind: KindBinary, Width: 8}, true
	case 0x09, 0x0A, 0x0B, 0x0C:
		return Encoding{Kind: KindBCD, Width: int(field - 0x08)}, true
	case 0x0E:
		return Encoding{Kind: KindBCD, Width: 6}, true
	default:
		return Encoding{}, false
	}
}

func variableEncoding(lvar byte) (Encoding, bool) {
	switch {
	case lvar <= 0xBF:
		return Encoding{Kind: KindText, Width: int(lvar)}, true
	case lvar >= 0xC0 && lvar <= 0xC9:
		return Encoding{Kind: KindBCD, Width: int(lvar - 0xC0)}, true
	case lvar >= 0xD0 && lvar <= 0xD9:
		return Encoding{Kind: KindBCD, Width: int(lvar - 0xD0), Negative: true}, true
	case lvar >= 0xE0 && lvar <= 0xEF:
		return Encoding{Kind: KindBinary, Width: int(lvar - 0xE0)}, true
	default:
		return Encoding{}, false
	}
}
