package dv

// Wildcards for Query fields.
const (
	AnyStorage = -1
	AnyTariff  = -1
	AnySubunit = -1
)

// Query is the semantic identity of a record: what it measures and which
// storage, tariff and subunit it belongs to.
type Query struct {
	Measurement MeasurementType
	Info        ValueInformation
	Storage     int
	Tariff      int
	Subunit     int
}

// Matches reports whether e has the identity q asks for.
func (q Query) Matches(e Entry) bool {
	if e.Encoding.Kind == KindManufacturer {
		return false
	}
	if q.Measurement != AnyMeasurement && e.Measurement != q.Measurement {
		return false
	}
	if e.Scale.Info != q.Info {
		return false
	}
	return matchNumber(q.Storage, e.Storage) &&
		matchNumber(q.Tariff, e.Tariff) &&
		matchNumber(q.Subunit, e.Subunit)
}

func matchNumber(want, got int) bool {
	return want < 0 || want == got
}

// Find returns the first entry, in telegram order, matching q. Later
// entries with the same identity are ignored.
func Find(entries []Entry, q Query) (Entry, bool) {
	for _, e := range entries {
		if q.Matches(e) {
			return e, true
		}
	}
	return Entry{}, false
}

// KeyQuery builds a query that matches any subunit.
func KeyQuery(mt MeasurementType, vi ValueInformation, storage, tariff int) Query {
	return Query{
		Measurement: mt,
		Info:        vi,
		Storage:     storage,
		Tariff:      tariff,
		Subunit:     AnySubunit,
	}
}

// FindKey looks up a record by measurement type, value information, storage
// and tariff, regardless of subunit.
func FindKey(entries []Entry, mt MeasurementType, vi ValueInformation, storage, tariff int) (Entry, bool) {
	return Find(entries, KeyQuery(mt, vi, storage, tariff))
}

// ManufacturerData returns the bytes following a manufacturer specific DIF,
// if the telegram carries any.
func ManufacturerData(entries []Entry) (Entry, bool) {
	if n := len(entries); n > 0 && entries[n-1].Encoding.Kind == KindManufacturer {
		return entries[n-1], true
	}
	return Entry{}, false
}
