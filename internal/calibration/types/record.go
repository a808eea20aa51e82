package types

// Record is a calibration record produced from one finalized slot.
// Payload is the opaque encoded form handed to the store; Stats and the
// slot bounds are kept alongside it for logging and diagnostic dumps.
type Record struct {
	ObjectPath    string
	Payload       []byte
	ValidityStart int64
	ValidityEnd   int64

	SlotStart  int64
	SlotEnd    int64
	Stats      [NumSides]Statistics
	EnoughData bool
}

// Key returns the idempotency key of the record.
func (r *Record) Key() RecordKey {
	return RecordKey{ObjectPath: r.ObjectPath, ValidityStart: r.ValidityStart}
}

// Covers returns true if t falls into the validity interval [start, end).
func (r *Record) Covers(t int64) bool {
	return t >= r.ValidityStart && t < r.ValidityEnd
}

// RecordKey identifies a record for idempotent redelivery.
type RecordKey struct {
	ObjectPath    string
	ValidityStart int64
}
