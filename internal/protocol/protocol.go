package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"
)

// Protocol constants
const (
	// RequestSize is the length of the fixed request datagram
	RequestSize = 16

	// Response layout
	CountFieldSize = 4
	NameFieldSize  = 16
	MarkFieldSize  = 4
	RecordSize     = NameFieldSize + MarkFieldSize // 20 bytes per record slot

	// MaxResponseSize is the largest reply accepted from the server.
	// Longer datagrams are truncated by the socket read.
	MaxResponseSize = 4096

	// MaxRecords is the number of record slots that fit in MaxResponseSize
	MaxRecords = (MaxResponseSize - CountFieldSize) / RecordSize

	// maxFieldValue is the largest number a 4-digit text field can hold
	maxFieldValue = 9999
)

// requestBytes is "studentmarklist" plus a null terminator, exactly 16 bytes
var requestBytes = [RequestSize]byte{
	's', 't', 'u', 'd', 'e', 'n', 't', 'm', 'a', 'r', 'k', 'l', 'i', 's', 't', 0x00,
}

// ErrMalformedResponse is returned when a reply cannot be decoded
var ErrMalformedResponse = errors.New("malformed response")

// StudentRecord is a single decoded entry of the mark list
type StudentRecord struct {
	Name string `json:"name" yaml:"name"`
	Mark int    `json:"mark" yaml:"mark"`
}

// Request returns a copy of the fixed request datagram
func Request() []byte {
	req := make([]byte, RequestSize)
	copy(req, requestBytes[:])
	return req
}

// IsRequest reports whether data is exactly the fixed request datagram
func IsRequest(data []byte) bool {
	return bytes.Equal(data, requestBytes[:])
}

// DecodeResponse parses a reply datagram into student records.
// Layout: [Count:4][Name:16|Mark:4]*Count. Count and marks are ASCII decimal
// text. Bytes after the last announced record are ignored.
func DecodeResponse(data []byte) ([]StudentRecord, error) {
	if len(data) < CountFieldSize {
		return nil, fmt.Errorf("%w: response too short: expected at least %d bytes, got %d",
			ErrMalformedResponse, CountFieldSize, len(data))
	}

	count, err := ParseField(data[:CountFieldSize])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid record count: %v", ErrMalformedResponse, err)
	}
	if count < 0 {
		return nil, fmt.Errorf("%w: negative record count %d", ErrMalformedResponse, count)
	}

	expected := CountFieldSize + count*RecordSize
	if len(data) < expected {
		return nil, fmt.Errorf("%w: response too short for %d records: expected %d bytes, got %d",
			ErrMalformedResponse, count, expected, len(data))
	}

	records := make([]StudentRecord, 0, count)
	for i := 0; i < count; i++ {
		offset := CountFieldSize + i*RecordSize
		record, err := decodeRecord(data[offset : offset+RecordSize])
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrMalformedResponse, i, err)
		}
		records = append(records, record)
	}

	return records, nil
}

// decodeRecord parses one 20-byte record slot
func decodeRecord(slot []byte) (StudentRecord, error) {
	name := ExtractString(slot[:NameFieldSize])
	if !utf8.ValidString(name) {
		return StudentRecord{}, fmt.Errorf("name is not valid UTF-8: %q", name)
	}

	mark, err := ParseField(slot[NameFieldSize:RecordSize])
	if err != nil {
		return StudentRecord{}, fmt.Errorf("invalid mark for %q: %w", name, err)
	}

	return StudentRecord{Name: name, Mark: mark}, nil
}

// ParseField decodes a fixed-width numeric field. The server writes these as
// ASCII decimal text ("0042"), not as binary integers.
func ParseField(field []byte) (int, error) {
	return strconv.Atoi(string(bytes.TrimSpace(field)))
}

// EncodeResponse builds the reply datagram for records, the inverse of
// DecodeResponse.
func EncodeResponse(records []StudentRecord) ([]byte, error) {
	if len(records) > MaxRecords {
		return nil, fmt.Errorf("too many records: %d (maximum %d)", len(records), MaxRecords)
	}

	data := make([]byte, CountFieldSize+len(records)*RecordSize)
	copy(data, formatField(len(records)))

	for i, record := range records {
		if len(record.Name) > NameFieldSize {
			return nil, fmt.Errorf("name %q exceeds %d bytes", record.Name, NameFieldSize)
		}
		if record.Mark < 0 || record.Mark > maxFieldValue {
			return nil, fmt.Errorf("mark %d for %q out of range [0, %d]", record.Mark, record.Name, maxFieldValue)
		}

		offset := CountFieldSize + i*RecordSize
		copy(data[offset:offset+NameFieldSize], record.Name)
		copy(data[offset+NameFieldSize:offset+RecordSize], formatField(record.Mark))
	}

	return data, nil
}

// formatField renders n as a zero-padded 4-digit field
func formatField(n int) string {
	return fmt.Sprintf("%04d", n)
}

// ExtractString extracts a null-terminated string from a fixed-size byte array
func ExtractString(buf []byte) string {
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		return string(buf[:i])
	}
	return string(buf)
}

// String returns a human-readable representation of the record
func (r StudentRecord) String() string {
	return fmt.Sprintf("StudentRecord{Name:%q, Mark:%d}", r.Name, r.Mark)
}
