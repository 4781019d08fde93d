// Package credential builds the scannable check-in artifact handed to a
// runner after payment: a QR image whose payload is human-readable
// multi-line text that race-day scanning tools parse back.
package credential

import (
	"bytes"
	"fmt"
	"image/png"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// Snapshot is the flattened registration state embedded into the
// credential. Optional fields left empty are omitted from the payload
// entirely; an empty "Shirt Size:" line would mis-scan downstream.
type Snapshot struct {
	RegistrationID string
	FullName       string
	Gender         string
	DateOfBirth    string
	Phone          string
	BibNumber      string
	ShirtType      string
	ShirtSize      string
	BatchBibRange  string
}

// Encoder rasterizes snapshots. The zero value uses sensible defaults.
type Encoder struct {
	// Size is the square image edge in pixels. Defaults to 256.
	Size int
}

// Payload renders the multi-line text embedded in the QR image. The last
// line is always the registration identifier used for reverse lookup.
func Payload(s Snapshot) string {
	var b strings.Builder
	writeLine := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\n")
	}

	writeLine("Name", s.FullName)
	writeLine("Gender", s.Gender)
	writeLine("Date of Birth", s.DateOfBirth)
	writeLine("Phone", s.Phone)
	writeLine("BIB Number", s.BibNumber)
	writeLine("Shirt Type", s.ShirtType)
	writeLine("Shirt Size", s.ShirtSize)
	writeLine("Batch BIBs", s.BatchBibRange)
	writeLine("Registration ID", s.RegistrationID)

	return strings.TrimSuffix(b.String(), "\n")
}

// Encode rasterizes the snapshot to a PNG buffer. The output is validated
// before being returned: a missing credential is acceptable to the caller,
// a corrupted one is not.
func (e Encoder) Encode(s Snapshot) ([]byte, error) {
	if s.RegistrationID == "" {
		return nil, fmt.Errorf("credential snapshot has no registration id")
	}
	if s.BibNumber == "" {
		return nil, fmt.Errorf("credential snapshot has no bib number")
	}

	size := e.Size
	if size <= 0 {
		size = 256
	}

	buf, err := qrcode.Encode(Payload(s), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}

	cfg, err := png.DecodeConfig(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("generated credential is not valid png: %w", err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, fmt.Errorf("generated credential has empty dimensions")
	}

	return buf, nil
}
