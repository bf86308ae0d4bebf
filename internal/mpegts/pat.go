package mpegts

import (
	"encoding/binary"
	"fmt"
)

// PATTableID is the table_id of a Program Association Table section.
const PATTableID = 0x00

// ProgramAssociation maps one program_number to its PMT PID.
type ProgramAssociation struct {
	ProgramNumber uint16
	PMTPID        uint16
}

// ParsePAT decodes a PAT section body (as returned by Section.Data, i.e.
// with the 8-byte table-header-and-CRC envelope already validated and
// the trailing CRC stripped).
func ParsePAT(data []byte) ([]ProgramAssociation, error) {
	// table header occupies the first 5 bytes of data (transport_stream_id
	// through last_section_number); the program loop follows.
	if len(data) < 5 {
		return nil, fmt.Errorf("mpegts: PAT too short")
	}

	body := data[5:]
	if len(body)%4 != 0 {
		return nil, fmt.Errorf("mpegts: malformed PAT program loop")
	}

	var out []ProgramAssociation
	for i := 0; i+4 <= len(body); i += 4 {
		programNumber := binary.BigEndian.Uint16(body[i : i+2])
		pid := binary.BigEndian.Uint16(body[i+2:i+4]) & 0x1fff

		if programNumber == 0 {
			continue // network PID entry, not a program
		}

		out = append(out, ProgramAssociation{
			ProgramNumber: programNumber,
			PMTPID:        pid,
		})
	}

	return out, nil
}
