package dataset

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const (
	mrcHeaderSize  = 1024
	mrcStampOffset = 212
	mrcStampBigEnd = 0x11
)

// MRCHeader holds the image dimensions of an MRC stack.
type MRCHeader struct {
	NX, NY, NZ int
	Mode       int
}

// ReadMRCHeader reads the dimensions from the fixed-size header of an MRC
// file. Byte order is taken from the machine stamp.
func ReadMRCHeader(path string) (MRCHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return MRCHeader{}, err
	}
	defer f.Close()

	buf := make([]byte, mrcHeaderSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return MRCHeader{}, fmt.Errorf("read mrc header %s: %w", path, err)
	}

	var order binary.ByteOrder = binary.LittleEndian
	if buf[mrcStampOffset] == mrcStampBigEnd {
		order = binary.BigEndian
	}

	h := MRCHeader{
		NX:   int(int32(order.Uint32(buf[0:4]))),
		NY:   int(int32(order.Uint32(buf[4:8]))),
		NZ:   int(int32(order.Uint32(buf[8:12]))),
		Mode: int(int32(order.Uint32(buf[12:16]))),
	}
	if h.NX <= 0 || h.NY <= 0 {
		return MRCHeader{}, fmt.Errorf("mrc header %s: invalid dimensions %dx%d", path, h.NX, h.NY)
	}
	return h, nil
}
