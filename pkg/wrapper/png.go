// PNG wrapper: encodes arbitrary bytes as pixel data inside a valid,
// uncompressed-IDAT PNG. Grounded directly on
// other_examples' google/wuffs lib/uncompng/uncompng.go: a from-scratch
// PNG encoder that writes "stored" (non-Huffman) DEFLATE blocks so the
// zlib stream is a byte-exact, allocation-cheap wrapping of the raw pixel
// bytes rather than a real compression pass. This package keeps that core
// technique (stored DEFLATE blocks, one grayscale byte per pixel, a
// hard-coded zero filter byte per scanline) but trades uncompng's
// fixed-size ring-buffer streaming for a simpler whole-buffer
// implementation, since imgstash already compresses at a layer above the
// wrapper (spec section 4.4: compress-then-wrap) and doesn't need the
// wrapper itself to stream from an io.Writer under memory pressure.
//
// The resource's true byte length is carried in a private ancillary chunk
// ("imLn") so Unwrap can strip row-padding and detect any backend-side
// mutation of the declared length, per spec section 4.2.
package wrapper

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/adler32"
	"hash/crc32"

	"github.com/imgstash/imgstash/pkg/api"
	"github.com/imgstash/imgstash/pkg/apierr"
)

var pngSignature = [8]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

const (
	pngColorTypeGray = 0
	pngBitDepth      = 8
	pngMaxRowWidth   = 1 << 14 // 16384 bytes per scanline keeps IHDR dimensions modest
	maxStoredBlock   = 0xFFFF  // DEFLATE stored-block payload length limit
)

// PNG wraps/unwraps data as pixel rows of an uncompressed PNG image.
type PNG struct{}

func (PNG) Kind() api.WrapperKind { return api.WrapperPNG }

func (PNG) Wrap(data []byte) ([]byte, error) {
	width := pngMaxRowWidth
	if len(data) < width {
		width = len(data)
	}
	if width == 0 {
		width = 1
	}
	height := (len(data) + width - 1) / width
	if height == 0 {
		height = 1
	}

	// Build the raw scanline stream: one zero filter byte followed by
	// `width` pixel bytes per row, padding the final row with zeroes.
	stride := width + 1
	raw := make([]byte, stride*height)
	for row := 0; row < height; row++ {
		start := row * width
		end := start + width
		if end > len(data) {
			end = len(data)
		}
		copy(raw[row*stride+1:], data[start:end])
	}

	var buf bytes.Buffer
	buf.Write(pngSignature[:])
	writeChunk(&buf, "IHDR", ihdrPayload(uint32(width), uint32(height)))
	writeChunk(&buf, "imLn", lengthPayload(uint64(len(data))))
	writeChunk(&buf, "IDAT", zlibStoredStream(raw))
	writeChunk(&buf, "IEND", nil)
	return buf.Bytes(), nil
}

func (PNG) Unwrap(data []byte) ([]byte, error) {
	if len(data) < len(pngSignature) || !bytes.Equal(data[:len(pngSignature)], pngSignature[:]) {
		return nil, fmt.Errorf("%w: not a PNG container", apierr.ErrResourceCorrupt)
	}

	var width, height uint32
	var declaredLen uint64
	var haveLen bool
	var idat bytes.Buffer

	pos := len(pngSignature)
	for pos+8 <= len(data) {
		length := binary.BigEndian.Uint32(data[pos:])
		typ := string(data[pos+4 : pos+8])
		payloadStart := pos + 8
		payloadEnd := payloadStart + int(length)
		if payloadEnd+4 > len(data) {
			return nil, fmt.Errorf("%w: truncated PNG chunk %q", apierr.ErrResourceCorrupt, typ)
		}
		payload := data[payloadStart:payloadEnd]
		wantCRC := binary.BigEndian.Uint32(data[payloadEnd : payloadEnd+4])
		gotCRC := crc32.ChecksumIEEE(append([]byte(typ), payload...))
		if wantCRC != gotCRC {
			return nil, fmt.Errorf("%w: chunk %q CRC mismatch", apierr.ErrResourceCorrupt, typ)
		}

		switch typ {
		case "IHDR":
			if len(payload) != 13 {
				return nil, fmt.Errorf("%w: malformed IHDR", apierr.ErrResourceCorrupt)
			}
			width = binary.BigEndian.Uint32(payload[0:4])
			height = binary.BigEndian.Uint32(payload[4:8])
			if payload[8] != pngBitDepth || payload[9] != pngColorTypeGray {
				return nil, fmt.Errorf("%w: unsupported PNG encoding", apierr.ErrResourceCorrupt)
			}
		case "imLn":
			if len(payload) != 8 {
				return nil, fmt.Errorf("%w: malformed length chunk", apierr.ErrResourceCorrupt)
			}
			declaredLen = binary.BigEndian.Uint64(payload)
			haveLen = true
		case "IDAT":
			idat.Write(payload)
		case "IEND":
			pos = payloadEnd + 4
			goto doneChunks
		}
		pos = payloadEnd + 4
	}
doneChunks:

	if !haveLen {
		return nil, fmt.Errorf("%w: missing length chunk", apierr.ErrResourceCorrupt)
	}
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("%w: empty PNG dimensions", apierr.ErrResourceCorrupt)
	}

	raw, err := inflateStoredStream(idat.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apierr.ErrResourceCorrupt, err)
	}

	stride := int(width) + 1
	if len(raw) != stride*int(height) {
		return nil, fmt.Errorf("%w: scanline data size mismatch", apierr.ErrResourceCorrupt)
	}

	out := make([]byte, 0, declaredLen)
	for row := 0; row < int(height); row++ {
		rowStart := row * stride
		if raw[rowStart] != 0 {
			return nil, fmt.Errorf("%w: unsupported PNG filter byte", apierr.ErrResourceCorrupt)
		}
		out = append(out, raw[rowStart+1:rowStart+stride]...)
	}

	if uint64(len(out)) < declaredLen {
		return nil, fmt.Errorf("%w: payload shorter than declared length", apierr.ErrResourceCorrupt)
	}
	out = out[:declaredLen]
	return out, nil
}

func ihdrPayload(width, height uint32) []byte {
	payload := make([]byte, 13)
	binary.BigEndian.PutUint32(payload[0:4], width)
	binary.BigEndian.PutUint32(payload[4:8], height)
	payload[8] = pngBitDepth
	payload[9] = pngColorTypeGray
	payload[10] = 0 // compression method
	payload[11] = 0 // filter method
	payload[12] = 0 // interlace method
	return payload
}

func lengthPayload(n uint64) []byte {
	payload := make([]byte, 8)
	binary.BigEndian.PutUint64(payload, n)
	return payload
}

func writeChunk(buf *bytes.Buffer, typ string, payload []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	buf.Write(lenBuf[:])
	buf.WriteString(typ)
	buf.Write(payload)
	crc := crc32.ChecksumIEEE(append([]byte(typ), payload...))
	var crcBuf [4]byte
	binary.BigEndian.PutUint32(crcBuf[:], crc)
	buf.Write(crcBuf[:])
}

// zlibStoredStream wraps raw in a zlib stream made entirely of DEFLATE
// "stored" (uncompressed) blocks: a 2-byte zlib header, one or more stored
// blocks, and a trailing big-endian Adler-32 checksum.
func zlibStoredStream(raw []byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte(0x78) // CMF: deflate, 32K window
	buf.WriteByte(0x01) // FLG: fastest compression level, valid FCHECK

	if len(raw) == 0 {
		buf.WriteByte(0x01) // BFINAL=1, BTYPE=00 (stored)
		buf.WriteByte(0x00)
		buf.WriteByte(0x00)
		buf.WriteByte(0xFF)
		buf.WriteByte(0xFF)
	}
	for offset := 0; offset < len(raw); {
		n := len(raw) - offset
		if n > maxStoredBlock {
			n = maxStoredBlock
		}
		final := offset+n >= len(raw)
		var header byte
		if final {
			header = 1
		}
		buf.WriteByte(header)

		var lenBuf [2]byte
		binary.LittleEndian.PutUint16(lenBuf[:], uint16(n))
		buf.Write(lenBuf[:])
		binary.LittleEndian.PutUint16(lenBuf[:], ^uint16(n))
		buf.Write(lenBuf[:])

		buf.Write(raw[offset : offset+n])
		offset += n
	}

	var adlerBuf [4]byte
	binary.BigEndian.PutUint32(adlerBuf[:], adler32.Checksum(raw))
	buf.Write(adlerBuf[:])
	return buf.Bytes()
}

// inflateStoredStream reverses zlibStoredStream, verifying the header and
// the trailing Adler-32 checksum.
func inflateStoredStream(stream []byte) ([]byte, error) {
	if len(stream) < 6 {
		return nil, fmt.Errorf("zlib stream too short")
	}
	if (uint16(stream[0])<<8|uint16(stream[1]))%31 != 0 {
		return nil, fmt.Errorf("invalid zlib header")
	}

	body := stream[2 : len(stream)-4]
	wantAdler := binary.BigEndian.Uint32(stream[len(stream)-4:])

	var raw bytes.Buffer
	pos := 0
	for pos < len(body) {
		if pos+5 > len(body) {
			return nil, fmt.Errorf("truncated deflate block header")
		}
		final := body[pos] == 1
		n := binary.LittleEndian.Uint16(body[pos+1 : pos+3])
		nlen := binary.LittleEndian.Uint16(body[pos+3 : pos+5])
		if n != ^nlen {
			return nil, fmt.Errorf("deflate stored-block length check failed")
		}
		pos += 5
		if pos+int(n) > len(body) {
			return nil, fmt.Errorf("truncated deflate block payload")
		}
		raw.Write(body[pos : pos+int(n)])
		pos += int(n)
		if final {
			break
		}
	}

	if adler32.Checksum(raw.Bytes()) != wantAdler {
		return nil, fmt.Errorf("adler-32 checksum mismatch")
	}
	return raw.Bytes(), nil
}
