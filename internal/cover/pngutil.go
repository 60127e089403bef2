package cover

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"hash/crc32"
	"io"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

// pngChunks iterates the chunks of a PNG buffer, calling fn with each chunk
// type and payload until fn returns false or the data runs out.
func pngChunks(data []byte, fn func(chunkType string, payload []byte, offset, length int) bool) {
	if !isPNGData(data) {
		return
	}
	pos := len(pngSignature)
	for pos+8 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		chunkType := string(data[pos+4 : pos+8])
		payloadStart := pos + 8
		payloadEnd := payloadStart + length
		if payloadEnd+4 > len(data) {
			return
		}
		if !fn(chunkType, data[payloadStart:payloadEnd], pos, length+12) {
			return
		}
		pos = payloadEnd + 4
	}
}

// ParsePNGDimensions reads width and height from the IHDR chunk.
func ParsePNGDimensions(data []byte) (width, height int, ok bool) {
	pngChunks(data, func(chunkType string, payload []byte, _, _ int) bool {
		if chunkType == "IHDR" && len(payload) >= 13 {
			width = int(binary.BigEndian.Uint32(payload[0:4]))
			height = int(binary.BigEndian.Uint32(payload[4:8]))
			ok = width > 0 && height > 0
		}
		return false
	})
	return width, height, ok
}

// pngICCProfile extracts and decompresses the iCCP chunk, if any. A bare sRGB
// chunk means no profile is needed.
func pngICCProfile(data []byte) []byte {
	var profile []byte
	pngChunks(data, func(chunkType string, payload []byte, _, _ int) bool {
		if chunkType != "iCCP" {
			return true
		}
		// Payload: profile name, NUL, compression method, zlib stream.
		nul := bytes.IndexByte(payload, 0)
		if nul < 0 || nul+2 > len(payload) || payload[nul+1] != 0 {
			return false
		}
		reader, err := zlib.NewReader(bytes.NewReader(payload[nul+2:]))
		if err != nil {
			return false
		}
		defer reader.Close()
		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return false
		}
		profile = decompressed
		return false
	})
	return profile
}

// insertSRGBChunk places an sRGB chunk (perceptual intent) directly after
// IHDR. The input is returned unchanged when it is not a PNG or already
// carries one.
func insertSRGBChunk(data []byte) []byte {
	if !isPNGData(data) {
		return data
	}
	insertAt := -1
	pngChunks(data, func(chunkType string, _ []byte, offset, length int) bool {
		switch chunkType {
		case "sRGB":
			insertAt = -1
			return false
		case "IHDR":
			insertAt = offset + length
		}
		return chunkType != "IDAT"
	})
	if insertAt < 0 {
		return data
	}

	chunk := make([]byte, 13)
	binary.BigEndian.PutUint32(chunk[0:4], 1)
	copy(chunk[4:8], "sRGB")
	chunk[8] = 0 // perceptual rendering intent
	crc := crc32.NewIEEE()
	crc.Write(chunk[4:9])
	binary.BigEndian.PutUint32(chunk[9:13], crc.Sum32())

	out := make([]byte, 0, len(data)+len(chunk))
	out = append(out, data[:insertAt]...)
	out = append(out, chunk...)
	out = append(out, data[insertAt:]...)
	return out
}
