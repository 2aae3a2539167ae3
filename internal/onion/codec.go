package onion

import "encoding/binary"

// NoneAddress is the terminator address literal (§3): it marks a frame with
// no further hop, used for the response wrapper and the last hop's return.
const NoneAddress = "none:0000"

// Frame is the decoded form of the onion wire packet (§3):
//
//	| 4B ks | 4B as | 4B cs | ks wrapped key | 16B nonce | as address | cs ciphertext |
type Frame struct {
	WrappedKey []byte
	Nonce      []byte
	Address    string
	Ciphertext []byte
}

const nonceSize = 16
const lenFieldSize = 4
const headerSize = 3 * lenFieldSize

// Encode concatenates the fields per §3. No length-prefix escaping is
// performed on the address; callers must keep it free of embedded NULs if
// that matters to their transport (it doesn't for plain HTTP bodies).
func Encode(wrappedKey, nonce []byte, address string, ciphertext []byte) []byte {
	ks, as, cs := len(wrappedKey), len(address), len(ciphertext)
	buf := make([]byte, headerSize+ks+nonceSize+as+cs)

	binary.BigEndian.PutUint32(buf[0:4], uint32(ks))
	binary.BigEndian.PutUint32(buf[4:8], uint32(as))
	binary.BigEndian.PutUint32(buf[8:12], uint32(cs))

	off := headerSize
	off += copy(buf[off:], wrappedKey)
	off += copy(buf[off:], nonce)
	off += copy(buf[off:], address)
	copy(buf[off:], ciphertext)

	return buf
}

// Decode is the inverse of Encode. It fails with *FrameError on any length
// mismatch or truncation; it never panics on attacker-controlled input.
func Decode(data []byte) (*Frame, error) {
	if len(data) < headerSize {
		return nil, &FrameError{Msg: "frame shorter than header"}
	}

	ks := int(binary.BigEndian.Uint32(data[0:4]))
	as := int(binary.BigEndian.Uint32(data[4:8]))
	cs := int(binary.BigEndian.Uint32(data[8:12]))

	if as < 1 {
		return nil, &FrameError{Msg: "address_size must be at least 1"}
	}
	if ks < 0 || cs < 0 {
		return nil, &FrameError{Msg: "negative length field"}
	}

	want := headerSize + ks + nonceSize + as + cs
	if len(data) != want {
		return nil, &FrameError{Msg: "frame length mismatch"}
	}

	off := headerSize
	wrappedKey := data[off : off+ks]
	off += ks
	nonce := data[off : off+nonceSize]
	off += nonceSize
	address := string(data[off : off+as])
	off += as
	ciphertext := data[off : off+cs]

	return &Frame{
		WrappedKey: wrappedKey,
		Nonce:      nonce,
		Address:    address,
		Ciphertext: ciphertext,
	}, nil
}
