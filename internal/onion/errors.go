package onion

// FrameError reports a malformed or truncated onion frame (§4.B).
type FrameError struct {
	Msg string
}

func (e *FrameError) Error() string { return e.Msg }

// CryptoError reports an OAEP-unwrap or symmetric-decrypt failure (§4.A).
type CryptoError struct {
	Msg string
}

func (e *CryptoError) Error() string { return e.Msg }
