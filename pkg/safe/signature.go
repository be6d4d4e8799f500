package safe

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// signatureLength is the size of one packed {r, s, v} owner signature.
const signatureLength = 65

var (
	// ErrEmptySignature is returned when the signature payload decodes to
	// nothing.
	ErrEmptySignature = errors.New("signature payload is empty")

	// ErrSignatureLength is returned when the payload is not whole 65-byte
	// chunks.
	ErrSignatureLength = errors.New("signature length is not a multiple of 65 bytes")

	// ErrRecoveryByte is returned when a chunk's recovery byte is outside
	// the 0/1/27/28 values a client wallet can produce.
	ErrRecoveryByte = errors.New("unsupported signature recovery byte")
)

// SignatureError reports a signature payload the wallet contract rejected
// under both signing conventions, with the reason it gave for each probe.
type SignatureError struct {
	Wallet        common.Address
	ECDSAReason   string
	EthSignReason string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf(
		"wallet %s rejected signatures (ecdsa: %s; eth_sign: %s)",
		e.Wallet.Hex(), e.ECDSAReason, e.EthSignReason,
	)
}

// NormalizeSignatures strips an optional 0x prefix, hex-decodes and checks
// the result splits into whole 65-byte chunks.
func NormalizeSignatures(raw string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if trimmed == "" {
		return nil, ErrEmptySignature
	}

	sigs, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("failed to decode signature hex: %w", err)
	}

	if len(sigs)%signatureLength != 0 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrSignatureLength, len(sigs))
	}

	return sigs, nil
}

// ecdsaCandidate lifts every chunk's recovery byte to the 27/28 form the
// wallet expects for raw ECDSA signatures over the transaction hash.
func ecdsaCandidate(sigs []byte) ([]byte, error) {
	out := make([]byte, len(sigs))
	copy(out, sigs)

	for i := signatureLength - 1; i < len(out); i += signatureLength {
		switch out[i] {
		case 0, 1:
			out[i] += 27
		case 27, 28:
		default:
			return nil, fmt.Errorf("%w: %d at offset %d", ErrRecoveryByte, out[i], i)
		}
	}

	return out, nil
}

// ethSignCandidate shifts an ecdsa candidate's recovery bytes by 4, marking
// each chunk as an eth_sign signature over the prefixed message.
func ethSignCandidate(ecdsaSigs []byte) []byte {
	out := make([]byte, len(ecdsaSigs))
	copy(out, ecdsaSigs)

	for i := signatureLength - 1; i < len(out); i += signatureLength {
		out[i] += 4
	}

	return out
}
