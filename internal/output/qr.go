package output

import (
	"io"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mdp/qrterminal/v3"
	"rsc.io/qr"
)

// QRConfig configures QR code rendering.
type QRConfig struct {
	// Level is the error correction level.
	Level qr.Level
	// QuietZone is the number of empty blocks around the QR code.
	QuietZone int
	// HalfBlocks uses half-height blocks for a more compact display.
	HalfBlocks bool
}

// DefaultQRConfig returns defaults for terminal QR rendering.
func DefaultQRConfig() QRConfig {
	return QRConfig{
		Level:      qr.L, // Enough redundancy for a short payment URI
		QuietZone:  1,
		HalfBlocks: true,
	}
}

// PaymentURI returns an EIP-681 URI for addr on chainID. Chain 1 is implied.
func PaymentURI(addr common.Address, chainID uint64) string {
	var sb strings.Builder
	sb.WriteString("ethereum:")
	sb.WriteString(addr.Hex())
	if chainID != 0 && chainID != 1 {
		sb.WriteString("@")
		sb.WriteString(strconv.FormatUint(chainID, 10))
	}
	return sb.String()
}

// RenderQR renders data as a QR code when w is a terminal.
// Nothing is written otherwise.
func RenderQR(w io.Writer, data string, cfg QRConfig) error {
	if !IsTerminal(w) {
		return nil
	}

	qrterminal.GenerateWithConfig(data, qrterminal.Config{
		Level:          cfg.Level,
		Writer:         w,
		QuietZone:      cfg.QuietZone,
		HalfBlocks:     cfg.HalfBlocks,
		BlackChar:      qrterminal.BLACK_BLACK,
		WhiteChar:      qrterminal.WHITE_WHITE,
		WhiteBlackChar: qrterminal.WHITE_BLACK,
		BlackWhiteChar: qrterminal.BLACK_WHITE,
	})
	return nil
}
