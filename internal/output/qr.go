package output

import (
	"io"
	"strings"

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

// DefaultQRConfig returns defaults for payment URIs shown in a terminal.
// Payment URIs carry query parameters, so medium correction is used.
func DefaultQRConfig() QRConfig {
	return QRConfig{
		Level:      qr.M,
		QuietZone:  1,
		HalfBlocks: true,
	}
}

// RenderQR writes data as a block-character QR code.
func RenderQR(w io.Writer, data string, cfg QRConfig) {
	config := qrterminal.Config{
		Level:          cfg.Level,
		Writer:         w,
		QuietZone:      cfg.QuietZone,
		HalfBlocks:     cfg.HalfBlocks,
		BlackChar:      qrterminal.BLACK_BLACK,
		WhiteChar:      qrterminal.WHITE_WHITE,
		WhiteBlackChar: qrterminal.WHITE_BLACK,
		BlackWhiteChar: qrterminal.BLACK_WHITE,
	}
	if !cfg.HalfBlocks {
		config.BlackChar = qrterminal.BLACK
		config.WhiteChar = qrterminal.WHITE
	}
	qrterminal.GenerateWithConfig(data, config)
}

// QRString renders data to a string.
func QRString(data string, cfg QRConfig) string {
	var sb strings.Builder
	RenderQR(&sb, data, cfg)
	return sb.String()
}
