package importer

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Detector picks a Kind from an upload's file name.
type Detector struct {
	BankMarker   string
	CardMarker   string
	WalletMarker string
}

// DefaultDetector returns the markers used by the supported exports.
func DefaultDetector() Detector {
	return Detector{
		BankMarker:   "movimientos",
		CardMarker:   "Resumen de tarjeta de crédito",
		WalletMarker: "download",
	}
}

// fold lower-cases s in NFC so "crédito" matches whether the accent arrived
// precomposed or decomposed.
func fold(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}

// Detect classifies name by extension and marker substring.
func (d Detector) Detect(name string) Kind {
	base := fold(filepath.Base(name))
	ext := filepath.Ext(base)

	has := func(marker string) bool {
		return marker != "" && strings.Contains(base, fold(marker))
	}

	switch ext {
	case ".xlsx", ".xls":
		if has(d.BankMarker) {
			return KindBank
		}
	case ".pdf":
		switch {
		case has(d.CardMarker):
			return KindCard
		case has(d.WalletMarker):
			return KindWallet
		}
	case ".db":
		return KindSnapshot
	case ".json":
		return KindCredentials
	}
	return KindUnknown
}
