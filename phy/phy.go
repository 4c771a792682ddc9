// Package phy defines the PHY transport consumed by the Heymac LNK state
// machine and ships one concrete implementation, SerialPhy, which talks
// to a radio microcontroller over a UART link.
package phy

import "time"

// TmNow, passed as PostTxAction's `when`, means transmit as soon as possible.
const TmNow time.Duration = 0

// Setting field names recognized by SetDefaultSettings / PostTxAction
// overrides.
const (
	FldRdoLoRaMode        = "FLD_RDO_LORA_MODE"
	FldRdoFreq            = "FLD_RDO_FREQ"
	FldRdoMaxPwr          = "FLD_RDO_MAX_PWR"
	FldRdoPABoost         = "FLD_RDO_PA_BOOST"
	FldLoraImplcitHdrMode = "FLD_LORA_IMPLCT_HDR_MODE"
	FldLoraCR             = "FLD_LORA_CR"
	FldLoraBW             = "FLD_LORA_BW"
	FldLoraSF             = "FLD_LORA_SF"
	FldLoraCRCEn          = "FLD_LORA_CRC_EN"
	FldLoraSyncWord       = "FLD_LORA_SYNC_WORD"
)

// LoRa coding-rate / bandwidth / spreading-factor register values, kept
// as constants so callers don't have to remember SX127x magic numbers.
const (
	CodingRate4to6   = 2
	Bandwidth250k    = 8
	SpreadingFactor7 = 7
	HeymacSyncWord   = 0x48 // ASCII 'H'
)

// Setting is a (field-name, value) pair applied to the radio, either as a
// startup default or a per-transmit override.
type Setting struct {
	Name  string
	Value interface{}
}

// DefaultSettings is the default PHY configuration for Heymac
// CSMA: LoRa mode on, 432.550 MHz, 7 dBm via PA_BOOST,
// explicit header, coding rate 4/6, 250 kHz bandwidth, SF7, CRC on, sync
// word 'H'.
var DefaultSettings = []Setting{
	{FldRdoLoRaMode, true},
	{FldRdoFreq, uint32(432_550_000)},
	{FldRdoMaxPwr, int8(7)},
	{FldRdoPABoost, true},
	{FldLoraImplcitHdrMode, false},
	{FldLoraCR, CodingRate4to6},
	{FldLoraBW, Bandwidth250k},
	{FldLoraSF, SpreadingFactor7},
	{FldLoraCRCEn, true},
	{FldLoraSyncWord, uint8(HeymacSyncWord)},
}

// RxCallback is invoked by the PHY on each valid received frame, carrying
// the receive timestamp and radio metadata.
type RxCallback func(rxTime time.Time, rxBytes []byte, rxRssi int8, rxSnr int8)

// Phy is the external radio service the LNK machine drives. It is
// treated as opaque: register-level radio programming happens on the
// other side of this interface.
type Phy interface {
	// SetDefaultSettings records the settings applied once at StartStack.
	SetDefaultSettings(settings []Setting)
	// SetDefaultRxCallback registers the callback invoked on each valid
	// received frame.
	SetDefaultRxCallback(cb RxCallback)
	// PostTxAction submits bytes for transmission. when == TmNow means
	// transmit as soon as possible; overrides are applied just before
	// the transmit. SerialPhy does not restore the previous values
	// afterwards, so an override stays in effect until changed again.
	PostTxAction(when time.Duration, overrides []Setting, data []byte) error
	// StartStack begins PHY operation at the given scheduling priority
	// (numerically lower is higher priority).
	StartStack(priority int) error
	// Close releases the underlying transport.
	Close() error
}
